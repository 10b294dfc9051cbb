package vectorstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/observability"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

type instrumented struct {
	backend string
	inner   Store
	log     *logger.Logger
	metrics *observability.Metrics
}

// Instrument wraps inner with tracing, metrics and failure logging.
func Instrument(log *logger.Logger, backend string, inner Store) Store {
	if inner == nil {
		return nil
	}
	return &instrumented{
		backend: backend,
		inner:   inner,
		log:     log.With("service", "VectorStore", "backend", backend),
		metrics: observability.Current(),
	}
}

func (s *instrumented) Upsert(ctx context.Context, index string, records []domain.EmbeddingRecord) (int, error) {
	ctx, done := s.start(ctx, "upsert", index, attribute.Int("vector.records", len(records)))
	n, err := s.inner.Upsert(ctx, index, records)
	done(err)
	return n, err
}

func (s *instrumented) Query(ctx context.Context, index string, vector []float32, k int) (domain.Retrieval, error) {
	ctx, done := s.start(ctx, "query", index, attribute.Int("vector.k", k))
	out, err := s.inner.Query(ctx, index, vector, k)
	done(err)
	return out, err
}

func (s *instrumented) Prune(ctx context.Context, index, documentID string, keep int) error {
	ctx, done := s.start(ctx, "prune", index, attribute.String("vector.document_id", documentID))
	err := s.inner.Prune(ctx, index, documentID, keep)
	done(err)
	return err
}

func (s *instrumented) Count(ctx context.Context, index string) (int, error) {
	ctx, done := s.start(ctx, "count", index)
	n, err := s.inner.Count(ctx, index)
	done(err)
	return n, err
}

func (s *instrumented) Close() error { return s.inner.Close() }

func (s *instrumented) start(ctx context.Context, op, index string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	began := time.Now()
	ctx, span := otel.Tracer("ragdesk/vectorstore").Start(ctx, "vectorstore."+op)
	span.SetAttributes(append(attrs, attribute.String("vector.backend", s.backend), attribute.String("vector.index", index))...)
	return ctx, func(err error) {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.log.Warn("vector store operation failed", "operation", op, "index", index, "unavailable", domain.IsStoreUnavailable(err), "error", err)
		}
		span.End()
		s.metrics.ObserveVectorStoreOperation(s.backend, op, status, time.Since(began))
	}
}
