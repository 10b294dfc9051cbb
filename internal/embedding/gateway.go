package embedding

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/observability"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

// Embedder is a provider that turns text into vectors. Documents and queries
// are separate calls because some providers embed them with different task
// types.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Name() string
}

type GatewayConfig struct {
	BatchSize int
	// RequestsPerSecond throttles provider calls; zero disables throttling.
	RequestsPerSecond float64
	// Dimension, when set, must match every returned vector.
	Dimension int
}

// Gateway batches and throttles calls to an Embedder and normalises its
// failures into domain.EmbeddingError.
type Gateway struct {
	log      *logger.Logger
	provider Embedder
	cfg      GatewayConfig
	limiter  *rate.Limiter
}

func NewGateway(log *logger.Logger, provider Embedder, cfg GatewayConfig) *Gateway {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Gateway{
		log:      log.With("service", "EmbeddingGateway", "provider", provider.Name()),
		provider: provider,
		cfg:      cfg,
		limiter:  limiter,
	}
}

func (g *Gateway) Name() string { return g.provider.Name() }

func (g *Gateway) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	ctx, span := otel.Tracer("ragdesk/embedding").Start(ctx, "embedding.documents")
	defer span.End()
	span.SetAttributes(attribute.Int("embedding.inputs", len(texts)), attribute.String("embedding.provider", g.provider.Name()))

	out := make([][]float32, 0, len(texts))
	dim := g.cfg.Dimension
	for start := 0; start < len(texts); start += g.cfg.BatchSize {
		end := start + g.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, g.fail(span, err)
		}
		began := time.Now()
		vecs, err := g.provider.EmbedDocuments(ctx, texts[start:end])
		observability.Current().ObserveEmbedding(g.provider.Name(), statusOf(err), time.Since(began), end-start)
		if err != nil {
			return nil, g.fail(span, fmt.Errorf("batch %d-%d: %w", start, end, err))
		}
		if len(vecs) != end-start {
			return nil, g.fail(span, fmt.Errorf("batch %d-%d: provider returned %d vectors for %d inputs", start, end, len(vecs), end-start))
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, g.fail(span, fmt.Errorf("input %d: empty vector", start+i))
			}
			if dim == 0 {
				dim = len(v)
			}
			if len(v) != dim {
				return nil, g.fail(span, fmt.Errorf("input %d: dimension %d, expected %d", start+i, len(v), dim))
			}
		}
		out = append(out, vecs...)
	}
	g.log.Debug("embedded documents", "inputs", len(texts), "dimension", dim)
	return out, nil
}

func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("ragdesk/embedding").Start(ctx, "embedding.query")
	defer span.End()
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, g.fail(span, err)
	}
	began := time.Now()
	v, err := g.provider.EmbedQuery(ctx, text)
	observability.Current().ObserveEmbedding(g.provider.Name(), statusOf(err), time.Since(began), 1)
	if err != nil {
		return nil, g.fail(span, err)
	}
	if len(v) == 0 {
		return nil, g.fail(span, fmt.Errorf("empty query vector"))
	}
	if g.cfg.Dimension > 0 && len(v) != g.cfg.Dimension {
		return nil, g.fail(span, fmt.Errorf("query dimension %d, expected %d", len(v), g.cfg.Dimension))
	}
	return v, nil
}

func (g *Gateway) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &domain.EmbeddingError{Provider: g.provider.Name(), Err: err}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
