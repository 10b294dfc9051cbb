package ingestion

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/ragdesk-backend/internal/chunker"
	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/embedding"
	"github.com/yungbote/ragdesk-backend/internal/loader"
	"github.com/yungbote/ragdesk-backend/internal/observability"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
	"github.com/yungbote/ragdesk-backend/internal/vectorstore"
)

// Result summarises a finished run. On failure it still carries the counts
// and outcomes reached before the failing stage.
type Result struct {
	Stage           domain.Stage             `json:"stage"`
	NothingToDo     bool                     `json:"nothing_to_do"`
	DocumentsLoaded int                      `json:"documents_loaded"`
	ChunksProduced  int                      `json:"chunks_produced"`
	RecordsWritten  int                      `json:"records_written"`
	Outcomes        []domain.DocumentOutcome `json:"outcomes"`
}

// StageObserver is told about every stage the run enters.
type StageObserver func(stage domain.Stage, res *Result)

// Pipeline turns a directory of PDFs into embedding records in one index.
type Pipeline struct {
	log      *logger.Logger
	loader   loader.Loader
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	store    vectorstore.Store
	index    string
}

func NewPipeline(log *logger.Logger, l loader.Loader, c *chunker.Chunker, e embedding.Embedder, s vectorstore.Store, index string) (*Pipeline, error) {
	if l == nil || c == nil || e == nil || s == nil {
		return nil, &domain.ConfigError{Field: "pipeline", Message: "loader, chunker, embedder and store are required"}
	}
	if index == "" {
		return nil, &domain.ConfigError{Field: "vector.index", Message: "is required"}
	}
	return &Pipeline{
		log:      log.With("service", "IngestionPipeline", "index", index),
		loader:   l,
		chunker:  c,
		embedder: e,
		store:    s,
		index:    index,
	}, nil
}

func (p *Pipeline) Index() string { return p.index }

func (p *Pipeline) Run(ctx context.Context, dir string) (*Result, error) {
	return p.RunObserved(ctx, dir, nil)
}

// RunObserved is Run with a callback on each stage transition.
func (p *Pipeline) RunObserved(ctx context.Context, dir string, observe StageObserver) (*Result, error) {
	res := &Result{Outcomes: []domain.DocumentOutcome{}}
	enter := func(stage domain.Stage) {
		res.Stage = stage
		if observe != nil {
			observe(stage, res)
		}
	}
	fail := func(stage domain.Stage, err error) (*Result, error) {
		ierr := &domain.IngestionError{Stage: stage, Cause: err}
		p.log.Error("ingestion failed", "stage", stage, "dir", dir, "error", err)
		enter(domain.StageFailed)
		return res, ierr
	}

	ctx, span := otel.Tracer("ragdesk/ingestion").Start(ctx, "ingestion.run")
	defer span.End()
	span.SetAttributes(attribute.String("ingestion.dir", dir), attribute.String("ingestion.index", p.index))

	// Loading
	enter(domain.StageLoading)
	var docs []domain.Document
	err := p.stage(ctx, domain.StageLoading, func(ctx context.Context) error {
		var lerr error
		docs, lerr = p.loader.Load(ctx, dir)
		return lerr
	})
	if err != nil {
		span.SetStatus(codes.Error, "loading failed")
		return fail(domain.StageLoading, err)
	}
	res.DocumentsLoaded = len(docs)
	if len(docs) == 0 {
		p.log.Info("no documents to ingest", "dir", dir)
		res.NothingToDo = true
		enter(domain.StageDone)
		return res, nil
	}

	// Splitting
	enter(domain.StageSplitting)
	chunked := make([][]domain.Chunk, len(docs))
	_ = p.stage(ctx, domain.StageSplitting, func(ctx context.Context) error {
		for i, doc := range docs {
			chunked[i] = p.chunker.Split(doc)
			res.ChunksProduced += len(chunked[i])
		}
		return nil
	})

	// Embedding and upserting
	enter(domain.StageEmbeddingAndUpserting)
	err = p.stage(ctx, domain.StageEmbeddingAndUpserting, func(ctx context.Context) error {
		for i, doc := range docs {
			outcome, werr := p.writeDocument(ctx, doc, chunked[i])
			res.Outcomes = append(res.Outcomes, outcome)
			res.RecordsWritten += outcome.Records
			if werr != nil {
				return werr
			}
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, "embedding failed")
		return fail(domain.StageEmbeddingAndUpserting, err)
	}

	enter(domain.StageDone)
	span.SetAttributes(attribute.Int("ingestion.records", res.RecordsWritten))
	p.log.Info("ingestion complete",
		"dir", dir,
		"documents", res.DocumentsLoaded,
		"chunks", res.ChunksProduced,
		"records", res.RecordsWritten,
	)
	return res, nil
}

func (p *Pipeline) writeDocument(ctx context.Context, doc domain.Document, chunks []domain.Chunk) (domain.DocumentOutcome, error) {
	if len(chunks) == 0 {
		// An emptied document still drops whatever an earlier run wrote.
		if err := p.store.Prune(ctx, p.index, doc.ID, 0); err != nil {
			return domain.Failed(doc.ID, err), err
		}
		return domain.DocumentOutcome{DocumentID: doc.ID, Status: domain.OutcomeSkipped, Error: "no text extracted"}, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return domain.Failed(doc.ID, err), err
	}
	if len(vecs) != len(chunks) {
		err := &domain.EmbeddingError{Provider: p.embedder.Name(), Err: fmt.Errorf("expected %d vectors got %d", len(chunks), len(vecs))}
		return domain.Failed(doc.ID, err), err
	}
	records := make([]domain.EmbeddingRecord, len(chunks))
	for i, c := range chunks {
		records[i] = domain.NewRecord(c, vecs[i], doc.Source.URI)
	}
	n, err := p.store.Upsert(ctx, p.index, records)
	if err != nil {
		return domain.Failed(doc.ID, err), err
	}
	if err := p.store.Prune(ctx, p.index, doc.ID, len(chunks)); err != nil {
		return domain.Failed(doc.ID, err), err
	}
	return domain.Succeeded(doc.ID, len(chunks), n), nil
}

func (p *Pipeline) stage(ctx context.Context, stage domain.Stage, fn func(context.Context) error) error {
	ctx, span := otel.Tracer("ragdesk/ingestion").Start(ctx, "ingestion."+string(stage))
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	observability.Current().ObserveIngestionStage(string(stage), status, time.Since(start))
	return err
}
