package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/ragdesk-backend/internal/data/repos"
	"github.com/yungbote/ragdesk-backend/internal/domain"
	runmodel "github.com/yungbote/ragdesk-backend/internal/domain/ingestion"
	"github.com/yungbote/ragdesk-backend/internal/observability"
	"github.com/yungbote/ragdesk-backend/internal/pkg/dbctx"
	"github.com/yungbote/ragdesk-backend/internal/platform/ctxutil"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

type Outcome string

const (
	OutcomeIngested    Outcome = "ingested"
	OutcomeNothingToDo Outcome = "nothing_to_do"
	OutcomeNoMatch     Outcome = "no_match"
)

type Request struct {
	// FileName is the object name from the storage event.
	FileName string
	Trigger  string
}

type Response struct {
	RunID      uuid.UUID `json:"run_id"`
	Outcome    Outcome   `json:"outcome"`
	SourcePath string    `json:"source_path"`
	Matched    []string  `json:"matched,omitempty"`
	Result     *Result   `json:"result,omitempty"`
}

// Service runs the pipeline for webhook, CLI and watch triggers and records
// each run in the ledger. Runs are serialised so concurrent triggers for the
// same document cannot interleave their upserts and prunes.
type Service struct {
	log        *logger.Logger
	pipeline   *Pipeline
	fetcher    *Fetcher
	runs       repos.IngestionRunRepo
	sourcePath string
	mu         sync.Mutex
}

// NewService wires the pipeline. fetcher and runs may be nil: without a
// fetcher only directory ingestion is available, without runs nothing is
// recorded.
func NewService(log *logger.Logger, pipeline *Pipeline, fetcher *Fetcher, runs repos.IngestionRunRepo, sourcePath string) *Service {
	return &Service{
		log:        log.With("service", "IngestionService"),
		pipeline:   pipeline,
		fetcher:    fetcher,
		runs:       runs,
		sourcePath: sourcePath,
	}
}

var ErrNoFetcher = errors.New("object storage is not configured")

// Ingest fetches the named object and runs the pipeline over it.
func (s *Service) Ingest(ctx context.Context, req Request) (*Response, error) {
	if s.fetcher == nil {
		return nil, ErrNoFetcher
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	trigger := req.Trigger
	if trigger == "" {
		trigger = runmodel.TriggerWebhook
	}
	run := s.startRun(ctx, trigger, req.FileName, s.sourcePath)
	resp := &Response{RunID: runID(run), SourcePath: s.sourcePath}

	fetched, err := s.fetcher.Fetch(ctx, req.FileName)
	if err != nil {
		res := &Result{Stage: domain.StageFailed}
		ierr := &domain.IngestionError{Stage: domain.StageLoading, Cause: err}
		s.finishRun(ctx, run, trigger, runmodel.RunStatusFailed, res, ierr)
		return resp, ierr
	}
	defer fetched.Cleanup()
	resp.Matched = fetched.Matched
	if len(fetched.Matched) == 0 {
		resp.Outcome = OutcomeNoMatch
		resp.Result = &Result{Stage: domain.StageDone, NothingToDo: true, Outcomes: []domain.DocumentOutcome{}}
		s.finishRun(ctx, run, trigger, runmodel.RunStatusNoMatch, resp.Result, nil)
		return resp, nil
	}
	return s.run(ctx, run, trigger, fetched.Dir, resp)
}

// IngestDir runs the pipeline over a local directory.
func (s *Service) IngestDir(ctx context.Context, dir, trigger string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := s.startRun(ctx, trigger, "", dir)
	resp := &Response{RunID: runID(run), SourcePath: dir}
	return s.run(ctx, run, trigger, dir, resp)
}

func (s *Service) run(ctx context.Context, run *runmodel.IngestionRun, trigger, dir string, resp *Response) (*Response, error) {
	res, err := s.pipeline.RunObserved(ctx, dir, func(stage domain.Stage, _ *Result) {
		s.updateStage(ctx, run, stage)
	})
	resp.Result = res
	if err != nil {
		s.finishRun(ctx, run, trigger, runmodel.RunStatusFailed, res, err)
		return resp, err
	}
	status := runmodel.RunStatusSucceeded
	resp.Outcome = OutcomeIngested
	if res.NothingToDo {
		status = runmodel.RunStatusNothingToDo
		resp.Outcome = OutcomeNothingToDo
	}
	s.finishRun(ctx, run, trigger, status, res, nil)
	return resp, nil
}

// GetRun returns nil when the ledger is disabled or the id is unknown.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*runmodel.IngestionRun, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.GetByID(dbctx.New(ctx), id)
}

func (s *Service) RecentRuns(ctx context.Context, limit int) ([]*runmodel.IngestionRun, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.ListRecent(dbctx.New(ctx), limit)
}

func runID(run *runmodel.IngestionRun) uuid.UUID {
	if run == nil {
		return uuid.Nil
	}
	return run.ID
}

// Ledger writes are best effort: a failed write is logged and the run goes on.

func (s *Service) startRun(ctx context.Context, trigger, fileName, source string) *runmodel.IngestionRun {
	if s.runs == nil {
		return nil
	}
	run, err := s.runs.Create(dbctx.New(ctx), &runmodel.IngestionRun{
		Trigger:    trigger,
		FileName:   fileName,
		SourcePath: source,
		IndexName:  s.pipeline.Index(),
		Stage:      string(domain.StageLoading),
		Status:     runmodel.RunStatusRunning,
	})
	if err != nil {
		s.log.Warn("record run start failed", append(ctxutil.LogFields(ctx), "error", err)...)
		return nil
	}
	return run
}

func (s *Service) updateStage(ctx context.Context, run *runmodel.IngestionRun, stage domain.Stage) {
	if run == nil {
		return
	}
	if err := s.runs.UpdateFields(dbctx.New(ctx), run.ID, map[string]interface{}{"stage": string(stage)}); err != nil {
		s.log.Warn("record run stage failed", "run_id", run.ID, "stage", stage, "error", err)
	}
}

func (s *Service) finishRun(ctx context.Context, run *runmodel.IngestionRun, trigger, status string, res *Result, runErr error) {
	records := 0
	if res != nil {
		records = res.RecordsWritten
	}
	observability.Current().ObserveIngestionRun(trigger, status, records)
	if run == nil {
		return
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":      status,
		"finished_at": now,
	}
	if res != nil {
		updates["stage"] = string(res.Stage)
		updates["documents_loaded"] = res.DocumentsLoaded
		updates["chunks_produced"] = res.ChunksProduced
		updates["records_written"] = res.RecordsWritten
		if b, err := json.Marshal(res.Outcomes); err == nil {
			updates["outcomes"] = datatypes.JSON(b)
		}
	}
	if runErr != nil {
		updates["error"] = runErr.Error()
	}
	// The request context may already be cancelled; the ledger row should
	// still reach its final state.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.runs.UpdateFields(dbctx.New(writeCtx), run.ID, updates); err != nil {
		s.log.Warn("record run finish failed", "run_id", run.ID, "error", err)
	}
}
