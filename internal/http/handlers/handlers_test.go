package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	runmodel "github.com/yungbote/ragdesk-backend/internal/domain/ingestion"
	"github.com/yungbote/ragdesk-backend/internal/ingestion"
	"github.com/yungbote/ragdesk-backend/internal/objectstore"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
	"github.com/yungbote/ragdesk-backend/internal/trigger"
)

type fakeConversation struct {
	text    string
	err     error
	session string
	rag     bool
}

func (f *fakeConversation) Handle(ctx context.Context, sessionID, message string, rag bool) (string, error) {
	f.session, f.rag = sessionID, rag
	return f.text, f.err
}

type fakeIngester struct {
	resp *ingestion.Response
	err  error
	got  ingestion.Request
}

func (f *fakeIngester) Ingest(ctx context.Context, req ingestion.Request) (*ingestion.Response, error) {
	f.got = req
	return f.resp, f.err
}

func do(r *gin.Engine, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestWelcomeAndHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler()
	r := gin.New()
	r.GET("/", h.Welcome)
	r.GET("/healthz", h.HealthCheck)

	rec := do(r, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != welcomeText {
		t.Fatalf("welcome: code=%d body=%q", rec.Code, rec.Body.String())
	}
	rec = do(r, http.MethodGet, "/healthz", "", nil)
	if got := decode(t, rec)["status"]; got != "ok" {
		t.Fatalf("healthz: want=%q got=%v", "ok", got)
	}
}

func TestMessageHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conv := &fakeConversation{text: "Flood is covered."}
	r := gin.New()
	r.POST("/messages", NewMessageHandler(conv).Post)

	rec := do(r, http.MethodPost, "/messages", "application/json", []byte(`{"rag":true}`))
	if rec.Code != http.StatusBadRequest || decode(t, rec)["error"] != "Message is required" {
		t.Fatalf("missing text: code=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(r, http.MethodPost, "/messages", "application/json", []byte(`{"text":"is flood covered?","rag":true}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	body := decode(t, rec)
	if body["text"] != "Flood is covered." || body["sessionId"] != "default" || !conv.rag {
		t.Fatalf("body: %v rag=%v", body, conv.rag)
	}

	conv.err = &domain.ModelInvocationError{Model: "m", Err: errors.New("secret upstream detail")}
	rec = do(r, http.MethodPost, "/messages", "application/json", []byte(`{"text":"hi","sessionId":"abc"}`))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: want=500 got=%d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") || decode(t, rec)["error"] != "Model invocation failed." {
		t.Fatalf("error body leaked detail: %s", rec.Body.String())
	}
	if conv.session != "abc" {
		t.Fatalf("session: want=%q got=%q", "abc", conv.session)
	}
}

func TestEmbedHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ing := &fakeIngester{resp: &ingestion.Response{
		RunID:      uuid.New(),
		Outcome:    ingestion.OutcomeIngested,
		SourcePath: "gs://bucket/pdfs/",
		Result:     &ingestion.Result{DocumentsLoaded: 1, ChunksProduced: 3, RecordsWritten: 3},
	}}
	r := gin.New()
	r.POST("/embed", NewEmbedHandler(ing, true).Post)

	rec := do(r, http.MethodPost, "/embed", "application/json", []byte(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fileName: want=400 got=%d", rec.Code)
	}

	rec = do(r, http.MethodPost, "/embed", "application/json", []byte(`{"fileName":"pdfs/a.pdf"}`))
	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["message"] != embedSuccessMessage || body["source_path"] != "gs://bucket/pdfs/" {
		t.Fatalf("ingested: code=%d body=%v", rec.Code, body)
	}
	if body["records"].(float64) != 3 || ing.got.FileName != "pdfs/a.pdf" {
		t.Fatalf("records: body=%v req=%+v", body, ing.got)
	}

	ing.resp = &ingestion.Response{Outcome: ingestion.OutcomeNoMatch, SourcePath: "gs://bucket/pdfs/"}
	rec = do(r, http.MethodPost, "/embed", "application/json", []byte(`{"fileName":"pdfs/missing.pdf"}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no match: want=404 got=%d", rec.Code)
	}

	ing.err = &domain.IngestionError{Stage: domain.StageEmbeddingAndUpserting, Cause: errors.New("quota")}
	rec = do(r, http.MethodPost, "/embed", "application/json", []byte(`{"fileName":"pdfs/a.pdf"}`))
	body = decode(t, rec)
	if rec.Code != http.StatusInternalServerError || body["error"] != "Ingestion pipeline execution failed." || body["stage"] != "embedding_and_upserting" {
		t.Fatalf("failure: code=%d body=%v", rec.Code, body)
	}
}

func multipartFile(t *testing.T, name string, size int) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write(bytes.Repeat([]byte("x"), size))
	_ = mw.Close()
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUploadHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := objectstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	r := gin.New()
	r.POST("/upload", NewUploadHandler(logger.Nop(), store, "pdfs/", 1024).Post)

	body, ct := multipartFile(t, "policy.pdf", 100)
	rec := do(r, http.MethodPost, "/upload", ct, body)
	if rec.Code != http.StatusOK || decode(t, rec)["filename"] != "pdfs/policy.pdf" {
		t.Fatalf("upload: code=%d body=%s", rec.Code, rec.Body.String())
	}
	objs, _ := store.List(context.Background(), "pdfs/")
	if len(objs) != 1 || objs[0].Size != 100 {
		t.Fatalf("stored: %+v", objs)
	}

	body, ct = multipartFile(t, "big.pdf", 4096)
	rec = do(r, http.MethodPost, "/upload", ct, body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("too large: want=413 got=%d", rec.Code)
	}

	rec = do(r, http.MethodPost, "/upload", "application/json", []byte(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing file: want=400 got=%d", rec.Code)
	}
}

type fakeRuns struct {
	run *runmodel.IngestionRun
	err error
}

func (f fakeRuns) GetRun(ctx context.Context, id uuid.UUID) (*runmodel.IngestionRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.run != nil && f.run.ID == id {
		return f.run, nil
	}
	return nil, nil
}

func (f fakeRuns) RecentRuns(ctx context.Context, limit int) ([]*runmodel.IngestionRun, error) {
	return nil, f.err
}

func TestRunHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	run := &runmodel.IngestionRun{ID: uuid.New(), Status: runmodel.RunStatusSucceeded}
	h := NewRunHandler(fakeRuns{run: run})
	r := gin.New()
	r.GET("/runs", h.List)
	r.GET("/runs/:id", h.Get)

	if rec := do(r, http.MethodGet, "/runs/"+run.ID.String(), "", nil); rec.Code != http.StatusOK {
		t.Fatalf("known run: want=200 got=%d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/runs/"+uuid.NewString(), "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run: want=404 got=%d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/runs/nope", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: want=400 got=%d", rec.Code)
	}
	rec := do(r, http.MethodGet, "/runs", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"runs":[]`) {
		t.Fatalf("list: code=%d body=%s", rec.Code, rec.Body.String())
	}

	broken := gin.New()
	broken.GET("/runs", NewRunHandler(fakeRuns{err: errors.New("database is locked")}).List)
	rec = do(broken, http.MethodGet, "/runs", "", nil)
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "locked") {
		t.Fatalf("ledger failure: code=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["code"]; got != "list_runs_failed" {
		t.Fatalf("code: want=%q got=%v", "list_runs_failed", got)
	}
}

type fakeBridge struct{ got []trigger.StorageEvent }

func (f *fakeBridge) Handle(ctx context.Context, ev trigger.StorageEvent) trigger.Outcome {
	f.got = append(f.got, ev)
	return trigger.OutcomeDelivered
}

func TestTriggerHandlerAcknowledges(t *testing.T) {
	gin.SetMode(gin.TestMode)
	b := &fakeBridge{}
	r := gin.New()
	r.POST("/", NewTriggerHandler(logger.Nop(), b).Receive)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bucket":"b","name":"pdfs/a.pdf"}`))
	req.Header.Set("Ce-Id", "1")
	req.Header.Set("Ce-Type", "google.cloud.storage.object.v1.finalized")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || len(b.got) != 1 || b.got[0].Name != "pdfs/a.pdf" {
		t.Fatalf("event: code=%d got=%+v", rec.Code, b.got)
	}

	rec = do(r, http.MethodPost, "/", "text/plain", []byte("junk"))
	if rec.Code != http.StatusNoContent || len(b.got) != 1 {
		t.Fatalf("malformed: code=%d forwarded=%d", rec.Code, len(b.got))
	}
}
