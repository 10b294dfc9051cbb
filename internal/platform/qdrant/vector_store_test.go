package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

func TestVectorStoreUpsertRequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method == http.MethodPost {
			return okResponse(t, []any{}), nil
		}
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/ragdesk/points" {
			t.Fatalf("path: want=%q got=%q", "/collections/ragdesk/points", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	meta := map[string]string{"source": "gs://bucket/pdfs/a.pdf"}
	rec := domain.EmbeddingRecord{
		ID:         domain.RecordID("a.pdf", 0),
		DocumentID: "a.pdf",
		Ordinal:    0,
		Vector:     []float32{1, 2, 3},
		Text:       "hello",
		Metadata:   meta,
	}
	n, err := s.Upsert(context.Background(), "default", []domain.EmbeddingRecord{rec})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n != 1 {
		t.Fatalf("written: want=1 got=%d", n)
	}

	points, ok := captured["points"].([]any)
	if !ok || len(points) != 1 {
		t.Fatalf("points: got=%v", captured["points"])
	}
	first := points[0].(map[string]any)
	if first["id"] != s.pointID("default", rec.ID) {
		t.Fatalf("point id mismatch: got=%v", first["id"])
	}
	payload := first["payload"].(map[string]any)
	if payload[payloadIndexKey] != "default" {
		t.Fatalf("payload index: want=%q got=%v", "default", payload[payloadIndexKey])
	}
	if payload[payloadRecordIDKey] != rec.ID {
		t.Fatalf("payload record id: want=%q got=%v", rec.ID, payload[payloadRecordIDKey])
	}
	if payload[payloadTextKey] != "hello" {
		t.Fatalf("payload text: want=%q got=%v", "hello", payload[payloadTextKey])
	}
	if payload["source"] != "gs://bucket/pdfs/a.pdf" {
		t.Fatalf("payload metadata: got=%v", payload["source"])
	}
	if _, exists := meta[payloadIndexKey]; exists {
		t.Fatalf("input metadata mutated")
	}
}

func TestVectorStoreReplaceKeepsInsertionSeq(t *testing.T) {
	stored := map[string]float64{}
	var lookupIDs []any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if r.Method == http.MethodPost && r.URL.Path == "/collections/ragdesk/points" {
			lookupIDs, _ = body["ids"].([]any)
			found := []any{}
			for _, id := range lookupIDs {
				if seq, ok := stored[id.(string)]; ok {
					found = append(found, map[string]any{"id": id, "payload": map[string]any{payloadSeqKey: seq}})
				}
			}
			return okResponse(t, found), nil
		}
		for _, p := range body["points"].([]any) {
			point := p.(map[string]any)
			stored[point["id"].(string)] = point["payload"].(map[string]any)[payloadSeqKey].(float64)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	clock := time.Unix(1700000000, 0)
	s.now = func() time.Time { return clock }
	rec := domain.EmbeddingRecord{ID: domain.RecordID("a.pdf", 0), DocumentID: "a.pdf", Vector: []float32{1, 0, 0}, Text: "x"}
	if _, err := s.Upsert(context.Background(), "default", []domain.EmbeddingRecord{rec}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	id := s.pointID("default", rec.ID)
	first := stored[id]

	clock = clock.Add(time.Minute)
	other := domain.EmbeddingRecord{ID: domain.RecordID("b.pdf", 0), DocumentID: "b.pdf", Vector: []float32{1, 0, 0}, Text: "y"}
	if _, err := s.Upsert(context.Background(), "default", []domain.EmbeddingRecord{rec, other}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if len(lookupIDs) != 2 {
		t.Fatalf("lookup ids: want=2 got=%d", len(lookupIDs))
	}
	if got := stored[id]; got != first {
		t.Fatalf("replaced record seq: want=%v got=%v", first, got)
	}
	if got := stored[s.pointID("default", other.ID)]; got <= first {
		t.Fatalf("new record seq must follow existing: first=%v got=%v", first, got)
	}
}

func TestVectorStorePointIDIsDeterministic(t *testing.T) {
	s := newTestVectorStore(t, nil)
	if s.pointID("default", "r1") != s.pointID("default", "r1") {
		t.Fatalf("pointID must be stable")
	}
	if s.pointID("default", "r1") == s.pointID("other", "r1") {
		t.Fatalf("pointID must differ across indexes")
	}
}

func TestVectorStoreQueryOrdersAndFilters(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/ragdesk/points/search" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{
			{"id": "p2", "score": 0.5, "payload": map[string]any{payloadRecordIDKey: "later", payloadTextKey: "b", payloadSeqKey: 20}},
			{"id": "p1", "score": 0.9, "payload": map[string]any{payloadRecordIDKey: "best", payloadTextKey: "a", payloadSeqKey: 30}},
			{"id": "p3", "score": 0.5, "payload": map[string]any{payloadRecordIDKey: "earlier", payloadTextKey: "c", payloadSeqKey: 10}},
		}), nil
	})

	got, err := s.Query(context.Background(), "default", []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []string{"best", "earlier", "later"}
	for i, id := range want {
		if got[i].RecordID != id {
			t.Fatalf("result %d: want=%q got=%q", i, id, got[i].RecordID)
		}
	}
	if captured["limit"] != float64(3) {
		t.Fatalf("limit: want=3 got=%v", captured["limit"])
	}
	f := captured["filter"].(map[string]any)
	must := f["must"].([]any)
	cond := must[0].(map[string]any)
	if cond["key"] != payloadIndexKey {
		t.Fatalf("filter key: want=%q got=%v", payloadIndexKey, cond["key"])
	}
}

func TestVectorStorePruneFilter(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/ragdesk/points/delete" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})
	if err := s.Prune(context.Background(), "default", "a.pdf", 4); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	must := captured["filter"].(map[string]any)["must"].([]any)
	if len(must) != 3 {
		t.Fatalf("must conditions: want=3 got=%d", len(must))
	}
	rng := must[2].(map[string]any)["range"].(map[string]any)
	if rng["gte"] != float64(4) {
		t.Fatalf("range gte: want=4 got=%v", rng["gte"])
	}
}

func TestVectorStoreTransportFailureIsUnavailable(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	_, err := s.Query(context.Background(), "default", []float32{1, 0, 0}, 3)
	var unavailable *domain.StoreUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("want StoreUnavailableError got=%v", err)
	}
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorTransportFailed {
		t.Fatalf("want transport OperationError in chain, got=%v", err)
	}
}

func TestVectorStoreRejectedRequestIsNotUnavailable(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"status":{"error":"bad vector"}}`))),
		}, nil
	})
	_, err := s.Upsert(context.Background(), "default", []domain.EmbeddingRecord{{ID: "x", Vector: []float32{1, 2, 3}}})
	if domain.IsStoreUnavailable(err) {
		t.Fatalf("4xx must not be reported as unavailable: %v", err)
	}
	var oe *OperationError
	if !errors.As(err, &oe) || oe.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 OperationError, got=%v", err)
	}
}

func TestVectorStoreValidatesDimension(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	_, err := s.Query(context.Background(), "default", []float32{1, 2}, 3)
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorValidation {
		t.Fatalf("want validation error, got=%v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		cfg  Config
		code ConfigErrorCode
	}{
		{Config{}, ConfigErrorMissingURL},
		{Config{URL: "qdrant:6333"}, ConfigErrorInvalidURL},
		{Config{URL: "http://qdrant:6333"}, ConfigErrorMissingCollection},
		{Config{URL: "http://qdrant:6333", Collection: "c"}, ConfigErrorInvalidVectorDim},
	}
	for _, tc := range cases {
		err := ValidateConfig(tc.cfg)
		var ce *ConfigError
		if !errors.As(err, &ce) || ce.Code != tc.code {
			t.Fatalf("ValidateConfig(%+v): want=%s got=%v", tc.cfg, tc.code, err)
		}
	}
	if err := ValidateConfig(Config{URL: "http://qdrant:6333", Collection: "c", VectorDim: 3}); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestVectorStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *VectorStore {
	t.Helper()
	return &VectorStore{
		log:      newTestLogger(t),
		cfg:      Config{Collection: "ragdesk", VectorDim: 3},
		baseURL:  "http://qdrant.local",
		http:     &http.Client{Transport: roundTripFunc(roundTrip)},
		distance: "Cosine",
		now:      func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"result": result, "status": "ok", "time": 0.001})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}
