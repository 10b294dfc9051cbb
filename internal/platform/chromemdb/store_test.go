package chromemdb

import (
	"context"
	"testing"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	s, err := New(log, Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func record(doc string, ord int, vec ...float32) domain.EmbeddingRecord {
	return domain.NewRecord(domain.Chunk{DocumentID: doc, Ordinal: ord, Text: doc}, vec, "")
}

func TestStoreUpsertIdempotentAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	batch := []domain.EmbeddingRecord{
		record("a.pdf", 0, 1, 0, 0),
		record("a.pdf", 1, 0, 1, 0),
		record("b.pdf", 0, 0.9, 0.1, 0),
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Upsert(ctx, "default", batch); err != nil {
			t.Fatalf("Upsert #%d: %v", i, err)
		}
	}
	n, _ := s.Count(ctx, "default")
	if n != 3 {
		t.Fatalf("Count: want=3 got=%d", n)
	}

	got, err := s.Query(ctx, "default", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("results: want=3 (clamped to count) got=%d", len(got))
	}
	if got[0].DocumentID != "a.pdf" || got[0].Ordinal != 0 {
		t.Fatalf("top result: got=%+v", got[0])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("scores not non-increasing at %d", i)
		}
	}
}

func TestStoreQueryEmptyIndex(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Query(context.Background(), "nothing", []float32{1, 0}, 3)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty index: got=%v err=%v", got, err)
	}
}

func TestStorePrune(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _ = s.Upsert(ctx, "default", []domain.EmbeddingRecord{
		record("a.pdf", 0, 1, 0), record("a.pdf", 1, 0, 1), record("a.pdf", 2, 1, 1),
	})
	if err := s.Prune(ctx, "default", "a.pdf", 1); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	n, _ := s.Count(ctx, "default")
	if n != 1 {
		t.Fatalf("Count after prune: want=1 got=%d", n)
	}
}
