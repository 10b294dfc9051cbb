package vectorstore

import (
	"context"
	"testing"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

func rec(doc string, ord int, vec ...float32) domain.EmbeddingRecord {
	return domain.EmbeddingRecord{
		ID:         domain.RecordID(doc, ord),
		DocumentID: doc,
		Ordinal:    ord,
		Vector:     vec,
		Text:       doc,
	}
}

func TestMemoryUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	batch := []domain.EmbeddingRecord{rec("a.pdf", 0, 1, 0), rec("a.pdf", 1, 0, 1)}
	for i := 0; i < 2; i++ {
		n, err := s.Upsert(ctx, "default", batch)
		if err != nil {
			t.Fatalf("Upsert #%d: %v", i, err)
		}
		if n != 2 {
			t.Fatalf("Upsert #%d written: want=2 got=%d", i, n)
		}
	}
	count, _ := s.Count(ctx, "default")
	if count != 2 {
		t.Fatalf("Count: want=2 got=%d", count)
	}
}

func TestMemoryQueryOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_, _ = s.Upsert(ctx, "default", []domain.EmbeddingRecord{
		rec("tie-first", 0, 1, 1),
		rec("best", 0, 1, 0),
		rec("tie-second", 0, 1, 1),
		rec("worst", 0, -1, 0),
	})
	got, err := s.Query(ctx, "default", []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []string{"best", "tie-first", "tie-second"}
	if len(got) != len(want) {
		t.Fatalf("results: want=%d got=%d", len(want), len(got))
	}
	for i := range want {
		if got[i].DocumentID != want[i] {
			t.Fatalf("result %d: want=%q got=%q", i, want[i], got[i].DocumentID)
		}
		if i > 0 && got[i].Score > got[i-1].Score {
			t.Fatalf("scores not non-increasing at %d", i)
		}
	}
}

func TestMemoryReplaceKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_, _ = s.Upsert(ctx, "default", []domain.EmbeddingRecord{rec("x", 0, 1, 1), rec("y", 0, 1, 1)})
	// Rewriting x must not move it behind y on ties.
	_, _ = s.Upsert(ctx, "default", []domain.EmbeddingRecord{rec("x", 0, 1, 1)})
	got, _ := s.Query(ctx, "default", []float32{1, 1}, 2)
	if got[0].DocumentID != "x" {
		t.Fatalf("tie order: want x first got=%q", got[0].DocumentID)
	}
}

func TestMemoryPruneDropsTail(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_, _ = s.Upsert(ctx, "default", []domain.EmbeddingRecord{rec("a", 0, 1), rec("a", 1, 1), rec("a", 2, 1), rec("b", 2, 1)})
	if err := s.Prune(ctx, "default", "a", 1); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	count, _ := s.Count(ctx, "default")
	if count != 2 {
		t.Fatalf("Count after prune: want=2 got=%d", count)
	}
}

func TestInstrumentedPassesThrough(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	s := Instrument(log, "memory", NewMemory())
	if _, err := s.Upsert(context.Background(), "i", []domain.EmbeddingRecord{rec("a", 0, 1)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := s.Query(context.Background(), "i", []float32{1}, 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("Query: got=%v err=%v", got, err)
	}
}
