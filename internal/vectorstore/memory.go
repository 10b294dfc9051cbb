package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/ragdesk-backend/internal/domain"
)

type memoryEntry struct {
	record domain.EmbeddingRecord
	seq    int64
}

// Memory is an in-process index. It is the reference behaviour the other
// backends are tested against.
type Memory struct {
	mu      sync.RWMutex
	seq     int64
	indexes map[string]map[string]*memoryEntry
}

func NewMemory() *Memory {
	return &Memory{indexes: map[string]map[string]*memoryEntry{}}
}

func (m *Memory) Upsert(ctx context.Context, index string, records []domain.EmbeddingRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[index]
	if !ok {
		idx = map[string]*memoryEntry{}
		m.indexes[index] = idx
	}
	for _, rec := range records {
		if rec.ID == "" {
			return 0, fmt.Errorf("record for %s/%d has no id", rec.DocumentID, rec.Ordinal)
		}
	}
	for _, rec := range records {
		rec.Vector = append([]float32(nil), rec.Vector...)
		if existing, ok := idx[rec.ID]; ok {
			existing.record = rec
			continue
		}
		m.seq++
		idx[rec.ID] = &memoryEntry{record: rec, seq: m.seq}
	}
	return len(records), nil
}

func (m *Memory) Query(ctx context.Context, index string, vector []float32, k int) (domain.Retrieval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := m.indexes[index]
	candidates := make([]Ranked, 0, len(idx))
	for _, e := range idx {
		candidates = append(candidates, Ranked{
			Result: domain.RetrievalResult{
				RecordID:   e.record.ID,
				DocumentID: e.record.DocumentID,
				Ordinal:    e.record.Ordinal,
				Text:       e.record.Text,
				Score:      Cosine(vector, e.record.Vector),
			},
			Seq: e.seq,
		})
	}
	return Rank(candidates, k), nil
}

func (m *Memory) Prune(ctx context.Context, index, documentID string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.indexes[index] {
		if e.record.DocumentID == documentID && e.record.Ordinal >= keep {
			delete(m.indexes[index], id)
		}
	}
	return nil
}

func (m *Memory) Count(ctx context.Context, index string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.indexes[index]), nil
}

func (m *Memory) Close() error { return nil }
