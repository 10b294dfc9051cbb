package chromemdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
	"github.com/yungbote/ragdesk-backend/internal/vectorstore"
)

const (
	metaDocumentKey = "document_id"
	metaOrdinalKey  = "ordinal"
	metaSeqKey      = "_rd_seq"
)

// Store keeps one chromem collection per index. With a Path the database is
// persisted to disk after every write.
type Store struct {
	log *logger.Logger
	db  *chromem.DB
	seq atomic.Int64

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

var _ vectorstore.Store = (*Store)(nil)

type Config struct {
	// Path is the persistence directory; empty keeps everything in memory.
	Path     string
	Compress bool
}

func New(log *logger.Logger, cfg Config) (*Store, error) {
	var (
		db  *chromem.DB
		err error
	)
	if strings.TrimSpace(cfg.Path) == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, &domain.StoreUnavailableError{Backend: "chromem", Operation: "open", Err: err}
		}
	}
	s := &Store{
		log:         log.With("service", "ChromemVectorStore"),
		db:          db,
		collections: map[string]*chromem.Collection{},
	}
	s.seq.Store(time.Now().UnixNano())
	s.log.Info("chromem vector store selected", "path", cfg.Path, "persistent", cfg.Path != "")
	return s, nil
}

func (s *Store) collection(index string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[index]; ok {
		return c, nil
	}
	c, err := s.db.GetOrCreateCollection(index, map[string]string{"hnsw:space": "cosine"}, nil)
	if err != nil {
		return nil, &domain.StoreUnavailableError{Backend: "chromem", Operation: "collection", Err: err}
	}
	s.collections[index] = c
	return c, nil
}

func (s *Store) Upsert(ctx context.Context, index string, records []domain.EmbeddingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	c, err := s.collection(index)
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(records))
	vectors := make([][]float32, len(records))
	metas := make([]map[string]string, len(records))
	contents := make([]string, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return 0, fmt.Errorf("record for %s/%d has no id", rec.DocumentID, rec.Ordinal)
		}
		meta := make(map[string]string, len(rec.Metadata)+3)
		for k, v := range rec.Metadata {
			meta[k] = v
		}
		meta[metaDocumentKey] = rec.DocumentID
		meta[metaOrdinalKey] = strconv.Itoa(rec.Ordinal)
		meta[metaSeqKey] = s.sequenceFor(ctx, c, rec.ID)

		ids[i] = rec.ID
		vectors[i] = append([]float32(nil), rec.Vector...)
		metas[i] = meta
		contents[i] = rec.Text
	}
	if err := c.Add(ctx, ids, vectors, metas, contents); err != nil {
		return 0, fmt.Errorf("chromem add: %w", err)
	}
	return len(records), nil
}

// sequenceFor keeps the first-insertion sequence of a replaced record.
func (s *Store) sequenceFor(ctx context.Context, c *chromem.Collection, id string) string {
	if existing, err := c.GetByID(ctx, id); err == nil {
		if seq, ok := existing.Metadata[metaSeqKey]; ok {
			return seq
		}
	}
	return strconv.FormatInt(s.seq.Add(1), 10)
}

func (s *Store) Query(ctx context.Context, index string, vector []float32, k int) (domain.Retrieval, error) {
	k = vectorstore.NormalizeK(k)
	c, err := s.collection(index)
	if err != nil {
		return nil, err
	}
	n := c.Count()
	if n == 0 {
		return domain.Retrieval{}, nil
	}
	if k > n {
		k = n
	}
	results, err := c.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	candidates := make([]vectorstore.Ranked, 0, len(results))
	for _, r := range results {
		ord, _ := strconv.Atoi(r.Metadata[metaOrdinalKey])
		seq, _ := strconv.ParseInt(r.Metadata[metaSeqKey], 10, 64)
		candidates = append(candidates, vectorstore.Ranked{
			Result: domain.RetrievalResult{
				RecordID:   r.ID,
				DocumentID: r.Metadata[metaDocumentKey],
				Ordinal:    ord,
				Text:       r.Content,
				Score:      float64(r.Similarity),
			},
			Seq: seq,
		})
	}
	return vectorstore.Rank(candidates, k), nil
}

// Prune walks ordinals upward from keep. Ordinals are contiguous, so the
// first missing id ends the stale tail.
func (s *Store) Prune(ctx context.Context, index, documentID string, keep int) error {
	c, err := s.collection(index)
	if err != nil {
		return err
	}
	var stale []string
	for ord := keep; ; ord++ {
		id := domain.RecordID(documentID, ord)
		if _, err := c.GetByID(ctx, id); err != nil {
			break
		}
		stale = append(stale, id)
	}
	if len(stale) == 0 {
		return nil
	}
	if err := c.Delete(ctx, nil, nil, stale...); err != nil {
		return fmt.Errorf("chromem delete: %w", err)
	}
	s.log.Debug("pruned stale records", "index", index, "document_id", documentID, "count", len(stale))
	return nil
}

func (s *Store) Count(ctx context.Context, index string) (int, error) {
	c, err := s.collection(index)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

func (s *Store) Close() error { return nil }
