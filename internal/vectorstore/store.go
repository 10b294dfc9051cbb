package vectorstore

import (
	"context"
	"math"
	"sort"

	"github.com/yungbote/ragdesk-backend/internal/domain"
)

const DefaultTopK = 4

// Store persists embedding records and answers similarity queries.
//
// Upsert is keyed by record ID, so writing the same (document, ordinal) twice
// replaces the first record. Query returns at most k results ordered by
// descending score, ties broken by the order records were first inserted.
// Backends report an unreachable index as *domain.StoreUnavailableError and do
// not retry.
type Store interface {
	Upsert(ctx context.Context, index string, records []domain.EmbeddingRecord) (int, error)
	Query(ctx context.Context, index string, vector []float32, k int) (domain.Retrieval, error)
	// Prune removes a document's records with ordinal >= keep, so a document
	// that shrank between ingestions leaves no stale tail.
	Prune(ctx context.Context, index, documentID string, keep int) error
	Count(ctx context.Context, index string) (int, error)
	Close() error
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero
// or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Ranked is a scored candidate with its first-insertion sequence.
type Ranked struct {
	Result domain.RetrievalResult
	Seq    int64
}

// Rank orders candidates by score, then by insertion sequence, and keeps k.
func Rank(candidates []Ranked, k int) domain.Retrieval {
	if k <= 0 {
		k = DefaultTopK
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Result.Score != candidates[j].Result.Score {
			return candidates[i].Result.Score > candidates[j].Result.Score
		}
		return candidates[i].Seq < candidates[j].Seq
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make(domain.Retrieval, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Result)
	}
	return out
}

func NormalizeK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return k
}
