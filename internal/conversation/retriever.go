package conversation

import (
	"context"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/embedding"
	"github.com/yungbote/ragdesk-backend/internal/vectorstore"
)

// VectorRetriever embeds the query and asks the store for the top k records.
type VectorRetriever struct {
	embedder embedding.Embedder
	store    vectorstore.Store
	index    string
	k        int
}

func NewVectorRetriever(e embedding.Embedder, s vectorstore.Store, index string, k int) *VectorRetriever {
	return &VectorRetriever{embedder: e, store: s, index: index, k: vectorstore.NormalizeK(k)}
}

func (r *VectorRetriever) Retrieve(ctx context.Context, query string) (domain.Retrieval, error) {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.store.Query(ctx, r.index, vec, r.k)
}
