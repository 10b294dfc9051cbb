package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
)

// Embedder embeds documents with RETRIEVAL_DOCUMENT and queries with
// RETRIEVAL_QUERY against the same model.
type Embedder struct {
	client *Client
}

func (c *Client) Embedder() *Embedder { return &Embedder{client: c} }

func (e *Embedder) Name() string { return "gemini:" + e.client.cfg.EmbeddingModel }

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.embed(ctx, genai.TaskTypeRetrievalDocument, texts)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, genai.TaskTypeRetrievalQuery, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) embed(ctx context.Context, task genai.TaskType, texts []string) ([][]float32, error) {
	em := e.client.gc.EmbeddingModel(e.client.cfg.EmbeddingModel)
	em.TaskType = task
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		e.client.log.Warn("gemini embed failed", "model", e.client.cfg.EmbeddingModel, "status", statusLabel(err), "error", err)
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}
	return embeddingValues(resp, len(texts))
}

func embeddingValues(resp *genai.BatchEmbedContentsResponse, want int) ([][]float32, error) {
	if resp == nil {
		return nil, fmt.Errorf("gemini batch embed: empty response")
	}
	if len(resp.Embeddings) != want {
		return nil, fmt.Errorf("gemini batch embed: expected %d embeddings got %d", want, len(resp.Embeddings))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini batch embed: embedding %d is empty", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
