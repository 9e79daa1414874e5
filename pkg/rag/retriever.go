package rag

import (
	"context"
	"log"

	"hnrag/internal/models"
	"hnrag/internal/types"
)

// Retriever embeds a query and ranks stored header chunks against it.
type Retriever struct {
	embedder types.Embedder
	store    types.HeaderSearcher
}

func NewRetriever(embedder types.Embedder, store types.HeaderSearcher) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Search returns up to topK results ordered by descending similarity.
// A query that cannot be embedded and a failing store both degrade to an
// empty result rather than an error: the generator then answers from
// general knowledge without retrieved context.
func (r *Retriever) Search(ctx context.Context, query string, topK int) []models.RetrievalResult {
	embedding := r.embedder.EmbedOne(ctx, query)
	if embedding == nil {
		log.Printf("retriever: could not embed query, answering without context")
		return nil
	}

	results, err := r.store.SearchHeaders(ctx, embedding, topK)
	if err != nil {
		log.Printf("retriever: header search failed: %v", err)
		return nil
	}
	return results
}
