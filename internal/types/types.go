package types

import (
	"context"

	"hnrag/internal/models"
)

// Core interfaces. Services are constructed once at startup and handed to
// consumers explicitly; nothing here is a process-wide singleton.

// Embedder turns texts into unit-length vectors. A nil entry marks a text
// whose embedding could not be produced; backend failures degrade to nil
// entries instead of errors so callers can continue without vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) [][]float32
	EmbedOne(ctx context.Context, text string) []float32
}

// Generator produces the final answer from a role-tagged message sequence.
// Errors propagate: there is no meaningful partial answer.
type Generator interface {
	Generate(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// Summarizer produces a short summary and a JSON tag array for an article.
// Both results are empty when generation fails; it never returns an error.
type Summarizer interface {
	SummarizeAndTag(ctx context.Context, title, content string) (summary, tagsJSON string)
}

// Scraper extracts readable article text from a URL. The second return is
// false when the page could not be fetched or yielded too little text.
type Scraper interface {
	Scrape(ctx context.Context, url string) (string, bool)
}

// Fetcher lists stories from the upstream news source. Kind is one of
// "top", "new", "best" or "trending". May return fewer than limit.
type Fetcher interface {
	FetchArticles(ctx context.Context, kind string, limit int) ([]models.Article, error)
}

// HeaderSearcher is the slice of the store the retriever needs.
type HeaderSearcher interface {
	SearchHeaders(ctx context.Context, embedding []float32, topK int) ([]models.RetrievalResult, error)
}

// ArticleStore is the persistence contract the ingestion pipeline consumes.
// SaveArticles must issue a single membership read for the whole batch and
// commit atomically; StoreChunks writes all chunks of one article in a
// single transaction so readers never observe a partially chunked article.
type ArticleStore interface {
	SaveArticles(ctx context.Context, articles []models.Article) (saved, updated int, err error)
	ArticlesNeedingContent(ctx context.Context, hnIDs []int64) ([]models.Article, error)
	SetContent(ctx context.Context, hnID int64, content, summary, tagsJSON string) error
	StoreChunks(ctx context.Context, articleID int64, chunks []models.Chunk) error
	HeaderSearcher
}
