package models

import "time"

type ChunkKind string

const (
	KindHeader  ChunkKind = "header"
	KindContent ChunkKind = "content"
)

// Chunk is one embeddable segment of an article. Index 0 is always the
// single header chunk; content chunks follow contiguously from 1 in
// document order. Chunks are immutable once stored: the only update path
// is deleting and recreating the whole set for an article.
type Chunk struct {
	ID         int64
	ArticleID  int64 // references Article.HNID
	Text       string
	Kind       ChunkKind
	Index      int
	TokenCount int
	Embedding  []float32 // nil until computed
	CreatedAt  time.Time
}

// RetrievalResult pairs a header chunk with its owning article for the
// generation step. It is never persisted.
type RetrievalResult struct {
	HeaderText   string  `json:"header_text"`
	ArticleTitle string  `json:"article_title"`
	ArticleURL   string  `json:"article_url"`
	HNID         int64   `json:"hn_id"`
	Similarity   float64 `json:"similarity_score"`
}
