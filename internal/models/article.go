package models

import "time"

// Article is a HackerNews story plus everything the pipeline derives from
// it. Summary and Tags are write-once: the store refuses to overwrite them
// once a generation has succeeded.
type Article struct {
	ID           int64      `json:"id"`
	HNID         int64      `json:"hn_id"`
	Title        string     `json:"title"`
	URL          string     `json:"url"`
	HNURL        string     `json:"hn_url"`
	Author       string     `json:"author"`
	Score        int        `json:"score"`
	CommentCount int        `json:"comment_count"`
	CreatedAt    *time.Time `json:"created_at"`
	FetchedAt    *time.Time `json:"fetched_at"`
	Content      string     `json:"content,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	Tags         string     `json:"tags,omitempty"` // JSON array of strings
}

// Stats summarizes the stored corpus.
type Stats struct {
	TotalArticles int64   `json:"total_articles"`
	AverageScore  float64 `json:"average_score"`
	MaxScore      int     `json:"max_score"`
	TotalComments int64   `json:"total_comments"`
}
