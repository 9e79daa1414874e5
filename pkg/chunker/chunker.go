package chunker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"hnrag/internal/models"
	"hnrag/pkg/tokens"
)

const (
	// DefaultMaxTokens bounds a single content chunk.
	DefaultMaxTokens = 512

	// minContentLength is the stripped-content threshold at or below which
	// an article gets a header chunk only.
	minContentLength = 100
)

type Config struct {
	MaxTokens int
}

// Chunker splits an article into a metadata header chunk plus token-bounded
// content chunks for embedding.
type Chunker struct {
	config  Config
	counter *tokens.Counter
}

func NewWithConfig(config Config, counter *tokens.Counter) *Chunker {
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if counter == nil {
		counter = tokens.NewCounter("")
	}
	return &Chunker{config: config, counter: counter}
}

// Input carries everything the header chunk may mention. Optional fields
// are omitted from the header entirely when absent. Title is mandatory.
type Input struct {
	Title        string
	Summary      string
	Content      string
	Author       string
	Score        *int
	CommentCount *int
	Tags         string // JSON array of strings, or raw text
	CreatedAt    string
	URL          string
}

// Chunk splits an article into an ordered chunk sequence. The header chunk
// always exists and sits at index 0; content chunks are numbered
// contiguously from 1 in paragraph order. Paragraphs accumulate greedily
// until the next one would push the buffer past MaxTokens. A single
// paragraph that alone exceeds the budget is kept whole rather than split
// mid-paragraph.
func (c *Chunker) Chunk(in Input) []models.Chunk {
	now := time.Now().UTC()

	header := c.buildHeader(in)
	chunks := []models.Chunk{{
		Text:       header,
		Kind:       models.KindHeader,
		Index:      0,
		TokenCount: c.counter.Count(header),
		CreatedAt:  now,
	}}

	if utf8.RuneCountInString(strings.TrimSpace(in.Content)) <= minContentLength {
		return chunks
	}

	index := 1
	current := ""
	flush := func() {
		if current == "" {
			return
		}
		chunks = append(chunks, models.Chunk{
			Text:       current,
			Kind:       models.KindContent,
			Index:      index,
			TokenCount: c.counter.Count(current),
			CreatedAt:  now,
		})
		index++
		current = ""
	}

	for _, para := range strings.Split(in.Content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		candidate := para
		if current != "" {
			candidate = current + "\n\n" + para
		}
		if c.counter.Count(candidate) <= c.config.MaxTokens {
			current = candidate
			continue
		}

		// Budget exceeded: flush the buffer and restart with this
		// paragraph. An oversized paragraph becomes its own buffer and
		// flushes alone on the next round.
		flush()
		current = para
	}
	flush()

	return chunks
}

// buildHeader concatenates the present metadata fields, one per line, in a
// fixed order. Tags arrive as a JSON array string; when decoding fails the
// raw string is inserted verbatim rather than dropped.
func (c *Chunker) buildHeader(in Input) string {
	parts := []string{"Title: " + in.Title}

	if in.Author != "" {
		parts = append(parts, "Author: "+in.Author)
	}
	if in.Score != nil {
		parts = append(parts, fmt.Sprintf("Score: %d points", *in.Score))
	}
	if in.CommentCount != nil {
		parts = append(parts, fmt.Sprintf("Comments: %d", *in.CommentCount))
	}
	if in.CreatedAt != "" {
		parts = append(parts, "Published: "+in.CreatedAt)
	}
	if in.Tags != "" {
		var tags []string
		if err := json.Unmarshal([]byte(in.Tags), &tags); err != nil {
			parts = append(parts, "Tags: "+in.Tags)
		} else if len(tags) > 0 {
			parts = append(parts, "Tags: "+strings.Join(tags, ", "))
		}
	}
	if in.URL != "" {
		parts = append(parts, "URL: "+in.URL)
	}
	if in.Summary != "" {
		parts = append(parts, "\nSummary:\n"+in.Summary)
	}

	return strings.Join(parts, "\n")
}
