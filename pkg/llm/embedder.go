package llm

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tmc/langchaingo/llms/ollama"
)

type EmbedderConfig struct {
	Model   string
	BaseURL string // Ollama server URL
}

// Embedder produces unit-length embedding vectors. Backend failures degrade
// to nil entries rather than errors so the ingestion pipeline and retriever
// can continue without vectors.
type Embedder struct {
	config EmbedderConfig
	llm    *ollama.LLM
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	return &Embedder{config: config, llm: emb}, nil
}

// EmbedBatch embeds texts in input order. The result always has len(texts)
// entries; a nil entry marks a text whose embedding could not be produced.
// Vectors are L2-normalized because the store's cosine search assumes unit
// vectors. Transient backend errors are retried with exponential backoff;
// a batch that still fails comes back as all-nil with a logged error.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}

	var raw [][]float32
	operation := func() error {
		var err error
		raw, err = e.llm.CreateEmbedding(ctx, texts)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		log.Printf("embedder: batch of %d texts failed: %v", len(texts), err)
		return make([][]float32, len(texts))
	}
	if len(raw) != len(texts) {
		log.Printf("embedder: backend returned %d vectors for %d texts", len(raw), len(texts))
		return make([][]float32, len(texts))
	}

	out := make([][]float32, len(texts))
	for i, vec := range raw {
		out[i] = Normalize(vec)
	}
	return out
}

// EmbedOne is a convenience wrapper around EmbedBatch for a single text.
func (e *Embedder) EmbedOne(ctx context.Context, text string) []float32 {
	results := e.EmbedBatch(ctx, []string{text})
	if len(results) == 0 {
		return nil
	}
	return results[0]
}

// Normalize divides vec by its Euclidean norm. A zero vector cannot be
// normalized and is returned unchanged with a warning.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		if len(vec) > 0 {
			log.Printf("embedder: zero vector encountered, skipping normalization")
		}
		return vec
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
