package ingest_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnrag/internal/models"
	"hnrag/pkg/chunker"
	"hnrag/pkg/ingest"
	"hnrag/pkg/tokens"
)

type fakeFetcher struct {
	articles []models.Article
	err      error
}

func (f *fakeFetcher) FetchArticles(ctx context.Context, kind string, limit int) ([]models.Article, error) {
	return f.articles, f.err
}

type fakeScraper struct {
	content map[string]string
}

func (f *fakeScraper) Scrape(ctx context.Context, url string) (string, bool) {
	content, ok := f.content[url]
	return content, ok
}

type fakeSummarizer struct {
	summary string
	tags    string
}

func (f *fakeSummarizer) SummarizeAndTag(ctx context.Context, title, content string) (string, string) {
	return f.summary, f.tags
}

type fakeEmbedder struct {
	dim int
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, f.dim)
		out[i][0] = 1
	}
	return out
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) []float32 {
	return f.EmbedBatch(ctx, []string{text})[0]
}

type fakeStore struct {
	mu sync.Mutex

	existing map[int64]bool
	content  map[int64]string
	chunks   map[int64][]models.Chunk

	saveCalls    int
	pendingCalls int

	setContentErr error
}

func newFakeStore(existing ...int64) *fakeStore {
	s := &fakeStore{
		existing: make(map[int64]bool),
		content:  make(map[int64]string),
		chunks:   make(map[int64][]models.Chunk),
	}
	for _, id := range existing {
		s.existing[id] = true
	}
	return s
}

func (s *fakeStore) SaveArticles(ctx context.Context, articles []models.Article) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	var saved, updated int
	for _, a := range articles {
		if s.existing[a.HNID] {
			updated++
		} else {
			s.existing[a.HNID] = true
			saved++
		}
	}
	return saved, updated, nil
}

func (s *fakeStore) ArticlesNeedingContent(ctx context.Context, hnIDs []int64) ([]models.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCalls++
	var pending []models.Article
	for _, id := range hnIDs {
		if _, has := s.content[id]; !has {
			pending = append(pending, models.Article{HNID: id, Title: "Article", URL: articleURL(id)})
		}
	}
	return pending, nil
}

func (s *fakeStore) SetContent(ctx context.Context, hnID int64, content, summary, tagsJSON string) error {
	if s.setContentErr != nil {
		return s.setContentErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[hnID] = content
	return nil
}

func (s *fakeStore) StoreChunks(ctx context.Context, articleID int64, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[articleID] = chunks
	return nil
}

func (s *fakeStore) SearchHeaders(ctx context.Context, embedding []float32, topK int) ([]models.RetrievalResult, error) {
	return nil, nil
}

func articleURL(id int64) string {
	switch id {
	case 1:
		return "https://one.example/post"
	case 2:
		return "https://two.example/post"
	default:
		return "https://three.example/post"
	}
}

func longContent() string {
	return strings.Repeat("A paragraph about compilers and runtimes. ", 5) +
		"\n\n" +
		strings.Repeat("Another paragraph on garbage collection details. ", 5)
}

func newPipeline(store *fakeStore, scraper *fakeScraper, summarizer *fakeSummarizer, articles []models.Article) *ingest.Pipeline {
	return ingest.NewWithConfig(ingest.Config{Workers: 2}, ingest.Deps{
		Fetcher:    &fakeFetcher{articles: articles},
		Scraper:    scraper,
		Summarizer: summarizer,
		Chunker:    chunker.NewWithConfig(chunker.Config{MaxTokens: 64}, tokens.NewCounter("no-such-model")),
		Embedder:   &fakeEmbedder{dim: 8},
		Store:      store,
	})
}

func TestRunIngestsBatch(t *testing.T) {
	articles := []models.Article{
		{HNID: 1, Title: "One", URL: articleURL(1)},
		{HNID: 2, Title: "Two", URL: articleURL(2)},
		{HNID: 3, Title: "Three", URL: articleURL(3)},
	}
	store := newFakeStore(2) // article 2 was seen on a previous run
	scraper := &fakeScraper{content: map[string]string{
		articleURL(1): longContent(),
		articleURL(2): longContent(),
		articleURL(3): longContent(),
	}}

	p := newPipeline(store, scraper, &fakeSummarizer{summary: "sum", tags: `["go"]`}, articles)
	result, err := p.Run(context.Background(), "top", 3)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Saved)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 3, result.Chunked)
	assert.Empty(t, result.FailedURLs)

	// One batched save and one batched pending lookup, never per-article.
	assert.Equal(t, 1, store.saveCalls)
	assert.Equal(t, 1, store.pendingCalls)

	for _, id := range []int64{1, 2, 3} {
		chunks := store.chunks[id]
		require.NotEmpty(t, chunks, "article %d has no chunks", id)
		assert.Equal(t, models.KindHeader, chunks[0].Kind)
		for i, ch := range chunks {
			assert.Equal(t, i, ch.Index)
			assert.Len(t, ch.Embedding, 8)
		}
	}
}

func TestRunScrapeFailureLandsOnFailedURLs(t *testing.T) {
	articles := []models.Article{
		{HNID: 1, Title: "One", URL: articleURL(1)},
		{HNID: 2, Title: "Two", URL: articleURL(2)},
	}
	store := newFakeStore()
	scraper := &fakeScraper{content: map[string]string{
		articleURL(1): longContent(), // article 2 has no scrapeable page
	}}

	p := newPipeline(store, scraper, &fakeSummarizer{}, articles)
	result, err := p.Run(context.Background(), "top", 2)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Chunked)
	assert.Equal(t, []string{articleURL(2)}, result.FailedURLs)
	assert.Empty(t, store.chunks[2])
}

func TestRunToleratesEmptySummary(t *testing.T) {
	articles := []models.Article{{HNID: 1, Title: "One", URL: articleURL(1)}}
	store := newFakeStore()
	scraper := &fakeScraper{content: map[string]string{articleURL(1): longContent()}}

	p := newPipeline(store, scraper, &fakeSummarizer{}, articles)
	result, err := p.Run(context.Background(), "top", 1)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Chunked)
	require.NotEmpty(t, store.chunks[1])
	assert.NotContains(t, store.chunks[1][0].Text, "Summary:")
}

func TestRunSetContentFailure(t *testing.T) {
	articles := []models.Article{{HNID: 1, Title: "One", URL: articleURL(1)}}
	store := newFakeStore()
	store.setContentErr = errors.New("disk full")
	scraper := &fakeScraper{content: map[string]string{articleURL(1): longContent()}}

	p := newPipeline(store, scraper, &fakeSummarizer{}, articles)
	result, err := p.Run(context.Background(), "top", 1)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Chunked)
	assert.Equal(t, []string{articleURL(1)}, result.FailedURLs)
}

func TestRunFetchFailureAborts(t *testing.T) {
	p := ingest.NewWithConfig(ingest.Config{}, ingest.Deps{
		Fetcher: &fakeFetcher{err: errors.New("api down")},
		Store:   newFakeStore(),
	})

	_, err := p.Run(context.Background(), "top", 5)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching top articles")
}

func TestRunSkipsArticlesWithContent(t *testing.T) {
	articles := []models.Article{
		{HNID: 1, Title: "One", URL: articleURL(1)},
		{HNID: 2, Title: "Two", URL: articleURL(2)},
	}
	store := newFakeStore()
	store.content[1] = "already scraped"
	scraper := &fakeScraper{content: map[string]string{
		articleURL(1): longContent(),
		articleURL(2): longContent(),
	}}

	p := newPipeline(store, scraper, &fakeSummarizer{}, articles)
	result, err := p.Run(context.Background(), "top", 2)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Chunked)
	assert.Empty(t, store.chunks[1], "already scraped article must not be reprocessed")
	assert.NotEmpty(t, store.chunks[2])
}

func TestRunReportsProgress(t *testing.T) {
	articles := []models.Article{
		{HNID: 1, Title: "One", URL: articleURL(1)},
		{HNID: 2, Title: "Two", URL: articleURL(2)},
	}
	store := newFakeStore()
	scraper := &fakeScraper{content: map[string]string{
		articleURL(1): longContent(),
		articleURL(2): longContent(),
	}}

	var mu sync.Mutex
	seen := make(map[int64]bool)
	p := ingest.NewWithConfig(ingest.Config{Workers: 2, OnProgress: func(hnID int64) {
		mu.Lock()
		seen[hnID] = true
		mu.Unlock()
	}}, ingest.Deps{
		Fetcher:    &fakeFetcher{articles: articles},
		Scraper:    scraper,
		Summarizer: &fakeSummarizer{},
		Chunker:    chunker.NewWithConfig(chunker.Config{}, tokens.NewCounter("no-such-model")),
		Embedder:   &fakeEmbedder{dim: 8},
		Store:      store,
	})

	_, err := p.Run(context.Background(), "top", 2)

	require.NoError(t, err)
	assert.True(t, seen[1])
	assert.True(t, seen[2])
}
