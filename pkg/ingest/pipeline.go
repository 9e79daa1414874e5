package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hnrag/internal/models"
	"hnrag/internal/types"
	"hnrag/pkg/chunker"
)

type Config struct {
	Workers    int
	OnProgress func(hnID int64)
}

// Result reports one pipeline run.
type Result struct {
	Saved      int
	Updated    int
	Chunked    int
	FailedURLs []string
}

// Pipeline runs the offline ingestion path: fetch listings, save the
// batch, then scrape, summarize, chunk and embed each article that has no
// content yet. Processing fans out across articles up to Workers at a
// time; each article's chunks are written as one atomic unit.
type Pipeline struct {
	config     Config
	fetcher    types.Fetcher
	scraper    types.Scraper
	summarizer types.Summarizer
	chunker    *chunker.Chunker
	embedder   types.Embedder
	store      types.ArticleStore
}

// Deps collects the collaborators the pipeline drives. All of them are
// injected; the pipeline owns nothing but sequencing.
type Deps struct {
	Fetcher    types.Fetcher
	Scraper    types.Scraper
	Summarizer types.Summarizer
	Chunker    *chunker.Chunker
	Embedder   types.Embedder
	Store      types.ArticleStore
}

func NewWithConfig(config Config, deps Deps) *Pipeline {
	if config.Workers == 0 {
		config.Workers = 4
	}
	return &Pipeline{
		config:     config,
		fetcher:    deps.Fetcher,
		scraper:    deps.Scraper,
		summarizer: deps.Summarizer,
		chunker:    deps.Chunker,
		embedder:   deps.Embedder,
		store:      deps.Store,
	}
}

// Run ingests one batch of the given story kind. Fetch and save failures
// abort the run; per-article scrape or persistence failures only land the
// article on FailedURLs.
func (p *Pipeline) Run(ctx context.Context, kind string, limit int) (*Result, error) {
	articles, err := p.fetcher.FetchArticles(ctx, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching %s articles: %w", kind, err)
	}

	saved, updated, err := p.store.SaveArticles(ctx, articles)
	if err != nil {
		return nil, fmt.Errorf("saving articles: %w", err)
	}

	ids := make([]int64, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.HNID)
	}
	pending, err := p.store.ArticlesNeedingContent(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("listing unscraped articles: %w", err)
	}

	result := &Result{Saved: saved, Updated: updated}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)
	for _, article := range pending {
		article := article
		g.Go(func() error {
			ok := p.processArticle(gctx, article)

			mu.Lock()
			if ok {
				result.Chunked++
			} else {
				result.FailedURLs = append(result.FailedURLs, article.URL)
			}
			mu.Unlock()

			if p.config.OnProgress != nil {
				p.config.OnProgress(article.HNID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// processArticle runs scrape -> summarize -> persist -> chunk -> embed ->
// store for one article. A failed summary is tolerated (the header chunk
// just carries no summary); a failed scrape or store write fails the
// article.
func (p *Pipeline) processArticle(ctx context.Context, article models.Article) bool {
	content, ok := p.scraper.Scrape(ctx, article.URL)
	if !ok {
		log.Printf("ingest: no content for %s", article.URL)
		return false
	}

	summary, tagsJSON := p.summarizer.SummarizeAndTag(ctx, article.Title, content)

	if err := p.store.SetContent(ctx, article.HNID, content, summary, tagsJSON); err != nil {
		log.Printf("ingest: persisting content for article %d: %v", article.HNID, err)
		return false
	}

	var createdAt string
	if article.CreatedAt != nil {
		createdAt = article.CreatedAt.UTC().Format(time.RFC3339)
	}
	chunks := p.chunker.Chunk(chunker.Input{
		Title:        article.Title,
		Summary:      summary,
		Content:      content,
		Author:       article.Author,
		Score:        &article.Score,
		CommentCount: &article.CommentCount,
		Tags:         tagsJSON,
		CreatedAt:    createdAt,
		URL:          article.URL,
	})

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors := p.embedder.EmbedBatch(ctx, texts)
	for i := range chunks {
		if i < len(vectors) {
			chunks[i].Embedding = vectors[i]
		}
	}

	if err := p.store.StoreChunks(ctx, article.HNID, chunks); err != nil {
		log.Printf("ingest: storing chunks for article %d: %v", article.HNID, err)
		return false
	}
	return true
}
