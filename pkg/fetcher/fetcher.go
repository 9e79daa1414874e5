package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"hnrag/internal/models"
)

const DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"

// Story kinds accepted by FetchArticles.
const (
	KindTop      = "top"
	KindNew      = "new"
	KindBest     = "best"
	KindTrending = "trending"
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second against the HN API
}

// Fetcher pulls story listings and details from the HackerNews API.
type Fetcher struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config Config) *Fetcher {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}

	return &Fetcher{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

type story struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Time        int64  `json:"time"`
}

// FetchArticles lists stories of the given kind. Trending merges the top
// and new pools; the other kinds map directly onto HN API endpoints. The
// result may be shorter than limit when the source returns fewer stories
// or individual item fetches fail.
func (f *Fetcher) FetchArticles(ctx context.Context, kind string, limit int) ([]models.Article, error) {
	switch kind {
	case KindTop, KindNew, KindBest:
		ids, err := f.fetchStoryIDs(ctx, kind, limit)
		if err != nil {
			return nil, err
		}
		return f.fetchItems(ctx, ids), nil
	case KindTrending:
		return f.fetchTrending(ctx, limit)
	default:
		return nil, fmt.Errorf("unknown story kind %q", kind)
	}
}

// fetchTrending merges the top and new id pools. The pool composition is
// deterministic: ordered dedup with first occurrence winning, truncated to
// twice the limit, then sorted by score descending with the HN id as
// tie-break.
func (f *Fetcher) fetchTrending(ctx context.Context, limit int) ([]models.Article, error) {
	topIDs, err := f.fetchStoryIDs(ctx, KindTop, limit*2)
	if err != nil {
		return nil, err
	}
	newIDs, err := f.fetchStoryIDs(ctx, KindNew, limit*2)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(topIDs)+len(newIDs))
	pool := make([]int64, 0, len(topIDs)+len(newIDs))
	for _, id := range append(topIDs, newIDs...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		pool = append(pool, id)
	}
	if len(pool) > limit*2 {
		pool = pool[:limit*2]
	}

	articles := f.fetchItems(ctx, pool)
	sort.Slice(articles, func(i, j int) bool {
		if articles[i].Score != articles[j].Score {
			return articles[i].Score > articles[j].Score
		}
		return articles[i].HNID < articles[j].HNID
	})
	if len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}

func (f *Fetcher) fetchStoryIDs(ctx context.Context, kind string, limit int) ([]int64, error) {
	var ids []int64
	url := fmt.Sprintf("%s/%sstories.json", f.config.BaseURL, kind)
	if err := f.getJSON(ctx, url, &ids); err != nil {
		return nil, fmt.Errorf("fetching %s story ids: %w", kind, err)
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// fetchItems resolves story ids to articles. Non-story items and items
// that fail to fetch are skipped.
func (f *Fetcher) fetchItems(ctx context.Context, ids []int64) []models.Article {
	articles := make([]models.Article, 0, len(ids))
	for _, id := range ids {
		var item story
		url := fmt.Sprintf("%s/item/%d.json", f.config.BaseURL, id)
		if err := f.getJSON(ctx, url, &item); err != nil {
			log.Printf("fetcher: skipping story %d: %v", id, err)
			continue
		}
		if item.Type != "story" || item.Title == "" {
			continue
		}

		author := item.By
		if author == "" {
			author = "Unknown"
		}
		article := models.Article{
			HNID:         item.ID,
			Title:        item.Title,
			URL:          item.URL,
			HNURL:        fmt.Sprintf("https://news.ycombinator.com/item?id=%d", item.ID),
			Author:       author,
			Score:        item.Score,
			CommentCount: item.Descendants,
		}
		if item.Time > 0 {
			created := time.Unix(item.Time, 0).UTC()
			article.CreatedAt = &created
		}
		articles = append(articles, article)
	}

	log.Printf("fetcher: fetched %d articles out of %d story ids", len(articles), len(ids))
	return articles
}

func (f *Fetcher) getJSON(ctx context.Context, url string, v interface{}) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
