package scraper

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

const (
	// DefaultMinContentLength is the extraction threshold at or below which
	// a page is treated as having no usable content.
	DefaultMinContentLength = 50

	// DefaultMaxContentLength truncates overlong articles; a marker is
	// appended so the cut is visible downstream.
	DefaultMaxContentLength = 50000

	truncationMarker = "..."

	userAgent = "hnrag/1.0 (article scraper)"
)

type Config struct {
	Timeout          time.Duration
	RateLimit        float64 // requests per second
	MinContentLength int
	MaxContentLength int
}

// Scraper extracts readable article text from a single URL. It never
// returns an error: any fetch or parse failure degrades to an absent
// result so the ingestion pipeline can move on to the next article.
type Scraper struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config Config) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.MinContentLength == 0 {
		config.MinContentLength = DefaultMinContentLength
	}
	if config.MaxContentLength == 0 {
		config.MaxContentLength = DefaultMaxContentLength
	}

	return &Scraper{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func New() *Scraper {
	return NewWithConfig(Config{})
}

// Scrape fetches url and extracts its main text content. The second return
// is false when the page could not be fetched, parsed, or yielded content
// at or below the minimum length. Overlong content is truncated with a
// marker before the length check.
func (s *Scraper) Scrape(ctx context.Context, urlStr string) (string, bool) {
	if strings.TrimSpace(urlStr) == "" {
		return "", false
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		log.Printf("scraper: bad URL %s: %v", urlStr, err)
		return "", false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("scraper: fetching %s: %v", urlStr, err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("scraper: received status code %d for URL: %s", resp.StatusCode, urlStr)
		return "", false
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		log.Printf("scraper: parsing %s: %v", urlStr, err)
		return "", false
	}

	content := s.extractMainContent(doc)
	if r := []rune(content); len(r) > s.config.MaxContentLength {
		content = string(r[:s.config.MaxContentLength]) + truncationMarker
	}
	if utf8.RuneCountInString(content) <= s.config.MinContentLength {
		return "", false
	}
	return content, true
}

// extractMainContent prefers a recognizable article container and falls
// back to the whole body. Paragraph-level elements are joined with blank
// lines so the chunker sees real paragraph boundaries.
func (s *Scraper) extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, aside, form, iframe").Remove()

	selectors := []string{
		"article",
		"main",
		".post-content",
		".article-content",
		".content",
		"#content",
	}

	root := doc.Find("body")
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			root = selected.First()
			break
		}
	}

	var paragraphs []string
	root.Find("p, pre, li, h1, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		if text := strings.TrimSpace(root.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	return strings.Join(paragraphs, "\n\n")
}
