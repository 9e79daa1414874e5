package store

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"hnrag/internal/models"
)

type Config struct {
	ConnString  string
	VectorDim   int
	SearchLimit int
}

// Store persists articles and their chunks in Postgres with pgvector.
// Chunks are write-once: StoreChunks replaces the whole set for an article
// in a single transaction and nothing ever updates an individual chunk.
type Store struct {
	config Config
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config Config) (*Store, error) {
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 10
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{config: config, pool: pool}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id BIGSERIAL PRIMARY KEY,
			hn_id BIGINT UNIQUE NOT NULL,
			title TEXT NOT NULL,
			url TEXT,
			hn_url TEXT NOT NULL,
			author TEXT NOT NULL,
			score INTEGER NOT NULL DEFAULT 0,
			comment_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ,
			fetched_at TIMESTAMPTZ,
			content TEXT,
			summary TEXT,
			tags TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS articles_score_idx ON articles (score)`,
		`CREATE INDEX IF NOT EXISTS articles_created_at_idx ON articles (created_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS article_chunks (
			id BIGSERIAL PRIMARY KEY,
			article_id BIGINT NOT NULL REFERENCES articles (hn_id) ON DELETE CASCADE,
			chunk_text TEXT NOT NULL,
			chunk_type TEXT NOT NULL CHECK (chunk_type IN ('header', 'content')),
			chunk_index INTEGER NOT NULL,
			token_count INTEGER,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (article_id, chunk_index)
		)`, s.config.VectorDim),
		`CREATE INDEX IF NOT EXISTS article_chunks_article_id_idx ON article_chunks (article_id)`,
		`CREATE INDEX IF NOT EXISTS article_chunks_type_idx ON article_chunks (chunk_type)`,
		`CREATE INDEX IF NOT EXISTS article_chunks_embedding_idx
			ON article_chunks
			USING ivfflat (embedding vector_cosine_ops)
			WITH (lists = 100)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// SaveArticles upserts a fetched batch. Membership is resolved with a
// single batch read keyed by hn_id, not one query per article, and the
// whole batch commits or rolls back as a unit. Existing rows keep their
// content, summary and tags untouched.
func (s *Store) SaveArticles(ctx context.Context, articles []models.Article) (int, int, error) {
	if len(articles) == 0 {
		return 0, 0, nil
	}

	ids := make([]int64, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.HNID)
	}

	existing := make(map[int64]bool, len(ids))
	rows, err := s.pool.Query(ctx, `SELECT hn_id FROM articles WHERE hn_id = ANY($1)`, ids)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to check existing articles: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("failed to scan existing id: %w", err)
		}
		existing[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("failed to read existing articles: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var saved, updated int
	for _, a := range articles {
		if existing[a.HNID] {
			_, err = tx.Exec(ctx, `
				UPDATE articles
				SET title = $2, url = $3, score = $4, comment_count = $5,
					created_at = COALESCE($6, created_at), fetched_at = now()
				WHERE hn_id = $1`,
				a.HNID, sanitizeUTF8(a.Title), a.URL, a.Score, a.CommentCount, a.CreatedAt)
			updated++
		} else {
			_, err = tx.Exec(ctx, `
				INSERT INTO articles (hn_id, title, url, hn_url, author, score, comment_count, created_at, fetched_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
				a.HNID, sanitizeUTF8(a.Title), a.URL, a.HNURL, a.Author, a.Score, a.CommentCount, a.CreatedAt)
			saved++
		}
		if err != nil {
			return 0, 0, fmt.Errorf("failed to save article %d: %w", a.HNID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return saved, updated, nil
}

// ArticlesNeedingContent filters a batch down to articles that have never
// been scraped and have a URL to scrape.
func (s *Store) ArticlesNeedingContent(ctx context.Context, hnIDs []int64) ([]models.Article, error) {
	if len(hnIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT hn_id, title, url, hn_url, author, score, comment_count, created_at
		FROM articles
		WHERE hn_id = ANY($1) AND content IS NULL AND url IS NOT NULL AND url <> ''
		ORDER BY hn_id`, hnIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query unscraped articles: %w", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		var a models.Article
		var url *string
		if err := rows.Scan(&a.HNID, &a.Title, &url, &a.HNURL, &a.Author, &a.Score, &a.CommentCount, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		if url != nil {
			a.URL = *url
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// SetContent records the scraped content plus the generated summary and
// tags. All three columns are write-once: COALESCE keeps any value that a
// previous ingest already stored, so no call site can overwrite them.
func (s *Store) SetContent(ctx context.Context, hnID int64, content, summary, tagsJSON string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE articles
		SET content = COALESCE(content, NULLIF($2, '')),
			summary = COALESCE(summary, NULLIF($3, '')),
			tags = COALESCE(tags, NULLIF($4, ''))
		WHERE hn_id = $1`,
		hnID, sanitizeUTF8(content), sanitizeUTF8(summary), tagsJSON)
	if err != nil {
		return fmt.Errorf("failed to set content for article %d: %w", hnID, err)
	}
	return nil
}

// StoreChunks writes the full chunk set of one article atomically. Any
// previous set is replaced in the same transaction, so a reader never
// observes a partially chunked article.
func (s *Store) StoreChunks(ctx context.Context, articleID int64, chunks []models.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM article_chunks WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("failed to clear chunks for article %d: %w", articleID, err)
	}

	for _, ch := range chunks {
		var embedding interface{}
		if ch.Embedding != nil {
			embedding = pgvector.NewVector(ch.Embedding)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO article_chunks (article_id, chunk_text, chunk_type, chunk_index, token_count, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			articleID, sanitizeUTF8(ch.Text), string(ch.Kind), ch.Index, ch.TokenCount, embedding)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d for article %d: %w", ch.Index, articleID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// SearchHeaders ranks embedded header chunks by cosine distance to the
// query vector. Equal distances break deterministically on hn_id. The
// returned similarity is 1 - distance, valid because both sides are unit
// vectors.
func (s *Store) SearchHeaders(ctx context.Context, embedding []float32, topK int) ([]models.RetrievalResult, error) {
	if topK <= 0 {
		topK = s.config.SearchLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.chunk_text, a.title, COALESCE(a.url, ''), a.hn_id, c.embedding <=> $1 AS distance
		FROM article_chunks c
		JOIN articles a ON a.hn_id = c.article_id
		WHERE c.chunk_type = 'header' AND c.embedding IS NOT NULL
		ORDER BY distance, a.hn_id
		LIMIT $2`,
		pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search headers: %w", err)
	}
	defer rows.Close()

	var results []models.RetrievalResult
	for rows.Next() {
		var r models.RetrievalResult
		var distance float64
		if err := rows.Scan(&r.HeaderText, &r.ArticleTitle, &r.ArticleURL, &r.HNID, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		r.Similarity = 1 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetArticleByHNID returns nil without error when no such article exists.
func (s *Store) GetArticleByHNID(ctx context.Context, hnID int64) (*models.Article, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, hn_id, title, COALESCE(url, ''), hn_url, author, score, comment_count,
			created_at, fetched_at, COALESCE(content, ''), COALESCE(summary, ''), COALESCE(tags, '')
		FROM articles WHERE hn_id = $1`, hnID)

	var a models.Article
	err := row.Scan(&a.ID, &a.HNID, &a.Title, &a.URL, &a.HNURL, &a.Author, &a.Score, &a.CommentCount,
		&a.CreatedAt, &a.FetchedAt, &a.Content, &a.Summary, &a.Tags)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article %d: %w", hnID, err)
	}
	return &a, nil
}

// DeleteArticle removes an article; its chunks go with it via the cascade.
func (s *Store) DeleteArticle(ctx context.Context, hnID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM articles WHERE hn_id = $1`, hnID)
	if err != nil {
		return false, fmt.Errorf("failed to delete article %d: %w", hnID, err)
	}
	return tag.RowsAffected() > 0, nil
}

type ListOptions struct {
	Page     int
	PerPage  int
	Keyword  string
	Author   string
	MinScore *int
	MaxScore *int
	Tag      string
	SortBy   string // score, created_at, comment_count
	Order    string // asc, desc
}

// ListArticles filters, sorts and paginates the stored corpus. Returns the
// page plus the total row count for the filter.
func (s *Store) ListArticles(ctx context.Context, opts ListOptions) ([]models.Article, int64, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PerPage < 1 {
		opts.PerPage = 20
	}

	where := []string{"TRUE"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Keyword != "" {
		where = append(where, fmt.Sprintf("title ILIKE %s", arg("%"+opts.Keyword+"%")))
	}
	if opts.Author != "" {
		where = append(where, fmt.Sprintf("author ILIKE %s", arg("%"+opts.Author+"%")))
	}
	if opts.MinScore != nil {
		where = append(where, fmt.Sprintf("score >= %s", arg(*opts.MinScore)))
	}
	if opts.MaxScore != nil {
		where = append(where, fmt.Sprintf("score <= %s", arg(*opts.MaxScore)))
	}
	if opts.Tag != "" {
		where = append(where, fmt.Sprintf("tags ILIKE %s", arg("%"+opts.Tag+"%")))
	}
	whereClause := strings.Join(where, " AND ")

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM articles WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count articles: %w", err)
	}

	sortColumn := "score"
	switch opts.SortBy {
	case "created_at":
		sortColumn = "created_at"
	case "comment_count":
		sortColumn = "comment_count"
	}
	direction := "DESC"
	if strings.EqualFold(opts.Order, "asc") {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, hn_id, title, COALESCE(url, ''), hn_url, author, score, comment_count,
			created_at, fetched_at, COALESCE(summary, ''), COALESCE(tags, '')
		FROM articles
		WHERE %s
		ORDER BY %s %s NULLS LAST, hn_id
		LIMIT %s OFFSET %s`,
		whereClause, sortColumn, direction,
		arg(opts.PerPage), arg((opts.Page-1)*opts.PerPage))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		var a models.Article
		if err := rows.Scan(&a.ID, &a.HNID, &a.Title, &a.URL, &a.HNURL, &a.Author, &a.Score,
			&a.CommentCount, &a.CreatedAt, &a.FetchedAt, &a.Summary, &a.Tags); err != nil {
			return nil, 0, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, total, rows.Err()
}

// TrendingArticles returns the highest scored stored articles.
func (s *Store) TrendingArticles(ctx context.Context, limit int) ([]models.Article, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, hn_id, title, COALESCE(url, ''), hn_url, author, score, comment_count,
			created_at, fetched_at, COALESCE(summary, ''), COALESCE(tags, '')
		FROM articles
		ORDER BY score DESC, created_at DESC NULLS LAST, hn_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trending articles: %w", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		var a models.Article
		if err := rows.Scan(&a.ID, &a.HNID, &a.Title, &a.URL, &a.HNURL, &a.Author, &a.Score,
			&a.CommentCount, &a.CreatedAt, &a.FetchedAt, &a.Summary, &a.Tags); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// Stats aggregates corpus statistics.
func (s *Store) Stats(ctx context.Context) (*models.Stats, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT count(*), COALESCE(avg(score), 0)::float8, COALESCE(max(score), 0), COALESCE(sum(comment_count), 0)
		FROM articles`)

	var st models.Stats
	if err := row.Scan(&st.TotalArticles, &st.AverageScore, &st.MaxScore, &st.TotalComments); err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	return &st, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
