package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"hnrag/internal/models"
	"hnrag/pkg/ingest"
	"hnrag/pkg/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// maxHistoryTurns caps the per-connection conversation history handed to
// the generator.
const maxHistoryTurns = 20

// ArticleReader is the read side of the store the REST API serves.
type ArticleReader interface {
	ListArticles(ctx context.Context, opts store.ListOptions) ([]models.Article, int64, error)
	GetArticleByHNID(ctx context.Context, hnID int64) (*models.Article, error)
	TrendingArticles(ctx context.Context, limit int) ([]models.Article, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// Ingester triggers a fetch-and-store run for a story kind.
type Ingester interface {
	Run(ctx context.Context, kind string, limit int) (*ingest.Result, error)
}

// Answerer produces a RAG answer with its supporting evidence.
type Answerer interface {
	Answer(ctx context.Context, query string, history []models.ChatMessage) (string, []models.RetrievalResult, error)
}

type Config struct {
	Addr string
}

// Server exposes the article corpus over REST and RAG chat over a
// websocket.
type Server struct {
	config   Config
	articles ArticleReader
	ingester Ingester
	answerer Answerer
}

func New(config Config, articles ArticleReader, ingester Ingester, answerer Answerer) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	return &Server{config: config, articles: articles, ingester: ingester, answerer: answerer}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/articles", s.handleListArticles)
	mux.HandleFunc("GET /api/articles/stats", s.handleStats)
	mux.HandleFunc("GET /api/articles/trending", s.handleTrending)
	mux.HandleFunc("GET /api/articles/{id}", s.handleGetArticle)
	mux.HandleFunc("POST /api/articles/fetch/{kind}", s.handleFetch)
	mux.HandleFunc("/ws/chat", s.handleChat)
	return mux
}

func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // ingest runs inside request handlers
	}
	log.Printf("server: listening on %s", s.config.Addr)
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"message": "HackerNews RAG API is running",
	})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	switch kind {
	case "top", "new", "best", "trending":
	default:
		writeError(w, http.StatusBadRequest, "unknown story kind: "+kind)
		return
	}

	limit := 10
	var body struct {
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Limit > 0 {
		limit = body.Limit
	}

	result, err := s.ingester.Run(r.Context(), kind, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	failed := result.FailedURLs
	if failed == nil {
		failed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"saved":        result.Saved,
		"updated":      result.Updated,
		"chunked":      result.Chunked,
		"failed_urls":  failed,
		"failed_count": len(failed),
	})
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{
		Page:    intParam(q.Get("page"), 1),
		PerPage: intParam(q.Get("per_page"), 20),
		Keyword: strings.TrimSpace(q.Get("keyword")),
		Author:  strings.TrimSpace(q.Get("author")),
		Tag:     strings.TrimSpace(q.Get("tag")),
		SortBy:  q.Get("sort_by"),
		Order:   q.Get("order"),
	}
	if v, err := strconv.Atoi(q.Get("min_score")); err == nil {
		opts.MinScore = &v
	}
	if v, err := strconv.Atoi(q.Get("max_score")); err == nil {
		opts.MaxScore = &v
	}

	articles, total, err := s.articles.ListArticles(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if articles == nil {
		articles = []models.Article{}
	}

	pages := int64(0)
	if total > 0 {
		pages = (total + int64(opts.PerPage) - 1) / int64(opts.PerPage)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    articles,
		"pagination": map[string]interface{}{
			"page":     opts.Page,
			"per_page": opts.PerPage,
			"total":    total,
			"pages":    pages,
		},
	})
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid article id")
		return
	}

	article, err := s.articles.GetArticleByHNID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if article == nil {
		writeError(w, http.StatusNotFound, "Article not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": article})
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r.URL.Query().Get("limit"), 10)

	articles, err := s.articles.TrendingArticles(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if articles == nil {
		articles = []models.Article{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    articles,
		"count":   len(articles),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.articles.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "stats": stats})
}

type wsMessage struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// handleChat runs a RAG conversation over one websocket connection. The
// connection owns its history; nothing is shared between sessions.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session := uuid.NewString()
	log.Printf("server: chat session %s started", session)

	var history []models.ChatMessage
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("server: chat session %s closed: %v", session, err)
			return
		}
		if msg.Type != "chat" || strings.TrimSpace(msg.Content) == "" {
			continue
		}

		answer, results, err := s.answerer.Answer(r.Context(), msg.Content, history)
		if err != nil {
			log.Printf("server: chat session %s: %v", session, err)
			conn.WriteJSON(wsMessage{Type: "error", Content: "Failed to generate an answer. Please try again."})
			continue
		}

		history = append(history,
			models.ChatMessage{Role: models.RoleUser, Content: msg.Content},
			models.ChatMessage{Role: models.RoleAssistant, Content: answer})
		if len(history) > maxHistoryTurns*2 {
			history = history[len(history)-maxHistoryTurns*2:]
		}

		if err := conn.WriteJSON(wsMessage{Type: "answer", Content: answer, Data: results}); err != nil {
			log.Printf("server: chat session %s write failed: %v", session, err)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("server: writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

func intParam(raw string, fallback int) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
