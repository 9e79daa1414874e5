package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnrag/internal/models"
	"hnrag/pkg/ingest"
	"hnrag/pkg/store"
	"hnrag/server"
)

type fakeReader struct {
	articles []models.Article
	total    int64
	gotOpts  store.ListOptions
}

func (f *fakeReader) ListArticles(ctx context.Context, opts store.ListOptions) ([]models.Article, int64, error) {
	f.gotOpts = opts
	return f.articles, f.total, nil
}

func (f *fakeReader) GetArticleByHNID(ctx context.Context, hnID int64) (*models.Article, error) {
	for i := range f.articles {
		if f.articles[i].HNID == hnID {
			return &f.articles[i], nil
		}
	}
	return nil, nil
}

func (f *fakeReader) TrendingArticles(ctx context.Context, limit int) ([]models.Article, error) {
	if limit < len(f.articles) {
		return f.articles[:limit], nil
	}
	return f.articles, nil
}

func (f *fakeReader) Stats(ctx context.Context) (*models.Stats, error) {
	return &models.Stats{TotalArticles: int64(len(f.articles))}, nil
}

type fakeIngester struct {
	result   *ingest.Result
	err      error
	gotKind  string
	gotLimit int
}

func (f *fakeIngester) Run(ctx context.Context, kind string, limit int) (*ingest.Result, error) {
	f.gotKind = kind
	f.gotLimit = limit
	return f.result, f.err
}

type fakeAnswerer struct {
	answer     string
	results    []models.RetrievalResult
	err        error
	gotHistory [][]models.ChatMessage
}

func (f *fakeAnswerer) Answer(ctx context.Context, query string, history []models.ChatMessage) (string, []models.RetrievalResult, error) {
	snapshot := make([]models.ChatMessage, len(history))
	copy(snapshot, history)
	f.gotHistory = append(f.gotHistory, snapshot)
	return f.answer, f.results, f.err
}

func newTestServer(reader *fakeReader, ingester *fakeIngester, answerer *fakeAnswerer) *httptest.Server {
	if reader == nil {
		reader = &fakeReader{}
	}
	if ingester == nil {
		ingester = &fakeIngester{result: &ingest.Result{}}
	}
	if answerer == nil {
		answerer = &fakeAnswerer{}
	}
	s := server.New(server.Config{}, reader, ingester, answerer)
	return httptest.NewServer(s.Handler())
}

func getJSON(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func TestHealth(t *testing.T) {
	ts := newTestServer(nil, nil, nil)
	defer ts.Close()

	status, payload := getJSON(t, ts.URL+"/api/health")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", payload["status"])
}

func TestListArticles(t *testing.T) {
	reader := &fakeReader{
		articles: []models.Article{{HNID: 1, Title: "One"}, {HNID: 2, Title: "Two"}},
		total:    41,
	}
	ts := newTestServer(reader, nil, nil)
	defer ts.Close()

	status, payload := getJSON(t, ts.URL+"/api/articles?page=2&per_page=20&keyword=go&min_score=50")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, payload["success"])
	assert.Len(t, payload["data"], 2)

	pagination := payload["pagination"].(map[string]interface{})
	assert.Equal(t, float64(2), pagination["page"])
	assert.Equal(t, float64(41), pagination["total"])
	assert.Equal(t, float64(3), pagination["pages"])

	assert.Equal(t, 2, reader.gotOpts.Page)
	assert.Equal(t, "go", reader.gotOpts.Keyword)
	require.NotNil(t, reader.gotOpts.MinScore)
	assert.Equal(t, 50, *reader.gotOpts.MinScore)
	assert.Nil(t, reader.gotOpts.MaxScore)
}

func TestGetArticle(t *testing.T) {
	reader := &fakeReader{articles: []models.Article{{HNID: 7, Title: "Seven"}}}
	ts := newTestServer(reader, nil, nil)
	defer ts.Close()

	status, payload := getJSON(t, ts.URL+"/api/articles/7")
	assert.Equal(t, http.StatusOK, status)
	data := payload["data"].(map[string]interface{})
	assert.Equal(t, "Seven", data["title"])

	status, payload = getJSON(t, ts.URL+"/api/articles/999")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, "Article not found", payload["error"])

	status, _ = getJSON(t, ts.URL+"/api/articles/not-a-number")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTrending(t *testing.T) {
	reader := &fakeReader{articles: []models.Article{{HNID: 1}, {HNID: 2}, {HNID: 3}}}
	ts := newTestServer(reader, nil, nil)
	defer ts.Close()

	status, payload := getJSON(t, ts.URL+"/api/articles/trending?limit=2")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), payload["count"])
}

func TestStats(t *testing.T) {
	reader := &fakeReader{articles: []models.Article{{HNID: 1}}}
	ts := newTestServer(reader, nil, nil)
	defer ts.Close()

	status, payload := getJSON(t, ts.URL+"/api/articles/stats")

	assert.Equal(t, http.StatusOK, status)
	stats := payload["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["total_articles"])
}

func TestFetchEndpoint(t *testing.T) {
	ingester := &fakeIngester{result: &ingest.Result{
		Saved:      3,
		Updated:    1,
		Chunked:    2,
		FailedURLs: []string{"https://broken.example"},
	}}
	ts := newTestServer(nil, ingester, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/articles/fetch/top", "application/json",
		bytes.NewBufferString(`{"limit": 5}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, float64(3), payload["saved"])
	assert.Equal(t, float64(1), payload["failed_count"])
	assert.Equal(t, "top", ingester.gotKind)
	assert.Equal(t, 5, ingester.gotLimit)
}

func TestFetchRejectsUnknownKind(t *testing.T) {
	ingester := &fakeIngester{result: &ingest.Result{}}
	ts := newTestServer(nil, ingester, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/articles/fetch/weekly", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, ingester.gotKind, "ingester must not run for a bad kind")
}

func TestFetchError(t *testing.T) {
	ingester := &fakeIngester{err: errors.New("hn api down")}
	ts := newTestServer(nil, ingester, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/articles/fetch/top", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func dialChat(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestChatAnswer(t *testing.T) {
	answerer := &fakeAnswerer{
		answer:  "Here is what I found.",
		results: []models.RetrievalResult{{ArticleTitle: "First", Similarity: 0.9}},
	}
	ts := newTestServer(nil, nil, answerer)
	defer ts.Close()

	conn := dialChat(t, ts)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "chat", "content": "what is new in go?"}))

	var reply struct {
		Type    string                   `json:"type"`
		Content string                   `json:"content"`
		Data    []models.RetrievalResult `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&reply))

	assert.Equal(t, "answer", reply.Type)
	assert.Equal(t, "Here is what I found.", reply.Content)
	require.Len(t, reply.Data, 1)
	assert.Equal(t, "First", reply.Data[0].ArticleTitle)
}

func TestChatKeepsHistory(t *testing.T) {
	answerer := &fakeAnswerer{answer: "reply"}
	ts := newTestServer(nil, nil, answerer)
	defer ts.Close()

	conn := dialChat(t, ts)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "chat", "content": fmt.Sprintf("question %d", i)}))
		var reply map[string]interface{}
		require.NoError(t, conn.ReadJSON(&reply))
	}

	require.Len(t, answerer.gotHistory, 2)
	assert.Empty(t, answerer.gotHistory[0])
	require.Len(t, answerer.gotHistory[1], 2)
	assert.Equal(t, "question 0", answerer.gotHistory[1][0].Content)
	assert.Equal(t, "reply", answerer.gotHistory[1][1].Content)
}

func TestChatErrorMessage(t *testing.T) {
	answerer := &fakeAnswerer{err: errors.New("model offline")}
	ts := newTestServer(nil, nil, answerer)
	defer ts.Close()

	conn := dialChat(t, ts)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "chat", "content": "anything"}))

	var reply map[string]interface{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply["type"])
}
