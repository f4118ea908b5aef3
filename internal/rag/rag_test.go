package rag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-playground/internal/chromemdb"
	"rag-playground/internal/config"
	"rag-playground/internal/llmservice"
	"rag-playground/internal/models"
	"rag-playground/internal/parser"
)

const document = "A cat sat on a mat. A dog ran in the park."

// letterEmbedding is a deterministic stand-in for a real embedding model:
// letter frequencies plus a constant so no vector is zero.
func letterEmbedding(text string) []float32 {
	v := make([]float32, 27)
	v[26] = 1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

type fakeAPI struct {
	mu        sync.Mutex
	embedded  []string
	chats     [][]models.Message
	failOn    string
	chatReply string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		f.embedded = append(f.embedded, req.Input)
		f.mu.Unlock()

		if f.failOn != "" && strings.Contains(req.Input, f.failOn) {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": letterEmbedding(req.Input)}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []models.Message `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		f.chats = append(f.chats, req.Messages)
		f.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": f.chatReply}}},
		})
	})
	return mux
}

type fixture struct {
	api   *fakeAPI
	store *chromemdb.VectorDBManager
	rag   *RAG
}

func newFixture(t *testing.T, chunkSize, chunkOverlap, limit int) *fixture {
	t.Helper()
	api := &fakeAPI{chatReply: "The cat sat on the mat."}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	llmCfg := config.Default().LLM
	llmCfg.Key = "test-key"
	llmCfg.EmbeddingURL = srv.URL + "/v1/embeddings"
	llmCfg.ChatURL = srv.URL + "/v1/chat/completions"
	llmCfg.Timeout = 2 * time.Second

	store, err := chromemdb.NewVectorDBManager("", "files", true)
	require.NoError(t, err)

	splitter, err := parser.NewSplitter(chunkSize, chunkOverlap)
	require.NoError(t, err)

	return &fixture{
		api:   api,
		store: store,
		rag:   NewRAG(store, llmservice.NewClient(&llmCfg), splitter, limit),
	}
}

func TestEmbedThenSearch(t *testing.T) {
	f := newFixture(t, 1000, 200, 1)
	ctx := context.Background()

	n, err := f.rag.Embed(ctx, document)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.store.Count())

	results, err := f.rag.Search(ctx, "pets outdoors")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, document, results[0].Content)
	assert.GreaterOrEqual(t, results[0].Distance, 0.0)

	// the query is embedded whole, never chunked
	assert.Equal(t, []string{document, "pets outdoors"}, f.api.embedded)
}

func TestSearchWithOwnTextIsNearest(t *testing.T) {
	f := newFixture(t, 40, 0, 3)
	ctx := context.Background()

	_, err := f.rag.Embed(ctx, "Zebras zigzag in the zoo.\n\nKittens knit mittens.\n\nBees buzz by the bay.")
	require.NoError(t, err)
	require.Equal(t, 3, f.store.Count())

	results, err := f.rag.Search(ctx, "Kittens knit mittens.")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Kittens knit mittens.", results[0].Content)
	assert.InDelta(t, 0, results[0].Distance, 1e-3)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
}

func TestEmbedEmptyIsNoop(t *testing.T) {
	f := newFixture(t, 100, 10, 5)

	n, err := f.rag.Embed(context.Background(), "  \n ")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.store.Count())
	assert.Empty(t, f.api.embedded)
}

func TestPrompt(t *testing.T) {
	f := newFixture(t, 1000, 200, 1)
	ctx := context.Background()

	_, err := f.rag.Embed(ctx, document)
	require.NoError(t, err)

	question := "What animal sat on the mat?"
	resp, err := f.rag.Prompt(ctx, question)
	require.NoError(t, err)

	assert.Equal(t, question, resp.Query)
	assert.Equal(t, "The cat sat on the mat.", resp.Content)
	assert.NotEmpty(t, resp.Content)

	var sent []models.SearchResult
	require.NoError(t, json.Unmarshal([]byte(resp.Source), &sent))
	require.Len(t, sent, 1)
	assert.Equal(t, document, sent[0].Content)

	require.Len(t, f.api.chats, 1)
	messages := f.api.chats[0]
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleSystem, messages[0].Role)
	assert.Equal(t, models.SystemPrompt, messages[0].Content)
	assert.Equal(t, models.RoleUser, messages[1].Role)

	user := messages[1].Content
	assert.Contains(t, user, models.SearchResultsStart+"\n"+resp.Source+"\n"+models.SearchResultsEnd)
	assert.Contains(t, user, question)
	assert.Contains(t, user, "Base your answer only on the provided context.")
	assert.True(t, strings.HasSuffix(strings.TrimRightFunc(user, unicode.IsSpace), question))
}

func TestEmbedAbortsOnAPIError(t *testing.T) {
	f := newFixture(t, 30, 0, 5)
	f.api.failOn = "FAIL"
	ctx := context.Background()

	text := "Para one is here.\n\nPara two is here.\n\nFAIL para three.\n\nPara four is here."
	n, err := f.rag.Embed(ctx, text)
	require.Error(t, err)

	var apiErr *llmservice.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "embed chunk 3/4")

	// chunks before the failure stay stored, nothing after it is attempted
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.store.Count())
	assert.Equal(t, []string{"Para one is here.", "Para two is here.", "FAIL para three."}, f.api.embedded)

	results, err := f.store.Search(ctx, letterEmbedding("x"), 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotContains(t, r.Content, "FAIL")
	}
}

func TestSearchPropagatesAPIError(t *testing.T) {
	f := newFixture(t, 100, 0, 5)
	f.api.failOn = "boom"

	_, err := f.rag.Search(context.Background(), "boom")
	var apiErr *llmservice.APIError
	assert.ErrorAs(t, err, &apiErr)

	_, err = f.rag.Prompt(context.Background(), "boom")
	assert.ErrorAs(t, err, &apiErr)
	assert.Empty(t, f.api.chats)
}

type failingStore struct {
	inserted []string
	failAt   int
}

func (s *failingStore) Insert(_ context.Context, content string, _ []float32) error {
	if len(s.inserted) == s.failAt {
		return &models.StoreError{Op: "insert", Err: errors.New("disk full")}
	}
	s.inserted = append(s.inserted, content)
	return nil
}

func (s *failingStore) Search(context.Context, []float32, int) ([]models.SearchResult, error) {
	return nil, &models.StoreError{Op: "search", Err: errors.New("disk full")}
}

type staticLLM struct{}

func (staticLLM) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

func (staticLLM) Chat(context.Context, []models.Message) (string, error) { return "unused", nil }

func TestEmbedAbortsOnStoreError(t *testing.T) {
	splitter, err := parser.NewSplitter(12, 0)
	require.NoError(t, err)
	store := &failingStore{failAt: 1}
	r := NewRAG(store, staticLLM{}, splitter, 3)

	n, err := r.Embed(context.Background(), "alpha beta\n\ngamma delt\n\nepsilon")
	require.Error(t, err)

	var se *models.StoreError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"alpha beta"}, store.inserted)

	_, err = r.Search(context.Background(), "q")
	assert.ErrorAs(t, err, &se)
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("Why?", `[{"content":"because","distance":0.5}]`)
	want := `Here are some search results for "Why?":

=== Start of search results ===
[{"content":"because","distance":0.5}]
=== End of search results ===

Base your answer only on the provided context. If the information needed is not in the context, please say so.

Why?
`
	assert.Equal(t, want, got)
}
