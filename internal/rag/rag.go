package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"rag-playground/internal/helper"
	"rag-playground/internal/models"
	"rag-playground/internal/parser"
)

const previewLen = 50

// LLM produces embeddings and chat replies.
type LLM interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Chat(ctx context.Context, messages []models.Message) (string, error)
}

// VectorStore persists chunks and finds the nearest ones to an embedding.
type VectorStore interface {
	Insert(ctx context.Context, content string, embedding []float32) error
	Search(ctx context.Context, embedding []float32, limit int) ([]models.SearchResult, error)
}

type RAG struct {
	store    VectorStore
	llm      LLM
	splitter *parser.Splitter
	limit    int
}

func NewRAG(store VectorStore, llm LLM, splitter *parser.Splitter, limit int) *RAG {
	return &RAG{store: store, llm: llm, splitter: splitter, limit: limit}
}

// Embed chunks text and stores every chunk with its embedding, one at a time.
// It stops at the first failure; chunks stored before it stay stored. The
// returned count is the number of chunks stored.
func (r *RAG) Embed(ctx context.Context, text string) (int, error) {
	chunks, err := r.splitter.Split(text)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		log.Info().Msg("No chunks generated from content")
		return 0, nil
	}

	for i, chunk := range chunks {
		log.Info().
			Int("chunk", chunk.Index+1).
			Int("total", len(chunks)).
			Str("preview", helper.Preview(chunk.Content, previewLen)).
			Msgf("[Chunk %d/%d]", chunk.Index+1, len(chunks))

		embedding, err := r.llm.Embed(ctx, chunk.Content)
		if err != nil {
			return i, fmt.Errorf("embed chunk %d/%d: %w", chunk.Index+1, len(chunks), err)
		}
		if err := r.store.Insert(ctx, chunk.Content, embedding); err != nil {
			return i, fmt.Errorf("store chunk %d/%d: %w", chunk.Index+1, len(chunks), err)
		}
	}
	return len(chunks), nil
}

// Search embeds the whole query and returns the closest stored chunks.
func (r *RAG) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	embedding, err := r.llm.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.store.Search(ctx, embedding, r.limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	log.Debug().Int("results", len(results)).Str("query", query).Msg("Search finished")
	return results, nil
}

// Prompt answers query from the stored chunks most similar to it.
func (r *RAG) Prompt(ctx context.Context, query string) (*models.PromptResponse, error) {
	results, err := r.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	source, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encode search results: %w", err)
	}

	messages := []models.Message{
		{Role: models.RoleSystem, Content: models.SystemPrompt},
		{Role: models.RoleUser, Content: BuildPrompt(query, string(source))},
	}
	reply, err := r.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	return &models.PromptResponse{
		Query:   query,
		Source:  string(source),
		Content: reply,
	}, nil
}

// BuildPrompt wraps the serialized results and the query in the instruction
// block sent as the user message.
func BuildPrompt(query, results string) string {
	return fmt.Sprintf(models.PromptTemplate, query, results, query)
}
