package llmservice

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"rag-playground/internal/config"
	"rag-playground/internal/models"
)

// OllamaClient serves embeddings and chat from a local Ollama server.
type OllamaClient struct {
	embedder *embeddings.EmbedderImpl
	chat     *ollama.LLM
	timeout  time.Duration
}

func NewOllamaClient(cfg *config.LLMConfig) (*OllamaClient, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        cfg.OllamaURL,
		"chat_model":      cfg.OllamaModel,
		"embedding_model": cfg.OllamaEmbeddingModel,
	}).Msg("Creating Ollama client")

	embedLLM, err := ollama.New(
		ollama.WithServerURL(cfg.OllamaURL),
		ollama.WithModel(cfg.OllamaEmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding model: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(embedLLM)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}

	chatLLM, err := ollama.New(
		ollama.WithServerURL(cfg.OllamaURL),
		ollama.WithModel(cfg.OllamaModel),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama chat model: %w", err)
	}

	return &OllamaClient{embedder: embedder, chat: chatLLM, timeout: cfg.Timeout}, nil
}

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	embedding, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		log.Error().Err(err).Msg("Error generating embedding")
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrMalformedResponse)
	}
	return embedding, nil
}

func (c *OllamaClient) Chat(ctx context.Context, messages []models.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.chat.GenerateContent(ctx, toMessageContent(messages))
	if err != nil {
		log.Error().Err(err).Msg("Error generating chat completion")
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrMalformedResponse)
	}
	return res.Choices[0].Content, nil
}

func toMessageContent(messages []models.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case models.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case models.RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}
