package llmservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"rag-playground/internal/config"
	"rag-playground/internal/models"
)

// maxErrorBody caps how much of an error reply ends up in APIError.Body.
const maxErrorBody = 4 << 10

// Client talks to an OpenAI-compatible embeddings and chat completions API.
type Client struct {
	httpClient     *http.Client
	apiKey         string
	embeddingURL   string
	chatURL        string
	embeddingModel string
	chatModel      string
}

type Option func(*Client)

// WithHTTPClient replaces the default client built from the configured timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(cfg *config.LLMConfig, opts ...Option) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		apiKey:         strings.TrimPrefix(cfg.Key, "Bearer "),
		embeddingURL:   cfg.EmbeddingURL,
		chatURL:        cfg.ChatURL,
		embeddingModel: cfg.EmbeddingModel,
		chatModel:      cfg.ChatModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message *models.Message `json:"message"`
	} `json:"choices"`
}

// Embed returns the embedding vector of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingResponse
	if err := c.post(ctx, c.embeddingURL, embeddingRequest{Model: c.embeddingModel, Input: text}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		err := fmt.Errorf("%w: no embedding in response", ErrMalformedResponse)
		log.Error().Err(err).Str("url", c.embeddingURL).Msg("Error generating embedding")
		return nil, err
	}
	return resp.Data[0].Embedding, nil
}

// Chat sends the conversation and returns the first choice's reply.
func (c *Client) Chat(ctx context.Context, messages []models.Message) (string, error) {
	var resp chatResponse
	if err := c.post(ctx, c.chatURL, chatRequest{Model: c.chatModel, Messages: messages}, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		err := fmt.Errorf("%w: no choices in response", ErrMalformedResponse)
		log.Error().Err(err).Str("url", c.chatURL).Msg("Error generating chat completion")
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, url string, payload, out any) error {
	err := c.do(ctx, url, payload, out)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Error calling LLM API")
	}
	return err
}

func (c *Client) do(ctx context.Context, url string, payload, out any) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("llm: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{URL: url, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
