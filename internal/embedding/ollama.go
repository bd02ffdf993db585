package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaConfig configures the Ollama embedding driver.
type OllamaConfig struct {
	Host      string // default http://localhost:11434
	Model     string // default nomic-embed-text
	Dimension int    // default 768
	Timeout   time.Duration
}

// OllamaClient generates embeddings with a local Ollama server.
type OllamaClient struct {
	client    *api.Client
	model     string
	dimension int
}

// NewOllamaClient creates an Ollama embedding client.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	base, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}

	return &OllamaClient{
		client:    api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

// Embed implements Embedder.
func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.client.Embed(ctx, &api.EmbedRequest{
		Model: c.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) > 0 && len(resp.Embeddings[0]) > 0 {
		c.dimension = len(resp.Embeddings[0])
	}
	return resp.Embeddings, nil
}

// EmbedSingle implements Embedder.
func (c *OllamaClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, c, text)
}

// Model returns the model being used.
func (c *OllamaClient) Model() string {
	return c.model
}

// Dimension returns the embedding dimension.
func (c *OllamaClient) Dimension() int {
	return c.dimension
}
