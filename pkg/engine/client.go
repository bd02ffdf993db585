// Package engine provides the public Go SDK for the review engine HTTP API.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:8085"

// Client is the public SDK client for the review engine.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each request. Zero means 2 minutes.
	Timeout time.Duration
	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client
}

// NewClient creates a new review engine client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: hc,
	}, nil
}

// Message is one conversation message. Role is user, assistant or system.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Filters are the parameters the server extracted from a query.
type Filters struct {
	Title     string   `json:"title,omitempty"`
	Titles    []string `json:"titles,omitempty"`
	Author    string   `json:"author,omitempty"`
	Grade     string   `json:"grade,omitempty"`
	Subgenre  string   `json:"subgenre,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	SimilarTo string   `json:"similarTo,omitempty"`
	Keywords  string   `json:"keywords,omitempty"`
}

// Analysis is a classified query.
type Analysis struct {
	Type    string  `json:"type"`
	Filters Filters `json:"filters"`
}

// BookCard is a display card for one reviewed book.
type BookCard struct {
	Title      string   `json:"title"`
	Author     string   `json:"author"`
	Grade      string   `json:"grade,omitempty"`
	Sensuality string   `json:"sensuality,omitempty"`
	BookType   string   `json:"bookType,omitempty"`
	BookTypes  []string `json:"bookTypes,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	ASIN       string   `json:"asin,omitempty"`
	URL        string   `json:"url,omitempty"`
	CoverURL   string   `json:"coverUrl,omitempty"`
	PostID     string   `json:"postId,omitempty"`
}

// ChatRequest is one chat turn.
type ChatRequest struct {
	ConversationID string    `json:"conversationId,omitempty"`
	Messages       []Message `json:"messages"`
}

// ChatResponse is the answer to a chat turn.
type ChatResponse struct {
	ConversationID string     `json:"conversationId,omitempty"`
	Text           string     `json:"text"`
	Cards          []BookCard `json:"cards"`
	ToolCalled     bool       `json:"toolCalled"`
	QueryType      string     `json:"queryType"`
	ContextSource  string     `json:"contextSource"`
}

// ClassifyResponse is the server's classification of a query.
type ClassifyResponse struct {
	Type          string  `json:"type"`
	Filters       Filters `json:"filters"`
	UsesRetrieval bool    `json:"usesRetrieval"`
	Filter        string  `json:"filter,omitempty"`
}

// ContextRequest asks for the prepared context of a query. Set either
// Query or Messages.
type ContextRequest struct {
	ConversationID string    `json:"conversationId,omitempty"`
	Query          string    `json:"query,omitempty"`
	Messages       []Message `json:"messages,omitempty"`
}

// Bundle is assembled retrieval context.
type Bundle struct {
	Entries []string `json:"entries"`
	Summary string   `json:"summary"`
	Keys    []string `json:"keys"`
}

// ContextResponse is a prepared turn: classification, context and prompt.
type ContextResponse struct {
	ConversationID string     `json:"conversationId,omitempty"`
	Query          string     `json:"query"`
	Analysis       Analysis   `json:"analysis"`
	SystemPrompt   string     `json:"systemPrompt"`
	Bundle         *Bundle    `json:"bundle,omitempty"`
	ContextSource  string     `json:"contextSource"`
	Relaxed        bool       `json:"relaxed"`
	RetrievalError string     `json:"retrievalError,omitempty"`
	Cards          []BookCard `json:"cards"`
}

// HealthResponse represents a health or readiness probe response.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
	Error   string `json:"error,omitempty"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("review engine: %d %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("review engine: %d %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Chat sends a chat turn and waits for the full answer.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// streamEvent mirrors one NDJSON line of a streamed chat turn.
type streamEvent struct {
	Type    string        `json:"type"`
	Content string        `json:"content,omitempty"`
	Reply   *ChatResponse `json:"reply,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// ChatStream sends a chat turn and calls onToken for every streamed
// fragment. It returns the final reply.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, onToken func(string)) (*ChatResponse, error) {
	httpResp, err := c.send(ctx, http.MethodPost, "/api/v1/chat?stream=true", req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("decode stream event: %w", err)
		}
		switch ev.Type {
		case "token":
			if onToken != nil {
				onToken(ev.Content)
			}
		case "done":
			if ev.Reply == nil {
				return nil, errors.New("stream ended without a reply")
			}
			return ev.Reply, nil
		case "error":
			return nil, &APIError{StatusCode: httpResp.StatusCode, Message: ev.Error}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, errors.New("stream ended without a reply")
}

// Classify returns the server's classification of text.
func (c *Client) Classify(ctx context.Context, text string) (*ClassifyResponse, error) {
	var resp ClassifyResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/query/classify", map[string]string{"query": text}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Context returns the context and system prompt a turn would use, without
// calling the chat model.
func (c *Client) Context(ctx context.Context, req ContextRequest) (*ContextResponse, error) {
	var resp ContextResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/context", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the service liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready checks that the service's backing stores are reachable.
func (c *Client) Ready(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/ready", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// send performs the request and converts non-2xx responses to APIError.
// The caller closes the body on success.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return nil, apiErr
}
