package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/minerva-reviews/review-engine/internal/observability"
)

// OllamaConfig configures the Ollama chat driver.
type OllamaConfig struct {
	Host        string // default http://localhost:11434
	Model       string // default llama3.2
	Temperature float64
	Timeout     time.Duration
}

// OllamaService streams chat completions from an Ollama server.
type OllamaService struct {
	client      *api.Client
	model       string
	temperature float64
	timeout     time.Duration
	logger      *observability.Logger
}

// NewOllamaService creates an Ollama-backed chat service.
func NewOllamaService(cfg OllamaConfig, logger *observability.Logger) (*OllamaService, error) {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	base, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}

	return &OllamaService{
		client:      api.NewClient(base, &http.Client{}),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger,
	}, nil
}

// Stream implements Service.
func (s *OllamaService) Stream(ctx context.Context, req Request, onToken TokenFunc) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyConversation
	}

	tools, err := toOllamaTools(req.Tools)
	if err != nil {
		return nil, err
	}

	messages := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, api.Message{Role: RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}

	// Ollama does not stream tool calls, so tool requests run unstreamed.
	stream := onToken != nil && len(tools) == 0
	chatReq := &api.ChatRequest{
		Model:    s.model,
		Messages: messages,
		Tools:    tools,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": s.temperature,
		},
	}
	if req.JSON {
		chatReq.Format = json.RawMessage(`"json"`)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var text strings.Builder
	resp := &Response{}
	err = s.client.Chat(ctx, chatReq, func(part api.ChatResponse) error {
		if part.Message.Content != "" {
			text.WriteString(part.Message.Content)
			if onToken != nil {
				onToken(part.Message.Content)
			}
		}
		for _, tc := range part.Message.ToolCalls {
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				Name:      tc.Function.Name,
				Arguments: map[string]any(tc.Function.Arguments),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	resp.Text = text.String()
	s.logger.Debug().
		Str("model", s.model).
		Int("chars", len(resp.Text)).
		Int("tool_calls", len(resp.ToolCalls)).
		Msg("Chat completed")
	return resp, nil
}

// toOllamaTools converts tool definitions through their JSON form, which is
// the shape Ollama's api.Tool decodes.
func toOllamaTools(tools []Tool) (api.Tools, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make(api.Tools, 0, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("encode tool %s: %w", t.Name, err)
		}
		var tool api.Tool
		if err := json.Unmarshal(raw, &tool); err != nil {
			return nil, fmt.Errorf("decode tool %s: %w", t.Name, err)
		}
		out = append(out, tool)
	}
	return out, nil
}

var _ Service = (*OllamaService)(nil)
