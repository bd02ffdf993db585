// Package chat is the boundary to the generative model: a streaming chat
// call that may answer with text, tool calls, or both.
package chat

import (
	"context"
	"encoding/json"
	"errors"
)

// Roles understood by every driver.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ErrEmptyConversation is returned when a request has no messages.
var ErrEmptyConversation = errors.New("chat: request has no messages")

// Message is one turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a function the model may call. Parameters is a JSON schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Request is a single model invocation.
type Request struct {
	System   string
	Messages []Message
	Tools    []Tool
	// JSON asks the model for a single JSON object instead of prose.
	JSON bool
}

// Response is the accumulated model output.
type Response struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// TokenFunc receives streamed text as it arrives.
type TokenFunc func(token string)

// Service invokes the generative model. onToken may be nil.
type Service interface {
	Stream(ctx context.Context, req Request, onToken TokenFunc) (*Response, error)
}

// Complete runs req without streaming.
func Complete(ctx context.Context, svc Service, req Request) (*Response, error) {
	return svc.Stream(ctx, req, nil)
}
