// Package handlers provides HTTP handlers for the review engine API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/minerva-reviews/review-engine/internal/chat"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ErrorDTO is the body of every error response.
type ErrorDTO struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// MessageDTO is one conversation message.
type MessageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, ErrorDTO{Error: message, Message: message, Detail: detail})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func toMessages(in []MessageDTO) ([]chat.Message, error) {
	out := make([]chat.Message, 0, len(in))
	for i, m := range in {
		switch m.Role {
		case chat.RoleUser, chat.RoleAssistant, chat.RoleSystem:
		default:
			return nil, fmt.Errorf("messages[%d]: unsupported role %q", i, m.Role)
		}
		out = append(out, chat.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}
