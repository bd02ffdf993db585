package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minerva-reviews/review-engine/internal/chat"
)

type stubChat struct {
	text string
	err  error
	last chat.Request
}

func (s *stubChat) Stream(_ context.Context, req chat.Request, _ chat.TokenFunc) (*chat.Response, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &chat.Response{Text: s.text}, nil
}

func TestModelClassifier_UsesModelOutput(t *testing.T) {
	stub := &stubChat{text: `{"type":"recommendation","filters":{"tags":["enemies to lovers"],"keywords":["dragons","castles"]}}`}
	c := NewModelClassifier(stub, nil, nil)

	got := c.Classify(context.Background(), "Are there any good enemies to lovers romances?")

	assert.Equal(t, TypeRecommendation, got.Type)
	assert.Equal(t, []string{"enemies to lovers"}, got.Filters.Tags)
	assert.Equal(t, "dragons castles", got.Filters.Keywords)
	assert.True(t, stub.last.JSON)
	require.Len(t, stub.last.Messages, 1)
	assert.Equal(t, chat.RoleUser, stub.last.Messages[0].Role)
}

func TestModelClassifier_NormalizesComparison(t *testing.T) {
	stub := &stubChat{text: "Sure! {\"type\":\"comparison\",\"filters\":{\"titles\":[\"Only One\"]}}"}
	c := NewModelClassifier(stub, nil, nil)

	assert.Equal(t, General(), c.Classify(context.Background(), "compare only one"))
}

func TestModelClassifier_FallsBackToRules(t *testing.T) {
	tests := []struct {
		name string
		stub *stubChat
	}{
		{name: "chat error", stub: &stubChat{err: errors.New("connection refused")}},
		{name: "malformed json", stub: &stubChat{text: "not json"}},
		{name: "unknown type", stub: &stubChat{text: `{"type":"smalltalk","filters":{}}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewModelClassifier(tt.stub, NewRuleClassifier(DefaultRuleConfig()), nil)
			got := c.Classify(context.Background(), "Compare Pride and Prejudice with Persuasion")
			assert.Equal(t, TypeComparison, got.Type)
			assert.Equal(t, []string{"Pride and Prejudice", "Persuasion"}, got.Filters.Titles)
		})
	}
}
