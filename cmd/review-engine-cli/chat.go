package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/minerva-reviews/review-engine/internal/assistant"
	"github.com/minerva-reviews/review-engine/internal/cards"
	"github.com/minerva-reviews/review-engine/internal/chat"
)

func newContextCmd() *cobra.Command {
	var (
		conversationID string
		showPrompt     bool
	)

	cmd := &cobra.Command{
		Use:   "context <question>",
		Short: "Show the context and prompt a question would produce",
		Long: `Context classifies the question, runs retrieval (with relaxation and the
score floor) and prints the assembled context bundle. No chat model is called.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			turn, err := a.Assistant.Prepare(ctx, conversationID, userMessage(args))
			if err != nil {
				return err
			}
			if outputJSON {
				return ui.JSON(turn)
			}
			printTurn(turn, showPrompt)
			return nil
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id for the context cache")
	cmd.Flags().BoolVar(&showPrompt, "prompt", false, "print the full system prompt")
	return cmd
}

func newAskCmd() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if conversationID == "" {
				conversationID = uuid.NewString()
			}

			start := time.Now()
			spin := ui.Spinner("Thinking...")
			first := true
			onToken := func(tok string) {
				if outputJSON {
					return
				}
				if first {
					spin.Stop()
					ui.Newline()
					first = false
				}
				fmt.Fprint(cmd.OutOrStdout(), tok)
			}

			reply, err := a.Assistant.Respond(ctx, conversationID, userMessage(args), onToken)
			spin.Stop()
			if err != nil {
				return err
			}

			if outputJSON {
				return ui.JSON(map[string]any{
					"conversationId": conversationID,
					"text":           reply.Text,
					"cards":          reply.Cards,
					"toolCalled":     reply.ToolCalled,
					"turn":           reply.Turn,
				})
			}
			if first && reply.Text != "" {
				ui.Newline()
				ui.Text(reply.Text)
			} else {
				ui.Newline()
			}
			printCards(reply.Cards)
			ui.Newline()
			ui.Info("conversation %s · %s · %s", conversationID, reply.Turn.Analysis.Type, FormatDuration(time.Since(start)))
			return nil
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id (default: new)")
	return cmd
}

func userMessage(args []string) []chat.Message {
	return []chat.Message{{Role: chat.RoleUser, Content: strings.Join(args, " ")}}
}

func printTurn(turn *assistant.Turn, showPrompt bool) {
	ui.Section("Query")
	ui.KeyValue("Type", turn.Analysis.Type)
	ui.KeyValue("Context source", turn.ContextSource)
	if turn.Relaxed {
		ui.Warning("Filters were relaxed: nothing matched the classified filters")
	}
	if turn.RetrievalError != "" {
		ui.Error("Retrieval failed: %s", turn.RetrievalError)
	}

	ui.Section("Context")
	if turn.Bundle.Empty() {
		ui.Info("No context")
	} else {
		ui.Text(turn.Bundle.Text())
	}

	printCards(turn.Cards)

	if showPrompt {
		ui.Section("System prompt")
		ui.Text(turn.SystemPrompt)
	}
}

func printCards(cs []cards.Card) {
	if len(cs) == 0 {
		return
	}
	ui.Section("Book cards")
	rows := make([][]string, 0, len(cs))
	for _, c := range cs {
		rows = append(rows, []string{c.Title, c.Author, c.Grade, strings.Join(c.BookTypes, ", ")})
	}
	ui.Table([]string{"Title", "Author", "Grade", "Types"}, rows)
}
