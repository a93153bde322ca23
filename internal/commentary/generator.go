// Package commentary turns game snapshots into short spoken lines and delivers
// them to the call linked to the game.
package commentary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cory-johannsen/snakecast/internal/battlesnake"
	"github.com/cory-johannsen/snakecast/internal/config"
)

// ErrGeneratorDisabled is returned by a Generator built without an API key.
var ErrGeneratorDisabled = errors.New("commentary: generator disabled")

// GenerationError reports a failed text generation.
type GenerationError struct {
	GameID string
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("commentary: generating for game %s: %s: %v", e.GameID, e.Reason, e.Err)
	}
	return fmt.Sprintf("commentary: generating for game %s: %s", e.GameID, e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// MessageCreator is the subset of the Anthropic messages service used here.
// *anthropic.MessageService satisfies it.
type MessageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Generator produces commentary lines with the Anthropic Messages API.
type Generator struct {
	messages    MessageCreator
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
	persona     string
}

// NewGenerator builds a Generator from configuration. Without an API key the
// generator is disabled.
//
// Postcondition: Returns a non-nil Generator.
func NewGenerator(cfg config.CommentaryConfig) *Generator {
	if cfg.APIKey == "" {
		return NewGeneratorWithClient(nil, cfg)
	}
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		// Missed lines are dropped, never retried.
		option.WithMaxRetries(0),
	)
	return NewGeneratorWithClient(&client.Messages, cfg)
}

// NewGeneratorWithClient builds a Generator around an existing message client.
// A nil client yields a disabled generator.
func NewGeneratorWithClient(messages MessageCreator, cfg config.CommentaryConfig) *Generator {
	return &Generator{
		messages:    messages,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		persona:     cfg.Persona,
	}
}

// Enabled reports whether the generator can reach the text service.
func (g *Generator) Enabled() bool {
	return g.messages != nil
}

// Generate produces a commentary line for one turn.
//
// Postcondition: Returns trimmed non-empty text, ErrGeneratorDisabled, or a
// *GenerationError.
func (g *Generator) Generate(ctx context.Context, state battlesnake.GameState) (string, error) {
	return g.complete(ctx, state.Game.ID, Summarize(state))
}

// GenerateFinal produces the closing line of a game.
func (g *Generator) GenerateFinal(ctx context.Context, state battlesnake.GameState, outcome battlesnake.Outcome) (string, error) {
	return g.complete(ctx, state.Game.ID, summarizeFinal(state, outcome))
}

func (g *Generator) complete(ctx context.Context, gameID, prompt string) (string, error) {
	if !g.Enabled() {
		return "", ErrGeneratorDisabled
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	msg, err := g.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   g.maxTokens,
		Temperature: anthropic.Float(g.temperature),
		System:      []anthropic.TextBlockParam{{Text: g.persona}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", &GenerationError{GameID: gameID, Reason: "request failed", Err: err}
	}
	if msg == nil {
		return "", &GenerationError{GameID: gameID, Reason: "empty response"}
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", &GenerationError{GameID: gameID, Reason: "no text block in response"}
	}
	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return "", &GenerationError{GameID: gameID, Reason: "empty text"}
	}
	return text, nil
}
