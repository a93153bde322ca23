package commentary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/snakecast/internal/battlesnake"
	"github.com/cory-johannsen/snakecast/internal/config"
)

type fakeMessages struct {
	mu       sync.Mutex
	params   []anthropic.MessageNewParams
	deadline time.Time
	msg      *anthropic.Message
	err      error
	block    bool
}

func (f *fakeMessages) New(ctx context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.mu.Lock()
	f.params = append(f.params, body)
	f.deadline, _ = ctx.Deadline()
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.msg, f.err
}

func textMessage(parts ...string) *anthropic.Message {
	msg := &anthropic.Message{}
	for _, p := range parts {
		msg.Content = append(msg.Content, anthropic.ContentBlockUnion{Type: "text", Text: p})
	}
	return msg
}

func testCommentaryConfig() config.CommentaryConfig {
	return config.CommentaryConfig{
		APIKey:      "sk-test",
		Model:       "claude-3-5-haiku-latest",
		MaxTokens:   60,
		Temperature: 0.9,
		Timeout:     time.Second,
		Persona:     "You are a commentator.",
	}
}

func sampleState() battlesnake.GameState {
	you := battlesnake.Snake{ID: "me", Name: "caller", Health: 87, Length: 5}
	return battlesnake.GameState{
		Game: battlesnake.Game{ID: "g7"},
		Turn: 42,
		Board: battlesnake.Board{
			Width: 11, Height: 11,
			Food:   []battlesnake.Coord{{X: 1, Y: 1}, {X: 2, Y: 2}},
			Snakes: []battlesnake.Snake{you, {ID: "rival"}},
		},
		You: you,
	}
}

func TestGenerator_Generate(t *testing.T) {
	fake := &fakeMessages{msg: textMessage("  Nice move!  ")}
	g := NewGeneratorWithClient(fake, testCommentaryConfig())

	text, err := g.Generate(context.Background(), sampleState())
	require.NoError(t, err)
	assert.Equal(t, "Nice move!", text)

	require.Len(t, fake.params, 1)
	p := fake.params[0]
	assert.Equal(t, anthropic.Model("claude-3-5-haiku-latest"), p.Model)
	assert.Equal(t, int64(60), p.MaxTokens)
	require.Len(t, p.System, 1)
	assert.Equal(t, "You are a commentator.", p.System[0].Text)
	require.Len(t, p.Messages, 1)
	assert.False(t, fake.deadline.IsZero(), "generation must run under a deadline")
}

func TestGenerator_JoinsTextBlocks(t *testing.T) {
	fake := &fakeMessages{msg: textMessage("What a", "turn!")}
	g := NewGeneratorWithClient(fake, testCommentaryConfig())

	text, err := g.Generate(context.Background(), sampleState())
	require.NoError(t, err)
	assert.Equal(t, "What a turn!", text)
}

func TestGenerator_Disabled(t *testing.T) {
	cfg := testCommentaryConfig()
	cfg.APIKey = ""
	g := NewGenerator(cfg)

	assert.False(t, g.Enabled())
	_, err := g.Generate(context.Background(), sampleState())
	assert.ErrorIs(t, err, ErrGeneratorDisabled)
}

func TestNewGenerator_WithKeyIsEnabled(t *testing.T) {
	assert.True(t, NewGenerator(testCommentaryConfig()).Enabled())
}

func TestGenerator_Failures(t *testing.T) {
	cause := errors.New("connection refused")
	tests := []struct {
		name string
		fake *fakeMessages
	}{
		{"transport error", &fakeMessages{err: cause}},
		{"nil message", &fakeMessages{}},
		{"no text block", &fakeMessages{msg: &anthropic.Message{Content: []anthropic.ContentBlockUnion{{Type: "tool_use"}}}}},
		{"blank text", &fakeMessages{msg: textMessage("   ")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGeneratorWithClient(tc.fake, testCommentaryConfig())
			_, err := g.Generate(context.Background(), sampleState())
			var genErr *GenerationError
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, "g7", genErr.GameID)
		})
	}
}

func TestGenerator_ErrorWrapsCause(t *testing.T) {
	cause := errors.New("503")
	g := NewGeneratorWithClient(&fakeMessages{err: cause}, testCommentaryConfig())
	_, err := g.Generate(context.Background(), sampleState())
	assert.ErrorIs(t, err, cause)
}

func TestGenerator_Timeout(t *testing.T) {
	cfg := testCommentaryConfig()
	cfg.Timeout = 20 * time.Millisecond
	g := NewGeneratorWithClient(&fakeMessages{block: true}, cfg)

	start := time.Now()
	_, err := g.Generate(context.Background(), sampleState())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGenerator_GenerateFinal(t *testing.T) {
	fake := &fakeMessages{msg: textMessage("Victory!")}
	g := NewGeneratorWithClient(fake, testCommentaryConfig())

	text, err := g.GenerateFinal(context.Background(), sampleState(), battlesnake.OutcomeWin)
	require.NoError(t, err)
	assert.Equal(t, "Victory!", text)
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleState())
	assert.Contains(t, s, "Turn 42")
	assert.Contains(t, s, "2 snakes alive")
	assert.Contains(t, s, "health 87")
	assert.Contains(t, s, "length 5")
	assert.Contains(t, s, "2 food")
	assert.NotContains(t, s, "hazard")

	state := sampleState()
	state.Board.Hazards = []battlesnake.Coord{{X: 0, Y: 0}}
	assert.Contains(t, Summarize(state), "1 hazard cells")
}
