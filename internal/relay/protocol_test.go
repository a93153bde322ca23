package relay

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecode_Setup(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"setup","sessionId":"VX123","callSid":"CA1","customParameters":{"gameId":"g7"}}`))
	require.NoError(t, err)
	setup, ok := ev.(SetupEvent)
	require.True(t, ok)
	assert.Equal(t, "VX123", setup.SessionID)
	assert.Equal(t, "CA1", setup.CallSID)
	assert.Equal(t, "g7", setup.CustomParameters["gameId"])
}

func TestDecode_Prompt(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"prompt","voicePrompt":"who is winning","lang":"en-US","last":true}`))
	require.NoError(t, err)
	prompt, ok := ev.(PromptEvent)
	require.True(t, ok)
	assert.Equal(t, "who is winning", prompt.VoicePrompt)
	assert.True(t, prompt.Last)
}

func TestDecode_InterruptDTMFError(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"interrupt","utteranceUntilInterrupt":"Nice","durationUntilInterruptMs":420}`))
	require.NoError(t, err)
	assert.Equal(t, 420, ev.(InterruptEvent).DurationUntilInterruptMs)

	ev, err = Decode([]byte(`{"type":"dtmf","digit":"5"}`))
	require.NoError(t, err)
	assert.Equal(t, "5", ev.(DTMFEvent).Digit)

	ev, err = Decode([]byte(`{"type":"error","description":"tts failed"}`))
	require.NoError(t, err)
	assert.Equal(t, "tts failed", ev.(ErrorEvent).Description)
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":             `{"type":`,
		"not an object":        `["setup"]`,
		"missing type":         `{"sessionId":"s1"}`,
		"non-string type":      `{"type":7}`,
		"unknown type":         `{"type":"mark"}`,
		"setup without id":     `{"type":"setup"}`,
		"prompt without text":  `{"type":"prompt","voicePrompt":"  "}`,
		"dtmf without digit":   `{"type":"dtmf"}`,
		"error without reason": `{"type":"error"}`,
		"wrong field type":     `{"type":"setup","sessionId":12}`,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			ev, err := Decode([]byte(frame))
			assert.Nil(t, ev)
			var decodeErr *DecodeError
			assert.True(t, errors.As(err, &decodeErr), "expected *DecodeError, got %v", err)
		})
	}
}

func TestNewTextFrame_Wire(t *testing.T) {
	data, err := json.Marshal(NewTextFrame("Nice move!"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"text","token":"Nice move!","last":true}`, string(data))
}

func TestProperty_DecodeNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		ev, err := Decode(data)
		if (ev == nil) == (err == nil) {
			t.Fatalf("exactly one of event and error must be set: ev=%v err=%v", ev, err)
		}
	})
}

func TestProperty_SetupRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.StringMatching(`VX[a-f0-9]{8,32}`).Draw(t, "session_id")
		data, err := json.Marshal(SetupEvent{Type: TypeSetup, SessionID: id})
		if err != nil {
			t.Fatal(err)
		}
		ev, err := Decode(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got := ev.(SetupEvent).SessionID; got != id {
			t.Fatalf("session id %q, want %q", got, id)
		}
	})
}
