// Package relay implements the ConversationRelay WebSocket endpoint: frame
// decoding, the per-call connection wrapper and the accept loop.
package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Inbound frame discriminators.
const (
	TypeSetup     = "setup"
	TypePrompt    = "prompt"
	TypeInterrupt = "interrupt"
	TypeDTMF      = "dtmf"
	TypeError     = "error"
)

// TypeText is the discriminator of outbound spoken-text frames.
const TypeText = "text"

// DecodeError describes why an inbound frame was rejected.
type DecodeError struct {
	Type    string
	Message string
	Field   string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Field)
}

func malformed(typ, message, field string) *DecodeError {
	return &DecodeError{Type: typ, Message: message, Field: field}
}

// SetupEvent opens a relay session for one call.
type SetupEvent struct {
	Type             string            `json:"type"`
	SessionID        string            `json:"sessionId"`
	CallSID          string            `json:"callSid,omitempty"`
	AccountSID       string            `json:"accountSid,omitempty"`
	From             string            `json:"from,omitempty"`
	To               string            `json:"to,omitempty"`
	Direction        string            `json:"direction,omitempty"`
	CallStatus       string            `json:"callStatus,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// PromptEvent carries a transcribed caller utterance.
type PromptEvent struct {
	Type        string `json:"type"`
	VoicePrompt string `json:"voicePrompt"`
	Lang        string `json:"lang,omitempty"`
	Last        bool   `json:"last,omitempty"`
}

// InterruptEvent reports that the caller talked over playback.
type InterruptEvent struct {
	Type                     string `json:"type"`
	UtteranceUntilInterrupt  string `json:"utteranceUntilInterrupt,omitempty"`
	DurationUntilInterruptMs int    `json:"durationUntilInterruptMs,omitempty"`
}

// DTMFEvent carries one keypad press.
type DTMFEvent struct {
	Type  string `json:"type"`
	Digit string `json:"digit"`
}

// ErrorEvent reports a provider-side error. The connection stays open.
type ErrorEvent struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// TextFrame is an outbound utterance for speech synthesis.
type TextFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	// Last marks the terminal chunk of the current turn.
	Last bool `json:"last"`
}

// NewTextFrame returns a single-chunk utterance frame. Utterances are never
// streamed in parts, so Last is always true.
func NewTextFrame(text string) TextFrame {
	return TextFrame{Type: TypeText, Token: text, Last: true}
}

// Decode parses one inbound frame into SetupEvent, PromptEvent,
// InterruptEvent, DTMFEvent or ErrorEvent.
//
// Postcondition: Returns a typed event, or a *DecodeError when the frame is
// not a JSON object, has no known type, or lacks a required field.
func Decode(data []byte) (any, error) {
	if !gjson.ValidBytes(data) {
		return nil, malformed("", "invalid json frame", "")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, malformed("", "frame is not an object", "")
	}
	typField := root.Get("type")
	if typField.Type != gjson.String || strings.TrimSpace(typField.Str) == "" {
		return nil, malformed("", "missing type", "type")
	}
	typ := typField.Str

	switch typ {
	case TypeSetup:
		var ev SetupEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, malformed(typ, "invalid setup frame", "")
		}
		if strings.TrimSpace(ev.SessionID) == "" {
			return nil, malformed(typ, "setup.sessionId is required", "sessionId")
		}
		return ev, nil
	case TypePrompt:
		var ev PromptEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, malformed(typ, "invalid prompt frame", "")
		}
		if strings.TrimSpace(ev.VoicePrompt) == "" {
			return nil, malformed(typ, "prompt.voicePrompt is required", "voicePrompt")
		}
		return ev, nil
	case TypeInterrupt:
		var ev InterruptEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, malformed(typ, "invalid interrupt frame", "")
		}
		return ev, nil
	case TypeDTMF:
		var ev DTMFEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, malformed(typ, "invalid dtmf frame", "")
		}
		if ev.Digit == "" {
			return nil, malformed(typ, "dtmf.digit is required", "digit")
		}
		return ev, nil
	case TypeError:
		var ev ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, malformed(typ, "invalid error frame", "")
		}
		if ev.Description == "" {
			return nil, malformed(typ, "error.description is required", "description")
		}
		return ev, nil
	default:
		return nil, malformed(typ, "unknown frame type", "type")
	}
}
