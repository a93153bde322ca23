package telephony

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"

	"github.com/cory-johannsen/snakecast/internal/config"
)

// GameIDParameter names the ConversationRelay custom parameter carrying the game id.
const GameIDParameter = "gameId"

// conversationRelay is the <ConversationRelay> noun nested in <Connect>.
type conversationRelay struct {
	attrs      map[string]string
	parameters []twiml.Element
}

var _ twiml.Element = conversationRelay{}

func (c conversationRelay) GetName() string { return "ConversationRelay" }

func (c conversationRelay) GetText() string { return "" }

// GetAttr returns the attributes verbatim; empty values are left out of the document.
func (c conversationRelay) GetAttr() (map[string]string, map[string]string) {
	return c.attrs, nil
}

func (c conversationRelay) GetInnerElements() []twiml.Element { return c.parameters }

// VoiceWebhook answers Twilio's voice callback with TwiML that connects the
// call to the relay endpoint.
type VoiceWebhook struct {
	telephony config.TelephonyConfig
	relayURL  string
	greeting  string
	logger    *zap.Logger
}

// NewVoiceWebhook creates the voice webhook handler.
//
// Precondition: logger must be non-nil.
func NewVoiceWebhook(cfg config.Config, greeting string, logger *zap.Logger) *VoiceWebhook {
	return &VoiceWebhook{
		telephony: cfg.Telephony,
		relayURL:  RelayURL(cfg.Telephony.PublicBaseURL, cfg.Server.Port, cfg.Relay.Path),
		greeting:  greeting,
		logger:    logger,
	}
}

// Register mounts the webhook on mux.
func (h *VoiceWebhook) Register(mux *http.ServeMux) {
	mux.Handle("POST "+VoicePath, h)
}

// ServeHTTP writes the TwiML document.
func (h *VoiceWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get(GameIDParameter)
	h.logger.Info("voice webhook",
		zap.String("game_id", gameID),
		zap.String("call_sid", r.FormValue("CallSid")),
	)

	body, err := h.Render(gameID)
	if err != nil {
		h.logger.Error("rendering TwiML", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(body)
}

// Render builds the TwiML document, with a gameId parameter when gameID is set.
func (h *VoiceWebhook) Render(gameID string) ([]byte, error) {
	relay := conversationRelay{
		attrs: map[string]string{
			"url":                          h.relayURL,
			"language":                     h.telephony.Language,
			"ttsProvider":                  h.telephony.TTSProvider,
			"voice":                        h.telephony.Voice,
			"transcriptionProvider":        h.telephony.TranscriptionProvider,
			"speechModel":                  h.telephony.SpeechModel,
			"interruptible":                h.telephony.Interruptible,
			"dtmfDetection":                "true",
			"reportInputDuringAgentSpeech": "none",
			"welcomeGreeting":              h.greeting,
		},
	}
	if gameID != "" {
		relay.parameters = append(relay.parameters, twiml.VoiceParameter{Name: GameIDParameter, Value: gameID})
	}

	doc, err := twiml.Voice([]twiml.Element{
		twiml.VoiceConnect{InnerElements: []twiml.Element{relay}},
	})
	if err != nil {
		return nil, fmt.Errorf("rendering TwiML: %w", err)
	}
	return []byte(doc), nil
}

// RelayURL derives the relay WebSocket URL from the public base URL:
// https becomes wss and http becomes ws. Without a usable base URL it falls
// back to ws://localhost:<port><path>.
func RelayURL(publicBaseURL string, port int, path string) string {
	u, err := url.Parse(publicBaseURL)
	if publicBaseURL == "" || err != nil || u.Host == "" {
		return fmt.Sprintf("ws://localhost:%d%s", port, path)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
