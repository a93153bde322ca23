// Package telephony places outbound commentary calls through Twilio and serves
// the voice webhook that points each call at the relay endpoint.
package telephony

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/cory-johannsen/snakecast/internal/config"
	"github.com/cory-johannsen/snakecast/internal/linker"
)

// VoicePath is the HTTP path of the voice webhook.
const VoicePath = "/voice"

// CallCreator is the subset of the Twilio API used to place calls.
// The Api field of *twilio.RestClient satisfies it.
type CallCreator interface {
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
}

// NewTwilioCallCreator builds a CallCreator from account credentials.
func NewTwilioCallCreator(cfg config.TelephonyConfig) CallCreator {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return client.Api
}

// CallInitiator places one outbound call per started game and marks the game
// as awaiting its relay session.
type CallInitiator struct {
	calls  CallCreator
	cfg    config.TelephonyConfig
	links  *linker.Linker
	logger *zap.Logger
}

// NewCallInitiator creates a CallInitiator. A nil calls disables it.
//
// Precondition: links and logger must be non-nil.
func NewCallInitiator(calls CallCreator, cfg config.TelephonyConfig, links *linker.Linker, logger *zap.Logger) *CallInitiator {
	return &CallInitiator{calls: calls, cfg: cfg, links: links, logger: logger}
}

// Enabled reports whether numbers, credentials and the public URL are configured.
func (c *CallInitiator) Enabled() bool {
	return c.calls != nil && c.cfg.CallsEnabled()
}

// Initiate places the call for gameID. Failures are logged and returned; the
// game is left unlinked and nothing is retried.
//
// Postcondition: On nil error with Enabled() true, gameID is awaiting in the linker.
// Postcondition: If ctx is done by the time the call is placed, gameID is not marked.
func (c *CallInitiator) Initiate(ctx context.Context, gameID string) error {
	log := c.logger.With(zap.String("game_id", gameID))
	if !c.Enabled() {
		log.Debug("outbound call skipped: telephony not configured")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("placing call for game %s: %w", gameID, err)
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(c.cfg.ToNumber)
	params.SetFrom(c.cfg.FromNumber)
	params.SetUrl(CallbackURL(c.cfg.PublicBaseURL, gameID))
	params.SetMethod("POST")

	call, err := c.calls.CreateCall(params)
	if err != nil {
		log.Warn("outbound call failed", zap.Error(err))
		return fmt.Errorf("placing call for game %s: %w", gameID, err)
	}

	sid := ""
	if call != nil && call.Sid != nil {
		sid = *call.Sid
	}
	if !c.links.MarkAwaitingUnlessDone(ctx, gameID) {
		log.Info("outbound call placed after game ended; not awaiting", zap.String("call_sid", sid))
		return fmt.Errorf("placing call for game %s: %w", gameID, ctx.Err())
	}
	log.Info("outbound call placed", zap.String("call_sid", sid))
	return nil
}

// CallbackURL returns the voice webhook URL carrying gameID as a correlation token.
func CallbackURL(baseURL, gameID string) string {
	return strings.TrimRight(baseURL, "/") + VoicePath + "?" + url.Values{"gameId": {gameID}}.Encode()
}
