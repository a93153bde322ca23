package commentary

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/snakecast/internal/linker"
	"github.com/cory-johannsen/snakecast/internal/relay"
	"github.com/cory-johannsen/snakecast/internal/session"
)

// Dispatcher delivers a line of text to the call linked to a game.
type Dispatcher struct {
	links    *linker.Linker
	sessions *session.Registry
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher.
//
// Precondition: all arguments must be non-nil.
func NewDispatcher(links *linker.Linker, sessions *session.Registry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{links: links, sessions: sessions, logger: logger}
}

// Dispatch sends text to the session linked to gameID as one final text frame.
// A game with no linked session, a session that is gone or closed, and a
// failed write are all silent no-ops.
//
// Postcondition: Returns true iff a frame was written.
func (d *Dispatcher) Dispatch(gameID, text string) bool {
	if text == "" {
		return false
	}
	log := d.logger.With(zap.String("game_id", gameID))

	sessionID, ok := d.links.Resolve(gameID)
	if !ok {
		log.Debug("dispatch skipped: no linked session")
		return false
	}
	log = log.With(zap.String("session_id", sessionID))

	conn, ok := d.sessions.Lookup(sessionID)
	if !ok || !conn.IsOpen() {
		log.Debug("dispatch skipped: session not open")
		return false
	}
	if err := conn.Send(relay.NewTextFrame(text)); err != nil {
		log.Debug("dispatch send failed", zap.Error(err))
		return false
	}
	log.Debug("dispatched commentary", zap.Int("chars", len(text)))
	return true
}
