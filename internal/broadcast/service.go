// Package broadcast binds game-engine events to the call and commentary flow:
// a started game places a call, each move is narrated, and the end of a game
// gets a closing line before its link is dropped.
package broadcast

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/snakecast/internal/battlesnake"
	"github.com/cory-johannsen/snakecast/internal/commentary"
	"github.com/cory-johannsen/snakecast/internal/linker"
	"github.com/cory-johannsen/snakecast/internal/relay"
	"github.com/cory-johannsen/snakecast/internal/session"
	"github.com/cory-johannsen/snakecast/internal/telephony"
)

// CallInitiator places the outbound call for a game.
type CallInitiator interface {
	Initiate(ctx context.Context, gameID string) error
}

// Generator produces commentary text.
type Generator interface {
	Generate(ctx context.Context, state battlesnake.GameState) (string, error)
	GenerateFinal(ctx context.Context, state battlesnake.GameState, outcome battlesnake.Outcome) (string, error)
}

// Dispatcher delivers text to the call linked to a game.
type Dispatcher interface {
	Dispatch(gameID, text string) bool
}

// Service implements battlesnake.EventHandler and relay.Handler.
//
// Game-engine callbacks return immediately; call placement and generation run
// on tracked background goroutines.
//
// Invariant: a game that has ended is never left awaiting, even when its call
// was still being placed when the game ended.
type Service struct {
	calls      CallInitiator
	generator  Generator
	dispatcher Dispatcher
	links      *linker.Linker
	sessions   *session.Registry
	phrases    *commentary.PhraseBook
	logger     *zap.Logger

	mu     sync.Mutex
	starts map[string]*pendingStart // gameID → in-flight call placement

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type pendingStart struct {
	cancel context.CancelFunc
}

var (
	_ battlesnake.EventHandler = (*Service)(nil)
	_ relay.Handler            = (*Service)(nil)
)

// NewService creates the orchestrator.
//
// Precondition: all arguments must be non-nil.
func NewService(
	calls CallInitiator,
	generator Generator,
	dispatcher Dispatcher,
	links *linker.Linker,
	sessions *session.Registry,
	phrases *commentary.PhraseBook,
	logger *zap.Logger,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		calls:      calls,
		generator:  generator,
		dispatcher: dispatcher,
		links:      links,
		sessions:   sessions,
		phrases:    phrases,
		logger:     logger,
		starts:     make(map[string]*pendingStart),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Service) goTracked(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// GameStarted places the call for the game in the background. The placement
// is canceled if the game ends first.
func (s *Service) GameStarted(state battlesnake.GameState) {
	gameID := state.Game.ID
	ctx, cancel := context.WithCancel(s.ctx)
	start := &pendingStart{cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.starts[gameID]; ok {
		prev.cancel()
	}
	s.starts[gameID] = start
	s.mu.Unlock()

	s.goTracked(func(context.Context) {
		defer s.finishStart(gameID, start)
		if err := s.calls.Initiate(ctx, gameID); err != nil {
			s.logger.Debug("call not placed", zap.String("game_id", gameID), zap.Error(err))
		}
	})
}

func (s *Service) finishStart(gameID string, start *pendingStart) {
	s.mu.Lock()
	if s.starts[gameID] == start {
		delete(s.starts, gameID)
	}
	s.mu.Unlock()
	start.cancel()
}

// cancelStart stops an in-flight call placement for gameID, if any.
// It must run before the game's link is removed.
func (s *Service) cancelStart(gameID string) {
	s.mu.Lock()
	start, ok := s.starts[gameID]
	delete(s.starts, gameID)
	s.mu.Unlock()
	if ok {
		start.cancel()
	}
}

// MoveRequested narrates the turn in the background.
func (s *Service) MoveRequested(state battlesnake.GameState, _ battlesnake.Direction) {
	gameID := state.Game.ID
	s.goTracked(func(ctx context.Context) {
		text, err := s.generator.Generate(ctx, state)
		if err != nil {
			s.logGenerationFailure(gameID, state.Turn, err)
			return
		}
		s.dispatcher.Dispatch(gameID, text)
	})
}

// GameEnded speaks the closing line, then forgets the game.
func (s *Service) GameEnded(state battlesnake.GameState) {
	gameID := state.Game.ID
	outcome := battlesnake.OutcomeOf(state)
	s.cancelStart(gameID)
	s.goTracked(func(ctx context.Context) {
		defer s.links.Remove(gameID)

		text, err := s.generator.GenerateFinal(ctx, state, outcome)
		if err != nil {
			s.logGenerationFailure(gameID, state.Turn, err)
			text = s.phrases.FinalLine(outcome)
		}
		s.dispatcher.Dispatch(gameID, text)
	})
}

func (s *Service) logGenerationFailure(gameID string, turn int, err error) {
	if errors.Is(err, commentary.ErrGeneratorDisabled) {
		s.logger.Debug("commentary skipped: generator disabled", zap.String("game_id", gameID))
		return
	}
	s.logger.Warn("commentary generation failed",
		zap.String("game_id", gameID),
		zap.Int("turn", turn),
		zap.Error(err),
	)
}

// OnSetup registers the session and links it to a game: the game named by the
// gameId custom parameter, or the oldest awaiting game when no parameter is set.
// A named game that is not awaiting leaves the session unlinked.
func (s *Service) OnSetup(conn *relay.Conn, ev relay.SetupEvent) {
	s.sessions.Register(ev.SessionID, conn)
	log := s.logger.With(
		zap.String("session_id", ev.SessionID),
		zap.String("call_sid", ev.CallSID),
	)

	if token := ev.CustomParameters[telephony.GameIDParameter]; token != "" {
		if s.links.ResolveAwaiting(token, ev.SessionID) {
			log.Info("session linked by token", zap.String("game_id", token))
			return
		}
		log.Info("session not linked: token game not awaiting", zap.String("game_id", token))
		return
	}

	if gameID, ok := s.links.ResolveFirstAwaiting(ev.SessionID); ok {
		log.Info("session linked", zap.String("game_id", gameID))
		return
	}
	log.Info("session registered with no awaiting game")
}

// OnPrompt echoes the caller's speech.
func (s *Service) OnPrompt(conn *relay.Conn, ev relay.PromptEvent) {
	s.logger.Debug("caller prompt",
		zap.String("session_id", conn.SessionID()),
		zap.String("voice_prompt", ev.VoicePrompt),
	)
	s.reply(conn, s.phrases.Echo(ev.VoicePrompt))
}

// OnDTMF acknowledges a keypad digit.
func (s *Service) OnDTMF(conn *relay.Conn, ev relay.DTMFEvent) {
	s.logger.Debug("caller dtmf",
		zap.String("session_id", conn.SessionID()),
		zap.String("digit", ev.Digit),
	)
	s.reply(conn, s.phrases.Ack(ev.Digit))
}

// OnInterrupt logs the interruption.
func (s *Service) OnInterrupt(conn *relay.Conn, ev relay.InterruptEvent) {
	s.logger.Debug("speech interrupted",
		zap.String("session_id", conn.SessionID()),
		zap.String("utterance", ev.UtteranceUntilInterrupt),
	)
}

// OnError logs a provider-reported error; the connection stays open.
func (s *Service) OnError(conn *relay.Conn, ev relay.ErrorEvent) {
	s.logger.Warn("relay error reported",
		zap.String("session_id", conn.SessionID()),
		zap.String("description", ev.Description),
	)
}

// OnClose removes the session unless a newer connection has taken its id.
func (s *Service) OnClose(conn *relay.Conn) {
	sessionID := conn.SessionID()
	if sessionID == "" {
		return
	}
	if s.sessions.RemoveIf(sessionID, conn) {
		s.logger.Debug("session removed", zap.String("session_id", sessionID))
	}
}

func (s *Service) reply(conn *relay.Conn, text string) {
	if err := conn.Send(relay.NewTextFrame(text)); err != nil {
		s.logger.Debug("reply failed",
			zap.String("session_id", conn.SessionID()),
			zap.Error(err),
		)
	}
}

// Wait blocks until background work finishes or ctx is done, in which case
// outstanding work is canceled.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
