package relay

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/snakecast/internal/config"
)

// Handler reacts to decoded relay events. Calls for one connection are made
// sequentially from its read loop; calls for different connections may run
// concurrently.
type Handler interface {
	OnSetup(conn *Conn, ev SetupEvent)
	OnPrompt(conn *Conn, ev PromptEvent)
	OnInterrupt(conn *Conn, ev InterruptEvent)
	OnDTMF(conn *Conn, ev DTMFEvent)
	OnError(conn *Conn, ev ErrorEvent)
	// OnClose is called exactly once after the read loop ends.
	OnClose(conn *Conn)
}

// Endpoint upgrades HTTP requests on the relay path to WebSocket connections
// and feeds their frames to a Handler.
type Endpoint struct {
	cfg      config.RelayConfig
	handler  Handler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	active   map[*Conn]struct{}
	stopping bool
	wg       sync.WaitGroup
}

// NewEndpoint creates a relay endpoint.
//
// Precondition: handler and logger must be non-nil.
// Postcondition: Returns an Endpoint ready to be mounted at cfg.Path.
func NewEndpoint(cfg config.RelayConfig, handler Handler, logger *zap.Logger) *Endpoint {
	return &Endpoint{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			// The provider connects from its own infrastructure; there is no
			// browser origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		active: make(map[*Conn]struct{}),
	}
}

// Path returns the HTTP path the endpoint expects to be mounted on.
func (e *Endpoint) Path() string {
	return e.cfg.Path
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		e.logger.Debug("relay upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	conn := NewConn(uuid.NewString(), ws, e.cfg.WriteTimeout)
	if !e.track(conn) {
		_ = conn.Close()
		return
	}
	defer e.untrack(conn)

	e.serve(conn, ws, r.RemoteAddr)
}

func (e *Endpoint) serve(conn *Conn, ws *websocket.Conn, remoteAddr string) {
	start := time.Now()
	log := e.logger.With(zap.String("conn_id", conn.ID()))
	log.Info("relay connection opened", zap.String("remote_addr", remoteAddr))

	defer func() {
		_ = conn.Close()
		e.handler.OnClose(conn)
		log.Info("relay connection closed",
			zap.String("session_id", conn.SessionID()),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	if e.cfg.MaxFrameBytes > 0 {
		ws.SetReadLimit(e.cfg.MaxFrameBytes)
	}
	e.extendDeadline(ws)
	ws.SetPongHandler(func(string) error {
		e.extendDeadline(ws)
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	if e.cfg.PingInterval > 0 {
		go e.keepalive(conn, done, log)
	}

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("relay read ended", zap.Error(err))
			}
			return
		}
		e.extendDeadline(ws)

		if messageType != websocket.TextMessage {
			log.Debug("dropping non-text frame", zap.Int("message_type", messageType))
			continue
		}
		e.dispatch(conn, data, log)
	}
}

func (e *Endpoint) dispatch(conn *Conn, data []byte, log *zap.Logger) {
	ev, err := Decode(data)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			log.Debug("dropping malformed frame",
				zap.String("type", decodeErr.Type),
				zap.String("reason", decodeErr.Error()),
			)
		}
		return
	}

	switch ev := ev.(type) {
	case SetupEvent:
		// A connection carries one session for its lifetime.
		if prev := conn.SessionID(); prev != "" {
			log.Debug("ignoring repeat setup",
				zap.String("session_id", prev),
				zap.String("repeat_session_id", ev.SessionID),
			)
			return
		}
		conn.setSessionID(ev.SessionID)
		e.handler.OnSetup(conn, ev)
	case PromptEvent:
		e.handler.OnPrompt(conn, ev)
	case InterruptEvent:
		e.handler.OnInterrupt(conn, ev)
	case DTMFEvent:
		e.handler.OnDTMF(conn, ev)
	case ErrorEvent:
		e.handler.OnError(conn, ev)
	}
}

func (e *Endpoint) keepalive(conn *Conn, done <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(e.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				log.Debug("relay ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (e *Endpoint) extendDeadline(ws *websocket.Conn) {
	if e.cfg.IdleTimeout > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(e.cfg.IdleTimeout))
	}
}

func (e *Endpoint) track(conn *Conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopping {
		return false
	}
	e.active[conn] = struct{}{}
	e.wg.Add(1)
	return true
}

func (e *Endpoint) untrack(conn *Conn) {
	e.mu.Lock()
	delete(e.active, conn)
	e.mu.Unlock()
	e.wg.Done()
}

// ActiveConnections returns the number of open relay connections.
func (e *Endpoint) ActiveConnections() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Stop closes every active connection and waits for their read loops to end.
// Hijacked WebSocket connections are not closed by http.Server.Shutdown.
//
// Postcondition: No relay connection is open and new upgrades are refused.
func (e *Endpoint) Stop() {
	e.mu.Lock()
	e.stopping = true
	conns := make([]*Conn, 0, len(e.active))
	for c := range e.active {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	e.wg.Wait()
	e.logger.Info("relay endpoint stopped", zap.Int("closed", len(conns)))
}
