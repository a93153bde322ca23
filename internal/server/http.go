package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HTTPService runs an http.Server as a lifecycle Service.
//
// Hijacked connections such as WebSockets are not closed by Shutdown; pass
// their owners' stop functions as drain hooks.
type HTTPService struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	drain           []func(ctx context.Context)
	logger          *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewHTTPService creates an HTTP service listening on addr.
//
// Precondition: handler and logger must be non-nil.
func NewHTTPService(addr string, handler http.Handler, shutdownTimeout time.Duration, logger *zap.Logger, drain ...func(ctx context.Context)) *HTTPService {
	return &HTTPService{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
		drain:           drain,
		logger:          logger,
		ready:           make(chan struct{}),
	}
}

// Start listens and serves until Stop.
func (h *HTTPService) Start() error {
	ln, err := net.Listen("tcp", h.srv.Addr)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()
	close(h.ready)

	h.logger.Info("http listening", zap.String("addr", ln.Addr().String()))
	if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once Start is listening, blocking until then
// or until ctx is done.
func (h *HTTPService) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-h.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listener.Addr(), nil
}

// Stop shuts the server down gracefully, then runs the drain hooks, all
// within the shutdown timeout.
func (h *HTTPService) Stop() {
	ctx := context.Background()
	if h.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.shutdownTimeout)
		defer cancel()
	}
	if err := h.srv.Shutdown(ctx); err != nil {
		h.logger.Warn("http shutdown", zap.Error(err))
	}
	for _, fn := range h.drain {
		fn(ctx)
	}
}
