package relay

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/snakecast/internal/config"
)

// recordingHandler collects events and answers prompts like a minimal bot.
type recordingHandler struct {
	mu       sync.Mutex
	setups   []SetupEvent
	prompts  []PromptEvent
	dtmf     []DTMFEvent
	errs     []ErrorEvent
	closes   int
	closedCh chan *Conn
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closedCh: make(chan *Conn, 4)}
}

func (h *recordingHandler) OnSetup(_ *Conn, ev SetupEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setups = append(h.setups, ev)
}

func (h *recordingHandler) OnPrompt(conn *Conn, ev PromptEvent) {
	h.mu.Lock()
	h.prompts = append(h.prompts, ev)
	h.mu.Unlock()
	_ = conn.Send(NewTextFrame("You said: " + ev.VoicePrompt))
}

func (h *recordingHandler) OnInterrupt(*Conn, InterruptEvent) {}

func (h *recordingHandler) OnDTMF(_ *Conn, ev DTMFEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dtmf = append(h.dtmf, ev)
}

func (h *recordingHandler) OnError(_ *Conn, ev ErrorEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, ev)
}

func (h *recordingHandler) OnClose(conn *Conn) {
	h.mu.Lock()
	h.closes++
	h.mu.Unlock()
	h.closedCh <- conn
}

func testRelayConfig() config.RelayConfig {
	return config.RelayConfig{
		Path:          "/relay",
		WriteTimeout:  2 * time.Second,
		PingInterval:  50 * time.Millisecond,
		IdleTimeout:   2 * time.Second,
		MaxFrameBytes: 4096,
	}
}

func startEndpoint(t *testing.T, cfg config.RelayConfig, h Handler) (*Endpoint, *websocket.Conn) {
	t.Helper()
	ep := NewEndpoint(cfg, h, zaptest.NewLogger(t))
	srv := httptest.NewServer(ep)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + cfg.Path
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return ep, client
}

func TestEndpoint_DropsMalformedAndKeepsConnection(t *testing.T) {
	h := newRecordingHandler()
	_, client := startEndpoint(t, testRelayConfig(), h)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"setup"}`)))
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"prompt","voicePrompt":"hello"}`)))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame TextFrame
	require.NoError(t, client.ReadJSON(&frame))
	assert.Equal(t, NewTextFrame("You said: hello"), frame)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(t, h.setups, "setup without sessionId must be dropped")
	assert.Len(t, h.prompts, 1)
}

func TestEndpoint_SetupAssignsSessionAndCloseFiresOnce(t *testing.T) {
	h := newRecordingHandler()
	ep, client := startEndpoint(t, testRelayConfig(), h)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"setup","sessionId":"VX1"}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","description":"boom"}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"dtmf","digit":"9"}`)))

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.dtmf) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, ep.ActiveConnections())

	_ = client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = client.Close()

	select {
	case conn := <-h.closedCh:
		assert.Equal(t, "VX1", conn.SessionID())
		assert.False(t, conn.IsOpen())
		assert.ErrorIs(t, conn.Send(NewTextFrame("late")), ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, 1, h.closes)
	assert.Len(t, h.setups, 1)
	assert.Len(t, h.errs, 1)
}

func TestEndpoint_RepeatSetupKeepsFirstSession(t *testing.T) {
	h := newRecordingHandler()
	_, client := startEndpoint(t, testRelayConfig(), h)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"setup","sessionId":"VX1"}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"setup","sessionId":"VX2"}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"dtmf","digit":"1"}`)))

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.dtmf) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_ = client.Close()
	select {
	case conn := <-h.closedCh:
		assert.Equal(t, "VX1", conn.SessionID())
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.setups, 1)
	assert.Equal(t, "VX1", h.setups[0].SessionID)
}

func TestEndpoint_IdleTimeoutClosesSilentPeer(t *testing.T) {
	cfg := testRelayConfig()
	cfg.PingInterval = 0
	cfg.IdleTimeout = 100 * time.Millisecond
	h := newRecordingHandler()
	_, _ = startEndpoint(t, cfg, h)

	select {
	case <-h.closedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("idle connection was not closed")
	}
}

func TestEndpoint_StopClosesConnections(t *testing.T) {
	h := newRecordingHandler()
	ep, client := startEndpoint(t, testRelayConfig(), h)
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"setup","sessionId":"VX2"}`)))
	require.Eventually(t, func() bool { return ep.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	ep.Stop()
	assert.Equal(t, 0, ep.ActiveConnections())

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)
}
