package server

import (
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/chatlog"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

// recordingOutbound is an Outbound that keeps every frame it accepts.
type recordingOutbound struct {
	mu     sync.Mutex
	frames []Frame
	fail   error
	closed bool
}

func (o *recordingOutbound) Send(f Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fail != nil {
		return o.fail
	}
	if o.closed {
		return ErrOutboundClosed
	}
	o.frames = append(o.frames, f)
	return nil
}

func (o *recordingOutbound) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
}

func (o *recordingOutbound) Texts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	texts := make([]string, 0, len(o.frames))
	for _, f := range o.frames {
		texts = append(texts, f.Text())
	}
	return texts
}

func (o *recordingOutbound) Frames() []Frame {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Frame(nil), o.frames...)
}

func (o *recordingOutbound) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelWarn)
}

func testConfig() Config {
	cfg := NewConfig()
	cfg.PongWait = 5 * time.Second
	cfg.PingInterval = 4 * time.Second
	cfg.WriteWait = time.Second
	return cfg
}

type testRelay struct {
	server *Server
	sink   *chatlog.BadgerSink
	http   *httptest.Server
	wsURL  string
}

// newTestRelay starts a relay over httptest with an in-memory message log.
func newTestRelay(t *testing.T, customize func(cfg *Config)) *testRelay {
	t.Helper()

	cfg := testConfig()
	if customize != nil {
		customize(&cfg)
	}

	sink, err := chatlog.OpenBadgerSink("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	srv := New(cfg, sink, testLogger())
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Shutdown(waitFor) })

	return &testRelay{
		server: srv,
		sink:   sink,
		http:   ts,
		wsURL:  "ws" + strings.TrimPrefix(ts.URL, "http"),
	}
}

// connect dials the relay and waits until the connection is registered.
func (r *testRelay) connect(t *testing.T) *websocket.Conn {
	t.Helper()

	before := r.server.Registry().Len()
	conn := dial(t, r.wsURL)
	require.Eventually(t, func() bool {
		return r.server.Registry().Len() > before
	}, waitFor, tick, "connection was never registered")
	return conn
}

// join sends a join attempt and waits until username is claimed.
func (r *testRelay) join(t *testing.T, conn *websocket.Conn, username string) {
	t.Helper()

	sendText(t, conn, "[JOIN_ATTEMPT] "+username)
	require.Eventually(t, func() bool {
		_, ok := r.server.Registry().Owner(username)
		return ok
	}, waitFor, tick, "username %q was never claimed", username)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: waitFor}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	_, data := readFrame(t, conn)
	return string(data)
}

func readFrame(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return messageType, data
}

// expectNoMessage fails if conn receives a data frame within timeout.
func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received %q", data)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

// expectClosed reads until the server closes the connection.
func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				t.Fatalf("connection was not closed by the server")
			}
			return
		}
	}
}
