package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/chatlog"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()

	client := &http.Client{Timeout: waitFor}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHealthHandler_ReportsCounts(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t, nil)

	a := relay.connect(t)
	relay.connect(t)
	relay.join(t, a, "alice")

	resp, body := get(t, relay.http.URL+"/healthz")

	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("text/plain", resp.Header.Get("Content-Type"))
	req.Equal("relaychat is running: 2 connections, 1 users\n", body)
}

func TestMessagesHandler_ReturnsRecentMessages(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t, nil)

	a := relay.connect(t)
	b := relay.connect(t)
	for _, text := range []string{"one", "two", "three"} {
		sendText(t, a, text)
		req.Equal(text, readText(t, b))
	}

	resp, body := get(t, relay.http.URL+"/messages?limit=2")

	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("application/json", resp.Header.Get("Content-Type"))
	var entries []chatlog.Entry
	req.NoError(json.Unmarshal([]byte(body), &entries))
	req.Len(entries, 2)
	req.Equal("two", entries[0].Text)
	req.Equal("three", entries[1].Text)
}

func TestMessagesHandler_EmptyHistoryIsAnEmptyList(t *testing.T) {
	relay := newTestRelay(t, nil)

	_, body := get(t, relay.http.URL+"/messages")

	require.Equal(t, "[]\n", body)
}

func TestMessagesHandler_RejectsBadLimit(t *testing.T) {
	relay := newTestRelay(t, nil)

	resp, _ := get(t, relay.http.URL+"/messages?limit=-3")

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessagesHandler_UnavailableForFileBackend(t *testing.T) {
	req := require.New(t)
	sink := chatlog.NewFileSink(chatlog.Options{Path: filepath.Join(t.TempDir(), "log.txt")})
	t.Cleanup(func() { _ = sink.Close() })
	srv := New(testConfig(), sink, testLogger())
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	resp, _ := get(t, ts.URL+"/messages")

	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestServeWS_RejectsNonGet(t *testing.T) {
	relay := newTestRelay(t, nil)

	resp, err := http.Post(relay.http.URL+"/ws", "text/plain", strings.NewReader("hi"))
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServeWS_AcceptsBothPaths(t *testing.T) {
	relay := newTestRelay(t, nil)

	dial(t, relay.wsURL)
	dial(t, relay.wsURL+"/ws")

	require.Eventually(t, func() bool { return relay.server.Registry().Len() == 2 }, waitFor, tick)
}

func TestServeWS_BlocksDisallowedOrigin(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t, func(cfg *Config) { cfg.AllowedOrigins = "http://localhost:3000" })

	headers := http.Header{}
	headers.Set("Origin", "http://evil.example")
	conn, resp, err := websocket.DefaultDialer.Dial(relay.wsURL, headers)
	if conn != nil {
		_ = conn.Close()
	}

	req.Error(err)
	req.NotNil(resp)
	req.Equal(http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestServer_ShutdownClosesEveryConnection(t *testing.T) {
	req := require.New(t)
	relay := newTestRelay(t, nil)

	conns := []*websocket.Conn{relay.connect(t), relay.connect(t), relay.connect(t)}
	relay.join(t, conns[0], "alice")

	req.NoError(relay.server.Shutdown(waitFor))

	for _, conn := range conns {
		expectClosed(t, conn)
	}
	req.Zero(relay.server.Registry().Len())
	req.Zero(relay.server.Registry().JoinedCount())

	// New sockets are refused once shutdown has begun
	_, resp, err := websocket.DefaultDialer.Dial(relay.wsURL, nil)
	req.Error(err)
	if resp != nil {
		req.Equal(http.StatusServiceUnavailable, resp.StatusCode)
		_ = resp.Body.Close()
	}
}

func TestServer_ShutdownWithoutClients(t *testing.T) {
	srv := New(testConfig(), nil, testLogger())

	start := time.Now()
	require.NoError(t, srv.Shutdown(time.Second))
	require.Less(t, time.Since(start), time.Second)
}
