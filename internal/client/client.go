// Package client is the terminal companion of the relay: it joins under a
// username, forwards each input line to the server and prints what the server
// relays back.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
)

const (
	DefaultURL = "ws://127.0.0.1:8080"

	closeGrace = time.Second
)

var (
	ErrMissingUsername = errors.New("a username is required")
	ErrJoinRejected    = errors.New("join rejected by server")
)

// Client holds one chat session's settings. Run may be called once.
type Client struct {
	url      string
	username string
	in       io.Reader
	out      io.Writer
	log      *slog.Logger
	dialer   *websocket.Dialer

	outMu sync.Mutex
}

func New(url, username string, in io.Reader, out io.Writer, log *slog.Logger) (*Client, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrMissingUsername
	}
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:      url,
		username: username,
		in:       in,
		out:      out,
		log:      log,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// Run connects, joins and relays until the server closes the connection, the
// input ends or ctx is cancelled. A rejected join returns ErrJoinRejected.
func (c *Client) Run(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.url, err)
	}
	defer func() { _ = conn.Close() }()
	c.log.Debug("WebSocket handshake has been successfully completed", "url", c.url)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(protocol.JoinAttempt(c.username))); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go readLines(c.in, lines, done)

	received := make(chan error, 1)
	go func() { received <- c.receive(conn) }()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return c.hangUp(conn, received)
			}
			payload := []byte(protocol.ChatLine(c.username, line))
			if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		case err := <-received:
			return err
		case <-ctx.Done():
			return c.hangUp(conn, received)
		}
	}
}

// hangUp sends a close frame and gives the server a moment to answer it.
func (c *Client) hangUp(conn *websocket.Conn, received <-chan error) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); err != nil {
		return nil
	}
	select {
	case err := <-received:
		return err
	case <-time.After(closeGrace):
		return nil
	}
}

// receive prints every relayed frame until the connection ends.
func (c *Client) receive(conn *websocket.Conn) error {
	rejected := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case rejected:
				return ErrJoinRejected
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return nil
			default:
				return fmt.Errorf("read: %w", err)
			}
		}

		text := string(data)
		if text == protocol.UsernameTakenText || text == protocol.EmptyUsernameText {
			rejected = true
		}
		c.display(text)
	}
}

func (c *Client) display(text string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintln(c.out, Render(text))
}

// Render formats one relayed message for the terminal. Server notices and
// replies are colored; chat text is printed as received.
func Render(text string) string {
	text = strings.TrimRight(text, "\r\n")
	switch {
	case protocol.IsResponse(text):
		return color.Red.Sprint(text)
	case protocol.IsNotice(text):
		return color.Cyan.Sprint(text)
	default:
		return text
	}
}

func readLines(in io.Reader, lines chan<- string, done <-chan struct{}) {
	defer close(lines)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		select {
		case lines <- line:
		case <-done:
			return
		}
	}
}
