package server

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/gorilla/websocket"
)

// FrameKind distinguishes text frames from binary frames on the wire.
type FrameKind int

const (
	TextFrame FrameKind = iota
	BinaryFrame
)

// Frame is one framed message exactly as it is relayed. Chat frames are never
// rewritten, so a binary frame from a sender reaches every recipient as binary.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// TextMessage builds a text frame, used for every server-generated notice.
func TextMessage(text string) Frame {
	return Frame{Kind: TextFrame, Payload: []byte(text)}
}

func (f Frame) Text() string {
	return string(f.Payload)
}

func (f Frame) messageType() int {
	if f.Kind == BinaryFrame {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// Inbound is a frame decoded once at the connection boundary: a JoinRequest
// or a ChatMessage. Nothing downstream looks at the marker again.
type Inbound interface {
	isInbound()
}

type JoinRequest struct {
	Username string
}

type ChatMessage struct {
	Frame Frame
}

func (JoinRequest) isInbound() {}
func (ChatMessage) isInbound() {}

// Decode classifies one inbound websocket message. Payloads that are not
// valid UTF-8 are rejected with ErrMalformedPayload; the caller skips them.
func Decode(messageType int, data []byte) (Inbound, error) {
	var kind FrameKind
	switch messageType {
	case websocket.TextMessage:
		kind = TextFrame
	case websocket.BinaryMessage:
		kind = BinaryFrame
	default:
		return nil, fmt.Errorf("%w: unexpected message type %d", ErrMalformedPayload, messageType)
	}

	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedPayload)
	}

	if username, ok := protocol.ParseJoin(string(data)); ok {
		return JoinRequest{Username: username}, nil
	}
	return ChatMessage{Frame: Frame{Kind: kind, Payload: data}}, nil
}

func joinNotice(username string) Frame {
	return TextMessage(protocol.JoinNotice(username))
}

func rejectionNotice(reason error) Frame {
	if errors.Is(reason, ErrEmptyUsername) {
		return TextMessage(protocol.EmptyUsernameText)
	}
	return TextMessage(protocol.UsernameTakenText)
}

func rateLimitedNotice() Frame {
	return TextMessage(protocol.RateLimitedText)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
