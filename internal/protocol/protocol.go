// Package protocol holds the text markers shared by the relay server and its
// client. The whole join protocol is a single marked text frame; server notices
// are ordinary displayable text with a recognisable prefix.
package protocol

import (
	"fmt"
	"strings"
)

const (
	// JoinTag identifies a join attempt wherever it opens a frame.
	JoinTag = "[JOIN_ATTEMPT]"

	// JoinMarker is what clients send before the requested username.
	JoinMarker = JoinTag + " "

	// NoticePrefix marks server announcements such as join notices.
	NoticePrefix = "[SERVER]"

	// ResponsePrefix marks server replies addressed to a single connection.
	ResponsePrefix = "[SERVER_RESPONSE]"
)

const (
	UsernameTakenText = ResponsePrefix + " That username is already taken."
	EmptyUsernameText = ResponsePrefix + " Username must not be empty."
	RateLimitedText   = ResponsePrefix + " Slow down: messages are being dropped."
)

// JoinAttempt builds the join frame text for username.
func JoinAttempt(username string) string {
	return JoinMarker + username
}

// ParseJoin reports whether text is a join attempt and returns the requested
// username with surrounding whitespace removed. A bare tag is a join with a
// blank username.
func ParseJoin(text string) (string, bool) {
	rest, ok := strings.CutPrefix(text, JoinTag)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// JoinNotice is broadcast once a username has been admitted.
func JoinNotice(username string) string {
	return fmt.Sprintf("%s: User %s has joined.", NoticePrefix, username)
}

// ChatLine is what the client sends for one line of user input.
func ChatLine(username, line string) string {
	return username + ": " + line
}

// IsResponse reports whether text is a server reply to this connection.
func IsResponse(text string) bool {
	return strings.HasPrefix(text, ResponsePrefix)
}

// IsNotice reports whether text is a server announcement. Responses are not notices.
func IsNotice(text string) bool {
	return strings.HasPrefix(text, NoticePrefix) && !IsResponse(text)
}
