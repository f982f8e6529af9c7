// Package chatlog provides the append-only message log the relay writes every
// chat message to before broadcasting it.
package chatlog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_sink.go -package=mocks github.com/Tyrowin/relaychat/internal/chatlog Sink

// Sink is an append-only text destination. Implementations must be safe for
// concurrent use; every connection's handling task appends through the same Sink.
type Sink interface {
	Append(text string) error
	Close() error
}

// Reader is implemented by sinks that can return what they stored.
type Reader interface {
	Recent(limit int) ([]Entry, error)
}

// Entry is one stored message.
type Entry struct {
	ID   string    `json:"id"`
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

var ErrUnknownBackend = errors.New("unknown message log backend")

// Options selects and configures a Sink backend.
type Options struct {
	Backend    string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Open builds the Sink described by opts.
func Open(opts Options) (Sink, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileSink(opts), nil
	case BackendBadger:
		return OpenBadgerSink(opts.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

func line(text string) string {
	if strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}
