package chatlog

import (
	"fmt"
	"io"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSink appends messages to a size-rotated text file, one message per line.
type FileSink struct {
	mu sync.Mutex
	w  io.WriteCloser
}

func NewFileSink(opts Options) *FileSink {
	path := opts.Path
	if path == "" {
		path = "message_log.txt"
	}
	return &FileSink{
		w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		},
	}
}

func (s *FileSink) Append(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.w, line(text)); err != nil {
		return fmt.Errorf("append to message log: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}
