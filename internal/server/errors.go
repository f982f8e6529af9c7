package server

import "errors"

// None of these errors is allowed to escape a single connection's handling
// task or a single broadcast attempt.
var (
	ErrDuplicateID      = errors.New("connection id already registered")
	ErrUnknownConn      = errors.New("connection is not registered")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrEmptyUsername    = errors.New("username is empty")
	ErrOutboundClosed   = errors.New("outbound queue closed")
	ErrSlowConsumer     = errors.New("outbound queue full")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrLogSink          = errors.New("message log append failed")
	ErrTransport        = errors.New("transport failure")
)
