// Package server implements the relay's connection registry and broadcast core
// together with the HTTP and WebSocket plumbing around it.
//
// The implementation is organized into specialized files for configuration,
// the registry, broadcasting, per-connection sessions, routing, and HTTP
// handlers to keep the codebase maintainable and testable as the project grows.
package server
