package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/relaychat/internal/chatlog"
	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the relay together and blocks until SIGINT/SIGTERM. An optional
// first argument overrides RELAY_ADDR.
func run(args []string) error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Addr = args[0]
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	sink, err := chatlog.Open(cfg.SinkOptions())
	if err != nil {
		return fmt.Errorf("message log: %w", err)
	}
	defer func() {
		log.Info("Closing message log...")
		_ = sink.Close()
	}()

	srv := server.New(cfg, sink, log)
	httpServer := server.CreateServer(cfg.Addr, srv.Routes())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Relay listening", "addr", cfg.Addr, "message_log", cfg.MessageLogBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("failed to serve on %s: %w", cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	// Hijacked sockets are not tracked by http.Server, so the relay closes them itself.
	httpErr := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log)
	relayErr := srv.Shutdown(cfg.ShutdownTimeout)
	return errors.Join(httpErr, relayErr)
}
