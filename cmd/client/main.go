package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/relaychat/internal/client"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const usage = "usage: client [url] <username>\n  url defaults to " + client.DefaultURL

var errTooManyArgs = errors.New("too many arguments")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	serverURL, username, err := parseArgs(args)
	if err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}

	_ = godotenv.Load()
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "ERROR"
	}
	log := logs.GetLoggerFromString(level)

	c, err := client.New(serverURL, username, os.Stdin, os.Stdout, log)
	if err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return c.Run(ctx)
}

// parseArgs reads "[url] <username>". A lone argument is the username unless
// it is a websocket URL, in which case the username is missing.
func parseArgs(args []string) (string, string, error) {
	switch len(args) {
	case 0:
		return "", "", client.ErrMissingUsername
	case 1:
		if isWebSocketURL(args[0]) {
			return "", "", client.ErrMissingUsername
		}
		return client.DefaultURL, args[0], nil
	case 2:
		return args[0], args[1], nil
	default:
		return "", "", errTooManyArgs
	}
}

func isWebSocketURL(arg string) bool {
	u, err := url.Parse(arg)
	if err != nil {
		return false
	}
	return u.Scheme == "ws" || u.Scheme == "wss"
}
