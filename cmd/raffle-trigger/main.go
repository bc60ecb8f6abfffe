// Command raffle-trigger runs one cycle action against a raffle server.
// Schedulers call it as: raffle-trigger -action draw
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/openraffle/raffle/common/clients"
	"github.com/openraffle/raffle/common/logger"
)

type config struct {
	URL     string
	Action  string
	Token   string
	Timeout time.Duration
	Verbose bool
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var cfg config
	fs.StringVar(&cfg.URL, "url", envOr("RAFFLE_URL", "http://localhost:8080"), "raffle server base URL")
	fs.StringVar(&cfg.Action, "action", "", "freeze, draw, reset, status or prune (aliases accepted)")
	fs.StringVar(&cfg.Token, "token", os.Getenv("DRAW_SECRET"), "trigger secret (default $DRAW_SECRET)")
	fs.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "request timeout")
	fs.BoolVar(&cfg.Verbose, "v", false, "log requests to stderr")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if cfg.Action == "" {
		return config{}, errors.New("-action is required")
	}
	if cfg.Token == "" {
		return config{}, errors.New("-token or DRAW_SECRET is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// run triggers the action and writes the indented response body to out.
// A response status of 400 or above is an error.
func run(ctx context.Context, cfg config, out io.Writer, log *logger.Logger) error {
	client := clients.NewCycleClient(cfg.URL, cfg.Timeout, log)

	ctx = clients.WithBearerToken(ctx, cfg.Token)
	ctx = clients.WithRequestID(ctx, uuid.NewString())

	resp, err := client.Trigger(ctx, cfg.Action)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Body, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(resp.Body)
	}
	fmt.Fprintln(out, pretty.String())

	if resp.StatusCode >= 400 {
		return fmt.Errorf("action %q failed with status %d", cfg.Action, resp.StatusCode)
	}
	return nil
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "raffle-trigger: %v\n", err)
		os.Exit(2)
	}

	log := logger.Discard()
	if cfg.Verbose {
		log = logger.NewWithWriter(os.Stderr, "debug", "text")
	}

	if err := run(context.Background(), cfg, os.Stdout, log); err != nil {
		fmt.Fprintf(os.Stderr, "raffle-trigger: %v\n", err)
		os.Exit(1)
	}
}
