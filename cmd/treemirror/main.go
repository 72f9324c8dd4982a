// Command treemirror mirrors an HTML document to semantic-record sinks and
// runs the replica that reconstructs it.
//
// Usage:
//
//	treemirror snapshot -file page.html            # initial snapshot to the configured sinks
//	treemirror snapshot -url https://example.com -render
//	treemirror replay -file page.html -script edits.yaml
//	treemirror serve -config treemirror.yaml       # replica HTTP (and MCP) server
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/treemirror/mirror"
)

const usage = "usage: treemirror snapshot|replay|serve [flags]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	name := os.Args[1]
	args := os.Args[2:]
	switch name {
	case "snapshot":
		err = cmdSnapshot(ctx, args)
	case "replay":
		err = cmdReplay(ctx, args)
	case "serve":
		err = cmdServe(ctx, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("treemirror: fatal", "command", name, "error", err)
		os.Exit(1)
	}
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	config   string
	logLevel string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "path to treemirror.yaml")
	fs.StringVar(&c.logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

// setup installs the JSON logger and loads the configuration, or the
// defaults when no file is given.
func (c *commonFlags) setup() (*slog.Logger, *mirror.Config, error) {
	var level slog.Level
	switch c.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if c.config == "" {
		return logger, mirror.DefaultConfig(), nil
	}
	cfg, err := mirror.LoadConfigFile(c.config)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return logger, cfg, nil
}
