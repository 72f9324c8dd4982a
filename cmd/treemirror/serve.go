package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/treemirror/replica"
	"github.com/hazyhaar/treemirror/replica/mcpquic"
)

func cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	listen := fs.String("listen", "", "HTTP address (default: config replica.listen)")
	db := fs.String("db", "", "SQLite path (default: config replica.db)")
	fs.Parse(args)

	logger, cfg, err := cf.setup()
	if err != nil {
		return err
	}
	rc := cfg.Replica
	if *listen != "" {
		rc.Listen = *listen
	}
	if *db != "" {
		rc.DB = *db
	}

	r, err := replica.Open(rc.DB, replica.WithLogger(logger))
	if err != nil {
		return err
	}
	defer r.Close()

	opts := []replica.ServerOption{replica.WithServerLogger(logger)}
	if rc.MCP {
		opts = append(opts, replica.WithMCP(newMCPServer()))
	}
	srv := replica.NewServer(r, opts...)

	errc := make(chan error, 2)
	go func() { errc <- srv.ListenAndServe(ctx, rc.Listen) }()

	if rc.MCPQUIC != "" {
		tlsCfg, err := mcpquic.ServerTLSConfig(rc.TLSCert, rc.TLSKey)
		if err != nil {
			return err
		}
		qs := newMCPServer()
		r.RegisterMCP(qs)
		ln, err := mcpquic.Listen(rc.MCPQUIC, tlsCfg, qs, logger)
		if err != nil {
			return err
		}
		defer ln.Close()
		go func() {
			if err := ln.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("mcp quic: %w", err)
			}
		}()
	}

	logger.Info("treemirror: replica serving", "listen", rc.Listen, "db", rc.DB,
		"mcp", rc.MCP, "mcp_quic", rc.MCPQUIC)
	return <-errc
}

func newMCPServer() *mcp.Server {
	return mcp.NewServer(&mcp.Implementation{Name: "treemirror-replica", Version: "1.0.0"}, nil)
}
