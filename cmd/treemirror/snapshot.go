package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"time"

	"github.com/hazyhaar/treemirror/dom/htmldoc"
	"github.com/hazyhaar/treemirror/idgen"
	"github.com/hazyhaar/treemirror/mirror"
	"github.com/hazyhaar/treemirror/source"
	"github.com/hazyhaar/treemirror/watch"
)

var errNoSource = errors.New("no source: set -file or -url")

// sourceFlags override the source section of the configuration.
type sourceFlags struct {
	file    string
	url     string
	render  bool
	remote  string
	session string
}

func (s *sourceFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.file, "file", "", "mirror a local HTML file")
	fs.StringVar(&s.url, "url", "", "mirror a page fetched over HTTP")
	fs.BoolVar(&s.render, "render", false, "load -url through a headless browser")
	fs.StringVar(&s.remote, "remote", "", "devtools URL of a running browser (implies -render)")
	fs.StringVar(&s.session, "session", "", "session id stamped on patches (default: config or generated)")
}

func (s *sourceFlags) apply(cfg *mirror.Config) {
	if s.file != "" {
		cfg.Source.File, cfg.Source.URL = s.file, ""
	}
	if s.url != "" {
		cfg.Source.URL, cfg.Source.File = s.url, ""
	}
	if s.render {
		cfg.Source.Render = true
	}
	if s.remote != "" {
		cfg.Source.Remote = s.remote
		cfg.Source.Render = true
	}
	if s.session != "" {
		cfg.Session = s.session
	}
}

func cmdSnapshot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	var cf commonFlags
	var sf sourceFlags
	cf.register(fs)
	sf.register(fs)
	follow := fs.Bool("follow", false, "re-send the snapshot each time -file changes")
	poll := fs.Duration("poll", time.Second, "-follow polling interval")
	fs.Parse(args)

	logger, cfg, err := cf.setup()
	if err != nil {
		return err
	}
	sf.apply(cfg)
	if *follow && cfg.Source.File == "" {
		return errors.New("snapshot: -follow needs a file source")
	}

	router, err := buildRouter(cfg, logger)
	if err != nil {
		return err
	}
	defer router.Close()

	once := func() error {
		doc, err := loadDocument(ctx, logger, cfg.Source)
		if err != nil {
			return err
		}
		return mirrorDocument(ctx, logger, cfg, doc, router, nil)
	}
	if err := once(); err != nil || !*follow {
		return err
	}

	w := watch.New(watch.FileVersion(cfg.Source.File), watch.Options{
		Interval: *poll,
		Debounce: *poll / 2,
		Logger:   logger,
	})
	logger.Info("treemirror: following", "file", cfg.Source.File)
	w.OnChange(ctx, once)
	return nil
}

// loadDocument acquires the configured source.
func loadDocument(ctx context.Context, logger *slog.Logger, sc mirror.SourceConfig) (*htmldoc.Document, error) {
	switch {
	case sc.File != "":
		return source.ParseFile(sc.File, htmldoc.WithLogger(logger))
	case sc.URL != "" && sc.Render:
		return source.Render(ctx, sc.URL, source.RenderOptions{
			Remote:     sc.Remote,
			Timeout:    sc.Timeout,
			WaitStable: sc.WaitStable,
			Block:      sc.Block,
			UserAgent:  sc.UserAgent,
			Logger:     logger,
		})
	case sc.URL != "":
		f := source.NewFetcher(
			source.WithTimeout(sc.Timeout),
			source.WithUserAgent(sc.UserAgent),
			source.WithLogger(logger))
		page, err := f.Fetch(ctx, sc.URL)
		if err != nil {
			return nil, err
		}
		if !page.Sufficient {
			logger.Warn("treemirror: page looks script-rendered, try -render", "url", sc.URL)
		}
		return page.Doc, nil
	}
	return nil, errNoSource
}

// buildRouter wires the configured sinks, generating a session id when the
// configuration has none.
func buildRouter(cfg *mirror.Config, logger *slog.Logger) (*mirror.Router, error) {
	if cfg.Session == "" {
		cfg.Session = idgen.Session()
	}
	return mirror.BuildSinks(cfg, logger)
}

// mirrorDocument runs a mirror client over the body of doc until drive
// returns, then waits for the pending deliveries. A nil drive only delivers
// the initial snapshot. The sink is left open.
func mirrorDocument(ctx context.Context, logger *slog.Logger, cfg *mirror.Config, doc *htmldoc.Document, sink mirror.Sink, drive func(context.Context, *htmldoc.Document) error) error {
	policy, err := mirror.BuildPolicy(cfg.Policy)
	if err != nil {
		return err
	}
	opts := append(mirror.Options(cfg, policy),
		mirror.WithLayout(htmldoc.NewStaticLayout()),
		mirror.WithReadLock(doc.ReadLocker()),
		mirror.WithContext(ctx),
		mirror.WithLogger(logger),
		// A one-shot run must not drop what it already scheduled.
		mirror.WithCancelOnDisconnect(false),
	)
	c, err := mirror.New(doc.Body(), doc, sink, opts...)
	if err != nil {
		return err
	}

	var driveErr error
	if drive != nil {
		driveErr = drive(ctx, doc)
		doc.Flush()
	}
	c.Disconnect()
	select {
	case <-c.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	logger.Info("treemirror: done", "session", cfg.Session)
	return driveErr
}
