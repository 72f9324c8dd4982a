package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/treemirror/dom/htmldoc"
)

// RenderOptions controls browser rendering.
type RenderOptions struct {
	// Remote is the devtools WebSocket URL of a running browser. Empty
	// launches a local headless one.
	Remote string
	// Timeout bounds navigation and load. Default: 30s.
	Timeout time.Duration
	// WaitStable waits until the DOM stops changing for this long after
	// load. Zero skips the wait.
	WaitStable time.Duration
	// Block lists resource types refused while loading: images, fonts,
	// media, stylesheets, or any devtools resource type.
	Block     []string
	UserAgent string
	Logger    *slog.Logger
}

func (o *RenderOptions) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Render loads url in a stealth browser page and parses the rendered DOM.
func Render(ctx context.Context, url string, opts RenderOptions) (*htmldoc.Document, error) {
	opts.defaults()
	log := opts.Logger

	controlURL := opts.Remote
	if controlURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("source: launch browser: %w", err)
		}
		defer l.Cleanup()
		controlURL = u
		log.Debug("source: launched local browser", "url", controlURL)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("source: connect browser: %w", err)
	}
	if opts.Remote == "" {
		defer b.Close()
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("source: open page: %w", err)
	}
	defer page.Close()

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			log.Warn("source: set user agent", "error", err)
		}
	}
	if len(opts.Block) > 0 {
		router := blockResources(page, opts.Block)
		defer router.Stop()
	}

	navCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("source: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		log.Warn("source: wait load", "url", url, "error", err)
	}
	if opts.WaitStable > 0 {
		if err := p.WaitStable(opts.WaitStable); err != nil {
			log.Warn("source: wait stable", "url", url, "error", err)
		}
	}

	src, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("source: read DOM: %w", err)
	}
	doc, err := htmldoc.ParseString(src, htmldoc.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("source: parse rendered %s: %w", url, err)
	}
	log.Debug("source: rendered", "url", url, "size", len(src))
	return doc, nil
}

// blockResources fails requests whose resource type is listed.
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	block := make(map[string]bool, len(types))
	for _, t := range types {
		block[resourceType(t)] = true
	}
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if block[strings.ToLower(string(h.Request.Type()))] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// resourceType maps plural config names onto devtools resource types.
func resourceType(name string) string {
	switch n := strings.ToLower(name); n {
	case "images":
		return "image"
	case "fonts":
		return "font"
	case "stylesheets":
		return "stylesheet"
	default:
		return n
	}
}
