// Package source acquires the document to mirror: a local file, a plain
// HTTP fetch, or a page rendered by a headless browser.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hazyhaar/treemirror/dom/htmldoc"
)

// MaxBodySize caps fetched documents.
const MaxBodySize = 10 << 20

const defaultUserAgent = "Mozilla/5.0 (compatible; treemirror/1.0)"

var (
	ErrTooLarge = errors.New("source: document exceeds size limit")
	ErrStatus   = errors.New("source: unexpected status")
)

// ParseFile reads and parses an HTML file.
func ParseFile(path string, opts ...htmldoc.Option) (*htmldoc.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open: %w", err)
	}
	defer f.Close()
	doc, err := htmldoc.Parse(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("source: parse %s: %w", path, err)
	}
	return doc, nil
}

// Page is a fetched document with its HTTP metadata.
type Page struct {
	Doc        *htmldoc.Document
	URL        string
	StatusCode int
	Size       int
	// Sufficient is false when the body looks like a script-rendered shell
	// that needs Render to be mirrored meaningfully.
	Sufficient bool
}

// Fetcher performs HTTP GETs.
type Fetcher struct {
	client  *http.Client
	ua      string
	maxSize int64
	logger  *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithTimeout sets the request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client = &http.Client{Timeout: d}
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.ua = ua
		}
	}
}

// WithMaxSize overrides MaxBodySize.
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a Fetcher with a 30s timeout.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		ua:      defaultUserAgent,
		maxSize: MaxBodySize,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs url and parses the body.
func Fetch(ctx context.Context, url string, opts ...Option) (*htmldoc.Document, error) {
	p, err := NewFetcher(opts...).Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return p.Doc, nil
}

// Fetch GETs url and parses the body. Non-2xx responses and bodies over the
// size limit are errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("source: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: %d", ErrStatus, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("source: read body: %w", err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, url)
	}

	doc, err := htmldoc.Parse(bytes.NewReader(body), htmldoc.WithLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("source: parse %s: %w", url, err)
	}
	p := &Page{
		Doc:        doc,
		URL:        url,
		StatusCode: resp.StatusCode,
		Size:       len(body),
		Sufficient: Sufficient(body),
	}
	f.logger.Debug("source: fetched",
		"url", url, "status", resp.StatusCode, "size", len(body), "sufficient", p.Sufficient)
	return p, nil
}
