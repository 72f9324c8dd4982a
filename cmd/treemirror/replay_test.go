package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/treemirror/dom/htmldoc"
	"github.com/hazyhaar/treemirror/mirror"
	"github.com/hazyhaar/treemirror/record"
)

const page = `<html><body>
<ul id="list"><li id="a">alpha</li><li id="b">beta</li></ul>
<div id="side"><span id="title" data-growing-title="Old">t</span></div>
</body></html>`

func TestParseScript(t *testing.T) {
	s, err := ParseScript([]byte(`
steps:
  - op: append
    target: "#list"
    html: "<li>gamma</li>"
  - op: wait
    duration: 20ms
  - op: flush
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Steps) != 3 || s.Steps[1].Duration.Milliseconds() != 20 {
		t.Fatalf("steps: %+v", s.Steps)
	}
}

func TestParseScript_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown op":     "steps:\n  - op: explode\n",
		"no target":      "steps:\n  - op: remove\n",
		"attr no name":   "steps:\n  - op: set_attr\n    target: \"#a\"\n",
		"move no parent": "steps:\n  - op: move\n    target: \"#a\"\n",
		"bad yaml":       "steps: [",
	}
	for name, src := range cases {
		if _, err := ParseScript([]byte(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestScript_Run(t *testing.T) {
	doc, err := htmldoc.ParseString(page)
	if err != nil {
		t.Fatal(err)
	}
	s := &Script{Steps: []Step{
		{Op: "append", Target: "#list", HTML: `<li id="c">gamma</li>`},
		{Op: "insert", Target: "#list", Before: "#a", HTML: `<li id="z">zero</li>`},
		{Op: "move", Target: "#b", Parent: "#side"},
		{Op: "set_attr", Target: "#title", Name: "data-growing-title", Value: "New"},
		{Op: "remove_attr", Target: "#a", Name: "id"},
		{Op: "remove", Target: "#c"},
	}}
	if err := s.Run(context.Background(), doc); err != nil {
		t.Fatal(err)
	}

	out, err := doc.Render()
	if err != nil {
		t.Fatal(err)
	}
	html := string(out)
	for _, want := range []string{
		`<ul id="list"><li id="z">zero</li><li>alpha</li></ul>`,
		`data-growing-title="New"`,
		`<li id="b">beta</li></div>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in %s", want, html)
		}
	}
	if strings.Contains(html, "gamma") {
		t.Error("removed node still rendered")
	}
}

func TestScript_RunUnknownTarget(t *testing.T) {
	doc, err := htmldoc.ParseString(page)
	if err != nil {
		t.Fatal(err)
	}
	s := &Script{Steps: []Step{{Op: "remove", Target: "#nope"}}}
	if err := s.Run(context.Background(), doc); err == nil {
		t.Fatal("expected error")
	}
	s = &Script{Steps: []Step{{Op: "remove", Target: "list"}}}
	if err := s.Run(context.Background(), doc); err == nil {
		t.Fatal("selector without # accepted")
	}
}

func TestLoadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := loadDocument(context.Background(), slog.Default(), mirror.SourceConfig{File: path})
	if err != nil {
		t.Fatal(err)
	}
	if doc.ByID("list") == nil {
		t.Error("document not parsed")
	}
	if _, err := loadDocument(context.Background(), slog.Default(), mirror.SourceConfig{}); !errors.Is(err, errNoSource) {
		t.Errorf("got %v, want errNoSource", err)
	}
}

func TestSourceFlags_Apply(t *testing.T) {
	cfg := mirror.DefaultConfig()
	cfg.Source.File = "old.html"
	sf := sourceFlags{url: "http://example.test", remote: "ws://127.0.0.1:9222", session: "ses_x"}
	sf.apply(cfg)
	if cfg.Source.File != "" || cfg.Source.URL != "http://example.test" {
		t.Errorf("source: %+v", cfg.Source)
	}
	if !cfg.Source.Render || cfg.Session != "ses_x" {
		t.Errorf("remote must imply render: %+v", cfg)
	}
}

func TestMirrorDocument_ReplayStreamsChanges(t *testing.T) {
	doc, err := htmldoc.ParseString(page)
	if err != nil {
		t.Fatal(err)
	}
	var (
		mu      sync.Mutex
		initial []record.Record
		moved   []record.Record
	)
	sink := mirror.NewCallbackSink(
		func(_ context.Context, children []record.Record) error {
			mu.Lock()
			initial = children
			mu.Unlock()
			return nil
		},
		func(_ context.Context, _, m []record.Record) error {
			mu.Lock()
			moved = append(moved, m...)
			mu.Unlock()
			return nil
		})

	script := &Script{Steps: []Step{
		{Op: "append", Target: "#list", HTML: `<li id="c">gamma</li>`},
		{Op: "set_attr", Target: "#title", Name: "data-growing-title", Value: "New"},
	}}
	cfg := mirror.DefaultConfig()
	cfg.Session = "ses_replay"
	if err := mirrorDocument(context.Background(), slog.Default(), cfg, doc, sink, script.Run); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(initial) != 2 {
		t.Fatalf("initial records: got %d, want 2", len(initial))
	}
	var texts []string
	for _, r := range moved {
		texts = append(texts, r.Text)
	}
	joined := strings.Join(texts, "|")
	if !strings.Contains(joined, "gamma") || !strings.Contains(joined, "New") {
		t.Errorf("changes: %q", joined)
	}
}
