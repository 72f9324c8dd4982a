package filter

import (
	"errors"
	"testing"

	"github.com/hazyhaar/treemirror/dom"
	"github.com/hazyhaar/treemirror/dom/htmldoc"
)

func parse(t *testing.T, src string) *htmldoc.Document {
	t.Helper()
	doc, err := htmldoc.ParseString(src)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func byID(t *testing.T, doc *htmldoc.Document, id string) dom.Node {
	t.Helper()
	n := doc.ByID(id)
	if n == nil {
		t.Fatalf("no #%s", id)
	}
	return n
}

func TestFilter_BlacklistAndIgnore(t *testing.T) {
	doc := parse(t, `<html><body><script id="s"></script><div id="d"></div>
		<div id="i1" growing-ignore></div><div id="i2" data-growing-ignore="1"></div></body></html>`)
	f := New(nil, nil)

	if !f.Blacklisted(byID(t, doc, "s")) || f.Blacklisted(byID(t, doc, "d")) {
		t.Error("blacklist")
	}
	if !f.Ignored(byID(t, doc, "i1")) || !f.Ignored(byID(t, doc, "i2")) || f.Ignored(byID(t, doc, "d")) {
		t.Error("ignore markers")
	}
	if f.Blacklisted(nil) || f.Ignored(nil) {
		t.Error("nil node")
	}
}

func TestFilter_Noise(t *testing.T) {
	doc := parse(t, `<html><body>
		<div id="MainClock"><span id="a">1</span></div>
		<div class="x TimeLeft"><span id="b">1</span></div>
		<div data-countdown="5"><span id="c">1</span></div>
		<div><span id="d" class="daterangepicker">1</span></div>
		<div id="ticker-box"><span id="e" role="timer">1</span></div>
		<div><span id="f">1</span></div>
	</body></html>`)
	f := New(nil, nil)

	for _, id := range []string{"a", "b", "c", "d"} {
		n := byID(t, doc, id)
		if !f.Noise(n, n.Parent()) {
			t.Errorf("#%s must be noise", id)
		}
	}
	for _, id := range []string{"e", "f"} {
		n := byID(t, doc, id)
		if f.Noise(n, n.Parent()) {
			t.Errorf("#%s must not be noise by default", id)
		}
	}

	p := DefaultPolicy()
	if err := p.Extend(Extension{NoiseRules: []string{`attrs["role"] == "timer"`}}); err != nil {
		t.Fatal(err)
	}
	e := byID(t, doc, "e")
	if !New(p, nil).Noise(e, e.Parent()) {
		t.Error("rule must mark #e as noise")
	}
}

func TestFilter_Hidden(t *testing.T) {
	doc := parse(t, `<html><body>
		<div id="none" style="display:none"><p>x</p></div>
		<div id="withlink" style="display: none"><a href="/x">x</a></div>
		<div id="attr" hidden></div>
		<div id="forced" hidden style="display:block"></div>
		<div id="shown"></div>
	</body></html>`)
	f := New(nil, htmldoc.NewStaticLayout())

	for id, want := range map[string]bool{"none": true, "withlink": false, "attr": true, "forced": false, "shown": false} {
		if got := f.Hidden(byID(t, doc, id)); got != want {
			t.Errorf("#%s: got %v, want %v", id, got, want)
		}
	}
	if New(nil, nil).Hidden(byID(t, doc, "none")) {
		t.Error("no layout means rendered")
	}
}

func TestFilter_ZeroSize(t *testing.T) {
	doc := parse(t, `<html><body>
		<span id="w0" style="width:0">x</span>
		<img id="h0" height="0">
		<a id="link" style="width:0px">x</a>
		<div style="display:none"><span id="inner">x</span></div>
		<span id="ok">x</span>
	</body></html>`)
	f := New(nil, htmldoc.NewStaticLayout())

	for id, want := range map[string]bool{"w0": true, "h0": true, "link": false, "inner": true, "ok": false} {
		if got := f.ZeroSize(byID(t, doc, id)); got != want {
			t.Errorf("#%s: got %v, want %v", id, got, want)
		}
	}
}

func TestPolicy_Extend(t *testing.T) {
	p := DefaultPolicy()
	err := p.Extend(Extension{
		BlacklistTags: []string{" Aside "},
		NoiseKeywords: []string{"Ticker", " "},
		SanitizeText:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !p.BlacklistTags["aside"] || !p.SanitizeText {
		t.Error("extension not applied")
	}
	if last := p.NoiseKeywords[len(p.NoiseKeywords)-1]; last != "ticker" {
		t.Errorf("keywords: %v", p.NoiseKeywords)
	}

	if err := DefaultPolicy().Extend(Extension{NoiseRules: []string{`tag ==`}}); err == nil {
		t.Error("bad rule must fail")
	}
}

func TestCompileRule(t *testing.T) {
	if _, err := CompileRule("  "); !errors.Is(err, ErrEmptyRule) {
		t.Errorf("empty rule: got %v, want ErrEmptyRule", err)
	}
	if _, err := CompileRule(`tag`); err == nil {
		t.Error("non-boolean rule must fail")
	}
	r, err := CompileRule(`parent_id contains "ticker" && tag == "span"`)
	if err != nil {
		t.Fatal(err)
	}
	if r.String() != `parent_id contains "ticker" && tag == "span"` {
		t.Errorf("source: %q", r.String())
	}

	doc := parse(t, `<html><body><div id="ticker"><span id="s">1</span><p id="p">2</p></div></body></html>`)
	s, p := byID(t, doc, "s"), byID(t, doc, "p")
	if !r.Match(s, s.Parent()) || r.Match(p, p.Parent()) {
		t.Error("rule evaluation")
	}
	if r.Match(nil, nil) {
		t.Error("nil candidate must not match")
	}
}

func TestPolicy_NoiseClassMatch(t *testing.T) {
	p := DefaultPolicy()
	for class, want := range map[string]bool{"active": true, "ng-scope": true, "growing-x": true, "menu": false, "inactive": false} {
		if got := p.NoiseClassMatch(class); got != want {
			t.Errorf("%s: got %v, want %v", class, got, want)
		}
	}
}
