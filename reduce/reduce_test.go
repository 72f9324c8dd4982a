package reduce

import (
	"testing"

	"github.com/hazyhaar/treemirror/dom"
	"github.com/hazyhaar/treemirror/dom/htmldoc"
	"github.com/hazyhaar/treemirror/filter"
	"github.com/hazyhaar/treemirror/serialize"
)

func setup(t *testing.T, src string) (*htmldoc.Document, *Reducer) {
	t.Helper()
	doc, err := htmldoc.ParseString(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	f := filter.New(nil, htmldoc.NewStaticLayout())
	return doc, New(serialize.New(f), f)
}

func node(t *testing.T, doc *htmldoc.Document, id string) dom.Node {
	t.Helper()
	n := doc.ByID(id)
	if n == nil {
		t.Fatalf("no element #%s", id)
	}
	return n
}

func TestReduce_CountdownSuppressed(t *testing.T) {
	doc, r := setup(t, `<html><body>
		<div id="CountDown-box"><span id="a">5</span></div>
		<div id="timer" data-countdown="30"><span id="b">4</span></div>
		<div class="main-clock"><span id="c">3</span></div>
		<div><span id="d" class="daterangepicker open">x</span></div>
		<div><span id="e">kept</span></div>
	</body></html>`)

	var added []dom.Node
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		added = append(added, node(t, doc, id))
	}
	got := r.Reduce(Batch{Added: added})
	if len(got) != 1 {
		t.Fatalf("records: got %d, want 1: %+v", len(got), got)
	}
	if got[0].Text != "kept" {
		t.Errorf("text: got %q", got[0].Text)
	}
}

func TestReduce_TopmostRootOnly(t *testing.T) {
	doc, r := setup(t, `<html><body><div id="outer"><p id="inner">x</p><p>y</p></div></body></html>`)

	outer, inner := node(t, doc, "outer"), node(t, doc, "inner")
	got := r.SerializeAddedAndMoved([]dom.Node{inner, outer}, nil, []dom.Node{outer})
	if len(got) != 1 {
		t.Fatalf("records: got %d, want 1", len(got))
	}
	if got[0].Path != "/div#outer" {
		t.Errorf("path: got %q", got[0].Path)
	}
}

func TestReduce_IgnoredAncestor(t *testing.T) {
	doc, r := setup(t, `<html><body><div growing-ignore><section><p id="p">x</p></section></div><p id="q" data-growing-ignore>y</p></body></html>`)

	got := r.SerializeAddedAndMoved([]dom.Node{node(t, doc, "p"), node(t, doc, "q")}, nil, nil)
	if len(got) != 0 {
		t.Errorf("records: got %d, want 0", len(got))
	}
}

func TestReduce_ParentIndex(t *testing.T) {
	doc, r := setup(t, `<html><body><ul><li>a</li><p>not an item</p><li id="two"><div id="in"><p>x</p><p>y</p></div></li></ul></body></html>`)

	got := r.SerializeAddedAndMoved([]dom.Node{node(t, doc, "in")}, nil, nil)
	if len(got) != 1 {
		t.Fatalf("records: got %d", len(got))
	}
	div := got[0]
	if div.Idx != 0 {
		t.Errorf("root idx: got %d, want 0", div.Idx)
	}
	for i, c := range div.ChildNodes {
		if c.Idx != 2 {
			t.Errorf("child %d idx: got %d, want 2", i, c.Idx)
		}
	}
}

func TestReduce_DetachedSkipped(t *testing.T) {
	doc, r := setup(t, `<html><body><div id="box"><p id="p">x</p></div></body></html>`)

	p := node(t, doc, "p")
	if err := doc.Remove(node(t, doc, "box")); err != nil {
		t.Fatal(err)
	}
	if got := r.SerializeAddedAndMoved([]dom.Node{p}, nil, nil); len(got) != 0 {
		t.Errorf("records: got %d, want 0", len(got))
	}
}

func TestSerializeValueChanges_Dedup(t *testing.T) {
	doc, r := setup(t, `<html><body><span id="a" data-growing-title="A">x</span><img id="b" src="/p/b.png"></body></html>`)

	a, b := node(t, doc, "a"), node(t, doc, "b")
	got := r.SerializeValueChanges([]dom.Node{a, b, a, b, a})
	if len(got) != 2 {
		t.Fatalf("records: got %d, want 2", len(got))
	}
	if got[0].Text != "A" || got[1].Text != "b.png" {
		t.Errorf("order: got %q, %q", got[0].Text, got[1].Text)
	}
}

func TestReduce_ValueChangesNeedText(t *testing.T) {
	doc, r := setup(t, `<html><body><div id="box"><p>x</p><p>y</p></div>
		<img id="inline" src="data:image/gif;base64,R0lGOD">
		<span id="t" data-growing-title="Title">x</span></body></html>`)

	got := r.Reduce(Batch{
		Added: []dom.Node{node(t, doc, "box")},
		AttributeChanged: map[string][]dom.Node{
			filter.AttrImageSource: {node(t, doc, "inline")},
			filter.AttrTitle:       {node(t, doc, "t")},
		},
	})
	if len(got) != 2 {
		t.Fatalf("records: got %d, want 2: %+v", len(got), got)
	}
	if got[0].Path != "/div#box" {
		t.Errorf("first record must be the structural change, got %q", got[0].Path)
	}
	if got[1].Text != "Title" {
		t.Errorf("value change: got %q", got[1].Text)
	}
}

func TestBatch_Empty(t *testing.T) {
	if !(Batch{AttributeChanged: map[string][]dom.Node{"src": nil}}).Empty() {
		t.Error("batch with empty attribute lists must be empty")
	}
}
