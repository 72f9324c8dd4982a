package htmldoc

import (
	"strings"
	"testing"

	"github.com/hazyhaar/treemirror/dom"
)

type capture struct {
	calls [][]dom.Summary
}

func observe(t *testing.T, d *Document, queries ...dom.Query) (*capture, dom.Subscription) {
	t.Helper()
	c := &capture{}
	sub, err := d.Observe(queries, func(s []dom.Summary) { c.calls = append(c.calls, s) })
	if err != nil {
		t.Fatal(err)
	}
	return c, sub
}

func mustParse(t *testing.T, src string) *Document {
	t.Helper()
	d, err := ParseString(src)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func tags(nodes []dom.Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.TagName())
	}
	return out
}

func TestFeed_AddedIncludesDescendants(t *testing.T) {
	d := mustParse(t, `<html><body><ul id="l"><li>a</li></ul></body></html>`)
	c, _ := observe(t, d, dom.Query{Element: "*"})

	added, err := d.AppendHTML(d.ByID("l"), `<li><b>x</b></li>`)
	if err != nil || len(added) != 1 {
		t.Fatalf("append: %v, %v", added, err)
	}
	if n := d.Flush(); n != 1 {
		t.Fatalf("notified: %d", n)
	}
	got := tags(c.calls[0][0].Added)
	if len(got) != 2 || got[0] != "li" || got[1] != "b" {
		t.Errorf("added: %v", got)
	}
}

func TestFeed_MoveClassification(t *testing.T) {
	d := mustParse(t, `<html><body>
		<ul id="a"><li id="a1">1</li><li id="a2">2</li></ul>
		<ul id="b"><li id="b1">3</li></ul>
		<p id="gone">x</p>
	</body></html>`)
	c, _ := observe(t, d, dom.Query{Element: "*"})

	// a2 before a1: reorder within the same parent.
	if err := d.Move(d.ByID("a2"), d.ByID("a"), d.ByID("a1")); err != nil {
		t.Fatal(err)
	}
	if err := d.Move(d.ByID("b1"), d.ByID("a"), nil); err != nil {
		t.Fatal(err)
	}
	if err := d.Remove(d.ByID("gone")); err != nil {
		t.Fatal(err)
	}
	d.Flush()

	s := c.calls[0][0]
	if len(s.Reordered) != 1 || s.Reordered[0] != d.ByID("a2") {
		t.Errorf("reordered: %v", s.Reordered)
	}
	if len(s.Reparented) != 1 || dom.AttrValue(s.Reparented[0], "id") != "b1" {
		t.Errorf("reparented: %v", s.Reparented)
	}
	if len(s.Removed) != 1 || dom.AttrValue(s.Removed[0], "id") != "gone" {
		t.Errorf("removed: %v", s.Removed)
	}
}

func TestFeed_MoveBackIsNoChange(t *testing.T) {
	d := mustParse(t, `<html><body><ul id="a"><li id="a1">1</li><li id="a2">2</li></ul></body></html>`)
	c, _ := observe(t, d, dom.Query{Element: "*"})

	d.Move(d.ByID("a1"), d.ByID("a"), nil)
	d.Move(d.ByID("a1"), d.ByID("a"), d.ByID("a2"))
	if n := d.Flush(); n != 0 || len(c.calls) != 0 {
		t.Errorf("net-zero move delivered: %+v", c.calls)
	}
}

func TestFeed_Attributes(t *testing.T) {
	d := mustParse(t, `<html><body><img id="i" src="/a.png"><span id="s">x</span></body></html>`)
	c, _ := observe(t, d,
		dom.Query{Element: "*"},
		dom.Query{Element: "*", Attributes: []string{"src", "data-growing-title"}})

	if err := d.SetAttr(d.ByID("i"), "src", "/a.png"); err != nil {
		t.Fatal(err)
	}
	if n := d.Flush(); n != 0 {
		t.Fatalf("unchanged value notified %d", n)
	}

	d.SetAttr(d.ByID("i"), "src", "/b.png")
	d.SetAttr(d.ByID("i"), "src", "/c.png")
	d.SetAttr(d.ByID("s"), "data-growing-title", "T")
	d.SetAttr(d.ByID("s"), "class", "untracked")
	d.Flush()

	if len(c.calls) != 1 {
		t.Fatalf("calls: %d", len(c.calls))
	}
	structure, attrs := c.calls[0][0], c.calls[0][1]
	if !structure.Empty() {
		t.Errorf("structure summary: %+v", structure)
	}
	if len(attrs.AttributeChanged["src"]) != 1 || len(attrs.AttributeChanged["data-growing-title"]) != 1 {
		t.Errorf("attributes: %+v", attrs.AttributeChanged)
	}
	if _, ok := attrs.AttributeChanged["class"]; ok {
		t.Error("unobserved attribute reported")
	}

	d.RemoveAttr(d.ByID("i"), "src")
	d.Flush()
	if len(c.calls) != 2 || len(c.calls[1][1].AttributeChanged["src"]) != 1 {
		t.Errorf("removal not reported: %+v", c.calls)
	}
}

func TestFeed_EditsOnNewNodesFoldIntoAdd(t *testing.T) {
	d := mustParse(t, `<html><body><div id="box"></div></body></html>`)
	c, _ := observe(t, d, dom.Query{Element: "*"}, dom.Query{Element: "*", Attributes: []string{"src"}})

	added, _ := d.AppendHTML(d.ByID("box"), `<img src="/x.png">`)
	d.SetAttr(added[0], "src", "/y.png")
	d.Flush()

	if got := c.calls[0][0].Added; len(got) != 1 {
		t.Errorf("added: %v", got)
	}
	if len(c.calls[0][1].AttributeChanged["src"]) != 0 {
		t.Error("attribute change on a new node must not be reported")
	}
}

func TestFeed_AddedThenRemoved(t *testing.T) {
	d := mustParse(t, `<html><body><div id="box"></div></body></html>`)
	c, _ := observe(t, d, dom.Query{Element: "*"})

	added, _ := d.AppendHTML(d.ByID("box"), `<p>tmp</p>`)
	d.Remove(added[0])
	d.Flush()
	if len(c.calls) != 0 {
		t.Errorf("transient node delivered: %+v", c.calls)
	}
}

func TestFeed_QueryFilterAndDisconnect(t *testing.T) {
	d := mustParse(t, `<html><body><div id="box"></div></body></html>`)
	onlyP, _ := observe(t, d, dom.Query{Element: "p"})
	all, sub := observe(t, d, dom.Query{Element: "*"})

	d.AppendHTML(d.ByID("box"), `<span>x</span>`)
	if n := d.Flush(); n != 1 {
		t.Errorf("notified: %d, want 1", n)
	}
	if len(onlyP.calls) != 0 || len(all.calls) != 1 {
		t.Errorf("query filtering: p=%d all=%d", len(onlyP.calls), len(all.calls))
	}

	sub.Disconnect()
	sub.Disconnect()
	d.AppendHTML(d.ByID("box"), `<p>y</p>`)
	d.Flush()
	if len(all.calls) != 1 || len(onlyP.calls) != 1 {
		t.Errorf("after disconnect: p=%d all=%d", len(onlyP.calls), len(all.calls))
	}
}

func TestDocument_EditErrors(t *testing.T) {
	d := mustParse(t, `<html><body><div id="a"><p id="p">x</p></div><div id="b"></div></body></html>`)
	text := d.ByID("p").Children()[0]

	if _, err := d.AppendHTML(text, `<i>x</i>`); err != ErrNotElement {
		t.Errorf("append to text: %v", err)
	}
	if _, err := d.InsertHTML(d.ByID("b"), d.ByID("p"), `<i>x</i>`); err == nil {
		t.Error("reference outside parent must fail")
	}
	if err := d.SetAttr(text, "x", "y"); err != ErrNotElement {
		t.Errorf("set attr on text: %v", err)
	}
	if err := d.Remove(nil); err != ErrForeignNode {
		t.Errorf("remove nil: %v", err)
	}
}

func TestDocument_MoveIntoOwnSubtree(t *testing.T) {
	d := mustParse(t, `<html><body><div id="a"><div id="b"><p id="p">x</p></div></div></body></html>`)
	c, _ := observe(t, d, dom.Query{Element: "*"})

	if err := d.Move(d.ByID("a"), d.ByID("b"), nil); err != ErrHierarchy {
		t.Errorf("move into descendant: %v", err)
	}
	if err := d.Move(d.ByID("a"), d.ByID("a"), nil); err != ErrHierarchy {
		t.Errorf("move into itself: %v", err)
	}
	d.Flush()
	if len(c.calls) != 0 {
		t.Errorf("rejected moves reported: %d calls", len(c.calls))
	}

	out, err := d.Render()
	if err != nil {
		t.Fatal(err)
	}
	if want := `<body><div id="a"><div id="b"><p id="p">x</p></div></div></body>`; !strings.Contains(string(out), want) {
		t.Errorf("tree changed: %s", out)
	}
}

func TestDocument_Render(t *testing.T) {
	d := mustParse(t, `<html><body><div id="a"></div></body></html>`)
	d.AppendHTML(d.ByID("a"), `<em>hi</em>`)
	out, err := d.Render()
	if err != nil {
		t.Fatal(err)
	}
	if want := `<html><head></head><body><div id="a"><em>hi</em></div></body></html>`; string(out) != want {
		t.Errorf("render: %s", out)
	}
}
