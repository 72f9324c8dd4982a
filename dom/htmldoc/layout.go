package htmldoc

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/treemirror/dom"
)

// StaticLayout approximates layout for a document that is never rendered.
// Display comes from the inline style, the hidden attribute and tag
// defaults. Boxes are zero when the element or an ancestor is not rendered
// or when a width/height of 0 is declared; otherwise DefaultBox is used.
type StaticLayout struct {
	DefaultBox int
}

// NewStaticLayout returns a StaticLayout with a 1px default box.
func NewStaticLayout() *StaticLayout {
	return &StaticLayout{DefaultBox: 1}
}

var inlineTags = map[string]bool{
	"a": true, "abbr": true, "b": true, "button": true, "cite": true,
	"code": true, "em": true, "i": true, "img": true, "input": true,
	"label": true, "mark": true, "q": true, "s": true, "select": true,
	"small": true, "span": true, "strong": true, "sub": true, "sup": true,
	"svg": true, "textarea": true, "u": true,
}

var unrenderedTags = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"noscript": true, "meta": true, "link": true, "title": true,
}

func (l *StaticLayout) InlineDisplay(n dom.Node) string {
	return styleProperty(n, "display")
}

func (l *StaticLayout) ComputedDisplay(n dom.Node) string {
	if n.Kind() != dom.KindElement {
		return ""
	}
	if d := l.InlineDisplay(n); d != "" {
		return d
	}
	if dom.HasAttr(n, "hidden") || unrenderedTags[n.TagName()] {
		return "none"
	}
	if inlineTags[n.TagName()] {
		return "inline"
	}
	return "block"
}

func (l *StaticLayout) OffsetSize(n dom.Node) (int, int) {
	for p := n; p != nil; p = p.Parent() {
		if p.Kind() == dom.KindElement && l.ComputedDisplay(p) == "none" {
			return 0, 0
		}
	}
	w := declaredSize(n, "width", l.DefaultBox)
	h := declaredSize(n, "height", l.DefaultBox)
	return w, h
}

// declaredSize reads the inline style first, then the presentational
// attribute. Only unit-less or px values are understood.
func declaredSize(n dom.Node, prop string, def int) int {
	v := styleProperty(n, prop)
	if v == "" {
		v = strings.TrimSpace(dom.AttrValue(n, prop))
	}
	if v == "" {
		return def
	}
	v = strings.TrimSuffix(v, "px")
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return int(f)
}

// styleProperty returns the lower-cased value of one declaration of the
// style attribute, "" when absent.
func styleProperty(n dom.Node, prop string) string {
	style, ok := n.Attr("style")
	if !ok {
		return ""
	}
	var val string
	for _, decl := range strings.Split(style, ";") {
		k, v, found := strings.Cut(decl, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(k), prop) {
			v = strings.TrimSpace(v)
			v = strings.TrimSpace(strings.TrimSuffix(v, "!important"))
			// Later declarations win, as in the cascade.
			val = strings.ToLower(v)
		}
	}
	return val
}

// bodyOf finds the body element of a parsed document.
func bodyOf(root *html.Node) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "body") {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}
