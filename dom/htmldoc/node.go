// Package htmldoc is an in-memory host document backed by golang.org/x/net/html.
// It implements dom.Node over parsed HTML, a static dom.Layout, and a
// dom.Feed that classifies edits made through the Document mutation methods.
package htmldoc

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/treemirror/dom"
)

// Node wraps an *html.Node. Handles are values holding one pointer, so two
// Nodes wrapping the same html.Node compare equal.
type Node struct {
	n *html.Node
}

// Wrap returns the dom handle for an html node, nil for nil.
func Wrap(n *html.Node) dom.Node {
	if n == nil {
		return nil
	}
	return Node{n: n}
}

// HTML returns the underlying html node.
func (x Node) HTML() *html.Node { return x.n }

func (x Node) Kind() dom.Kind {
	switch x.n.Type {
	case html.ElementNode:
		return dom.KindElement
	case html.TextNode:
		return dom.KindText
	case html.CommentNode:
		return dom.KindComment
	case html.DocumentNode:
		return dom.KindDocument
	case html.DoctypeNode:
		return dom.KindDoctype
	}
	// Raw and error nodes carry nothing worth mirroring.
	return dom.KindComment
}

func (x Node) TagName() string {
	if x.n.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(x.n.Data)
}

func (x Node) Attr(name string) (string, bool) {
	if x.n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range x.n.Attr {
		if attrKey(a) == name {
			return a.Val, true
		}
	}
	return "", false
}

func (x Node) HasAttributes() bool {
	return x.n.Type == html.ElementNode && len(x.n.Attr) > 0
}

func (x Node) Parent() dom.Node {
	return Wrap(x.n.Parent)
}

func (x Node) Children() []dom.Node {
	var out []dom.Node
	for c := x.n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, Node{n: c})
	}
	return out
}

func (x Node) Data() string {
	switch x.n.Type {
	case html.TextNode, html.CommentNode, html.DoctypeNode:
		return x.n.Data
	}
	return ""
}

func (x Node) DoctypeIDs() (public, system string) {
	if x.n.Type != html.DoctypeNode {
		return "", ""
	}
	for _, a := range x.n.Attr {
		switch a.Key {
		case "public":
			public = a.Val
		case "system":
			system = a.Val
		}
	}
	return public, system
}

// attrKey restores the prefixed form of foreign attributes (xlink:href).
func attrKey(a html.Attribute) string {
	if a.Namespace != "" {
		return a.Namespace + ":" + a.Key
	}
	return a.Key
}

func unwrap(n dom.Node) (*html.Node, bool) {
	x, ok := n.(Node)
	if !ok || x.n == nil {
		return nil, false
	}
	return x.n, true
}
