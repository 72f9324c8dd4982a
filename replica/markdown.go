package replica

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"

	"github.com/hazyhaar/treemirror/record"
)

// Tags that cannot carry a text child once rebuilt; their text goes into a span.
var opaqueTags = map[string]bool{
	"input": true, "svg": true, "select": true, "textarea": true,
	"iframe": true, "canvas": true, "video": true, "audio": true,
	"object": true, "embed": true, "br": true, "hr": true,
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown renders a session as Markdown.
func (r *Replica) Markdown(ctx context.Context, id string) (string, error) {
	sess, err := r.State(ctx, id)
	if err != nil {
		return "", err
	}
	return RenderMarkdown(sess.State)
}

// RenderMarkdown rebuilds minimal HTML from records and converts it to
// Markdown.
func RenderMarkdown(recs []record.Record) (string, error) {
	src, err := RenderHTML(recs)
	if err != nil {
		return "", err
	}
	md, err := mdConverter.ConvertString(src)
	if err != nil {
		return "", fmt.Errorf("replica: markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// RenderHTML rebuilds an HTML fragment from records. Only what records carry
// survives: tags, text, href and list context.
func RenderHTML(recs []record.Record) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body"}
	for _, rec := range recs {
		if n := buildNode(rec); n != nil {
			body.AppendChild(n)
		}
	}
	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("replica: render html: %w", err)
		}
	}
	return buf.String(), nil
}

func buildNode(rec record.Record) *html.Node {
	switch rec.NodeType {
	case record.TypeText:
		return &html.Node{Type: html.TextNode, Data: rec.Text}
	case record.TypeElement:
	default:
		return nil
	}

	tag := rec.TagName
	switch {
	case tag == "img":
		n := element("img")
		if href := rec.Href(); href != "" {
			n.Attr = append(n.Attr, html.Attribute{Key: "src", Val: href})
		}
		n.Attr = append(n.Attr, html.Attribute{Key: "alt", Val: rec.Text})
		return n
	case opaqueTags[tag], tag == "":
		tag = "span"
	}

	n := element(tag)
	if href := rec.Href(); href != "" && tag == "a" {
		n.Attr = append(n.Attr, html.Attribute{Key: "href", Val: href})
	}
	if rec.Leaf || len(rec.ChildNodes) == 0 {
		if rec.Text != "" {
			n.AppendChild(&html.Node{Type: html.TextNode, Data: rec.Text})
		}
		return n
	}
	for _, c := range rec.ChildNodes {
		if cn := buildNode(c); cn != nil {
			n.AppendChild(cn)
		}
	}
	return n
}

func element(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag}
}
