package source

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Placeholders left by client-side frameworks when the markup is an empty shell.
var shellMarkers = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	`<noscript>you need to enable javascript`,
	`<noscript>enable javascript`,
}

// Sufficient reports whether a static HTML body carries enough visible
// text to be mirrored without running its scripts: at least 200 text bytes
// making up at least a tenth of the document, and no framework shell marker.
func Sufficient(body []byte) bool {
	if len(body) < 256 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, m := range shellMarkers {
		if bytes.Contains(lower, []byte(m)) {
			return false
		}
	}
	text := visibleText(body)
	return text >= 200 && float64(text)/float64(len(body)) >= 0.10
}

// visibleText counts non-whitespace bytes of text outside script and style.
func visibleText(body []byte) int {
	z := html.NewTokenizer(bytes.NewReader(body))
	n, skip := 0, 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return n
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawText(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawText(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				n += len(strings.Join(strings.Fields(string(z.Text())), ""))
			}
		}
	}
}

func isRawText(tag []byte) bool {
	s := string(tag)
	return s == "script" || s == "style" || s == "noscript" || s == "template"
}
