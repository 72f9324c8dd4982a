// Package address computes the hierarchical, human-readable addresses that
// key every semantic record. An address is built from the tag, id and
// filtered class list of each ancestor:
//
//	/div#main/ul.menu/li
//
// Ids starting with a digit are treated as generated and left out, and
// inputs are addressed by name rather than class because form widgets churn
// classes. Addresses are stable for a fixed tag/id/class chain, not across
// renders that change those.
package address

import (
	"sort"
	"strings"

	"github.com/hazyhaar/treemirror/dom"
)

// Resolver computes addresses. The zero value keeps every class.
type Resolver struct {
	// NoiseClass reports classes to drop from segments.
	NoiseClass func(class string) bool
}

// New returns a Resolver dropping classes for which noise returns true.
func New(noise func(string) bool) *Resolver {
	return &Resolver{NoiseClass: noise}
}

// isRootContainer reports the elements where ancestor walks stop.
func isRootContainer(n dom.Node) bool {
	if n.Kind() != dom.KindElement {
		return true
	}
	switch n.TagName() {
	case "body", "html":
		return true
	}
	return false
}

// ResolvePath returns the ancestor prefix of n, top-down, with a leading
// and trailing separator ("/" when n sits directly under the root
// container). The segment of n itself is not included.
//
// It fails with dom.ErrDetached when the parent chain is cut before a
// document or fragment boundary.
func (r *Resolver) ResolvePath(n dom.Node) (string, error) {
	var segs []string
	cur := n
	for {
		p, err := dom.ParentOf(cur)
		if err != nil {
			return "", err
		}
		if p == nil || isRootContainer(p) {
			break
		}
		segs = append(segs, r.Segment(p))
		cur = p
	}
	var b strings.Builder
	for i := len(segs) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(segs[i])
	}
	b.WriteByte('/')
	return b.String(), nil
}

// Segment returns tag[#id][.class]* for an element, or tag[#id].name for
// inputs carrying a name.
func (r *Resolver) Segment(n dom.Node) string {
	var b strings.Builder
	b.WriteString(n.TagName())
	if id := dom.AttrValue(n, "id"); id != "" && !startsWithDigit(id) {
		b.WriteByte('#')
		b.WriteString(id)
	}
	if n.TagName() == "input" {
		if name, ok := n.Attr("name"); ok {
			b.WriteByte('.')
			b.WriteString(name)
			return b.String()
		}
	}
	for _, c := range r.classes(n) {
		b.WriteByte('.')
		b.WriteString(c)
	}
	return b.String()
}

func (r *Resolver) classes(n dom.Node) []string {
	raw, ok := n.Attr("class")
	if !ok {
		return nil
	}
	fields := strings.Fields(raw)
	sort.Strings(fields)
	out := fields[:0]
	for _, c := range fields {
		if r.NoiseClass != nil && r.NoiseClass(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
