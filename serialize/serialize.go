// Package serialize turns host subtrees into semantic records.
//
// The descent returns a tagged result per node (rejected, terminal, leaf,
// structural) so that a parent decides its own leaf-ness from what its
// children produced, in one pass. Two pieces of context flow downward: the
// list index (from list-item tags or an explicit data-growing-idx) and the
// context token (data-growing-info).
package serialize

import (
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/treemirror/address"
	"github.com/hazyhaar/treemirror/dom"
	"github.com/hazyhaar/treemirror/filter"
	"github.com/hazyhaar/treemirror/record"
)

// Serializer is stateless between calls and safe for concurrent use.
type Serializer struct {
	filter    *filter.Filter
	policy    *filter.Policy
	resolver  *address.Resolver
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
}

// Option configures a Serializer.
type Option func(*Serializer)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Serializer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Serializer over f. Addresses drop the policy's noise classes.
func New(f *filter.Filter, opts ...Option) *Serializer {
	p := f.Policy()
	s := &Serializer{
		filter:   f,
		policy:   p,
		resolver: address.New(p.NoiseClassMatch),
		logger:   slog.Default(),
	}
	if p.SanitizeText {
		s.sanitizer = bluemonday.StrictPolicy()
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Resolver returns the address resolver used for record paths.
func (s *Serializer) Resolver() *address.Resolver { return s.resolver }

// Serialize builds the record of n and its subtree. idx and obj seed the
// inherited list index and context token for the descendants (0 and "" for
// none); they are not attached to the returned record itself.
//
// ok is false when n is filtered out entirely or detached from the tree.
func (s *Serializer) Serialize(n dom.Node, idx int, obj string) (rec record.Record, ok bool) {
	if n == nil {
		return record.Record{}, false
	}
	prefix, err := s.resolver.ResolvePath(n)
	if err != nil {
		if errors.Is(err, dom.ErrDetached) {
			s.logger.Debug("serialize: skipping detached node", "tag", n.TagName())
		}
		return record.Record{}, false
	}
	res := s.node(n, prefix, idx, obj)
	if res.kind == rejected {
		return record.Record{}, false
	}
	return res.rec, true
}

type resultKind int

const (
	rejected resultKind = iota
	terminal            // doctype: emitted, never merged into a parent
	leaf
	structural
)

type result struct {
	kind resultKind
	rec  record.Record
}

func reject() result { return result{kind: rejected} }

// node dispatches on the node kind. prefix is the ancestor address with a
// trailing separator.
func (s *Serializer) node(n dom.Node, prefix string, idx int, obj string) result {
	switch n.Kind() {
	case dom.KindDoctype:
		pub, sys := n.DoctypeIDs()
		return result{kind: terminal, rec: record.Record{
			NodeType: record.TypeDoctype,
			Name:     n.Data(),
			PublicID: pub,
			SystemID: sys,
		}}
	case dom.KindText:
		return s.text(n, prefix)
	case dom.KindElement:
		return s.element(n, prefix, idx, obj)
	}
	return reject()
}

var whitespaceRun = regexp.MustCompile(`[\n \t]+`)

func (s *Serializer) text(n dom.Node, prefix string) result {
	// Text directly under the root container has no element to anchor it.
	if prefix == "/" {
		return reject()
	}
	raw := n.Data()
	if strings.TrimSpace(raw) == "" {
		return reject()
	}
	text := strings.TrimSpace(whitespaceRun.ReplaceAllString(raw, " "))
	if text == "" {
		return reject()
	}
	return result{kind: leaf, rec: record.Record{
		NodeType: record.TypeText,
		Leaf:     true,
		Text:     text,
		Path:     strings.TrimSuffix(prefix, "/"),
	}}
}

func (s *Serializer) element(n dom.Node, prefix string, inIdx int, inObj string) result {
	f := s.filter
	if f.Blacklisted(n) || f.Ignored(n) || f.Hidden(n) {
		return reject()
	}

	tag := n.TagName()
	path := prefix + s.resolver.Segment(n) + "/"
	rec := record.Record{
		NodeType: record.TypeElement,
		TagName:  tag,
		Path:     strings.TrimSuffix(path, "/"),
	}
	if href, ok := n.Attr("href"); ok {
		rec.Attributes = map[string]string{"href": href}
	}

	ownObj := dom.AttrValue(n, filter.AttrInfo)
	ownIdx, ownIdxOK := -1, false
	if v, ok := n.Attr(filter.AttrIndex); ok {
		ownIdx, ownIdxOK = parseIndex(v)
		if !ownIdxOK {
			ownIdx = -1
		}
	}

	iconContainer := s.isIconContainer(n)
	isLeaf := true
	counter := 0
	var children []record.Record

	for _, c := range n.Children() {
		growObj := ownObj
		growIdx := ownIdx
		if c.Kind() == dom.KindElement {
			if f.Blacklisted(c) {
				// Drawing primitives are the content of an svg, not structure.
				if tag != "svg" {
					isLeaf = false
				}
				continue
			}
			if f.Ignored(c) {
				continue
			}
			if iconContainer && s.policy.ClickTags[c.TagName()] {
				isLeaf = false
				continue
			}
			if f.ListTag(c) {
				counter++
				growIdx = counter
			}
			if v, ok := c.Attr(filter.AttrIndex); ok {
				// Malformed overrides are ignored; the counter keeps running.
				if parsed, ok := parseIndex(v); ok {
					counter = parsed
					growIdx = parsed
				}
			}
			if v := dom.AttrValue(c, filter.AttrInfo); v != "" {
				growObj = v
			}
		}

		childIdx := inIdx
		if counter > 0 && growIdx > 0 {
			childIdx = counter
		}
		childObj := inObj
		if growObj != "" {
			childObj = growObj
		}

		res := s.node(c, path, childIdx, childObj)
		switch res.kind {
		case rejected:
			// Filtered structure means this element cannot collapse to a
			// single text value. Blank text does not count.
			if c.Kind() != dom.KindText {
				isLeaf = false
			}
		case structural:
			isLeaf = false
			children = append(children, attach(res.rec, childIdx, childObj))
		case leaf:
			if res.rec.NodeType == record.TypeElement {
				isLeaf = false
				children = append(children, attach(res.rec, childIdx, childObj))
			} else {
				children = append(children, attach(res.rec, inIdx, inObj))
			}
		}
	}

	if isLeaf {
		if f.ZeroSize(n) {
			return reject()
		}
		text, ok := s.leafText(n)
		if !ok {
			return reject()
		}
		rec.Leaf = true
		rec.Text = text
		if tag == "img" {
			rec.Attributes = nil
			if src := dom.AttrValue(n, filter.AttrImageSource); src != "" && !strings.Contains(src, "data:image") {
				rec.Attributes = map[string]string{"href": src}
			}
		}
		return result{kind: leaf, rec: rec}
	}

	rec.Text = s.titleText(n)
	if ownIdxOK {
		rec.Idx = ownIdx
	}
	rec.Obj = ownObj
	rec.ChildNodes = children
	if len(children) == 0 && rec.Text == "" && rec.Href() == "" {
		// Everything below was filtered and nothing identifies the element.
		return reject()
	}
	return result{kind: structural, rec: rec}
}

// attach stamps inherited context on a child record. Zero values leave the
// child's own idx/obj in place.
func attach(rec record.Record, idx int, obj string) record.Record {
	if idx > 0 {
		rec.Idx = idx
	}
	if obj != "" {
		rec.Obj = obj
	}
	return rec
}

// isIconContainer reports a link or button whose element children are all
// icon/click tags.
func (s *Serializer) isIconContainer(n dom.Node) bool {
	if !s.policy.IconTags[n.TagName()] {
		return false
	}
	for _, c := range dom.ElementChildren(n) {
		if !s.policy.ClickTags[c.TagName()] {
			return false
		}
	}
	return true
}

// titleText returns the explicit title override or the title attribute.
func (s *Serializer) titleText(n dom.Node) string {
	if v := dom.AttrValue(n, filter.AttrTitle); v != "" {
		return s.clean(v)
	}
	if v := dom.AttrValue(n, filter.AttrTitleDefault); v != "" {
		return s.clean(v)
	}
	return ""
}

// leafText picks the display text of a leaf element. ok is false when the
// element carries no content worth reporting.
func (s *Serializer) leafText(n dom.Node) (string, bool) {
	if t := s.titleText(n); t != "" {
		return t, true
	}
	switch tag := n.TagName(); {
	case tag == "img":
		if alt := dom.AttrValue(n, "alt"); alt != "" {
			return s.clean(alt), true
		}
		return imageName(dom.AttrValue(n, filter.AttrImageSource)), true
	case tag == "input" && s.policy.ValueInputTypes[strings.ToLower(dom.AttrValue(n, "type"))]:
		v := s.clean(dom.AttrValue(n, "value"))
		return v, v != ""
	case tag == "svg":
		for _, c := range dom.ElementChildren(n) {
			if c.TagName() != "use" {
				continue
			}
			if ref := dom.AttrValue(c, "xlink:href"); ref != "" {
				return ref, true
			}
			if ref := dom.AttrValue(c, "href"); ref != "" {
				return ref, true
			}
		}
		return "", true
	default:
		text := strings.TrimSpace(dom.TextContent(n))
		if text == "" && tag != "i" && tag != "a" {
			return "", false
		}
		return text, true
	}
}

// imageName is the last path segment of an image URL, query dropped.
// Inline data URLs have no name.
func imageName(src string) string {
	if src == "" || strings.Contains(src, "data:image") {
		return ""
	}
	u, _, _ := strings.Cut(src, "?")
	if i := strings.LastIndexByte(u, '/'); i >= 0 {
		return u[i+1:]
	}
	return u
}

// clean strips markup from attribute-sourced text when the policy asks for it.
func (s *Serializer) clean(v string) string {
	if s.sanitizer == nil {
		return v
	}
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(v)))
}

// parseIndex reads a leading integer the way a lenient numeric parse does:
// optional whitespace and sign, then digits; trailing junk is dropped.
// "12px" gives 12; "abc" is malformed.
func parseIndex(v string) (int, bool) {
	v = strings.TrimSpace(v)
	end := 0
	if end < len(v) && (v[end] == '+' || v[end] == '-') {
		end++
	}
	digits := end
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(v[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
