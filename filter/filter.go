package filter

import (
	"strings"

	"github.com/hazyhaar/treemirror/dom"
)

// Filter evaluates the eligibility predicates, in precedence order:
// blacklist, ignore marker, noise (mutation roots only), visibility,
// zero-size leaf.
type Filter struct {
	policy *Policy
	layout dom.Layout
}

// New returns a Filter over policy and layout. A nil policy means
// DefaultPolicy; a nil layout treats every element as rendered.
func New(policy *Policy, layout dom.Layout) *Filter {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Filter{policy: policy, layout: layout}
}

// Policy returns the tables the filter reads.
func (f *Filter) Policy() *Policy { return f.policy }

// Blacklisted reports rule 1: a non-content tag.
func (f *Filter) Blacklisted(n dom.Node) bool {
	return n != nil && n.Kind() == dom.KindElement && f.policy.BlacklistTags[n.TagName()]
}

// Ignored reports rule 2: the element carries an ignore marker.
func (f *Filter) Ignored(n dom.Node) bool {
	if n == nil || n.Kind() != dom.KindElement {
		return false
	}
	for _, a := range f.policy.IgnoreAttrs {
		if dom.HasAttr(n, a) {
			return true
		}
	}
	return false
}

// Noise reports rule 3 for a mutation candidate n whose nearest ancestor is
// parent: transient widgets (clocks, countdowns, date pickers) must not
// become dirty roots.
func (f *Filter) Noise(n, parent dom.Node) bool {
	if parent != nil && parent.Kind() == dom.KindElement {
		if f.containsKeyword(dom.AttrValue(parent, "id")) ||
			f.containsKeyword(dom.AttrValue(parent, "class")) {
			return true
		}
		if dom.AttrValue(parent, AttrCountdown) != "" {
			return true
		}
	}
	if n != nil && n.Kind() == dom.KindElement {
		class := dom.AttrValue(n, "class")
		for _, c := range f.policy.NoiseNodeClasses {
			if c != "" && strings.Contains(class, c) {
				return true
			}
		}
	}
	for _, r := range f.policy.rules {
		if r.Match(n, parent) {
			return true
		}
	}
	return false
}

func (f *Filter) containsKeyword(v string) bool {
	if v == "" {
		return false
	}
	v = strings.ToLower(v)
	for _, k := range f.policy.NoiseKeywords {
		if strings.Contains(v, k) {
			return true
		}
	}
	return false
}

// Hidden reports rule 4: the element's display is suppressed and it holds
// no hyperlink. Links survive inside collapsed containers.
func (f *Filter) Hidden(n dom.Node) bool {
	if f.layout == nil || n == nil || n.Kind() != dom.KindElement {
		return false
	}
	inline := f.layout.InlineDisplay(n)
	if inline == "block" || inline == "inline" {
		return false
	}
	if inline != "none" && f.layout.ComputedDisplay(n) != "none" {
		return false
	}
	return n.TagName() != "a" && !dom.HasDescendant(n, "a")
}

// ZeroSize reports rule 5 for a would-be leaf: no rendered width or height.
// Links and buttons may be invisible yet clickable.
func (f *Filter) ZeroSize(n dom.Node) bool {
	if f.layout == nil || n == nil || n.Kind() != dom.KindElement {
		return false
	}
	switch n.TagName() {
	case "a", "button":
		return false
	}
	w, h := f.layout.OffsetSize(n)
	return w == 0 || h == 0
}

// ListTag reports whether n is a list-item tag.
func (f *Filter) ListTag(n dom.Node) bool {
	return n != nil && n.Kind() == dom.KindElement && f.policy.ListTags[n.TagName()]
}
