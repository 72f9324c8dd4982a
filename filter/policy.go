// Package filter holds the eligibility predicates of the mirror engine and
// the policy tables they read. A Policy is built once at startup and is
// read-only afterwards; share it freely between goroutines.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Marker attributes understood by the engine.
const (
	AttrIgnore       = "growing-ignore"
	AttrDataIgnore   = "data-growing-ignore"
	AttrTitle        = "data-growing-title"
	AttrIndex        = "data-growing-idx"
	AttrInfo         = "data-growing-info"
	AttrCountdown    = "data-countdown"
	AttrImageSource  = "src"
	AttrTitleDefault = "title"
)

// Policy is the set of tables that drive filtering, addressing and leaf
// extraction.
type Policy struct {
	// BlacklistTags are never serialized, at any depth.
	BlacklistTags map[string]bool
	// ListTags confer an ordinal position inside their container.
	ListTags map[string]bool
	// IgnoreAttrs exclude an element and its subtree.
	IgnoreAttrs []string
	// NoiseClass matches classes dropped from addresses.
	NoiseClass *regexp.Regexp
	// NoiseKeywords are matched case-insensitively against the nearest
	// ancestor's id and class when choosing mutation roots.
	NoiseKeywords []string
	// NoiseNodeClasses are matched against the candidate's own class.
	NoiseNodeClasses []string
	// IconTags are containers that may hold only click/icon children.
	IconTags map[string]bool
	// ClickTags are the icon children skipped inside an icon container.
	ClickTags map[string]bool
	// ValueInputTypes are input types whose value is their label.
	ValueInputTypes map[string]bool
	// TrackedAttributes are observed for value changes.
	TrackedAttributes []string
	// SanitizeText strips markup from attribute-sourced leaf text.
	SanitizeText bool

	rules []*Rule
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// DefaultPolicy returns the reference tables.
func DefaultPolicy() *Policy {
	return &Policy{
		BlacklistTags: set(
			"script", "style", "noscript", "iframe", "br", "font",
			"tspan", "text", "g", "rect", "path", "defs", "clippath",
			"desc", "title", "use", "math",
		),
		ListTags:          set("tr", "li", "dl"),
		IgnoreAttrs:       []string{AttrIgnore, AttrDataIgnore},
		NoiseClass:        regexp.MustCompile(`^(clear|clearfix|active|hover|enabled|hidden|display|focus|disabled|ng-|growing-)`),
		NoiseKeywords:     []string{"clock", "countdown", "time"},
		NoiseNodeClasses:  []string{"daterangepicker"},
		IconTags:          set("a", "button"),
		ClickTags:         set("i", "span", "em", "svg"),
		ValueInputTypes:   set("button", "submit"),
		TrackedAttributes: []string{AttrTitle, AttrImageSource},
	}
}

// Extension is the startup-time customisation of a Policy, usually read
// from configuration.
type Extension struct {
	BlacklistTags []string
	NoiseKeywords []string
	NoiseRules    []string
	SanitizeText  bool
}

// Extend applies ext to p. It must be called before p is shared.
func (p *Policy) Extend(ext Extension) error {
	for _, t := range ext.BlacklistTags {
		p.BlacklistTags[strings.ToLower(strings.TrimSpace(t))] = true
	}
	for _, k := range ext.NoiseKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			p.NoiseKeywords = append(p.NoiseKeywords, k)
		}
	}
	for _, src := range ext.NoiseRules {
		r, err := CompileRule(src)
		if err != nil {
			return fmt.Errorf("filter: noise rule %q: %w", src, err)
		}
		p.rules = append(p.rules, r)
	}
	if ext.SanitizeText {
		p.SanitizeText = true
	}
	return nil
}

// NoiseClassMatch reports whether a class is dropped from addresses.
func (p *Policy) NoiseClassMatch(class string) bool {
	return p.NoiseClass != nil && p.NoiseClass.MatchString(class)
}
