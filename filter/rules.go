package filter

import (
	"errors"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/hazyhaar/treemirror/dom"
)

// ErrEmptyRule is returned when a rule expression is blank.
var ErrEmptyRule = errors.New("filter: empty expression")

// Rule is a compiled boolean expression evaluated against a mutation
// candidate. A true result suppresses the candidate as a dirty root.
//
// Variables: tag, id, class of the candidate; parent_tag, parent_id,
// parent_class of its parent; attrs, a map of the candidate's well-known
// attributes (id, class, role, name, type, href, src and the marker set).
//
//	parent_id contains "ticker" || attrs["role"] == "timer"
type Rule struct {
	source  string
	program *vm.Program
}

func ruleEnvSample() map[string]any {
	return map[string]any{
		"tag": "", "id": "", "class": "",
		"parent_tag": "", "parent_id": "", "parent_class": "",
		"attrs": map[string]string{},
	}
}

// CompileRule compiles a rule expression. The expression must be boolean.
func CompileRule(source string) (*Rule, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrEmptyRule
	}
	program, err := expr.Compile(source, expr.Env(ruleEnvSample()), expr.AsBool())
	if err != nil {
		return nil, err
	}
	return &Rule{source: source, program: program}, nil
}

// String returns the rule source.
func (r *Rule) String() string { return r.source }

// Match evaluates the rule for node n under parent. Evaluation errors count
// as no match.
func (r *Rule) Match(n, parent dom.Node) bool {
	out, err := expr.Run(r.program, ruleEnv(n, parent))
	if err != nil {
		return false
	}
	b, _ := out.(bool)
	return b
}

func ruleEnv(n, parent dom.Node) map[string]any {
	env := ruleEnvSample()
	attrs := map[string]string{}
	if n != nil && n.Kind() == dom.KindElement {
		env["tag"] = n.TagName()
		env["id"] = dom.AttrValue(n, "id")
		env["class"] = dom.AttrValue(n, "class")
		for _, name := range []string{"id", "class", "role", "name", "type", "href", "src",
			AttrTitle, AttrIndex, AttrInfo, AttrCountdown} {
			if v, ok := n.Attr(name); ok {
				attrs[name] = v
			}
		}
	}
	env["attrs"] = attrs
	if parent != nil && parent.Kind() == dom.KindElement {
		env["parent_tag"] = parent.TagName()
		env["parent_id"] = dom.AttrValue(parent, "id")
		env["parent_class"] = dom.AttrValue(parent, "class")
	}
	return env
}
