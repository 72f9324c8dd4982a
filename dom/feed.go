package dom

// Query selects which changes a Feed reports. Element is a tag name or "*".
// When Attributes is non-empty the query observes those attributes only and
// its Summary fills AttributeChanged; otherwise it observes structure.
type Query struct {
	Element    string
	Attributes []string
}

// Matches reports whether the query's element selector accepts n.
func (q Query) Matches(n Node) bool {
	if n == nil || n.Kind() != KindElement {
		return false
	}
	return q.Element == "*" || q.Element == n.TagName()
}

// Summary is the classified change set for one query over one delivery.
type Summary struct {
	Added      []Node
	Removed    []Node
	Reparented []Node
	Reordered  []Node
	// AttributeChanged maps an attribute name to the elements whose value
	// for it changed, in the order the changes were first seen.
	AttributeChanged map[string][]Node
}

// Empty reports whether the summary carries no change at all.
func (s Summary) Empty() bool {
	if len(s.Added)+len(s.Removed)+len(s.Reparented)+len(s.Reordered) > 0 {
		return false
	}
	for _, nodes := range s.AttributeChanged {
		if len(nodes) > 0 {
			return false
		}
	}
	return true
}

// Subscription is a live registration on a Feed.
type Subscription interface {
	Disconnect()
}

// Feed is the external change-detection collaborator. It delivers one
// Summary per query, index-aligned with the queries passed to Observe.
type Feed interface {
	Observe(queries []Query, callback func(summaries []Summary)) (Subscription, error)
}
