// Package record defines the semantic records and patch envelopes that
// treemirror emits. These types are the wire contract with the mirror:
// field names are fixed by the downstream consumer.
package record

// NodeType mirrors the host node type codes.
type NodeType int

const (
	TypeElement NodeType = 1  // element, leaf or structural
	TypeText    NodeType = 3  // text leaf
	TypeDoctype NodeType = 10 // document type declaration
)

// Record is one serialized node. Records are built once per serialization
// call and never modified after being handed out.
type Record struct {
	NodeType NodeType `json:"nodeType"`
	TagName  string   `json:"tagName,omitempty"`

	// Doctype fields.
	Name     string `json:"name,omitempty"`
	PublicID string `json:"publicId,omitempty"`
	SystemID string `json:"systemId,omitempty"`

	Path       string            `json:"path,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Leaf       bool              `json:"leaf,omitempty"`
	Text       string            `json:"text,omitempty"`
	Idx        int               `json:"idx,omitempty"`
	Obj        string            `json:"obj,omitempty"`
	ChildNodes []Record          `json:"childNodes,omitempty"`
}

// Href returns the href attribute, "" when absent.
func (r Record) Href() string {
	return r.Attributes["href"]
}

// Structural reports whether r is an element that kept its children.
func (r Record) Structural() bool {
	return r.NodeType == TypeElement && !r.Leaf
}

// Walk visits r and its descendants depth-first, parents first.
func (r Record) Walk(fn func(Record)) {
	fn(r)
	for _, c := range r.ChildNodes {
		c.Walk(fn)
	}
}
