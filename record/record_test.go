package record

import (
	"strings"
	"testing"
)

func sample() Record {
	return Record{NodeType: TypeElement, TagName: "ul", Path: "/ul", ChildNodes: []Record{
		{NodeType: TypeElement, TagName: "li", Path: "/ul/li", Leaf: true, Text: "a", Idx: 1},
		{NodeType: TypeElement, TagName: "li", Path: "/ul/li", ChildNodes: []Record{
			{NodeType: TypeElement, TagName: "a", Path: "/ul/li/a", Leaf: true, Text: "b", Attributes: map[string]string{"href": "/b"}},
		}},
	}}
}

func TestRecord_Walk(t *testing.T) {
	var order []string
	sample().Walk(func(r Record) { order = append(order, r.TagName) })
	if got := strings.Join(order, ","); got != "ul,li,li,a" {
		t.Errorf("order: %s", got)
	}
}

func TestRecord_Accessors(t *testing.T) {
	r := sample()
	if !r.Structural() || r.ChildNodes[0].Structural() {
		t.Error("Structural")
	}
	if (Record{NodeType: TypeText}).Structural() {
		t.Error("text is never structural")
	}
	if r.Href() != "" || r.ChildNodes[1].ChildNodes[0].Href() != "/b" {
		t.Error("Href")
	}
}

func TestPatch_JSON(t *testing.T) {
	p := &Patch{ID: "x", Session: "s", Seq: 3, Type: PatchChanges, Removed: []Record{}, Moved: []Record{sample()}, Timestamp: 42}
	data, err := MarshalPatch(p)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"removed":[]`, `"nodeType":1`, `"childNodes":[`, `"tagName":"ul"`, `"idx":1`} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %s in %s", want, s)
		}
	}
	if strings.Contains(s, `"children"`) {
		t.Error("changes patch must omit children")
	}

	back, err := UnmarshalPatch(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Records()) != 1 || back.Records()[0].ChildNodes[1].ChildNodes[0].Href() != "/b" {
		t.Errorf("records: %+v", back.Records())
	}

	ip := &Patch{Type: PatchInitialize, Children: []Record{{NodeType: TypeDoctype, Name: "html"}}}
	if len(ip.Records()) != 1 || ip.Records()[0].Name != "html" {
		t.Error("initialize records")
	}

	if _, err := UnmarshalPatch([]byte("{")); err == nil {
		t.Error("bad JSON must fail")
	}
}

func TestHash(t *testing.T) {
	a, err := Hash([]Record{sample()})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Hash([]Record{sample()})
	if a != b || len(a) != 64 {
		t.Errorf("hash not stable: %s %s", a, b)
	}
	changed := sample()
	changed.ChildNodes[0].Text = "z"
	c, _ := Hash([]Record{changed})
	if c == a {
		t.Error("hash ignores text change")
	}
}
