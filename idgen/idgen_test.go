package idgen

import (
	"sort"
	"strings"
	"testing"
)

func TestUUIDv7_SortsByCreation(t *testing.T) {
	gen := UUIDv7()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = gen()
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatal("UUIDv7: ids generated in sequence are not sorted")
	}
	if v := Version(ids[0]); v != 7 {
		t.Fatalf("version: got %d, want 7", v)
	}
}

func TestNanoID_LengthAndAlphabet(t *testing.T) {
	id := NanoID(40)()
	if len(id) != 40 {
		t.Fatalf("length: got %d", len(id))
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
			t.Fatalf("unexpected character %q in %q", c, id)
		}
	}
}

func TestSession_Prefix(t *testing.T) {
	id := Session()
	if !strings.HasPrefix(id, "ses_") || len(id) != 16 {
		t.Fatalf("session id: got %q", id)
	}
	if Session() == id {
		t.Fatal("session ids must differ")
	}
}

func TestParse(t *testing.T) {
	id := New()
	got, err := Parse(strings.ToUpper(id))
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Fatalf("canonical form: got %q, want %q", got, id)
	}
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("expected error for invalid UUID")
	}
	if Version("nope") != 0 {
		t.Fatal("Version of invalid input must be 0")
	}
}
