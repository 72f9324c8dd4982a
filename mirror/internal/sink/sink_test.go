package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/treemirror/record"
)

var sample = []record.Record{{NodeType: record.TypeElement, TagName: "p", Path: "/p", Leaf: true, Text: "x"}}

func TestStamper_Sequence(t *testing.T) {
	s := NewStamper("ses_test")
	a := s.Initialize(sample)
	b := s.Changes(nil, sample)
	if a.Seq != 1 || b.Seq != 2 {
		t.Fatalf("seq: got %d, %d", a.Seq, b.Seq)
	}
	if a.ID == b.ID {
		t.Fatal("patch ids must differ")
	}
	if a.Session != "ses_test" || a.Type != record.PatchInitialize || b.Type != record.PatchChanges {
		t.Fatalf("stamp: got %+v / %+v", a, b)
	}
	if b.Removed == nil {
		t.Fatal("removed must be an empty list, not null")
	}
	data, _ := json.Marshal(b)
	if !bytes.Contains(data, []byte(`"removed":[]`)) {
		t.Errorf("wire form: %s", data)
	}
}

func TestStdout_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf, NewStamper("ses_a"))
	ctx := context.Background()
	if err := s.Initialize(ctx, sample); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyChanged(ctx, nil, sample); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d", len(lines))
	}
	p, err := record.UnmarshalPatch([]byte(lines[1]))
	if err != nil {
		t.Fatal(err)
	}
	if p.Seq != 2 || len(p.Moved) != 1 || p.Moved[0].Text != "x" {
		t.Errorf("patch: got %+v", p)
	}
}

type recorder struct {
	mu      sync.Mutex
	patches []*record.Patch
	fail    bool
}

func (r *recorder) Initialize(context.Context, []record.Record) error { return errors.New("unused") }
func (r *recorder) ApplyChanged(context.Context, []record.Record, []record.Record) error {
	return errors.New("unused")
}
func (r *recorder) Close() error { return nil }
func (r *recorder) WritePatch(_ context.Context, p *record.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, p)
	if r.fail {
		return errors.New("down")
	}
	return nil
}

func TestRouter_StampsOnce(t *testing.T) {
	a, b := &recorder{fail: true}, &recorder{}
	var cbMoved []record.Record
	cb := NewCallback(nil, func(_ context.Context, _, moved []record.Record) error {
		cbMoved = moved
		return nil
	})
	r := NewRouter(NewStamper("ses_r"), nil, a, b, cb)

	err := r.ApplyChanged(context.Background(), nil, sample)
	if err == nil {
		t.Fatal("first sink error must be returned")
	}
	if len(a.patches) != 1 || len(b.patches) != 1 {
		t.Fatal("every sink must receive the call despite errors")
	}
	if a.patches[0] != b.patches[0] {
		t.Error("patch writers must share one stamped patch")
	}
	if len(cbMoved) != 1 {
		t.Error("callback sink must receive the records")
	}
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	var got record.Patch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond), WithWebhookStamper(NewStamper("ses_w")))
	if err := w.Initialize(context.Background(), sample); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls: got %d, want 3", calls.Load())
	}
	if got.Session != "ses_w" || got.Type != record.PatchInitialize {
		t.Errorf("patch: got %+v", got)
	}
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := w.ApplyChanged(context.Background(), nil, sample); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls: got %d, want 1", calls.Load())
	}
}

func TestWebSocket_WritesPatches(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan record.Patch, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var p record.Patch
			if err := conn.ReadJSON(&p); err != nil {
				return
			}
			received <- p
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewWebSocket(url, WithWebSocketStamper(NewStamper("ses_ws")))
	defer s.Close()

	ctx := context.Background()
	if err := s.Initialize(ctx, sample); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyChanged(ctx, nil, sample); err != nil {
		t.Fatal(err)
	}
	for want := uint64(1); want <= 2; want++ {
		select {
		case p := <-received:
			if p.Seq != want || p.Session != "ses_ws" {
				t.Errorf("patch: got seq %d session %q", p.Seq, p.Session)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("patch not received")
		}
	}
}
