package replica

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/treemirror/mirror"
	"github.com/hazyhaar/treemirror/record"
)

func newTestServer(t *testing.T, opts ...ServerOption) (*Replica, *httptest.Server) {
	t.Helper()
	r := newTestReplica(t)
	ts := httptest.NewServer(NewServer(r, opts...).Handler())
	t.Cleanup(ts.Close)
	return r, ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestServer_WebhookIngest(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()

	stamper := mirror.NewStamper("ses_hook")
	sink := mirror.NewWebhookSink(ts.URL+"/v1/patches", stamper, nil)
	if err := sink.Initialize(ctx, []record.Record{leaf("/p#a", "one")}); err != nil {
		t.Fatal(err)
	}
	if err := sink.ApplyChanged(ctx, nil, []record.Record{leaf("/p#b", "two")}); err != nil {
		t.Fatal(err)
	}

	var st Session
	if code := getJSON(t, ts.URL+"/v1/sessions/ses_hook", &st); code != http.StatusOK {
		t.Fatalf("state status: %d", code)
	}
	if st.LastSeq != 2 || len(st.State) != 2 {
		t.Fatalf("state: %+v", st)
	}

	var list sessionsResponse
	getJSON(t, ts.URL+"/v1/sessions", &list)
	if len(list.Sessions) != 1 || list.Sessions[0].ID != "ses_hook" {
		t.Errorf("sessions: %+v", list.Sessions)
	}

	var pr patchesResponse
	getJSON(t, ts.URL+"/v1/sessions/ses_hook/patches?after=1", &pr)
	if len(pr.Patches) != 1 || pr.Patches[0].Seq != 2 {
		t.Errorf("patches: %+v", pr.Patches)
	}

	resp, err := http.Get(ts.URL + "/v1/sessions/ses_hook/markdown")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "one") || !strings.Contains(string(body), "two") {
		t.Errorf("markdown: %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("content type: %q", ct)
	}
}

func TestServer_WebSocketIngest(t *testing.T) {
	r, ts := newTestServer(t)
	ctx := context.Background()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	stamper := mirror.NewStamper("ses_ws")
	sink := mirror.NewWebSocketSink(wsURL, stamper, nil)
	if err := sink.Initialize(ctx, []record.Record{leaf("/p", "x")}); err != nil {
		t.Fatal(err)
	}
	if err := sink.ApplyChanged(ctx, nil, []record.Record{leaf("/q", "y")}); err != nil {
		t.Fatal(err)
	}
	sink.Close()

	waitFor(t, func() bool {
		st, err := r.State(ctx, "ses_ws")
		return err == nil && st.LastSeq == 2 && len(st.State) == 2
	})
}

func TestServer_Errors(t *testing.T) {
	_, ts := newTestServer(t, WithMaxBody(64))

	if code := getJSON(t, ts.URL+"/v1/sessions/nope", nil); code != http.StatusNotFound {
		t.Errorf("unknown session: %d", code)
	}
	if code := getJSON(t, ts.URL+"/v1/sessions/nope/patches?after=x", nil); code != http.StatusBadRequest {
		t.Errorf("bad after: %d", code)
	}

	post := func(body string) int {
		resp, err := http.Post(ts.URL+"/v1/patches", "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if code := post(`{"type":"changes"}`); code != http.StatusBadRequest {
		t.Errorf("missing session: %d", code)
	}
	if code := post(`not json`); code != http.StatusBadRequest {
		t.Errorf("bad json: %d", code)
	}
	big := `{"session":"s","type":"initialize","children":[{"nodeType":3,"text":"` + strings.Repeat("x", 100) + `"}]}`
	if code := post(big); code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized: %d", code)
	}
}

func TestServer_RequestIDAndHeaders(t *testing.T) {
	_, ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "req_given")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "req_given" {
		t.Errorf("request id: %q", got)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); !strings.HasPrefix(got, "req_") {
		t.Errorf("generated request id: %q", got)
	}
}

func TestServer_Delete(t *testing.T) {
	r, ts := newTestServer(t)
	r.Apply(context.Background(), initPatch("s", 1, leaf("/p", "x")))

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/sessions/s", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	if code := getJSON(t, ts.URL+"/v1/sessions/s", nil); code != http.StatusNotFound {
		t.Errorf("after delete: %d", code)
	}
}

func TestServer_StreamableMCP(t *testing.T) {
	impl := &mcp.Implementation{Name: "replica-test", Version: "0.1.0"}
	r, ts := newTestServer(t, WithMCP(mcp.NewServer(impl, nil)))
	ctx := context.Background()
	if err := r.Apply(ctx, initPatch("ses_mcp", 1, leaf("/p#a", "one"))); err != nil {
		t.Fatal(err)
	}

	transport := &mcp.StreamableClientTransport{Endpoint: ts.URL + "/v1/mcp"}
	session, err := mcp.NewClient(impl, nil).Connect(ctx, transport, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "replica_state",
		Arguments: map[string]any{"session": "ses_mcp"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %v", res.Content)
	}
	if text := res.Content[0].(*mcp.TextContent).Text; !strings.Contains(text, "one") {
		t.Errorf("state: %s", text)
	}
}
