package mirror

import (
	"testing"
)

func TestBuildPolicy(t *testing.T) {
	p, err := BuildPolicy(PolicyConfig{
		BlacklistTags: []string{"Aside"},
		NoiseRules:    []string{`parent_id contains "ticker"`},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !p.BlacklistTags["aside"] {
		t.Error("extra blacklist tag missing")
	}
	if _, err := BuildPolicy(PolicyConfig{NoiseRules: []string{"tag +"}}); err == nil {
		t.Error("invalid rule must fail")
	}
}

func TestBuildSinks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session = "ses_cfg"
	cfg.Sinks = []SinkConfig{
		{Type: "stdout"},
		{Type: "webhook", URL: "http://localhost:1/v1/patches", Retries: 1},
		{Type: "websocket", URL: "ws://localhost:1/v1/ws"},
	}
	r, err := BuildSinks(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 3 {
		t.Errorf("sinks: got %d, want 3", r.Len())
	}
	cfg.Sinks = []SinkConfig{{Type: "carrier-pigeon"}}
	if _, err := BuildSinks(cfg, nil); err == nil {
		t.Error("unknown sink must fail")
	}
}

func TestOptions_FromConfig(t *testing.T) {
	cfg := DefaultConfig()
	off := false
	cfg.Engine.CancelOnDisconnect = &off
	cfg.Engine.TrackMoves = true

	var o options
	for _, fn := range Options(cfg, nil) {
		fn(&o)
	}
	if o.cancelOnDisconnect || !o.trackMoves || o.coalesceDelay != cfg.Engine.CoalesceDelay {
		t.Errorf("options: got %+v", o)
	}
}
