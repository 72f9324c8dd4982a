package mirror

import (
	"fmt"
	"log/slog"

	"github.com/hazyhaar/treemirror/filter"
	"github.com/hazyhaar/treemirror/mirror/internal/config"
	"github.com/hazyhaar/treemirror/mirror/internal/sink"
)

// Config is the top-level treemirror configuration. Re-exported from internal.
type Config = config.Config

// SourceConfig controls document acquisition.
type SourceConfig = config.SourceConfig

// EngineConfig controls the client loop.
type EngineConfig = config.EngineConfig

// PolicyConfig extends the filter tables.
type PolicyConfig = config.PolicyConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// ReplicaConfig configures the replica server.
type ReplicaConfig = config.ReplicaConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}

// BuildPolicy returns the default policy extended by cfg.
func BuildPolicy(cfg PolicyConfig) (*filter.Policy, error) {
	p := filter.DefaultPolicy()
	err := p.Extend(filter.Extension{
		BlacklistTags: cfg.BlacklistTags,
		NoiseKeywords: cfg.NoiseKeywords,
		NoiseRules:    cfg.NoiseRules,
		SanitizeText:  cfg.SanitizeText,
	})
	if err != nil {
		return nil, fmt.Errorf("mirror: policy: %w", err)
	}
	return p, nil
}

// BuildSinks wires the configured sinks behind one Router sharing a single
// stamper for cfg.Session.
func BuildSinks(cfg *Config, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := sink.NewRouter(sink.NewStamper(cfg.Session), logger)
	for i, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			r.Add(sink.NewStdout(nil, nil))
		case "webhook":
			r.Add(sink.NewWebhook(sc.URL,
				sink.WithWebhookRetries(sc.Retries),
				sink.WithWebhookLogger(logger)))
		case "websocket":
			r.Add(sink.NewWebSocket(sc.URL,
				sink.WithWebSocketWriteTimeout(sc.WriteTimeout),
				sink.WithWebSocketLogger(logger)))
		default:
			return nil, fmt.Errorf("mirror: sinks[%d]: unknown type %q", i, sc.Type)
		}
	}
	return r, nil
}

// Options translates the engine section into client options.
func Options(cfg *Config, policy *filter.Policy) []Option {
	cancel := true
	if cfg.Engine.CancelOnDisconnect != nil {
		cancel = *cfg.Engine.CancelOnDisconnect
	}
	return []Option{
		WithCoalesceDelay(cfg.Engine.CoalesceDelay),
		WithDeferDelay(cfg.Engine.DeferDelay),
		WithCancelOnDisconnect(cancel),
		WithTrackMoves(cfg.Engine.TrackMoves),
		WithPolicy(policy),
	}
}
