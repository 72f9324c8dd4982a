// Package config handles treemirror configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level treemirror configuration.
type Config struct {
	Session string        `yaml:"session"`
	Source  SourceConfig  `yaml:"source"`
	Engine  EngineConfig  `yaml:"engine"`
	Policy  PolicyConfig  `yaml:"policy"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	Replica ReplicaConfig `yaml:"replica"`
}

// SourceConfig controls how the mirrored document is acquired.
type SourceConfig struct {
	File       string        `yaml:"file"`
	URL        string        `yaml:"url"`
	Render     bool          `yaml:"render"`      // load through a headless browser
	Remote     string        `yaml:"remote"`      // devtools URL of an existing browser
	Timeout    time.Duration `yaml:"timeout"`
	UserAgent  string        `yaml:"user_agent"`
	WaitStable time.Duration `yaml:"wait_stable"` // DOM stability window after load
	Block      []string      `yaml:"block"`       // resource types refused while rendering
}

// EngineConfig controls the client loop.
type EngineConfig struct {
	CoalesceDelay time.Duration `yaml:"coalesce_delay"`
	DeferDelay    time.Duration `yaml:"defer_delay"`
	// CancelOnDisconnect is a pointer so that an explicit false survives
	// defaulting.
	CancelOnDisconnect *bool `yaml:"cancel_on_disconnect"`
	TrackMoves         bool  `yaml:"track_moves"`
}

// PolicyConfig extends the built-in filter tables.
type PolicyConfig struct {
	BlacklistTags []string `yaml:"blacklist_tags"`
	NoiseKeywords []string `yaml:"noise_keywords"`
	NoiseRules    []string `yaml:"noise_rules"`
	SanitizeText  bool     `yaml:"sanitize_text"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type         string        `yaml:"type"` // stdout | webhook | websocket
	URL          string        `yaml:"url"`
	Retries      int           `yaml:"retries"`       // webhook
	WriteTimeout time.Duration `yaml:"write_timeout"` // websocket
}

// ReplicaConfig configures the replica server.
type ReplicaConfig struct {
	Listen string `yaml:"listen"`
	DB     string `yaml:"db"`
	MCP    bool   `yaml:"mcp"` // expose the MCP tools at /v1/mcp

	// MCPQUIC is a UDP address serving the MCP tools over QUIC; empty disables it.
	MCPQUIC string `yaml:"mcp_quic"`
	TLSCert string `yaml:"tls_cert"` // both empty: self-signed certificate
	TLSKey  string `yaml:"tls_key"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Engine.CoalesceDelay <= 0 {
		c.Engine.CoalesceDelay = 10 * time.Millisecond
	}
	if c.Engine.DeferDelay < 0 {
		c.Engine.DeferDelay = 0
	}
	if c.Engine.CancelOnDisconnect == nil {
		v := true
		c.Engine.CancelOnDisconnect = &v
	}
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = 30 * time.Second
	}
	if c.Source.WaitStable <= 0 {
		c.Source.WaitStable = 500 * time.Millisecond
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
		if c.Sinks[i].Type == "websocket" && c.Sinks[i].WriteTimeout <= 0 {
			c.Sinks[i].WriteTimeout = 5 * time.Second
		}
	}
	if c.Replica.Listen == "" {
		c.Replica.Listen = ":8420"
	}
	if c.Replica.DB == "" {
		c.Replica.DB = "treemirror.db"
	}
}

// Validate rejects configurations that cannot be wired.
func (c *Config) Validate() error {
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook", "websocket":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: %s sink needs a url", i, s.Type)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	if (c.Replica.TLSCert == "") != (c.Replica.TLSKey == "") {
		return fmt.Errorf("config: replica: tls_cert and tls_key go together")
	}
	if c.Source.File != "" && c.Source.URL != "" {
		return fmt.Errorf("config: source: file and url are exclusive")
	}
	return nil
}
