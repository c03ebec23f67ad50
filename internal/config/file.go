package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML config file. Every field is optional;
// environment variables and flags override whatever it sets.
//
//	listen_addr: 0.0.0.0:9000
//	allowed_origins: [https://app.example.com]
//	ws_idle_timeout: 60s
//	ice_servers:
//	  - urls: stun:stun.l.google.com:19302
type fileConfig struct {
	ListenAddr      string       `yaml:"listen_addr"`
	PublicBaseURL   string       `yaml:"public_base_url"`
	AllowedOrigins  []string     `yaml:"allowed_origins"`
	Mode            string       `yaml:"mode"`
	LogFormat       string       `yaml:"log_format"`
	LogLevel        string       `yaml:"log_level"`
	ShutdownTimeout yamlDuration `yaml:"shutdown_timeout"`

	MaxMessageBytes *int64       `yaml:"max_message_bytes"`
	SendQueueBytes  *int         `yaml:"send_queue_bytes"`
	WSIdleTimeout   yamlDuration `yaml:"ws_idle_timeout"`
	WSPingInterval  yamlDuration `yaml:"ws_ping_interval"`
	WSWriteTimeout  yamlDuration `yaml:"ws_write_timeout"`

	ICEServers     []iceServerEntry `yaml:"ice_servers"`
	StunURLs       []string         `yaml:"stun_urls"`
	TurnURLs       []string         `yaml:"turn_urls"`
	TurnUsername   string           `yaml:"turn_username"`
	TurnCredential string           `yaml:"turn_credential"`
}

// yamlDuration accepts Go duration strings ("15s", "1m30s").
type yamlDuration struct {
	d   time.Duration
	set bool
}

func (d *yamlDuration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.d, d.set = parsed, true
	return nil
}

func (d yamlDuration) or(fallback time.Duration) time.Duration {
	if d.set {
		return d.d
	}
	return fallback
}

// loadFile reads path. An empty path yields an empty config. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func loadFile(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}
