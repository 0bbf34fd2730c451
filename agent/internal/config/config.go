// Package config handles agent configuration loading and validation.
//
// # Configuration Sources
//
// Configuration is loaded from (in order of precedence):
//  1. Command-line flags
//  2. Environment variables (SERVER_URL, AGENT_*, ...)
//  3. Config file (YAML)
//  4. Defaults
//
// The result is a plain value. It is built once in main and handed to every
// component constructor; nothing else reads the environment.
//
// # Example Config File
//
//	server:
//	  url: auto
//	  verify_ssl: true
//
//	agent:
//	  nickname: lab-pc-07
//	  tags: [lab, windows]
//	  token: change-me
//
//	discovery:
//	  port: 3000
//	  sweep_hosts: [1, 2, 3, 254]
//
//	commands:
//	  timeout: 30s
//
//	health:
//	  heartbeat_interval: 10s
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// AutoDiscover is the server URL value that enables discovery.
const AutoDiscover = "auto"

// Config is the complete agent configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Agent     AgentConfig     `yaml:"agent"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Commands  CommandConfig   `yaml:"commands"`
	Health    HealthConfig    `yaml:"health"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Secrets   SecretsConfig   `yaml:"secrets"`
}

// ServerConfig defines how to reach the control server.
type ServerConfig struct {
	URL string `yaml:"url"` // "auto" or ws(s)://host:port

	// VerifySSL=false skips certificate validation on wss:// endpoints.
	// Development only.
	VerifySSL bool `yaml:"verify_ssl"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// MaxAttempts is how many times a candidate may fail before it is skipped.
	MaxAttempts int `yaml:"max_attempts"`
}

// AgentConfig defines agent identity.
type AgentConfig struct {
	ID       string   `yaml:"id"`
	Nickname string   `yaml:"nickname"`
	Tags     []string `yaml:"tags"`
	Token    string   `yaml:"token"`
}

// DiscoveryConfig holds the discovery tiers' parameters.
type DiscoveryConfig struct {
	Port              int           `yaml:"port"`
	LocalHosts        []string      `yaml:"local_hosts"`
	ARPProbeTimeout   time.Duration `yaml:"arp_probe_timeout"`
	SweepProbeTimeout time.Duration `yaml:"sweep_probe_timeout"`
	SweepHosts        []int         `yaml:"sweep_hosts"` // host octets within the local /24
	DNSNames          []string      `yaml:"dns_names"`
	FallbackIPs       []string      `yaml:"fallback_ips"`

	// Address used to learn the local IP. No packet is sent to it.
	LocalIPProbeAddr string `yaml:"local_ip_probe_addr"`

	ProbeConcurrency int     `yaml:"probe_concurrency"`
	ProbeRate        float64 `yaml:"probe_rate"` // probes per second
}

// CommandConfig defines command execution behavior.
type CommandConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Shell   string        `yaml:"shell,omitempty"` // default: sh (cmd on windows)
}

// HealthConfig defines heartbeat behavior.
type HealthConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// TelemetryConfig tunes the telemetry collector.
type TelemetryConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval"` // CPU percent sampling window
}

// SecretsConfig selects where the agent token comes from.
type SecretsConfig struct {
	Backend     string            `yaml:"backend"` // "static", "1password" or "auto"
	OnePassword OnePasswordConfig `yaml:"onepassword"`
}

// OnePasswordConfig locates the token in a 1Password Connect vault.
type OnePasswordConfig struct {
	Host    string `yaml:"host"`
	Token   string `yaml:"token"`
	VaultID string `yaml:"vault_id"`
	Item    string `yaml:"item"`
	Field   string `yaml:"field"`
}

// DefaultSweepHosts is the curated set of host octets probed in the local /24.
func DefaultSweepHosts() []int {
	hosts := make([]int, 0, 29)
	for i := 1; i <= 20; i++ {
		hosts = append(hosts, i)
	}
	hosts = append(hosts, 50)
	for i := 100; i <= 105; i++ {
		hosts = append(hosts, i)
	}
	return append(hosts, 200, 254)
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:            AutoDiscover,
			VerifySSL:      true,
			ConnectTimeout: 5 * time.Second,
			ReconnectDelay: 5 * time.Second,
			MaxAttempts:    3,
		},
		Discovery: DiscoveryConfig{
			Port:              3000,
			LocalHosts:        []string{"localhost", "127.0.0.1"},
			ARPProbeTimeout:   500 * time.Millisecond,
			SweepProbeTimeout: 300 * time.Millisecond,
			SweepHosts:        DefaultSweepHosts(),
			DNSNames:          []string{"server.local", "remote-agent-server", "remote-agent"},
			FallbackIPs:       []string{"192.168.1.1", "192.168.0.1", "10.0.0.1", "172.16.0.1"},
			LocalIPProbeAddr:  "8.8.8.8:80",
			ProbeConcurrency:  16,
			ProbeRate:         100,
		},
		Commands: CommandConfig{
			Timeout: 30 * time.Second,
		},
		Health: HealthConfig{
			HeartbeatInterval: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			SampleInterval: time.Second,
		},
		Secrets: SecretsConfig{
			Backend: "static",
			OnePassword: OnePasswordConfig{
				Field: "token",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides using getenv
// (os.Getenv in main, a map lookup in tests):
//   - SERVER_URL ("auto" or explicit endpoint)
//   - AGENT_TOKEN, AGENT_ID, AGENT_NICKNAME
//   - AGENT_TAGS (comma-separated)
//   - VERIFY_SSL ("true"/"false")
//   - COMMAND_TIMEOUT_MS (integer milliseconds)
//   - AGENT_SECRETS_BACKEND, OP_CONNECT_HOST, OP_CONNECT_TOKEN, OP_VAULT_ID,
//     AGENT_TOKEN_ITEM, AGENT_TOKEN_FIELD
//
// Malformed numeric or boolean values are returned as an error rather
// than silently ignored.
func (c *Config) ApplyEnvOverrides(getenv func(string) string) error {
	if v := getenv("SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := getenv("AGENT_TOKEN"); v != "" {
		c.Agent.Token = v
	}
	if v := getenv("AGENT_ID"); v != "" {
		c.Agent.ID = v
	}
	if v := getenv("AGENT_NICKNAME"); v != "" {
		c.Agent.Nickname = v
	}
	if v := getenv("AGENT_TAGS"); v != "" {
		c.Agent.Tags = SplitTags(v)
	}
	if v := getenv("VERIFY_SSL"); v != "" {
		verify, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return fmt.Errorf("VERIFY_SSL: %w", err)
		}
		c.Server.VerifySSL = verify
	}
	if v := getenv("COMMAND_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("COMMAND_TIMEOUT_MS: %w", err)
		}
		c.Commands.Timeout = time.Duration(ms) * time.Millisecond
	}

	if v := getenv("AGENT_SECRETS_BACKEND"); v != "" {
		c.Secrets.Backend = v
	}
	op := &c.Secrets.OnePassword
	if v := getenv("OP_CONNECT_HOST"); v != "" {
		op.Host = v
	}
	if v := getenv("OP_CONNECT_TOKEN"); v != "" {
		op.Token = v
	}
	if v := getenv("OP_VAULT_ID"); v != "" {
		op.VaultID = v
	}
	if v := getenv("AGENT_TOKEN_ITEM"); v != "" {
		op.Item = v
	}
	if v := getenv("AGENT_TOKEN_FIELD"); v != "" {
		op.Field = v
	}
	return nil
}

// SplitTags splits a comma-separated tag list, trimming blanks.
func SplitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// ApplyIdentityDefaults fills in a random ID and the host name as nickname
// when they were not configured.
func (c *Config) ApplyIdentityDefaults(hostname string) {
	if c.Agent.ID == "" {
		c.Agent.ID = uuid.New().String()
	}
	if c.Agent.Nickname == "" {
		c.Agent.Nickname = hostname
	}
}

// AutoDiscovery reports whether the server must be discovered.
func (c *Config) AutoDiscovery() bool {
	return c.Server.URL == "" || c.Server.URL == AutoDiscover
}

// Validate checks that the configuration can be used.
func (c *Config) Validate() error {
	if !c.AutoDiscovery() {
		u, err := url.Parse(c.Server.URL)
		if err != nil {
			return fmt.Errorf("server.url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("server.url must use ws:// or wss://, got %q", c.Server.URL)
		}
		if u.Host == "" {
			return fmt.Errorf("server.url has no host: %q", c.Server.URL)
		}
	}
	if c.Agent.ID == "" {
		return fmt.Errorf("agent.id is required")
	}
	if c.Server.ConnectTimeout <= 0 {
		return fmt.Errorf("server.connect_timeout must be positive")
	}
	if c.Server.ReconnectDelay <= 0 {
		return fmt.Errorf("server.reconnect_delay must be positive")
	}
	if c.Server.MaxAttempts <= 0 {
		return fmt.Errorf("server.max_attempts must be positive")
	}
	if c.Discovery.Port < 1 || c.Discovery.Port > 65535 {
		return fmt.Errorf("discovery.port out of range: %d", c.Discovery.Port)
	}
	for _, h := range c.Discovery.SweepHosts {
		if h < 1 || h > 254 {
			return fmt.Errorf("discovery.sweep_hosts: invalid host octet %d", h)
		}
	}
	if c.Commands.Timeout <= 0 {
		return fmt.Errorf("commands.timeout must be positive")
	}
	if c.Health.HeartbeatInterval <= 0 {
		return fmt.Errorf("health.heartbeat_interval must be positive")
	}
	switch c.Secrets.Backend {
	case "", "static", "1password", "auto":
	default:
		return fmt.Errorf("unknown secrets backend: %s", c.Secrets.Backend)
	}
	return nil
}
