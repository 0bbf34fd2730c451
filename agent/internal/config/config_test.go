package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.AutoDiscovery() {
		t.Error("default config should auto-discover")
	}
	if cfg.Discovery.Port != 3000 {
		t.Errorf("port: got %d, want 3000", cfg.Discovery.Port)
	}
	if cfg.Server.ConnectTimeout != 5*time.Second {
		t.Errorf("connect timeout: got %v", cfg.Server.ConnectTimeout)
	}
	if cfg.Server.MaxAttempts != 3 {
		t.Errorf("max attempts: got %d", cfg.Server.MaxAttempts)
	}
	if cfg.Health.HeartbeatInterval != 10*time.Second {
		t.Errorf("heartbeat interval: got %v", cfg.Health.HeartbeatInterval)
	}
	if cfg.Commands.Timeout != 30*time.Second {
		t.Errorf("command timeout: got %v", cfg.Commands.Timeout)
	}
	if !cfg.Server.VerifySSL {
		t.Error("TLS verification should default on")
	}
}

func TestDefaultSweepHosts(t *testing.T) {
	hosts := DefaultSweepHosts()

	want := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20,
		50, 100, 101, 102, 103, 104, 105, 200, 254}
	if !reflect.DeepEqual(hosts, want) {
		t.Errorf("sweep hosts: got %v, want %v", hosts, want)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnvOverrides(envMap(map[string]string{
		"SERVER_URL":         "wss://control.example:8443",
		"AGENT_TOKEN":        "s3cret",
		"AGENT_ID":           "agent-1",
		"AGENT_NICKNAME":     "lab-07",
		"AGENT_TAGS":         "lab, windows,,floor-2 ",
		"VERIFY_SSL":         "False",
		"COMMAND_TIMEOUT_MS": "1500",
		"OP_CONNECT_HOST":    "http://op:8080",
		"AGENT_TOKEN_ITEM":   "agent-token",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.URL != "wss://control.example:8443" {
		t.Errorf("url: got %s", cfg.Server.URL)
	}
	if cfg.AutoDiscovery() {
		t.Error("explicit URL should disable discovery")
	}
	if cfg.Agent.Token != "s3cret" || cfg.Agent.ID != "agent-1" || cfg.Agent.Nickname != "lab-07" {
		t.Errorf("identity not applied: %+v", cfg.Agent)
	}
	if want := []string{"lab", "windows", "floor-2"}; !reflect.DeepEqual(cfg.Agent.Tags, want) {
		t.Errorf("tags: got %v, want %v", cfg.Agent.Tags, want)
	}
	if cfg.Server.VerifySSL {
		t.Error("VERIFY_SSL=False should disable verification")
	}
	if cfg.Commands.Timeout != 1500*time.Millisecond {
		t.Errorf("command timeout: got %v", cfg.Commands.Timeout)
	}
	if cfg.Secrets.OnePassword.Host != "http://op:8080" || cfg.Secrets.OnePassword.Item != "agent-token" {
		t.Errorf("1password overrides not applied: %+v", cfg.Secrets.OnePassword)
	}
	if cfg.Secrets.OnePassword.Field != "token" {
		t.Errorf("field default lost: %s", cfg.Secrets.OnePassword.Field)
	}
}

func TestApplyEnvOverrides_Malformed(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad timeout", map[string]string{"COMMAND_TIMEOUT_MS": "soon"}},
		{"bad verify", map[string]string{"VERIFY_SSL": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if err := cfg.ApplyEnvOverrides(envMap(tt.env)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestApplyIdentityDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyIdentityDefaults("host-a")

	if len(cfg.Agent.ID) != 36 {
		t.Errorf("expected generated UUID, got %q", cfg.Agent.ID)
	}
	if cfg.Agent.Nickname != "host-a" {
		t.Errorf("nickname: got %q", cfg.Agent.Nickname)
	}

	cfg2 := DefaultConfig()
	cfg2.Agent.ID = "fixed"
	cfg2.Agent.Nickname = "named"
	cfg2.ApplyIdentityDefaults("host-b")
	if cfg2.Agent.ID != "fixed" || cfg2.Agent.Nickname != "named" {
		t.Errorf("configured identity overwritten: %+v", cfg2.Agent)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := `
server:
  url: ws://10.1.2.3:3000
  reconnect_delay: 2s
agent:
  nickname: from-file
  tags: [a, b]
discovery:
  sweep_hosts: [1, 254]
health:
  heartbeat_interval: 15s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.URL != "ws://10.1.2.3:3000" {
		t.Errorf("url: got %s", cfg.Server.URL)
	}
	if cfg.Server.ReconnectDelay != 2*time.Second {
		t.Errorf("reconnect delay: got %v", cfg.Server.ReconnectDelay)
	}
	// Unset fields keep defaults
	if cfg.Server.ConnectTimeout != 5*time.Second {
		t.Errorf("connect timeout default lost: %v", cfg.Server.ConnectTimeout)
	}
	if !reflect.DeepEqual(cfg.Discovery.SweepHosts, []int{1, 254}) {
		t.Errorf("sweep hosts: got %v", cfg.Discovery.SweepHosts)
	}
	if cfg.Health.HeartbeatInterval != 15*time.Second {
		t.Errorf("heartbeat: got %v", cfg.Health.HeartbeatInterval)
	}
	if !reflect.DeepEqual(cfg.Agent.Tags, []string{"a", "b"}) {
		t.Errorf("tags: got %v", cfg.Agent.Tags)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Agent.ID = "agent-1"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"explicit ws", func(c *Config) { c.Server.URL = "ws://10.0.0.5:3000" }, false},
		{"explicit wss", func(c *Config) { c.Server.URL = "wss://server.local:3000" }, false},
		{"http scheme", func(c *Config) { c.Server.URL = "http://10.0.0.5:3000" }, true},
		{"no host", func(c *Config) { c.Server.URL = "ws://" }, true},
		{"missing id", func(c *Config) { c.Agent.ID = "" }, true},
		{"zero connect timeout", func(c *Config) { c.Server.ConnectTimeout = 0 }, true},
		{"zero reconnect delay", func(c *Config) { c.Server.ReconnectDelay = 0 }, true},
		{"zero attempts", func(c *Config) { c.Server.MaxAttempts = 0 }, true},
		{"bad port", func(c *Config) { c.Discovery.Port = 70000 }, true},
		{"bad sweep octet", func(c *Config) { c.Discovery.SweepHosts = []int{0} }, true},
		{"zero command timeout", func(c *Config) { c.Commands.Timeout = 0 }, true},
		{"zero heartbeat", func(c *Config) { c.Health.HeartbeatInterval = 0 }, true},
		{"unknown secrets backend", func(c *Config) { c.Secrets.Backend = "vault" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
