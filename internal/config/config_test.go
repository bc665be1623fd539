package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server != DefaultServer || cfg.Port != DefaultPort {
		t.Errorf("relay = %s:%d", cfg.Server, cfg.Port)
	}
	if cfg.Name == "" {
		t.Error("empty default name")
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0] != DefaultICEServers[0] {
		t.Errorf("ICE servers = %v", cfg.ICEServers)
	}
	if cfg.SendMedia || cfg.Peer != "" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "peertalk.yaml", `
server: relay.example.com
port: 9000
name: alice@laptop
ice_servers:
  - stun:stun.example.com:3478
send_media: true
`)
	cfg, err := Parse([]string{"--config", path})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server != "relay.example.com" || cfg.Port != 9000 || cfg.Name != "alice@laptop" || !cfg.SendMedia {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0] != "stun:stun.example.com:3478" {
		t.Errorf("ICE servers = %v", cfg.ICEServers)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("unset field lost its default: log level %q", cfg.LogLevel)
	}
}

func TestLoadJSONC(t *testing.T) {
	path := writeFile(t, "peertalk.jsonc", `{
  // relay
  "server": "10.0.0.2",
  "port": 8080, /* non-default */
  "peer": "bob@desktop",
}`)
	cfg, err := Parse([]string{"-c", path})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server != "10.0.0.2" || cfg.Port != 8080 || cfg.Peer != "bob@desktop" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "peertalk.yml", "server: from-file\nport: 9000\n")
	cfg, err := Parse([]string{"--config", path, "--port", "7000", "--debug"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server != "from-file" {
		t.Errorf("server = %q, want the file value", cfg.Server)
	}
	if cfg.Port != 7000 {
		t.Errorf("port = %d, want the flag value", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
}

func TestRepeatedICEServerFlag(t *testing.T) {
	cfg, err := Parse([]string{"--ice-server", "stun:a:1", "--ice-server", "turn:b:2"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.ICEServers) != 2 || cfg.ICEServers[0] != "stun:a:1" || cfg.ICEServers[1] != "turn:b:2" {
		t.Errorf("ICE servers = %v", cfg.ICEServers)
	}
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"port out of range", []string{"--port", "70000"}},
		{"empty name", []string{"--name", " "}},
		{"bad ice server", []string{"--ice-server", "http://x"}},
		{"negative stats interval", []string{"--stats-interval", "-1"}},
		{"unknown flag", []string{"--bogus"}},
		{"missing file", []string{"--config", "/nonexistent/peertalk.yaml"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.args); err == nil {
				t.Errorf("Parse(%v) succeeded", tc.args)
			}
		})
	}
}

func TestUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "peertalk.toml", "server = 'x'")
	var cfg Config
	if err := LoadFile(path, &cfg); err == nil {
		t.Error("toml accepted")
	}
}

func TestHelp(t *testing.T) {
	if _, err := Parse([]string{"--help"}); !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("error = %v, want pflag.ErrHelp", err)
	}
}

func TestParseRelay(t *testing.T) {
	cfg, err := ParseRelay(nil)
	if err != nil {
		t.Fatalf("ParseRelay: %v", err)
	}
	if cfg.Listen != ":8888" {
		t.Errorf("listen = %q", cfg.Listen)
	}

	path := writeFile(t, "relay.yaml", "listen: 127.0.0.1:9999\nlog_level: warn\n")
	cfg, err = ParseRelay([]string{"-c", path, "--debug"})
	if err != nil {
		t.Fatalf("ParseRelay: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9999" || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := ParseRelay([]string{"--listen", ""}); err == nil {
		t.Error("empty listen address accepted")
	}
}
