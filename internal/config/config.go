// Package config holds the endpoint and relay configuration: defaults, an
// optional YAML or JSONC file, and command-line flags, applied in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServer        = "localhost"
	DefaultPort          = 8888
	DefaultStatsInterval = 10 // seconds
)

// DefaultICEServers are used when neither file nor flags name any.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

// Config is the endpoint configuration.
type Config struct {
	Server        string   `yaml:"server" json:"server"`
	Port          int      `yaml:"port" json:"port"`
	Name          string   `yaml:"name" json:"name"`
	ICEServers    []string `yaml:"ice_servers" json:"ice_servers"`
	SendMedia     bool     `yaml:"send_media" json:"send_media"`
	Peer          string   `yaml:"peer" json:"peer"`                     // call this peer by name once it is listed
	LogLevel      string   `yaml:"log_level" json:"log_level"`           // trace, debug, info, warn, error
	StatsInterval int      `yaml:"stats_interval" json:"stats_interval"` // seconds; 0 disables
}

// RelayConfig is the relay server configuration.
type RelayConfig struct {
	Listen   string `yaml:"listen" json:"listen"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Default returns the endpoint defaults. The name is user@host, as the relay
// shows it to other peers.
func Default() Config {
	return Config{
		Server:        DefaultServer,
		Port:          DefaultPort,
		Name:          defaultName(),
		ICEServers:    append([]string(nil), DefaultICEServers...),
		LogLevel:      "info",
		StatsInterval: DefaultStatsInterval,
	}
}

// DefaultRelay returns the relay defaults.
func DefaultRelay() RelayConfig {
	return RelayConfig{
		Listen:   fmt.Sprintf(":%d", DefaultPort),
		LogLevel: "info",
	}
}

func defaultName() string {
	username := "user"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
		// Windows reports DOMAIN\user.
		if i := strings.LastIndex(username, `\`); i >= 0 {
			username = username[i+1:]
		}
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "host"
	}
	return username + "@" + host
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return errors.New("server must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d (must be 1~65535)", c.Port)
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name must not be empty")
	}
	if c.StatsInterval < 0 {
		return fmt.Errorf("invalid stats interval %d", c.StatsInterval)
	}
	for _, uri := range c.ICEServers {
		if !strings.HasPrefix(uri, "stun:") && !strings.HasPrefix(uri, "turn:") && !strings.HasPrefix(uri, "turns:") {
			return fmt.Errorf("invalid ICE server %q (want stun:, turn: or turns:)", uri)
		}
	}
	return nil
}

// Validate reports the first invalid field.
func (c *RelayConfig) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("listen address must not be empty")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// LoadFile overlays the file at path onto dst. The format follows the
// extension: .yaml/.yml, or .json/.jsonc (comments and trailing commas
// allowed).
func LoadFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, dst); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), dst); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	default:
		return fmt.Errorf("%s: unsupported config format (want .yaml, .yml, .json or .jsonc)", path)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

// Parse builds the endpoint configuration from args (without the program
// name). The returned error wraps pflag.ErrHelp when -h was given.
func Parse(args []string) (Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("peertalk", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Configuration file (.yaml, .yml, .json, .jsonc)")
	server := fs.StringP("server", "s", cfg.Server, "Relay server host")
	port := fs.IntP("port", "p", cfg.Port, "Relay server port (1~65535)")
	name := fs.StringP("name", "n", cfg.Name, "Name shown to other peers")
	iceServers := fs.StringSlice("ice-server", cfg.ICEServers, "STUN/TURN server URI (repeatable)")
	sendMedia := fs.Bool("send-media", cfg.SendMedia, "Publish a local audio/video stream")
	peer := fs.String("peer", "", "Call this peer automatically once it signs in")
	logLevel := fs.String("log-level", cfg.LogLevel, "Log level: trace, debug, info, warn, error")
	debug := fs.Bool("debug", false, "Enable debug logging (same as --log-level debug)")
	statsInterval := fs.Int("stats-interval", cfg.StatsInterval, "Seconds between statistics reports (0 disables)")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *configPath != "" {
		if err := LoadFile(*configPath, &cfg); err != nil {
			return cfg, err
		}
	}

	// Flags given explicitly win over the file.
	if fs.Changed("server") {
		cfg.Server = *server
	}
	if fs.Changed("port") {
		cfg.Port = *port
	}
	if fs.Changed("name") {
		cfg.Name = *name
	}
	if fs.Changed("ice-server") {
		cfg.ICEServers = *iceServers
	}
	if fs.Changed("send-media") {
		cfg.SendMedia = *sendMedia
	}
	if fs.Changed("peer") {
		cfg.Peer = *peer
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if fs.Changed("stats-interval") {
		cfg.StatsInterval = *statsInterval
	}

	return cfg, cfg.Validate()
}

// ParseRelay builds the relay configuration from args.
func ParseRelay(args []string) (RelayConfig, error) {
	cfg := DefaultRelay()

	fs := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Configuration file (.yaml, .yml, .json, .jsonc)")
	listen := fs.StringP("listen", "l", cfg.Listen, "Address to listen on")
	logLevel := fs.String("log-level", cfg.LogLevel, "Log level: trace, debug, info, warn, error")
	debug := fs.Bool("debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *configPath != "" {
		if err := LoadFile(*configPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if fs.Changed("listen") {
		cfg.Listen = *listen
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	return cfg, cfg.Validate()
}
