// Package config loads pppring configuration.
//
// Built-in defaults are embedded from default.toml. A config file, when
// present, is decoded on top of them, so it only needs the keys it
// changes. A file that exists but does not parse is an error.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/frobware/go-pppring"
)

//go:embed default.toml
var defaultTOML string

// DefaultConfigPath is read when no --config flag is given.
const DefaultConfigPath = "/etc/pppring/pppring.toml"

// Config is the top-level configuration.
type Config struct {
	Node    NodeConfig    `toml:"node"`
	Ring    RingConfig    `toml:"ring"`
	Auth    AuthConfig    `toml:"auth"`
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
}

// NodeConfig names this cluster member. Empty means the hostname.
type NodeConfig struct {
	Name string `toml:"name"`
}

// RingConfig describes the serial links and how they are supervised.
type RingConfig struct {
	// Media holds ring lines: "<device> <ip> [<device> <ip>]...".
	Media []string `toml:"media"`

	UDPPort int `toml:"udp_port"`
	Baud    int `toml:"baud"`

	Helper        string   `toml:"helper"`
	HelperOptions []string `toml:"helper_options"`

	// StatusDir is where the helper's ip-up hook writes status artifacts.
	StatusDir string `toml:"status_dir"`
	// HelperLog receives helper stdout/stderr. Empty means
	// <status_dir>/start.msgs.
	HelperLog string `toml:"helper_log"`

	WatchdogBudget   time.Duration `toml:"watchdog_budget"`
	WatchdogInterval time.Duration `toml:"watchdog_interval"`
	OpenRetry        time.Duration `toml:"open_retry"`
	Keepalive        time.Duration `toml:"keepalive"`

	// TTL is stamped on heartbeats this node originates.
	TTL int `toml:"ttl"`
}

// HelperLogPath resolves the helper log location.
func (r *RingConfig) HelperLogPath() string {
	if r.HelperLog != "" {
		return r.HelperLog
	}
	return filepath.Join(r.StatusDir, "start.msgs")
}

// AuthConfig holds the shared message authentication key.
type AuthConfig struct {
	Key string `toml:"key"`
}

// ServerConfig controls the daemon's auxiliary listeners.
type ServerConfig struct {
	// MetricsAddress serves Prometheus metrics when set (e.g. "127.0.0.1:9694").
	MetricsAddress string `toml:"metrics_address"`

	// JournalRetention bounds how long transitions stay in the journal.
	// Zero keeps everything.
	JournalRetention time.Duration `toml:"journal_retention"`
}

// LoggingConfig controls logging.
type LoggingConfig struct {
	Level      string            `toml:"level"`
	Format     string            `toml:"format"`
	Components map[string]string `toml:"components"`
}

// ToSpec renders the logging section as a log spec string.
func (c *LoggingConfig) ToSpec() string {
	if len(c.Components) == 0 {
		return c.Level
	}
	base := c.Level
	if base == "" {
		base = "info"
	}
	parts := []string{base}
	for comp, lvl := range c.Components {
		parts = append(parts, comp+"="+lvl)
	}
	return strings.Join(parts, ",")
}

// DefaultConfig decodes the embedded defaults.
func DefaultConfig() Config {
	var cfg Config
	if _, err := toml.Decode(defaultTOML, &cfg); err != nil {
		panic(fmt.Sprintf("embedded default.toml: %v", err))
	}
	return cfg
}

// Load overlays the file at path onto the defaults. A missing file is
// not an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// NodeName returns the configured node name or the hostname.
func (c *Config) NodeName() (string, error) {
	if c.Node.Name != "" {
		return c.Node.Name, nil
	}
	return os.Hostname()
}

// Links parses every media line. Device names must be unique across
// lines.
func (c *Config) Links() ([]pppring.LinkSpec, error) {
	var links []pppring.LinkSpec
	seen := map[string]bool{}
	for _, line := range c.Ring.Media {
		specs, err := ParseMedia(line, c.Ring.UDPPort)
		if err != nil {
			return nil, err
		}
		for _, s := range specs {
			if seen[s.Device] {
				return nil, fmt.Errorf("serial port [%s] configured more than once", s.Device)
			}
			seen[s.Device] = true
			links = append(links, s)
		}
	}
	return links, nil
}

// Validate checks cross-field consistency, including every media line.
func (c *Config) Validate() error {
	r := &c.Ring
	if r.UDPPort <= 0 || r.UDPPort > 65535 {
		return fmt.Errorf("udp_port %d out of range", r.UDPPort)
	}
	if r.Baud <= 0 {
		return fmt.Errorf("baud must be positive, got %d", r.Baud)
	}
	if !filepath.IsAbs(r.Helper) {
		return fmt.Errorf("helper must be an absolute path, got %q", r.Helper)
	}
	if !filepath.IsAbs(r.StatusDir) {
		return fmt.Errorf("status_dir must be an absolute path, got %q", r.StatusDir)
	}
	for name, d := range map[string]time.Duration{
		"watchdog_budget":   r.WatchdogBudget,
		"watchdog_interval": r.WatchdogInterval,
		"open_retry":        r.OpenRetry,
		"keepalive":         r.Keepalive,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if r.WatchdogInterval > r.WatchdogBudget {
		return fmt.Errorf("watchdog_interval %s exceeds watchdog_budget %s", r.WatchdogInterval, r.WatchdogBudget)
	}
	if r.TTL < 1 {
		return fmt.Errorf("ttl must be at least 1, got %d", r.TTL)
	}
	if c.Server.JournalRetention < 0 {
		return fmt.Errorf("journal_retention must not be negative, got %s", c.Server.JournalRetention)
	}
	if c.Auth.Key == "" {
		return errors.New("auth key is required")
	}
	links, err := c.Links()
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return errors.New("no ring media configured")
	}
	return nil
}
