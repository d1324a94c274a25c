package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/calypso-anemometer/internal/calypso"
	"github.com/chaz8081/calypso-anemometer/internal/telemetry"
)

// Config holds all application configuration.
type Config struct {
	BLE       BLEConfig       `yaml:"ble"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Retry     RetryConfig     `yaml:"retry"`
	LogLevel  string          `yaml:"log_level"`
	Quiet     bool            `yaml:"quiet"`
}

// BLEConfig holds the connection settings for the anemometer.
type BLEConfig struct {
	Adapter          string   `yaml:"adapter"`
	Address          string   `yaml:"address"` // empty: discover by name
	DiscoveryTimeout Duration `yaml:"discovery_timeout"`
	ConnectTimeout   Duration `yaml:"connect_timeout"`
}

// TelemetryConfig holds the defaults for the read command's telemetry target.
type TelemetryConfig struct {
	Target          string `yaml:"target"`
	Talker          string `yaml:"talker"`
	BatteryName     string `yaml:"battery_name"`
	BatteryLocation string `yaml:"battery_location"`
}

// RetryConfig controls reconnecting after a lost session.
type RetryConfig struct {
	Enabled  bool     `yaml:"enabled"`
	MaxDelay Duration `yaml:"max_delay"`
}

// Duration is a time.Duration that reads either a Go duration string
// ("10s") or a number of seconds (10, 2.5).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	v, err := parseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// parseDuration accepts "10s", "1m30s" or plain seconds such as "10" or "2.5".
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "calypso-anemometer")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	s := calypso.DefaultSettings()
	t := telemetry.DefaultOptions()
	return &Config{
		BLE: BLEConfig{
			Adapter:          s.Adapter,
			DiscoveryTimeout: Duration(s.DiscoveryTimeout),
			ConnectTimeout:   Duration(s.ConnectTimeout),
		},
		Telemetry: TelemetryConfig{
			Talker:          t.Talker,
			BatteryName:     t.BatteryName,
			BatteryLocation: t.BatteryLocation,
		},
		Retry: RetryConfig{
			MaxDelay: Duration(30 * time.Second),
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

const defaultHeader = `# calypso-anemometer configuration
# Environment variables CALYPSO_BLE_ADAPTER, CALYPSO_BLE_ADDRESS,
# CALYPSO_BLE_DISCOVERY_TIMEOUT, CALYPSO_BLE_CONNECT_TIMEOUT,
# CALYPSO_LOG_LEVEL and CALYPSO_QUIET override the values below.
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// ("", nil) without touching anything when the file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ApplyEnv overrides config values from CALYPSO_* environment variables.
// CALYPSO_ADDRESS is accepted as an older spelling of CALYPSO_BLE_ADDRESS.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("CALYPSO_BLE_ADAPTER"); ok && v != "" {
		c.BLE.Adapter = v
	}
	if v, ok := os.LookupEnv("CALYPSO_ADDRESS"); ok && v != "" {
		c.BLE.Address = v
	}
	if v, ok := os.LookupEnv("CALYPSO_BLE_ADDRESS"); ok && v != "" {
		c.BLE.Address = v
	}
	for name, dst := range map[string]*Duration{
		"CALYPSO_BLE_DISCOVERY_TIMEOUT": &c.BLE.DiscoveryTimeout,
		"CALYPSO_BLE_CONNECT_TIMEOUT":   &c.BLE.ConnectTimeout,
	} {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = Duration(d)
	}
	if v, ok := os.LookupEnv("CALYPSO_LOG_LEVEL"); ok && v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv("CALYPSO_QUIET"); ok && v != "" {
		quiet, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CALYPSO_QUIET: invalid boolean %q", v)
		}
		c.Quiet = quiet
	}
	return nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.BLE.Adapter == "" {
		return fmt.Errorf("ble.adapter must not be empty")
	}
	if c.BLE.DiscoveryTimeout <= 0 {
		return fmt.Errorf("ble.discovery_timeout must be > 0")
	}
	if c.BLE.ConnectTimeout <= 0 {
		return fmt.Errorf("ble.connect_timeout must be > 0")
	}

	if c.Telemetry.Target != "" {
		if _, err := telemetry.Lookup(c.Telemetry.Target); err != nil {
			return fmt.Errorf("telemetry.target: %w", err)
		}
	}
	if t := c.Telemetry.Talker; t != "" && (len(t) != 2 || strings.ToUpper(t) != t) {
		return fmt.Errorf("telemetry.talker must be two uppercase letters, got %q", t)
	}

	if c.Retry.Enabled && c.Retry.MaxDelay <= 0 {
		return fmt.Errorf("retry.max_delay must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Settings returns the session settings derived from the BLE section.
func (c *Config) Settings() calypso.Settings {
	return calypso.Settings{
		Adapter:          c.BLE.Adapter,
		Address:          c.BLE.Address,
		DiscoveryTimeout: time.Duration(c.BLE.DiscoveryTimeout),
		ConnectTimeout:   time.Duration(c.BLE.ConnectTimeout),
	}
}

// TelemetryOptions returns the encoder options from the telemetry section.
func (c *Config) TelemetryOptions() telemetry.Options {
	return telemetry.Options{
		Talker:          c.Telemetry.Talker,
		BatteryName:     c.Telemetry.BatteryName,
		BatteryLocation: c.Telemetry.BatteryLocation,
	}
}

// ParseLogLevel converts a level name into a slog.Level. Unknown names map
// to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
