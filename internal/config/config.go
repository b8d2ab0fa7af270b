package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no config file is given.
const DefaultPath = "certwatch.yaml"

// Config is the complete certwatch configuration.
type Config struct {
	Log     LogConfig               `yaml:"log"`
	Server  ServerConfig            `yaml:"server"`
	Bundles map[string]BundleConfig `yaml:"bundles"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	// Listen is the address the HTTPS server binds to.
	Listen string `yaml:"listen"`
	// Bundle names the TLS bundle the server presents.
	Bundle string `yaml:"bundle"`
}

// BundleConfig describes one TLS bundle's source files.
type BundleConfig struct {
	Certificate  string `yaml:"certificate"`
	PrivateKey   string `yaml:"private_key"`
	TrustAnchors string `yaml:"trust_anchors"`

	// ReloadOnUpdate rebuilds the bundle when its files change.
	ReloadOnUpdate bool `yaml:"reload_on_update"`

	// QuietPeriod is the reload debounce window as a Go duration string
	// ("10s", "500ms"). Empty selects the watcher default.
	QuietPeriod string `yaml:"quiet_period"`
}

// ParseQuietPeriod returns the configured quiet period, zero when unset.
func (b BundleConfig) ParseQuietPeriod() (time.Duration, error) {
	if b.QuietPeriod == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(b.QuietPeriod)
	if err != nil {
		return 0, fmt.Errorf("invalid quiet_period %q: %w", b.QuietPeriod, err)
	}
	return d, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:     LogConfig{Level: "info"},
		Server:  ServerConfig{Listen: ":8443"},
		Bundles: map[string]BundleConfig{},
	}
}

// Load reads the configuration file at path, applies defaults and
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("CERTWATCH_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("CERTWATCH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration for internal consistency. It does not
// touch the filesystem; missing files surface at bundle registration.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	for _, name := range c.BundleNames() {
		b := c.Bundles[name]
		if b.Certificate == "" {
			return fmt.Errorf("bundle %q: certificate is required", name)
		}
		if b.PrivateKey == "" {
			return fmt.Errorf("bundle %q: private_key is required", name)
		}
		if _, err := b.ParseQuietPeriod(); err != nil {
			return fmt.Errorf("bundle %q: %w", name, err)
		}
	}

	if c.Server.Bundle != "" {
		if _, ok := c.Bundles[c.Server.Bundle]; !ok {
			return fmt.Errorf("server.bundle %q is not a configured bundle", c.Server.Bundle)
		}
	}
	return nil
}

// BundleNames returns the configured bundle names in stable order.
func (c *Config) BundleNames() []string {
	names := make([]string, 0, len(c.Bundles))
	for name := range c.Bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
