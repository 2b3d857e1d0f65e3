package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"phobos.org.uk/ccbridge/internal/bridge"
	"phobos.org.uk/ccbridge/internal/logging"
)

// Config is the bridge configuration.
type Config struct {
	Port     int          `yaml:"port"`
	Bind     string       `yaml:"bind"`
	LogLevel string       `yaml:"log_level"`
	Engine   EngineConfig `yaml:"engine"`
	Auth     AuthConfig   `yaml:"auth"`
}

// EngineConfig describes how the analytics engine is launched.
type EngineConfig struct {
	Module    string            `yaml:"module"`
	Dir       string            `yaml:"dir"`
	Env       map[string]string `yaml:"env,omitempty"`
	Launchers []bridge.Launcher `yaml:"launchers,omitempty"`
	// Timeout bounds HTTP-initiated calls. Zero leaves calls unbounded.
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig protects the HTTP API. An empty TokenHash disables auth.
type AuthConfig struct {
	TokenHash string `yaml:"token_hash"`
}

// Defaults
const (
	DefaultPort     = 9310
	DefaultBind     = "127.0.0.1"
	DefaultLogLevel = "info"
)

// Parse parses YAML config data
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Engine.Launchers = nil

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.Engine.Launchers) == 0 {
		cfg.Engine.Launchers = bridge.DefaultLaunchers()
	}
	for i := range cfg.Engine.Launchers {
		if cfg.Engine.Launchers[i].Name == "" {
			cfg.Engine.Launchers[i].Name = cfg.Engine.Launchers[i].Program
		}
	}
	if cfg.Engine.Dir != "" {
		cfg.Engine.Dir = expandHome(cfg.Engine.Dir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads config from a file path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// LoadDefault loads DefaultPath if it exists and returns Default otherwise.
func LoadDefault() (*Config, error) {
	path := DefaultPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks config validity
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	if strings.TrimSpace(c.Engine.Module) == "" {
		return fmt.Errorf("engine.module is required")
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("engine.timeout must not be negative, got %v", c.Engine.Timeout)
	}

	seen := make(map[string]bool)
	for i, l := range c.Engine.Launchers {
		if strings.TrimSpace(l.Program) == "" {
			return fmt.Errorf("engine.launchers[%d]: program is required", i)
		}
		if seen[l.Name] {
			return fmt.Errorf("engine.launchers[%d]: duplicate launcher name %q", i, l.Name)
		}
		seen[l.Name] = true
	}

	if c.Auth.TokenHash != "" && !strings.HasPrefix(c.Auth.TokenHash, "$argon2id$") {
		return fmt.Errorf("auth.token_hash must be an argon2id hash (see 'ccbridge hash-token')")
	}
	return nil
}

// Default returns a config with default values
func Default() *Config {
	return &Config{
		Port:     DefaultPort,
		Bind:     DefaultBind,
		LogLevel: DefaultLogLevel,
		Engine: EngineConfig{
			Module:    bridge.DefaultModule,
			Launchers: bridge.DefaultLaunchers(),
		},
	}
}

// EnvList renders Engine.Env as sorted KEY=VALUE pairs.
func (c *Config) EnvList() []string {
	keys := make([]string, 0, len(c.Engine.Env))
	for k := range c.Engine.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+c.Engine.Env[k])
	}
	return env
}

// BridgeOptions maps the engine section onto bridge options.
func (c *Config) BridgeOptions(log *logging.Logger) bridge.Options {
	return bridge.Options{
		Launchers: c.Engine.Launchers,
		Module:    c.Engine.Module,
		Dir:       c.Engine.Dir,
		Env:       c.EnvList(),
		Log:       log,
	}
}

// Root returns CCBRIDGE_ROOT, or ~/.ccbridge when unset.
func Root() string {
	if root := os.Getenv("CCBRIDGE_ROOT"); root != "" {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".ccbridge")
}

// DefaultPath returns the config file location under Root.
func DefaultPath() string {
	return filepath.Join(Root(), "config.yaml")
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
