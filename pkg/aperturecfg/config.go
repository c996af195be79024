// Package aperturecfg is the single TOML global configuration file: default
// timeout, retry defaults, per-API base-URL/environment overrides, secret
// bindings, and command-name mappings. Read-only to the execution engine.
// Grounded on the teacher's config-manager idiom (one struct per concern,
// atomic writes, functional discovery of the config root) generalised from
// per-profile YAML to a single TOML document, per the teacher/pack's other
// TOML-based configuration component.
package aperturecfg

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kioku/aperture/internal/atomicio"
	"github.com/kioku/aperture/pkg/aperrors"
	"github.com/kioku/aperture/pkg/transform"
)

// RetryDefaults are the fallback retry parameters used when a CLI
// invocation does not set its own.
type RetryDefaults struct {
	MaxAttempts int    `toml:"max_attempts"`
	BaseDelay   string `toml:"base_delay"`
	MaxDelay    string `toml:"max_delay"`
}

// APIConfig is the per-API section of the global config.
type APIConfig struct {
	SpecPath        string                       `toml:"spec_path"`
	BaseURL         string                       `toml:"base_url,omitempty"`
	EnvironmentURLs map[string]string            `toml:"environment_urls,omitempty"`
	Secrets         map[string]string            `toml:"secrets,omitempty"`
	CommandMapping  *transform.CommandMapping    `toml:"command_mapping,omitempty"`
}

// GlobalConfig is the whole config.toml document.
type GlobalConfig struct {
	DefaultTimeoutSecs int                  `toml:"default_timeout_secs"`
	RetryDefaults      RetryDefaults        `toml:"retry_defaults"`
	ResponseCacheMax   int                  `toml:"response_cache_max_entries"`
	APIs               map[string]APIConfig `toml:"apis"`
}

// Default returns the configuration applied when no config.toml exists yet.
func Default() *GlobalConfig {
	return &GlobalConfig{
		DefaultTimeoutSecs: 30,
		RetryDefaults:      RetryDefaults{MaxAttempts: 0, BaseDelay: "200ms", MaxDelay: "30s"},
		ResponseCacheMax:   500,
		APIs:               map[string]APIConfig{},
	}
}

// Manager owns the config root directory and its config.toml file.
type Manager struct {
	dir string
}

// RootDir resolves the config root: APERTURE_CONFIG_DIR if set, else the
// platform user config directory's "aperture" subdirectory.
func RootDir() (string, error) {
	if dir := os.Getenv("APERTURE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", &aperrors.ConfigError{Reason: "resolve user config directory", Err: err}
	}
	return filepath.Join(base, "aperture"), nil
}

// NewManager ensures dir and its subdirectories exist and returns a Manager
// rooted there.
func NewManager(dir string) (*Manager, error) {
	for _, sub := range []string{"", "specs", ".cache", filepath.Join(".cache", "responses")} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return nil, &aperrors.ConfigError{Reason: "create config directory " + sub, Err: err}
		}
	}
	return &Manager{dir: dir}, nil
}

func (m *Manager) Dir() string { return m.dir }

func (m *Manager) configPath() string {
	return filepath.Join(m.dir, "config.toml")
}

// SpecsDir returns the directory original spec files are copied into.
func (m *Manager) SpecsDir() string { return filepath.Join(m.dir, "specs") }

// CacheDir returns the directory holding binary caches and the metadata index.
func (m *Manager) CacheDir() string { return filepath.Join(m.dir, ".cache") }

// Load reads config.toml, returning Default() if it does not yet exist.
func (m *Manager) Load() (*GlobalConfig, error) {
	data, err := os.ReadFile(m.configPath())
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, &aperrors.ConfigError{Reason: "read config.toml", Err: err}
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, &aperrors.ConfigError{Reason: "parse config.toml", Err: err}
	}
	if cfg.APIs == nil {
		cfg.APIs = map[string]APIConfig{}
	}
	return cfg, nil
}

// Save serialises cfg and writes config.toml atomically under the
// directory lock, so it is never observed half-written.
func (m *Manager) Save(cfg *GlobalConfig) error {
	return atomicio.WithLock(m.dir, func() error {
		var buf strings.Builder
		enc := toml.NewEncoder(&buf)
		if err := enc.Encode(cfg); err != nil {
			return &aperrors.ConfigError{Reason: "encode config.toml", Err: err}
		}
		return atomicio.WriteFile(m.configPath(), []byte(buf.String()), 0o600)
	})
}

var apiNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateAPIName enforces the filesystem-path boundary naming rule: ASCII
// alphanumeric plus ".-_", first character alphanumeric, at most 64 chars.
func ValidateAPIName(name string) error {
	if !apiNamePattern.MatchString(name) {
		return &aperrors.ConfigError{Reason: "invalid API name " + name + ": must be alphanumeric plus .-_, starting alphanumeric, at most 64 characters"}
	}
	return nil
}

// Parsed parses the string retry defaults into durations, falling
// back to sane defaults on an empty or malformed value.
func (r RetryDefaults) Parsed() (base, max time.Duration) {
	base, err := time.ParseDuration(r.BaseDelay)
	if err != nil {
		base = 200 * time.Millisecond
	}
	max, err = time.ParseDuration(r.MaxDelay)
	if err != nil {
		max = 30 * time.Second
	}
	return base, max
}
