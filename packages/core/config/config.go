package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DirName is the project directory holding config.toml and environments/.
const DirName = ".reqx"

// Config represents the reqx project configuration
type Config struct {
	HTTP      HTTPConfig      `toml:"http" yaml:"http"`
	Output    OutputConfig    `toml:"output" yaml:"output"`
	Execution ExecutionConfig `toml:"execution" yaml:"execution"`
	Variables map[string]any  `toml:"variables" yaml:"variables"`

	// Path is the file the configuration was loaded from, empty for defaults.
	Path string `toml:"-" yaml:"-"`
}

type HTTPConfig struct {
	Timeout         int               `toml:"timeout" yaml:"timeout"` // milliseconds
	FollowRedirects *bool             `toml:"follow_redirects" yaml:"follow_redirects"`
	MaxRedirects    int               `toml:"max_redirects" yaml:"max_redirects"`
	Proxy           string            `toml:"proxy" yaml:"proxy"`
	Insecure        bool              `toml:"insecure" yaml:"insecure"`
	Headers         map[string]string `toml:"headers" yaml:"headers"` // sent with every request
}

type OutputConfig struct {
	DefaultFormat string `toml:"default_format" yaml:"default_format"`
	Colors        *bool  `toml:"colors" yaml:"colors"`
}

type ExecutionConfig struct {
	Parallel       int  `toml:"parallel" yaml:"parallel"`
	Retries        int  `toml:"retries" yaml:"retries"`
	RetryDelay     int  `toml:"retry_delay" yaml:"retry_delay"` // milliseconds
	Bail           bool `toml:"bail" yaml:"bail"`
	StrictCaptures bool `toml:"strict_captures" yaml:"strict_captures"`
}

// ConfigFilenames contains the config file names searched inside DirName,
// in order of preference.
var ConfigFilenames = []string{
	"config.toml",
	"config.yaml",
	"config.yml",
}

// ConfigError reports an invalid project, environment or CLI configuration.
// It is detected before any request runs.
type ConfigError struct {
	Path    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error: ")
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func Errorf(path, format string, args ...any) *ConfigError {
	return &ConfigError{Path: path, Message: fmt.Sprintf(format, args...)}
}

func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

func BoolPtr(b bool) *bool {
	return &b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.HTTP.FollowRedirects, true)
}

// GetColors returns the colors setting, defaulting to true
func (c *Config) GetColors() bool {
	return getBool(c.Output.Colors, true)
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.HTTP.Timeout) * time.Millisecond
}

func (c *Config) RetryDelayDuration() time.Duration {
	return time.Duration(c.Execution.RetryDelay) * time.Millisecond
}

// LoadConfig loads configuration from the specified path or searches the
// project directory for one.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(DirName)
}

// FindAndLoadConfig searches for a config file in the given directory. When
// none exists the defaults are returned.
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{Path: path, Message: "config file not found"}
		}
		return nil, &ConfigError{Path: path, Message: "cannot read config", Err: err}
	}

	cfg := DefaultConfig()
	if err := DecodeFile(path, data, cfg); err != nil {
		return nil, err
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// freeFormTables hold user-defined keys at any depth.
var freeFormTables = map[string]bool{"variables": true}

// DecodeFile decodes TOML or YAML content into v, choosing the format from
// the file extension. Unknown TOML keys are rejected.
func DecodeFile(path string, data []byte, v any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return &ConfigError{Path: path, Message: "invalid YAML", Err: err}
		}
	default:
		md, err := toml.Decode(string(data), v)
		if err != nil {
			return &ConfigError{Path: path, Message: "invalid TOML", Err: err}
		}
		var keys []string
		for _, k := range md.Undecoded() {
			// nested tables under [variables] decode into map[string]any
			// but are still reported as undecoded
			if len(k) > 1 && freeFormTables[k[0]] {
				continue
			}
			keys = append(keys, k.String())
		}
		if len(keys) > 0 {
			return &ConfigError{Path: path, Message: "unknown keys: " + strings.Join(keys, ", ")}
		}
	}
	return nil
}

// Validate checks the configuration for values that cannot be honored.
func (c *Config) Validate() error {
	if c.HTTP.Timeout <= 0 {
		return Errorf(c.Path, "http.timeout must be positive, got %d", c.HTTP.Timeout)
	}
	if c.HTTP.MaxRedirects < 0 {
		return Errorf(c.Path, "http.max_redirects must not be negative")
	}
	if c.Execution.Parallel < 1 {
		return Errorf(c.Path, "execution.parallel must be at least 1, got %d", c.Execution.Parallel)
	}
	if c.Execution.Retries < 0 {
		return Errorf(c.Path, "execution.retries must not be negative")
	}
	if c.Execution.RetryDelay < 0 {
		return Errorf(c.Path, "execution.retry_delay must not be negative")
	}
	if !IsValidFormat(c.Output.DefaultFormat) {
		return Errorf(c.Path, "output.default_format %q is not one of %s", c.Output.DefaultFormat, strings.Join(Formats, ", "))
	}
	return nil
}

// Formats lists the report formats accepted by output.default_format.
var Formats = []string{"console", "json", "junit", "tap"}

func IsValidFormat(name string) bool {
	for _, f := range Formats {
		if f == name {
			return true
		}
	}
	return false
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c

	if other.HTTP.Timeout > 0 {
		result.HTTP.Timeout = other.HTTP.Timeout
	}
	if other.HTTP.FollowRedirects != nil {
		result.HTTP.FollowRedirects = other.HTTP.FollowRedirects
	}
	if other.HTTP.MaxRedirects > 0 {
		result.HTTP.MaxRedirects = other.HTTP.MaxRedirects
	}
	if other.HTTP.Proxy != "" {
		result.HTTP.Proxy = other.HTTP.Proxy
	}
	if other.HTTP.Insecure {
		result.HTTP.Insecure = true
	}
	if len(other.HTTP.Headers) > 0 {
		headers := make(map[string]string, len(c.HTTP.Headers)+len(other.HTTP.Headers))
		for k, v := range c.HTTP.Headers {
			headers[k] = v
		}
		for k, v := range other.HTTP.Headers {
			headers[k] = v
		}
		result.HTTP.Headers = headers
	}

	if other.Output.DefaultFormat != "" {
		result.Output.DefaultFormat = other.Output.DefaultFormat
	}
	if other.Output.Colors != nil {
		result.Output.Colors = other.Output.Colors
	}

	if other.Execution.Parallel > 0 {
		result.Execution.Parallel = other.Execution.Parallel
	}
	if other.Execution.Retries > 0 {
		result.Execution.Retries = other.Execution.Retries
	}
	if other.Execution.RetryDelay > 0 {
		result.Execution.RetryDelay = other.Execution.RetryDelay
	}
	if other.Execution.Bail {
		result.Execution.Bail = true
	}
	if other.Execution.StrictCaptures {
		result.Execution.StrictCaptures = true
	}

	if len(other.Variables) > 0 {
		vars := make(map[string]any, len(c.Variables)+len(other.Variables))
		for k, v := range c.Variables {
			vars[k] = v
		}
		for k, v := range other.Variables {
			vars[k] = v
		}
		result.Variables = vars
	}

	return &result
}
