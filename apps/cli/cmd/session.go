package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/abdul-hamid-achik/reqx/packages/core/config"
	"github.com/abdul-hamid-achik/reqx/packages/core/env"
	"github.com/abdul-hamid-achik/reqx/packages/http"
)

var (
	envFlag        string
	envFileFlag    string
	configFlag     string
	varFlags       []string
	timeoutFlag    string
	proxyFlag      string
	insecureFlag   bool
	retriesFlag    int
	retryDelayFlag string
)

// addEnvironmentFlags registers the flags that select configuration and
// variables.
func addEnvironmentFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&envFlag, "env", "e", getEnvString("REQX_ENV", ""), "Environment to use, from .reqx/environments/<name>.toml (env: REQX_ENV)")
	cmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("REQX_ENV_FILE", ""), "Path to .env file for ${VAR} expansion (env: REQX_ENV_FILE)")
	cmd.Flags().StringVar(&configFlag, "config", getEnvString("REQX_CONFIG", ""), "Path to config file (env: REQX_CONFIG)")
	cmd.Flags().StringArrayVar(&varFlags, "var", nil, "Set a variable, overriding the environment (KEY=VALUE, repeatable)")
}

// addTransportFlags registers the HTTP client flags, except the request
// timeout, which not every command exposes under that name.
func addTransportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("REQX_PROXY", ""), "Proxy URL for HTTP requests (env: REQX_PROXY)")
	cmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("REQX_INSECURE", false), "Disable SSL certificate validation (env: REQX_INSECURE)")
	cmd.Flags().IntVar(&retriesFlag, "retries", getEnvInt("REQX_RETRIES", 0), "Retry requests that fail at the transport level (env: REQX_RETRIES)")
	cmd.Flags().StringVar(&retryDelayFlag, "retry-delay", getEnvString("REQX_RETRY_DELAY", ""), "Pause between retries, e.g. 500ms (env: REQX_RETRY_DELAY)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// session is everything a run needs that comes from configuration. It is
// rebuilt from disk for every run so watch re-runs start fresh.
type session struct {
	cfg         *config.Config
	projectDir  string
	environment *env.Environment
	process     map[string]any
	transport   http.Transport
}

// newSession loads the config, the selected environment and the dotenv
// file, and builds the transport. Every error is a *config.ConfigError.
func newSession(logger pslog.Base) (*session, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}
	cfg, err = applyTransportFlags(cfg)
	if err != nil {
		return nil, err
	}

	projectDir := config.DirName
	if cfg.Path != "" {
		projectDir = filepath.Dir(cfg.Path)
	}

	var dotenv map[string]string
	if envFileFlag != "" {
		dotenv, err = env.LoadDotEnv(envFileFlag)
		if err != nil {
			return nil, &config.ConfigError{Path: envFileFlag, Message: "invalid env file", Err: err}
		}
	}

	environment, err := env.LoadEnvironment(projectDir, envFlag, cfg.Variables, env.ProcessLookup(dotenv))
	if err != nil {
		return nil, err
	}
	overrides, err := parseVarFlags(varFlags)
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		environment = environment.WithOverrides(overrides)
	}

	logger.Debug("configuration loaded",
		"config", cfg.Path,
		"environment", environment.Name,
		"environment_file", environment.Path,
		"variables", len(environment.Variables),
	)

	return &session{
		cfg:         cfg,
		projectDir:  projectDir,
		environment: environment,
		process:     env.ProcessSnapshot(dotenv),
		transport:   newTransport(cfg),
	}, nil
}

// applyTransportFlags lets explicit flags override the config file.
func applyTransportFlags(cfg *config.Config) (*config.Config, error) {
	override := &config.Config{}
	if timeoutFlag != "" {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil || d <= 0 {
			return nil, config.Errorf("", "invalid timeout value %q (use format like 30s, 1m, 500ms)", timeoutFlag)
		}
		override.HTTP.Timeout = int(d.Milliseconds())
	}
	if proxyFlag != "" {
		if err := http.ValidateURL(proxyFlag); err != nil {
			return nil, config.Errorf("", "invalid proxy %q: %v", proxyFlag, err)
		}
		override.HTTP.Proxy = proxyFlag
	}
	override.HTTP.Insecure = insecureFlag
	if retriesFlag < 0 {
		return nil, config.Errorf("", "--retries must not be negative")
	}
	override.Execution.Retries = retriesFlag

	merged := cfg.Merge(override)
	if retryDelayFlag != "" {
		d, err := time.ParseDuration(retryDelayFlag)
		if err != nil || d < 0 {
			return nil, config.Errorf("", "invalid retry delay %q", retryDelayFlag)
		}
		// zero is a valid delay, which Merge would ignore
		merged.Execution.RetryDelay = int(d.Milliseconds())
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

func newTransport(cfg *config.Config) http.Transport {
	client := http.NewClient(
		http.WithTimeout(cfg.TimeoutDuration()),
		http.WithFollowRedirects(cfg.GetFollowRedirects()),
		http.WithMaxRedirects(cfg.HTTP.MaxRedirects),
		http.WithDefaultHeaders(cfg.HTTP.Headers),
		http.WithValidateSSL(!cfg.HTTP.Insecure),
		http.WithProxy(cfg.HTTP.Proxy),
	)
	if cfg.Execution.Retries > 0 {
		return http.NewRetryTransport(client, cfg.Execution.Retries, cfg.RetryDelayDuration())
	}
	return client
}

func parseVarFlags(values []string) (map[string]string, error) {
	vars := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, config.Errorf("", "invalid --var %q, expected KEY=VALUE", v)
		}
		vars[key] = value
	}
	return vars, nil
}

func describeSession(s *session) string {
	name := s.environment.Name
	if name == "" {
		name = "(none)"
	}
	return fmt.Sprintf("environment %s, %d variables", name, len(s.environment.Variables))
}
