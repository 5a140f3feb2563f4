// Package config handles configuration loading and management for reqx.
//
// It provides functionality for:
//   - Loading .reqx/config.toml (or config.yaml) files
//   - Default configuration values
//   - Validation that reports a *ConfigError before any request runs
package config
