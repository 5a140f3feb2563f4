package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:         30000, // 30 seconds
			FollowRedirects: BoolPtr(true),
			MaxRedirects:    10,
		},
		Output: OutputConfig{
			DefaultFormat: "console",
			Colors:        BoolPtr(true),
		},
		Execution: ExecutionConfig{
			Parallel:   1,
			Retries:    0,
			RetryDelay: 1000, // 1 second
		},
		Variables: map[string]any{},
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.HTTP.Timeout == defaults.HTTP.Timeout &&
		c.GetFollowRedirects() == defaults.GetFollowRedirects() &&
		c.HTTP.MaxRedirects == defaults.HTTP.MaxRedirects &&
		c.HTTP.Proxy == defaults.HTTP.Proxy &&
		!c.HTTP.Insecure &&
		len(c.HTTP.Headers) == 0 &&
		c.Output.DefaultFormat == defaults.Output.DefaultFormat &&
		c.GetColors() == defaults.GetColors() &&
		c.Execution == defaults.Execution &&
		len(c.Variables) == 0
}
