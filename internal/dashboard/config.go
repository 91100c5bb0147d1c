package dashboard

import (
	"time"

	"msmanager/internal/activity"
	"msmanager/internal/api"
)

// Config contains the tunables of a dashboard session.
// Use DefaultConfig() to get the stock values, then override as needed.
type Config struct {
	// Polling
	DevicePollInterval time.Duration // How often controller presence is polled (default: 4s)
	BridgePollInterval time.Duration // How often bridge health is polled (default: 2s)
	PollTimeout        time.Duration // Deadline for a single poll fetch (default: 3s)

	// Activity
	ActivityLimit int // Entries the activity log retains (default: 500)

	// Initial selection, replaced by the backend's settings on first status fetch
	DefaultChannel        api.Channel
	DefaultProfile        string
	DefaultProfileOptions []string
	FallbackProfile       string // Used when a release offers no profile for this platform
}

// DefaultConfig returns a Config with stock values.
func DefaultConfig() Config {
	return Config{
		DevicePollInterval: 4 * time.Second,
		BridgePollInterval: 2 * time.Second,
		PollTimeout:        3 * time.Second,

		ActivityLimit: activity.DefaultLimit,

		DefaultChannel:        api.ChannelStable,
		DefaultProfile:        "default",
		DefaultProfileOptions: []string{"default", "bitwig"},
		FallbackProfile:       "default",
	}
}

// WithDevicePollInterval returns a copy of the config with a new device poll interval.
func (c Config) WithDevicePollInterval(d time.Duration) Config {
	c.DevicePollInterval = d
	return c
}

// WithBridgePollInterval returns a copy of the config with a new bridge poll interval.
func (c Config) WithBridgePollInterval(d time.Duration) Config {
	c.BridgePollInterval = d
	return c
}

func (c Config) WithPollTimeout(d time.Duration) Config {
	c.PollTimeout = d
	return c
}

func (c Config) WithActivityLimit(n int) Config {
	c.ActivityLimit = n
	return c
}

// WithDefaultChannel returns a copy of the config with a different starting channel.
func (c Config) WithDefaultChannel(ch api.Channel) Config {
	c.DefaultChannel = ch
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.DevicePollInterval <= 0 {
		return &ConfigError{Field: "DevicePollInterval", Message: "must be positive"}
	}
	if c.BridgePollInterval <= 0 {
		return &ConfigError{Field: "BridgePollInterval", Message: "must be positive"}
	}
	if c.PollTimeout <= 0 {
		return &ConfigError{Field: "PollTimeout", Message: "must be positive"}
	}
	if c.ActivityLimit <= 0 {
		return &ConfigError{Field: "ActivityLimit", Message: "must be positive"}
	}
	if _, err := api.ParseChannel(string(c.DefaultChannel)); err != nil {
		return &ConfigError{Field: "DefaultChannel", Message: "must be stable, beta or nightly"}
	}
	if c.DefaultProfile == "" {
		return &ConfigError{Field: "DefaultProfile", Message: "must not be empty"}
	}
	if c.FallbackProfile == "" {
		return &ConfigError{Field: "FallbackProfile", Message: "must not be empty"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " " + e.Message
}
