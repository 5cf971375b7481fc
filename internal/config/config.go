// Package config provides configuration parsing for powerlive.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the powerlive capture configuration.
type Config struct {
	// Plug holds device connection settings.
	Plug PlugConfig `yaml:"plug"`

	// Capture holds sampling and persistence settings.
	Capture CaptureConfig `yaml:"capture"`

	// Display holds TUI rendering settings.
	Display DisplayConfig `yaml:"display"`

	// Metrics holds the Prometheus endpoint settings.
	Metrics MetricsConfig `yaml:"metrics"`
}

// PlugConfig holds device connection settings.
type PlugConfig struct {
	// Driver selects the device driver: "shelly1", "shelly2", "mqtt" or "sim".
	Driver string `yaml:"driver"`
	// Address is the plug IP or hostname for the Shelly drivers.
	Address string `yaml:"address"`
	// HighWatts is the alert threshold in watts. Zero disables it.
	HighWatts float64 `yaml:"high_watts"`
	// SimSeed seeds the sim driver. Zero picks a time-based seed.
	SimSeed int64 `yaml:"sim_seed"`
	// MQTT holds settings for the mqtt driver.
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig holds settings for the mqtt driver.
type MQTTConfig struct {
	// Broker is the broker address, host:port.
	Broker string `yaml:"broker"`
	// DeviceID is the Shelly device ID in the announcement topic.
	DeviceID string `yaml:"device_id"`
	// ClientID overrides the generated MQTT client ID.
	ClientID string `yaml:"client_id"`
	// Username is the broker username.
	Username string `yaml:"username"`
	// PasswordEnv is the environment variable holding the broker password.
	PasswordEnv string `yaml:"password_env"`
	// StaleAfter is a duration string after which a silent device counts
	// as unreachable (e.g. "2m").
	StaleAfter string `yaml:"stale_after"`
}

// CaptureConfig holds sampling and persistence settings.
type CaptureConfig struct {
	// Interval is a duration string between samples (e.g. "1s").
	Interval string `yaml:"interval"`
	// Window is the rolling window length in samples, at least 2.
	Window int `yaml:"window"`
	// StorePath is the capture file path, .csv or a SQLite database.
	// Empty disables persistence.
	StorePath string `yaml:"store_path"`
	// ResetStore wipes previously captured rows on start.
	ResetStore bool `yaml:"reset_store"`
}

// DisplayConfig holds TUI rendering settings.
type DisplayConfig struct {
	// Horizontal places the two charts side by side instead of stacked.
	Horizontal bool `yaml:"horizontal"`
	// Verbose logs every sample.
	Verbose bool `yaml:"verbose"`
	// LogFile is the log destination while the TUI owns the terminal.
	LogFile string `yaml:"log_file"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Plug: PlugConfig{
			Driver: "shelly1",
			MQTT: MQTTConfig{
				StaleAfter: "2m",
			},
		},
		Capture: CaptureConfig{
			Interval: "1s",
			Window:   30,
		},
	}
}

// Load reads configuration from a YAML file, merging with defaults.
// A missing file is not an error and yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for required fields and logical consistency.
func (c *Config) Validate() error {
	switch c.Plug.Driver {
	case "shelly1", "shelly2":
		if c.Plug.Address == "" {
			return fmt.Errorf("plug.address is required for driver %q", c.Plug.Driver)
		}
	case "mqtt":
		if c.Plug.MQTT.Broker == "" {
			return fmt.Errorf("plug.mqtt.broker is required for the mqtt driver")
		}
		if c.Plug.MQTT.DeviceID == "" {
			return fmt.Errorf("plug.mqtt.device_id is required for the mqtt driver")
		}
		if c.Plug.MQTT.StaleAfter != "" {
			if _, err := time.ParseDuration(c.Plug.MQTT.StaleAfter); err != nil {
				return fmt.Errorf("plug.mqtt.stale_after is not a duration: %q", c.Plug.MQTT.StaleAfter)
			}
		}
	case "sim":
	default:
		return fmt.Errorf("plug.driver must be 'shelly1', 'shelly2', 'mqtt' or 'sim', got %q", c.Plug.Driver)
	}

	if c.Plug.HighWatts < 0 {
		return fmt.Errorf("plug.high_watts must be non-negative, got %v", c.Plug.HighWatts)
	}

	d, err := time.ParseDuration(c.Capture.Interval)
	if err != nil {
		return fmt.Errorf("capture.interval is not a duration: %q", c.Capture.Interval)
	}
	if d <= 0 {
		return fmt.Errorf("capture.interval must be positive, got %q", c.Capture.Interval)
	}

	if c.Capture.Window < 2 {
		return fmt.Errorf("capture.window must be at least 2, got %d", c.Capture.Window)
	}

	return nil
}

// IntervalDuration returns the parsed capture interval, falling back to
// one second when the configured value does not parse.
func (c CaptureConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// StaleAfterDuration returns the parsed staleness cutoff, or zero when
// unset or invalid.
func (m MQTTConfig) StaleAfterDuration() time.Duration {
	d, err := time.ParseDuration(m.StaleAfter)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Password resolves the broker password from the configured environment
// variable.
func (m MQTTConfig) Password() string {
	if m.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(m.PasswordEnv)
}
