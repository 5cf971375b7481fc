package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Plug.Driver != "shelly1" {
		t.Errorf("default driver = %q, want shelly1", cfg.Plug.Driver)
	}
	if cfg.Capture.Interval != "1s" {
		t.Errorf("default interval = %q, want 1s", cfg.Capture.Interval)
	}
	if cfg.Capture.Window != 30 {
		t.Errorf("default window = %d, want 30", cfg.Capture.Window)
	}
	if cfg.Capture.StorePath != "" {
		t.Errorf("default store path = %q, want empty", cfg.Capture.StorePath)
	}
	if cfg.Plug.MQTT.StaleAfter != "2m" {
		t.Errorf("default stale_after = %q, want 2m", cfg.Plug.MQTT.StaleAfter)
	}
	if cfg.Metrics.Addr != "" {
		t.Errorf("default metrics addr = %q, want empty", cfg.Metrics.Addr)
	}
}

func TestDefaultsValidateOnceAddressed(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("defaults without an address should not validate")
	}

	cfg.Plug.Address = "192.168.1.30"
	if err := cfg.Validate(); err != nil {
		t.Errorf("addressed defaults should validate, got %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/powerlive.yaml")
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if cfg.Capture.Window != 30 {
		t.Errorf("window = %d, want default 30", cfg.Capture.Window)
	}
}

func TestLoadMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "powerlive.yaml")
	content := `
plug:
  address: 192.168.1.30
capture:
  window: 60
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Plug.Address != "192.168.1.30" {
		t.Errorf("address = %q, want 192.168.1.30", cfg.Plug.Address)
	}
	if cfg.Capture.Window != 60 {
		t.Errorf("window = %d, want 60", cfg.Capture.Window)
	}
	if cfg.Plug.Driver != "shelly1" {
		t.Errorf("driver = %q, want default shelly1", cfg.Plug.Driver)
	}
	if cfg.Capture.Interval != "1s" {
		t.Errorf("interval = %q, want default 1s", cfg.Capture.Interval)
	}
}

func TestLoadFullFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "powerlive.yaml")
	content := `
plug:
  driver: mqtt
  high_watts: 120
  mqtt:
    broker: 127.0.0.1:1883
    device_id: shellyplug-s-AABBCC
    username: plug
    password_env: POWERLIVE_MQTT_PASSWORD
    stale_after: 45s
capture:
  interval: 500ms
  window: 120
  store_path: /var/lib/powerlive/power.db
  reset_store: true
display:
  horizontal: true
  verbose: true
  log_file: /tmp/powerlive.log
metrics:
  addr: :9090
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Plug.MQTT.Broker != "127.0.0.1:1883" {
		t.Errorf("broker = %q", cfg.Plug.MQTT.Broker)
	}
	if cfg.Plug.MQTT.DeviceID != "shellyplug-s-AABBCC" {
		t.Errorf("device_id = %q", cfg.Plug.MQTT.DeviceID)
	}
	if got := cfg.Capture.IntervalDuration(); got != 500*time.Millisecond {
		t.Errorf("interval = %v, want 500ms", got)
	}
	if !cfg.Capture.ResetStore {
		t.Error("reset_store should be true")
	}
	if !cfg.Display.Horizontal {
		t.Error("horizontal should be true")
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics addr = %q, want :9090", cfg.Metrics.Addr)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Plug.Driver = "tasmota" }},
		{"shelly without address", func(c *Config) { c.Plug.Address = "" }},
		{"window below two", func(c *Config) { c.Capture.Window = 1 }},
		{"unparsable interval", func(c *Config) { c.Capture.Interval = "fast" }},
		{"zero interval", func(c *Config) { c.Capture.Interval = "0s" }},
		{"negative threshold", func(c *Config) { c.Plug.HighWatts = -1 }},
		{"mqtt without broker", func(c *Config) {
			c.Plug.Driver = "mqtt"
			c.Plug.MQTT.DeviceID = "shellyplug-s-AABBCC"
		}},
		{"mqtt without device", func(c *Config) {
			c.Plug.Driver = "mqtt"
			c.Plug.MQTT.Broker = "127.0.0.1:1883"
		}},
		{"mqtt bad staleness", func(c *Config) {
			c.Plug.Driver = "mqtt"
			c.Plug.MQTT.Broker = "127.0.0.1:1883"
			c.Plug.MQTT.DeviceID = "shellyplug-s-AABBCC"
			c.Plug.MQTT.StaleAfter = "soon"
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Plug.Address = "192.168.1.30"
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted a bad config")
			}
		})
	}
}

func TestIntervalDurationFallback(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"1s", time.Second},
		{"250ms", 250 * time.Millisecond},
		{"", time.Second},
		{"junk", time.Second},
		{"-5s", time.Second},
	}
	for _, tc := range cases {
		if got := (CaptureConfig{Interval: tc.raw}).IntervalDuration(); got != tc.want {
			t.Errorf("IntervalDuration(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestStaleAfterDuration(t *testing.T) {
	if got := (MQTTConfig{StaleAfter: "45s"}).StaleAfterDuration(); got != 45*time.Second {
		t.Errorf("StaleAfterDuration = %v, want 45s", got)
	}
	if got := (MQTTConfig{}).StaleAfterDuration(); got != 0 {
		t.Errorf("unset StaleAfterDuration = %v, want 0", got)
	}
	if got := (MQTTConfig{StaleAfter: "soon"}).StaleAfterDuration(); got != 0 {
		t.Errorf("bad StaleAfterDuration = %v, want 0", got)
	}
}

func TestPasswordFromEnv(t *testing.T) {
	t.Setenv("POWERLIVE_TEST_MQTT_PASSWORD", "hunter2")

	m := MQTTConfig{PasswordEnv: "POWERLIVE_TEST_MQTT_PASSWORD"}
	if got := m.Password(); got != "hunter2" {
		t.Errorf("Password = %q, want hunter2", got)
	}
	if got := (MQTTConfig{}).Password(); got != "" {
		t.Errorf("Password without env = %q, want empty", got)
	}
}
