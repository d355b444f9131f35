package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/relay-latch/internal/gpio"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "relay-latch.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestDefaultLines(t *testing.T) {
	cfg := Default()
	if cfg.Input.Chip != gpio.DefaultChip || cfg.Input.Pin != gpio.DefaultPinInput {
		t.Errorf("default input line: got %s/%d", cfg.Input.Chip, cfg.Input.Pin)
	}
	if cfg.Output.Chip != gpio.DefaultChip || cfg.Output.Pin != gpio.DefaultPinOutput {
		t.Errorf("default output line: got %s/%d", cfg.Output.Chip, cfg.Output.Pin)
	}
	if !cfg.Input.ActiveLow || cfg.Output.ActiveLow {
		t.Errorf("active-low defaults: input %v, output %v", cfg.Input.ActiveLow, cfg.Output.ActiveLow)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Poll != 100*time.Millisecond {
		t.Errorf("Poll: got %v, want 100ms", cfg.Poll)
	}
	if cfg.MinimumOn != 5*time.Minute {
		t.Errorf("MinimumOn: got %v, want 5m", cfg.MinimumOn)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
poll = "50ms"
minimum_on = "10m"
minimum_off = "30s"
heartbeat = "0s"

[input]
driver = "modbus"

[output]
pin = 21
active_low = true

[modbus]
address = "10.0.0.5:502"
slave_id = 3
input_address = 4
coil_address = 8

[mqtt]
broker = "tcp://broker:1883"
client_id = "garden"

[http]
mqtt_js = "/usr/share/relay-latch/mqtt.min.js"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Poll != 50*time.Millisecond {
		t.Errorf("Poll: got %v", cfg.Poll)
	}
	if cfg.MinimumOn != 10*time.Minute || cfg.MinimumOff != 30*time.Second {
		t.Errorf("latch times: got %v/%v", cfg.MinimumOn, cfg.MinimumOff)
	}
	if cfg.Heartbeat != 0 {
		t.Errorf("Heartbeat: got %v, want 0", cfg.Heartbeat)
	}
	if cfg.Input.Driver != DriverModbus {
		t.Errorf("Input.Driver: got %q", cfg.Input.Driver)
	}
	// Unset fields keep their defaults.
	if cfg.Output.Driver != DriverGPIO || cfg.Output.Chip != "gpiochip0" {
		t.Errorf("Output: got %+v", cfg.Output)
	}
	if cfg.Output.Pin != 21 || !cfg.Output.ActiveLow {
		t.Errorf("Output pin: got %+v", cfg.Output)
	}
	if cfg.Modbus.Address != "10.0.0.5:502" || cfg.Modbus.SlaveID != 3 {
		t.Errorf("Modbus: got %+v", cfg.Modbus)
	}
	if cfg.Modbus.InputAddress != 4 || cfg.Modbus.CoilAddress != 8 {
		t.Errorf("Modbus addresses: got %+v", cfg.Modbus)
	}
	if cfg.Modbus.Timeout != 2*time.Second {
		t.Errorf("Modbus.Timeout: got %v, want default 2s", cfg.Modbus.Timeout)
	}
	if cfg.MQTT.ClientID != "garden" {
		t.Errorf("MQTT.ClientID: got %q", cfg.MQTT.ClientID)
	}
	if cfg.HTTP.Addr != ":80" || cfg.HTTP.MQTTJS != "/usr/share/relay-latch/mqtt.min.js" {
		t.Errorf("HTTP: got %+v", cfg.HTTP)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "poll = [")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `minimum_on = "five minutes"`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero poll", func(c *Config) { c.Poll = 0 }, "poll must be positive"},
		{"negative minimum_on", func(c *Config) { c.MinimumOn = -time.Second }, "minimum_on must not be negative"},
		{"negative minimum_off", func(c *Config) { c.MinimumOff = -time.Second }, "minimum_off must not be negative"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"unknown driver", func(c *Config) { c.Input.Driver = "serial" }, `input.driver: unknown driver "serial"`},
		{"missing chip", func(c *Config) { c.Output.Chip = "" }, "output.chip is required"},
		{"negative pin", func(c *Config) { c.Input.Pin = -1 }, "input.pin must not be negative"},
		{"modbus without address", func(c *Config) { c.Output.Driver = DriverModbus }, "modbus.address is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Poll = 0
	cfg.MinimumOff = -1
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "poll") || !strings.Contains(err.Error(), "minimum_off") {
		t.Errorf("expected both problems reported, got %q", err)
	}
}
