// Package config loads daemon configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/relay-latch/internal/gpio"
)

// Drivers for the input and output lines.
const (
	DriverGPIO   = "gpio"
	DriverModbus = "modbus"
)

// Config is the full daemon configuration.
type Config struct {
	Poll       time.Duration `toml:"poll"`
	MinimumOn  time.Duration `toml:"minimum_on"`
	MinimumOff time.Duration `toml:"minimum_off"`
	Heartbeat  time.Duration `toml:"heartbeat"`
	LogLevel   string        `toml:"log_level"`

	Input  Line   `toml:"input"`
	Output Line   `toml:"output"`
	Modbus Modbus `toml:"modbus"`
	MQTT   MQTT   `toml:"mqtt"`
	HTTP   HTTP   `toml:"http"`
}

// Line selects the driver for one side of the latch.
type Line struct {
	Driver    string `toml:"driver"`
	Chip      string `toml:"chip"`
	Pin       int    `toml:"pin"`
	ActiveLow bool   `toml:"active_low"`
}

// Modbus configures the Modbus TCP device used by the modbus driver.
type Modbus struct {
	Address      string        `toml:"address"`
	SlaveID      byte          `toml:"slave_id"`
	InputAddress uint16        `toml:"input_address"`
	CoilAddress  uint16        `toml:"coil_address"`
	Timeout      time.Duration `toml:"timeout"`
}

// MQTT configures the event publisher.
type MQTT struct {
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	WSBroker string `toml:"ws_broker"`
}

// HTTP configures the status server. An empty Addr disables it.
// MQTTJS is a local copy of mqtt.min.js for the live page; without it the
// page is a static snapshot.
type HTTP struct {
	Addr   string `toml:"addr"`
	MQTTJS string `toml:"mqtt_js"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Poll:       100 * time.Millisecond,
		MinimumOn:  5 * time.Minute,
		MinimumOff: 0,
		Heartbeat:  15 * time.Minute,
		LogLevel:   "info",
		Input: Line{
			Driver:    DriverGPIO,
			Chip:      gpio.DefaultChip,
			Pin:       gpio.DefaultPinInput,
			ActiveLow: true,
		},
		Output: Line{
			Driver: DriverGPIO,
			Chip:   gpio.DefaultChip,
			Pin:    gpio.DefaultPinOutput,
		},
		Modbus: Modbus{
			SlaveID: 1,
			Timeout: 2 * time.Second,
		},
		MQTT: MQTT{
			Broker:   "tcp://192.168.1.200:1883",
			WSBroker: "=broker",
		},
		HTTP: HTTP{Addr: ":80"},
	}
}

// Load reads the TOML file at path over the defaults.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warnf("config: unknown key %q in %s", key.String(), path)
	}
	return cfg, nil
}

// Validate reports every problem with the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Poll <= 0 {
		errs = append(errs, fmt.Errorf("poll must be positive, got %v", c.Poll))
	}
	if c.MinimumOn < 0 {
		errs = append(errs, fmt.Errorf("minimum_on must not be negative, got %v", c.MinimumOn))
	}
	if c.MinimumOff < 0 {
		errs = append(errs, fmt.Errorf("minimum_off must not be negative, got %v", c.MinimumOff))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	lines := []struct {
		name string
		Line
	}{{"input", c.Input}, {"output", c.Output}}
	for _, l := range lines {
		name := l.name
		switch l.Driver {
		case DriverGPIO:
			if l.Chip == "" {
				errs = append(errs, fmt.Errorf("%s.chip is required for the gpio driver", name))
			}
			if l.Pin < 0 {
				errs = append(errs, fmt.Errorf("%s.pin must not be negative, got %d", name, l.Pin))
			}
		case DriverModbus:
			if c.Modbus.Address == "" {
				errs = append(errs, fmt.Errorf("%s uses the modbus driver but modbus.address is empty", name))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.driver: unknown driver %q", name, l.Driver))
		}
	}
	return errors.Join(errs...)
}
