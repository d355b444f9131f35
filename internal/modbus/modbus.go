// Package modbus reads the latch input from a Modbus discrete input and
// drives the latch output through a Modbus coil.
package modbus

import (
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// Coil values for function code 0x05 (write single coil).
const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// Config holds the connection and register addresses of the device.
type Config struct {
	Address      string // host:port
	SlaveID      byte
	InputAddress uint16 // discrete input read by Read
	CoilAddress  uint16 // coil written by SetOutput
	Timeout      time.Duration
}

// client is the subset of modbus.Client used by Device.
type client interface {
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
}

// Device implements gpio.Reader and gpio.Writer on a Modbus TCP slave.
type Device struct {
	cfg     Config
	handler *modbus.TCPClientHandler
	client  client
}

// Dial connects to the Modbus TCP slave described by cfg.
func Dial(cfg Config) (*Device, error) {
	handler := modbus.NewTCPClientHandler(cfg.Address)
	handler.SlaveId = cfg.SlaveID
	if cfg.Timeout > 0 {
		handler.Timeout = cfg.Timeout
	}
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("connect modbus %s: %w", cfg.Address, err)
	}
	return &Device{
		cfg:     cfg,
		handler: handler,
		client:  modbus.NewClient(handler),
	}, nil
}

// Read returns the state of the configured discrete input.
func (d *Device) Read() (bool, error) {
	res, err := d.client.ReadDiscreteInputs(d.cfg.InputAddress, 1)
	if err != nil {
		return false, fmt.Errorf("read discrete input %d: %w", d.cfg.InputAddress, err)
	}
	if len(res) == 0 {
		return false, fmt.Errorf("read discrete input %d: empty response", d.cfg.InputAddress)
	}
	return res[0]&0x01 == 0x01, nil
}

// SetOutput writes the configured coil.
func (d *Device) SetOutput(on bool) error {
	v := coilOff
	if on {
		v = coilOn
	}
	if _, err := d.client.WriteSingleCoil(d.cfg.CoilAddress, v); err != nil {
		return fmt.Errorf("write coil %d: %w", d.cfg.CoilAddress, err)
	}
	return nil
}

// Output is the coil side of a Device. It holds the coil OFF while open and
// returns it to OFF on Close, matching a freshly started latch.
type Output struct {
	dev    *Device
	closed bool
}

// OpenOutput drives the coil OFF and returns it as a gpio.Writer. A coil left
// ON by an earlier run would otherwise disagree with the latch.
func (d *Device) OpenOutput() (*Output, error) {
	if err := d.SetOutput(false); err != nil {
		return nil, fmt.Errorf("reset output: %w", err)
	}
	return &Output{dev: d}, nil
}

// SetOutput writes the coil.
func (o *Output) SetOutput(on bool) error {
	return o.dev.SetOutput(on)
}

// Close drives the coil OFF. The connection stays open for the input side;
// Device.Close releases it.
func (o *Output) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	if err := o.dev.SetOutput(false); err != nil {
		return fmt.Errorf("release output: %w", err)
	}
	return nil
}

// Close closes the TCP connection. The device may be shared between the
// input and output roles, so Close is safe to call more than once.
func (d *Device) Close() error {
	if d.handler == nil {
		return nil
	}
	err := d.handler.Close()
	d.handler = nil
	return err
}
