//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads GPIO from actual hardware using Linux GPIO character device.
type RealReader struct {
	line *gpiocdev.Line
}

// NewRealReader creates a GPIO reader for the given chip and line offset.
// With activeLow set, a low level on the pin reads as logical ON.
func NewRealReader(chip string, pin int, activeLow bool) (*RealReader, error) {
	// Input with pull-down to match Pi boot defaults.
	// This ensures consistent behavior with external optocoupler modules.
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := gpiocdev.RequestLine(chip, pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d on %s: %w", pin, chip, err)
	}
	return &RealReader{line: line}, nil
}

// Read returns the logical state of the input line.
func (r *RealReader) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read input pin: %w", err)
	}
	return v == 1, nil
}

// Close releases the line, restoring input with pull-down first.
func (r *RealReader) Close() error {
	return releaseLine(r.line)
}

// RealWriter drives a GPIO output line.
type RealWriter struct {
	line *gpiocdev.Line
}

// NewRealWriter requests the line as an output, initially inactive.
func NewRealWriter(chip string, pin int, activeLow bool) (*RealWriter, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := gpiocdev.RequestLine(chip, pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request output pin %d on %s: %w", pin, chip, err)
	}
	return &RealWriter{line: line}, nil
}

// SetOutput drives the line active (on) or inactive.
func (w *RealWriter) SetOutput(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := w.line.SetValue(v); err != nil {
		return fmt.Errorf("set output pin: %w", err)
	}
	return nil
}

// Close drives the output inactive and releases the line.
func (w *RealWriter) Close() error {
	var errs []error
	if w.line != nil {
		if err := w.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("reset output pin: %w", err))
		}
	}
	if err := releaseLine(w.line); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// releaseLine reconfigures the line to match Raspberry Pi boot defaults
// (input with pull-down) before closing it. This prevents boot issues when
// external hardware is connected and might hold the pin in an unexpected
// state during early boot.
func releaseLine(line *gpiocdev.Line) error {
	if line == nil {
		return nil
	}
	var errs []error
	if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
	}
	if err := line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
