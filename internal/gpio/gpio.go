// Package gpio provides GPIO input reading and output driving with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the logical state of the input line.
type Reader interface {
	// Read returns true when the input is logically ON.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Writer drives the output line.
type Writer interface {
	// SetOutput drives the line active (on) or inactive.
	SetOutput(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Defaults (BCM numbering)
const (
	DefaultChip      = "gpiochip0"
	DefaultPinInput  = 26 // demand input
	DefaultPinOutput = 16 // relay driver
)
