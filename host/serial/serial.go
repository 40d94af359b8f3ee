package serial

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (github.com/tarm/serial, the default)
// - go.bug.st/serial (supports port enumeration)
// - Simulated controller (dry runs without hardware)
// - Mock serial (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush waits until buffered output has been transmitted
	Flush() error
}

// Driver names accepted in Config.Driver
const (
	DriverTarm  = "tarm"
	DriverBugst = "bugst"
	DriverSim   = "sim"
)

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Driver selects the port implementation (tarm, bugst, sim)
	Driver string

	// Baud rate (the stock controller sketch listens at 9600)
	Baud int

	// Read timeout (0 = blocking)
	ReadTimeout time.Duration
}

// DefaultConfig returns a default configuration for the arm controller
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Driver:      DriverTarm,
		Baud:        9600,
		ReadTimeout: time.Second,
	}
}

// Open opens the port described by cfg using the configured driver
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Baud <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", cfg.Baud)
	}

	switch strings.ToLower(cfg.Driver) {
	case "", DriverTarm:
		return openTarm(cfg)
	case DriverBugst:
		return openBugst(cfg)
	case DriverSim:
		return NewSimPort(cfg.Device), nil
	}

	return nil, fmt.Errorf("unknown serial driver %q", cfg.Driver)
}
