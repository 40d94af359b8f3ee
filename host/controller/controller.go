package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"scara/host/serial"
	"scara/motion"
	"scara/protocol"
)

// DefaultSettle is how long the controller needs after the port opens.
// Opening the port resets the board; writes before it boots are lost.
const DefaultSettle = 2 * time.Second

// ErrClosed is wrapped by TransportError when sending on a closed link
var ErrClosed = errors.New("link closed")

// TransportError reports a failed operation on the serial channel.
// The link remains usable; the next send is attempted independently.
type TransportError struct {
	Op     string // "open", "write", "flush"
	Device string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Device, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Link owns the serial channel to the arm controller
type Link struct {
	// Serial port
	port   serial.Port
	device string

	clock  clock.Clock
	settle time.Duration
	log    zerolog.Logger

	metrics linkMetrics

	// Sends are strictly serialized
	mu     sync.Mutex
	closed bool
}

// Option configures a Link
type Option func(*Link)

// WithClock replaces the wall clock (tests use clock.NewMock)
func WithClock(c clock.Clock) Option {
	return func(l *Link) { l.clock = c }
}

// WithSettle sets the delay between opening the port and the first write
func WithSettle(d time.Duration) Option {
	return func(l *Link) { l.settle = d }
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(l *Link) { l.log = log }
}

// New wraps an already open port. No settle delay is applied.
func New(port serial.Port, opts ...Option) *Link {
	l := &Link{
		port:   port,
		clock:  clock.New(),
		settle: DefaultSettle,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	var err error
	l.metrics, err = newLinkMetrics()
	if err != nil {
		l.log.Warn().Err(err).Msg("link metrics disabled")
	}

	return l
}

// Open opens the serial port described by cfg and waits for the
// controller to settle before returning
func Open(ctx context.Context, cfg *serial.Config, opts ...Option) (*Link, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		dev := ""
		if cfg != nil {
			dev = cfg.Device
		}
		return nil, &TransportError{Op: "open", Device: dev, Err: err}
	}

	l := New(port, opts...)
	l.device = cfg.Device

	l.log.Info().Str("device", cfg.Device).Str("driver", cfg.Driver).Int("baud", cfg.Baud).
		Dur("settle", l.settle).Msg("serial port opened, waiting for controller")

	if err := l.Settle(ctx); err != nil {
		port.Close()
		return nil, err
	}

	return l, nil
}

// Settle blocks for the settle delay or until ctx is done
func (l *Link) Settle(ctx context.Context) error {
	if l.settle <= 0 {
		return nil
	}

	t := l.clock.Timer(l.settle)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for controller to settle: %w", ctx.Err())
	}
}

// Send writes one encoded command to the controller
func (l *Link) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// A caller queued behind another send may have been cancelled meanwhile
	if err := ctx.Err(); err != nil {
		return err
	}

	if l.closed {
		return l.fail(ctx, "write", ErrClosed)
	}

	n, err := l.port.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return l.fail(ctx, "write", err)
	}

	if err := l.port.Flush(); err != nil {
		return l.fail(ctx, "flush", err)
	}

	l.metrics.commands.Add(ctx, 1)
	l.log.Debug().Bytes("line", data).Msg("command sent")
	return nil
}

func (l *Link) fail(ctx context.Context, op string, err error) error {
	l.metrics.failures.Add(ctx, 1)
	terr := &TransportError{Op: op, Device: l.device, Err: err}
	l.log.Warn().Err(terr).Msg("send failed")
	return terr
}

// SendAngles encodes and sends joint angles
func (l *Link) SendAngles(ctx context.Context, angles motion.JointAngles) error {
	return l.Send(ctx, protocol.Encode(angles))
}

// Close closes the link and the underlying port
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}

// IsConnected returns whether the link is open
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed
}

// Device returns the device path the link was opened on, if known
func (l *Link) Device() string {
	return l.device
}
