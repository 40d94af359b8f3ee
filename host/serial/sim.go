package serial

import (
	"bytes"
	"io"
	"sync"

	"scara/motion"
	"scara/protocol"
)

// SimHistory is how many decoded commands and rejected lines a SimPort keeps
const SimHistory = 256

// SimPort stands in for the arm controller when no hardware is attached.
// It decodes every complete command line written to it and keeps the most
// recent SimHistory results.
type SimPort struct {
	device string

	mu       sync.Mutex
	pending  []byte
	commands []motion.JointAngles
	rejected [][]byte
	onCmd    func(motion.JointAngles)

	closeOnce sync.Once
	closed    chan struct{}
}

// NewSimPort creates a simulated controller port
func NewSimPort(device string) *SimPort {
	return &SimPort{
		device: device,
		closed: make(chan struct{}),
	}
}

// OnCommand registers a callback invoked for every decoded command
func (p *SimPort) OnCommand(fn func(motion.JointAngles)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCmd = fn
}

// Read blocks until the port is closed; the controller never answers
func (p *SimPort) Read(b []byte) (int, error) {
	<-p.closed
	return 0, io.EOF
}

// Write accepts command bytes and decodes complete lines
func (p *SimPort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	p.mu.Lock()
	p.pending = append(p.pending, b...)

	var decoded []motion.JointAngles
	for {
		idx := bytes.IndexByte(p.pending, protocol.Terminator)
		if idx < 0 {
			break
		}
		line := p.pending[:idx+1]
		angles, err := protocol.Decode(line)
		if err != nil {
			p.rejected = keepRecent(p.rejected, append([]byte(nil), line...))
		} else {
			p.commands = keepRecent(p.commands, angles)
			decoded = append(decoded, angles)
		}
		p.pending = p.pending[idx+1:]
	}

	// The controller drops a line it cannot buffer
	if len(p.pending) > protocol.LineMax {
		p.rejected = keepRecent(p.rejected, append([]byte(nil), p.pending...))
		p.pending = nil
	}
	onCmd := p.onCmd
	p.mu.Unlock()

	if onCmd != nil {
		for _, a := range decoded {
			onCmd(a)
		}
	}

	return len(b), nil
}

// Close closes the simulated port
func (p *SimPort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// Flush is a no-op
func (p *SimPort) Flush() error {
	return nil
}

// Commands returns every command decoded so far
func (p *SimPort) Commands() []motion.JointAngles {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]motion.JointAngles(nil), p.commands...)
}

// Rejected returns lines that did not decode as commands
func (p *SimPort) Rejected() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.rejected...)
}

// Device returns the name the port was opened with
func (p *SimPort) Device() string {
	return p.device
}

// keepRecent appends v and drops the oldest entries beyond SimHistory
func keepRecent[T any](s []T, v T) []T {
	s = append(s, v)
	if over := len(s) - SimHistory; over > 0 {
		s = append(s[:0], s[over:]...)
	}
	return s
}
