package serial

import (
	"errors"
	"io"
	"sync"
	"time"
)

// MockPort implements Port with configurable behaviour for testing.
// It records writes and can inject errors, short writes and latency.
type MockPort struct {
	mu sync.Mutex

	// Writes holds a copy of every successful write
	Writes [][]byte

	// WriteErr, if set, is returned by the next write (then cleared unless Sticky)
	WriteErr error
	Sticky   bool

	// ShortWrite makes writes report one byte less than requested
	ShortWrite bool

	// WriteDelay simulates a slow device
	WriteDelay time.Duration

	closed     bool
	inFlight   int
	overlapped bool
}

// NewMockPort creates a MockPort ready for use
func NewMockPort() *MockPort {
	return &MockPort{}
}

// Read always returns io.EOF
func (m *MockPort) Read(b []byte) (int, error) {
	return 0, io.EOF
}

// Write records b, honouring any configured failure
func (m *MockPort) Write(b []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	m.inFlight++
	if m.inFlight > 1 {
		m.overlapped = true
	}
	delay := m.WriteDelay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--

	if m.WriteErr != nil {
		err := m.WriteErr
		if !m.Sticky {
			m.WriteErr = nil
		}
		return 0, err
	}
	if m.ShortWrite && len(b) > 0 {
		m.Writes = append(m.Writes, append([]byte(nil), b[:len(b)-1]...))
		return len(b) - 1, nil
	}

	m.Writes = append(m.Writes, append([]byte(nil), b...))
	return len(b), nil
}

// Close marks the port closed; later writes fail
func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("mock port already closed")
	}
	m.closed = true
	return nil
}

// Flush is a no-op
func (m *MockPort) Flush() error {
	return nil
}

// Lines returns the recorded writes as strings
func (m *MockPort) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := make([]string, len(m.Writes))
	for i, w := range m.Writes {
		lines[i] = string(w)
	}
	return lines
}

// Overlapped reports whether two writes were ever in progress at once
func (m *MockPort) Overlapped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlapped
}

// FailNext makes the next write fail with err
func (m *MockPort) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteErr = err
	m.Sticky = false
}

// IsClosed reports whether Close has been called
func (m *MockPort) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
