package fpga

import (
	"errors"
	"sync"
)

// MockTransport is a fake link for testing.  Writes are recorded transfer
// by transfer; reads are served from a queue of prepared responses.  It is
// safe to queue responses while a worker polls it.
type MockTransport struct {
	mu sync.Mutex

	// Writes holds every Write payload in order, one slice per transfer.
	Writes [][]byte
	// Reads is a queue of responses; each Read pops one.
	Reads [][]byte

	// ShortWrite makes the next Write report one byte fewer than given.
	ShortWrite bool
	// FailWrites makes every Write return WriteErr.
	FailWrites bool
	// WriteErr is the error returned while FailWrites is set.
	WriteErr error

	Purges int
	Resets int
	Closed bool
}

var errMockWrite = errors.New("mock: write failed")

func (m *MockTransport) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		if m.WriteErr != nil {
			return 0, m.WriteErr
		}
		return 0, errMockWrite
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	m.Writes = append(m.Writes, cp)
	if m.ShortWrite {
		m.ShortWrite = false
		return len(b) - 1, nil
	}
	return len(b), nil
}

func (m *MockTransport) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Reads) == 0 {
		return 0, nil
	}
	next := m.Reads[0]
	m.Reads = m.Reads[1:]
	return copy(b, next), nil
}

func (m *MockTransport) PurgeRX() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Purges++
	return nil
}

func (m *MockTransport) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resets++
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Bytes returns every recorded write concatenated in order.
func (m *MockTransport) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for _, w := range m.Writes {
		out = append(out, w...)
	}
	return out
}

// QueueStatus prepares a status block whose last byte is b.
func (m *MockTransport) QueueStatus(b byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads = append(m.Reads, []byte{b})
}
