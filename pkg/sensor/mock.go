package sensor

import (
	"context"
	"errors"
	"sync"
)

// Mock is a Reader that returns programmed samples, for tests and for
// running the daemon without hardware.
type Mock struct {
	mu      sync.Mutex
	samples []int
	next    int
	err     error
	reads   int
	closed  bool
	block   bool
}

// NewMock returns a Mock cycling through samples. With no samples it
// always returns 0.
func NewMock(samples ...int) *Mock {
	if len(samples) == 0 {
		samples = []int{0}
	}
	return &Mock{samples: samples}
}

// SetSamples replaces the programmed samples.
func (m *Mock) SetSamples(samples ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = samples
	m.next = 0
}

// SetError makes every read fail with err wrapped in ErrIO. Pass nil to
// recover.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = err
}

// SetBlocking makes reads hang until their context is done.
func (m *Mock) SetBlocking(block bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.block = block
}

// Reads returns how many reads were attempted.
func (m *Mock) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.reads
}

func (m *Mock) ReadRaw(ctx context.Context) (int, error) {
	m.mu.Lock()
	m.reads++
	block, err := m.block, m.err
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return 0, ioError("read", ctx.Err())
	}
	if err != nil {
		return 0, ioError("read", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.samples) == 0 {
		return 0, ioError("read", errors.New("no samples programmed"))
	}
	v := m.samples[m.next%len(m.samples)]
	m.next++
	return v, nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
