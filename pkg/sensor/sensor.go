// Package sensor reads raw samples from the MCP3221 converter on a MinipH
// board. Readers only move bytes; they never retry a failed transaction.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// ErrIO is matched by every bus-level read failure: no acknowledgment,
// timeout or bus error.
var ErrIO = errors.New("sensor i/o error")

// DefaultAddress is the MCP3221A5 address the MinipH ships with. Variants
// A0 to A7 use 0x48 to 0x4F.
const DefaultAddress = 0x4D

// Reader returns raw samples in [0, 2^bits-1].
type Reader interface {
	ReadRaw(ctx context.Context) (int, error)
	Close() error
}

// Driver names accepted by Open.
const (
	DriverI2CDev = "i2cdev"
	DriverCH347  = "ch347"
	DriverMock   = "mock"
)

// Options configures Open.
type Options struct {
	Driver string
	// Bus is the periph bus name or number, e.g. "1" or "/dev/i2c-1". Empty
	// selects the first bus. Only used by the i2cdev driver.
	Bus     string
	Address uint16
	Bits    int
}

// Open returns a Reader for the configured driver.
func Open(opts Options) (Reader, error) {
	if opts.Bits <= 0 || opts.Bits > 16 {
		return nil, pkgerrors.Errorf("unsupported converter width %d", opts.Bits)
	}
	if opts.Address == 0 {
		opts.Address = DefaultAddress
	}

	switch opts.Driver {
	case DriverI2CDev, "":
		return OpenI2CDev(opts.Bus, opts.Address, opts.Bits)
	case DriverCH347:
		return OpenCH347(opts.Address, opts.Bits)
	case DriverMock:
		return NewMock(1 << (opts.Bits - 1)), nil
	default:
		return nil, pkgerrors.Errorf("unknown sensor driver %q", opts.Driver)
	}
}

// decodeSample assembles a big-endian sample and checks that no bits above
// the converter width are set.
func decodeSample(b []byte, bits int) (int, error) {
	if len(b) != 2 {
		return 0, ioError("decode", fmt.Errorf("incorrect data length %d!=2", len(b)))
	}
	v := int(b[0])<<8 | int(b[1])
	if v>>bits != 0 {
		return 0, ioError("decode", fmt.Errorf("sample 0x%04x exceeds %d bits", v, bits))
	}
	return v, nil
}

func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

// busLock serializes transactions on one bus. The transaction holds it, not
// the caller, so a read abandoned on timeout keeps the bus until the
// hardware returns and the next read cannot overlap it.
type busLock chan struct{}

func newBusLock() busLock {
	return make(busLock, 1)
}

// run waits for the bus, runs tx and gives up when ctx is done. Waiting for
// a bus held by a hung transaction fails with ErrIO once ctx is done.
func (l busLock) run(ctx context.Context, tx func() (int, error)) (int, error) {
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return 0, ioError("read", pkgerrors.Wrap(ctx.Err(), "bus busy"))
	}

	type result struct {
		v   int
		err error
	}

	done := make(chan result, 1)
	go func() {
		defer func() { <-l }()
		v, err := tx()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return 0, ioError("read", ctx.Err())
	}
}

// ReadWithTimeout calls r.ReadRaw with a deadline of timeout.
func ReadWithTimeout(ctx context.Context, r Reader, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return r.ReadRaw(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.ReadRaw(ctx)
}
