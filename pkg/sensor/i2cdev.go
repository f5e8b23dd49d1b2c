package sensor

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// I2CDev reads an MCP3221 through the host's I2C controller.
type I2CDev struct {
	lock busLock
	bus  i2c.BusCloser
	dev  *i2c.Dev
	bits int
}

// OpenI2CDev opens bus and addresses the converter at addr.
func OpenI2CDev(bus string, addr uint16, bits int) (*I2CDev, error) {
	if _, err := host.Init(); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to initialize periph host drivers")
	}

	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open i2c bus %q", bus)
	}

	logrus.WithFields(logrus.Fields{
		"bus":     b.String(),
		"address": addr,
	}).Info("i2c bus opened")

	return newI2CDev(b, addr, bits), nil
}

func newI2CDev(b i2c.BusCloser, addr uint16, bits int) *I2CDev {
	return &I2CDev{
		lock: newBusLock(),
		bus:  b,
		dev:  &i2c.Dev{Bus: b, Addr: addr},
		bits: bits,
	}
}

// ReadRaw reads one sample. The MCP3221 has no registers: a plain 2-byte
// read returns the latest conversion.
func (d *I2CDev) ReadRaw(ctx context.Context) (int, error) {
	return d.lock.run(ctx, func() (int, error) {
		buf := make([]byte, 2)
		if err := d.dev.Tx(nil, buf); err != nil {
			return 0, ioError("i2c read", err)
		}
		return decodeSample(buf, d.bits)
	})
}

// Close releases the bus.
func (d *I2CDev) Close() error {
	return d.bus.Close()
}
