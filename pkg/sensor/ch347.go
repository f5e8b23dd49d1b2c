package sensor

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/serfreeman1337/go-ch347"
	"github.com/sirupsen/logrus"
	"github.com/sstallion/go-hid"
)

// CH347 USB IDs (QinHeng Electronics).
const (
	ch347VendorID  = 0x1a86
	ch347ProductID = 0x55dc
	ch347Product   = "HID To UART+SPI+I2C"
	ch347I2CIface  = 1
)

// CH347 reads an MCP3221 through a CH347 USB to I2C bridge, for hosts
// without an I2C controller of their own.
type CH347 struct {
	lock busLock
	dev  *hid.Device
	io   *ch347.IO
	addr uint16
	bits int
}

// hidWithTimeout keeps a dead bridge from blocking reads forever.
type hidWithTimeout struct {
	*hid.Device
}

// Read retries reads interrupted by signals.
func (d *hidWithTimeout) Read(p []byte) (n int, err error) {
	for {
		n, err = d.Device.ReadWithTimeout(p, time.Second)
		if err == nil || err.Error() != "Interrupted system call" {
			return
		}
	}
}

// OpenCH347 finds the first CH347 bridge and addresses the converter at addr.
func OpenCH347(addr uint16, bits int) (*CH347, error) {
	var path string
	err := hid.Enumerate(ch347VendorID, ch347ProductID, func(info *hid.DeviceInfo) error {
		if path == "" && info.ProductStr == ch347Product && info.InterfaceNbr == ch347I2CIface {
			path = info.Path
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to enumerate hid devices")
	}
	if path == "" {
		return nil, pkgerrors.New("ch347 not found")
	}

	dev, err := hid.OpenPath(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open %s", path)
	}

	c := &ch347.IO{Dev: &hidWithTimeout{dev}}
	if err := c.SetI2C(ch347.I2CMode3); err != nil {
		_ = dev.Close()
		return nil, pkgerrors.Wrap(err, "failed to configure ch347 i2c")
	}

	logrus.WithFields(logrus.Fields{
		"path":    path,
		"address": addr,
	}).Info("ch347 bridge opened")

	return &CH347{lock: newBusLock(), dev: dev, io: c, addr: addr, bits: bits}, nil
}

// ReadRaw reads one sample.
func (c *CH347) ReadRaw(ctx context.Context) (int, error) {
	return c.lock.run(ctx, func() (int, error) {
		buf := make([]byte, 2)
		if err := transfer(c.io.I2C, c.addr, nil, buf); err != nil {
			return 0, ioError("ch347 read", err)
		}
		return decodeSample(buf, c.bits)
	})
}

// Close releases the USB device.
func (c *CH347) Close() error {
	return c.dev.Close()
}

// transfer adapts our 16-bit address to whatever integer type tx takes.
func transfer[A ~uint8 | ~uint16 | ~uint32 | ~int](tx func(A, []byte, []byte) error, addr uint16, w, r []byte) error {
	return tx(A(addr), w, r)
}
