// Package transport opens host I2C buses for the sensor driver.
package transport

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

// A periph bus already has the tinygo Tx shape.
var _ drivers.I2C = (i2c.Bus)(nil)

// Bus is an I2C bus that must be closed when done.
type Bus interface {
	drivers.I2C
	Close() error
}

// Open initialises the host drivers and opens the named bus ("/dev/i2c-1",
// "I2C1" or "" for the first one found).
func Open(name string) (Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "transport: host init")
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: open %q", name)
	}
	return b, nil
}

// Trace logs every transaction on b at debug level.
func Trace(b drivers.I2C, log *zap.SugaredLogger) drivers.I2C {
	if log == nil {
		return b
	}
	return tracer{b: b, log: log}
}

type tracer struct {
	b   drivers.I2C
	log *zap.SugaredLogger
}

func (t tracer) Tx(addr uint16, w, r []byte) error {
	err := t.b.Tx(addr, w, r)
	switch {
	case err != nil:
		t.log.Debugw("i2c tx", "addr", addr, "w", w, "r", len(r), "err", err)
	case len(r) > 0:
		t.log.Debugw("i2c rx", "addr", addr, "r", r)
	default:
		t.log.Debugw("i2c tx", "addr", addr, "w", w)
	}
	return err
}
