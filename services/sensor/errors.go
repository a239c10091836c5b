package sensor

import (
	"github.com/pkg/errors"

	"sen6x-go/drivers/sen6x"
	"sen6x-go/errcode"
)

// classify maps driver errors onto errcode values.
func classify(err error) errcode.Code {
	if err == nil {
		return errcode.OK
	}
	var e *errcode.E
	if errors.As(err, &e) {
		return e.C
	}
	var te *sen6x.TransportError
	switch {
	case errors.As(err, &te):
		return errcode.Transport
	case errors.Is(err, sen6x.ErrChecksum), errors.Is(err, sen6x.ErrShortFrame):
		return errcode.Checksum
	case errors.Is(err, sen6x.ErrInvalidSample):
		return errcode.InvalidSample
	case errors.Is(err, sen6x.ErrOutOfRange):
		return errcode.InvalidParams
	case errors.Is(err, sen6x.ErrFRCFailed):
		return errcode.Failed
	}
	return errcode.Of(err)
}

// coded attaches the classified code to err under op.
func coded(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *errcode.E
	if errors.As(err, &e) {
		return err
	}
	return errcode.Wrap(classify(err), op, err)
}
