package transport

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeBus struct {
	resp []byte
	err  error
	w    []byte
}

func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	f.w = append([]byte(nil), w...)
	copy(r, f.resp)
	return f.err
}

func TestOpenUnknownBus(t *testing.T) {
	if _, err := Open("no-such-bus-42"); err == nil {
		t.Fatal("expected error for unknown bus")
	}
}

func TestTracePassesThrough(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fb := &fakeBus{resp: []byte{0xBE, 0xEF, 0x92}}
	b := Trace(fb, zap.New(core).Sugar())

	if err := b.Tx(0x6B, []byte{0xD0, 0x14}, nil); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(fb.w, []byte{0xD0, 0x14}) {
		t.Fatalf("write not forwarded: % X", fb.w)
	}
	r := make([]byte, 3)
	if err := b.Tx(0x6B, nil, r); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(r, fb.resp) {
		t.Fatalf("read not forwarded: % X", r)
	}

	fb.err = errors.New("nack")
	if err := b.Tx(0x6B, []byte{0x01, 0x04}, nil); err == nil || err.Error() != "nack" {
		t.Fatalf("error not forwarded: %v", err)
	}
	if n := logs.FilterMessage("i2c tx").Len(); n != 2 {
		t.Fatalf("tx entries = %d", n)
	}
	if n := logs.FilterMessage("i2c rx").Len(); n != 1 {
		t.Fatalf("rx entries = %d", n)
	}
}

func TestTraceNilLoggerIsIdentity(t *testing.T) {
	fb := &fakeBus{}
	if b := Trace(fb, nil); b != fb {
		t.Fatal("expected the bus itself")
	}
}
