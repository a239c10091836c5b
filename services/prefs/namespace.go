package prefs

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"sen6x-go/errcode"
)

// FallbackHash is used when the serial number cannot be read.
const FallbackHash uint32 = 0x6181DEAD

// Preference names.
const (
	KeyVOCBaseline         = "voc_baseline"
	KeyCO2ASC              = "co2_asc"
	KeyAutoCleaning        = "auto_cleaning"
	KeyAltitude            = "altitude"
	KeyAmbientPressure     = "ambient_pressure"
	KeyTemperatureOffset   = "temperature_offset"
	KeyOutdoorCO2Reference = "outdoor_co2_reference"
)

// HashSerial derives a namespace hash from the first four serial bytes.
func HashSerial(serial []byte) uint32 {
	if len(serial) < 4 {
		return FallbackHash
	}
	return uint32(serial[0])<<24 | uint32(serial[1])<<16 | uint32(serial[2])<<8 | uint32(serial[3])
}

// Namespace scopes keys to one sensor and CBOR-encodes values.
type Namespace struct {
	store   Store
	hash    uint32
	timeout time.Duration
}

// NewNamespace returns a Namespace over s keyed by hash.
func NewNamespace(s Store, hash uint32) *Namespace {
	return &Namespace{store: s, hash: hash, timeout: 5 * time.Second}
}

func (n *Namespace) Hash() uint32 { return n.hash }

// Key returns the store key for name.
func (n *Namespace) Key(name string) string { return fmt.Sprintf("%08x/%s", n.hash, name) }

// Get decodes name into v. It reports false with a nil error when the key
// is absent.
func (n *Namespace) Get(name string, v any) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	b, err := n.store.Load(ctx, n.Key(name))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errcode.Wrap(errcode.Persistence, "load "+name, err)
	}
	if err := cbor.Unmarshal(b, v); err != nil {
		return false, errcode.Wrap(errcode.Persistence, "decode "+name, err)
	}
	return true, nil
}

// Put encodes v under name.
func (n *Namespace) Put(name string, v any) error {
	b, err := cbor.Marshal(v)
	if err != nil {
		return errcode.Wrap(errcode.Persistence, "encode "+name, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	return errcode.Wrap(errcode.Persistence, "save "+name, n.store.Save(ctx, n.Key(name), b))
}

// Float loads a float. A stored NaN reads back as absent.
func (n *Namespace) Float(name string) (float64, bool, error) {
	var f float64
	ok, err := n.Get(name, &f)
	if err != nil || !ok || math.IsNaN(f) {
		return math.NaN(), false, err
	}
	return f, true, nil
}

// Bool loads a bool.
func (n *Namespace) Bool(name string) (bool, bool, error) {
	var b bool
	ok, err := n.Get(name, &b)
	return b, ok, err
}
