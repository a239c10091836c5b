package sen6x

import (
	"github.com/pkg/errors"
)

// Invalid-value sentinels reported by the device.
const (
	InvalidUnsigned = 0xFFFF
	InvalidSigned   = 0x7FFF
)

type fieldCodec struct {
	signed  bool
	divisor float64
}

var codecs = [NumFields]fieldCodec{
	FieldPM1:         {false, 10},
	FieldPM25:        {false, 10},
	FieldPM4:         {false, 10},
	FieldPM10:        {false, 10},
	FieldHumidity:    {true, 100},
	FieldTemperature: {true, 200},
	FieldVOC:         {true, 10},
	FieldNOx:         {true, 10},
	FieldCO2:         {false, 1},
	FieldHCHO:        {false, 10},
}

func (c fieldCodec) invalid(w uint16) bool {
	if c.signed {
		return w == InvalidSigned
	}
	return w == InvalidUnsigned
}

func (c fieldCodec) scale(w uint16) float64 {
	if c.signed {
		return float64(int16(w)) / c.divisor
	}
	return float64(w) / c.divisor
}

// Measurement is one accepted sample in engineering units:
// µg/m³, %RH, °C, index points, ppm (CO2) and ppb (HCHO).
type Measurement struct {
	Model  Model
	values [NumFields]float64
	has    [NumFields]bool
}

// Value returns the decoded field and whether the variant reports it.
func (m *Measurement) Value(f Field) (float64, bool) {
	if f >= NumFields {
		return 0, false
	}
	return m.values[f], m.has[f]
}

// DecodeMeasurement applies the profile layout to words. If any field holds
// its invalid sentinel the whole sample is rejected with ErrInvalidSample.
func DecodeMeasurement(p Profile, words []uint16) (Measurement, error) {
	m := Measurement{Model: p.Model}
	if len(words) < p.Words() {
		return m, errors.Wrapf(ErrShortFrame, "%s: %d words, need %d", p.Name, len(words), p.Words())
	}
	for i, f := range p.Layout {
		c := codecs[f]
		if c.invalid(words[i]) {
			return Measurement{Model: p.Model}, errors.Wrapf(ErrInvalidSample, "%s at word %d", f, i)
		}
		m.values[f] = c.scale(words[i])
		m.has[f] = true
	}
	return m, nil
}

// Concentration bins in particles/cm³, reply order of CmdNumberConcentration.
const (
	NC05 = iota
	NC10
	NC25
	NC40
	NC100
	NumConcentrations
)

// NumberConcentration holds per-bin values; OK[i] is false where the device
// reported the invalid sentinel. Bins are independent.
type NumberConcentration struct {
	Value [NumConcentrations]float64
	OK    [NumConcentrations]bool
}

// DecodeNumberConcentration scales the five words of a number-concentration reply.
func DecodeNumberConcentration(words []uint16) (NumberConcentration, error) {
	var nc NumberConcentration
	if len(words) < NumConcentrations {
		return nc, errors.Wrapf(ErrShortFrame, "number concentration: %d words", len(words))
	}
	for i := 0; i < NumConcentrations; i++ {
		if words[i] == InvalidUnsigned {
			continue
		}
		nc.Value[i] = float64(words[i]) / 10
		nc.OK[i] = true
	}
	return nc, nil
}
