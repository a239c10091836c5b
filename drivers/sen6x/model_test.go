package sen6x

import (
	"math"
	"testing"

	"github.com/pkg/errors"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		name  string
		want  Model
		known bool
	}{
		{"SEN62", SEN62, true},
		{"SEN63C", SEN63C, true},
		{"SEN65", SEN65, true},
		{"SEN66", SEN66, true},
		{"SEN68", SEN68, true},
		{"SEN69C", SEN69C, true},
		{"xxSEN69Cyy", SEN69C, true},
		{"", SEN66, false},
		{"SCD41", SEN66, false},
	}
	for _, c := range cases {
		p, ok := Detect(c.name)
		if p.Model != c.want || ok != c.known {
			t.Fatalf("Detect(%q) = %s,%v want %s,%v", c.name, p.Model, ok, c.want, c.known)
		}
	}
}

func TestProfileTable(t *testing.T) {
	cases := []struct {
		m     Model
		cmd   uint16
		words int
		caps  Capabilities
		co2   int
		hcho  int
	}{
		{SEN62, 0x04A3, 6, Capabilities{PM4: true}, -1, -1},
		{SEN63C, 0x0471, 7, Capabilities{CO2: true}, 6, -1},
		{SEN65, 0x0446, 8, Capabilities{VOC: true, NOx: true}, -1, -1},
		{SEN66, 0x0300, 9, Capabilities{VOC: true, NOx: true, CO2: true, PM4: true}, 8, -1},
		{SEN68, 0x0467, 9, Capabilities{VOC: true, NOx: true, HCHO: true}, -1, 8},
		{SEN69C, 0x04B5, 10, Capabilities{VOC: true, NOx: true, CO2: true, HCHO: true, PM4: true}, 9, 8},
	}
	for _, c := range cases {
		p := ProfileOf(c.m)
		if p.ReadCommand != c.cmd || p.Words() != c.words || p.Caps != c.caps {
			t.Fatalf("%s: got cmd=0x%04X words=%d caps=%+v", c.m, p.ReadCommand, p.Words(), p.Caps)
		}
		if p.Offset(FieldCO2) != c.co2 || p.Offset(FieldHCHO) != c.hcho {
			t.Fatalf("%s: co2@%d hcho@%d", c.m, p.Offset(FieldCO2), p.Offset(FieldHCHO))
		}
		if p.Offset(FieldTemperature) != 5 {
			t.Fatalf("%s: temperature must be word 5", c.m)
		}
	}
}

func TestDecodeMeasurementScaling(t *testing.T) {
	p := ProfileOf(SEN69C)
	words := []uint16{52, 81, 95, 104, 4520, uint16(0xFFFF - 399), 1000, 10, 45, 612}
	m, err := DecodeMeasurement(p, words)
	if err != nil {
		t.Fatal(err)
	}
	want := map[Field]float64{
		FieldPM1: 5.2, FieldPM25: 8.1, FieldPM4: 9.5, FieldPM10: 10.4,
		FieldHumidity: 45.2, FieldTemperature: -2.0,
		FieldVOC: 100, FieldNOx: 1, FieldHCHO: 4.5, FieldCO2: 612,
	}
	for f, w := range want {
		got, ok := m.Value(f)
		if !ok || math.Abs(got-w) > 1e-9 {
			t.Fatalf("%s: got %v (%v) want %v", f, got, ok, w)
		}
	}
}

func TestDecodeMeasurementRejectsWholeSample(t *testing.T) {
	p := ProfileOf(SEN66)
	valid := []uint16{52, 81, 95, 104, 4520, 4410, 1000, 10, 612}
	for i, f := range p.Layout {
		words := append([]uint16(nil), valid...)
		if codecs[f].signed {
			words[i] = InvalidSigned
		} else {
			words[i] = InvalidUnsigned
		}
		m, err := DecodeMeasurement(p, words)
		if !errors.Is(err, ErrInvalidSample) {
			t.Fatalf("%s sentinel: want ErrInvalidSample, got %v", f, err)
		}
		for g := Field(0); g < NumFields; g++ {
			if _, ok := m.Value(g); ok {
				t.Fatalf("%s sentinel: field %s leaked from rejected sample", f, g)
			}
		}
	}
}

func TestNumberConcentrationPerField(t *testing.T) {
	nc, err := DecodeNumberConcentration([]uint16{120, 0xFFFF, 135, 136, 137})
	if err != nil {
		t.Fatal(err)
	}
	if !nc.OK[NC05] || nc.Value[NC05] != 12 {
		t.Fatalf("NC0.5: %+v", nc)
	}
	if nc.OK[NC10] {
		t.Fatal("NC1.0 should be suppressed")
	}
	if !nc.OK[NC100] || nc.Value[NC100] != 13.7 {
		t.Fatalf("NC10: %+v", nc)
	}
}

func TestStatusBits(t *testing.T) {
	s := statusFromWords([]uint16{0x0020, 0x0000})
	if !s.FanError() || !s.FanWarning() {
		t.Fatalf("bit 21 must set fan error and warning: %s", s)
	}
	if s.RHTError() || s.GasError() || s.PMError() || s.LaserError() {
		t.Fatalf("unexpected flags: %s", s)
	}
	s = statusFromWords([]uint16{0x001E, 0x0000})
	if !s.RHTError() || !s.GasError() || !s.PMError() || !s.LaserError() || s.FanError() {
		t.Fatalf("bits 17..20: %s", s)
	}
	if s.String() != "0x001E0000" {
		t.Fatalf("String() = %s", s)
	}
}

func TestFRCCorrection(t *testing.T) {
	if _, err := FRCCorrection(0xFFFF); !errors.Is(err, ErrFRCFailed) {
		t.Fatalf("0xFFFF: want ErrFRCFailed, got %v", err)
	}
	if v, err := FRCCorrection(0x8032); err != nil || v != 50 {
		t.Fatalf("0x8032: got %d, %v", v, err)
	}
	if v, _ := FRCCorrection(0x7FCE); v != -50 {
		t.Fatalf("0x7FCE: got %d", v)
	}
}
