package sen6x

import "strings"

// Model is one of the six SEN6x variants.
type Model uint8

const (
	SEN62 Model = iota
	SEN63C
	SEN65
	SEN66
	SEN68
	SEN69C
	numModels
)

// DefaultModel is used when the product name matches no known variant.
const DefaultModel = SEN66

func (m Model) String() string {
	if m < numModels {
		return profiles[m].Name
	}
	return "unknown"
}

// Field identifies one position in a measurement reply.
type Field uint8

const (
	FieldPM1 Field = iota
	FieldPM25
	FieldPM4
	FieldPM10
	FieldHumidity
	FieldTemperature
	FieldVOC
	FieldNOx
	FieldCO2
	FieldHCHO
	NumFields
)

var fieldNames = [NumFields]string{
	"pm1_0", "pm2_5", "pm4_0", "pm10_0", "humidity", "temperature", "voc", "nox", "co2", "hcho",
}

func (f Field) String() string {
	if f < NumFields {
		return fieldNames[f]
	}
	return "invalid"
}

// Capabilities are the optional sensing elements of a variant.
type Capabilities struct {
	VOC  bool
	NOx  bool
	CO2  bool
	HCHO bool
	PM4  bool
}

// Profile is everything that differs between variants.
type Profile struct {
	Model       Model
	Name        string
	ReadCommand uint16
	Caps        Capabilities
	// Layout lists the field at each word position of the measurement reply.
	Layout []Field
}

// Words is the measurement reply length in words.
func (p Profile) Words() int { return len(p.Layout) }

// Offset returns the word position of f, or -1 if the variant does not report it.
func (p Profile) Offset(f Field) int {
	for i, g := range p.Layout {
		if g == f {
			return i
		}
	}
	return -1
}

var base = []Field{FieldPM1, FieldPM25, FieldPM4, FieldPM10, FieldHumidity, FieldTemperature}

func layout(extra ...Field) []Field {
	return append(append(make([]Field, 0, len(base)+len(extra)), base...), extra...)
}

var profiles = [numModels]Profile{
	SEN62: {
		Model: SEN62, Name: "SEN62", ReadCommand: 0x04A3,
		Caps:   Capabilities{PM4: true},
		Layout: layout(),
	},
	SEN63C: {
		Model: SEN63C, Name: "SEN63C", ReadCommand: 0x0471,
		Caps:   Capabilities{CO2: true},
		Layout: layout(FieldCO2),
	},
	SEN65: {
		Model: SEN65, Name: "SEN65", ReadCommand: 0x0446,
		Caps:   Capabilities{VOC: true, NOx: true},
		Layout: layout(FieldVOC, FieldNOx),
	},
	SEN66: {
		Model: SEN66, Name: "SEN66", ReadCommand: 0x0300,
		Caps:   Capabilities{VOC: true, NOx: true, CO2: true, PM4: true},
		Layout: layout(FieldVOC, FieldNOx, FieldCO2),
	},
	SEN68: {
		Model: SEN68, Name: "SEN68", ReadCommand: 0x0467,
		Caps:   Capabilities{VOC: true, NOx: true, HCHO: true},
		Layout: layout(FieldVOC, FieldNOx, FieldHCHO),
	},
	// HCHO precedes CO2 on the SEN69C; not yet confirmed on hardware.
	SEN69C: {
		Model: SEN69C, Name: "SEN69C", ReadCommand: 0x04B5,
		Caps:   Capabilities{VOC: true, NOx: true, CO2: true, HCHO: true, PM4: true},
		Layout: layout(FieldVOC, FieldNOx, FieldHCHO, FieldCO2),
	},
}

// ProfileOf returns the profile for m. Unknown values map to DefaultModel.
func ProfileOf(m Model) Profile {
	if m >= numModels {
		m = DefaultModel
	}
	return profiles[m]
}

// detectOrder is the substring priority; first match wins.
var detectOrder = []struct {
	sub   string
	model Model
}{
	{"SEN62", SEN62},
	{"SEN63", SEN63C},
	{"SEN65", SEN65},
	{"SEN66", SEN66},
	{"SEN68", SEN68},
	{"SEN69", SEN69C},
}

// Detect maps a reported product name to a profile. ok is false when no
// variant matched and the DefaultModel profile was returned.
func Detect(productName string) (p Profile, ok bool) {
	for _, d := range detectOrder {
		if strings.Contains(productName, d.sub) {
			return profiles[d.model], true
		}
	}
	return profiles[DefaultModel], false
}
