package sensor

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sen6x-go/drivers/sen6x"
	"sen6x-go/types"
	"sen6x-go/x/tvoc"
)

var fieldChannels = [sen6x.NumFields]types.Channel{
	sen6x.FieldPM1:         types.PM1,
	sen6x.FieldPM25:        types.PM25,
	sen6x.FieldPM4:         types.PM4,
	sen6x.FieldPM10:        types.PM10,
	sen6x.FieldHumidity:    types.Humidity,
	sen6x.FieldTemperature: types.Temperature,
	sen6x.FieldVOC:         types.VOCIndex,
	sen6x.FieldNOx:         types.NOxIndex,
	sen6x.FieldCO2:         types.CO2,
	sen6x.FieldHCHO:        types.HCHO,
}

var ncChannels = [sen6x.NumConcentrations]types.Channel{
	sen6x.NC05:  types.NC05,
	sen6x.NC10:  types.NC10,
	sen6x.NC25:  types.NC25,
	sen6x.NC40:  types.NC40,
	sen6x.NC100: types.NC100,
}

// Pipeline reads, validates and publishes one measurement per call.
type Pipeline struct {
	dev     *sen6x.Device
	profile sen6x.Profile
	out     *Outputs
	log     *zap.SugaredLogger
}

// Run performs one cycle. A not-ready device and an invalid sample are not
// errors; they report false.
func (p *Pipeline) Run() (bool, error) {
	ready, err := p.dev.DataReady()
	if err != nil {
		return false, coded("data ready", err)
	}
	if !ready {
		p.log.Debugw("data not ready")
		return false, nil
	}
	m, err := p.dev.ReadMeasurement(p.profile)
	if errors.Is(err, sen6x.ErrInvalidSample) {
		p.log.Debugw("sample discarded during warm-up", "reason", err)
		return false, nil
	}
	if err != nil {
		return false, coded("read measurement", err)
	}
	p.publish(&m)

	if p.out.AnyEnabled(ncChannels[:]...) {
		nc, err := p.dev.ReadNumberConcentration()
		if err != nil {
			return true, coded("read number concentration", err)
		}
		for i, ch := range ncChannels {
			if nc.OK[i] {
				p.out.Number(ch, nc.Value[i])
			}
		}
	}
	return true, nil
}

func (p *Pipeline) publish(m *sen6x.Measurement) {
	for f := sen6x.Field(0); f < sen6x.NumFields; f++ {
		v, ok := m.Value(f)
		if !ok {
			continue
		}
		if (f == sen6x.FieldCO2 || f == sen6x.FieldHCHO) && v == 0 {
			continue
		}
		p.out.Number(fieldChannels[f], v)
	}
	if v, ok := m.Value(sen6x.FieldVOC); ok && v > 0 {
		p.out.Number(types.TVOCWell, tvoc.Well(v))
		p.out.Number(types.TVOCReset, tvoc.Reset(v))
		p.out.Number(types.TVOCEthanol, tvoc.Ethanol(v))
	}
}
