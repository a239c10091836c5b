package sensor

import (
	"math"

	"go.uber.org/zap"

	"sen6x-go/drivers/sen6x"
	"sen6x-go/errcode"
	"sen6x-go/services/prefs"
	"sen6x-go/services/sensor/lifecycle"
	"sen6x-go/types"
	"sen6x-go/x/mathx"
)

// param describes one persisted calibration value. Flags are carried as
// 0/1 and stored as CBOR booleans.
type param struct {
	key      string
	channel  types.Channel
	op       lifecycle.Op
	needs    types.Needs
	flag     bool
	hostOnly bool
	def      float64
	min, max float64

	write func(d *sen6x.Device, v float64) error
	read  func(d *sen6x.Device) (float64, error)
}

func (p *param) inRange(v float64) bool {
	return p.flag || mathx.Between(v, p.min, p.max)
}

var (
	paramAltitude = &param{
		key: prefs.KeyAltitude, channel: types.AltitudeCompensation, op: lifecycle.OpAltitude,
		min: 0, max: 3000,
		write: func(d *sen6x.Device, v float64) error { return d.SetSensorAltitude(uint16(math.Round(v))) },
		read: func(d *sen6x.Device) (float64, error) {
			v, err := d.SensorAltitude()
			return float64(v), err
		},
	}
	paramPressure = &param{
		key: prefs.KeyAmbientPressure, channel: types.PressureCompensation, op: lifecycle.OpAmbientPressure,
		min: 700, max: 1200,
		write: func(d *sen6x.Device, v float64) error { return d.SetAmbientPressure(uint16(math.Round(v))) },
		read: func(d *sen6x.Device) (float64, error) {
			v, err := d.AmbientPressure()
			return float64(v), err
		},
	}
	paramTemperatureOffset = &param{
		key: prefs.KeyTemperatureOffset, channel: types.TemperatureOffset, op: lifecycle.OpTemperatureOffset,
		min: -10, max: 10,
		write: func(d *sen6x.Device, v float64) error {
			return d.SetTemperatureOffset(sen6x.TemperatureOffset{Offset: v, Slot: 0})
		},
		read: func(d *sen6x.Device) (float64, error) { return d.TemperatureOffset() },
	}
	paramOutdoorCO2 = &param{
		key: prefs.KeyOutdoorCO2Reference, channel: types.OutdoorCO2Reference, needs: types.NeedsCO2,
		hostOnly: true, def: 400, min: 350, max: 500,
	}
	paramCO2ASC = &param{
		key: prefs.KeyCO2ASC, channel: types.CO2ASC, op: lifecycle.OpCO2ASC, needs: types.NeedsCO2,
		flag:  true,
		write: func(d *sen6x.Device, v float64) error { return d.SetCO2ASC(v != 0) },
		read: func(d *sen6x.Device) (float64, error) {
			on, err := d.CO2ASC()
			return b2f(on), err
		},
	}
	paramAutoCleaning = &param{
		key: prefs.KeyAutoCleaning, channel: types.AutoCleaning, flag: true, hostOnly: true,
	}
)

// Calibration mediates between the preference store and device registers.
// It owns the working value of every param.
type Calibration struct {
	dev  *sen6x.Device
	ns   *prefs.Namespace
	out  *Outputs
	caps sen6x.Capabilities
	log  *zap.SugaredLogger

	values map[*param]float64
}

func newCalibration(dev *sen6x.Device, ns *prefs.Namespace, out *Outputs, caps sen6x.Capabilities, log *zap.SugaredLogger) *Calibration {
	return &Calibration{dev: dev, ns: ns, out: out, caps: caps, log: log, values: map[*param]float64{}}
}

// Value returns the working value of p, NaN if unknown.
func (c *Calibration) Value(p *param) float64 {
	if v, ok := c.values[p]; ok {
		return v
	}
	return mathx.Unset()
}

func (c *Calibration) supported(p *param) bool { return capable(c.caps, p.needs) }

// load returns the persisted value. Load errors are logged and read as
// absent.
func (c *Calibration) load(p *param) (float64, bool) {
	if p.flag {
		b, ok, err := c.ns.Bool(p.key)
		if err != nil {
			c.log.Warnw("preference load failed", "key", p.key, "err", err)
			return 0, false
		}
		return b2f(b), ok
	}
	v, ok, err := c.ns.Float(p.key)
	if err != nil {
		c.log.Warnw("preference load failed", "key", p.key, "err", err)
		return 0, false
	}
	return v, ok
}

// persist stores v for p. Errors are logged and returned.
func (c *Calibration) persist(p *param, v float64) error {
	var err error
	if p.flag {
		err = c.ns.Put(p.key, v != 0)
	} else {
		err = c.ns.Put(p.key, v)
	}
	if err != nil {
		c.log.Warnw("preference save failed", "key", p.key, "err", err)
	}
	return err
}

// adopt sets the working value and publishes it.
func (c *Calibration) adopt(p *param, v float64) {
	c.values[p] = v
	if math.IsNaN(v) {
		return
	}
	if p.flag {
		c.out.Flag(p.channel, v != 0)
		return
	}
	c.out.Number(p.channel, v)
}

// restore runs the startup protocol for p: a stored value is written and
// verified, an absent one is read from the device and adopted as is. It
// reports whether a stored value reached the device.
func (c *Calibration) restore(p *param) bool {
	if !c.supported(p) {
		return false
	}
	v, ok := c.load(p)
	if ok && !math.IsNaN(v) {
		if p.hostOnly {
			c.adopt(p, v)
			return false
		}
		if err := p.write(c.dev, v); err != nil {
			c.log.Warnw("restore write failed; reading device value", "key", p.key, "value", v, "err", coded("restore "+p.key, err))
		} else {
			if got, err := p.read(c.dev); err == nil {
				v = got
			} else {
				c.log.Debugw("restore verify read failed", "key", p.key, "err", err)
			}
			c.log.Infow("restored preference", "key", p.key, "value", v)
			c.adopt(p, v)
			return true
		}
	}
	if p.hostOnly {
		c.adopt(p, p.def)
		return false
	}
	got, err := p.read(c.dev)
	if err != nil {
		c.log.Warnw("device read failed", "key", p.key, "err", coded("read "+p.key, err))
		c.values[p] = mathx.Unset()
		return false
	}
	c.log.Infow("adopted device value", "key", p.key, "value", got)
	c.adopt(p, got)
	return false
}

// check validates a user value for p before any bus traffic.
func (c *Calibration) check(p *param, v float64) error {
	if !c.supported(p) {
		return errcode.New(errcode.Unsupported, p.key, "not supported by this model")
	}
	if math.IsNaN(v) || !p.inRange(v) {
		return errcode.New(errcode.InvalidParams, p.key, "value out of range")
	}
	return nil
}

// commit persists and publishes an acknowledged value. A failed save does
// not undo the device write.
func (c *Calibration) commit(p *param, v float64) {
	_ = c.persist(p, v)
	c.adopt(p, v)
}

// resetPreferences overwrites stored preferences with their reset values.
// Device registers are untouched until the next boot.
func (c *Calibration) resetPreferences() error {
	var first error
	for _, p := range []*param{paramAltitude, paramPressure, paramTemperatureOffset} {
		if err := c.persist(p, mathx.Unset()); err != nil && first == nil {
			first = err
		}
	}
	if err := c.persist(paramCO2ASC, 1); err != nil && first == nil {
		first = err
	}
	if err := c.persist(paramAutoCleaning, 0); err != nil && first == nil {
		first = err
	}
	return first
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
