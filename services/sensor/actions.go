package sensor

import (
	"math"

	"sen6x-go/drivers/sen6x"
	"sen6x-go/errcode"
	"sen6x-go/services/sensor/lifecycle"
	"sen6x-go/types"
	"sen6x-go/x/mathx"
)

// FRC reference limits in ppm.
const (
	frcMinPPM = 400
	frcMaxPPM = 2000
)

// RequestCalibrationAction runs a user control action. Value carries the
// number for set actions and non-zero for switches on; presses ignore it.
//
// A non-nil return means the action was rejected before any bus traffic and
// done will not be called. Otherwise done is called exactly once, possibly
// before RequestCalibrationAction returns.
func (d *Driver) RequestCalibrationAction(a types.Action, value float64, done func(error)) error {
	if done == nil {
		done = func(error) {}
	}
	op := string(a)
	if err := d.notReady(op); err != nil {
		return err
	}
	switch a {
	case types.ActionFanClean:
		return d.fanClean(done)
	case types.ActionDeviceReset:
		return d.deviceReset(done)
	case types.ActionPreferencesReset:
		done(d.resetPreferences())
		return nil
	case types.ActionForcedCalibration:
		return d.forcedRecalibration(done)
	case types.ActionCO2FactoryReset:
		return d.co2FactoryReset(done)
	case types.ActionHeater:
		return d.activateHeater(done)
	case types.ActionClearStatus:
		return d.clearStatus(done)

	case types.SetAltitude:
		return d.idleWrite(paramAltitude, value, done)
	case types.SetAmbientPressure:
		return d.setPressure(value, done)
	case types.SetTemperatureOffset:
		return d.directWrite(paramTemperatureOffset, value, done)
	case types.SetOutdoorCO2:
		return d.hostSet(paramOutdoorCO2, value, done)
	case types.SetCO2ASC:
		return d.idleWrite(paramCO2ASC, b2f(value != 0), done)
	case types.SetAutoCleaning:
		on := value != 0
		if err := d.hostSet(paramAutoCleaning, b2f(on), done); err != nil {
			return err
		}
		d.clean.Set(on)
		return nil
	case types.FeedAmbientPressure:
		return d.FeedAmbientPressure(value, done)
	}
	return errcode.New(errcode.InvalidParams, op, "unknown action")
}

// FeedAmbientPressure takes a reading from an external pressure sensor.
// Models without CO2 ignore it. Readings within 1 hPa of the last written
// value are skipped.
func (d *Driver) FeedAmbientPressure(hPa float64, done func(error)) error {
	if done == nil {
		done = func(error) {}
	}
	if err := d.notReady("pressure feed"); err != nil {
		return err
	}
	if !d.profile.Caps.CO2 {
		done(nil)
		return nil
	}
	if err := d.cal.check(paramPressure, hPa); err != nil {
		return err
	}
	if !math.IsNaN(d.lastPressure) && math.Abs(hPa-d.lastPressure) < 1 {
		done(nil)
		return nil
	}
	return d.setPressure(hPa, done)
}

func (d *Driver) setPressure(hPa float64, done func(error)) error {
	return d.directWrite(paramPressure, hPa, func(err error) {
		if err == nil {
			d.lastPressure = hPa
		}
		done(err)
	})
}

// idleWrite runs stop, write, persist, start for an Idle-only param and
// publishes the value once measuring again.
func (d *Driver) idleWrite(p *param, v float64, done func(error)) error {
	if err := d.cal.check(p, v); err != nil {
		return err
	}
	written := false
	return d.life.Run(&lifecycle.Sequence{
		Name: p.key,
		Op:   p.op,
		Steps: []lifecycle.Step{{Name: "write", Run: func() error {
			if err := p.write(d.dev, v); err != nil {
				return coded("write "+p.key, err)
			}
			written = true
			_ = d.cal.persist(p, v)
			return nil
		}}},
		OnDone: func(err error) {
			if written {
				d.cal.adopt(p, v)
			}
			done(err)
		},
	})
}

// directWrite writes a param allowed in any mode.
func (d *Driver) directWrite(p *param, v float64, done func(error)) error {
	if err := d.cal.check(p, v); err != nil {
		return err
	}
	if err := d.life.Check(p.op); err != nil {
		return err
	}
	if err := p.write(d.dev, v); err != nil {
		done(coded("write "+p.key, err))
		return nil
	}
	d.cal.commit(p, v)
	done(nil)
	return nil
}

// hostSet stores a value that has no device register.
func (d *Driver) hostSet(p *param, v float64, done func(error)) error {
	if err := d.cal.check(p, v); err != nil {
		return err
	}
	d.cal.commit(p, v)
	done(nil)
	return nil
}

func (d *Driver) requireCO2(op string) error {
	if !d.profile.Caps.CO2 {
		d.log.Warnw("action not supported by model", "action", op, "model", d.profile.Name)
		return errcode.New(errcode.Unsupported, op, "no CO2 sensor on "+d.profile.Name)
	}
	return nil
}

func (d *Driver) fanClean(done func(error)) error {
	return d.life.Run(&lifecycle.Sequence{
		Name:      "fan_clean",
		Op:        lifecycle.OpFanCleaning,
		StopDelay: sen6x.FanCleanStopDelay,
		Steps: []lifecycle.Step{{Name: "clean", Run: func() error {
			if err := d.dev.StartFanCleaning(); err != nil {
				return coded("fan clean", err)
			}
			d.setFanCleaning(true)
			return nil
		}}},
		Settle: sen6x.FanCleanDuration,
		Hold:   sen6x.FanCleanSettle,
		OnDone: func(err error) {
			if d.fanCleaning {
				d.setFanCleaning(false)
			}
			done(err)
		},
	})
}

func (d *Driver) deviceReset(done func(error)) error {
	return d.life.Run(&lifecycle.Sequence{
		Name:   "device_reset",
		Op:     lifecycle.OpDeviceReset,
		NoStop: true,
		Steps: []lifecycle.Step{{Name: "reset", Run: func() error {
			return coded("device reset", d.dev.DeviceReset())
		}}},
		Settle: sen6x.DeviceResetDelay,
		OnDone: done,
	})
}

func (d *Driver) forcedRecalibration(done func(error)) error {
	op := string(types.ActionForcedCalibration)
	if err := d.requireCO2(op); err != nil {
		return err
	}
	ref := d.cal.Value(paramOutdoorCO2)
	if !mathx.IsSet(ref) {
		ref = paramOutdoorCO2.def
	}
	if !mathx.Between(ref, frcMinPPM, frcMaxPPM) {
		return errcode.New(errcode.InvalidParams, op, "reference outside 400..2000 ppm")
	}
	ppm := uint16(math.Round(ref))
	d.log.Infow("forced CO2 recalibration", "reference_ppm", ppm)
	return d.life.Run(&lifecycle.Sequence{
		Name: op,
		Op:   lifecycle.OpForcedRecalibration,
		Steps: []lifecycle.Step{
			{Name: "send", Run: func() error {
				return coded("frc send", d.dev.StartForcedRecalibration(ppm))
			}},
			{Name: "result", Delay: sen6x.FRCExecution, Run: func() error {
				corr, err := d.dev.ForcedRecalibrationResult()
				if err != nil {
					return coded("frc result", err)
				}
				d.log.Infow("forced CO2 recalibration done", "correction_ppm", corr)
				d.out.Number(types.CO2Correction, float64(corr))
				return nil
			}},
		},
		OnDone: done,
	})
}

func (d *Driver) co2FactoryReset(done func(error)) error {
	op := string(types.ActionCO2FactoryReset)
	if err := d.requireCO2(op); err != nil {
		return err
	}
	d.log.Warnw("CO2 factory reset erases FRC and ASC history")
	return d.life.Run(&lifecycle.Sequence{
		Name: op,
		Op:   lifecycle.OpCO2FactoryReset,
		Steps: []lifecycle.Step{{Name: "reset", Run: func() error {
			return coded("co2 factory reset", d.dev.CO2FactoryReset())
		}}},
		Settle: sen6x.FactoryResetTime,
		OnDone: done,
	})
}

func (d *Driver) activateHeater(done func(error)) error {
	return d.life.Run(&lifecycle.Sequence{
		Name: string(types.ActionHeater),
		Op:   lifecycle.OpHeater,
		Steps: []lifecycle.Step{{Name: "heat", Run: func() error {
			return coded("heater", d.dev.ActivateHeater())
		}}},
		Settle: sen6x.HeaterCooldown,
		OnDone: done,
	})
}

func (d *Driver) clearStatus(done func(error)) error {
	return d.life.Do(lifecycle.OpRead, func() error {
		prev, err := d.dev.ReadAndClearStatus()
		if err != nil {
			done(coded("clear status", err))
			return nil
		}
		d.log.Infow("device status cleared", "previous", prev.String())
		st, err := d.dev.Status()
		if err != nil {
			done(coded("status", err))
			return nil
		}
		d.publishStatus(st)
		done(nil)
		return nil
	})
}

// resetPreferences stores reset values for the next boot and turns auto
// cleaning off now.
func (d *Driver) resetPreferences() error {
	err := d.cal.resetPreferences()
	d.clean.Set(false)
	d.cal.adopt(paramAutoCleaning, 0)
	d.log.Infow("preferences reset; takes effect on next boot")
	return err
}
