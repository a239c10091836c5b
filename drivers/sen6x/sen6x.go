// Package sen6x provides a driver for the Sensirion SEN6x environmental
// sensor modules (SEN62, SEN63C, SEN65, SEN66, SEN68, SEN69C).
//
// Every transfer is a 16-bit command optionally followed by CRC-protected
// data words; replies are read back after a short fixed delay:
//
//	d := sen6x.New(bus)
//	d.Configure(sen6x.Config{})
//	name, err := d.ProductName()
//	p, _ := sen6x.Detect(name)
//	m, err := d.ReadMeasurement(p)
//
// The driver only ever blocks for ReadDelay. Longer datasheet waits (stop
// settle, fan cleaning, recalibration) are left to the caller so a host loop
// can schedule them.
//
// NOTE: I2C.Tx is used with either w or r set, never both; the SEN6x needs
// a pause between command and read that a repeated start cannot provide.
package sen6x

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"tinygo.org/x/drivers"
)

// Errors returned by the driver.
var (
	ErrChecksum      = errors.New("sen6x: crc mismatch")
	ErrShortFrame    = errors.New("sen6x: short frame")
	ErrInvalidSample = errors.New("sen6x: invalid sample")
	ErrFRCFailed     = errors.New("sen6x: forced recalibration failed")
	ErrOutOfRange    = errors.New("sen6x: value out of range")
)

// TransportError is a failed bus transfer for a given command.
type TransportError struct {
	Cmd  uint16
	Read bool
	Err  error
}

func (e *TransportError) Error() string {
	dir := "write"
	if e.Read {
		dir = "read"
	}
	return fmt.Sprintf("sen6x: %s 0x%04X: %v", dir, e.Cmd, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x6B if zero.
	Address uint16
	// ReadDelay is the pause between a command and its reply. Default 20 ms.
	ReadDelay time.Duration
	// Sleep performs ReadDelay. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Device wraps an I2C connection to a SEN6x.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg Config
	w   [2 + 6*WordLen]byte       // largest write: VOC tuning
	r   [nameWords * WordLen]byte // largest read: product name / serial
}

// New creates a Device. It does not touch the bus.
func New(bus drivers.I2C) *Device {
	d := &Device{bus: bus, Address: Address}
	d.Configure(Config{})
	return d
}

// Configure applies cfg, filling defaults.
func (d *Device) Configure(cfg Config) {
	if cfg.Address != 0 {
		d.Address = cfg.Address
	}
	if cfg.ReadDelay <= 0 {
		cfg.ReadDelay = ReadDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	d.cfg = cfg
}

// ---------------- framing ----------------

func (d *Device) write(cmd uint16, words ...uint16) error {
	buf := AppendFrame(d.w[:0], cmd, words...)
	if err := d.bus.Tx(d.Address, buf, nil); err != nil {
		return &TransportError{Cmd: cmd, Err: err}
	}
	return nil
}

// fetch reads n words without sending a command first.
func (d *Device) fetch(cmd uint16, n int) ([]uint16, error) {
	raw := d.r[:n*WordLen]
	if err := d.bus.Tx(d.Address, nil, raw); err != nil {
		return nil, &TransportError{Cmd: cmd, Read: true, Err: err}
	}
	words, err := DecodeWords(raw, n)
	return words, errors.WithMessagef(err, "cmd 0x%04X", cmd)
}

func (d *Device) readWords(cmd uint16, n int) ([]uint16, error) {
	if err := d.write(cmd); err != nil {
		return nil, err
	}
	d.cfg.Sleep(d.cfg.ReadDelay)
	return d.fetch(cmd, n)
}

func (d *Device) readBytes(cmd uint16, n int) ([]byte, error) {
	if err := d.write(cmd); err != nil {
		return nil, err
	}
	d.cfg.Sleep(d.cfg.ReadDelay)
	raw := d.r[:n*WordLen]
	if err := d.bus.Tx(d.Address, nil, raw); err != nil {
		return nil, &TransportError{Cmd: cmd, Read: true, Err: err}
	}
	b, err := DecodeBytes(raw, n)
	return b, errors.WithMessagef(err, "cmd 0x%04X", cmd)
}

func (d *Device) readWord(cmd uint16) (uint16, error) {
	w, err := d.readWords(cmd, 1)
	if err != nil {
		return 0, err
	}
	return w[0], nil
}

// ---------------- lifecycle ----------------

// StartMeasurement enters measurement mode.
func (d *Device) StartMeasurement() error { return d.write(CmdStartMeasurement) }

// StopMeasurement returns to idle. The device needs StopSettle before the
// next idle-only command.
func (d *Device) StopMeasurement() error { return d.write(CmdStopMeasurement) }

// StartFanCleaning runs the fan at full speed for FanCleanDuration. Idle only.
func (d *Device) StartFanCleaning() error { return d.write(CmdStartFanCleaning) }

// DeviceReset reboots the sensor into idle.
func (d *Device) DeviceReset() error { return d.write(CmdDeviceReset) }

// ActivateHeater turns the SHT heater on for ~1 s. Idle only; allow
// HeaterCooldown before measuring again.
func (d *Device) ActivateHeater() error { return d.write(CmdActivateHeater) }

// CO2FactoryReset clears FRC and ASC history. Idle only.
func (d *Device) CO2FactoryReset() error { return d.write(CmdCO2FactoryReset) }

// ---------------- measurement ----------------

// DataReady reports whether a new sample is available.
func (d *Device) DataReady() (bool, error) {
	w, err := d.readWord(CmdGetDataReady)
	if err != nil {
		return false, err
	}
	return w&0x00FF != 0, nil
}

// ReadMeasurementWords reads the raw measurement reply for p.
func (d *Device) ReadMeasurementWords(p Profile) ([]uint16, error) {
	return d.readWords(p.ReadCommand, p.Words())
}

// ReadMeasurement reads and decodes one sample for p.
func (d *Device) ReadMeasurement(p Profile) (Measurement, error) {
	words, err := d.ReadMeasurementWords(p)
	if err != nil {
		return Measurement{Model: p.Model}, err
	}
	return DecodeMeasurement(p, words)
}

// ReadNumberConcentration reads the five particle count bins.
func (d *Device) ReadNumberConcentration() (NumberConcentration, error) {
	words, err := d.readWords(CmdNumberConcentration, concentrationLen)
	if err != nil {
		return NumberConcentration{}, err
	}
	return DecodeNumberConcentration(words)
}

// Status reads the device status register.
func (d *Device) Status() (Status, error) {
	w, err := d.readWords(CmdDeviceStatus, statusWords)
	if err != nil {
		return 0, err
	}
	return statusFromWords(w), nil
}

// ReadAndClearStatus returns the status register and clears its sticky bits.
func (d *Device) ReadAndClearStatus() (Status, error) {
	w, err := d.readWords(CmdReadAndClearStatus, statusWords)
	if err != nil {
		return 0, err
	}
	return statusFromWords(w), nil
}

// ---------------- identity ----------------

// ProductName returns the NUL-terminated product name, e.g. "SEN66".
func (d *Device) ProductName() (string, error) {
	b, err := d.readBytes(CmdProductName, nameWords)
	if err != nil {
		return "", err
	}
	return CString(b), nil
}

// SerialNumber returns the 32 raw serial bytes. Use CString for display.
func (d *Device) SerialNumber() ([]byte, error) {
	b, err := d.readBytes(CmdSerialNumber, nameWords)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// FirmwareVersion returns the major and minor firmware numbers.
func (d *Device) FirmwareVersion() (major, minor uint8, err error) {
	w, err := d.readWord(CmdFirmwareVersion)
	if err != nil {
		return 0, 0, err
	}
	return uint8(w >> 8), uint8(w), nil
}

// ---------------- compensation ----------------

// SensorAltitude reads the configured altitude in metres.
func (d *Device) SensorAltitude() (int16, error) {
	w, err := d.readWord(CmdSensorAltitude)
	return int16(w), err
}

// SetSensorAltitude writes the altitude in metres (0..3000). Idle only.
func (d *Device) SetSensorAltitude(m uint16) error {
	if m > 3000 {
		return errors.Wrapf(ErrOutOfRange, "altitude %d m", m)
	}
	return d.write(CmdSensorAltitude, m)
}

// AmbientPressure reads the configured ambient pressure in hPa.
func (d *Device) AmbientPressure() (int16, error) {
	w, err := d.readWord(CmdAmbientPressure)
	return int16(w), err
}

// SetAmbientPressure writes the ambient pressure in hPa (700..1200).
// Allowed while measuring.
func (d *Device) SetAmbientPressure(hPa uint16) error {
	if hPa < 700 || hPa > 1200 {
		return errors.Wrapf(ErrOutOfRange, "pressure %d hPa", hPa)
	}
	return d.write(CmdAmbientPressure, hPa)
}

// TemperatureOffset is one slot of the device temperature compensation.
// The device applies the sum of all slots.
type TemperatureOffset struct {
	Offset       float64 // °C
	Slope        float64 // dimensionless
	TimeConstant uint16  // seconds
	Slot         uint16  // 0..4
}

// SetTemperatureOffset writes one compensation slot.
func (d *Device) SetTemperatureOffset(t TemperatureOffset) error {
	off := math.Round(t.Offset * 200)
	slope := math.Round(t.Slope * 10000)
	if t.Slot > 4 || off < math.MinInt16 || off > math.MaxInt16 || slope < math.MinInt16 || slope > math.MaxInt16 {
		return errors.Wrapf(ErrOutOfRange, "temperature offset %+v", t)
	}
	return d.write(CmdTemperatureOffset, uint16(int16(off)), uint16(int16(slope)), t.TimeConstant, t.Slot)
}

// TemperatureOffset reads back the offset register in °C.
func (d *Device) TemperatureOffset() (float64, error) {
	w, err := d.readWord(CmdTemperatureOffset)
	if err != nil {
		return 0, err
	}
	return float64(int16(w)) / 200, nil
}

// GasTuning are the VOC/NOx index algorithm parameters.
type GasTuning struct {
	IndexOffset              int16
	LearningTimeOffsetHours  int16
	LearningTimeGainHours    int16
	GatingMaxDurationMinutes int16
	StdInitial               int16 // VOC only
	GainFactor               int16
}

// DefaultVOCTuning returns the factory VOC algorithm parameters.
func DefaultVOCTuning() GasTuning {
	return GasTuning{100, 12, 12, 180, 50, 230}
}

// DefaultNOxTuning returns the factory NOx algorithm parameters.
func DefaultNOxTuning() GasTuning {
	return GasTuning{1, 12, 12, 720, 50, 230}
}

// SetVOCTuning writes the VOC algorithm parameters. Idle only.
func (d *Device) SetVOCTuning(t GasTuning) error {
	return d.write(CmdVOCTuning,
		uint16(t.IndexOffset), uint16(t.LearningTimeOffsetHours), uint16(t.LearningTimeGainHours),
		uint16(t.GatingMaxDurationMinutes), uint16(t.StdInitial), uint16(t.GainFactor))
}

// SetNOxTuning writes the NOx algorithm parameters. StdInitial is not sent.
// Idle only.
func (d *Device) SetNOxTuning(t GasTuning) error {
	return d.write(CmdNOxTuning,
		uint16(t.IndexOffset), uint16(t.LearningTimeOffsetHours), uint16(t.LearningTimeGainHours),
		uint16(t.GatingMaxDurationMinutes), uint16(t.GainFactor))
}

// RHTAcceleration tunes the humidity/temperature response. Volatile; idle only.
type RHTAcceleration struct {
	K, P   int16
	T1, T2 uint16
}

// SetRHTAcceleration writes the acceleration parameters.
func (d *Device) SetRHTAcceleration(a RHTAcceleration) error {
	return d.write(CmdRHTAcceleration, uint16(a.K), uint16(a.P), a.T1, a.T2)
}

// ---------------- CO2 ----------------

// SetCO2ASC enables or disables CO2 automatic self-calibration. Idle only.
func (d *Device) SetCO2ASC(on bool) error {
	var w uint16
	if on {
		w = 1
	}
	return d.write(CmdCO2ASC, w)
}

// CO2ASC reports whether automatic self-calibration is enabled.
func (d *Device) CO2ASC() (bool, error) {
	w, err := d.readWord(CmdCO2ASC)
	return w&0x00FF != 0, err
}

// StartForcedRecalibration sends the reference concentration. The result is
// available after FRCExecution via ForcedRecalibrationResult. Idle only.
func (d *Device) StartForcedRecalibration(ppm uint16) error {
	return d.write(CmdForcedRecalibration, ppm)
}

// ForcedRecalibrationResult reads the correction word left by
// StartForcedRecalibration and converts it to a ppm offset.
func (d *Device) ForcedRecalibrationResult() (int16, error) {
	w, err := d.fetch(CmdForcedRecalibration, 1)
	if err != nil {
		return 0, err
	}
	return FRCCorrection(w[0])
}

// FRCCorrection converts a raw correction word to a signed ppm offset.
func FRCCorrection(w uint16) (int16, error) {
	if w == FRCFailed {
		return 0, ErrFRCFailed
	}
	return int16(int32(w) - 0x8000), nil
}

// ---------------- VOC algorithm state ----------------

// VOCState is the opaque VOC algorithm state.
type VOCState struct {
	State0, State1 int32
}

// VOCAlgorithmState reads the VOC algorithm state.
func (d *Device) VOCAlgorithmState() (VOCState, error) {
	w, err := d.readWords(CmdVOCAlgorithmState, vocStateWords)
	if err != nil {
		return VOCState{}, err
	}
	return VOCState{
		State0: int32(uint32(w[0])<<16 | uint32(w[1])),
		State1: int32(uint32(w[2])<<16 | uint32(w[3])),
	}, nil
}

// SetVOCAlgorithmState restores a saved VOC algorithm state. Idle only.
func (d *Device) SetVOCAlgorithmState(s VOCState) error {
	s0, s1 := uint32(s.State0), uint32(s.State1)
	return d.write(CmdVOCAlgorithmState, uint16(s0>>16), uint16(s0), uint16(s1>>16), uint16(s1))
}
