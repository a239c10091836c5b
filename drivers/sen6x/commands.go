package sen6x

import "time"

// I2C address (all variants).
const Address = 0x6B

// Command codes shared by every variant. Measurement read commands are per
// model; see profiles in model.go.
const (
	CmdStartMeasurement    = 0x0021
	CmdStopMeasurement     = 0x0104
	CmdGetDataReady        = 0x0202
	CmdNumberConcentration = 0x0316
	CmdProductName         = 0xD014
	CmdSerialNumber        = 0xD033
	CmdFirmwareVersion     = 0xD100
	CmdDeviceStatus        = 0xD206
	CmdReadAndClearStatus  = 0xD210
	CmdDeviceReset         = 0xD304
	CmdStartFanCleaning    = 0x5607
	CmdTemperatureOffset   = 0x60B2
	CmdVOCTuning           = 0x60D0
	CmdNOxTuning           = 0x60E1
	CmdRHTAcceleration     = 0x6100
	CmdVOCAlgorithmState   = 0x6181
	CmdForcedRecalibration = 0x6707
	CmdCO2ASC              = 0x6711
	CmdAmbientPressure     = 0x6720
	CmdSensorAltitude      = 0x6736
	CmdCO2FactoryReset     = 0x6754
	CmdActivateHeater      = 0x6765
)

// Datasheet timings. Anything at or below ReadDelay may block; the rest is
// meant to be scheduled by the caller.
const (
	ReadDelay         = 20 * time.Millisecond
	StopSettle        = 1500 * time.Millisecond
	FanCleanStopDelay = 100 * time.Millisecond
	FanCleanDuration  = 12 * time.Second
	FanCleanSettle    = 10 * time.Second
	FRCExecution      = 500 * time.Millisecond
	FactoryResetTime  = 1500 * time.Millisecond
	HeaterCooldown    = 20 * time.Second
	DeviceResetDelay  = 100 * time.Millisecond
)

// Word counts for fixed-size replies.
const (
	nameWords        = 16 // 32 data bytes
	statusWords      = 2
	vocStateWords    = 4
	concentrationLen = 5
)

// FRCFailed is the correction word returned when forced recalibration fails.
const FRCFailed = 0xFFFF
