package types

// ------------------------
// Output channels
// ------------------------

// Kind is the value type carried by a channel.
type Kind string

const (
	KindNumber Kind = "number"
	KindText   Kind = "text"
	KindFlag   Kind = "flag"
)

// Channel names one published value.
type Channel string

// Measurements.
const (
	PM1         Channel = "pm1_0"
	PM25        Channel = "pm2_5"
	PM4         Channel = "pm4_0"
	PM10        Channel = "pm10_0"
	Humidity    Channel = "humidity"
	Temperature Channel = "temperature"
	VOCIndex    Channel = "voc_index"
	NOxIndex    Channel = "nox_index"
	CO2         Channel = "co2"
	HCHO        Channel = "hcho"
	TVOCWell    Channel = "tvoc_well"
	TVOCReset   Channel = "tvoc_reset"
	TVOCEthanol Channel = "tvoc_ethanol"
	NC05        Channel = "nc0_5"
	NC10        Channel = "nc1_0"
	NC25        Channel = "nc2_5"
	NC40        Channel = "nc4_0"
	NC100       Channel = "nc10_0"
)

// Calibration working values.
const (
	AltitudeCompensation Channel = "altitude_compensation"
	PressureCompensation Channel = "ambient_pressure_compensation"
	TemperatureOffset    Channel = "temperature_offset"
	OutdoorCO2Reference  Channel = "outdoor_co2_reference"
	CO2Correction        Channel = "co2_correction"
	CO2ASC               Channel = "co2_asc"
	AutoCleaning         Channel = "auto_cleaning"
)

// Status and identity.
const (
	StatusHex       Channel = "status"
	FanError        Channel = "fan_error"
	FanWarning      Channel = "fan_warning"
	RHTError        Channel = "rht_error"
	GasError        Channel = "gas_error"
	PMError         Channel = "pm_error"
	LaserError      Channel = "laser_error"
	FanCleaning     Channel = "fan_cleaning"
	ProductName     Channel = "product_name"
	SerialNumber    Channel = "serial_number"
	FirmwareVersion Channel = "firmware_version"
)

// Needs is the sensing element a channel depends on.
type Needs uint8

const (
	NeedsNone Needs = iota
	NeedsVOC
	NeedsNOx
	NeedsCO2
	NeedsHCHO
	NeedsPM4
)

// ChannelInfo describes a channel.
type ChannelInfo struct {
	Channel Channel
	Kind    Kind
	Unit    string
	Needs   Needs
}

// Channels lists every channel the driver can publish.
var Channels = []ChannelInfo{
	{PM1, KindNumber, "µg/m³", NeedsNone},
	{PM25, KindNumber, "µg/m³", NeedsNone},
	{PM4, KindNumber, "µg/m³", NeedsPM4},
	{PM10, KindNumber, "µg/m³", NeedsNone},
	{Humidity, KindNumber, "%", NeedsNone},
	{Temperature, KindNumber, "°C", NeedsNone},
	{VOCIndex, KindNumber, "", NeedsVOC},
	{NOxIndex, KindNumber, "", NeedsNOx},
	{CO2, KindNumber, "ppm", NeedsCO2},
	{HCHO, KindNumber, "ppb", NeedsHCHO},
	{TVOCWell, KindNumber, "µg/m³", NeedsVOC},
	{TVOCReset, KindNumber, "µg/m³", NeedsVOC},
	{TVOCEthanol, KindNumber, "ppb", NeedsVOC},
	{NC05, KindNumber, "#/cm³", NeedsNone},
	{NC10, KindNumber, "#/cm³", NeedsNone},
	{NC25, KindNumber, "#/cm³", NeedsNone},
	{NC40, KindNumber, "#/cm³", NeedsNone},
	{NC100, KindNumber, "#/cm³", NeedsNone},

	{AltitudeCompensation, KindNumber, "m", NeedsNone},
	{PressureCompensation, KindNumber, "hPa", NeedsNone},
	{TemperatureOffset, KindNumber, "°C", NeedsNone},
	{OutdoorCO2Reference, KindNumber, "ppm", NeedsCO2},
	{CO2Correction, KindNumber, "ppm", NeedsCO2},
	{CO2ASC, KindFlag, "", NeedsCO2},
	{AutoCleaning, KindFlag, "", NeedsNone},

	{StatusHex, KindText, "", NeedsNone},
	{FanError, KindFlag, "", NeedsNone},
	{FanWarning, KindFlag, "", NeedsNone},
	{RHTError, KindFlag, "", NeedsNone},
	{GasError, KindFlag, "", NeedsNone},
	{PMError, KindFlag, "", NeedsNone},
	{LaserError, KindFlag, "", NeedsNone},
	{FanCleaning, KindFlag, "", NeedsNone},
	{ProductName, KindText, "", NeedsNone},
	{SerialNumber, KindText, "", NeedsNone},
	{FirmwareVersion, KindText, "", NeedsNone},
}

// Lookup returns the description of ch.
func Lookup(ch Channel) (ChannelInfo, bool) {
	for _, c := range Channels {
		if c.Channel == ch {
			return c, true
		}
	}
	return ChannelInfo{}, false
}

// AllChannels returns every channel name.
func AllChannels() []Channel {
	out := make([]Channel, len(Channels))
	for i, c := range Channels {
		out[i] = c.Channel
	}
	return out
}
