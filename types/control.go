package types

import "strconv"

// ------------------------
// Controls
// ------------------------

// Action is a user-facing control.
type Action string

// Press actions.
const (
	ActionFanClean          Action = "fan_clean"
	ActionDeviceReset       Action = "device_reset"
	ActionPreferencesReset  Action = "preferences_reset"
	ActionForcedCalibration Action = "forced_co2_calibration"
	ActionCO2FactoryReset   Action = "co2_factory_reset"
	ActionHeater            Action = "heater_activate"
	ActionClearStatus       Action = "clear_status"
)

// Value-set and switch actions.
const (
	SetAltitude          Action = "altitude"
	SetAmbientPressure   Action = "ambient_pressure"
	SetTemperatureOffset Action = "temperature_offset"
	SetOutdoorCO2        Action = "outdoor_co2_reference"
	SetCO2ASC            Action = "co2_asc"
	SetAutoCleaning      Action = "auto_cleaning"
	FeedAmbientPressure  Action = "ambient_pressure_feed"
)

// ControlRequest is published on a control topic. Value carries numbers and
// switches (non-zero is on); presses ignore it.
type ControlRequest struct {
	Action Action  `json:"action"`
	Value  float64 `json:"value,omitempty"`
}

// ControlReply is the retained outcome of the last request for an action.
type ControlReply struct {
	Action Action `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	TS     int64  `json:"ts_ms"`
}

// IsPress reports whether a takes no value.
func (a Action) IsPress() bool {
	switch a {
	case ActionFanClean, ActionDeviceReset, ActionPreferencesReset, ActionForcedCalibration,
		ActionCO2FactoryReset, ActionHeater, ActionClearStatus:
		return true
	}
	return false
}

// Actions lists every accepted action.
var Actions = []Action{
	ActionFanClean, ActionDeviceReset, ActionPreferencesReset, ActionForcedCalibration,
	ActionCO2FactoryReset, ActionHeater, ActionClearStatus,
	SetAltitude, SetAmbientPressure, SetTemperatureOffset, SetOutdoorCO2,
	SetCO2ASC, SetAutoCleaning, FeedAmbientPressure,
}

// ParseAction validates s as an Action.
func ParseAction(s string) (Action, bool) {
	for _, a := range Actions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
