package types

// ------------------------
// Bus payloads (retained)
// ------------------------

// DriverState is the sensor component state.
type DriverState struct {
	Level  string `json:"level"` // "starting", "ready", "failed"
	Model  string `json:"model,omitempty"`
	Status string `json:"status,omitempty"` // short error code
	TS     int64  `json:"ts_ms"`
}

// Value is one published channel value. Exactly one of Number, Text or Flag
// is meaningful, per Kind.
type Value struct {
	Channel Channel `json:"channel"`
	Kind    Kind    `json:"kind"`
	Number  float64 `json:"number,omitempty"`
	Text    string  `json:"text,omitempty"`
	Flag    bool    `json:"flag,omitempty"`
	Unit    string  `json:"unit,omitempty"`
	TS      int64   `json:"ts_ms"`
}

// Float returns the value as a gauge reading: numbers as-is, flags as 0/1.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Number, true
	case KindFlag:
		if v.Flag {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// String renders the value for text transports.
func (v Value) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindFlag:
		if v.Flag {
			return "ON"
		}
		return "OFF"
	}
	return formatFloat(v.Number)
}
