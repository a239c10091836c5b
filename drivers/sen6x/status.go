package sen6x

import "fmt"

// Status is the 32-bit device status register (two words, high word first).
type Status uint32

// Status bits.
const (
	StatusLaserError Status = 1 << 17
	StatusPMError    Status = 1 << 18
	StatusGasError   Status = 1 << 19
	StatusRHTError   Status = 1 << 20
	StatusFanError   Status = 1 << 21
	// StatusFanWarning shares bit 21 with StatusFanError. Kept separate until
	// the datasheet says otherwise.
	StatusFanWarning Status = 1 << 21
)

func statusFromWords(w []uint16) Status {
	return Status(uint32(w[0])<<16 | uint32(w[1]))
}

func (s Status) FanError() bool   { return s&StatusFanError != 0 }
func (s Status) FanWarning() bool { return s&StatusFanWarning != 0 }
func (s Status) RHTError() bool   { return s&StatusRHTError != 0 }
func (s Status) GasError() bool   { return s&StatusGasError != 0 }
func (s Status) PMError() bool    { return s&StatusPMError != 0 }
func (s Status) LaserError() bool { return s&StatusLaserError != 0 }

// String renders the register as 0x%08X.
func (s Status) String() string { return fmt.Sprintf("0x%08X", uint32(s)) }
