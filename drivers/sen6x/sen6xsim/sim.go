// Package sen6xsim is an in-memory SEN6x that speaks the wire protocol over
// the drivers.I2C interface. It backs the driver tests and the daemon's
// --simulate mode.
package sen6xsim

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"sen6x-go/drivers/sen6x"
)

// ErrNack is returned for injected failures and malformed frames.
var ErrNack = errors.New("sen6xsim: nack")

// Frame is one command written by the host.
type Frame struct {
	Cmd   uint16
	Words []uint16
}

// Sim is a simulated SEN6x. Exported fields may be changed between
// transfers; all access goes through the mutex.
type Sim struct {
	mu sync.Mutex

	Profile     sen6x.Profile
	ProductName string
	Serial      string
	Firmware    [2]uint8

	Measuring bool
	Ready     bool
	Words     []uint16 // measurement reply
	NC        [sen6x.NumConcentrations]uint16
	StatusReg uint32

	Altitude   uint16
	Pressure   uint16
	TempOffset [5][4]uint16
	ASC        bool
	VOCState   [4]uint16
	VOCTuning  []uint16
	NOxTuning  []uint16
	RHTAccel   []uint16
	FRCRef     uint16
	FRCResult  uint16

	Cleanings     int
	Resets        int
	FactoryResets int
	Heats         int

	// Fail makes writes of the given commands return the error.
	Fail map[uint16]error
	// FailReads makes every read fail.
	FailReads bool
	// CorruptReads flips a CRC bit in the next n reads.
	CorruptReads int

	// Log records every accepted command in order.
	Log []Frame
	// Violations records idle-only commands received while measuring.
	Violations []uint16

	pending []uint16
}

// New returns a simulator for m with plausible valid readings.
func New(m sen6x.Model) *Sim {
	p := sen6x.ProfileOf(m)
	s := &Sim{
		Profile:     p,
		ProductName: p.Name,
		Serial:      "1A2B3C4D5E6F7788",
		Firmware:    [2]uint8{4, 0},
		Ready:       true,
		ASC:         true,
		FRCResult:   0x8000,
		Fail:        map[uint16]error{},
	}
	s.Words = make([]uint16, p.Words())
	for i, f := range p.Layout {
		s.Words[i] = defaultRaw[f]
	}
	s.NC = [sen6x.NumConcentrations]uint16{120, 130, 135, 136, 137}
	return s
}

var defaultRaw = [sen6x.NumFields]uint16{
	sen6x.FieldPM1:         52,
	sen6x.FieldPM25:        81,
	sen6x.FieldPM4:         95,
	sen6x.FieldPM10:        104,
	sen6x.FieldHumidity:    4520,
	sen6x.FieldTemperature: 4410,
	sen6x.FieldVOC:         1000,
	sen6x.FieldNOx:         10,
	sen6x.FieldCO2:         612,
	sen6x.FieldHCHO:        45,
}

// SetField overwrites the raw reply word for f. It is a no-op if the
// variant does not report f.
func (s *Sim) SetField(f sen6x.Field, raw uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.Profile.Offset(f); i >= 0 {
		s.Words[i] = raw
	}
}

// SetVOCState sets the algorithm state returned by the device.
func (s *Sim) SetVOCState(st sen6x.VOCState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s0, s1 := uint32(st.State0), uint32(st.State1)
	s.VOCState = [4]uint16{uint16(s0 >> 16), uint16(s0), uint16(s1 >> 16), uint16(s1)}
}

// Commands returns the command codes written so far.
func (s *Sim) Commands() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint16, len(s.Log))
	for i, f := range s.Log {
		out[i] = f.Cmd
	}
	return out
}

// Count returns how many times cmd was written.
func (s *Sim) Count(cmd uint16) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.Log {
		if f.Cmd == cmd {
			n++
		}
	}
	return n
}

// Last returns the most recent frame for cmd.
func (s *Sim) Last(cmd uint16) (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.Log) - 1; i >= 0; i-- {
		if s.Log[i].Cmd == cmd {
			return s.Log[i], true
		}
	}
	return Frame{}, false
}

// ResetLog clears Log and Violations.
func (s *Sim) ResetLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Log = nil
	s.Violations = nil
}

// Tx implements drivers.I2C.
func (s *Sim) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr != sen6x.Address {
		return ErrNack
	}
	if len(w) > 0 {
		if err := s.write(w); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		return s.read(r)
	}
	return nil
}

func (s *Sim) write(w []byte) error {
	if len(w) < 2 || (len(w)-2)%sen6x.WordLen != 0 {
		return errors.Wrapf(ErrNack, "frame length %d", len(w))
	}
	cmd := binary.BigEndian.Uint16(w)
	words, err := sen6x.DecodeWords(w[2:], (len(w)-2)/sen6x.WordLen)
	if err != nil {
		return errors.Wrap(ErrNack, err.Error())
	}
	if err := s.Fail[cmd]; err != nil {
		return err
	}
	s.Log = append(s.Log, Frame{Cmd: cmd, Words: words})
	if s.Measuring && idleOnly(cmd, len(words) > 0) {
		s.Violations = append(s.Violations, cmd)
	}
	s.pending = nil
	s.handle(cmd, words)
	return nil
}

func idleOnly(cmd uint16, hasData bool) bool {
	switch cmd {
	case sen6x.CmdStartFanCleaning, sen6x.CmdVOCTuning, sen6x.CmdNOxTuning,
		sen6x.CmdRHTAcceleration, sen6x.CmdForcedRecalibration,
		sen6x.CmdCO2FactoryReset, sen6x.CmdActivateHeater:
		return true
	case sen6x.CmdVOCAlgorithmState, sen6x.CmdCO2ASC, sen6x.CmdSensorAltitude:
		return hasData
	}
	return false
}

func (s *Sim) handle(cmd uint16, words []uint16) {
	switch cmd {
	case sen6x.CmdStartMeasurement:
		s.Measuring = true
	case sen6x.CmdStopMeasurement:
		s.Measuring = false
	case sen6x.CmdGetDataReady:
		if s.Ready {
			s.pending = []uint16{0x0001}
		} else {
			s.pending = []uint16{0x0000}
		}
	case s.Profile.ReadCommand:
		s.pending = append([]uint16(nil), s.Words...)
	case sen6x.CmdNumberConcentration:
		s.pending = append([]uint16(nil), s.NC[:]...)
	case sen6x.CmdProductName:
		s.pending = packString(s.ProductName)
	case sen6x.CmdSerialNumber:
		s.pending = packString(s.Serial)
	case sen6x.CmdFirmwareVersion:
		s.pending = []uint16{uint16(s.Firmware[0])<<8 | uint16(s.Firmware[1])}
	case sen6x.CmdDeviceStatus:
		s.pending = []uint16{uint16(s.StatusReg >> 16), uint16(s.StatusReg)}
	case sen6x.CmdReadAndClearStatus:
		s.pending = []uint16{uint16(s.StatusReg >> 16), uint16(s.StatusReg)}
		s.StatusReg = 0
	case sen6x.CmdDeviceReset:
		s.Measuring = false
		s.Resets++
	case sen6x.CmdStartFanCleaning:
		s.Cleanings++
	case sen6x.CmdCO2FactoryReset:
		s.FactoryResets++
	case sen6x.CmdActivateHeater:
		s.Heats++
	case sen6x.CmdVOCTuning:
		s.VOCTuning = words
	case sen6x.CmdNOxTuning:
		s.NOxTuning = words
	case sen6x.CmdRHTAcceleration:
		s.RHTAccel = words
	case sen6x.CmdTemperatureOffset:
		if len(words) == 4 {
			if slot := words[3]; slot < 5 {
				copy(s.TempOffset[slot][:], words)
			}
			return
		}
		s.pending = []uint16{s.TempOffset[0][0]}
	case sen6x.CmdVOCAlgorithmState:
		if len(words) == 4 {
			copy(s.VOCState[:], words)
			return
		}
		s.pending = append([]uint16(nil), s.VOCState[:]...)
	case sen6x.CmdForcedRecalibration:
		if len(words) == 1 {
			s.FRCRef = words[0]
			s.pending = []uint16{s.FRCResult}
		}
	case sen6x.CmdCO2ASC:
		if len(words) == 1 {
			s.ASC = words[0]&0xFF != 0
			return
		}
		if s.ASC {
			s.pending = []uint16{1}
		} else {
			s.pending = []uint16{0}
		}
	case sen6x.CmdAmbientPressure:
		if len(words) == 1 {
			s.Pressure = words[0]
			return
		}
		s.pending = []uint16{s.Pressure}
	case sen6x.CmdSensorAltitude:
		if len(words) == 1 {
			s.Altitude = words[0]
			return
		}
		s.pending = []uint16{s.Altitude}
	}
}

func (s *Sim) read(r []byte) error {
	if s.FailReads {
		return errors.Wrap(ErrNack, "read")
	}
	buf := make([]byte, 0, len(r))
	for i := 0; len(buf) < len(r); i++ {
		var w uint16
		if i < len(s.pending) {
			w = s.pending[i]
		}
		buf = append(buf, byte(w>>8), byte(w))
		buf = append(buf, sen6x.CRC(buf[len(buf)-2:]))
	}
	copy(r, buf)
	if s.CorruptReads > 0 {
		s.CorruptReads--
		r[len(r)-1] ^= 0x01
	}
	s.pending = nil
	return nil
}

// packString encodes s NUL-padded into 16 words, two bytes per word.
func packString(s string) []uint16 {
	var b [32]byte
	copy(b[:31], s)
	out := make([]uint16, 16)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(b[2*i:])
	}
	return out
}
