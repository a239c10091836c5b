package sensor

import (
	"sen6x-go/drivers/sen6x"
	"sen6x-go/types"
)

// Sink receives published values.
type Sink interface {
	Number(ch types.Channel, v float64)
	Text(ch types.Channel, s string)
	Flag(ch types.Channel, b bool)
}

// Outputs gates a Sink by configured channels and by the capabilities of
// the detected model. Channels disabled by capability stay disabled.
type Outputs struct {
	sink     Sink
	enabled  map[types.Channel]bool
	disabled map[types.Channel]bool
}

// NewOutputs enables the listed channels, or every channel if none are
// listed.
func NewOutputs(sink Sink, channels []types.Channel) *Outputs {
	o := &Outputs{sink: sink, enabled: map[types.Channel]bool{}, disabled: map[types.Channel]bool{}}
	if len(channels) == 0 {
		channels = types.AllChannels()
	}
	for _, ch := range channels {
		o.enabled[ch] = true
	}
	return o
}

// Restrict permanently disables channels the model cannot produce and
// returns them.
func (o *Outputs) Restrict(caps sen6x.Capabilities) []types.Channel {
	var off []types.Channel
	for _, c := range types.Channels {
		if !capable(caps, c.Needs) && !o.disabled[c.Channel] {
			o.disabled[c.Channel] = true
			if o.enabled[c.Channel] {
				off = append(off, c.Channel)
			}
		}
	}
	return off
}

func (o *Outputs) Enabled(ch types.Channel) bool {
	return o.sink != nil && o.enabled[ch] && !o.disabled[ch]
}

// AnyEnabled reports whether at least one of chs is enabled.
func (o *Outputs) AnyEnabled(chs ...types.Channel) bool {
	for _, ch := range chs {
		if o.Enabled(ch) {
			return true
		}
	}
	return false
}

func (o *Outputs) Number(ch types.Channel, v float64) {
	if o.Enabled(ch) {
		o.sink.Number(ch, v)
	}
}

func (o *Outputs) Text(ch types.Channel, s string) {
	if o.Enabled(ch) {
		o.sink.Text(ch, s)
	}
}

func (o *Outputs) Flag(ch types.Channel, b bool) {
	if o.Enabled(ch) {
		o.sink.Flag(ch, b)
	}
}

func capable(caps sen6x.Capabilities, n types.Needs) bool {
	switch n {
	case types.NeedsVOC:
		return caps.VOC
	case types.NeedsNOx:
		return caps.NOx
	case types.NeedsCO2:
		return caps.CO2
	case types.NeedsHCHO:
		return caps.HCHO
	case types.NeedsPM4:
		return caps.PM4
	}
	return true
}
