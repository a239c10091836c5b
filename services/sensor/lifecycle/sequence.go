package lifecycle

import (
	"time"

	"github.com/pkg/errors"

	"sen6x-go/errcode"
)

// Phase is the position of a Sequence.
type Phase uint8

const (
	Pending Phase = iota
	Stopping
	Waiting
	Acting
	Resuming
	Done
)

func (p Phase) String() string {
	return [...]string{"pending", "stopping", "waiting", "acting", "resuming", "done"}[p]
}

// Step is one bus action run after Delay.
type Step struct {
	Name  string
	Delay time.Duration
	Run   func() error
}

// Sequence is a timed stop, wait, act, settle, resume round trip.
//
// A stop failure ends the sequence without further bus traffic and leaves
// the mode Measuring. A step failure skips the remaining steps and Settle
// and resumes at once. A NoStop sequence never resumes after a step
// failure; the mode returns to what it was before Run. Resume failure
// leaves the mode Idle with a restart pending, unless Initial is set, in
// which case the lifecycle is failed.
type Sequence struct {
	Name string
	// Op gates the sequence: a NoStop sequence may not carry an Idle-only op.
	Op   Op

	// NoStop acts straight from Measuring (device reset).
	NoStop bool
	// ForceStop sends stop regardless of mode and ignores its error.
	ForceStop bool
	// StopDelay defaults to the datasheet stop settle time.
	StopDelay time.Duration
	Steps     []Step
	// Settle is waited after the last step when all steps succeeded.
	Settle time.Duration
	// Hold suppresses polling after a successful resume.
	Hold time.Duration
	// Initial marks the startup sequence.
	Initial bool
	// OnDone receives the first step error or the resume error.
	OnDone func(error)

	phase Phase
	err   error
	from  Mode
}

func (s *Sequence) Phase() Phase { return s.phase }

// Err returns the first failure seen so far.
func (s *Sequence) Err() error { return s.err }

// Run starts seq. It returns an error only when seq cannot start; every
// other outcome is reported through OnDone.
func (l *Lifecycle) Run(seq *Sequence) error {
	if l.failed {
		return errcode.New(errcode.Failed, seq.Name, "sensor failed to start")
	}
	if l.Busy() {
		return errcode.New(errcode.Busy, seq.Name, "sequence "+l.activeName()+" running")
	}
	if seq.NoStop && seq.Op.IdleOnly() {
		return errcode.New(errcode.WrongMode, seq.Name, "needs Idle but sequence does not stop")
	}
	l.active = seq
	l.log.Debugw("sequence start", "seq", seq.Name, "mode", l.mode)

	if seq.NoStop {
		seq.from = l.mode
		l.mode = Transitioning
		l.act(seq, 0)
		return nil
	}

	if l.mode == Measuring || seq.ForceStop {
		seq.phase = Stopping
		if err := l.dev.StopMeasurement(); err != nil && !seq.ForceStop {
			seq.err = errcode.Wrap(errcode.Transport, seq.Name+": stop", err)
			l.finish(seq)
			return nil
		} else if err != nil {
			l.log.Debugw("stop ignored", "seq", seq.Name, "err", err)
		}
		delay := seq.StopDelay
		if delay <= 0 {
			delay = settleDelay
		}
		seq.phase = Waiting
		l.mode = Transitioning
		l.sched.After(delay, func() {
			l.mode = Idle
			l.act(seq, 0)
		})
		return nil
	}

	l.act(seq, 0)
	return nil
}

func (l *Lifecycle) act(seq *Sequence, i int) {
	seq.phase = Acting
	if i >= len(seq.Steps) {
		if seq.Settle > 0 {
			seq.phase = Waiting
			l.sched.After(seq.Settle, func() { l.resume(seq) })
			return
		}
		l.resume(seq)
		return
	}
	st := seq.Steps[i]
	run := func() {
		if err := st.Run(); err != nil {
			seq.err = errors.WithMessagef(err, "%s: %s", seq.Name, st.Name)
			l.log.Warnw("sequence step failed", "seq", seq.Name, "step", st.Name, "err", err)
			if seq.NoStop {
				// never stopped, so the engine is as it was
				l.mode = seq.from
				l.finish(seq)
				return
			}
			l.resume(seq)
			return
		}
		l.act(seq, i+1)
	}
	if st.Delay > 0 {
		seq.phase = Waiting
		l.sched.After(st.Delay, run)
		return
	}
	run()
}

func (l *Lifecycle) resume(seq *Sequence) {
	seq.phase = Resuming
	err := l.dev.StartMeasurement()
	switch {
	case err == nil:
		l.mode = Measuring
		l.restart = false
		if seq.Hold > 0 {
			l.Hold(seq.Hold)
		}
	case seq.Initial:
		l.mode = Idle
		l.failed = true
		l.log.Errorw("start measurement failed; sensor marked failed", "err", err)
	default:
		l.mode = Idle
		l.restart = true
		l.log.Warnw("resume measurement failed; will retry on next poll", "seq", seq.Name, "err", err)
	}
	if err != nil && seq.err == nil {
		seq.err = errcode.Wrap(errcode.Transport, seq.Name+": start", err)
	}
	l.finish(seq)
}

func (l *Lifecycle) finish(seq *Sequence) {
	seq.phase = Done
	if l.active == seq {
		l.active = nil
	}
	l.log.Debugw("sequence done", "seq", seq.Name, "mode", l.mode, "err", seq.err)
	if seq.OnDone != nil {
		seq.OnDone(seq.err)
	}
}
