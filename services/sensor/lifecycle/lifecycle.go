// Package lifecycle tracks the SEN6x operating mode and runs the timed
// stop/act/resume sequences that Idle-only operations require.
package lifecycle

import (
	"time"

	"go.uber.org/zap"

	"sen6x-go/drivers/sen6x"
	"sen6x-go/errcode"
	"sen6x-go/services/sched"
)

// Mode is the device operating mode as last commanded.
type Mode uint8

const (
	Idle Mode = iota
	Measuring
	Transitioning
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Measuring:
		return "measuring"
	case Transitioning:
		return "transitioning"
	}
	return "unknown"
}

// Op classifies a register access for mode gating.
type Op uint8

const (
	OpRead Op = iota
	OpAmbientPressure
	OpTemperatureOffset
	OpAltitude
	OpCO2ASC
	// OpConfigure covers the startup tuning, compensation slot and VOC
	// state writes.
	OpConfigure
	OpForcedRecalibration
	OpCO2FactoryReset
	OpHeater
	OpFanCleaning
	OpDeviceReset
)

// IdleOnly reports whether o needs the measurement engine stopped.
func (o Op) IdleOnly() bool {
	switch o {
	case OpRead, OpAmbientPressure, OpTemperatureOffset, OpDeviceReset:
		return false
	}
	return true
}

// Allowed reports whether o may touch the bus in mode m.
func Allowed(m Mode, o Op) bool {
	switch m {
	case Idle:
		return true
	case Measuring:
		return !o.IdleOnly()
	}
	return false
}

// Commander starts and stops measurement.
type Commander interface {
	StartMeasurement() error
	StopMeasurement() error
}

// Lifecycle owns the mode and at most one running Sequence. It must only
// be used from the scheduler's goroutine.
type Lifecycle struct {
	sched sched.Scheduler
	dev   Commander
	log   *zap.SugaredLogger

	mode     Mode
	active   *Sequence
	restart  bool
	failed   bool
	holdTill time.Time
}

// New returns a Lifecycle in Idle.
func New(s sched.Scheduler, dev Commander, log *zap.SugaredLogger) *Lifecycle {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Lifecycle{sched: s, dev: dev, log: log}
}

func (l *Lifecycle) Mode() Mode { return l.mode }

// Busy reports whether a sequence is running or the device is settling.
func (l *Lifecycle) Busy() bool { return l.active != nil || l.mode == Transitioning }

// Active returns the running sequence, or nil.
func (l *Lifecycle) Active() *Sequence { return l.active }

// Failed reports whether the initial start failed. Nothing recovers it.
func (l *Lifecycle) Failed() bool { return l.failed }

// RestartPending reports whether a runtime start failed and will be retried.
func (l *Lifecycle) RestartPending() bool { return l.restart }

// Holding reports whether polling is suppressed by a post-sequence hold.
func (l *Lifecycle) Holding() bool { return l.sched.Now().Before(l.holdTill) }

// Check returns nil if o may run now.
func (l *Lifecycle) Check(o Op) error {
	if l.failed {
		return errcode.New(errcode.Failed, "lifecycle", "sensor failed to start")
	}
	if l.Busy() {
		return errcode.New(errcode.Busy, "lifecycle", "sequence "+l.activeName()+" running")
	}
	if !Allowed(l.mode, o) {
		return errcode.New(errcode.WrongMode, "lifecycle", "not allowed while "+l.mode.String())
	}
	return nil
}

// Do runs fn if o is allowed now, without any mode change.
func (l *Lifecycle) Do(o Op, fn func() error) error {
	if err := l.Check(o); err != nil {
		return err
	}
	return fn()
}

// Start issues start measurement from Idle. On failure the mode stays Idle
// and a restart is flagged.
func (l *Lifecycle) Start() error {
	if l.Busy() {
		return errcode.New(errcode.Busy, "start", "sequence "+l.activeName()+" running")
	}
	if l.mode == Measuring {
		return nil
	}
	if err := l.dev.StartMeasurement(); err != nil {
		l.restart = true
		return errcode.Wrap(errcode.Transport, "start", err)
	}
	l.mode = Measuring
	l.restart = false
	return nil
}

// ReadyToPoll retries a pending restart and reports whether a measurement
// read may be attempted this cycle.
func (l *Lifecycle) ReadyToPoll() bool {
	if l.failed || l.Busy() || l.Holding() {
		return false
	}
	if l.restart && l.mode == Idle {
		if err := l.Start(); err != nil {
			l.log.Warnw("restart measurement failed", "err", err)
			return false
		}
		l.log.Infow("measurement restarted")
	}
	return l.mode == Measuring
}

// Hold suppresses polling for d from now.
func (l *Lifecycle) Hold(d time.Duration) {
	if t := l.sched.Now().Add(d); t.After(l.holdTill) {
		l.holdTill = t
	}
}

func (l *Lifecycle) activeName() string {
	if l.active == nil {
		return ""
	}
	return l.active.Name
}

// settleDelay is the default stop-to-idle wait.
const settleDelay = sen6x.StopSettle
