package sensor

import (
	"time"

	"go.uber.org/zap"

	"sen6x-go/drivers/sen6x"
	"sen6x-go/services/prefs"
	"sen6x-go/x/mathx"
)

const (
	baselineMinInterval = 3 * time.Hour
	baselineMaxDiff     = 50
)

// Baseline persists the VOC algorithm state so a restart skips the
// multi-hour learning period.
type Baseline struct {
	dev *sen6x.Device
	ns  *prefs.Namespace
	log *zap.SugaredLogger

	interval time.Duration
	elapsed  time.Duration
	stored   sen6x.VOCState
}

func newBaseline(dev *sen6x.Device, ns *prefs.Namespace, interval time.Duration, log *zap.SugaredLogger) *Baseline {
	return &Baseline{dev: dev, ns: ns, interval: interval, log: log}
}

// Elapsed is the time accounted since the last store.
func (b *Baseline) Elapsed() time.Duration { return b.elapsed }

// Stored is the last persisted state.
func (b *Baseline) Stored() sen6x.VOCState { return b.stored }

// Restore loads the saved state and writes it to the device when both
// halves are non-zero. Idle only.
func (b *Baseline) Restore() {
	b.elapsed = 0
	var st sen6x.VOCState
	ok, err := b.ns.Get(prefs.KeyVOCBaseline, &st)
	if err != nil {
		b.log.Warnw("VOC baseline load failed", "err", err)
		return
	}
	if !ok {
		return
	}
	b.stored = st
	b.log.Infow("loaded VOC baseline", "state0", st.State0, "state1", st.State1)
	if st.State0 == 0 || st.State1 == 0 {
		return
	}
	if err := b.dev.SetVOCAlgorithmState(st); err != nil {
		b.log.Warnw("VOC baseline restore failed", "err", coded("restore baseline", err))
		return
	}
	b.log.Infow("restored VOC algorithm state")
}

// Tick accounts one poll interval and, once the minimum interval has
// passed, stores the device state if it moved by more than the threshold.
// It reports whether a store happened.
func (b *Baseline) Tick() bool {
	b.elapsed += b.interval
	if b.elapsed <= baselineMinInterval {
		return false
	}
	st, err := b.dev.VOCAlgorithmState()
	if err != nil {
		b.log.Debugw("VOC state read failed", "err", coded("read baseline", err))
		return false
	}
	if mathx.AbsDiff(st.State0, b.stored.State0) <= baselineMaxDiff &&
		mathx.AbsDiff(st.State1, b.stored.State1) <= baselineMaxDiff {
		return false
	}
	b.elapsed = 0
	b.stored = st
	if err := b.ns.Put(prefs.KeyVOCBaseline, st); err != nil {
		b.log.Warnw("could not store VOC baseline", "err", err)
		return false
	}
	b.log.Infow("stored VOC baseline", "state0", st.State0, "state1", st.State1)
	return true
}
