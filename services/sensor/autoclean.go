package sensor

import (
	"time"

	"go.uber.org/zap"

	"sen6x-go/services/sched"
)

// Scheduler task names.
const (
	taskAutoCleanFirst = "auto_clean_first"
	taskAutoClean      = "auto_clean"
)

// AutoClean runs fan cleaning on a fixed interval while enabled. The first
// cleaning happens one interval after enabling.
type AutoClean struct {
	sched    sched.Scheduler
	interval time.Duration
	run      func(done func(error)) error
	log      *zap.SugaredLogger
	enabled  bool
	runs     int
}

func newAutoClean(s sched.Scheduler, interval time.Duration, run func(func(error)) error, log *zap.SugaredLogger) *AutoClean {
	return &AutoClean{sched: s, interval: interval, run: run, log: log}
}

func (a *AutoClean) Enabled() bool { return a.enabled }

// Runs counts triggered cleanings, including skipped ones.
func (a *AutoClean) Runs() int { return a.runs }

// Set arms or cancels the schedule.
func (a *AutoClean) Set(on bool) {
	if on == a.enabled {
		return
	}
	a.enabled = on
	if !on {
		a.sched.Cancel(taskAutoCleanFirst)
		a.sched.Cancel(taskAutoClean)
		a.log.Infow("auto cleaning disabled")
		return
	}
	a.log.Infow("auto cleaning enabled", "interval", a.interval)
	a.sched.AfterNamed(taskAutoCleanFirst, a.interval, func() {
		a.trigger()
		a.sched.Every(a.interval, taskAutoClean, a.trigger)
	})
}

func (a *AutoClean) trigger() {
	a.runs++
	err := a.run(func(err error) {
		if err != nil {
			a.log.Warnw("auto cleaning failed", "err", err)
			return
		}
		a.log.Infow("auto cleaning done")
	})
	if err != nil {
		a.log.Warnw("auto cleaning skipped", "err", err)
	}
}
