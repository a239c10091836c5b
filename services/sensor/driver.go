package sensor

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"sen6x-go/drivers/sen6x"
	"sen6x-go/errcode"
	"sen6x-go/services/prefs"
	"sen6x-go/services/sched"
	"sen6x-go/services/sensor/lifecycle"
	"sen6x-go/types"
)

// Config holds driver settings. Zero values take defaults.
type Config struct {
	UpdateInterval time.Duration
	// StoreBaseline persists the VOC algorithm state.
	StoreBaseline bool
	// Channels enabled for publishing; empty means all.
	Channels []types.Channel

	VOCTuning               *sen6x.GasTuning
	NOxTuning               *sen6x.GasTuning
	RHTAcceleration         *sen6x.RHTAcceleration
	TemperatureCompensation *sen6x.TemperatureOffset

	AutoCleanInterval time.Duration
}

const (
	DefaultUpdateInterval    = 10 * time.Second
	DefaultAutoCleanInterval = 168 * time.Hour

	compensationSlot = 1
)

func (c *Config) applyDefaults() {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = DefaultUpdateInterval
	}
	if c.AutoCleanInterval <= 0 {
		c.AutoCleanInterval = DefaultAutoCleanInterval
	}
}

// StateFunc receives driver state changes.
type StateFunc func(types.DriverState)

// Driver runs one SEN6x on a scheduler. Every method must be called from the
// scheduler goroutine.
type Driver struct {
	dev   *sen6x.Device
	sched sched.Scheduler
	store prefs.Store
	out   *Outputs
	life  *lifecycle.Lifecycle
	log   *zap.SugaredLogger
	cfg   Config

	onState StateFunc

	profile  sen6x.Profile
	detected bool
	ready    bool
	hash     uint32
	identity identity

	ns       *prefs.Namespace
	cal      *Calibration
	baseline *Baseline
	pipe     *Pipeline
	clean    *AutoClean

	fanCleaning  bool
	lastPressure float64
}

type identity struct {
	name     string
	serial   string
	firmware string
}

// New builds a Driver. Nothing touches the bus until Initialize.
func New(dev *sen6x.Device, s sched.Scheduler, store prefs.Store, sink Sink, cfg Config, log *zap.SugaredLogger) *Driver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cfg.applyDefaults()
	d := &Driver{
		dev:          dev,
		sched:        s,
		store:        store,
		out:          NewOutputs(sink, cfg.Channels),
		log:          log,
		cfg:          cfg,
		profile:      sen6x.ProfileOf(sen6x.DefaultModel),
		lastPressure: math.NaN(),
	}
	d.life = lifecycle.New(s, dev, log)
	return d
}

// OnState registers fn for state changes.
func (d *Driver) OnState(fn StateFunc) { d.onState = fn }

func (d *Driver) Profile() sen6x.Profile          { return d.profile }
func (d *Driver) Ready() bool                     { return d.ready }
func (d *Driver) Failed() bool                    { return d.life.Failed() }
func (d *Driver) Lifecycle() *lifecycle.Lifecycle { return d.life }
func (d *Driver) Calibration() *Calibration       { return d.cal }
func (d *Driver) Baseline() *Baseline             { return d.baseline }
func (d *Driver) Namespace() uint32               { return d.hash }
func (d *Driver) FanCleaning() bool               { return d.fanCleaning }
func (d *Driver) AutoCleaning() *AutoClean        { return d.clean }
func (d *Driver) UpdateInterval() time.Duration   { return d.cfg.UpdateInterval }

func (d *Driver) state(level, status string) {
	if d.onState == nil {
		return
	}
	st := types.DriverState{Level: level, Status: status, TS: d.sched.Now().UnixMilli()}
	if d.detected {
		st.Model = d.profile.Name
	}
	d.onState(st)
}

// Initialize starts the staged startup: stop and settle, detect the model,
// derive the preference namespace, apply Idle-only configuration, start
// measuring, then restore the values that may be written while measuring.
// Only a failed start is fatal.
func (d *Driver) Initialize() error {
	d.state("starting", "")
	return d.life.Run(&lifecycle.Sequence{
		Name:      "startup",
		Op:        lifecycle.OpConfigure,
		ForceStop: true,
		Initial:   true,
		Steps: []lifecycle.Step{
			{Name: "detect", Run: d.detect},
			{Name: "serial", Run: d.readSerial},
			{Name: "configure", Run: d.configureIdle},
		},
		OnDone: d.started,
	})
}

func (d *Driver) detect() error {
	name, err := d.dev.ProductName()
	if err != nil {
		d.log.Warnw("product name read failed; assuming default model", "model", sen6x.DefaultModel, "err", coded("detect", err))
	}
	p, ok := sen6x.Detect(name)
	if !ok && err == nil {
		d.log.Warnw("unknown product name; assuming default model", "name", name, "model", p.Name)
	}
	d.profile = p
	d.detected = true
	d.identity.name = name
	for _, ch := range d.out.Restrict(p.Caps) {
		d.log.Debugw("channel disabled for model", "channel", ch, "model", p.Name)
	}
	d.log.Infow("detected model", "model", p.Name, "product", name)
	return nil
}

func (d *Driver) readSerial() error {
	serial, err := d.dev.SerialNumber()
	if err != nil {
		d.hash = prefs.FallbackHash
		d.log.Warnw("serial read failed; using fallback preference namespace", "err", coded("serial", err))
	} else {
		d.hash = prefs.HashSerial(serial)
		d.identity.serial = sen6x.CString(serial)
	}
	d.log.Infow("preference namespace", "hash", fmt.Sprintf("%08x", d.hash))

	d.ns = prefs.NewNamespace(d.store, d.hash)
	d.cal = newCalibration(d.dev, d.ns, d.out, d.profile.Caps, d.log)
	d.baseline = newBaseline(d.dev, d.ns, d.cfg.UpdateInterval, d.log)
	d.pipe = &Pipeline{dev: d.dev, profile: d.profile, out: d.out, log: d.log}
	d.clean = newAutoClean(d.sched, d.cfg.AutoCleanInterval, d.fanClean, d.log)
	return nil
}

// configureIdle applies everything that needs Idle. Failures are logged.
func (d *Driver) configureIdle() error {
	caps := d.profile.Caps
	if t := d.cfg.VOCTuning; t != nil && caps.VOC {
		d.logErr("VOC tuning", d.dev.SetVOCTuning(*t))
	}
	if t := d.cfg.NOxTuning; t != nil && caps.NOx {
		d.logErr("NOx tuning", d.dev.SetNOxTuning(*t))
	}
	if a := d.cfg.RHTAcceleration; a != nil {
		d.logErr("RHT acceleration", d.dev.SetRHTAcceleration(*a))
	}
	if t := d.cfg.TemperatureCompensation; t != nil {
		tc := *t
		tc.Slot = compensationSlot
		d.logErr("temperature compensation", d.dev.SetTemperatureOffset(tc))
	}
	if d.cfg.StoreBaseline && caps.VOC {
		d.baseline.Restore()
	}
	d.cal.restore(paramAltitude)
	d.cal.restore(paramCO2ASC)
	d.cal.restore(paramAutoCleaning)
	d.clean.Set(d.cal.Value(paramAutoCleaning) == 1)
	return nil
}

func (d *Driver) started(err error) {
	if d.life.Failed() {
		d.log.Errorw("sensor failed", "err", err)
		d.state("failed", string(classify(err)))
		return
	}
	d.publishIdentity()
	// the feed cache only trusts a value we wrote ourselves
	if d.cal.restore(paramPressure) {
		d.lastPressure = d.cal.Value(paramPressure)
	}
	d.cal.restore(paramTemperatureOffset)
	d.cal.restore(paramOutdoorCO2)
	d.out.Flag(types.FanCleaning, false)
	d.ready = true
	d.log.Infow("sensor ready", "model", d.profile.Name)
	d.state("ready", "")
}

func (d *Driver) publishIdentity() {
	if d.identity.name != "" {
		d.out.Text(types.ProductName, d.identity.name)
	}
	if d.identity.serial != "" {
		d.out.Text(types.SerialNumber, d.identity.serial)
	}
	if major, minor, err := d.dev.FirmwareVersion(); err == nil {
		d.identity.firmware = fmt.Sprintf("%d.%d", major, minor)
		d.out.Text(types.FirmwareVersion, d.identity.firmware)
	} else {
		d.log.Warnw("firmware version read failed", "err", coded("firmware", err))
	}
}

var statusChannels = []types.Channel{
	types.StatusHex, types.FanError, types.FanWarning, types.RHTError,
	types.GasError, types.PMError, types.LaserError,
}

// Poll runs one update cycle. It returns the error that ended the cycle,
// if any; callers log it and carry on.
func (d *Driver) Poll() error {
	if !d.ready || d.fanCleaning {
		return nil
	}
	if !d.life.ReadyToPoll() {
		return nil
	}
	if d.cfg.StoreBaseline && d.profile.Caps.VOC {
		d.baseline.Tick()
	}
	if d.out.AnyEnabled(statusChannels...) {
		st, err := d.dev.Status()
		if err != nil {
			d.log.Warnw("status read failed", "err", coded("status", err))
		} else {
			d.publishStatus(st)
		}
	}
	_, err := d.pipe.Run()
	if err != nil {
		d.log.Warnw("measurement cycle failed", "code", classify(err), "err", err)
	}
	return err
}

func (d *Driver) publishStatus(st sen6x.Status) {
	d.out.Text(types.StatusHex, st.String())
	d.out.Flag(types.FanError, st.FanError())
	d.out.Flag(types.FanWarning, st.FanWarning())
	d.out.Flag(types.RHTError, st.RHTError())
	d.out.Flag(types.GasError, st.GasError())
	d.out.Flag(types.PMError, st.PMError())
	d.out.Flag(types.LaserError, st.LaserError())
}

func (d *Driver) setFanCleaning(on bool) {
	d.fanCleaning = on
	d.out.Flag(types.FanCleaning, on)
}

func (d *Driver) logErr(what string, err error) {
	if err != nil {
		d.log.Warnw(what+" failed", "err", coded(what, err))
	}
}

// notReady rejects actions before startup completes.
func (d *Driver) notReady(op string) error {
	if d.life.Failed() {
		return errcode.New(errcode.Failed, op, "sensor failed to start")
	}
	if !d.ready {
		return errcode.New(errcode.NotReady, op, "startup in progress")
	}
	return nil
}
