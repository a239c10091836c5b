package sensor

import (
	"context"

	"go.uber.org/zap"

	"sen6x-go/bus"
	"sen6x-go/drivers/sen6x"
	"sen6x-go/errcode"
	"sen6x-go/services/prefs"
	"sen6x-go/services/sched"
	"sen6x-go/types"
)

const (
	topicRoot    = "sen6x"
	taskPoll     = "poll"
	levelValue   = "value"
	levelControl = "control"
	levelState   = "state"
)

// ValueTopic is where channel ch of sensor id is published, retained.
func ValueTopic(id string, ch types.Channel) bus.Topic {
	return bus.T(topicRoot, id, levelValue, string(ch))
}

// ControlTopic is where requests for action a of sensor id are accepted.
func ControlTopic(id string, a types.Action) bus.Topic {
	return bus.T(topicRoot, id, levelControl, string(a))
}

// StateTopic carries the retained types.DriverState of sensor id.
func StateTopic(id string) bus.Topic { return bus.T(topicRoot, id, levelState) }

// AllValues and AllStates match every sensor on the bus.
func AllValues() bus.Topic { return bus.T(topicRoot, "+", levelValue, "+") }
func AllStates() bus.Topic { return bus.T(topicRoot, "+", levelState) }

// SplitTopic returns the sensor id and last level of a sensor topic.
func SplitTopic(t bus.Topic) (id, leaf string, ok bool) {
	if len(t) < 3 || t[0] != topicRoot {
		return "", "", false
	}
	return t[1], t[len(t)-1], true
}

// Service connects a Driver to the bus. Driver calls all happen on the
// loop goroutine; control messages are posted there.
type Service struct {
	id   string
	conn *bus.Connection
	loop *sched.Loop
	drv  *Driver
	log  *zap.SugaredLogger
}

// NewService builds the driver for dev and binds it to b under id.
func NewService(id string, b *bus.Bus, loop *sched.Loop, dev *sen6x.Device, store prefs.Store, cfg Config, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.With("sensor", id)
	s := &Service{id: id, conn: b.NewConnection("sen6x-" + id), loop: loop, log: log}
	s.drv = New(dev, loop, store, s, cfg, log)
	s.drv.OnState(s.publishState)
	return s
}

func (s *Service) ID() string      { return s.id }
func (s *Service) Driver() *Driver { return s.drv }

// Start queues startup and registers the poll timer.
func (s *Service) Start() {
	s.loop.Post(func() {
		if err := s.drv.Initialize(); err != nil {
			s.log.Errorw("initialize failed", "err", err)
		}
	})
	s.loop.Every(s.drv.UpdateInterval(), taskPoll, func() { _ = s.drv.Poll() })
}

// Run starts the driver and serves control requests until ctx is done.
// The loop itself must be run separately.
func (s *Service) Run(ctx context.Context) error {
	sub := s.conn.Subscribe(bus.T(topicRoot, s.id, levelControl, "+"))
	defer s.conn.Disconnect()
	s.Start()
	for {
		select {
		case <-ctx.Done():
			s.loop.Cancel(taskPoll)
			return ctx.Err()
		case m, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			s.HandleControl(m)
		}
	}
}

// HandleControl posts one control message to the loop. The outcome is sent
// as a types.ControlReply to the message's reply topic.
func (s *Service) HandleControl(m *bus.Message) {
	if len(m.Topic) == 0 {
		return
	}
	a, ok := types.ParseAction(m.Topic[len(m.Topic)-1])
	if !ok {
		s.reply(m, types.Action(m.Topic[len(m.Topic)-1]), errcode.New(errcode.InvalidParams, "control", "unknown action"))
		return
	}
	var v float64
	switch p := m.Payload.(type) {
	case types.ControlRequest:
		v = p.Value
	case *types.ControlRequest:
		v = p.Value
	case float64:
		v = p
	case bool:
		v = b2f(p)
	}
	posted := s.loop.Post(func() {
		s.log.Infow("control request", "action", a, "value", v)
		if err := s.drv.RequestCalibrationAction(a, v, func(err error) { s.reply(m, a, err) }); err != nil {
			s.reply(m, a, err)
		}
	})
	if !posted {
		s.reply(m, a, errcode.New(errcode.Busy, string(a), "loop queue full"))
	}
}

func (s *Service) reply(m *bus.Message, a types.Action, err error) {
	rep := types.ControlReply{Action: a, OK: err == nil, TS: s.loop.Now().UnixMilli()}
	if err != nil {
		rep.Error = string(classify(err))
		s.log.Warnw("control request failed", "action", a, "code", rep.Error, "err", err)
	}
	s.conn.Reply(m, rep, false)
}

func (s *Service) publishState(st types.DriverState) {
	s.conn.Publish(s.conn.NewMessage(StateTopic(s.id), st, true))
}

func (s *Service) publish(v types.Value) {
	if info, ok := types.Lookup(v.Channel); ok {
		v.Unit = info.Unit
	}
	v.TS = s.loop.Now().UnixMilli()
	s.conn.Publish(s.conn.NewMessage(ValueTopic(s.id, v.Channel), v, true))
}

// Number implements Sink.
func (s *Service) Number(ch types.Channel, v float64) {
	s.publish(types.Value{Channel: ch, Kind: types.KindNumber, Number: v})
}

// Text implements Sink.
func (s *Service) Text(ch types.Channel, t string) {
	s.publish(types.Value{Channel: ch, Kind: types.KindText, Text: t})
}

// Flag implements Sink.
func (s *Service) Flag(ch types.Channel, b bool) {
	s.publish(types.Value{Channel: ch, Kind: types.KindFlag, Flag: b})
}
