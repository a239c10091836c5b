package heartbeat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sen6x-go/bus"
	"sen6x-go/services/config"
)

// Topic carries the latest Beat, retained.
var Topic = bus.T("daemon", "heartbeat")

// Beat is the heartbeat payload.
type Beat struct {
	Seq    uint64  `json:"seq"`
	Uptime float64 `json:"uptime_s"`
	TS     int64   `json:"ts_ms"`
}

type Service struct {
	log     *zap.SugaredLogger
	started time.Time
	seq     uint64
}

func New(log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{log: log}
}

// Run beats until ctx is done. The interval follows config/heartbeat; a
// zero interval pauses beating.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(config.Topic("heartbeat"))
	defer conn.Unsubscribe(cfgSub)

	s.started = time.Now()
	interval := config.DefaultHeartbeatInterval
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debugw("heartbeat stopping", "beats", s.seq)
			return
		case t := <-tick.C:
			s.beat(conn, t)
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			hc, ok := msg.Payload.(config.HeartbeatConfig)
			if !ok || hc.Interval == interval {
				continue
			}
			interval = hc.Interval
			if interval <= 0 {
				tick.Stop()
				s.log.Infow("heartbeat paused")
				continue
			}
			tick.Reset(interval)
			s.log.Infow("heartbeat interval set", "interval", interval)
		}
	}
}

func (s *Service) beat(conn *bus.Connection, t time.Time) {
	s.seq++
	b := Beat{Seq: s.seq, Uptime: t.Sub(s.started).Seconds(), TS: t.UnixMilli()}
	conn.Publish(conn.NewMessage(Topic, b, true))
	s.log.Debugw("heartbeat", "seq", b.Seq, "uptime_s", b.Uptime)
}
