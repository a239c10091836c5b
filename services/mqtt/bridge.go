// Package mqtt bridges sensor values and controls between the bus and an
// MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"sen6x-go/bus"
	"sen6x-go/services/heartbeat"
	"sen6x-go/services/sensor"
	"sen6x-go/types"
)

const (
	online  = "online"
	offline = "offline"

	replyTimeout = 30 * time.Second
)

// Config describes the broker link.
type Config struct {
	Broker   string
	ClientID string
	Prefix   string
	Username string
	Password string
	QoS      byte
}

// HeartbeatTopic carries the daemon heartbeat as JSON.
func HeartbeatTopic(prefix string) string { return prefix + "/bridge/heartbeat" }

// AvailabilityTopic carries the retained online/offline marker.
func AvailabilityTopic(prefix string) string { return prefix + "/bridge/status" }

// Bridge forwards retained sensor values to <prefix>/<id>/<channel> and
// turns <prefix>/<id>/set/<action> messages into bus control requests.
// Results are published to <prefix>/<id>/result/<action>.
type Bridge struct {
	conn   *bus.Connection
	client Client
	cfg    Config
	log    *zap.SugaredLogger

	stateTopic bus.Topic
}

func New(conn *bus.Connection, client Client, cfg Config, log *zap.SugaredLogger) *Bridge {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Bridge{conn: conn, client: client, cfg: cfg, log: log, stateTopic: bus.T("mqtt", "state")}
}

// Run connects with backoff, then forwards until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	b.publishState("idle", "connecting", nil)
	backoff := backoffSeq(250*time.Millisecond, 30*time.Second)
	for {
		err := b.client.Connect()
		if err == nil {
			break
		}
		delay := backoff()
		b.publishState("degraded", "connect_failed_retrying", err)
		b.log.Warnw("mqtt connect failed", "broker", b.cfg.Broker, "retry_in", delay, "err", err)
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
	}
	defer b.client.Disconnect()

	if err := b.client.Subscribe(b.cfg.Prefix+"/+/set/+", b.cfg.QoS, b.onSet); err != nil {
		b.publishState("error", "subscribe_failed", err)
		return err
	}
	b.mqttPublish(AvailabilityTopic(b.cfg.Prefix), true, []byte(online))

	values := b.conn.Subscribe(sensor.AllValues())
	states := b.conn.Subscribe(sensor.AllStates())
	beats := b.conn.Subscribe(heartbeat.Topic)
	defer b.conn.Unsubscribe(values)
	defer b.conn.Unsubscribe(states)
	defer b.conn.Unsubscribe(beats)

	b.publishState("up", "connected", nil)
	b.log.Infow("mqtt bridge up", "broker", b.cfg.Broker, "prefix", b.cfg.Prefix)
	for {
		select {
		case <-ctx.Done():
			b.mqttPublish(AvailabilityTopic(b.cfg.Prefix), true, []byte(offline))
			b.publishState("idle", "stopped", nil)
			return nil
		case m, ok := <-values.Channel():
			if !ok {
				return nil
			}
			b.forward(m)
		case m, ok := <-states.Channel():
			if !ok {
				return nil
			}
			b.forward(m)
		case m, ok := <-beats.Channel():
			if !ok {
				return nil
			}
			if raw, err := json.Marshal(m.Payload); err == nil {
				b.mqttPublish(HeartbeatTopic(b.cfg.Prefix), false, raw)
			}
		}
	}
}

// forward publishes one bus message to the broker.
func (b *Bridge) forward(m *bus.Message) {
	id, leaf, ok := sensor.SplitTopic(m.Topic)
	if !ok {
		return
	}
	switch p := m.Payload.(type) {
	case types.Value:
		b.mqttPublish(b.cfg.Prefix+"/"+id+"/"+leaf, m.Retained, []byte(p.String()))
	case types.DriverState:
		raw, err := json.Marshal(p)
		if err != nil {
			return
		}
		b.mqttPublish(b.cfg.Prefix+"/"+id+"/state", true, raw)
	}
}

func (b *Bridge) mqttPublish(topic string, retained bool, payload []byte) {
	if err := b.client.Publish(topic, b.cfg.QoS, retained, payload); err != nil {
		b.log.Warnw("mqtt publish failed", "topic", topic, "err", err)
	}
}

// onSet runs on the client's goroutine.
func (b *Bridge) onSet(topic string, payload []byte) {
	parts := strings.Split(strings.TrimPrefix(topic, b.cfg.Prefix+"/"), "/")
	if len(parts) != 3 || parts[1] != "set" {
		return
	}
	id, name := parts[0], parts[2]
	a, ok := types.ParseAction(name)
	if !ok {
		b.log.Warnw("unknown action", "topic", topic)
		b.publishResult(id, name, types.ControlReply{Action: types.Action(name), Error: "invalid_params"})
		return
	}
	v, err := ParseValue(payload)
	if err != nil {
		b.log.Warnw("bad control payload", "topic", topic, "payload", string(payload))
		b.publishResult(id, name, types.ControlReply{Action: a, Error: "invalid_params"})
		return
	}
	req := b.conn.NewMessage(sensor.ControlTopic(id, a), types.ControlRequest{Action: a, Value: v}, false)
	sub := b.conn.Request(req)
	go func() {
		defer b.conn.Unsubscribe(sub)
		timer := time.NewTimer(replyTimeout)
		defer timer.Stop()
		select {
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			if rep, ok := m.Payload.(types.ControlReply); ok {
				b.publishResult(id, name, rep)
			}
		case <-timer.C:
			b.log.Warnw("control request timed out", "sensor", id, "action", a)
		}
	}()
}

func (b *Bridge) publishResult(id, action string, rep types.ControlReply) {
	raw, err := json.Marshal(rep)
	if err != nil {
		return
	}
	b.mqttPublish(b.cfg.Prefix+"/"+id+"/result/"+action, false, raw)
}

// ParseValue reads a control payload: empty for presses, true/false or
// ON/OFF for switches, otherwise a number.
func ParseValue(p []byte) (float64, error) {
	s := strings.TrimSpace(string(p))
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "true", "on":
		return 1, nil
	case "false", "off":
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func (b *Bridge) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,
		"status": status,
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	b.conn.Publish(b.conn.NewMessage(b.stateTopic, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
