package mqtt

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"sen6x-go/bus"
	"sen6x-go/services/heartbeat"
	"sen6x-go/services/sensor"
	"sen6x-go/types"
)

type published struct {
	topic    string
	retained bool
	payload  string
}

type fakeClient struct {
	mu           sync.Mutex
	failConnects int
	connects     int
	pubs         []published
	subs         map[string]func(string, []byte)
	disconnected bool
}

func newFakeClient() *fakeClient { return &fakeClient{subs: map[string]func(string, []byte){}} }

func (f *fakeClient) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.failConnects > 0 {
		f.failConnects--
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, published{topic, retained, string(payload)})
	return nil
}

func (f *fakeClient) Subscribe(topic string, _ byte, cb func(string, []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = cb
	return nil
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func (f *fakeClient) find(topic string) (published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.pubs) - 1; i >= 0; i-- {
		if f.pubs[i].topic == topic {
			return f.pubs[i], true
		}
	}
	return published{}, false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var testCfg = Config{Broker: "tcp://broker:1883", ClientID: "test", Prefix: "home/air"}

func TestBridgeForwardsValues(t *testing.T) {
	b := bus.NewBus(16)
	sensorConn := b.NewConnection("sensor")
	sensorConn.Publish(sensorConn.NewMessage(sensor.ValueTopic("lab", types.PM25),
		types.Value{Channel: types.PM25, Kind: types.KindNumber, Number: 8.1}, true))
	sensorConn.Publish(sensorConn.NewMessage(sensor.StateTopic("lab"), types.DriverState{Level: "ready", Model: "SEN66"}, true))

	fc := newFakeClient()
	br := New(b.NewConnection("mqtt"), fc, testCfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- br.Run(ctx) }()

	waitFor(t, "pm2_5 forward", func() bool {
		p, ok := fc.find("home/air/lab/pm2_5")
		return ok && p.payload == "8.1" && p.retained
	})
	waitFor(t, "state forward", func() bool {
		p, ok := fc.find("home/air/lab/state")
		return ok && strings.Contains(p.payload, `"level":"ready"`)
	})
	sensorConn.Publish(sensorConn.NewMessage(sensor.ValueTopic("lab", types.FanCleaning),
		types.Value{Channel: types.FanCleaning, Kind: types.KindFlag, Flag: true}, true))
	waitFor(t, "flag forward", func() bool {
		p, ok := fc.find("home/air/lab/fan_cleaning")
		return ok && p.payload == "ON"
	})
	if p, ok := fc.find(AvailabilityTopic("home/air")); !ok || p.payload != online {
		t.Fatalf("availability %+v", p)
	}
	sensorConn.Publish(sensorConn.NewMessage(heartbeat.Topic, heartbeat.Beat{Seq: 7, Uptime: 420}, true))
	waitFor(t, "heartbeat forward", func() bool {
		p, ok := fc.find(HeartbeatTopic("home/air"))
		return ok && !p.retained && strings.Contains(p.payload, `"seq":7`)
	})

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if p, _ := fc.find(AvailabilityTopic("home/air")); p.payload != offline || !fc.disconnected {
		t.Fatal("bridge must announce offline and disconnect")
	}
}

func TestBridgeRetriesConnect(t *testing.T) {
	b := bus.NewBus(16)
	fc := newFakeClient()
	fc.failConnects = 1
	br := New(b.NewConnection("mqtt"), fc, testCfg, nil)
	watch := b.NewConnection("watch").Subscribe(bus.T("mqtt", "state"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = br.Run(ctx) }()

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for !seen["up"] {
		select {
		case m := <-watch.Channel():
			seen[m.Payload.(map[string]any)["level"].(string)] = true
		case <-deadline:
			t.Fatalf("bridge never came up: %v", seen)
		}
	}
	if !seen["degraded"] {
		t.Fatal("failed connect not reported")
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.connects != 2 {
		t.Fatalf("connects = %d", fc.connects)
	}
}

func TestSetBecomesControlRequest(t *testing.T) {
	b := bus.NewBus(16)
	fc := newFakeClient()
	br := New(b.NewConnection("mqtt"), fc, testCfg, nil)
	svc := b.NewConnection("sensor")
	reqs := svc.Subscribe(sensor.ControlTopic("lab", types.SetAltitude))

	br.onSet("home/air/lab/set/altitude", []byte("300"))

	select {
	case m := <-reqs.Channel():
		req := m.Payload.(types.ControlRequest)
		if req.Action != types.SetAltitude || req.Value != 300 {
			t.Fatalf("request %+v", req)
		}
		svc.Reply(m, types.ControlReply{Action: req.Action, OK: true}, false)
	case <-time.After(time.Second):
		t.Fatal("no control request on the bus")
	}
	waitFor(t, "result", func() bool {
		p, ok := fc.find("home/air/lab/result/altitude")
		return ok && strings.Contains(p.payload, `"ok":true`)
	})
}

func TestSetRejectsBadInput(t *testing.T) {
	b := bus.NewBus(16)
	fc := newFakeClient()
	br := New(b.NewConnection("mqtt"), fc, testCfg, nil)

	br.onSet("home/air/lab/set/warp_drive", nil)
	br.onSet("home/air/lab/set/altitude", []byte("high"))
	br.onSet("home/air/lab/other/altitude", []byte("1"))

	for _, topic := range []string{"home/air/lab/result/warp_drive", "home/air/lab/result/altitude"} {
		p, ok := fc.find(topic)
		if !ok || !strings.Contains(p.payload, `"error":"invalid_params"`) {
			t.Fatalf("%s: %+v", topic, p)
		}
	}
	if len(fc.pubs) != 2 {
		t.Fatalf("unexpected publishes %+v", fc.pubs)
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"", 0, true},
		{" 1013.25 ", 1013.25, true},
		{"ON", 1, true},
		{"true", 1, true},
		{"off", 0, true},
		{"-1.5", -1.5, true},
		{"lots", 0, false},
	}
	for _, c := range cases {
		got, err := ParseValue([]byte(c.in))
		if (err == nil) != c.ok || got != c.want {
			t.Fatalf("ParseValue(%q) = %v, %v", c.in, got, err)
		}
	}
}
