package sensor

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"sen6x-go/bus"
	"sen6x-go/drivers/sen6x"
	"sen6x-go/drivers/sen6x/sen6xsim"
	"sen6x-go/errcode"
	"sen6x-go/services/prefs"
	"sen6x-go/services/sched"
	"sen6x-go/types"
	"sen6x-go/x/timex"
)

func newTestService(t *testing.T) (*Service, *sen6xsim.Sim, *sched.Loop, *bus.Bus) {
	t.Helper()
	sim := sen6xsim.New(sen6x.SEN66)
	dev := sen6x.New(sim)
	dev.Configure(sen6x.Config{Sleep: func(time.Duration) {}})
	loop := sched.New(timex.NewManual(time.Unix(1_700_000_000, 0)))
	b := bus.NewBus(64)
	svc := NewService("lab", b, loop, dev, prefs.NewMemStore(), Config{}, zaptest.NewLogger(t).Sugar())
	return svc, sim, loop, b
}

func retained(t *testing.T, c *bus.Connection, topic bus.Topic) *bus.Message {
	t.Helper()
	sub := c.Subscribe(topic)
	defer c.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		return m
	default:
		t.Fatalf("no retained message on %s", topic)
		return nil
	}
}

func TestServicePublishesRetained(t *testing.T) {
	svc, _, loop, b := newTestService(t)
	svc.Start()
	loop.Advance(sen6x.StopSettle)

	c := b.NewConnection("test")
	st := retained(t, c, StateTopic("lab")).Payload.(types.DriverState)
	if st.Level != "ready" || st.Model != "SEN66" {
		t.Fatalf("state %+v", st)
	}
	name := retained(t, c, ValueTopic("lab", types.ProductName)).Payload.(types.Value)
	if name.Kind != types.KindText || name.Text != "SEN66" {
		t.Fatalf("product name %+v", name)
	}

	loop.Advance(svc.Driver().UpdateInterval())
	pm := retained(t, c, ValueTopic("lab", types.PM25)).Payload.(types.Value)
	if pm.Number != 8.1 || pm.Unit != "µg/m³" || pm.TS == 0 {
		t.Fatalf("pm2.5 %+v", pm)
	}
}

func TestServiceControlReplies(t *testing.T) {
	svc, sim, loop, b := newTestService(t)
	svc.Start()
	loop.Advance(sen6x.StopSettle)
	c := b.NewConnection("ui")

	cases := []struct {
		name    string
		action  types.Action
		payload any
		advance time.Duration
		code    string
	}{
		{"altitude", types.SetAltitude, types.ControlRequest{Action: types.SetAltitude, Value: 300}, sen6x.StopSettle, ""},
		{"bare number", types.SetTemperatureOffset, 1.5, 0, ""},
		{"switch", types.SetAutoCleaning, true, 0, ""},
		{"out of range", types.SetAltitude, 5000.0, 0, string(errcode.InvalidParams)},
		{"unknown", types.Action("warp_drive"), nil, 0, string(errcode.InvalidParams)},
	}
	for _, tc := range cases {
		msg := c.NewMessage(ControlTopic("lab", tc.action), tc.payload, false)
		sub := c.Request(msg)
		svc.HandleControl(msg)
		loop.Advance(tc.advance)

		select {
		case m := <-sub.Channel():
			rep := m.Payload.(types.ControlReply)
			if rep.OK != (tc.code == "") || rep.Error != tc.code {
				t.Fatalf("%s: reply %+v", tc.name, rep)
			}
		default:
			t.Fatalf("%s: no reply", tc.name)
		}
		c.Unsubscribe(sub)
	}
	if sim.Altitude != 300 || !svc.Driver().AutoCleaning().Enabled() {
		t.Fatalf("controls not applied: altitude=%d", sim.Altitude)
	}
}

func TestServiceBusyReply(t *testing.T) {
	svc, _, loop, b := newTestService(t)
	svc.Start()
	loop.Advance(sen6x.StopSettle)
	c := b.NewConnection("ui")

	clean := c.NewMessage(ControlTopic("lab", types.ActionFanClean), nil, false)
	first := c.Request(clean)
	svc.HandleControl(clean)
	loop.RunDue()

	heat := c.NewMessage(ControlTopic("lab", types.ActionHeater), nil, false)
	second := c.Request(heat)
	svc.HandleControl(heat)
	loop.RunDue()

	select {
	case m := <-second.Channel():
		if rep := m.Payload.(types.ControlReply); rep.Error != string(errcode.Busy) {
			t.Fatalf("reply %+v", rep)
		}
	default:
		t.Fatal("no busy reply")
	}
	select {
	case <-first.Channel():
		t.Fatal("fan clean replied before finishing")
	default:
	}
	loop.Advance(time.Minute)
	select {
	case m := <-first.Channel():
		if rep := m.Payload.(types.ControlReply); !rep.OK {
			t.Fatalf("fan clean reply %+v", rep)
		}
	default:
		t.Fatal("fan clean never replied")
	}
}
