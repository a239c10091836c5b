package heartbeat

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"sen6x-go/bus"
	"sen6x-go/services/config"
)

func TestBeatsAtConfiguredInterval(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("test")
	conn.Publish(conn.NewMessage(config.Topic("heartbeat"), config.HeartbeatConfig{Interval: 10 * time.Millisecond}, true))
	sub := conn.Subscribe(Topic)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(zaptest.NewLogger(t).Sugar()).Run(ctx, b.NewConnection("heartbeat"))
		close(done)
	}()
	defer func() { cancel(); <-done }()

	var last Beat
	deadline := time.After(2 * time.Second)
	for last.Seq < 3 {
		select {
		case m := <-sub.Channel():
			beat, ok := m.Payload.(Beat)
			if !ok || !m.Retained {
				t.Fatalf("unexpected message %#v", m)
			}
			if beat.Seq != last.Seq+1 {
				t.Fatalf("seq %d after %d", beat.Seq, last.Seq)
			}
			last = beat
		case <-deadline:
			t.Fatalf("only %d beats", last.Seq)
		}
	}
	if last.Uptime <= 0 || last.TS == 0 {
		t.Fatalf("bad beat %+v", last)
	}
}

func TestStopsOnCancel(t *testing.T) {
	b := bus.NewBus(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(nil).Run(ctx, b.NewConnection("heartbeat"))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
