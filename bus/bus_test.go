package bus

import (
	"context"
	"slices"
	"sort"
	"testing"
	"time"
)

func recv(t *testing.T, sub *Subscription) *Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("nothing on %s", sub.Topic())
		return nil
	}
}

func quiet(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case m := <-sub.Channel():
		t.Fatalf("unexpected %s = %v on %s", m.Topic, m.Payload, sub.Topic())
	case <-time.After(30 * time.Millisecond):
	}
}

// payloads reads exactly n string payloads, sorted.
func payloads(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for len(out) < n {
		s, ok := recv(t, sub).Payload.(string)
		if !ok {
			t.Fatal("non-string payload")
		}
		out = append(out, s)
	}
	quiet(t, sub)
	sort.Strings(out)
	return out
}

func TestTopicMatches(t *testing.T) {
	cases := []struct {
		topic, pattern string
		want           bool
	}{
		{"sen6x/lab/value/co2", "sen6x/lab/value/co2", true},
		{"sen6x/lab/value/co2", "sen6x/+/value/+", true},
		{"sen6x/lab/value/co2", "sen6x/#", true},
		{"sen6x/lab/value/co2", "#", true},
		{"sen6x", "sen6x/#", true},
		{"sen6x/lab/state", "sen6x/+/+", true},
		{"sen6x/lab/control/fan_clean", "sen6x/+/value/+", false},
		{"sen6x/lab/value", "sen6x/+/value/+", false},
		{"sen6x/lab/value/co2/extra", "sen6x/+/value/+", false},
		{"sen6x/lab", "sen6x/lab/+", false},
		{"config/mqtt", "sen6x/#", false},
	}
	for _, c := range cases {
		if got := Parse(c.topic).Matches(Parse(c.pattern)); got != c.want {
			t.Errorf("%s ~ %s = %v, want %v", c.topic, c.pattern, got, c.want)
		}
	}
}

func TestLiveDeliveryFollowsPatterns(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("test")

	exact := c.Subscribe(Parse("sen6x/lab/value/co2"))
	values := c.Subscribe(Parse("sen6x/+/value/+"))
	lab := c.Subscribe(Parse("sen6x/lab/#"))
	all := c.Subscribe(Parse("#"))

	c.Publish(b.NewMessage(Parse("sen6x/lab/value/co2"), "612", false))
	for _, s := range []*Subscription{exact, values, lab, all} {
		if m := recv(t, s); m.Payload != "612" {
			t.Fatalf("%s got %v", s.Topic(), m.Payload)
		}
	}

	c.Publish(b.NewMessage(Parse("sen6x/hall/state"), "ready", false))
	if m := recv(t, all); m.Payload != "ready" {
		t.Fatalf("# got %v", m.Payload)
	}
	quiet(t, exact)
	quiet(t, values)
	quiet(t, lab)
}

func TestRetainedReplayAndClear(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(Parse("sen6x/lab/state"), "ready", true))
	c.Publish(b.NewMessage(Parse("sen6x/lab/value/co2"), "612", true))
	c.Publish(b.NewMessage(Parse("sen6x/lab/value/pm2_5"), "8.1", true))
	c.Publish(b.NewMessage(Parse("sen6x/hall/value/co2"), "540", true))
	c.Publish(b.NewMessage(Parse("sen6x/hall/value/nox_index"), "1", false))

	cases := []struct {
		pattern string
		want    []string
	}{
		{"sen6x/lab/value/co2", []string{"612"}},
		{"sen6x/+/value/co2", []string{"540", "612"}},
		{"sen6x/lab/#", []string{"612", "8.1", "ready"}},
		{"sen6x/+/+", []string{"ready"}},
		{"#", []string{"540", "612", "8.1", "ready"}},
	}
	for _, tc := range cases {
		s := c.Subscribe(Parse(tc.pattern))
		if got := payloads(t, s, len(tc.want)); !slices.Equal(got, tc.want) {
			t.Fatalf("%s replayed %v, want %v", tc.pattern, got, tc.want)
		}
		c.Unsubscribe(s)
	}

	c.Publish(b.NewMessage(Parse("sen6x/lab/value/co2"), "615", true))
	c.Publish(b.NewMessage(Parse("sen6x/hall/value/co2"), nil, true))
	s := c.Subscribe(Parse("sen6x/+/value/co2"))
	if got := payloads(t, s, 1); got[0] != "615" {
		t.Fatalf("after replace and clear: %v", got)
	}
}

func TestRequestWaitGetsReply(t *testing.T) {
	b := NewBus(8)
	client := b.NewConnection("mqtt")
	server := b.NewConnection("sen6x-lab")

	ctrl := server.Subscribe(Parse("sen6x/lab/control/+"))
	go func() {
		if m, ok := <-ctrl.Channel(); ok {
			server.Reply(m, "ok:"+m.Topic[len(m.Topic)-1], false)
		}
	}()

	req := b.NewMessage(Parse("sen6x/lab/control/fan_clean"), nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rep, err := client.RequestWait(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Payload != "ok:fan_clean" {
		t.Fatalf("reply %v", rep.Payload)
	}
	if !slices.Equal(rep.Topic, req.ReplyTo) || req.ReplyTo[0] != "_reply" || req.ReplyTo[1] != "mqtt" {
		t.Fatalf("reply topic %s, ReplyTo %s", rep.Topic, req.ReplyTo)
	}
}

func TestRequestWaitTimesOut(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("mqtt")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.RequestWait(ctx, b.NewMessage(Parse("sen6x/none/control/fan_clean"), nil, false)); err != context.DeadlineExceeded {
		t.Fatalf("err = %v", err)
	}
}

func TestRequestIDsAreUnique(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("mqtt")
	r1 := b.NewMessage(Parse("sen6x/lab/control/clear_status"), nil, false)
	r2 := b.NewMessage(Parse("sen6x/lab/control/clear_status"), nil, false)
	s1, s2 := c.Request(r1), c.Request(r2)
	defer c.Unsubscribe(s1)
	defer c.Unsubscribe(s2)
	if slices.Equal(r1.ReplyTo, r2.ReplyTo) {
		t.Fatalf("both requests use %s", r1.ReplyTo)
	}

	c.Reply(r2, "second", false)
	if m := recv(t, s2); m.Payload != "second" {
		t.Fatalf("s2 got %v", m.Payload)
	}
	quiet(t, s1)
}

func TestReplyWithoutReplyToIsNoop(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")
	all := c.Subscribe(Parse("#"))
	c.Reply(b.NewMessage(Parse("sen6x/lab/control/fan_clean"), nil, false), "ok", false)
	quiet(t, all)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")
	s := c.Subscribe(Parse("sen6x/+/state"))
	c.Unsubscribe(s)
	c.Unsubscribe(s)

	c.Publish(b.NewMessage(Parse("sen6x/lab/state"), "ready", false))
	if _, ok := <-s.Channel(); ok {
		t.Fatal("channel open after unsubscribe")
	}
}

func TestDisconnectClosesAll(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")
	s1 := c.Subscribe(Parse("sen6x/+/state"))
	s2 := c.Subscribe(Parse("config/#"))
	c.Disconnect()
	for _, s := range []*Subscription{s1, s2} {
		if _, ok := <-s.Channel(); ok {
			t.Fatalf("%s still open", s.Topic())
		}
	}
}

func TestFullQueueDropsOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	s := c.Subscribe(Parse("sen6x/lab/value/co2"))
	for _, p := range []string{"600", "605", "612"} {
		c.Publish(b.NewMessage(Parse("sen6x/lab/value/co2"), p, false))
	}
	if first, second := recv(t, s).Payload, recv(t, s).Payload; first != "605" || second != "612" {
		t.Fatalf("got %v %v, want 605 612", first, second)
	}
}
