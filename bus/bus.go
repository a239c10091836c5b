// bus.go
package bus

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Topic is a sequence of levels. In subscriptions "+" matches one level and
// a trailing "#" matches any number of levels, including none.
type Topic []string

const (
	wildOne = "+"
	wildAll = "#"
)

// T builds a topic from parts.
func T(parts ...string) Topic { return Topic(parts) }

// Parse splits a slash-separated topic.
func Parse(s string) Topic { return Topic(strings.Split(s, "/")) }

func (t Topic) String() string { return strings.Join(t, "/") }

// Matches reports whether concrete topic t matches pattern p.
func (t Topic) Matches(p Topic) bool {
	for i, lvl := range p {
		if lvl == wildAll {
			return true
		}
		if i >= len(t) {
			return false
		}
		if lvl != wildOne && lvl != t[i] {
			return false
		}
	}
	return len(t) == len(p)
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// NewMessage builds a message.
func (b *Bus) NewMessage(t Topic, payload any, retained bool) *Message {
	return &Message{Topic: t, Payload: payload, Retained: retained}
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

func (s *Subscription) deliver(m *Message) {
	select {
	case s.ch <- m:
	default:
		// drop oldest if queue full
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- m:
		default:
		}
	}
}

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(lvl string, create bool) *node {
	if c := n.children[lvl]; c != nil || !create {
		return c
	}
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c := &node{}
	n.children[lvl] = c
	return c
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

// Bus is an in-process pub/sub with MQTT-style wildcards and retained
// messages. Subscriptions and retained values live in separate tries.
type Bus struct {
	mu       sync.RWMutex
	subs     *node
	retained *node
	qLen     int
	replySeq atomic.Uint64
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{subs: &node{}, retained: &node{}, qLen: queueLen}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.subs
	for _, lvl := range sub.topic {
		n = n.child(lvl, true)
	}
	n.subs = append(n.subs, sub)

	var matches []*Message
	collectRetained(b.retained, sub.topic, &matches)
	for _, m := range matches {
		sub.deliver(m)
	}
}

func collectRetained(n *node, pattern Topic, out *[]*Message) {
	if len(pattern) == 0 {
		if n.retained != nil {
			*out = append(*out, n.retained)
		}
		return
	}
	switch lvl := pattern[0]; lvl {
	case wildAll:
		collectAll(n, out)
	case wildOne:
		for _, c := range n.children {
			collectRetained(c, pattern[1:], out)
		}
	default:
		if c := n.children[lvl]; c != nil {
			collectRetained(c, pattern[1:], out)
		}
	}
}

func collectAll(n *node, out *[]*Message) {
	if n.retained != nil {
		*out = append(*out, n.retained)
	}
	for _, c := range n.children {
		collectAll(c, out)
	}
}

func collectSubs(n *node, t Topic, out *[]*Subscription) {
	if c := n.children[wildAll]; c != nil {
		*out = append(*out, c.subs...)
	}
	if len(t) == 0 {
		*out = append(*out, n.subs...)
		return
	}
	if c := n.children[t[0]]; c != nil {
		collectSubs(c, t[1:], out)
	}
	if c := n.children[wildOne]; c != nil {
		collectSubs(c, t[1:], out)
	}
}

// Publish delivers a message to all matching subscribers. A retained
// message replaces the stored value for its topic; a retained nil payload
// clears it.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		n := b.retained
		for _, lvl := range msg.Topic {
			n = n.child(lvl, true)
		}
		if msg.Payload == nil {
			n.retained = nil
		} else {
			n.retained = msg
		}
	}

	var subs []*Subscription
	collectSubs(b.subs, msg.Topic, &subs)
	for _, s := range subs {
		s.deliver(msg)
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.subs
	stack := []*node{n}
	for _, lvl := range sub.topic {
		n = n.child(lvl, false)
		if n == nil {
			return
		}
		stack = append(stack, n)
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	// Prune empty nodes.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		child := stack[i+1]
		if len(child.subs) != 0 || len(child.children) != 0 {
			break
		}
		delete(stack[i].children, sub.topic[i])
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	subs []*Subscription
	mu   sync.Mutex
	id   string
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

// ID returns the name given at NewConnection.
func (c *Connection) ID() string { return c.id }

// NewMessage builds a message.
func (c *Connection) NewMessage(t Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(t, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: append(Topic(nil), topic...),
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes a subscription owned by this connection.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	found := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return
	}
	c.bus.unsubscribe(sub)
	close(sub.ch)
}

// Disconnect closes all subscriptions.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

// Request subscribes to a fresh reply topic, stamps it on msg and publishes.
// The caller owns the returned subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	id := c.bus.replySeq.Add(1)
	msg.ReplyTo = T("_reply", c.id, strconv.FormatUint(id, 10))
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait is Request plus waiting for the first reply.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply answers req on its ReplyTo topic. It is a no-op without one.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if len(req.ReplyTo) == 0 {
		return
	}
	c.Publish(c.NewMessage(req.ReplyTo, payload, retained))
}
