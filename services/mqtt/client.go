package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

// Client is the part of an MQTT client the bridge needs.
type Client interface {
	Connect() error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, cb func(topic string, payload []byte)) error
	Disconnect()
}

var errTimeout = errors.New("mqtt: operation timed out")

type subscription struct {
	qos byte
	cb  func(string, []byte)
}

type pahoClient struct {
	client  paho.Client
	timeout time.Duration

	mu   sync.Mutex
	subs map[string]subscription
}

// NewPahoClient builds a paho-backed Client. The broker sees the bridge as
// offline (retained) if the connection drops.
func NewPahoClient(cfg Config) Client {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(AvailabilityTopic(cfg.Prefix), offline, cfg.QoS, true)

	c := &pahoClient{timeout: 10 * time.Second, subs: map[string]subscription{}}
	opts.OnConnect = func(paho.Client) { c.resubscribeAll() }
	c.client = paho.NewClient(opts)
	return c
}

func wait(t paho.Token, d time.Duration) error {
	if !t.WaitTimeout(d) {
		return errTimeout
	}
	return t.Error()
}

func (c *pahoClient) Connect() error { return wait(c.client.Connect(), c.timeout) }

func (c *pahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return wait(c.client.Publish(topic, qos, retained, payload), c.timeout)
}

func (c *pahoClient) Subscribe(topic string, qos byte, cb func(string, []byte)) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, cb: cb}
	c.mu.Unlock()
	return wait(c.client.Subscribe(topic, qos, handler(cb)), c.timeout)
}

func (c *pahoClient) Disconnect() { c.client.Disconnect(250) }

// resubscribeAll restores subscriptions after an automatic reconnect.
func (c *pahoClient) resubscribeAll() {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for k, v := range c.subs {
		subs[k] = v
	}
	c.mu.Unlock()
	for topic, s := range subs {
		_ = c.client.Subscribe(topic, s.qos, handler(s.cb)).WaitTimeout(c.timeout)
	}
}

func handler(cb func(string, []byte)) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) { cb(m.Topic(), m.Payload()) }
}
