// Package metrics exports sensor values from the bus as Prometheus gauges.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sen6x-go/bus"
	"sen6x-go/services/sensor"
	"sen6x-go/types"
)

const namespace = "sen6x"

// Exporter mirrors retained sensor values into gauges. Numbers and flags get
// one gauge per channel; text channels share an info gauge.
type Exporter struct {
	conn *bus.Connection
	log  *zap.SugaredLogger

	gauges     map[types.Channel]*prometheus.GaugeVec
	info       *prometheus.GaugeVec
	up         *prometheus.GaugeVec
	lastUpdate *prometheus.GaugeVec

	texts map[[2]string]string
}

// New builds an exporter reading from conn.
func New(conn *bus.Connection, log *zap.SugaredLogger) *Exporter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	e := &Exporter{
		conn:   conn,
		log:    log,
		gauges: map[types.Channel]*prometheus.GaugeVec{},
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Text channels of the sensor (value label), always 1",
		}, []string{"id", "channel", "value"}),
		up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 when the sensor driver is ready, 0 when starting or failed",
		}, []string{"id"}),
		lastUpdate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_update_timestamp_seconds",
			Help:      "Time of the last published value (epoch seconds)",
		}, []string{"id"}),
		texts: map[[2]string]string{},
	}
	for _, c := range types.Channels {
		if c.Kind == types.KindText {
			continue
		}
		help := "SEN6x " + string(c.Channel)
		if c.Unit != "" {
			help += " (" + c.Unit + ")"
		}
		e.gauges[c.Channel] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      string(c.Channel),
			Help:      help,
		}, []string{"id"})
	}
	return e
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range e.gauges {
		g.Describe(ch)
	}
	e.info.Describe(ch)
	e.up.Describe(ch)
	e.lastUpdate.Describe(ch)
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	for _, g := range e.gauges {
		g.Collect(ch)
	}
	e.info.Collect(ch)
	e.up.Collect(ch)
	e.lastUpdate.Collect(ch)
}

// Run follows sensor values and states until ctx is done.
func (e *Exporter) Run(ctx context.Context) {
	values := e.conn.Subscribe(sensor.AllValues())
	states := e.conn.Subscribe(sensor.AllStates())
	defer e.conn.Unsubscribe(values)
	defer e.conn.Unsubscribe(states)
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-values.Channel():
			if !ok {
				return
			}
			e.Apply(m)
		case m, ok := <-states.Channel():
			if !ok {
				return
			}
			e.Apply(m)
		}
	}
}

// Apply updates gauges from one bus message. Unrelated messages are ignored.
func (e *Exporter) Apply(m *bus.Message) {
	id, _, ok := sensor.SplitTopic(m.Topic)
	if !ok {
		return
	}
	switch p := m.Payload.(type) {
	case types.Value:
		e.setValue(id, p)
	case types.DriverState:
		up := 0.0
		if p.Level == "ready" {
			up = 1
		}
		e.up.WithLabelValues(id).Set(up)
	}
}

func (e *Exporter) setValue(id string, v types.Value) {
	if v.TS > 0 {
		e.lastUpdate.WithLabelValues(id).Set(float64(v.TS) / 1000)
	}
	if v.Kind == types.KindText {
		key := [2]string{id, string(v.Channel)}
		if old, ok := e.texts[key]; ok {
			if old == v.Text {
				return
			}
			e.info.DeleteLabelValues(id, string(v.Channel), old)
		}
		e.texts[key] = v.Text
		e.info.WithLabelValues(id, string(v.Channel), v.Text).Set(1)
		return
	}
	g, ok := e.gauges[v.Channel]
	if !ok {
		e.log.Debugw("no gauge for channel", "channel", v.Channel)
		return
	}
	f, _ := v.Float()
	g.WithLabelValues(id).Set(f)
}

// Serve exposes reg on addr at path until ctx is done.
func Serve(ctx context.Context, addr, path string, reg *prometheus.Registry, log *zap.SugaredLogger) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Infow("metrics listening", "addr", addr, "path", path)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "metrics server")
	}
}
