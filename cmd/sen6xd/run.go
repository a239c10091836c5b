package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sen6x-go/bus"
	"sen6x-go/services/config"
	"sen6x-go/services/heartbeat"
	"sen6x-go/services/metrics"
	"sen6x-go/services/mqtt"
	"sen6x-go/services/prefs"
	"sen6x-go/services/sched"
	"sen6x-go/services/sensor"
	"sen6x-go/types"
	"sen6x-go/x/timex"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sensor, metrics exporter and MQTT bridge",
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	zl, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	i2c, closeBus, err := openBus(cfg, log)
	if err != nil {
		return err
	}
	defer closeBus()

	store, mirror, err := openStore(cfg.Prefs, log)
	if err != nil {
		return err
	}

	b := bus.NewBus(64)
	loop := sched.New(timex.System{})
	svc := sensor.NewService(cfg.ID, b, loop, newDevice(cfg, i2c), store, cfg.SensorConfig(), log)
	config.Publish(b.NewConnection("config"), cfg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { loop.Run(ctx); return nil })
	g.Go(func() error { return ignoreCanceled(svc.Run(ctx)) })
	g.Go(func() error { return watchState(ctx, b.NewConnection("watch"), cfg.ID) })
	g.Go(func() error { heartbeat.New(log.Named("heartbeat")).Run(ctx, b.NewConnection("heartbeat")); return nil })

	if mirror != nil {
		g.Go(func() error { mirror.Run(ctx); return nil })
	}

	if cfg.Metrics.Enabled() {
		exp := metrics.New(b.NewConnection("metrics"), log.Named("metrics"))
		reg := prometheus.NewRegistry()
		reg.MustRegister(exp, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		g.Go(func() error { exp.Run(ctx); return nil })
		g.Go(func() error { return metrics.Serve(ctx, cfg.Metrics.Listen, cfg.Metrics.Path, reg, log.Named("metrics")) })
	}

	if cfg.MQTT.Enabled() {
		mc, err := mqttConfig(cfg)
		if err != nil {
			return err
		}
		br := mqtt.New(b.NewConnection("mqtt"), mqtt.NewPahoClient(mc), mc, log.Named("mqtt"))
		g.Go(func() error { return ignoreCanceled(br.Run(ctx)) })
	}

	log.Infow("sen6xd started", "id", cfg.ID, "interval", cfg.Sensor.UpdateInterval)
	err = g.Wait()
	log.Infow("sen6xd stopped", "err", err)
	return err
}

// openStore opens the preference file and, when configured, mirrors it to
// S3. The mirror is nil without S3.
func openStore(c config.PrefsConfig, log *zap.SugaredLogger) (prefs.Store, *prefs.Mirror, error) {
	file, err := prefs.OpenFile(c.File)
	if err != nil {
		return nil, nil, err
	}
	if !c.S3.Enabled() {
		return file, nil, nil
	}
	s3, err := prefs.NewS3Store(c.S3)
	if err != nil {
		return nil, nil, err
	}
	m := prefs.NewMirror(file, s3, log.Named("prefs"))
	return m, m, nil
}

func mqttConfig(cfg *config.Config) (mqtt.Config, error) {
	c := cfg.MQTT
	out := mqtt.Config{
		Broker:   c.Broker,
		ClientID: c.ClientID,
		Prefix:   c.Prefix,
		Username: c.Username,
		QoS:      c.QoS,
	}
	if out.ClientID == "" {
		out.ClientID = "sen6xd-" + cfg.ID
	}
	if c.PasswordFile != "" {
		b, err := os.ReadFile(c.PasswordFile)
		if err != nil {
			return out, errors.Wrap(err, "read mqtt password")
		}
		out.Password = strings.TrimSpace(string(b))
	}
	return out, nil
}

// watchState ends the daemon when the sensor reports a fatal failure.
func watchState(ctx context.Context, conn *bus.Connection, id string) error {
	sub := conn.Subscribe(sensor.StateTopic(id))
	defer conn.Disconnect()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			if st, ok := m.Payload.(types.DriverState); ok && st.Level == "failed" {
				return errors.Errorf("sensor %s failed: %s", id, st.Status)
			}
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
