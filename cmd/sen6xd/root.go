package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"tinygo.org/x/drivers"

	"sen6x-go/drivers/sen6x"
	"sen6x-go/drivers/sen6x/sen6xsim"
	"sen6x-go/services/config"
	"sen6x-go/transport"
)

var (
	configPath string
	logLevel   string
	busName    string
	simulate   string
	traceI2C   bool
)

var rootCmd = &cobra.Command{
	Use:   "sen6xd",
	Short: "SEN6x air quality sensor daemon",
	Long: `sen6xd drives a Sensirion SEN6x sensor over Linux I2C.

Readings are published as retained values on an internal bus and, when
configured, exported to Prometheus and an MQTT broker. Calibration and
maintenance actions are accepted over MQTT.

Without --config the built-in defaults are used (see "sen6xd config").
--simulate <model> replaces the I2C bus with an in-process device.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&busName, "bus", "", "Override i2c.bus")
	rootCmd.PersistentFlags().StringVar(&simulate, "simulate", "", "Use a simulated device of the given model (SEN62..SEN69C)")
	rootCmd.PersistentFlags().BoolVar(&traceI2C, "trace-i2c", false, "Log every I2C transaction at debug level")
}

// loadConfig reads --config (or the defaults) and applies flag overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configPath == "" {
		cfg = config.Default()
	} else {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if busName != "" {
		cfg.I2C.Bus = busName
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(c config.LogConfig) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// openBus returns the configured I2C bus, or a simulator when --simulate
// is set. The returned close func is never nil.
func openBus(cfg *config.Config, log *zap.SugaredLogger) (drivers.I2C, func(), error) {
	var (
		b     drivers.I2C
		closeFn = func() {}
	)
	if simulate != "" {
		p, ok := sen6x.Detect(strings.ToUpper(simulate))
		if !ok {
			return nil, closeFn, errors.Errorf("unknown model %q", simulate)
		}
		log.Infow("using simulated device", "model", p.Model)
		b = sen6xsim.New(p.Model)
	} else {
		tb, err := transport.Open(cfg.I2C.Bus)
		if err != nil {
			return nil, closeFn, err
		}
		log.Infow("i2c bus open", "bus", cfg.I2C.Bus, "addr", cfg.I2C.Address)
		b = tb
		closeFn = func() {
			if err := tb.Close(); err != nil {
				log.Warnw("close i2c bus", "err", err)
			}
		}
	}
	if traceI2C {
		b = transport.Trace(b, log.Named("i2c"))
	}
	return b, closeFn, nil
}

func newDevice(cfg *config.Config, b drivers.I2C) *sen6x.Device {
	dev := sen6x.New(b)
	dev.Configure(sen6x.Config{Address: cfg.I2C.Address})
	return dev
}
