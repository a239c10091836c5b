package config

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"sen6x-go/drivers/sen6x"
	"sen6x-go/services/prefs"
	"sen6x-go/services/sensor"
	"sen6x-go/types"
)

// Config is the daemon configuration file.
type Config struct {
	ID        string          `yaml:"id"`
	I2C       I2CConfig       `yaml:"i2c"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Prefs     PrefsConfig     `yaml:"prefs"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

type I2CConfig struct {
	Bus     string `yaml:"bus"`
	Address uint16 `yaml:"address"`
}

type SensorConfig struct {
	UpdateInterval          time.Duration            `yaml:"update_interval"`
	StoreBaseline           *bool                    `yaml:"store_baseline"`
	Channels                []string                 `yaml:"channels"`
	VOCTuning               *GasTuning               `yaml:"voc_tuning"`
	NOxTuning               *GasTuning               `yaml:"nox_tuning"`
	RHTAcceleration         *RHTAcceleration         `yaml:"rht_acceleration"`
	TemperatureCompensation *TemperatureCompensation `yaml:"temperature_compensation"`
	AutoCleanInterval       time.Duration            `yaml:"auto_clean_interval"`
}

// GasTuning mirrors the VOC/NOx algorithm tuning block. StdInitial is
// ignored for NOx.
type GasTuning struct {
	IndexOffset              int16 `yaml:"index_offset"`
	LearningTimeOffsetHours  int16 `yaml:"learning_time_offset_hours"`
	LearningTimeGainHours    int16 `yaml:"learning_time_gain_hours"`
	GatingMaxDurationMinutes int16 `yaml:"gating_max_duration_minutes"`
	StdInitial               int16 `yaml:"std_initial"`
	GainFactor               int16 `yaml:"gain_factor"`
}

type RHTAcceleration struct {
	K  int16  `yaml:"k"`
	P  int16  `yaml:"p"`
	T1 uint16 `yaml:"t1"`
	T2 uint16 `yaml:"t2"`
}

type TemperatureCompensation struct {
	Offset       float64 `yaml:"offset"`
	Slope        float64 `yaml:"slope"`
	TimeConstant uint16  `yaml:"time_constant"`
}

type PrefsConfig struct {
	File string         `yaml:"file"`
	S3   prefs.S3Config `yaml:"s3"`
}

type MQTTConfig struct {
	Broker       string `yaml:"broker"`
	ClientID     string `yaml:"client_id"`
	Prefix       string `yaml:"prefix"`
	Username     string `yaml:"username"`
	PasswordFile string `yaml:"password_file"`
	QoS          byte   `yaml:"qos"`
}

// Enabled reports whether a broker is configured.
func (c MQTTConfig) Enabled() bool { return strings.TrimSpace(c.Broker) != "" }

type MetricsConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

// Enabled reports whether the exporter should listen.
func (c MetricsConfig) Enabled() bool { return strings.TrimSpace(c.Listen) != "" }

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// HeartbeatConfig sets how often the daemon announces it is alive. A
// negative interval disables the heartbeat.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Load reads path, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "parse config")
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero fields.
func ApplyDefaults(cfg *Config) {
	if cfg.ID == "" {
		cfg.ID = DefaultID
	}
	if cfg.I2C.Bus == "" {
		cfg.I2C.Bus = DefaultI2CBus
	}
	if cfg.I2C.Address == 0 {
		cfg.I2C.Address = sen6x.Address
	}
	if cfg.Sensor.UpdateInterval == 0 {
		cfg.Sensor.UpdateInterval = sensor.DefaultUpdateInterval
	}
	if cfg.Sensor.StoreBaseline == nil {
		on := true
		cfg.Sensor.StoreBaseline = &on
	}
	if cfg.Sensor.AutoCleanInterval == 0 {
		cfg.Sensor.AutoCleanInterval = sensor.DefaultAutoCleanInterval
	}
	if cfg.Prefs.File == "" {
		cfg.Prefs.File = DefaultPrefsFile
	}
	if cfg.MQTT.Prefix == "" {
		cfg.MQTT.Prefix = DefaultMQTTPrefix
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "sen6xd-" + cfg.ID
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Heartbeat.Interval == 0 {
		cfg.Heartbeat.Interval = DefaultHeartbeatInterval
	}
}

// Validate checks values that defaults cannot repair.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if strings.ContainsAny(cfg.ID, "/+#") {
		return errors.Errorf("id %q must not contain topic separators or wildcards", cfg.ID)
	}
	if cfg.I2C.Address == 0 || cfg.I2C.Address > 0x7F {
		return errors.Errorf("i2c.address 0x%X outside 7-bit range", cfg.I2C.Address)
	}
	if cfg.Sensor.UpdateInterval < time.Second {
		return errors.Errorf("sensor.update_interval %s is below 1s", cfg.Sensor.UpdateInterval)
	}
	if cfg.Sensor.AutoCleanInterval < time.Hour {
		return errors.Errorf("sensor.auto_clean_interval %s is below 1h", cfg.Sensor.AutoCleanInterval)
	}
	for _, ch := range cfg.Sensor.Channels {
		if _, ok := types.Lookup(types.Channel(ch)); !ok {
			return errors.Errorf("sensor.channels: unknown channel %q", ch)
		}
	}
	if tc := cfg.Sensor.TemperatureCompensation; tc != nil && (tc.Offset < -10 || tc.Offset > 10) {
		return errors.Errorf("sensor.temperature_compensation.offset %.2f outside -10..10", tc.Offset)
	}
	if s3 := cfg.Prefs.S3; s3.Enabled() {
		if s3.Bucket == "" {
			return errors.New("prefs.s3.bucket is required")
		}
		if s3.AccessKeyFile == "" || s3.SecretKeyFile == "" {
			return errors.New("prefs.s3 key files are required")
		}
	}
	if cfg.MQTT.QoS > 2 {
		return errors.Errorf("mqtt.qos %d must be 0, 1 or 2", cfg.MQTT.QoS)
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}

// SensorConfig converts the file form into driver settings.
func (c *Config) SensorConfig() sensor.Config {
	s := c.Sensor
	out := sensor.Config{
		UpdateInterval:    s.UpdateInterval,
		StoreBaseline:     s.StoreBaseline == nil || *s.StoreBaseline,
		AutoCleanInterval: s.AutoCleanInterval,
	}
	for _, ch := range s.Channels {
		out.Channels = append(out.Channels, types.Channel(ch))
	}
	if t := s.VOCTuning; t != nil {
		g := t.device()
		out.VOCTuning = &g
	}
	if t := s.NOxTuning; t != nil {
		g := t.device()
		out.NOxTuning = &g
	}
	if a := s.RHTAcceleration; a != nil {
		out.RHTAcceleration = &sen6x.RHTAcceleration{K: a.K, P: a.P, T1: a.T1, T2: a.T2}
	}
	if tc := s.TemperatureCompensation; tc != nil {
		out.TemperatureCompensation = &sen6x.TemperatureOffset{
			Offset: tc.Offset, Slope: tc.Slope, TimeConstant: tc.TimeConstant,
		}
	}
	return out
}

func (t *GasTuning) device() sen6x.GasTuning {
	return sen6x.GasTuning{
		IndexOffset:              t.IndexOffset,
		LearningTimeOffsetHours:  t.LearningTimeOffsetHours,
		LearningTimeGainHours:    t.LearningTimeGainHours,
		GatingMaxDurationMinutes: t.GatingMaxDurationMinutes,
		StdInitial:               t.StdInitial,
		GainFactor:               t.GainFactor,
	}
}
