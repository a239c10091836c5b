package config

import "time"

const DefaultHeartbeatInterval = time.Minute

const (
	DefaultID          = "main"
	DefaultI2CBus      = "/dev/i2c-1"
	DefaultPrefsFile   = "/var/lib/sen6x/prefs.cbor"
	DefaultMQTTPrefix  = "sen6x"
	DefaultMetricsPath = "/metrics"
	DefaultLogLevel    = "info"
)

// Example is a commented configuration printed by `sen6xd config`.
const Example = `# sen6xd configuration
id: main

i2c:
  bus: /dev/i2c-1
  address: 0x6B

sensor:
  update_interval: 10s
  store_baseline: true
  # channels: [pm2_5, co2, voc_index]   # empty publishes everything the model has
  auto_clean_interval: 168h
  # voc_tuning:
  #   index_offset: 100
  #   learning_time_offset_hours: 12
  #   learning_time_gain_hours: 12
  #   gating_max_duration_minutes: 180
  #   std_initial: 50
  #   gain_factor: 230
  # temperature_compensation:
  #   offset: -1.5
  #   slope: 0
  #   time_constant: 0

prefs:
  file: /var/lib/sen6x/prefs.cbor
  # s3:
  #   endpoint: https://s3.example.net
  #   bucket: sensors
  #   prefix: sen6x/prefs
  #   access_key_file: /run/secrets/s3_access
  #   secret_key_file: /run/secrets/s3_secret

mqtt:
  # broker: tcp://localhost:1883
  prefix: sen6x

metrics:
  # listen: ":9106"
  path: /metrics

log:
  level: info
  development: false

heartbeat:
  interval: 1m
`
