package config

import "sen6x-go/bus"

const configPrefix = "config"

// Publish puts each section of cfg on the bus as a retained message under
// config/<section>, so other services can inspect the effective settings.
func Publish(conn *bus.Connection, cfg *Config) {
	sections := map[string]any{
		"id":        cfg.ID,
		"i2c":       cfg.I2C,
		"sensor":    cfg.Sensor,
		"prefs":     cfg.Prefs,
		"mqtt":      cfg.MQTT,
		"metrics":   cfg.Metrics,
		"log":       cfg.Log,
		"heartbeat": cfg.Heartbeat,
	}
	for k, v := range sections {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
}

// Topic is the retained topic for one section.
func Topic(section string) bus.Topic { return bus.T(configPrefix, section) }
