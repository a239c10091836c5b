package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"sen6x-go/bus"
	"sen6x-go/drivers/sen6x/sen6xsim"
	"sen6x-go/services/sensor"
	"sen6x-go/types"
)

func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		configPath, logLevel, busName, simulate, traceI2C = "", "", "", "", false
		showEffective = false
	})
}

func TestLoadConfigOverrides(t *testing.T) {
	resetFlags(t)
	logLevel, busName = "debug", "/dev/i2c-7"
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "debug" || cfg.I2C.Bus != "/dev/i2c-7" {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Log, cfg.I2C)
	}

	logLevel = "chatty"
	if _, err := loadConfig(); err == nil {
		t.Fatal("bad level accepted")
	}
}

func TestOpenBusSimulated(t *testing.T) {
	resetFlags(t)
	simulate = "sen68"
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	b, closeBus, err := openBus(cfg, zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatal(err)
	}
	defer closeBus()
	if _, ok := b.(*sen6xsim.Sim); !ok {
		t.Fatalf("bus is %T", b)
	}
	name, err := newDevice(cfg, b).ProductName()
	if err != nil || name != "SEN68" {
		t.Fatalf("ProductName = %q, %v", name, err)
	}

	simulate = "SCD41"
	if _, _, err := openBus(cfg, zaptest.NewLogger(t).Sugar()); err == nil {
		t.Fatal("unknown model accepted")
	}
}

func TestInfoAgainstSimulator(t *testing.T) {
	resetFlags(t)
	simulate = "SEN66"
	var out bytes.Buffer
	infoCmd.SetOut(&out)
	if err := runInfo(infoCmd, nil); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"product:   SEN66", "serial:    1A2B3C4D5E6F7788", "namespace: 31413242", "firmware:  4.0", "status:    0x00000000"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in:\n%s", want, out.String())
		}
	}
}

func TestConfigPrintsExample(t *testing.T) {
	resetFlags(t)
	var out bytes.Buffer
	configCmd.SetOut(&out)
	if err := configCmd.RunE(configCmd, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "update_interval") {
		t.Fatalf("example missing fields:\n%s", out.String())
	}

	out.Reset()
	showEffective = true
	if err := configCmd.RunE(configCmd, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "bus: /dev/i2c-1") {
		t.Fatalf("effective config:\n%s", out.String())
	}
}

func TestWatchStateStopsOnFailure(t *testing.T) {
	b := bus.NewBus(4)
	pub := b.NewConnection("test")
	pub.Publish(pub.NewMessage(sensor.StateTopic("main"), types.DriverState{Level: "starting"}, true))

	errCh := make(chan error, 1)
	go func() { errCh <- watchState(context.Background(), b.NewConnection("watch"), "main") }()

	pub.Publish(pub.NewMessage(sensor.StateTopic("main"), types.DriverState{Level: "failed", Status: "transport"}, true))
	if err := <-errCh; err == nil || !strings.Contains(err.Error(), "transport") {
		t.Fatalf("watchState = %v", err)
	}
}
