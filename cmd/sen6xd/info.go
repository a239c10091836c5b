package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"sen6x-go/drivers/sen6x"
	"sen6x-go/services/prefs"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Stop the sensor, print its identity and status, then restart it",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	zl, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	i2c, closeBus, err := openBus(cfg, zl.Sugar())
	if err != nil {
		return err
	}
	defer closeBus()
	dev := newDevice(cfg, i2c)

	if err := dev.StopMeasurement(); err != nil {
		return errors.Wrap(err, "stop measurement")
	}
	time.Sleep(sen6x.StopSettle)

	name, err := dev.ProductName()
	if err != nil {
		return errors.Wrap(err, "product name")
	}
	p, known := sen6x.Detect(name)
	serial, err := dev.SerialNumber()
	if err != nil {
		return errors.Wrap(err, "serial number")
	}
	major, minor, err := dev.FirmwareVersion()
	if err != nil {
		return errors.Wrap(err, "firmware version")
	}
	st, err := dev.Status()
	if err != nil {
		return errors.Wrap(err, "status")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "product:   %s\n", name)
	if known {
		fmt.Fprintf(out, "model:     %s\n", p.Model)
	} else {
		fmt.Fprintf(out, "model:     unknown (treated as %s)\n", p.Model)
	}
	fmt.Fprintf(out, "serial:    %s\n", sen6x.CString(serial))
	fmt.Fprintf(out, "namespace: %08x\n", prefs.HashSerial(serial))
	fmt.Fprintf(out, "firmware:  %d.%d\n", major, minor)
	fmt.Fprintf(out, "status:    %s\n", st)

	return errors.Wrap(dev.StartMeasurement(), "start measurement")
}
