package sen6x_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"

	"sen6x-go/drivers/sen6x"
	"sen6x-go/drivers/sen6x/sen6xsim"
)

func newDevice(m sen6x.Model) (*sen6x.Device, *sen6xsim.Sim) {
	sim := sen6xsim.New(m)
	d := sen6x.New(sim)
	d.Configure(sen6x.Config{Sleep: func(time.Duration) {}})
	return d, sim
}

func TestIdentity(t *testing.T) {
	d, sim := newDevice(sen6x.SEN68)
	sim.Firmware = [2]uint8{3, 2}

	name, err := d.ProductName()
	if err != nil || name != "SEN68" {
		t.Fatalf("ProductName = %q, %v", name, err)
	}
	serial, err := d.SerialNumber()
	if err != nil || sen6x.CString(serial) != "1A2B3C4D5E6F7788" {
		t.Fatalf("SerialNumber = %q, %v", serial, err)
	}
	major, minor, err := d.FirmwareVersion()
	if err != nil || major != 3 || minor != 2 {
		t.Fatalf("FirmwareVersion = %d.%d, %v", major, minor, err)
	}
}

func TestReadMeasurementUsesModelCommand(t *testing.T) {
	for _, m := range []sen6x.Model{sen6x.SEN62, sen6x.SEN63C, sen6x.SEN65, sen6x.SEN66, sen6x.SEN68, sen6x.SEN69C} {
		d, sim := newDevice(m)
		p := sen6x.ProfileOf(m)
		got, err := d.ReadMeasurement(p)
		if err != nil {
			t.Fatalf("%s: %v", m, err)
		}
		if cmds := sim.Commands(); len(cmds) != 1 || cmds[0] != p.ReadCommand {
			t.Fatalf("%s: commands % X", m, cmds)
		}
		if v, ok := got.Value(sen6x.FieldHumidity); !ok || v != 45.2 {
			t.Fatalf("%s: humidity %v %v", m, v, ok)
		}
	}
}

func TestDataReadyLowByte(t *testing.T) {
	d, sim := newDevice(sen6x.SEN66)
	if ok, err := d.DataReady(); err != nil || !ok {
		t.Fatalf("ready: %v %v", ok, err)
	}
	sim.Ready = false
	if ok, err := d.DataReady(); err != nil || ok {
		t.Fatalf("not ready: %v %v", ok, err)
	}
}

func TestChecksumFailureSurfaces(t *testing.T) {
	d, sim := newDevice(sen6x.SEN66)
	sim.CorruptReads = 1
	if _, err := d.ReadMeasurement(sen6x.ProfileOf(sen6x.SEN66)); !errors.Is(err, sen6x.ErrChecksum) {
		t.Fatalf("want ErrChecksum, got %v", err)
	}
	if _, err := d.ReadMeasurement(sen6x.ProfileOf(sen6x.SEN66)); err != nil {
		t.Fatalf("next read should succeed: %v", err)
	}
}

func TestTransportErrorCarriesCommand(t *testing.T) {
	d, sim := newDevice(sen6x.SEN66)
	sim.Fail[sen6x.CmdStartMeasurement] = errors.New("bus stuck")
	err := d.StartMeasurement()
	var te *sen6x.TransportError
	if !errors.As(err, &te) || te.Cmd != sen6x.CmdStartMeasurement || te.Read {
		t.Fatalf("want write TransportError for start, got %v", err)
	}
}

func TestWritesEncodeScaledWords(t *testing.T) {
	d, sim := newDevice(sen6x.SEN66)

	if err := d.SetTemperatureOffset(sen6x.TemperatureOffset{Offset: -1.5, Slope: 0.01, TimeConstant: 600, Slot: 1}); err != nil {
		t.Fatal(err)
	}
	f, _ := sim.Last(sen6x.CmdTemperatureOffset)
	want := []uint16{uint16(0xFFFF - 299), 100, 600, 1}
	for i := range want {
		if f.Words[i] != want[i] {
			t.Fatalf("temperature offset words % X want % X", f.Words, want)
		}
	}

	if err := d.SetNOxTuning(sen6x.DefaultNOxTuning()); err != nil {
		t.Fatal(err)
	}
	if len(sim.NOxTuning) != 5 || sim.NOxTuning[3] != 720 || sim.NOxTuning[4] != 230 {
		t.Fatalf("NOx tuning words %v", sim.NOxTuning)
	}
	if err := d.SetVOCTuning(sen6x.DefaultVOCTuning()); err != nil {
		t.Fatal(err)
	}
	if len(sim.VOCTuning) != 6 || sim.VOCTuning[4] != 50 {
		t.Fatalf("VOC tuning words %v", sim.VOCTuning)
	}

	if err := d.SetSensorAltitude(3001); !errors.Is(err, sen6x.ErrOutOfRange) {
		t.Fatalf("altitude range: %v", err)
	}
	if err := d.SetAmbientPressure(650); !errors.Is(err, sen6x.ErrOutOfRange) {
		t.Fatalf("pressure range: %v", err)
	}
}

func TestVOCStateRoundTrip(t *testing.T) {
	d, _ := newDevice(sen6x.SEN66)
	in := sen6x.VOCState{State0: -123456, State1: 0x12345678}
	if err := d.SetVOCAlgorithmState(in); err != nil {
		t.Fatal(err)
	}
	out, err := d.VOCAlgorithmState()
	if err != nil || out != in {
		t.Fatalf("VOC state: got %+v, %v want %+v", out, err, in)
	}
}

func TestForcedRecalibration(t *testing.T) {
	d, sim := newDevice(sen6x.SEN66)
	sim.FRCResult = 0x8032
	if err := d.StartForcedRecalibration(420); err != nil {
		t.Fatal(err)
	}
	if sim.FRCRef != 420 {
		t.Fatalf("reference not sent: %d", sim.FRCRef)
	}
	if v, err := d.ForcedRecalibrationResult(); err != nil || v != 50 {
		t.Fatalf("correction = %d, %v", v, err)
	}

	sim.FRCResult = 0xFFFF
	_ = d.StartForcedRecalibration(420)
	if _, err := d.ForcedRecalibrationResult(); !errors.Is(err, sen6x.ErrFRCFailed) {
		t.Fatalf("want ErrFRCFailed, got %v", err)
	}
}

func TestStatusReadAndClear(t *testing.T) {
	d, sim := newDevice(sen6x.SEN66)
	sim.StatusReg = uint32(sen6x.StatusGasError | sen6x.StatusLaserError)
	st, err := d.ReadAndClearStatus()
	if err != nil || !st.GasError() || !st.LaserError() {
		t.Fatalf("status = %s, %v", st, err)
	}
	st, _ = d.Status()
	if st != 0 {
		t.Fatalf("status not cleared: %s", st)
	}
}
