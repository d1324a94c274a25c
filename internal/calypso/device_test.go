package calypso

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/chaz8081/calypso-anemometer/internal/ble"
	"github.com/chaz8081/calypso-anemometer/internal/calypso/protocol"
)

// captureLogs routes the default logger into a buffer for the test duration.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func testSettings(address string) Settings {
	s := DefaultSettings()
	s.Address = address
	s.DiscoveryTimeout = time.Second
	s.ConnectTimeout = time.Second
	return s
}

func connectedDevice(t *testing.T) (*Device, *mockConnection) {
	t.Helper()
	conn := newMockConnection()
	d := NewDevice(newMockAdapter(conn), testSettings("bar"))
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return d, conn
}

func TestDiscoverSkipsScanWhenAddressKnown(t *testing.T) {
	adapter := newMockAdapter(nil)
	d := NewDevice(adapter, testSettings("bar"))

	found, err := d.Discover(context.Background(), false)
	if err != nil || !found {
		t.Fatalf("Discover() = %v, %v, want true, nil", found, err)
	}
	if adapter.scanCount() != 0 {
		t.Errorf("scan invoked %d times, want 0", adapter.scanCount())
	}
}

func TestDiscoverFindsDevice(t *testing.T) {
	logs := captureLogs(t)
	adapter := newMockAdapter(nil)
	adapter.peripheral = &ble.Peripheral{Name: "foo", Address: "bar"}
	d := NewDevice(adapter, testSettings(""))

	found, err := d.Discover(context.Background(), false)
	if err != nil || !found {
		t.Fatalf("Discover() = %v, %v, want true, nil", found, err)
	}
	if d.Address() != "bar" {
		t.Errorf("Address() = %q, want %q", d.Address(), "bar")
	}
	for _, msg := range []string{"Using BLE discovery to find Calypso UP10 anemometer", "Found device at address: bar: foo"} {
		if !strings.Contains(logs.String(), msg) {
			t.Errorf("log output missing %q:\n%s", msg, logs.String())
		}
	}
}

func TestDiscoverForceRescans(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.peripheral = &ble.Peripheral{Name: "foo", Address: "baz"}
	d := NewDevice(adapter, testSettings("bar"))

	if _, err := d.Discover(context.Background(), true); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if adapter.scanCount() != 1 {
		t.Errorf("scan invoked %d times, want 1", adapter.scanCount())
	}
	if d.Address() != "baz" {
		t.Errorf("Address() = %q, want %q", d.Address(), "baz")
	}
}

func TestDiscoverNotFound(t *testing.T) {
	logs := captureLogs(t)
	d := NewDevice(newMockAdapter(nil), testSettings(""))

	found, err := d.Discover(context.Background(), false)
	if err != nil || found {
		t.Fatalf("Discover() = %v, %v, want false, nil", found, err)
	}
	if !strings.Contains(logs.String(), "Unable to find device") {
		t.Errorf("log output missing not-found message:\n%s", logs.String())
	}
}

func TestDiscoverAdapterOff(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.scanErr = errors.New("Bluetooth device is turned off")
	d := NewDevice(adapter, testSettings(""))

	_, err := d.Discover(context.Background(), false)
	if !errors.Is(err, ErrAdapter) {
		t.Errorf("Discover() error = %v, want ErrAdapter", err)
	}
}

func TestDiscoverPropagatesOtherErrors(t *testing.T) {
	scanErr := errors.New("Something went wrong")
	adapter := newMockAdapter(nil)
	adapter.scanErr = scanErr
	d := NewDevice(adapter, testSettings(""))

	_, err := d.Discover(context.Background(), false)
	if err != scanErr {
		t.Errorf("Discover() error = %v, want the scan error unchanged", err)
	}
}

func TestConnectClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"adapter off", errors.New("BleakError: Bluetooth device is turned off"), ErrAdapter},
		{"context deadline", context.DeadlineExceeded, ErrTimeout},
		{"stack timeout", ble.ErrTimeout, ErrTimeout},
		{"other", errors.New("org.bluez.Error.Failed: Software caused connection abort"), ErrConversation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newMockAdapter(nil)
			adapter.connectErr = tt.err
			d := NewDevice(adapter, testSettings("bar"))

			err := d.Connect(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("Connect() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrDevice) {
				t.Error("connect failure should belong to the device error family")
			}
		})
	}
}

func TestConnectWithoutAddress(t *testing.T) {
	d := NewDevice(newMockAdapter(nil), testSettings(""))
	if err := d.Connect(context.Background()); !errors.Is(err, ErrDiscovery) {
		t.Errorf("Connect() error = %v, want ErrDiscovery", err)
	}
}

func TestDisconnectSwallowsErrors(t *testing.T) {
	logs := captureLogs(t)
	d, conn := connectedDevice(t)
	conn.disconnErr = errors.New("Something went wrong")

	d.Disconnect()

	if !conn.isDisconnected() {
		t.Error("connection should be closed")
	}
	if !strings.Contains(logs.String(), "Disconnect failed") {
		t.Errorf("log output missing disconnect failure:\n%s", logs.String())
	}
	if _, err := d.GetReading(context.Background()); !errors.Is(err, ErrConversation) {
		t.Errorf("GetReading() after Disconnect error = %v, want ErrConversation", err)
	}
}

func TestGetReading(t *testing.T) {
	d, conn := connectedDevice(t)
	conn.values[protocol.DataUUID] = goodFrame

	got, err := d.GetReading(context.Background())
	if err != nil {
		t.Fatalf("GetReading() error = %v", err)
	}
	if got != goodReading {
		t.Errorf("GetReading() = %+v, want %+v", got, goodReading)
	}
}

func TestGetReadingDecodingFailure(t *testing.T) {
	d, conn := connectedDevice(t)
	conn.values[protocol.DataUUID] = []byte{0x01}

	_, err := d.GetReading(context.Background())
	if !errors.Is(err, ErrDecoding) {
		t.Errorf("GetReading() error = %v, want ErrDecoding", err)
	}
}

func TestGetReadingIOFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"timeout", ble.ErrTimeout, ErrTimeout},
		{"other", errors.New("le-connection-abort-by-local"), ErrConversation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, conn := connectedDevice(t)
			conn.readErrs[protocol.DataUUID] = tt.err
			if _, err := d.GetReading(context.Background()); !errors.Is(err, tt.want) {
				t.Errorf("GetReading() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGetInfo(t *testing.T) {
	d, conn := connectedDevice(t)
	conn.values[protocol.ManufacturerNameUUID] = []byte("Calypso Instruments")
	conn.values[protocol.ModelNumberUUID] = []byte("UP10")
	conn.values[protocol.SerialNumberUUID] = []byte("0815\x00")
	conn.values[protocol.FirmwareRevisionUUID] = []byte("1.0")

	info, err := d.GetInfo(context.Background())
	if err != nil {
		t.Fatalf("GetInfo() error = %v", err)
	}
	if info.Address != "bar" || info.ManufacturerName != "Calypso Instruments" || info.ModelNumber != "UP10" || info.SerialNumber != "0815" {
		t.Errorf("GetInfo() = %+v", info)
	}
	if info.FirmwareRevision == nil || *info.FirmwareRevision != "1.0" {
		t.Errorf("FirmwareRevision = %v, want 1.0", info.FirmwareRevision)
	}
	if info.HardwareRevision != nil || info.SoftwareRevision != nil {
		t.Error("missing optional revisions should be nil")
	}
}

func TestGetInfoRequiredFieldMissing(t *testing.T) {
	d, _ := connectedDevice(t)
	if _, err := d.GetInfo(context.Background()); !errors.Is(err, ErrConversation) {
		t.Errorf("GetInfo() error = %v, want ErrConversation", err)
	}
}

func TestGetStatus(t *testing.T) {
	d, conn := connectedDevice(t)
	conn.values[protocol.ModeUUID] = []byte{0x02}
	conn.values[protocol.DataRateUUID] = []byte{0x08}
	conn.values[protocol.CompassUUID] = []byte{0x01}

	got, err := d.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	want := DeviceStatus{Mode: ModeNormal, Rate: Rate8Hz, Compass: CompassOn}
	if got != want {
		t.Errorf("GetStatus() = %+v, want %+v", got, want)
	}
}

func TestGetStatusOutOfRange(t *testing.T) {
	d, conn := connectedDevice(t)
	conn.values[protocol.ModeUUID] = []byte{0x02}
	conn.values[protocol.DataRateUUID] = []byte{0x03}
	conn.values[protocol.CompassUUID] = []byte{0x01}

	got, err := d.GetStatus(context.Background())
	if !errors.Is(err, ErrDecoding) {
		t.Errorf("GetStatus() error = %v, want ErrDecoding", err)
	}
	if got != (DeviceStatus{}) {
		t.Errorf("GetStatus() = %+v, want no partial status", got)
	}
}

func TestAbout(t *testing.T) {
	d, conn := connectedDevice(t)
	conn.values[protocol.ManufacturerNameUUID] = []byte("Calypso Instruments")
	conn.values[protocol.ModelNumberUUID] = []byte("UP10")
	conn.values[protocol.SerialNumberUUID] = []byte("0815")
	conn.values[protocol.ModeUUID] = []byte{0x02}
	conn.values[protocol.DataRateUUID] = []byte{0x08}
	conn.values[protocol.CompassUUID] = []byte{0x01}

	about, err := d.About(context.Background())
	if err != nil {
		t.Fatalf("About() error = %v", err)
	}
	if about.Info.Address != "bar" || about.Status.Rate != Rate8Hz {
		t.Errorf("About() = %+v", about)
	}
	if !strings.Contains(about.JSON(), `"rate": "HZ_8"`) {
		t.Errorf("About().JSON() = %s", about.JSON())
	}
}

func TestSetters(t *testing.T) {
	d, conn := connectedDevice(t)
	ctx := context.Background()

	if err := d.SetDatarate(ctx, Rate8Hz); err != nil {
		t.Fatalf("SetDatarate() error = %v", err)
	}
	if err := d.SetMode(ctx, ModeLowPower); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	if err := d.SetCompass(ctx, CompassOff); err != nil {
		t.Fatalf("SetCompass() error = %v", err)
	}

	want := []mockWrite{
		{protocol.DataRateUUID, []byte{0x08}, true},
		{protocol.ModeUUID, []byte{0x01}, true},
		{protocol.CompassUUID, []byte{0x00}, true},
	}
	if len(conn.writes) != len(want) {
		t.Fatalf("got %d writes, want %d", len(conn.writes), len(want))
	}
	for i, w := range want {
		got := conn.writes[i]
		if got.uuid != w.uuid || !bytes.Equal(got.data, w.data) || got.withResponse != w.withResponse {
			t.Errorf("write %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestSetterFailure(t *testing.T) {
	d, conn := connectedDevice(t)
	conn.writeErr = errors.New("org.bluez.Error.Failed")
	if err := d.SetMode(context.Background(), ModeSleep); !errors.Is(err, ErrConversation) {
		t.Errorf("SetMode() error = %v, want ErrConversation", err)
	}
}

func TestSubscribeReading(t *testing.T) {
	d, conn := connectedDevice(t)
	ctx := context.Background()

	var got []Reading
	if err := d.SubscribeReading(ctx, func(r Reading) { got = append(got, r) }); err != nil {
		t.Fatalf("SubscribeReading() error = %v", err)
	}
	if !conn.subscribed(protocol.DataUUID) {
		t.Fatal("data characteristic should be subscribed")
	}

	conn.SimulateNotification(protocol.DataUUID, goodFrame)
	conn.SimulateNotification(protocol.DataUUID, []byte{0x01})
	calm := EncodeReading(Reading{Temperature: 20, Heading: 360})
	conn.SimulateNotification(protocol.DataUUID, calm)

	if len(got) != 2 {
		t.Fatalf("callback invoked %d times, want 2", len(got))
	}
	if got[0] != goodReading {
		t.Errorf("first reading = %+v, want %+v", got[0], goodReading)
	}
	if got[1].Temperature != 20 {
		t.Errorf("second reading = %+v", got[1])
	}

	if err := d.UnsubscribeReading(ctx); err != nil {
		t.Fatalf("UnsubscribeReading() error = %v", err)
	}
	if conn.subscribed(protocol.DataUUID) {
		t.Error("data characteristic should be unsubscribed")
	}
}

func TestSubscribeReadingFailure(t *testing.T) {
	d, conn := connectedDevice(t)
	conn.subErr = ble.ErrTimeout
	if err := d.SubscribeReading(context.Background(), func(Reading) {}); !errors.Is(err, ErrTimeout) {
		t.Errorf("SubscribeReading() error = %v, want ErrTimeout", err)
	}
}

func TestLostClosesOnLinkLoss(t *testing.T) {
	d, conn := connectedDevice(t)
	lost := d.Lost()
	if lost == nil {
		t.Fatal("Lost() should not be nil while connected")
	}

	conn.SimulateDisconnect()
	conn.SimulateDisconnect()

	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("Lost() channel not closed after link loss")
	}
}
