package calypso

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chaz8081/calypso-anemometer/internal/ble"
	"github.com/chaz8081/calypso-anemometer/internal/calypso/protocol"
)

// infoField describes one identity characteristic.
type infoField struct {
	name     string
	uuid     string
	optional bool
	set      func(*DeviceInfo, string)
}

var infoFields = []infoField{
	{"manufacturer_name", protocol.ManufacturerNameUUID, false, func(i *DeviceInfo, v string) { i.ManufacturerName = v }},
	{"model_number", protocol.ModelNumberUUID, false, func(i *DeviceInfo, v string) { i.ModelNumber = v }},
	{"serial_number", protocol.SerialNumberUUID, false, func(i *DeviceInfo, v string) { i.SerialNumber = v }},
	{"hardware_revision", protocol.HardwareRevisionUUID, true, func(i *DeviceInfo, v string) { i.HardwareRevision = &v }},
	{"firmware_revision", protocol.FirmwareRevisionUUID, true, func(i *DeviceInfo, v string) { i.FirmwareRevision = &v }},
	{"software_revision", protocol.SoftwareRevisionUUID, true, func(i *DeviceInfo, v string) { i.SoftwareRevision = &v }},
}

// statusField describes one single-byte status characteristic.
type statusField struct {
	name   string
	uuid   string
	decode func(*DeviceStatus, byte) error
}

var statusFields = []statusField{
	{"mode", protocol.ModeUUID, func(s *DeviceStatus, b byte) (err error) {
		s.Mode, err = decodeMode(b)
		return err
	}},
	{"rate", protocol.DataRateUUID, func(s *DeviceStatus, b byte) (err error) {
		s.Rate, err = decodeDataRate(b)
		return err
	}},
	{"compass", protocol.CompassUUID, func(s *DeviceStatus, b byte) (err error) {
		s.Compass, err = decodeCompassStatus(b)
		return err
	}},
}

// Device is a session with a physical Calypso UP10 over BLE.
type Device struct {
	adapter  ble.Adapter
	settings Settings

	mu      sync.Mutex
	address string
	enabled bool
	conn    ble.Connection
	lost    chan struct{}
}

// NewDevice creates a session using the given BLE adapter. A non-empty
// settings.Address skips discovery.
func NewDevice(adapter ble.Adapter, settings Settings) *Device {
	slog.Info("[CALYPSO] initializing client",
		"adapter", settings.Adapter,
		"address", settings.Address,
		"discovery_timeout", settings.DiscoveryTimeout,
		"connect_timeout", settings.ConnectTimeout,
	)
	return &Device{
		adapter:  adapter,
		settings: settings,
		address:  settings.Address,
	}
}

// Compile-time check that Device implements Session.
var _ Session = (*Device)(nil)

func (d *Device) Address() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.address
}

// Lost returns a channel that is closed when the peripheral drops the link.
// It is nil while not connected.
func (d *Device) Lost() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

func (d *Device) enable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enabled {
		return nil
	}
	if err := d.adapter.Enable(); err != nil {
		return err
	}
	d.enabled = true
	return nil
}

func (d *Device) Discover(ctx context.Context, force bool) (bool, error) {
	if d.Address() != "" && !force {
		return true, nil
	}

	slog.Info("[CALYPSO] Using BLE discovery to find Calypso UP10 anemometer")
	if err := d.enable(); err != nil {
		if ble.IsAdapterOff(err) {
			return false, newError(KindAdapter, err, "Bluetooth adapter %s unavailable", d.settings.Adapter)
		}
		return false, err
	}

	scanCtx, cancel := context.WithTimeout(ctx, d.settings.DiscoveryTimeout)
	defer cancel()

	p, found, err := d.adapter.ScanByName(scanCtx, protocol.LocalName)
	if err != nil {
		if ble.IsAdapterOff(err) {
			return false, newError(KindAdapter, err, "Bluetooth adapter %s unavailable", d.settings.Adapter)
		}
		return false, err
	}
	if !found {
		slog.Warn("[CALYPSO] Unable to find device", "timeout", d.settings.DiscoveryTimeout)
		return false, nil
	}

	d.mu.Lock()
	d.address = p.Address
	d.mu.Unlock()
	slog.Info("[CALYPSO] Found device at address: "+p.String(), "rssi", p.RSSI)
	return true, nil
}

func (d *Device) Connect(ctx context.Context) error {
	address := d.Address()
	if address == "" {
		return newError(KindDiscovery, nil, "No device address known, discovery required")
	}

	d.mu.Lock()
	connected := d.conn != nil
	d.mu.Unlock()
	if connected {
		return nil
	}

	slog.Info("[CALYPSO] Connecting to device", "address", address, "adapter", d.settings.Adapter)
	if err := d.enable(); err != nil {
		return classify(err, "Enabling adapter %s failed", d.settings.Adapter)
	}

	connCtx, cancel := context.WithTimeout(ctx, d.settings.ConnectTimeout)
	defer cancel()

	conn, err := d.adapter.Connect(connCtx, address)
	if err != nil {
		slog.Error("[CALYPSO] Conversation went south", "address", address, "error", err)
		return classify(err, "Connecting to device at %s failed", address)
	}

	lost := make(chan struct{})
	var once sync.Once
	conn.OnDisconnect(func() {
		once.Do(func() {
			slog.Warn("[CALYPSO] device dropped the connection", "address", address)
			close(lost)
		})
	})

	d.mu.Lock()
	d.conn = conn
	d.lost = lost
	d.mu.Unlock()
	slog.Info("[CALYPSO] connected", "address", address)
	return nil
}

func (d *Device) Disconnect() {
	d.mu.Lock()
	conn := d.conn
	d.conn = nil
	d.lost = nil
	d.mu.Unlock()
	if conn == nil {
		return
	}

	slog.Info("[CALYPSO] Disconnecting")
	if err := conn.Disconnect(); err != nil {
		slog.Error("[CALYPSO] Disconnect failed", "error", err)
	}
}

// connection returns the active connection or a conversation error.
func (d *Device) connection() (ble.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil, newError(KindConversation, ble.ErrNotConnected, "Not connected to device")
	}
	return d.conn, nil
}

func (d *Device) read(ctx context.Context, uuid, what string) ([]byte, error) {
	conn, err := d.connection()
	if err != nil {
		return nil, err
	}
	data, err := conn.Read(ctx, uuid)
	if err != nil {
		return nil, classify(err, "Reading %s failed", what)
	}
	return data, nil
}

func (d *Device) write(ctx context.Context, uuid, what string, value byte) error {
	conn, err := d.connection()
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, uuid, []byte{value}, true); err != nil {
		return classify(err, "Writing %s failed", what)
	}
	return nil
}

// GetInfo reads the device identity characteristics.
func (d *Device) GetInfo(ctx context.Context) (DeviceInfo, error) {
	info := DeviceInfo{Address: d.Address()}
	for _, f := range infoFields {
		data, err := d.read(ctx, f.uuid, f.name)
		if err != nil {
			if f.optional && errors.Is(err, ble.ErrNotFound) {
				slog.Debug("[CALYPSO] device does not report field", "field", f.name)
				continue
			}
			return DeviceInfo{}, err
		}
		f.set(&info, strings.TrimRight(string(data), "\x00"))
	}
	return info, nil
}

// GetStatus reads mode, data rate and compass status. A value outside the
// known range fails the whole call.
func (d *Device) GetStatus(ctx context.Context) (DeviceStatus, error) {
	var status DeviceStatus
	for _, f := range statusFields {
		data, err := d.read(ctx, f.uuid, f.name)
		if err != nil {
			return DeviceStatus{}, err
		}
		if len(data) == 0 {
			return DeviceStatus{}, newError(KindDecoding, nil, "Empty value for %s", f.name)
		}
		if err := f.decode(&status, data[0]); err != nil {
			return DeviceStatus{}, newError(KindDecoding, err, "Unable to decode %s % x", f.name, data)
		}
	}
	return status, nil
}

// About reads identity and status in one go.
func (d *Device) About(ctx context.Context) (About, error) {
	info, err := d.GetInfo(ctx)
	if err != nil {
		return About{}, err
	}
	status, err := d.GetStatus(ctx)
	if err != nil {
		return About{}, err
	}
	return About{Info: info, Status: status}, nil
}

func (d *Device) SetMode(ctx context.Context, mode Mode) error {
	slog.Info("[CALYPSO] Setting device mode", "mode", mode)
	return d.write(ctx, protocol.ModeUUID, "mode", byte(mode))
}

func (d *Device) SetDatarate(ctx context.Context, rate DataRate) error {
	slog.Info("[CALYPSO] Setting data rate", "rate", rate)
	return d.write(ctx, protocol.DataRateUUID, "rate", byte(rate))
}

func (d *Device) SetCompass(ctx context.Context, status CompassStatus) error {
	slog.Info("[CALYPSO] Setting compass status", "compass", status)
	return d.write(ctx, protocol.CompassUUID, "compass", byte(status))
}

func (d *Device) GetReading(ctx context.Context) (Reading, error) {
	data, err := d.read(ctx, protocol.DataUUID, "reading")
	if err != nil {
		return Reading{}, err
	}
	return DecodeReading(data)
}

// SubscribeReading enables notifications on the data characteristic. Frames
// that fail to decode are logged and skipped.
func (d *Device) SubscribeReading(ctx context.Context, fn func(Reading)) error {
	conn, err := d.connection()
	if err != nil {
		return err
	}
	slog.Info("[CALYPSO] Subscribing to readings")
	err = conn.Subscribe(ctx, protocol.DataUUID, func(data []byte) {
		r, err := DecodeReading(data)
		if err != nil {
			slog.Warn("[CALYPSO] dropping notification", "error", err)
			return
		}
		fn(r)
	})
	if err != nil {
		return classify(err, "Subscribing to readings failed")
	}
	return nil
}

func (d *Device) UnsubscribeReading(ctx context.Context) error {
	conn, err := d.connection()
	if err != nil {
		return err
	}
	slog.Info("[CALYPSO] Unsubscribing from readings")
	if err := conn.Unsubscribe(ctx, protocol.DataUUID); err != nil {
		return classify(err, "Unsubscribing from readings failed")
	}
	return nil
}

// classify maps a transport failure onto the device error taxonomy.
func classify(err error, format string, args ...any) error {
	var devErr *Error
	if errors.As(err, &devErr) {
		return err
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case ble.IsAdapterOff(err):
		return &Error{Kind: KindAdapter, Msg: msg, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ble.ErrTimeout):
		return &Error{Kind: KindTimeout, Msg: msg, Err: err}
	default:
		return &Error{Kind: KindConversation, Msg: msg, Err: err}
	}
}
