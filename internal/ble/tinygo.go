package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// readBufferSize is the largest attribute value a single read can return.
const readBufferSize = 512

// TinyGoAdapter wraps tinygo-org/bluetooth. On Linux it talks to BlueZ over
// D-Bus and honours the adapter name; on macOS addresses are CoreBluetooth
// UUIDs rather than MAC addresses.
type TinyGoAdapter struct {
	name    string
	adapter *bluetooth.Adapter

	connections *registry[*tinyGoConnection]
}

// NewTinyGoAdapter creates a BLE adapter for the host controller with the given name.
func NewTinyGoAdapter(name string) *TinyGoAdapter {
	if name == "" {
		name = "hci0"
	}
	return &TinyGoAdapter{
		name:        name,
		adapter:     hostAdapter(name),
		connections: newRegistry[*tinyGoConnection](),
	}
}

func (a *TinyGoAdapter) Name() string { return a.name }

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return classifyStackError(fmt.Errorf("ble: enable %s: %w", a.name, err))
	}

	// The adapter-level handler fires with connected=false when a peripheral
	// goes away; route it to the matching connection.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		if conn, ok := a.connections.take(device.Address.String()); ok {
			conn.lost()
		}
	})
	return nil
}

func (a *TinyGoAdapter) ScanByName(ctx context.Context, name string) (Peripheral, bool, error) {
	var (
		mu    sync.Mutex
		match Peripheral
		found bool
	)
	hit := make(chan struct{}, 1)
	done := make(chan struct{})

	// StopScan must not be called from the scan callback: BlueZ delivers
	// results on the same goroutine that waits for the stop signal.
	go func() {
		select {
		case <-ctx.Done():
		case <-hit:
		case <-done:
			return
		}
		_ = a.adapter.StopScan()
	}()

	err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if result.LocalName() != name {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if found {
			return
		}
		found = true
		match = Peripheral{
			Name:    result.LocalName(),
			Address: result.Address.String(),
			RSSI:    int(result.RSSI),
		}
		select {
		case hit <- struct{}{}:
		default:
		}
	})
	close(done)

	mu.Lock()
	defer mu.Unlock()
	if found {
		return match, true, nil
	}
	if err != nil && ctx.Err() == nil {
		return Peripheral{}, false, classifyStackError(fmt.Errorf("ble: scan: %w", err))
	}
	return Peripheral{}, false, nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("ble: invalid address %q: %w", address, err)
	}

	// tinygo/bluetooth's Connect blocks with its own timeout; awaitRelease
	// returns as soon as ctx is done and drops a link that comes up later.
	device, err := awaitRelease(ctx, func() (bluetooth.Device, error) {
		return a.adapter.Connect(addr, bluetooth.ConnectionParams{})
	}, func(late bluetooth.Device) {
		slog.Warn("[BLE] dropping connection established after timeout", "address", late.Address.String())
		_ = late.Disconnect()
	})
	if err != nil {
		return nil, classifyStackError(fmt.Errorf("ble: connect to %s: %w", address, err))
	}

	// The disconnect handler looks connections up by the stack's own
	// rendering of the address.
	key := device.Address.String()
	conn := &tinyGoConnection{address: key, device: device}
	a.connections.put(key, conn)
	return conn, nil
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	address string
	device  bluetooth.Device

	mu           sync.Mutex
	services     []Service
	chars        *charTable[bluetooth.DeviceCharacteristic]
	disconnectCb func()
	closed       bool
}

// discover populates the service and characteristic cache on first use.
func (c *tinyGoConnection) discover(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNotConnected
	}
	if c.chars != nil {
		return nil
	}

	svcs, err := await(ctx, func() ([]bluetooth.DeviceService, error) {
		return c.device.DiscoverServices(nil)
	})
	if err != nil {
		return classifyStackError(fmt.Errorf("ble: discover services: %w", err))
	}

	chars := newCharTable[bluetooth.DeviceCharacteristic]()
	var services []Service
	for _, svc := range svcs {
		found, err := await(ctx, func() ([]bluetooth.DeviceCharacteristic, error) {
			return svc.DiscoverCharacteristics(nil)
		})
		if err != nil {
			return classifyStackError(fmt.Errorf("ble: discover characteristics of %s: %w", svc.UUID().String(), err))
		}
		s := Service{UUID: svc.UUID().String()}
		for i := range found {
			id := found[i].UUID().String()
			chars.add(id, &found[i])
			s.Characteristics = append(s.Characteristics, Characteristic{UUID: id})
		}
		services = append(services, s)
	}
	c.services = services
	c.chars = chars
	return nil
}

// characteristic returns the cached characteristic. Notification state lives
// in the characteristic value, so every caller must use the same pointer.
func (c *tinyGoConnection) characteristic(ctx context.Context, charUUID string) (*bluetooth.DeviceCharacteristic, error) {
	if err := c.discover(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chars.get(charUUID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, charUUID)
	}
	return ch, nil
}

func (c *tinyGoConnection) Read(ctx context.Context, charUUID string) ([]byte, error) {
	ch, err := c.characteristic(ctx, charUUID)
	if err != nil {
		return nil, err
	}
	return await(ctx, func() ([]byte, error) {
		buf := make([]byte, readBufferSize)
		n, err := ch.Read(buf)
		if err != nil {
			return nil, classifyStackError(fmt.Errorf("ble: read %s: %w", charUUID, err))
		}
		return buf[:n], nil
	})
}

func (c *tinyGoConnection) Write(ctx context.Context, charUUID string, data []byte, withResponse bool) error {
	ch, err := c.characteristic(ctx, charUUID)
	if err != nil {
		return err
	}
	_, err = await(ctx, func() (int, error) {
		return writeCharacteristic(ch, data, withResponse)
	})
	if err != nil {
		return classifyStackError(fmt.Errorf("ble: write %s: %w", charUUID, err))
	}
	return nil
}

func (c *tinyGoConnection) Subscribe(ctx context.Context, charUUID string, cb func([]byte)) error {
	ch, err := c.characteristic(ctx, charUUID)
	if err != nil {
		return err
	}
	if err := ch.EnableNotifications(func(buf []byte) {
		cb(buf)
	}); err != nil {
		return classifyStackError(fmt.Errorf("ble: subscribe %s: %w", charUUID, err))
	}
	return nil
}

func (c *tinyGoConnection) Unsubscribe(ctx context.Context, charUUID string) error {
	ch, err := c.characteristic(ctx, charUUID)
	if err != nil {
		return err
	}
	// A nil callback stops notifications.
	if err := ch.EnableNotifications(nil); err != nil {
		return classifyStackError(fmt.Errorf("ble: unsubscribe %s: %w", charUUID, err))
	}
	return nil
}

func (c *tinyGoConnection) Services(ctx context.Context) ([]Service, error) {
	if err := c.discover(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Service, len(c.services))
	copy(out, c.services)
	return out, nil
}

// ReadDescriptor is not supported: tinygo-org/bluetooth does not expose GATT
// descriptors, so Services never reports any.
func (c *tinyGoConnection) ReadDescriptor(_ context.Context, d Descriptor) ([]byte, error) {
	return nil, fmt.Errorf("ble: reading descriptor %s is not supported by the host stack", d.UUID)
}

func (c *tinyGoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *tinyGoConnection) lost() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.closed = true
	c.mu.Unlock()
	slog.Debug("[BLE] link lost", "address", c.address)
	if cb != nil {
		cb()
	}
}

func (c *tinyGoConnection) Disconnect() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if err := c.device.Disconnect(); err != nil {
		return fmt.Errorf("ble: disconnect %s: %w", c.address, err)
	}
	return nil
}

// classifyStackError tags host stack errors with ErrAdapterOff or ErrTimeout
// when their message identifies them as such.
func classifyStackError(err error) error {
	if err == nil {
		return nil
	}
	if IsAdapterOff(err) {
		return fmt.Errorf("%w: %w", ErrAdapterOff, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// await runs fn on its own goroutine and returns early when ctx is done.
// The abandoned call finishes in the background.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return awaitRelease(ctx, fn, nil)
}

// awaitRelease is await for calls that acquire something. When ctx wins and
// the abandoned call later succeeds, release receives its result.
func awaitRelease[T any](ctx context.Context, fn func() (T, error), release func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		if release != nil {
			go func() {
				if r := <-ch; r.err == nil {
					release(r.v)
				}
			}()
		}
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

// charTable indexes characteristics by lower-case UUID. It holds pointers
// into the discovery result so that state kept by the stack survives
// between lookups.
type charTable[C any] struct {
	byUUID map[string]*C
}

func newCharTable[C any]() *charTable[C] {
	return &charTable[C]{byUUID: make(map[string]*C)}
}

func (t *charTable[C]) add(uuid string, c *C) {
	t.byUUID[strings.ToLower(uuid)] = c
}

// get is safe on a nil table, which means discovery has not run.
func (t *charTable[C]) get(uuid string) (*C, bool) {
	if t == nil {
		return nil, false
	}
	c, ok := t.byUUID[strings.ToLower(uuid)]
	return c, ok
}

// registry maps stack addresses to live connections.
type registry[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

func newRegistry[V any]() *registry[V] {
	return &registry[V]{m: make(map[string]V)}
}

func (r *registry[V]) put(key string, v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[key] = v
}

// take removes and returns the entry for key.
func (r *registry[V]) take(key string) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.m[key]
	if ok {
		delete(r.m, key)
	}
	return v, ok
}
