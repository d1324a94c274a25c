// Package ble is the Bluetooth Low Energy transport used by the anemometer
// session. It exposes the narrow set of GATT primitives the session needs
// (scan by name, connect, read, write, notify, disconnect) behind interfaces
// so the session logic can be tested without a radio.
package ble

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrAdapterOff reports that the host Bluetooth adapter is missing or powered off.
	ErrAdapterOff = errors.New("ble: Bluetooth device is turned off")
	// ErrTimeout reports that the Bluetooth stack itself gave up waiting.
	ErrTimeout = errors.New("ble: operation timed out")
	// ErrNotFound reports an unknown characteristic UUID on the connected peripheral.
	ErrNotFound = errors.New("ble: characteristic not found")
	// ErrNotConnected reports an operation on a closed connection.
	ErrNotConnected = errors.New("ble: not connected")
)

// adapterOffMarkers are substrings used by the various host stacks when the
// adapter cannot be used at all.
var adapterOffMarkers = []string{
	"Bluetooth device is turned off",
	"org.bluez.Error.NotReady",
	"Not Powered",
	"No default controller available",
	"adapter not powered",
}

// IsAdapterOff reports whether err indicates an unusable host adapter.
func IsAdapterOff(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAdapterOff) {
		return true
	}
	msg := err.Error()
	for _, marker := range adapterOffMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Peripheral is a device seen during a scan.
type Peripheral struct {
	Name    string
	Address string
	RSSI    int
}

func (p Peripheral) String() string {
	return p.Address + ": " + p.Name
}

// Descriptor is a GATT descriptor below a characteristic.
type Descriptor struct {
	UUID   string
	Handle uint16
}

// Characteristic is a GATT characteristic as discovered on the peripheral.
type Characteristic struct {
	UUID        string
	Properties  []string
	Descriptors []Descriptor
}

// Readable reports whether the characteristic advertises the read property.
// Characteristics with unknown properties are treated as readable.
func (c Characteristic) Readable() bool {
	if len(c.Properties) == 0 {
		return true
	}
	for _, p := range c.Properties {
		if p == "read" {
			return true
		}
	}
	return false
}

// Service is a GATT primary service with its characteristics.
type Service struct {
	UUID            string
	Characteristics []Characteristic
}

// Connection represents an active BLE connection to a peripheral.
// Characteristics are addressed by their full 128-bit UUID string.
type Connection interface {
	// Read returns the current value of a characteristic.
	Read(ctx context.Context, charUUID string) ([]byte, error)
	// Write sets the value of a characteristic. When withResponse is set the
	// call waits for the peripheral to acknowledge the write.
	Write(ctx context.Context, charUUID string, data []byte, withResponse bool) error
	// Subscribe registers a callback for notifications on a characteristic.
	// The callback runs on the transport's delivery goroutine, once per
	// notification, in arrival order.
	Subscribe(ctx context.Context, charUUID string, callback func(data []byte)) error
	// Unsubscribe stops notifications on a characteristic.
	Unsubscribe(ctx context.Context, charUUID string) error
	// Services lists all services and characteristics of the peripheral.
	Services(ctx context.Context) ([]Service, error)
	// ReadDescriptor returns the value of a descriptor.
	ReadDescriptor(ctx context.Context, d Descriptor) ([]byte, error)
	// OnDisconnect registers a callback invoked when the peripheral drops the link.
	OnDisconnect(callback func())
	// Disconnect terminates the connection.
	Disconnect() error
}

// Adapter abstracts the host BLE adapter for testing.
type Adapter interface {
	// Name returns the adapter identifier, e.g. "hci0".
	Name() string
	// Enable powers on the BLE adapter.
	Enable() error
	// ScanByName scans until a peripheral advertising the given local name is
	// seen or ctx is done. found is false when ctx expired without a match.
	ScanByName(ctx context.Context, name string) (p Peripheral, found bool, err error)
	// Connect establishes a connection to the peripheral with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
