// Package calypso talks to the Calypso UP10 ultrasonic anemometer over BLE.
// It decodes the device's reading frames, reads and writes its operating
// status, and provides a simulated session with the same contract for
// exercising downstream consumers without hardware.
package calypso

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Reading is one decoded measurement.
type Reading struct {
	WindSpeed     float64 `json:"wind_speed"`     // m/s
	WindDirection int     `json:"wind_direction"` // degrees
	BatteryLevel  int     `json:"battery_level"`  // percent, step of 10
	Temperature   int     `json:"temperature"`    // °C
	Roll          int     `json:"roll"`           // degrees
	Pitch         int     `json:"pitch"`          // degrees
	Heading       int     `json:"heading"`        // degrees
}

// Adjusted returns a copy with the wind direction zeroed when there is no
// wind. The sensor keeps reporting the last direction at zero speed.
func (r Reading) Adjusted() Reading {
	if r.WindSpeed == 0 {
		r.WindDirection = 0
	}
	return r
}

// JSON renders the reading as indented JSON.
func (r Reading) JSON() string {
	b, _ := json.MarshalIndent(r, "", "  ")
	return string(b)
}

// DeviceInfo is the static identity of a peripheral. The revision strings
// are nil when the device does not report them.
type DeviceInfo struct {
	Address          string  `json:"ble_address"`
	ManufacturerName string  `json:"manufacturer_name"`
	ModelNumber      string  `json:"model_number"`
	SerialNumber     string  `json:"serial_number"`
	HardwareRevision *string `json:"hardware_revision"`
	FirmwareRevision *string `json:"firmware_revision"`
	SoftwareRevision *string `json:"software_revision"`
}

// DeviceStatus is a snapshot of the operating parameters.
type DeviceStatus struct {
	Mode    Mode          `json:"mode"`
	Rate    DataRate      `json:"rate"`
	Compass CompassStatus `json:"compass"`
}

// About bundles identity and status for display.
type About struct {
	Info   DeviceInfo   `json:"info"`
	Status DeviceStatus `json:"status"`
}

// JSON renders the record as indented JSON.
func (a About) JSON() string {
	b, _ := json.MarshalIndent(a, "", "  ")
	return string(b)
}

// Settings configures how a session finds and connects to the device.
// It is built once and passed by value.
type Settings struct {
	Adapter          string
	Address          string
	DiscoveryTimeout time.Duration
	ConnectTimeout   time.Duration
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Adapter:          "hci0",
		DiscoveryTimeout: 10 * time.Second,
		ConnectTimeout:   10 * time.Second,
	}
}

// Mode is the device power mode.
type Mode uint8

const (
	ModeSleep    Mode = 0
	ModeLowPower Mode = 1
	ModeNormal   Mode = 2
)

var modeNames = map[Mode]string{
	ModeSleep:    "SLEEP",
	ModeLowPower: "LOW_POWER",
	ModeNormal:   "NORMAL",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ParseMode converts a label such as "normal" into a Mode.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q, expected one of %s", s, labels(modeNames))
}

func decodeMode(b byte) (Mode, error) {
	m := Mode(b)
	if _, ok := modeNames[m]; !ok {
		return 0, fmt.Errorf("invalid mode value %d", b)
	}
	return m, nil
}

// DataRate is the reading frequency in Hz.
type DataRate uint8

const (
	Rate1Hz DataRate = 1
	Rate4Hz DataRate = 4
	Rate8Hz DataRate = 8
)

var rateNames = map[DataRate]string{
	Rate1Hz: "HZ_1",
	Rate4Hz: "HZ_4",
	Rate8Hz: "HZ_8",
}

func (r DataRate) String() string {
	if s, ok := rateNames[r]; ok {
		return s
	}
	return fmt.Sprintf("DataRate(%d)", uint8(r))
}

func (r DataRate) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Interval is the time between two readings at this rate.
func (r DataRate) Interval() time.Duration {
	if r == 0 {
		return time.Second
	}
	return time.Second / time.Duration(r)
}

// ParseDataRate accepts a label ("HZ_4") or the bare frequency ("4").
func ParseDataRate(s string) (DataRate, error) {
	for r, name := range rateNames {
		if strings.EqualFold(s, name) || s == fmt.Sprint(uint8(r)) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown data rate %q, expected one of %s", s, labels(rateNames))
}

func decodeDataRate(b byte) (DataRate, error) {
	r := DataRate(b)
	if _, ok := rateNames[r]; !ok {
		return 0, fmt.Errorf("invalid data rate value %d", b)
	}
	return r, nil
}

// CompassStatus tells whether the onboard compass and attitude sensors are on.
type CompassStatus uint8

const (
	CompassOff CompassStatus = 0
	CompassOn  CompassStatus = 1
)

var compassNames = map[CompassStatus]string{
	CompassOff: "OFF",
	CompassOn:  "ON",
}

func (c CompassStatus) String() string {
	if s, ok := compassNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CompassStatus(%d)", uint8(c))
}

func (c CompassStatus) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// ParseCompassStatus converts "on" or "off" into a CompassStatus.
func ParseCompassStatus(s string) (CompassStatus, error) {
	for c, name := range compassNames {
		if strings.EqualFold(s, name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown compass status %q, expected one of %s", s, labels(compassNames))
}

func decodeCompassStatus(b byte) (CompassStatus, error) {
	c := CompassStatus(b)
	if _, ok := compassNames[c]; !ok {
		return 0, fmt.Errorf("invalid compass status value %d", b)
	}
	return c, nil
}

// labels lists the names of an enum in ascending value order.
func labels[K ~uint8](names map[K]string) string {
	out := make([]string, 0, len(names))
	for v := 0; v < 256; v++ {
		if s, ok := names[K(v)]; ok {
			out = append(out, s)
		}
	}
	return strings.Join(out, ", ")
}
