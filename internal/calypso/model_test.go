package calypso

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

var goodFrame = []byte{0x39, 0x02, 0xCE, 0x00, 0x09, 0x85, 0x78, 0x1E, 0x7D, 0x00}

var goodReading = Reading{
	WindSpeed:     5.69,
	WindDirection: 206,
	BatteryLevel:  90,
	Temperature:   33,
	Roll:          30,
	Pitch:         -60,
	Heading:       235,
}

func TestDecodeReading(t *testing.T) {
	got, err := DecodeReading(goodFrame)
	if err != nil {
		t.Fatalf("DecodeReading() error = %v", err)
	}
	if got != goodReading {
		t.Errorf("DecodeReading() = %+v, want %+v", got, goodReading)
	}
}

func TestDecodeReadingWrongLength(t *testing.T) {
	for _, buf := range [][]byte{nil, {0x01}, append(append([]byte{}, goodFrame...), 0xff)} {
		got, err := DecodeReading(buf)
		if !errors.Is(err, ErrDecoding) {
			t.Errorf("DecodeReading(% x) error = %v, want ErrDecoding", buf, err)
		}
		if got != (Reading{}) {
			t.Errorf("DecodeReading(% x) = %+v, want zero reading", buf, got)
		}
	}

	_, err := DecodeReading([]byte{0x01})
	if !strings.Contains(err.Error(), "01") {
		t.Errorf("error %q should include the raw bytes", err)
	}
}

func TestEncodeReadingRoundTrip(t *testing.T) {
	if got := EncodeReading(goodReading); !bytes.Equal(got, goodFrame) {
		t.Errorf("EncodeReading() = % x, want % x", got, goodFrame)
	}
}

func TestAdjusted(t *testing.T) {
	if got := goodReading.Adjusted(); got != goodReading {
		t.Errorf("Adjusted() with wind = %+v, want unchanged", got)
	}

	calm := goodReading
	calm.WindSpeed = 0
	got := calm.Adjusted()
	want := calm
	want.WindDirection = 0
	if got != want {
		t.Errorf("Adjusted() without wind = %+v, want %+v", got, want)
	}
	if calm.WindDirection != 206 {
		t.Error("Adjusted() must not modify the receiver")
	}
}

func TestReadingJSON(t *testing.T) {
	var got map[string]any
	if err := json.Unmarshal([]byte(goodReading.JSON()), &got); err != nil {
		t.Fatalf("JSON() is not valid JSON: %v", err)
	}
	want := map[string]any{
		"wind_speed":     5.69,
		"wind_direction": 206.0,
		"battery_level":  90.0,
		"temperature":    33.0,
		"roll":           30.0,
		"pitch":          -60.0,
		"heading":        235.0,
	}
	if len(got) != len(want) {
		t.Fatalf("JSON() has %d fields, want %d: %v", len(got), len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("JSON()[%q] = %v, want %v", k, got[k], v)
		}
	}
}

func TestParseEnums(t *testing.T) {
	if m, err := ParseMode("low_power"); err != nil || m != ModeLowPower {
		t.Errorf("ParseMode(low_power) = %v, %v", m, err)
	}
	if _, err := ParseMode("turbo"); err == nil {
		t.Error("ParseMode(turbo) should fail")
	}
	if r, err := ParseDataRate("hz_8"); err != nil || r != Rate8Hz {
		t.Errorf("ParseDataRate(hz_8) = %v, %v", r, err)
	}
	if r, err := ParseDataRate("1"); err != nil || r != Rate1Hz {
		t.Errorf("ParseDataRate(1) = %v, %v", r, err)
	}
	if _, err := ParseDataRate("HZ_2"); err == nil {
		t.Error("ParseDataRate(HZ_2) should fail")
	}
	if c, err := ParseCompassStatus("On"); err != nil || c != CompassOn {
		t.Errorf("ParseCompassStatus(On) = %v, %v", c, err)
	}
}

func TestEnumDecoders(t *testing.T) {
	if _, err := decodeMode(3); err == nil {
		t.Error("decodeMode(3) should fail")
	}
	if _, err := decodeDataRate(2); err == nil {
		t.Error("decodeDataRate(2) should fail")
	}
	if _, err := decodeCompassStatus(2); err == nil {
		t.Error("decodeCompassStatus(2) should fail")
	}
	if r, err := decodeDataRate(8); err != nil || r != Rate8Hz {
		t.Errorf("decodeDataRate(8) = %v, %v", r, err)
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{ModeNormal.String(), "NORMAL"},
		{Mode(9).String(), "Mode(9)"},
		{Rate4Hz.String(), "HZ_4"},
		{CompassOff.String(), "OFF"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestStatusJSONUsesLabels(t *testing.T) {
	b, err := json.Marshal(DeviceStatus{Mode: ModeNormal, Rate: Rate8Hz, Compass: CompassOn})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"mode":"NORMAL","rate":"HZ_8","compass":"ON"}`
	if string(b) != want {
		t.Errorf("Marshal() = %s, want %s", b, want)
	}
}

func TestDataRateInterval(t *testing.T) {
	if got := Rate4Hz.Interval(); got != 250*time.Millisecond {
		t.Errorf("Rate4Hz.Interval() = %v, want 250ms", got)
	}
	if got := Rate1Hz.Interval(); got != time.Second {
		t.Errorf("Rate1Hz.Interval() = %v, want 1s", got)
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.Adapter != "hci0" || s.Address != "" || s.DiscoveryTimeout != 10*time.Second || s.ConnectTimeout != 10*time.Second {
		t.Errorf("DefaultSettings() = %+v", s)
	}
}
