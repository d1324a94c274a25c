package protocol

import (
	"bytes"
	"strings"
	"testing"
)

func TestDecodeFrame(t *testing.T) {
	raw := []byte{0x39, 0x02, 0xCE, 0x00, 0x09, 0x85, 0x78, 0x1E, 0x7D, 0x00}
	got, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	want := Frame{
		Speed:     569,
		Direction: 206,
		Battery:   9,
		Temp:      133,
		Roll:      120,
		Pitch:     30,
		Heading:   125,
	}
	if got != want {
		t.Errorf("DecodeFrame() = %+v, want %+v", got, want)
	}
}

func TestDecodeFrameWrongLength(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"nil", nil},
		{"one byte", []byte{0xAA}},
		{"nine bytes", make([]byte, 9)},
		{"eleven bytes", make([]byte, 11)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeFrame(tt.buf)
			if err == nil {
				t.Fatal("DecodeFrame() should fail")
			}
			if got != (Frame{}) {
				t.Errorf("DecodeFrame() = %+v, want zero frame", got)
			}
		})
	}
}

func TestDecodeFrameErrorIncludesRawBytes(t *testing.T) {
	_, err := DecodeFrame([]byte{0xAA})
	if err == nil {
		t.Fatal("DecodeFrame() should fail")
	}
	if !strings.Contains(err.Error(), "aa") {
		t.Errorf("error %q should contain raw bytes", err)
	}
	if !strings.Contains(err.Error(), "got 1") {
		t.Errorf("error %q should contain the length", err)
	}
}

func TestEncodeFrame(t *testing.T) {
	f := Frame{Speed: 569, Direction: 206, Battery: 9, Temp: 133, Roll: 120, Pitch: 30, Heading: 125}
	want := []byte{0x39, 0x02, 0xCE, 0x00, 0x09, 0x85, 0x78, 0x1E, 0x7D, 0x00}
	if got := EncodeFrame(f); !bytes.Equal(got, want) {
		t.Errorf("EncodeFrame() = %x, want %x", got, want)
	}
}
