// Package protocol implements the GATT wire format of the Calypso UP10
// ultrasonic anemometer: characteristic UUIDs and the fixed 10-byte reading frame.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// FrameSize is the exact length of a reading frame on the data characteristic.
const FrameSize = 10

// Frame is the raw, unscaled content of a reading frame.
//
//	bytes:  0-1    2-3        4        5     6     7      8-9
//	        speed  direction  battery  temp  roll  pitch  heading
//
// All multi-byte fields are little-endian and unsigned.
type Frame struct {
	Speed     uint16 // m/s * 100
	Direction uint16 // degrees
	Battery   uint8  // percent / 10
	Temp      uint8  // degrees C + 100
	Roll      uint8  // degrees + 90
	Pitch     uint8  // degrees + 90
	Heading   uint16 // 360 - degrees
}

// DecodeFrame unpacks a reading frame. The buffer must be exactly FrameSize
// bytes long; nothing is decoded from a short or long buffer.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) != FrameSize {
		return Frame{}, fmt.Errorf("protocol: frame must be %d bytes, got %d: % x", FrameSize, len(buf), buf)
	}
	return Frame{
		Speed:     binary.LittleEndian.Uint16(buf[0:2]),
		Direction: binary.LittleEndian.Uint16(buf[2:4]),
		Battery:   buf[4],
		Temp:      buf[5],
		Roll:      buf[6],
		Pitch:     buf[7],
		Heading:   binary.LittleEndian.Uint16(buf[8:10]),
	}, nil
}

// EncodeFrame packs a frame into its 10-byte wire form.
func EncodeFrame(f Frame) []byte {
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint16(buf[0:2], f.Speed)
	binary.LittleEndian.PutUint16(buf[2:4], f.Direction)
	buf[4] = f.Battery
	buf[5] = f.Temp
	buf[6] = f.Roll
	buf[7] = f.Pitch
	binary.LittleEndian.PutUint16(buf[8:10], f.Heading)
	return buf
}
