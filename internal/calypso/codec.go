package calypso

import "github.com/chaz8081/calypso-anemometer/internal/calypso/protocol"

// DecodeReading converts a raw notification or read value into a Reading.
func DecodeReading(buf []byte) (Reading, error) {
	f, err := protocol.DecodeFrame(buf)
	if err != nil {
		return Reading{}, newError(KindDecoding, err, "Unable to decode reading % x", buf)
	}
	return readingFromFrame(f), nil
}

func readingFromFrame(f protocol.Frame) Reading {
	return Reading{
		WindSpeed:     float64(f.Speed) / 100,
		WindDirection: int(f.Direction),
		BatteryLevel:  int(f.Battery) * 10,
		Temperature:   int(f.Temp) - 100,
		Roll:          int(f.Roll) - 90,
		Pitch:         int(f.Pitch) - 90,
		Heading:       360 - int(f.Heading),
	}
}

// EncodeReading is the inverse of DecodeReading for in-range readings.
func EncodeReading(r Reading) []byte {
	return protocol.EncodeFrame(protocol.Frame{
		Speed:     uint16(r.WindSpeed*100 + 0.5),
		Direction: uint16(r.WindDirection),
		Battery:   uint8(r.BatteryLevel / 10),
		Temp:      uint8(r.Temperature + 100),
		Roll:      uint8(r.Roll + 90),
		Pitch:     uint8(r.Pitch + 90),
		Heading:   uint16(360 - r.Heading),
	})
}
