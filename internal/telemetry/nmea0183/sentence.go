package nmea0183

import (
	"math"
	"strconv"
	"strings"
)

// DefaultTalker is the talker id for integrated instrumentation.
const DefaultTalker = "II"

const (
	knotsPerMeterPerSecond = 1.943844
	kmhPerMeterPerSecond   = 3.6
)

// Sentence is a single NMEA-0183 sentence before rendering.
type Sentence struct {
	Talker     string
	Identifier string
	Fields     []string
}

// Body is the checksummed part of the sentence, without "$" and "*".
func (s Sentence) Body() string {
	parts := append([]string{s.Talker + s.Identifier}, s.Fields...)
	return strings.Join(parts, ",")
}

// Render returns the full sentence including checksum, without line ending.
func (s Sentence) Render() string {
	body := s.Body()
	return "$" + body + "*" + Checksum(body)
}

func (s Sentence) String() string { return s.Render() }

// HeadingTrue builds an HDT sentence.
func HeadingTrue(talker string, heading float64) Sentence {
	return Sentence{talker, "HDT", []string{number(heading), "T"}}
}

// RelativeWind builds a VWR sentence from the apparent wind angle in degrees
// and the wind speed in m/s.
func RelativeWind(talker string, angle, speed float64) Sentence {
	signed := wrap180(angle)
	return Sentence{talker, "VWR", []string{
		number(math.Abs(signed)),
		BowSide(angle),
		number(round2(speed * knotsPerMeterPerSecond)),
		"N",
		number(round2(speed)),
		"M",
		number(round2(speed * kmhPerMeterPerSecond)),
		"K",
	}}
}

// PitchRoll builds an XDR sentence carrying two angular transducers.
func PitchRoll(talker string, pitch, roll float64) Sentence {
	return Sentence{talker, "XDR", []string{
		"A", number(pitch), "D", "PTCH",
		"A", number(roll), "D", "ROLL",
	}}
}

// AirTemperature builds an MTA sentence in degrees Celsius.
func AirTemperature(talker string, celsius float64) Sentence {
	return Sentence{talker, "MTA", []string{number(celsius), "C"}}
}

// BatteryLevel builds a generic XDR sentence with the charge as a fraction
// of one.
func BatteryLevel(talker string, percent float64) Sentence {
	return Sentence{talker, "XDR", []string{"G", number(round2(percent / 100)), "", "BATT"}}
}

// BowSide returns "R" for wind from starboard, "L" for wind from port and
// "" for wind from dead ahead or dead astern.
func BowSide(angle float64) string {
	signed := wrap180(angle)
	switch {
	case signed == 0 || signed == 180:
		return ""
	case signed > 0:
		return "R"
	default:
		return "L"
	}
}

// wrap180 maps an angle in degrees into (-180, 180].
func wrap180(angle float64) float64 {
	a := math.Mod(angle, 360)
	if a > 180 {
		a -= 360
	} else if a <= -180 {
		a += 360
	}
	return a
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// number renders v in its shortest form, keeping a ".0" on integral values.
func number(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !math.IsInf(v, 0) && !math.IsNaN(v) {
		s += ".0"
	}
	return s
}
