package nmea0183

import (
	"strings"

	"github.com/chaz8081/calypso-anemometer/internal/calypso"
)

// Envelope holds the sentences derived from one reading.
type Envelope struct {
	Talker    string
	Sentences []Sentence
}

// NewEnvelope creates an empty envelope. An empty talker selects DefaultTalker.
func NewEnvelope(talker string) *Envelope {
	if talker == "" {
		talker = DefaultTalker
	}
	return &Envelope{Talker: talker}
}

// SetReading replaces the sentences with those derived from the adjusted reading.
func (e *Envelope) SetReading(r calypso.Reading) {
	r = r.Adjusted()
	e.Sentences = []Sentence{
		HeadingTrue(e.Talker, float64(r.Heading)),
		RelativeWind(e.Talker, float64(r.WindDirection), r.WindSpeed),
		PitchRoll(e.Talker, float64(r.Pitch), float64(r.Roll)),
		AirTemperature(e.Talker, float64(r.Temperature)),
		BatteryLevel(e.Talker, float64(r.BatteryLevel)),
	}
}

// Lines renders every sentence.
func (e *Envelope) Lines() []string {
	out := make([]string, len(e.Sentences))
	for i, s := range e.Sentences {
		out[i] = s.Render()
	}
	return out
}

// Render joins all sentences with "\n".
func (e *Envelope) Render() ([]byte, error) {
	return []byte(strings.Join(e.Lines(), "\n")), nil
}
