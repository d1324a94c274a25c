// Package signalk renders anemometer readings as SignalK delta messages.
package signalk

import (
	"encoding/json"

	"github.com/chaz8081/calypso-anemometer/internal/calypso"
)

// SourceTag identifies this driver in the "$source" field of every update.
const SourceTag = "calypso-up10"

// Value is one path/value pair of a delta update.
type Value struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

type update struct {
	Source string  `json:"$source"`
	Values []Value `json:"values"`
}

type message struct {
	Updates []update `json:"updates"`
}

// Delta is a delta message for one reading. Name and location describe the
// device battery.
type Delta struct {
	Name     string
	Location string
	values   []Value
}

// NewDelta creates an empty delta for a battery with the given name and location.
func NewDelta(name, location string) *Delta {
	return &Delta{Name: name, Location: location}
}

// SetReading derives the update values from the adjusted reading.
func (d *Delta) SetReading(r calypso.Reading) {
	r = r.Adjusted()
	d.values = []Value{
		{"environment.outside.temperature", r.Temperature},
		{"environment.wind.angleApparent", r.WindDirection},
		{"environment.wind.speedApparent", r.WindSpeed},
		{"navigation.attitude.roll", r.Roll},
		{"navigation.attitude.pitch", r.Pitch},
		{"navigation.attitude.yaw", r.Heading},
		{"navigation.headingMagnetic", r.Heading},
		{"electrical.batteries.99.name", d.Name},
		{"electrical.batteries.99.location", d.Location},
		{"electrical.batteries.99.capacity.stateOfCharge", r.BatteryLevel},
	}
}

// Values returns the update values in wire order.
func (d *Delta) Values() []Value {
	out := make([]Value, len(d.values))
	copy(out, d.values)
	return out
}

// Render returns the JSON delta message.
func (d *Delta) Render() ([]byte, error) {
	return json.Marshal(message{Updates: []update{{Source: SourceTag, Values: d.values}}})
}
