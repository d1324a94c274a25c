package calypso

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/chaz8081/calypso-anemometer/internal/ble"
)

// Survey is the result of walking every service of the peripheral.
type Survey struct {
	Services []ServiceSurvey `json:"services"`
}

// JSON renders the survey as indented JSON. Values appear base64 encoded.
func (s Survey) JSON() string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}

type ServiceSurvey struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicSurvey `json:"characteristics"`
}

type CharacteristicSurvey struct {
	UUID        string             `json:"uuid"`
	Properties  []string           `json:"properties,omitempty"`
	Value       []byte             `json:"value,omitempty"`
	Error       string             `json:"error,omitempty"`
	Descriptors []DescriptorSurvey `json:"descriptors,omitempty"`
}

type DescriptorSurvey struct {
	UUID   string `json:"uuid"`
	Handle uint16 `json:"handle"`
	Value  []byte `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Explore enumerates all services, characteristics and descriptors and reads
// every readable one. A failed read is logged and recorded in the survey;
// only failing to list the services aborts the walk.
func (d *Device) Explore(ctx context.Context) (Survey, error) {
	conn, err := d.connection()
	if err != nil {
		return Survey{}, err
	}
	services, err := conn.Services(ctx)
	if err != nil {
		return Survey{}, classify(err, "Listing services failed")
	}

	var survey Survey
	for _, svc := range services {
		slog.Info("[CALYPSO] Found service", "uuid", svc.UUID)
		ss := ServiceSurvey{UUID: svc.UUID}
		for _, ch := range svc.Characteristics {
			ss.Characteristics = append(ss.Characteristics, exploreCharacteristic(ctx, conn, ch))
		}
		survey.Services = append(survey.Services, ss)
	}
	return survey, nil
}

func exploreCharacteristic(ctx context.Context, conn ble.Connection, ch ble.Characteristic) CharacteristicSurvey {
	slog.Info("[CALYPSO]   Found characteristic", "uuid", ch.UUID, "properties", ch.Properties)
	cs := CharacteristicSurvey{UUID: ch.UUID, Properties: ch.Properties}
	if ch.Readable() {
		value, err := conn.Read(ctx, ch.UUID)
		if err != nil {
			slog.Error("[CALYPSO]   Reading characteristic failed", "uuid", ch.UUID, "error", err)
			cs.Error = err.Error()
		} else {
			cs.Value = value
			slog.Info("[CALYPSO]   Value", "uuid", ch.UUID, "value", value)
		}
	}

	for _, desc := range ch.Descriptors {
		slog.Info("[CALYPSO]     Found descriptor", "uuid", desc.UUID, "handle", desc.Handle)
		ds := DescriptorSurvey{UUID: desc.UUID, Handle: desc.Handle}
		value, err := conn.ReadDescriptor(ctx, desc)
		if err != nil {
			slog.Error("[CALYPSO]     Reading descriptor failed", "uuid", desc.UUID, "error", err)
			ds.Error = err.Error()
		} else {
			ds.Value = value
			slog.Info("[CALYPSO]     Value", "uuid", desc.UUID, "value", value)
		}
		cs.Descriptors = append(cs.Descriptors, ds)
	}
	return cs
}
