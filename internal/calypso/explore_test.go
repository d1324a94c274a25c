package calypso

import (
	"context"
	"strings"
	"testing"

	"github.com/chaz8081/calypso-anemometer/internal/ble"
	"github.com/chaz8081/calypso-anemometer/internal/calypso/protocol"
)

func TestExploreContinuesPastFailures(t *testing.T) {
	logs := captureLogs(t)
	d, conn := connectedDevice(t)
	conn.services = []ble.Service{
		{
			UUID: "0000180a-0000-1000-8000-00805f9b34fb",
			Characteristics: []ble.Characteristic{
				{UUID: protocol.ManufacturerNameUUID, Properties: []string{"read"}},
				{UUID: protocol.ModelNumberUUID, Properties: []string{"read"}},
			},
		},
		{
			UUID: "0000180d-0000-1000-8000-00805f9b34fb",
			Characteristics: []ble.Characteristic{
				{
					UUID:       protocol.DataUUID,
					Properties: []string{"notify"},
					Descriptors: []ble.Descriptor{
						{UUID: "00002902-0000-1000-8000-00805f9b34fb", Handle: 13},
						{UUID: "00002901-0000-1000-8000-00805f9b34fb", Handle: 14},
					},
				},
			},
		},
	}
	// Model number is missing, so its read fails.
	conn.values[protocol.ManufacturerNameUUID] = []byte("Calypso Instruments")
	conn.descValues["00002901-0000-1000-8000-00805f9b34fb"] = []byte("data")

	survey, err := d.Explore(context.Background())
	if err != nil {
		t.Fatalf("Explore() error = %v", err)
	}
	if len(survey.Services) != 2 {
		t.Fatalf("got %d services, want 2", len(survey.Services))
	}

	info := survey.Services[0].Characteristics
	if string(info[0].Value) != "Calypso Instruments" || info[0].Error != "" {
		t.Errorf("manufacturer = %+v", info[0])
	}
	if info[1].Error == "" {
		t.Error("failed read should be recorded")
	}

	data := survey.Services[1].Characteristics[0]
	if data.Value != nil || data.Error != "" {
		t.Errorf("notify-only characteristic should not be read: %+v", data)
	}
	if len(data.Descriptors) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(data.Descriptors))
	}
	if data.Descriptors[0].Error == "" {
		t.Error("failed descriptor read should be recorded")
	}
	if string(data.Descriptors[1].Value) != "data" {
		t.Errorf("descriptor value = %q, want %q", data.Descriptors[1].Value, "data")
	}

	for _, msg := range []string{"Reading characteristic failed", "Reading descriptor failed"} {
		if !strings.Contains(logs.String(), msg) {
			t.Errorf("log output missing %q", msg)
		}
	}
	for _, uuid := range conn.reads {
		if uuid == protocol.DataUUID {
			t.Error("notify-only characteristic was read")
		}
	}
}
