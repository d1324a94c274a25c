//go:build !linux

package ble

import "tinygo.org/x/bluetooth"

// hostAdapter returns the default adapter. Only BlueZ can select an adapter
// by name, so id is ignored on other platforms.
func hostAdapter(id string) *bluetooth.Adapter {
	return bluetooth.DefaultAdapter
}

func writeCharacteristic(ch *bluetooth.DeviceCharacteristic, data []byte, withResponse bool) (int, error) {
	if withResponse {
		return ch.Write(data)
	}
	return ch.WriteWithoutResponse(data)
}
