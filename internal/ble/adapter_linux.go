//go:build linux

package ble

import "tinygo.org/x/bluetooth"

// hostAdapter returns the BlueZ adapter with the given HCI name.
func hostAdapter(id string) *bluetooth.Adapter {
	return bluetooth.NewAdapter(id)
}

// writeCharacteristic writes through BlueZ, which picks the write type from
// the characteristic's flags. withResponse cannot be forced here.
func writeCharacteristic(ch *bluetooth.DeviceCharacteristic, data []byte, _ bool) (int, error) {
	return ch.WriteWithoutResponse(data)
}
