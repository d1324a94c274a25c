//go:build linux || windows

package ble

import (
	"strings"

	"tinygo.org/x/bluetooth"
)

// parseAddress parses a MAC address such as aa:bb:cc:dd:ee:ff. Case is
// ignored; the stack itself only accepts upper-case hex.
func parseAddress(s string) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return bluetooth.Address{}, err
	}
	var addr bluetooth.Address
	addr.MAC = mac
	return addr, nil
}
