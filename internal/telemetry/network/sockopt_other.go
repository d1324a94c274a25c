//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package network

import "syscall"

// setBroadcastOptions is a no-op where the socket options are not available.
func setBroadcastOptions(syscall.RawConn) error { return nil }
