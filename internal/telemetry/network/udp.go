// Package network sends telemetry payloads as UDP datagrams.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"syscall"
)

// Mode selects unicast or broadcast delivery.
type Mode int

const (
	Unicast Mode = iota
	Broadcast
)

func (m Mode) String() string {
	if m == Broadcast {
		return "broadcast"
	}
	return "unicast"
}

// UDP is a fire-and-forget datagram sender bound to one destination.
type UDP struct {
	host string
	port int
	mode Mode
	conn net.PacketConn
	addr *net.UDPAddr
}

// NewUDP opens a datagram socket for host:port. Broadcast mode enables
// SO_BROADCAST and SO_REUSEPORT before the first send.
func NewUDP(host string, port int, mode Mode) (*UDP, error) {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("network: resolve %s:%d: %w", host, port, err)
	}

	lc := net.ListenConfig{}
	if mode == Broadcast {
		lc.Control = func(_, _ string, c syscall.RawConn) error {
			return setBroadcastOptions(c)
		}
	}
	conn, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("network: open %s socket: %w", mode, err)
	}

	return &UDP{host: host, port: port, mode: mode, conn: conn, addr: addr}, nil
}

// Send writes payload followed by "\n" as a single datagram.
func (u *UDP) Send(payload []byte) error {
	slog.Debug("[TELEMETRY] sending datagram", "target", u.String(), "payload", string(payload))
	buf := make([]byte, 0, len(payload)+1)
	buf = append(append(buf, payload...), '\n')
	if _, err := u.conn.WriteTo(buf, u.addr); err != nil {
		return fmt.Errorf("network: send to %s: %w", u, err)
	}
	return nil
}

// LocalAddr returns the address the socket is bound to.
func (u *UDP) LocalAddr() net.Addr { return u.conn.LocalAddr() }

func (u *UDP) Close() error { return u.conn.Close() }

func (u *UDP) String() string {
	return fmt.Sprintf("udp+%s://%s", u.mode, net.JoinHostPort(u.host, strconv.Itoa(u.port)))
}
