package calypso

import (
	"context"
	"log/slog"
)

// Session is the contract shared by the BLE device and the simulated device.
// A session owns at most one connection and is not safe for concurrent use
// from several call sites.
type Session interface {
	// Address returns the peripheral address, or "" before discovery.
	Address() string
	// Discover looks for the device unless an address is already known and
	// force is false. It returns false, without error, when nothing was found.
	Discover(ctx context.Context, force bool) (bool, error)
	Connect(ctx context.Context) error
	// Disconnect is best-effort: failures are logged, never returned.
	Disconnect()
	GetReading(ctx context.Context) (Reading, error)
	// SubscribeReading delivers every reading to fn, inline and in order,
	// until UnsubscribeReading or Disconnect.
	SubscribeReading(ctx context.Context, fn func(Reading)) error
	UnsubscribeReading(ctx context.Context) error
	SetDatarate(ctx context.Context, rate DataRate) error
}

// With runs fn against a connected session. It discovers the device first
// when no address is known and disconnects on every exit path.
func With(ctx context.Context, s Session, fn func(context.Context, Session) error) error {
	if s.Address() == "" {
		found, err := s.Discover(ctx, false)
		if err != nil {
			return err
		}
		if !found {
			return newError(KindDiscovery, nil, "Unable to discover device Calypso UP10 anemometer")
		}
	}

	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer s.Disconnect()

	slog.Debug("[CALYPSO] session acquired", "address", s.Address())
	return fn(ctx, s)
}
