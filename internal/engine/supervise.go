package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chaz8081/calypso-anemometer/internal/calypso"
)

// Backoff bounds the delay between two session runs.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff starts at one second and caps at 30 seconds.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 30 * time.Second}
}

// backoffDelay returns the delay before retry n, doubling from base and capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt > 30 {
		return max
	}
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}

// Supervise runs h on a fresh session until it returns without a device
// error or ctx is done. Device errors other than ErrAdapter are retried with
// capped exponential backoff; a session that stayed up longer than b.Max
// resets the backoff. newSession receives the last known address so
// rediscovery is skipped after the first success.
func Supervise(ctx context.Context, newSession func(address string) calypso.Session, h Handler, b Backoff) error {
	var address string
	for attempt := 0; ; attempt++ {
		s := newSession(address)
		started := time.Now()
		err := Run(ctx, s, h)
		if time.Since(started) > b.Max {
			attempt = 0
		}
		if a := s.Address(); a != "" {
			address = a
		}

		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, calypso.ErrAdapter) || !errors.Is(err, calypso.ErrDevice) {
			return err
		}

		delay := backoffDelay(attempt, b.Base, b.Max)
		slog.Warn("[ENGINE] session failed, retrying", "error", err, "attempt", attempt+1, "delay", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}
