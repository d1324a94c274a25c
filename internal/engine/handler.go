// Package engine drives a session: it reads once or subscribes, prints every
// reading and forwards it to telemetry, and re-runs the session after
// recoverable device failures.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/chaz8081/calypso-anemometer/internal/calypso"
)

// Submitter receives every reading, e.g. a telemetry adapter.
type Submitter interface {
	Submit(calypso.Reading) error
}

// Handler works with a connected session.
type Handler func(ctx context.Context, s calypso.Session) error

// Options configures NewHandler.
type Options struct {
	// Subscribe selects continuous readings instead of a single one.
	Subscribe bool
	// Rate is applied before subscribing. Zero leaves the device rate alone.
	Rate calypso.DataRate
	// Output receives each reading as JSON. Nil means stdout.
	Output io.Writer
	// Telemetry is optional.
	Telemetry Submitter
}

// linkWatcher is implemented by sessions that notice a dropped link.
type linkWatcher interface {
	Lost() <-chan struct{}
}

// unsubscribeTimeout bounds cleanup after the caller's context is gone.
const unsubscribeTimeout = 5 * time.Second

// NewHandler builds the handler for one-shot or continuous reading.
func NewHandler(opts Options) Handler {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	var mu sync.Mutex
	process := func(r calypso.Reading) {
		mu.Lock()
		fmt.Fprintln(out, r.JSON())
		mu.Unlock()
		if opts.Telemetry != nil {
			if err := opts.Telemetry.Submit(r); err != nil {
				slog.Error("[ENGINE] telemetry submit failed", "error", err)
			}
		}
	}

	return func(ctx context.Context, s calypso.Session) error {
		if !opts.Subscribe {
			r, err := s.GetReading(ctx)
			if err != nil {
				return err
			}
			process(r)
			return nil
		}

		if opts.Rate != 0 {
			slog.Info("[ENGINE] Setting device data rate", "rate", opts.Rate)
			if err := s.SetDatarate(ctx, opts.Rate); err != nil {
				return err
			}
		}

		if err := s.SubscribeReading(ctx, process); err != nil {
			return err
		}
		notifySystemd(sdReady)
		defer notifySystemd(sdStopping)
		defer func() {
			cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), unsubscribeTimeout)
			defer cancel()
			if err := s.UnsubscribeReading(cleanup); err != nil {
				slog.Warn("[ENGINE] unsubscribe failed", "error", err)
			}
		}()

		var lost <-chan struct{}
		if w, ok := s.(linkWatcher); ok {
			lost = w.Lost()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-lost:
			return &calypso.Error{Kind: calypso.KindConversation, Msg: "Connection to device lost"}
		}
	}
}

// Run connects the session, runs h and disconnects.
func Run(ctx context.Context, s calypso.Session, h Handler) error {
	return calypso.With(ctx, s, h)
}
