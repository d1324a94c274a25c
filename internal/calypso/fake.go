package calypso

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// FakeAddress is the address a Fake reports after discovery.
const FakeAddress = "fake-ble-address"

// FakeMinimum and FakeMaximum bound every field of the readings a Fake
// produces.
var (
	FakeMinimum = Reading{WindSpeed: 0, WindDirection: 0, BatteryLevel: 0, Temperature: -100, Roll: -90, Pitch: -90, Heading: 0}
	FakeMaximum = Reading{WindSpeed: 40, WindDirection: 360, BatteryLevel: 100, Temperature: 100, Roll: 90, Pitch: 90, Heading: 360}
)

// Fake is a simulated device producing incrementing readings that wrap
// around per field.
type Fake struct {
	mu        sync.Mutex
	address   string
	rate      DataRate
	reading   *Reading
	sub       *fakeSubscription
}

// fakeSubscription is one background Stream.
type fakeSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	// delivering is set while the callback runs, so a stop issued from
	// inside the callback does not wait on itself.
	delivering atomic.Bool
}

// NewFake creates a simulated session. Settings are accepted for symmetry
// with NewDevice; only the address is used.
func NewFake(settings Settings) *Fake {
	return &Fake{address: settings.Address, rate: Rate4Hz}
}

// Compile-time check that Fake implements Session.
var _ Session = (*Fake)(nil)

func (f *Fake) Address() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.address
}

func (f *Fake) Discover(_ context.Context, force bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.address == "" || force {
		f.address = FakeAddress
	}
	return true, nil
}

// Connect resets the reading state to FakeMinimum.
func (f *Fake) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := FakeMinimum
	f.reading = &r
	slog.Info("[FAKE] connected", "address", f.address)
	return nil
}

func (f *Fake) Disconnect() {
	f.stopSubscription()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reading = nil
}

// Rate returns the configured data rate.
func (f *Fake) Rate() DataRate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

func (f *Fake) SetDatarate(_ context.Context, rate DataRate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = rate
	return nil
}

// ProduceReading advances every field by one, wrapping to its minimum once
// it exceeds its maximum.
func (f *Fake) ProduceReading() (Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reading == nil {
		return Reading{}, newError(KindConversation, nil, "Fake device is not connected")
	}
	r := f.reading
	r.WindSpeed = stepFloat(r.WindSpeed, FakeMinimum.WindSpeed, FakeMaximum.WindSpeed)
	r.WindDirection = step(r.WindDirection, FakeMinimum.WindDirection, FakeMaximum.WindDirection)
	r.BatteryLevel = step(r.BatteryLevel, FakeMinimum.BatteryLevel, FakeMaximum.BatteryLevel)
	r.Temperature = step(r.Temperature, FakeMinimum.Temperature, FakeMaximum.Temperature)
	r.Roll = step(r.Roll, FakeMinimum.Roll, FakeMaximum.Roll)
	r.Pitch = step(r.Pitch, FakeMinimum.Pitch, FakeMaximum.Pitch)
	r.Heading = step(r.Heading, FakeMinimum.Heading, FakeMaximum.Heading)
	return *r, nil
}

func step(v, min, max int) int {
	v++
	if v > max {
		return min
	}
	return v
}

func stepFloat(v, min, max float64) float64 {
	v++
	if v > max {
		return min
	}
	return v
}

func (f *Fake) GetReading(_ context.Context) (Reading, error) {
	slog.Info("[FAKE] Producing reading")
	return f.ProduceReading()
}

// Stream produces one reading per tick of the configured rate and hands it
// to fn until ctx is done. With runOnce it returns after the first reading.
func (f *Fake) Stream(ctx context.Context, fn func(Reading), runOnce bool) error {
	slog.Info("[FAKE] Subscribing to readings", "rate", f.Rate())
	ticker := time.NewTicker(f.Rate().Interval())
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		r, err := f.ProduceReading()
		if err != nil {
			return err
		}
		if fn != nil {
			fn(r)
		}
		if runOnce {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SubscribeReading runs Stream in the background until UnsubscribeReading,
// Disconnect or cancellation of ctx.
func (f *Fake) SubscribeReading(ctx context.Context, fn func(Reading)) error {
	f.stopSubscription()

	f.mu.Lock()
	if f.reading == nil {
		f.mu.Unlock()
		return newError(KindConversation, nil, "Fake device is not connected")
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &fakeSubscription{cancel: cancel, done: make(chan struct{})}
	f.sub = sub
	f.mu.Unlock()

	deliver := func(r Reading) {
		sub.delivering.Store(true)
		defer sub.delivering.Store(false)
		fn(r)
	}
	go func() {
		defer close(sub.done)
		if err := f.Stream(subCtx, deliver, false); err != nil {
			slog.Debug("[FAKE] stream stopped", "error", err)
		}
	}()
	return nil
}

func (f *Fake) UnsubscribeReading(_ context.Context) error {
	slog.Info("[FAKE] Unsubscribing from readings")
	f.stopSubscription()
	return nil
}

// stopSubscription cancels a running subscription and waits for its last
// delivery to finish. Called from within the callback it only cancels; the
// stream exits once the callback returns.
func (f *Fake) stopSubscription() {
	f.mu.Lock()
	sub := f.sub
	f.sub = nil
	f.mu.Unlock()
	if sub == nil {
		return
	}
	sub.cancel()
	if sub.delivering.Load() {
		return
	}
	<-sub.done
}
