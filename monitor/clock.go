package monitor

import "time"

// Clock abstracts the scheduler so the poll loop and the timed beam
// sequence can be driven by a fake in tests instead of wall time.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the monitor uses
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// SystemClock is the production Clock, backed by package time
type SystemClock struct{}

// Now returns time.Now
func (SystemClock) Now() time.Time { return time.Now() }

// After returns time.After(d)
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewTicker returns a wrapped time.Ticker
func (SystemClock) NewTicker(d time.Duration) Ticker {
	return sysTicker{t: time.NewTicker(d)}
}

type sysTicker struct {
	t *time.Ticker
}

func (s sysTicker) Chan() <-chan time.Time { return s.t.C }
func (s sysTicker) Stop()                  { s.t.Stop() }
