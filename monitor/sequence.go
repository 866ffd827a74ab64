package monitor

import (
	"context"
	"fmt"
	"time"
)

// Sequence is a timed beam cycling run: Periods repetitions of beam-on
// for OnTime then beam-off for OffTime, with force-invoked polls at
// Cadence during both phases.
type Sequence struct {
	OnTime  time.Duration `json:"onTimeS" yaml:"OnTime"`
	OffTime time.Duration `json:"offTimeS" yaml:"OffTime"`
	Periods int           `json:"periods" yaml:"Periods"`

	// Cadence defaults to the monitor's configured sequence cadence
	// when zero
	Cadence time.Duration `json:"cadenceS" yaml:"Cadence"`
}

func (s Sequence) validate() error {
	if s.OnTime <= 0 || s.OffTime <= 0 {
		return fmt.Errorf("on and off durations must be positive, got %v / %v", s.OnTime, s.OffTime)
	}
	if s.Periods <= 0 {
		return fmt.Errorf("period count must be positive, got %d", s.Periods)
	}
	return nil
}

// RunSequence executes seq.  Preconditions (device connected, source
// on, positive timings) are checked before anything is written to the
// device.  The main poll loop is suspended for the duration and resumed
// afterward if it was active; data still accumulates through the forced
// polls.  Cancelling ctx stops the run between polls, with the beam
// commanded off on the way out.
func (m *Monitor) RunSequence(ctx context.Context, seq Sequence) error {
	if !m.source.Connected() {
		return fmt.Errorf("source controller is not connected")
	}
	if !m.source.SourceOn() {
		return fmt.Errorf("source must be on before a beam sequence")
	}
	if err := seq.validate(); err != nil {
		return err
	}
	if seq.Cadence == 0 {
		seq.Cadence = m.seqCadence
	}

	wasActive := m.Active()
	if wasActive {
		m.Stop()
		defer m.resume()
	}
	// a sequence may run before the loop was ever started; the forced
	// polls still need a session origin for their elapsed labels
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = m.clk.Now()
	}
	m.mu.Unlock()

	m.log.WithField("periods", seq.Periods).Info("beam sequence started")
	for i := 0; i < seq.Periods; i++ {
		if err := m.source.EnableBeam(); err != nil {
			return fmt.Errorf("period %d beam enable: %w", i+1, err)
		}
		if err := m.busyPoll(ctx, seq.OnTime, seq.Cadence); err != nil {
			m.source.DisableBeam()
			return err
		}
		if err := m.source.DisableBeam(); err != nil {
			return fmt.Errorf("period %d beam disable: %w", i+1, err)
		}
		if err := m.busyPoll(ctx, seq.OffTime, seq.Cadence); err != nil {
			return err
		}
	}
	m.met.sequences.Inc()
	m.log.Info("beam sequence complete")
	return nil
}

// busyPoll force-reads at the given cadence until d elapses or ctx is
// cancelled.  Poll failures are already reported inside Poll and do not
// end the phase.
func (m *Monitor) busyPoll(ctx context.Context, d, cadence time.Duration) error {
	deadline := m.clk.Now().Add(d)
	for m.clk.Now().Before(deadline) {
		// checked first so a cancelled context always wins over a
		// ready After channel in the select below
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		m.Poll(true)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clk.After(cadence):
		}
	}
	return nil
}
