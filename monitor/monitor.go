/*Package monitor owns the measurement session for the ion source rig:
the poll loop, the in-memory history, the data log, the pressure-based
safety interlock, and the timed beam sequence.

The monitor runs two independent cadences.  The main loop (nominally one
second) reads the gauge and the source controller, appends to the
history, publishes metrics and writes the data log.  A faster pressure
loop (nominally 500 ms) reads only the gauge and gates source enable on
the chamber pressure being inside the configured band.  Both keep
running through device and parse failures; a bad cycle is reported and
skipped, never fatal.
*/
package monitor

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/ionbeam-lab/ionsrv/datalog"
	"github.com/ionbeam-lab/ionsrv/ionsource"
)

// Source is the slice of the ion source controller the monitor uses
type Source interface {
	Status() (ionsource.Reading, error)
	EnableSource() error
	DisableSource() error
	EnableBeam() error
	DisableBeam() error
	SourceOn() bool
	Connected() bool
	Close() error
}

// Gauge is the slice of the vacuum gauge the monitor uses
type Gauge interface {
	Pressure(channel int) (float64, error)
	Connected() bool
	Close() error
}

// SampleLogger receives every successful poll; satisfied by
// *datalog.Writer
type SampleLogger interface {
	WriteSample(elapsed time.Duration, discharge, beam, pressure float64) error
	Close() error
}

// Band is an inclusive pressure band in mbar
type Band struct {
	Min float64 `koanf:"Min" yaml:"Min"`
	Max float64 `koanf:"Max" yaml:"Max"`
}

// Contains reports whether v lies inside the band, endpoints included
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// ErrInterlock is returned when source enable is requested while the
// chamber pressure is unknown or outside the band
var ErrInterlock = errors.New("chamber pressure outside interlock band, source enable refused")

// ErrLogOpen is returned by StartLogging when a log session is already open
var ErrLogOpen = errors.New("a data log session is already open")

// Config assembles a Monitor.  Source is mandatory; everything else has
// a usable default.
type Config struct {
	Source Source
	Gauge  Gauge

	// GaugeChannel is the sensor the interlock and history use (1-6)
	GaugeChannel int

	// Interval is the main poll cadence
	Interval time.Duration

	// PressureInterval is the interlock poll cadence
	PressureInterval time.Duration

	// SequenceCadence is the force-read cadence used by beam sequences
	// that do not carry their own
	SequenceCadence time.Duration

	// Band is the pressure band inside which the source may be enabled
	Band Band

	// Clock substitutes the scheduler; nil means the system clock
	Clock Clock

	// Registry receives the monitor's metrics; nil means the default
	// prometheus registerer
	Registry prometheus.Registerer

	// Log receives poll failures and state transitions; nil means the
	// standard logger
	Log *logrus.Logger
}

// Monitor is one measurement session.  It replaces the pile of globals
// the bench script grew up with; every piece of state lives here and is
// reached through methods.
type Monitor struct {
	source  Source
	gauge   Gauge
	channel int

	interval         time.Duration
	pressureInterval time.Duration
	seqCadence       time.Duration
	band             Band
	clk              Clock
	log              *logrus.Entry
	hist             *History
	met              *metrics

	mu            sync.Mutex
	active        bool
	start         time.Time
	stopPoll      chan struct{}
	stopPressure  chan struct{}
	datalog       SampleLogger
	lastPressure  float64
	pressureValid bool
	permitted     bool
}

// New assembles a Monitor from cfg
func New(cfg Config) *Monitor {
	if cfg.GaugeChannel == 0 {
		cfg.GaugeChannel = 3
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	if cfg.PressureInterval == 0 {
		cfg.PressureInterval = 500 * time.Millisecond
	}
	if cfg.SequenceCadence == 0 {
		cfg.SequenceCadence = 500 * time.Millisecond
	}
	if cfg.Band == (Band{}) {
		cfg.Band = Band{Min: 3e-4, Max: 10e-4}
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Monitor{
		source:           cfg.Source,
		gauge:            cfg.Gauge,
		channel:          cfg.GaugeChannel,
		interval:         cfg.Interval,
		pressureInterval: cfg.PressureInterval,
		seqCadence:       cfg.SequenceCadence,
		band:             cfg.Band,
		clk:              cfg.Clock,
		log:              cfg.Log.WithField("component", "monitor"),
		hist:             &History{},
		met:              newMetrics(cfg.Registry),
	}
}

// History returns the session's history
func (m *Monitor) History() *History {
	return m.hist
}

// Active reports whether the main poll loop is running
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Start transitions the poll loop from idle to active and records the
// session start time.  Starting an active monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return
	}
	m.start = m.clk.Now()
	m.mu.Unlock()
	m.startLoop()
	m.log.Info("poll loop started")
}

// resume restarts the loop after a sequence without resetting the
// session start time, so elapsed labels stay continuous.
func (m *Monitor) resume() {
	m.startLoop()
	m.log.Info("poll loop resumed")
}

func (m *Monitor) startLoop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return
	}
	m.active = true
	m.stopPoll = make(chan struct{})
	go m.runLoop(m.stopPoll)
}

// Stop transitions the poll loop to idle.  Stopping an idle monitor is
// a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	m.active = false
	close(m.stopPoll)
	m.log.Info("poll loop stopped")
}

func (m *Monitor) runLoop(stop <-chan struct{}) {
	tick := m.clk.NewTicker(m.interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.Chan():
			m.Poll(false)
		case <-stop:
			return
		}
	}
}

// StartInterlock begins the pressure watch that gates source enable.
// It runs until Close, independent of the main loop's state.
func (m *Monitor) StartInterlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopPressure != nil {
		return
	}
	m.stopPressure = make(chan struct{})
	go m.runInterlock(m.stopPressure)
}

func (m *Monitor) runInterlock(stop <-chan struct{}) {
	tick := m.clk.NewTicker(m.pressureInterval)
	defer tick.Stop()
	for {
		select {
		case <-tick.Chan():
			m.pollPressure()
		case <-stop:
			return
		}
	}
}

// pollPressure runs one interlock tick: read the gauge and refresh the
// permitted flag.  An unreadable or absent gauge always locks out the
// source.
func (m *Monitor) pollPressure() {
	var (
		v   float64
		err error
	)
	if m.gauge == nil || !m.gauge.Connected() {
		err = errors.New("gauge not connected")
	} else {
		v, err = m.gauge.Pressure(m.channel)
	}
	m.mu.Lock()
	if err != nil {
		m.pressureValid = false
		m.permitted = false
	} else {
		m.lastPressure = v
		m.pressureValid = true
		m.permitted = m.band.Contains(v)
	}
	permitted := m.permitted
	m.mu.Unlock()
	if err != nil {
		m.log.WithError(err).Debug("interlock pressure read failed")
	} else {
		m.met.pressure.Set(v)
	}
	if permitted {
		m.met.permitted.Set(1)
	} else {
		m.met.permitted.Set(0)
	}
}

// SourcePermitted reports whether the last pressure reading allows the
// source to be enabled
func (m *Monitor) SourcePermitted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permitted
}

// LastPressure returns the most recent interlock pressure and whether
// it is valid
func (m *Monitor) LastPressure() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPressure, m.pressureValid
}

// EnableSource turns the source on, refusing while the interlock is not
// satisfied.  This gate only covers this path; raw device routes can
// still reach the hardware directly.
func (m *Monitor) EnableSource() error {
	if !m.SourcePermitted() {
		return ErrInterlock
	}
	return m.source.EnableSource()
}

// DisableSource turns the source off; never gated
func (m *Monitor) DisableSource() error {
	return m.source.DisableSource()
}

// Poll runs one tick of the main loop: gauge read (best effort), then,
// if the loop is active or the tick was force-invoked, a source status
// read appended to the history, metrics and the data log.  Failures are
// reported and the cycle is skipped; the loop survives them all.
func (m *Monitor) Poll(force bool) error {
	pressure := math.NaN()
	if m.gauge != nil && m.gauge.Connected() {
		v, err := m.gauge.Pressure(m.channel)
		if err != nil {
			m.log.WithError(err).Warn("gauge read failed")
		} else {
			pressure = v
			m.met.pressure.Set(v)
		}
	}

	if !m.Active() && !force {
		return nil
	}

	m.met.polls.Inc()
	r, err := m.source.Status()
	if err != nil {
		m.met.pollErrors.Inc()
		m.log.WithError(err).Warn("source status read failed")
		return err
	}

	m.mu.Lock()
	elapsed := m.clk.Now().Sub(m.start)
	lg := m.datalog
	m.mu.Unlock()

	m.hist.Append(FormatElapsed(elapsed), r.DischargeCurrent, r.BeamCurrent, pressure)
	m.met.discharge.Set(r.DischargeCurrent)
	m.met.beam.Set(r.BeamCurrent)

	if lg != nil {
		if err := lg.WriteSample(elapsed, r.DischargeCurrent, r.BeamCurrent, pressure); err != nil {
			m.log.WithError(err).Warn("data log write failed")
		}
	}
	return nil
}

// StartLogging opens a data log session at path.  One session may be
// open at a time.
func (m *Monitor) StartLogging(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.datalog != nil {
		return ErrLogOpen
	}
	w, err := datalog.New(path)
	if err != nil {
		return err
	}
	m.datalog = w
	m.log.WithField("path", path).Info("data logging started")
	return nil
}

// CloseLog finalizes the current data log session, if any
func (m *Monitor) CloseLog() error {
	m.mu.Lock()
	lg := m.datalog
	m.datalog = nil
	m.mu.Unlock()
	if lg == nil {
		return nil
	}
	return lg.Close()
}

// Close stops both loops and releases the log file and the device
// connections the session owns
func (m *Monitor) Close() error {
	m.Stop()
	m.mu.Lock()
	if m.stopPressure != nil {
		close(m.stopPressure)
		m.stopPressure = nil
	}
	m.mu.Unlock()
	err := m.CloseLog()
	if m.source != nil {
		err = multierr.Append(err, m.source.Close())
	}
	if m.gauge != nil {
		err = multierr.Append(err, m.gauge.Close())
	}
	return err
}
