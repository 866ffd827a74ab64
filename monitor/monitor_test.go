package monitor

import (
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ionbeam-lab/ionsrv/ionsource"
)

// fakeClock advances instantly: Now returns the accumulated time and
// After steps it forward before firing, so busy-poll phases run in
// simulated time.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.t = c.t.Add(d)
	now := c.t
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeTicker struct{ ch chan time.Time }

func (f fakeTicker) Chan() <-chan time.Time { return f.ch }
func (f fakeTicker) Stop()                  {}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	return fakeTicker{ch: make(chan time.Time)}
}

// fakeSource scripts the ion source controller
type fakeSource struct {
	mu        sync.Mutex
	connected bool
	sourceOn  bool
	reading   ionsource.Reading
	statusErr error
	commands  []string
}

func (f *fakeSource) Status() (ionsource.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return ionsource.Reading{}, f.statusErr
	}
	return f.reading, nil
}

func (f *fakeSource) record(cmd string) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
}

func (f *fakeSource) EnableSource() error {
	f.record("S1")
	f.mu.Lock()
	f.sourceOn = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) DisableSource() error {
	f.record("S0")
	f.mu.Lock()
	f.sourceOn = false
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) EnableBeam() error {
	f.mu.Lock()
	on := f.sourceOn
	f.mu.Unlock()
	if !on {
		return ionsource.ErrSourceOff
	}
	f.record("B1")
	return nil
}

func (f *fakeSource) DisableBeam() error {
	f.record("B0")
	return nil
}

func (f *fakeSource) SourceOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sourceOn
}

func (f *fakeSource) Connected() bool { return f.connected }
func (f *fakeSource) Close() error    { return nil }

// fakeGauge scripts the vacuum gauge
type fakeGauge struct {
	connected bool
	pressure  float64
	err       error
}

func (f *fakeGauge) Pressure(channel int) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.pressure, nil
}

func (f *fakeGauge) Connected() bool { return f.connected }
func (f *fakeGauge) Close() error    { return nil }

func quietLogger() *logrus.Logger {
	lg := logrus.New()
	lg.SetLevel(logrus.PanicLevel)
	return lg
}

func testMonitor(src *fakeSource, g *fakeGauge) (*Monitor, *fakeClock) {
	clk := newFakeClock()
	m := New(Config{
		Source:   src,
		Gauge:    g,
		Clock:    clk,
		Registry: prometheus.NewRegistry(),
		Log:      quietLogger(),
	})
	return m, clk
}

func TestHistoryStaysParallel(t *testing.T) {
	src := &fakeSource{connected: true, reading: ionsource.Reading{DischargeCurrent: 0.2, BeamCurrent: 18}}
	g := &fakeGauge{connected: true, pressure: 5e-4}
	m, clk := testMonitor(src, g)
	m.startLoop() // mark active without spinning the ticker
	defer m.Stop()

	for i := 0; i < 5; i++ {
		clk.Advance(time.Second)
		require.NoError(t, m.Poll(false))
	}
	labels, dc, bc, p := m.History().Snapshot()
	assert.Len(t, labels, 5)
	assert.Len(t, dc, 5)
	assert.Len(t, bc, 5)
	assert.Len(t, p, 5)
	assert.Equal(t, 0.2, dc[0])
	assert.Equal(t, 18.0, bc[0])
	assert.Equal(t, 5e-4, p[0])

	m.History().Clear()
	labels, dc, bc, p = m.History().Snapshot()
	assert.Empty(t, labels)
	assert.Empty(t, dc)
	assert.Empty(t, bc)
	assert.Empty(t, p)
}

func TestHistoryParallelWhenGaugeDown(t *testing.T) {
	src := &fakeSource{connected: true}
	g := &fakeGauge{connected: false}
	m, _ := testMonitor(src, g)
	m.startLoop()
	defer m.Stop()

	require.NoError(t, m.Poll(false))
	labels, _, _, p := m.History().Snapshot()
	require.Len(t, labels, 1)
	require.Len(t, p, 1)
	assert.True(t, math.IsNaN(p[0]), "missing pressure should be NaN")
}

func TestIdlePollSkipsSource(t *testing.T) {
	src := &fakeSource{connected: true}
	g := &fakeGauge{connected: true, pressure: 5e-4}
	m, _ := testMonitor(src, g)

	require.NoError(t, m.Poll(false))
	assert.Zero(t, m.History().Len(), "idle tick must not record")

	require.NoError(t, m.Poll(true))
	assert.Equal(t, 1, m.History().Len(), "forced tick must record even when idle")
}

func TestPollSurvivesSourceFailure(t *testing.T) {
	src := &fakeSource{connected: true, statusErr: assert.AnError}
	g := &fakeGauge{connected: true, pressure: 5e-4}
	m, _ := testMonitor(src, g)
	m.startLoop()
	defer m.Stop()

	err := m.Poll(false)
	assert.Error(t, err)
	assert.Zero(t, m.History().Len(), "failed poll must not record")
	assert.True(t, m.Active(), "loop stays active through failures")
}

func TestElapsedLabels(t *testing.T) {
	src := &fakeSource{connected: true}
	g := &fakeGauge{connected: true, pressure: 5e-4}
	m, clk := testMonitor(src, g)
	m.Start()
	defer m.Stop()

	clk.Advance(65 * time.Second)
	require.NoError(t, m.Poll(true))
	labels, _, _, _ := m.History().Snapshot()
	require.Len(t, labels, 1)
	assert.Equal(t, "1:05", labels[0])
}

func TestInterlockBand(t *testing.T) {
	cases := []struct {
		name      string
		pressure  float64
		err       error
		connected bool
		permitted bool
	}{
		{"inside band", 5e-4, nil, true, true},
		{"lower edge inclusive", 3e-4, nil, true, true},
		{"upper edge inclusive", 10e-4, nil, true, true},
		{"below band", 2.9e-4, nil, true, false},
		{"above band", 1.1e-3, nil, true, false},
		{"read failure", 5e-4, assert.AnError, true, false},
		{"disconnected", 5e-4, nil, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := &fakeSource{connected: true}
			g := &fakeGauge{connected: tc.connected, pressure: tc.pressure, err: tc.err}
			m, _ := testMonitor(src, g)
			m.pollPressure()
			assert.Equal(t, tc.permitted, m.SourcePermitted())
		})
	}
}

func TestInterlockGatesEnable(t *testing.T) {
	src := &fakeSource{connected: true}
	g := &fakeGauge{connected: true, pressure: 1e-2} // way above band
	m, _ := testMonitor(src, g)
	m.pollPressure()

	err := m.EnableSource()
	require.ErrorIs(t, err, ErrInterlock)
	assert.Empty(t, src.commands, "no command may reach the device while locked out")

	g.pressure = 5e-4
	m.pollPressure()
	require.NoError(t, m.EnableSource())
	assert.Equal(t, []string{"S1"}, src.commands)

	// disable is never gated
	g.pressure = 1e-2
	m.pollPressure()
	require.NoError(t, m.DisableSource())
}

func TestStartStopIdempotent(t *testing.T) {
	src := &fakeSource{connected: true}
	m, _ := testMonitor(src, &fakeGauge{})
	assert.False(t, m.Active())
	m.Start()
	m.Start()
	assert.True(t, m.Active())
	m.Stop()
	m.Stop()
	assert.False(t, m.Active())
}

func TestLoggingOneSessionAtATime(t *testing.T) {
	src := &fakeSource{connected: true}
	m, _ := testMonitor(src, &fakeGauge{connected: true, pressure: 5e-4})

	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, m.StartLogging(path))
	assert.ErrorIs(t, m.StartLogging(path), ErrLogOpen)

	require.NoError(t, m.CloseLog())
	require.NoError(t, m.CloseLog(), "closing with no session open is a no-op")
	require.NoError(t, m.StartLogging(filepath.Join(t.TempDir(), "again.log")))
	require.NoError(t, m.CloseLog())
}

func TestCloseReleasesEverything(t *testing.T) {
	src := &fakeSource{connected: true}
	m, _ := testMonitor(src, &fakeGauge{connected: true})
	m.Start()
	m.StartInterlock()
	require.NoError(t, m.Close())
	assert.False(t, m.Active())
}
