/*Package ionsource controls an ion source power supply over RS232.

The controller speaks one- and two-letter ASCII mnemonics terminated by a
carriage return.  Toggles are paired commands (S1/S0 for the source,
B1/B0 for the beam); RC pulls a comma-separated status line; setpoint
mnemonics take a numeric argument appended directly to the mnemonic.

The supply needs settle time between writes, so all commands are paced
through a rate limiter rather than ad hoc sleeps.
*/
package ionsource

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/ionbeam-lab/ionsrv/comm"
	"golang.org/x/time/rate"
)

// commandSettle is the minimum spacing between writes to the supply
const commandSettle = 500 * time.Millisecond

// ErrSourceOff is returned when the beam is commanded while the source
// is disabled; the command never reaches the device.
var ErrSourceOff = errors.New("source must be on before the beam may be enabled")

// Controller talks to the ion source power supply.  It tracks the
// source and beam toggle states, which only change through a completed
// command/acknowledge exchange.
type Controller struct {
	*comm.RemoteDevice

	pace *rate.Limiter

	mu       sync.Mutex
	sourceOn bool
	beamOn   bool
}

// NewController returns a controller for the supply at addr
func NewController(addr string, isSerial bool) *Controller {
	rd := comm.NewRemoteDevice(addr, isSerial, comm.CR, comm.CR)
	return &Controller{
		RemoteDevice: rd,
		pace:         rate.NewLimiter(rate.Every(commandSettle), 1),
	}
}

// command sends one mnemonic and consumes the echo/ack line
func (c *Controller) command(cmd string) error {
	c.pace.Wait(context.Background())
	_, err := c.SendRecv([]byte(cmd))
	return err
}

// query sends one mnemonic and returns the response line
func (c *Controller) query(cmd string) (string, error) {
	c.pace.Wait(context.Background())
	resp, err := c.SendRecv([]byte(cmd))
	return string(resp), err
}

// ID queries the controller's identification string
func (c *Controller) ID() (string, error) {
	return c.query("A")
}

// Raw passes one command through verbatim and returns the raw response.
// This bypasses the toggle-state tracking and the interlock above it.
func (c *Controller) Raw(cmd string) (string, error) {
	return c.query(cmd)
}

// Status reads and parses the current RC status line
func (c *Controller) Status() (Reading, error) {
	resp, err := c.query("RC")
	if err != nil {
		return Reading{}, err
	}
	return ParseReading(resp)
}

// History reads and parses one RH timestamped history line
func (c *Controller) History() (TimestampedReading, error) {
	resp, err := c.query("RH")
	if err != nil {
		return TimestampedReading{}, err
	}
	return ParseTimestamped(resp)
}

// EnableSource turns the ion source on (S1)
func (c *Controller) EnableSource() error {
	if err := c.command("S1"); err != nil {
		return err
	}
	c.mu.Lock()
	c.sourceOn = true
	c.mu.Unlock()
	return nil
}

// DisableSource turns the ion source off (S0).  The beam state is
// cleared too; the supply drops the beam with the source.
func (c *Controller) DisableSource() error {
	if err := c.command("S0"); err != nil {
		return err
	}
	c.mu.Lock()
	c.sourceOn = false
	c.beamOn = false
	c.mu.Unlock()
	return nil
}

// EnableBeam turns the beam on (B1).  It refuses, without any device
// write, while the source is off.
func (c *Controller) EnableBeam() error {
	if !c.SourceOn() {
		return ErrSourceOff
	}
	if err := c.command("B1"); err != nil {
		return err
	}
	c.mu.Lock()
	c.beamOn = true
	c.mu.Unlock()
	return nil
}

// DisableBeam turns the beam off (B0)
func (c *Controller) DisableBeam() error {
	if err := c.command("B0"); err != nil {
		return err
	}
	c.mu.Lock()
	c.beamOn = false
	c.mu.Unlock()
	return nil
}

// SourceOn reports the last acknowledged source toggle state
func (c *Controller) SourceOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sourceOn
}

// BeamOn reports the last acknowledged beam toggle state
func (c *Controller) BeamOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beamOn
}

// Setpoints are the tunable operating parameters of the supply.  Zero
// fields are skipped by Apply, so a partially populated struct adjusts
// only what it names.
type Setpoints struct {
	CathodeCurrent     float64 `json:"cathodeCurrentA" koanf:"CathodeCurrent" yaml:"CathodeCurrent"`             // CI, A
	AutoErrorLog       int     `json:"autoErrorLog" koanf:"AutoErrorLog" yaml:"AutoErrorLog"`                    // AE
	DischargeVoltage   float64 `json:"dischargeVoltageV" koanf:"DischargeVoltage" yaml:"DischargeVoltage"`       // DV, V
	BeamVoltage        float64 `json:"beamVoltageV" koanf:"BeamVoltage" yaml:"BeamVoltage"`                      // BV, V
	AcceleratorVoltage float64 `json:"acceleratorVoltageV" koanf:"AcceleratorVoltage" yaml:"AcceleratorVoltage"` // AV, V
	ABRatio            float64 `json:"abRatioPct" koanf:"ABRatio" yaml:"ABRatio"`                                // AB, percent
	AutoCathode        int     `json:"autoCathode" koanf:"AutoCathode" yaml:"AutoCathode"`                       // AC, 1 = on
	CathodeLimit       float64 `json:"cathodeLimitA" koanf:"CathodeLimit" yaml:"CathodeLimit"`                   // CL, A
	DischargeThreshold float64 `json:"dischargeThreshold" koanf:"DischargeThreshold" yaml:"DischargeThreshold"`  // DT
	BeamTolerance      float64 `json:"beamTolerancePct" koanf:"BeamTolerance" yaml:"BeamTolerance"`              // BE, percent
	BeamCurrent        float64 `json:"beamCurrentMA" koanf:"BeamCurrent" yaml:"BeamCurrent"`                     // BI, mA
	NeutralizerLimit   float64 `json:"neutralizerLimitA" koanf:"NeutralizerLimit" yaml:"NeutralizerLimit"`       // NL, A
	NeutralizerEnable  int     `json:"neutralizerEnable" koanf:"NeutralizerEnable" yaml:"NeutralizerEnable"`     // NE
}

// DefaultSetpoints returns the operating point used for routine runs
func DefaultSetpoints() Setpoints {
	return Setpoints{
		AutoErrorLog:       1,
		DischargeVoltage:   40,
		BeamVoltage:        400,
		AcceleratorVoltage: 60,
		ABRatio:            20,
		AutoCathode:        1,
		CathodeLimit:       8,
		DischargeThreshold: 0.16,
		BeamTolerance:      40,
		BeamCurrent:        18,
		NeutralizerLimit:   0.02,
		NeutralizerEnable:  1,
	}
}

// Apply writes each non-zero setpoint to the supply, in a fixed order.
// The first write error aborts the remainder.
func (c *Controller) Apply(sp Setpoints) error {
	type entry struct {
		mnemonic string
		value    float64
	}
	entries := []entry{
		{"CI", sp.CathodeCurrent},
		{"AE", float64(sp.AutoErrorLog)},
		{"DV", sp.DischargeVoltage},
		{"BV", sp.BeamVoltage},
		{"AV", sp.AcceleratorVoltage},
		{"AB", sp.ABRatio},
		{"AC", float64(sp.AutoCathode)},
		{"CL", sp.CathodeLimit},
		{"DT", sp.DischargeThreshold},
		{"BE", sp.BeamTolerance},
		{"BI", sp.BeamCurrent},
		{"NL", sp.NeutralizerLimit},
		{"NE", float64(sp.NeutralizerEnable)},
	}
	for _, e := range entries {
		if e.value == 0 {
			continue
		}
		cmd := e.mnemonic + strconv.FormatFloat(e.value, 'g', -1, 64)
		if err := c.command(cmd); err != nil {
			return err
		}
	}
	return nil
}
