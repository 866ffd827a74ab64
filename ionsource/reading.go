package ionsource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ModeUnknown is the power supply mode reported when the controller's
// status line omits or blanks the mode field.  The field is always an
// int; there is no textual sentinel.
const ModeUnknown = -1

// ErrEmptyResponse is returned by ParseReading for a blank status line
var ErrEmptyResponse = errors.New("empty status response")

// Reading is one parsed RC status line from the controller.  Fields the
// device did not send are zero; see ModeUnknown for the mode field.
type Reading struct {
	CathodeCurrent     float64 `json:"cathodeCurrentA"`
	DischargeCurrent   float64 `json:"dischargeCurrentA"`
	DischargeVoltage   float64 `json:"dischargeVoltageV"`
	BeamCurrent        float64 `json:"beamCurrentMA"`
	BeamVoltage        float64 `json:"beamVoltageV"`
	AcceleratorCurrent float64 `json:"acceleratorCurrentMA"`
	AcceleratorVoltage float64 `json:"acceleratorVoltageV"`
	EmissionCurrent    float64 `json:"emissionCurrentMA"`
	NeutralizerCurrent float64 `json:"neutralizerCurrentA"`
	HCKeeperVoltage    float64 `json:"hcKeeperVoltageV"`
	HCNKeeperVoltage   float64 `json:"hcnKeeperVoltageV"`
	FatalError         int     `json:"fatalError"`
	Mode               int     `json:"mode"`
}

// safeFloat parses one numeric field from the controller.  The supply
// sometimes drops the leading digit of a mantissa and emits a bare
// exponent ("E-04"); a reference digit of 1 is prepended before
// conversion.  Unparseable fields come back as zero.
func safeFloat(s string) float64 {
	if strings.HasPrefix(s, "E") || strings.HasPrefix(s, "e") {
		s = "1" + s
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// cleanStatus strips the command echo, EOT byte, line endings and spaces
// from a raw RC response.
func cleanStatus(raw string) string {
	r := strings.NewReplacer("\n", "", "\r", "", "\x04", "", " ", "")
	s := strings.TrimSpace(r.Replace(raw))
	s = strings.TrimPrefix(s, "RC")
	return strings.TrimSpace(s)
}

// ParseReading converts one compact-format status line into a Reading.
// Short lines are tolerated; missing numeric fields default to zero and
// a missing mode field to ModeUnknown.  Only a fully blank line is an
// error, so a malformed cycle is skipped without killing the poll loop.
func ParseReading(raw string) (Reading, error) {
	s := cleanStatus(raw)
	if s == "" {
		return Reading{}, ErrEmptyResponse
	}
	fields := strings.Split(s, ",")
	at := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	r := Reading{
		CathodeCurrent:     safeFloat(at(0)),
		DischargeCurrent:   safeFloat(at(1)),
		DischargeVoltage:   safeFloat(at(2)),
		BeamCurrent:        safeFloat(at(3)),
		BeamVoltage:        safeFloat(at(4)),
		AcceleratorCurrent: safeFloat(at(5)),
		AcceleratorVoltage: safeFloat(at(6)),
		EmissionCurrent:    safeFloat(at(7)),
		NeutralizerCurrent: safeFloat(at(8)),
		HCKeeperVoltage:    safeFloat(at(9)),
		HCNKeeperVoltage:   safeFloat(at(10)),
		Mode:               ModeUnknown,
	}
	if v, err := strconv.Atoi(at(11)); err == nil {
		r.FatalError = v
	}
	if f := at(12); f != "" {
		if v, err := strconv.Atoi(f); err == nil {
			r.Mode = v
		}
	}
	return r, nil
}

// TimestampedReading is one parsed RH history line; the controller logs
// these internally with its own wall clock.
type TimestampedReading struct {
	Timestamp          string  `json:"timestamp"` // HH:MM:SS per the controller clock
	CathodeCurrent     float64 `json:"cathodeCurrentA"`
	DischargeCurrent   float64 `json:"dischargeCurrentA"`
	DischargeVoltage   float64 `json:"dischargeVoltageV"`
	BeamCurrent        int     `json:"beamCurrentMA"`
	BeamVoltage        int     `json:"beamVoltageV"`
	AcceleratorVoltage int     `json:"acceleratorVoltageV"`
	AcceleratorCurrent int     `json:"acceleratorCurrentMA"`
	EmissionCurrent    int     `json:"emissionCurrentMA"`
	NeutralizerCurrent float64 `json:"neutralizerCurrentA"`
}

// ParseTimestamped converts one space-delimited RH history line into a
// TimestampedReading.  Unlike ParseReading, this format is fixed-width
// in field count; a short or non-numeric line is an error.
func ParseTimestamped(raw string) (TimestampedReading, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) < 10 {
		return TimestampedReading{}, fmt.Errorf("RH line has %d fields, want 10", len(fields))
	}
	clock := strings.Split(fields[0], ":")
	if len(clock) != 3 {
		return TimestampedReading{}, fmt.Errorf("malformed RH timestamp %q", fields[0])
	}
	var (
		tr  TimestampedReading
		err error
	)
	tr.Timestamp = fields[0]
	parseF := func(s string, dst *float64) {
		if err != nil {
			return
		}
		var v float64
		v, err = strconv.ParseFloat(s, 64)
		*dst = v
	}
	parseI := func(s string, dst *int) {
		if err != nil {
			return
		}
		var v int
		v, err = strconv.Atoi(s)
		*dst = v
	}
	parseF(fields[1], &tr.CathodeCurrent)
	parseF(fields[2], &tr.DischargeCurrent)
	parseF(fields[3], &tr.DischargeVoltage)
	parseI(fields[4], &tr.BeamCurrent)
	parseI(fields[5], &tr.BeamVoltage)
	parseI(fields[6], &tr.AcceleratorVoltage)
	parseI(fields[7], &tr.AcceleratorCurrent)
	parseI(fields[8], &tr.EmissionCurrent)
	parseF(fields[9], &tr.NeutralizerCurrent)
	if err != nil {
		return TimestampedReading{}, fmt.Errorf("malformed RH line: %w", err)
	}
	return tr, nil
}
