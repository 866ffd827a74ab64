package monitor

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// History holds the four parallel series accumulated by the poll loop:
// an elapsed-time label and the discharge current, beam current and
// chamber pressure at that tick.  The series always have equal length;
// a tick with no pressure value records NaN to keep them aligned.
type History struct {
	mu        sync.Mutex
	labels    []string
	discharge []float64
	beam      []float64
	pressure  []float64
}

// Append records one sample
func (h *History) Append(label string, discharge, beam, pressure float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.labels = append(h.labels, label)
	h.discharge = append(h.discharge, discharge)
	h.beam = append(h.beam, beam)
	h.pressure = append(h.pressure, pressure)
}

// Clear drops all samples
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.labels = nil
	h.discharge = nil
	h.beam = nil
	h.pressure = nil
}

// Len returns the number of samples
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.labels)
}

// Snapshot returns copies of the four series
func (h *History) Snapshot() (labels []string, discharge, beam, pressure []float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	labels = append([]string(nil), h.labels...)
	discharge = append([]float64(nil), h.discharge...)
	beam = append([]float64(nil), h.beam...)
	pressure = append([]float64(nil), h.pressure...)
	return labels, discharge, beam, pressure
}

// histJSON is the HTTP shape of a History; NaN pressures become nulls,
// which encoding/json cannot do for plain float64s.
type histJSON struct {
	Time      []string   `json:"time"`
	Discharge []float64  `json:"dischargeCurrentA"`
	Beam      []float64  `json:"beamCurrentMA"`
	Pressure  []*float64 `json:"pressureMbar"`
}

func (h *History) forJSON() histJSON {
	labels, discharge, beam, pressure := h.Snapshot()
	ptrs := make([]*float64, len(pressure))
	for i := range pressure {
		if !math.IsNaN(pressure[i]) {
			v := pressure[i]
			ptrs[i] = &v
		}
	}
	return histJSON{Time: labels, Discharge: discharge, Beam: beam, Pressure: ptrs}
}

// FormatElapsed renders a duration as the M:SS label used in the
// history and the data log
func FormatElapsed(d time.Duration) string {
	s := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
