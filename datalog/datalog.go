/*Package datalog appends ion source measurements to a plain-text file.

The format is a short header block followed by one line per sample:

	Ion Source Data Log
	Session: 5c0f9a6e-...
	Date: 2026-08-28
	Time: 14:03:55
	Columns: Time, Discharge Current (A), Beam Current (mA), Pressure (mbar)

	0:01, 0.22, 18, 0.00034

Files are opened in append mode so a re-used file accumulates sessions,
each under its own header.
*/
package datalog

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Writer owns one open log file.  One Writer exists per logging session;
// it is closed on explicit save or at shutdown.
type Writer struct {
	mu sync.Mutex
	f  *os.File

	// Session is the unique id written into this session's header
	Session string
}

// New opens (creating if needed) the log file at path and writes the
// session header
func New(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	w := &Writer{f: f, Session: uuid.NewString()}
	now := time.Now()
	_, err = fmt.Fprintf(f,
		"Ion Source Data Log\nSession: %s\nDate: %s\nTime: %s\nColumns: Time, Discharge Current (A), Beam Current (mA), Pressure (mbar)\n\n",
		w.Session, now.Format("2006-01-02"), now.Format("15:04:05"))
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// WriteSample appends one measurement line.  The elapsed time is since
// the poll loop's session start; a missing pressure (NaN) is recorded
// as NaN.
func (w *Writer) WriteSample(elapsed time.Duration, discharge, beam, pressure float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return os.ErrClosed
	}
	s := int(elapsed.Seconds())
	pstr := "NaN"
	if !math.IsNaN(pressure) {
		pstr = fmt.Sprintf("%g", pressure)
	}
	_, err := fmt.Fprintf(w.f, "%d:%02d, %g, %g, %s\n", s/60, s%60, discharge, beam, pstr)
	return err
}

// Close flushes and closes the file.  Further writes return os.ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
