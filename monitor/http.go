package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ionbeam-lab/ionsrv/generichttp"
)

// HTTPWrapper exposes a Monitor over HTTP
type HTTPWrapper struct {
	*Monitor

	RouteTable generichttp.RouteTable
}

// sequenceBody is the JSON shape of POST /sequence; timings in seconds
// to match the bench's habit of thinking in seconds
type sequenceBody struct {
	OnTime  float64 `json:"onTimeS"`
	OffTime float64 `json:"offTimeS"`
	Periods int     `json:"periods"`
	Cadence float64 `json:"cadenceS"`
}

// NewHTTPWrapper returns a wrapper with the route table pre-configured
func NewHTTPWrapper(m *Monitor) HTTPWrapper {
	w := HTTPWrapper{Monitor: m}
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/history"}:    w.HTTPHistory,
		{Method: http.MethodPost, Path: "/history"}:   w.HTTPClear,
		{Method: http.MethodGet, Path: "/run"}:        generichttp.GetBool(w.running),
		{Method: http.MethodPost, Path: "/run"}:       generichttp.SetBool(w.setRunning),
		{Method: http.MethodGet, Path: "/pressure"}:   generichttp.GetFloat(w.pressure),
		{Method: http.MethodGet, Path: "/permitted"}:  generichttp.GetBool(w.sourcePermitted),
		{Method: http.MethodPost, Path: "/source"}:    generichttp.SetBool(w.setSource),
		{Method: http.MethodPost, Path: "/sequence"}:  w.HTTPSequence,
		{Method: http.MethodPost, Path: "/log"}:       w.HTTPStartLog,
		{Method: http.MethodPost, Path: "/log/close"}: w.HTTPCloseLog,
	}
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h HTTPWrapper) running() (bool, error) { return h.Active(), nil }

func (h HTTPWrapper) setRunning(on bool) error {
	if on {
		h.Start()
	} else {
		h.Stop()
	}
	return nil
}

func (h HTTPWrapper) pressure() (float64, error) {
	v, ok := h.LastPressure()
	if !ok {
		return 0, ErrInterlock
	}
	return v, nil
}

func (h HTTPWrapper) sourcePermitted() (bool, error) { return h.SourcePermitted(), nil }

func (h HTTPWrapper) setSource(on bool) error {
	if on {
		return h.EnableSource()
	}
	return h.DisableSource()
}

// HTTPHistory serves the four history series as JSON arrays; missing
// pressure samples are nulls
func (h HTTPWrapper) HTTPHistory(w http.ResponseWriter, r *http.Request) {
	generichttp.EncodeJSON(w, h.Monitor.History().forJSON())
}

// HTTPClear drops the accumulated history
func (h HTTPWrapper) HTTPClear(w http.ResponseWriter, r *http.Request) {
	h.Monitor.History().Clear()
	w.WriteHeader(http.StatusOK)
}

// HTTPSequence runs a timed beam sequence.  The request blocks until
// the sequence completes; closing the request cancels it.
func (h HTTPWrapper) HTTPSequence(w http.ResponseWriter, r *http.Request) {
	var body sequenceBody
	err := json.NewDecoder(r.Body).Decode(&body)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	seq := Sequence{
		OnTime:  time.Duration(body.OnTime * float64(time.Second)),
		OffTime: time.Duration(body.OffTime * float64(time.Second)),
		Periods: body.Periods,
		Cadence: time.Duration(body.Cadence * float64(time.Second)),
	}
	if err := h.RunSequence(r.Context(), seq); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPStartLog opens a data log session, {"str": path}
func (h HTTPWrapper) HTTPStartLog(w http.ResponseWriter, r *http.Request) {
	var s generichttp.StrT
	err := json.NewDecoder(r.Body).Decode(&s)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.StartLogging(s.Str); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPCloseLog finalizes the current data log session
func (h HTTPWrapper) HTTPCloseLog(w http.ResponseWriter, r *http.Request) {
	if err := h.CloseLog(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
