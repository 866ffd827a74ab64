package maxigauge

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/ionbeam-lab/ionsrv/generichttp"
)

// HTTPWrapper exposes a Sensor over HTTP
type HTTPWrapper struct {
	*Sensor

	// DefaultChannel is the channel served by the bare /pressure route
	DefaultChannel int

	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a wrapper with the route table pre-configured
func NewHTTPWrapper(s *Sensor, defaultChannel int) HTTPWrapper {
	w := HTTPWrapper{Sensor: s, DefaultChannel: defaultChannel}
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/pressure"}:      w.HTTPPressureDefault,
		{Method: http.MethodGet, Path: "/pressure/{ch}"}: w.HTTPPressure,
		{Method: http.MethodGet, Path: "/id"}:            generichttp.GetString(s.Identification),
	}
	generichttp.InjectRawComm(rt, s)
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// HTTPPressureDefault serves the default channel's pressure
func (h HTTPWrapper) HTTPPressureDefault(w http.ResponseWriter, r *http.Request) {
	h.servePressure(w, r, h.DefaultChannel)
}

// HTTPPressure serves one channel's pressure; ?unit=mbar|pa|torr selects
// the output unit, mbar by default
func (h HTTPWrapper) HTTPPressure(w http.ResponseWriter, r *http.Request) {
	ch, err := strconv.Atoi(chi.URLParam(r, "ch"))
	if err != nil {
		http.Error(w, "channel must be an integer", http.StatusBadRequest)
		return
	}
	h.servePressure(w, r, ch)
}

func (h HTTPWrapper) servePressure(w http.ResponseWriter, r *http.Request, ch int) {
	p, err := h.Pressure(ch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	switch unit := r.URL.Query().Get("unit"); unit {
	case "", "mbar":
	case "pa":
		p = float64(M2P(Millibar(p)))
	case "torr":
		p = float64(M2T(Millibar(p)))
	default:
		http.Error(w, fmt.Sprintf("unknown unit %q", unit), http.StatusBadRequest)
		return
	}
	generichttp.EncodeJSON(w, generichttp.FloatT{F64: p})
}
