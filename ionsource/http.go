package ionsource

import (
	"encoding/json"
	"net/http"

	"github.com/ionbeam-lab/ionsrv/generichttp"
)

// HTTPWrapper exposes a Controller over HTTP.  Note that the source and
// beam toggle routes here act on the device directly; the pressure
// interlock lives in the monitor package and only gates its own routes.
type HTTPWrapper struct {
	*Controller

	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a wrapper with the route table pre-configured
func NewHTTPWrapper(c *Controller) HTTPWrapper {
	w := HTTPWrapper{Controller: c}
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/status"}:     w.HTTPStatus,
		{Method: http.MethodGet, Path: "/history"}:    w.HTTPHistory,
		{Method: http.MethodGet, Path: "/id"}:         generichttp.GetString(c.ID),
		{Method: http.MethodGet, Path: "/source"}:     generichttp.GetBool(w.sourceOn),
		{Method: http.MethodPost, Path: "/source"}:    generichttp.SetBool(w.setSource),
		{Method: http.MethodGet, Path: "/beam"}:       generichttp.GetBool(w.beamOn),
		{Method: http.MethodPost, Path: "/beam"}:      generichttp.SetBool(w.setBeam),
		{Method: http.MethodPost, Path: "/setpoints"}: w.HTTPSetpoints,
	}
	generichttp.InjectRawComm(rt, c)
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h HTTPWrapper) sourceOn() (bool, error) { return h.SourceOn(), nil }
func (h HTTPWrapper) beamOn() (bool, error)   { return h.BeamOn(), nil }

func (h HTTPWrapper) setSource(on bool) error {
	if on {
		return h.EnableSource()
	}
	return h.DisableSource()
}

func (h HTTPWrapper) setBeam(on bool) error {
	if on {
		return h.EnableBeam()
	}
	return h.DisableBeam()
}

// HTTPStatus reads the supply status and returns the Reading as JSON
func (h HTTPWrapper) HTTPStatus(w http.ResponseWriter, r *http.Request) {
	rd, err := h.Status()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	generichttp.EncodeJSON(w, rd)
}

// HTTPHistory reads one internally-logged RH line and returns it as JSON
func (h HTTPWrapper) HTTPHistory(w http.ResponseWriter, r *http.Request) {
	tr, err := h.History()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	generichttp.EncodeJSON(w, tr)
}

// HTTPSetpoints applies a Setpoints JSON document to the supply
func (h HTTPWrapper) HTTPSetpoints(w http.ResponseWriter, r *http.Request) {
	var sp Setpoints
	err := json.NewDecoder(r.Body).Decode(&sp)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Apply(sp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
