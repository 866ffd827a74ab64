// Package generichttp maps instrument methods onto HTTP routes with
// small JSON payloads, one wrapper type per device package.
package generichttp

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
)

// MethodPath is one HTTP route: a method and a path relative to the
// device's mount point
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps routes to their handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Bind attaches every route in the table to r
func (rt RouteTable) Bind(r chi.Router) {
	for mp, handler := range rt {
		r.Method(mp.Method, mp.Path, handler)
	}
}

// Endpoints returns the sorted "METHOD path" strings in the table
func (rt RouteTable) Endpoints() []string {
	eps := make([]string, 0, len(rt))
	for mp := range rt {
		eps = append(eps, mp.Method+" "+mp.Path)
	}
	sort.Strings(eps)
	return eps
}

// HTTPer is a device wrapper which exposes a route table
type HTTPer interface {
	RT() RouteTable
}

// FloatT is a JSON payload containing a single f64
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a JSON payload containing a single int
type IntT struct {
	Int int `json:"int"`
}

// StrT is a JSON payload containing a single string
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a JSON payload containing a single bool
type BoolT struct {
	Bool bool `json:"bool"`
}

// EncodeJSON writes v to w as JSON with a 200 status
func EncodeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetFloat adapts a float-getting method to a handler returning {"f64": v}
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		EncodeJSON(w, FloatT{F64: f})
	}
}

// SetFloat adapts a float-setting method to a handler consuming {"f64": v}
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f FloatT
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := fcn(f.F64); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetString adapts a string-getting method to a handler returning {"str": v}
func GetString(fcn func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		EncodeJSON(w, StrT{Str: s})
	}
}

// GetBool adapts a bool-getting method to a handler returning {"bool": v}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		EncodeJSON(w, BoolT{Bool: b})
	}
}

// SetBool adapts a bool-setting method to a handler consuming {"bool": v}
func SetBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var b BoolT
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := fcn(b.Bool); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
