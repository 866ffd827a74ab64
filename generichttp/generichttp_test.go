package generichttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
)

func TestBindAndEndpoints(t *testing.T) {
	rt := RouteTable{
		MethodPath{http.MethodGet, "/status"}: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
		MethodPath{http.MethodPost, "/source"}: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	}
	r := chi.NewRouter()
	rt.Bind(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /status returned %d, want 200", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/source", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on a POST-only route returned %d, want 405", w.Code)
	}

	eps := rt.Endpoints()
	want := []string{"GET /status", "POST /source"}
	if len(eps) != len(want) {
		t.Fatalf("Endpoints returned %d entries, want %d", len(eps), len(want))
	}
	for i := range want {
		if eps[i] != want[i] {
			t.Errorf("Endpoints[%d] = %q, want %q", i, eps[i], want[i])
		}
	}
}

func TestGetFloat(t *testing.T) {
	h := GetFloat(func() (float64, error) { return 3.4e-4, nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
	var f FloatT
	if err := json.NewDecoder(w.Body).Decode(&f); err != nil {
		t.Fatal(err)
	}
	if f.F64 != 3.4e-4 {
		t.Errorf("got %g, want 3.4e-4", f.F64)
	}
}

func TestGetFloatError(t *testing.T) {
	h := GetFloat(func() (float64, error) { return 0, errors.New("device unreachable") })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status %d, want 500", w.Code)
	}
}

func TestSetBool(t *testing.T) {
	var got bool
	h := SetBool(func(b bool) error { got = b; return nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bool": true}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
	if !got {
		t.Error("fcn did not receive true")
	}
}

func TestSetFloatBadBody(t *testing.T) {
	h := SetFloat(func(float64) error { t.Error("fcn must not run on a bad body"); return nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", w.Code)
	}
}
