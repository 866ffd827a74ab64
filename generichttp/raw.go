package generichttp

import (
	"encoding/json"
	"net/http"
)

// RawCommunicator passes one ASCII command through to the hardware and
// returns the raw reply
type RawCommunicator interface {
	Raw(string) (string, error)
}

// InjectRawComm adds a POST /raw route to rt, {"str": cmd} in,
// {"str": reply} out.  The route talks straight to the wire; interlocks
// and state tracking layered above the device do not see it.
func InjectRawComm(rt RouteTable, raw RawCommunicator) {
	rt[MethodPath{Method: http.MethodPost, Path: "/raw"}] = func(w http.ResponseWriter, r *http.Request) {
		var s StrT
		err := json.NewDecoder(r.Body).Decode(&s)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := raw.Raw(s.Str)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		EncodeJSON(w, StrT{Str: resp})
	}
}
