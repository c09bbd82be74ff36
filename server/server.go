// Package server contains shared plumbing for HTTP-wrapped devices.
package server

import (
	"encoding/json"
	"net/http"

	"goji.io"
	"goji.io/pat"
)

// RouteTable maps goji patterns to the handlers that serve them
type RouteTable map[goji.Pattern]http.HandlerFunc

// HTTPer is a type which can enumerate its HTTP routes
type HTTPer interface {
	// RT returns the route table, which may be mutated before binding
	RT() RouteTable
}

// Bind attaches every route in the table to a goji mux
func (rt RouteTable) Bind(mux *goji.Mux) {
	for p, h := range rt {
		mux.Handle(p, h)
	}
}

// Endpoints returns the URL patterns in the table as strings
func (rt RouteTable) Endpoints() []string {
	eps := make([]string, 0, len(rt))
	for p := range rt {
		if pp, ok := p.(*pat.Pattern); ok {
			eps = append(eps, pp.String())
		}
	}
	return eps
}

// FloatT is a json-tagged float payload, {"f64": value}
type FloatT struct {
	F64 float64 `json:"f64"`
}

// StrT is a json-tagged string payload, {"str": value}
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a json-tagged bool payload, {"bool": value}
type BoolT struct {
	Bool bool `json:"bool"`
}

// EncodeJSON writes v to the client as JSON with an OK status.  Encoding
// failures are reported as 500s.
func EncodeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
