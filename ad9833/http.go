package ad9833

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nasa-jpl/ddsgen/server"

	"goji.io/pat"
)

// FrequencyT is the json payload for a frequency load: the frequency in Hz,
// the target channel, and an optional phase offset in counts
type FrequencyT struct {
	F64     float64 `json:"f64"`
	Channel int     `json:"chan"`
	Phase   uint16  `json:"phase"`
}

// HTTPWrapper provides HTTP bindings on top of a controller.  Bind its
// route table to a mux to serve it.
type HTTPWrapper struct {
	// Dev is the wrapped controller
	Dev *AD9833

	// RouteTable maps goji patterns to handlers
	RouteTable server.RouteTable
}

// NewHTTPWrapper returns an HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(d *AD9833) *HTTPWrapper {
	w := &HTTPWrapper{Dev: d}
	w.RouteTable = server.RouteTable{
		pat.Get("/state"):      w.HTTPState,
		pat.Post("/frequency"): w.HTTPSetFrequency,
		pat.Post("/waveform"):  w.HTTPSetWaveform,
		pat.Post("/shutdown"):  w.HTTPShutdown,
	}
	return w
}

// RT satisfies server.HTTPer
func (h *HTTPWrapper) RT() server.RouteTable {
	return h.RouteTable
}

// httpStatus maps controller errors onto status codes: caller mistakes are
// 400s, bus trouble is a 500
func httpStatus(err error) int {
	var re *RangeError
	switch {
	case errors.As(err, &re), errors.Is(err, ErrNotReady), errors.Is(err, ErrBadChannel):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HTTPState returns the cached chip state for the active channel as JSON
func (h *HTTPWrapper) HTTPState(w http.ResponseWriter, r *http.Request) {
	server.EncodeJSON(w, h.Dev.Snapshot())
}

// HTTPSetFrequency loads a frequency from a FrequencyT body
func (h *HTTPWrapper) HTTPSetFrequency(w http.ResponseWriter, r *http.Request) {
	f := FrequencyT{}
	err := json.NewDecoder(r.Body).Decode(&f)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.Dev.SetFrequency(f.F64, Channel(f.Channel), WithPhase(f.Phase))
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPSetWaveform switches the wave shape from a {"str": "sine"} body
func (h *HTTPWrapper) HTTPSetWaveform(w http.ResponseWriter, r *http.Request) {
	s := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&s)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := ParseMode(s.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Dev.SetWaveformMode(mode); err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPShutdown resets the chip; the device serves no further operations
func (h *HTTPWrapper) HTTPShutdown(w http.ResponseWriter, r *http.Request) {
	h.Dev.Shutdown()
	w.WriteHeader(http.StatusOK)
}
