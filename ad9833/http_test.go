package ad9833_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nasa-jpl/ddsgen/ad9833"

	"goji.io"
)

func wrappedDevice(t *testing.T) (*httptest.Server, *ad9833.MockWriter) {
	t.Helper()
	mock := &ad9833.MockWriter{}
	dev, err := ad9833.New(mock, 25e6)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Initialize(); err != nil {
		t.Fatal(err)
	}
	mux := goji.NewMux()
	ad9833.NewHTTPWrapper(dev).RT().Bind(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mock
}

func TestHTTPFrequencyAndState(t *testing.T) {
	srv, mock := wrappedDevice(t)
	resp, err := http.Post(srv.URL+"/frequency", "application/json",
		strings.NewReader(`{"f64": 1000, "chan": 0, "phase": 5}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if n := len(mock.Words); n != 7 { // 2 init words + 5 load words
		t.Errorf("expected 7 words on the bus, got %d", n)
	}

	resp, err = http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	s := ad9833.Status{}
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.Frequency != 1000 || s.Channel != 0 || s.Phase != 5 || s.Mode != "sine" {
		t.Errorf("unexpected state %+v", s)
	}
}

func TestHTTPWaveform(t *testing.T) {
	srv, mock := wrappedDevice(t)
	resp, err := http.Post(srv.URL+"/waveform", "application/json",
		strings.NewReader(`{"str": "triangle"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if last := mock.Words[len(mock.Words)-1]; last != 0x2002 {
		t.Errorf("expected triangle control word, got 0x%04X", last)
	}
}

func TestHTTPBadRequests(t *testing.T) {
	srv, _ := wrappedDevice(t)
	cases := []struct {
		route, body string
	}{
		{"/waveform", `{"str": "sawtooth"}`},
		{"/waveform", `not json`},
		{"/frequency", `{"f64": -5, "chan": 0}`},
		{"/frequency", `{"f64": 1000, "chan": 9}`},
	}
	for _, tc := range cases {
		resp, err := http.Post(srv.URL+tc.route, "application/json", strings.NewReader(tc.body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s %s: expected 400, got %d", tc.route, tc.body, resp.StatusCode)
		}
	}
}

func TestHTTPShutdown(t *testing.T) {
	srv, mock := wrappedDevice(t)
	resp, err := http.Post(srv.URL+"/shutdown", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if last := mock.Words[len(mock.Words)-1]; last != 0x0100 {
		t.Errorf("expected a reset word on shutdown, got 0x%04X", last)
	}
	// the chip is now retired; loads are refused
	resp, err = http.Post(srv.URL+"/frequency", "application/json",
		strings.NewReader(`{"f64": 1000, "chan": 0}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 after shutdown, got %d", resp.StatusCode)
	}
}
