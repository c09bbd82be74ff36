package ad9833

import (
	"errors"
	"math"
	"testing"
)

const testClock = 25e6

func readyDevice(t *testing.T) (*AD9833, *MockWriter) {
	t.Helper()
	mock := &MockWriter{}
	dev, err := New(mock, testClock)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Initialize(); err != nil {
		t.Fatal(err)
	}
	return dev, mock
}

func expectWords(t *testing.T, got, want []uint16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d words, got %d: % 04X", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("word %d: expected 0x%04X got 0x%04X", i, want[i], got[i])
		}
	}
}

func TestNewRejectsBadClock(t *testing.T) {
	for _, clock := range []float64{0, -25e6} {
		if _, err := New(&MockWriter{}, clock); !errors.Is(err, ErrBadClock) {
			t.Errorf("clock %g: expected ErrBadClock, got %v", clock, err)
		}
	}
}

func TestInitializeSequence(t *testing.T) {
	_, mock := readyDevice(t)
	// reset asserted, then sine/channel 0 with reset cleared
	expectWords(t, mock.Words, []uint16{0x0100, 0x2000})
}

func TestInitializeSurfacesPartialFailure(t *testing.T) {
	mock := &MockWriter{FailOn: 2}
	dev, err := New(mock, testClock)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Initialize(); err == nil {
		t.Fatal("expected a failed second write to surface from Initialize")
	}
	// the device must not act initialized
	if err := dev.SetWaveformMode(Square); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady after failed init, got %v", err)
	}
}

func TestOperationsRequireInitialize(t *testing.T) {
	dev, err := New(&MockWriter{}, testClock)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.SetFrequency(1000, Channel0); !errors.Is(err, ErrNotReady) {
		t.Errorf("SetFrequency before init: expected ErrNotReady, got %v", err)
	}
	if err := dev.SetWaveformMode(Triangle); !errors.Is(err, ErrNotReady) {
		t.Errorf("SetWaveformMode before init: expected ErrNotReady, got %v", err)
	}
}

// The exact bus traffic for the common bench interaction: initialize, switch
// to square, load 5 kHz on channel 0.  The mode written by SetWaveformMode
// is the current mode by the time SetFrequency runs, so the square flags ride
// in both the reset-qualified and final control words of the load sequence.
func TestModeThenFrequencyInterleaving(t *testing.T) {
	dev, mock := readyDevice(t)
	if err := dev.SetWaveformMode(Square); err != nil {
		t.Fatal(err)
	}
	if err := dev.SetFrequency(5000, Channel0); err != nil {
		t.Fatal(err)
	}
	// tuning word for 5 kHz at 25 MHz: round(5000 * 2^28 / 25e6) = 53687
	expectWords(t, mock.Words, []uint16{
		0x0100,          // init: reset
		0x2000,          // init: B28 | sine, channel 0
		0x2020,          // B28 | square
		0x2120,          // reset | B28 | square: ready to load
		0x4000 | 0x11B7, // FREQ0 LSB half, 53687 & 0x3FFF
		0x4000 | 0x0003, // FREQ0 MSB half, 53687 >> 14
		0xC000,          // PHASE0, zero offset
		0x2020,          // B28 | square: output enabled
	})
	if dev.Mode() != Square {
		t.Errorf("expected cached mode square, got %v", dev.Mode())
	}
	if dev.Frequency(Channel0) != 5000 {
		t.Errorf("expected cached frequency 5000, got %g", dev.Frequency(Channel0))
	}
}

func TestSetFrequencyChannel1(t *testing.T) {
	dev, mock := readyDevice(t)
	if err := dev.SetFrequency(1000, Channel1, WithPhase(123)); err != nil {
		t.Fatal(err)
	}
	// tuning word 10737; channel 1 prefixes and FSELECT/PSELECT in control
	expectWords(t, mock.Words[2:], []uint16{
		0x0100 | 0x2C00, // reset | B28 | FSELECT | PSELECT
		0x8000 | 10737,
		0x8000 | 0,
		0xE000 | 123,
		0x2C00,
	})
	if dev.ActiveChannel() != Channel1 {
		t.Errorf("expected active channel 1, got %d", dev.ActiveChannel())
	}
	if dev.Phase(Channel1) != 123 {
		t.Errorf("expected cached phase 123, got %d", dev.Phase(Channel1))
	}
	if dev.Frequency(Channel0) != 0 {
		t.Errorf("channel 0's cached frequency changed to %g", dev.Frequency(Channel0))
	}
}

func TestSetWaveformModeUsesActiveChannel(t *testing.T) {
	dev, mock := readyDevice(t)
	if err := dev.SetFrequency(1000, Channel1); err != nil {
		t.Fatal(err)
	}
	if err := dev.SetWaveformMode(Triangle); err != nil {
		t.Fatal(err)
	}
	last := mock.Words[len(mock.Words)-1]
	if last != 0x2C00|0x0002 {
		t.Errorf("expected triangle control word to keep channel 1 selected, got 0x%04X", last)
	}
}

func TestSetFrequencyRejectsBeforeAnyWrite(t *testing.T) {
	dev, mock := readyDevice(t)
	n := len(mock.Words)
	var re *RangeError
	for _, freq := range []float64{0, -100, testClock, testClock * 2, math.NaN(), math.Inf(1)} {
		err := dev.SetFrequency(freq, Channel0)
		if !errors.As(err, &re) {
			t.Errorf("%g Hz: expected a RangeError, got %v", freq, err)
		}
	}
	if err := dev.SetFrequency(1000, Channel(5)); err == nil {
		t.Error("expected an error for channel 5")
	}
	if len(mock.Words) != n {
		t.Errorf("validation failures reached the bus: %d extra words", len(mock.Words)-n)
	}
}

// a NaN frequency must be refused outright: it would collapse the tuning
// word to zero (DC on the output) and poison the cached state with a value
// JSON cannot encode
func TestSetFrequencyRejectsNaN(t *testing.T) {
	dev, mock := readyDevice(t)
	n := len(mock.Words)
	var re *RangeError
	if err := dev.SetFrequency(math.NaN(), Channel0); !errors.As(err, &re) {
		t.Errorf("expected a RangeError for NaN, got %v", err)
	}
	if len(mock.Words) != n {
		t.Errorf("NaN reached the bus: %d extra words", len(mock.Words)-n)
	}
	if f := dev.Frequency(Channel0); f != 0 {
		t.Errorf("expected cached frequency untouched, got %g", f)
	}
}

// the bound a RangeError reports is exclusive: that exact value rounds up
// out of 28 bits, while anything just inside loads fine
func TestRangeErrorBoundIsExclusive(t *testing.T) {
	dev, _ := readyDevice(t)
	var re *RangeError
	if err := dev.SetFrequency(testClock*2, Channel0); !errors.As(err, &re) {
		t.Fatalf("expected a RangeError, got %v", err)
	}
	if err := dev.SetFrequency(re.Max, Channel0); !errors.As(err, &re) {
		t.Errorf("the reported bound %g should itself be rejected, got %v", re.Max, err)
	}
	if err := dev.SetFrequency(re.Max*(1-1e-9), Channel0); err != nil {
		t.Errorf("a frequency just inside the bound should load, got %v", err)
	}
}

func TestSetFrequencyNyquistAdjacent(t *testing.T) {
	dev, _ := readyDevice(t)
	if err := dev.SetFrequency(testClock/2, Channel0); err != nil {
		t.Fatalf("clock/2 should be loadable, got %v", err)
	}
}

func TestTransportErrorMidSequenceKeepsOldState(t *testing.T) {
	dev, mock := readyDevice(t)
	if err := dev.SetFrequency(1000, Channel0, WithPhase(7)); err != nil {
		t.Fatal(err)
	}
	// 2 init writes + 5 sequence writes done; fail the third write of the
	// next load
	mock.FailOn = 7 + 3
	err := dev.SetFrequency(2000, Channel1)
	if !errors.Is(err, ErrMockWrite) {
		t.Fatalf("expected the injected failure to surface, got %v", err)
	}
	if f := dev.Frequency(Channel0); f != 1000 {
		t.Errorf("expected previous frequency 1000 to survive the abort, got %g", f)
	}
	if f := dev.Frequency(Channel1); f != 0 {
		t.Errorf("expected channel 1 frequency to stay unloaded, got %g", f)
	}
	if dev.ActiveChannel() != Channel0 {
		t.Errorf("expected active channel to stay 0, got %d", dev.ActiveChannel())
	}
	if dev.Phase(Channel0) != 7 {
		t.Errorf("expected previous phase 7 to survive, got %d", dev.Phase(Channel0))
	}
}

func TestSetWaveformModeFailureKeepsOldMode(t *testing.T) {
	dev, mock := readyDevice(t)
	mock.FailOn = 3
	if err := dev.SetWaveformMode(Square); err == nil {
		t.Fatal("expected the injected failure to surface")
	}
	if dev.Mode() != Sine {
		t.Errorf("expected cached mode to stay sine, got %v", dev.Mode())
	}
}

func TestSetWaveformModeRejectsJunk(t *testing.T) {
	dev, _ := readyDevice(t)
	if err := dev.SetWaveformMode(WaveformMode(0x4000)); err == nil {
		t.Error("expected an error for a flag pattern that is not a mode")
	}
}

func TestShutdownResetsAndRetires(t *testing.T) {
	dev, mock := readyDevice(t)
	dev.Shutdown()
	if last := mock.Words[len(mock.Words)-1]; last != 0x0100 {
		t.Errorf("expected shutdown to assert reset, last word 0x%04X", last)
	}
	if err := dev.SetFrequency(1000, Channel0); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady after shutdown, got %v", err)
	}
}

func TestShutdownSwallowsTransportError(t *testing.T) {
	dev, mock := readyDevice(t)
	mock.FailOn = 3
	dev.Shutdown() // must not panic or propagate
	if err := dev.SetWaveformMode(Sine); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected the device retired even when the reset write failed, got %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	dev, _ := readyDevice(t)
	if err := dev.SetFrequency(440, Channel1, WithPhase(2048)); err != nil {
		t.Fatal(err)
	}
	s := dev.Snapshot()
	if s.Mode != "sine" || s.Channel != 1 || s.Frequency != 440 || s.Phase != 2048 {
		t.Errorf("unexpected snapshot %+v", s)
	}
}
