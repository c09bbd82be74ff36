/*Package ad9833 controls AD9833 direct digital synthesis waveform generators.

The chip is write-only: it is programmed with a sequence of 16-bit register
words and never read back.  This package separates the pure register encoding
(registers.go) from the stateful controller, which owns the last-known chip
state and sequences the writes in the order the silicon requires.  The
physical bus is abstracted behind the Writer16 interface so the controller
works with any transport that can perform one chip-select-bracketed 16-bit
transfer; package expeyes provides one, MockWriter in this package another.

A frequency load is a five-word dance: the chip only latches frequency and
phase data while a reset-qualified control word has put it in the loading
state, and the output stays muted until a final control word clears reset.
SetFrequency owns that ordering; callers never see a half-loaded chip.

The controller is not safe for concurrent use.  A host that shares one
device between goroutines must serialize access itself (the ddssrv command
uses the locker middleware for this).
*/
package ad9833

import (
	"errors"
	"fmt"
	"log"
	"math"
)

var (
	// ErrNotReady is returned when an operation is invoked before
	// Initialize has succeeded, or after Shutdown
	ErrNotReady = errors.New("ad9833: device not initialized")

	// ErrBadClock is returned by New for a nonpositive or non-finite
	// reference clock
	ErrBadClock = errors.New("ad9833: reference clock must be a positive frequency in Hz")

	// ErrBadChannel is returned for a channel other than the chip's two
	// register slots
	ErrBadChannel = errors.New("ad9833: channel must be 0 or 1")
)

// RangeError describes a requested output outside what the chip can produce
// with the configured reference clock
type RangeError struct {
	// Param is the name of the offending parameter
	Param string

	// Value is the requested value
	Value float64

	// Max is the exclusive upper bound: the smallest value that is
	// already too large.  The minimum is an exclusive zero.
	Max float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("ad9833: %s %g out of range (0, %g)", e.Param, e.Value, e.Max)
}

// Writer16 is the transport collaborator: one call performs one
// chip-select-bracketed, MSB-first 16-bit transfer on the bus.  The chip
// select identity belongs to the transport, which is bound to a single chip.
type Writer16 interface {
	Write16(word uint16) error
}

// Option customizes a SetFrequency call
type Option func(*settings)

type settings struct {
	phase uint16
}

// WithPhase sets the phase register offset loaded alongside the frequency,
// in counts of 2*pi/4096 rad.  Values above 4095 are masked to 12 bits.
// Without this option the phase register is loaded with zero.
func WithPhase(phase uint16) Option {
	return func(s *settings) {
		s.phase = phase
	}
}

// AD9833 drives one chip through an injected transport.  It caches the state
// last flushed to the chip so callers can learn what the hardware is doing
// without a readback path.  Create with New; no operation other than
// Initialize is legal before Initialize succeeds.
type AD9833 struct {
	transport Writer16
	clockHz   float64

	ready   bool
	mode    WaveformMode
	channel Channel
	freqHz  [2]float64
	phase   [2]uint16
}

// New returns a controller for a chip behind the given transport, clocked by
// a reference oscillator of clockHz (25 MHz on most breakout boards).  The
// clock is fixed for the life of the controller.
func New(transport Writer16, clockHz float64) (*AD9833, error) {
	if clockHz <= 0 || math.IsInf(clockHz, 1) || math.IsNaN(clockHz) {
		return nil, fmt.Errorf("%w, got %g", ErrBadClock, clockHz)
	}
	return &AD9833{transport: transport, clockHz: clockHz}, nil
}

// Initialize resets the chip and establishes the power-on programming state:
// sine output, channel 0, nothing loaded in the frequency registers.  It
// must be called once before any other operation.  If either write fails the
// error is returned and the device remains unready; the chip may have seen
// a partial sequence, so the caller should retry Initialize or abandon the
// session rather than proceed.
func (d *AD9833) Initialize() error {
	if err := d.transport.Write16(ResetWord()); err != nil {
		return fmt.Errorf("asserting reset: %w", err)
	}
	if err := d.transport.Write16(ControlWord(Sine, Channel0)); err != nil {
		return fmt.Errorf("writing initial control word: %w", err)
	}
	d.mode = Sine
	d.channel = Channel0
	d.freqHz = [2]float64{}
	d.phase = [2]uint16{}
	d.ready = true
	return nil
}

// SetFrequency loads freqHz into the given channel's frequency register,
// loads the channel's phase register (zero unless WithPhase is given), and
// makes the channel active.  The waveform mode is left alone; the current
// mode's flags ride along in both control words of the sequence.
//
// Validation happens before any bus traffic: the frequency must be positive
// and its tuning word must fit in 28 bits (freqHz < clock).  The five bus
// writes then happen in the order the chip demands; see the package comment.
// On a transport error the remaining writes are abandoned and the cached
// state keeps its previous values, because the chip never left reset and is
// still producing nothing.  State is updated only after the final write.
func (d *AD9833) SetFrequency(freqHz float64, ch Channel, opts ...Option) error {
	if !d.ready {
		return ErrNotReady
	}
	if ch != Channel0 && ch != Channel1 {
		return fmt.Errorf("%w, got %d", ErrBadChannel, ch)
	}
	// NaN fails every comparison, so the guard must not be phrased as
	// "reject if out of bounds"
	if !(freqHz > 0 && math.Round(freqHz*(1<<tuningWordBits)/d.clockHz) <= MaxTuningWord) {
		return &RangeError{Param: "frequency", Value: freqHz, Max: d.maxFrequency()}
	}
	set := settings{}
	for _, opt := range opts {
		opt(&set)
	}

	lsb, msb := SplitTuningWord(TuningWord(freqHz, d.clockHz))
	words := [5]uint16{
		// reset + B28 + mode flags: "ready to load", output muted
		ResetWord() | ControlWord(d.mode, ch),
		FreqRegisterWord(lsb, ch),
		FreqRegisterWord(msb, ch),
		PhaseRegisterWord(set.phase, ch),
		// reset cleared: output enabled on the new frequency
		ControlWord(d.mode, ch),
	}
	for i, w := range words {
		if err := d.transport.Write16(w); err != nil {
			return fmt.Errorf("write %d of %d in frequency load: %w", i+1, len(words), err)
		}
	}

	d.channel = ch
	d.freqHz[ch] = freqHz
	d.phase[ch] = set.phase & MaxPhase
	return nil
}

// SetWaveformMode switches the output wave shape with a single control word.
// The frequency and phase registers are untouched; the chip keeps producing
// the active channel's last-loaded frequency in the new shape.  The cached
// mode changes only if the write succeeds.
func (d *AD9833) SetWaveformMode(mode WaveformMode) error {
	if !d.ready {
		return ErrNotReady
	}
	switch mode {
	case Sine, Triangle, Square:
	default:
		return fmt.Errorf("ad9833: invalid waveform mode %d", mode)
	}
	if err := d.transport.Write16(ControlWord(mode, d.channel)); err != nil {
		return fmt.Errorf("writing control word: %w", err)
	}
	d.mode = mode
	return nil
}

// Shutdown asserts reset, muting the output, and retires the controller.
// It is a best-effort safety action for teardown paths: a failed write is
// logged and swallowed, never returned.  No operation is legal afterward.
func (d *AD9833) Shutdown() {
	if err := d.transport.Write16(ResetWord()); err != nil {
		log.Printf("ad9833: reset on shutdown failed: %v", err)
	}
	d.ready = false
}

// maxFrequency is the exclusive upper bound on requestable frequency: the
// smallest value whose tuning word rounds up out of 28 bits
func (d *AD9833) maxFrequency() float64 {
	return (MaxTuningWord + 0.5) * d.clockHz / (1 << tuningWordBits)
}

// ClockHz returns the reference clock the controller was built with
func (d *AD9833) ClockHz() float64 {
	return d.clockHz
}

// Mode returns the waveform mode last flushed to the chip
func (d *AD9833) Mode() WaveformMode {
	return d.mode
}

// ActiveChannel returns the channel whose registers drive the output
func (d *AD9833) ActiveChannel() Channel {
	return d.channel
}

// Frequency returns the last frequency loaded into a channel, in Hz.  Zero
// means nothing has been loaded since Initialize.
func (d *AD9833) Frequency(ch Channel) float64 {
	return d.freqHz[ch&1]
}

// Phase returns the last phase offset loaded into a channel, masked to
// 12 bits
func (d *AD9833) Phase(ch Channel) uint16 {
	return d.phase[ch&1]
}

// Status is a snapshot of the cached chip state, shaped for JSON
type Status struct {
	Mode      string  `json:"mode"`
	Channel   int     `json:"chan"`
	Frequency float64 `json:"freq"`
	Phase     uint16  `json:"phase"`
}

// Snapshot reports the active channel's state as last flushed to the chip
func (d *AD9833) Snapshot() Status {
	return Status{
		Mode:      d.mode.String(),
		Channel:   int(d.channel),
		Frequency: d.freqHz[d.channel],
		Phase:     d.phase[d.channel],
	}
}
