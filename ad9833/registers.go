package ad9833

import (
	"fmt"
	"math"
)

// The AD9833 is programmed with 16-bit words over SPI.  The two MSBs of each
// word select the destination register; a word beginning 00 is a control
// word and the remaining 14 bits are individual control flags.  See the
// Analog Devices AD9833 datasheet, Table 7 and onward.
const (
	// bitB28 selects 28-bit frequency loads: each frequency register is
	// filled by two consecutive 14-bit writes, LSBs first
	bitB28 = 1 << 13

	// bitFSELECT chooses FREQ1 as the active frequency register when set
	bitFSELECT = 1 << 11

	// bitPSELECT chooses PHASE1 as the active phase register when set
	bitPSELECT = 1 << 10

	// bitRESET holds the internal registers in reset; the chip latches
	// frequency/phase data but mutes the output while it is set
	bitRESET = 1 << 8

	// bitOPBITEN routes the MSB of the phase accumulator to VOUT,
	// producing a square wave instead of the DAC output
	bitOPBITEN = 1 << 5

	// bitMODE bypasses the sine ROM, producing a triangle wave
	bitMODE = 1 << 1

	// freq0Select and freq1Select are the register-select prefixes for
	// the two frequency registers.  The same prefix is used for both
	// 14-bit halves of one register.
	freq0Select = 0x4000
	freq1Select = 0x8000

	// phase0Select and phase1Select are the register-select prefixes for
	// the two phase registers
	phase0Select = 0xC000
	phase1Select = 0xE000

	// tuningWordBits is the width of the frequency accumulator
	tuningWordBits = 28

	// MaxTuningWord is the largest value the 28-bit frequency register holds
	MaxTuningWord = 1<<tuningWordBits - 1

	// MaxPhase is the largest value the 12-bit phase register holds.
	// Phase inputs are masked to this range, not range checked.
	MaxPhase = 1<<12 - 1
)

// WaveformMode is the output wave shape.  The value of each variant is the
// control word flag pattern that selects it.
type WaveformMode uint16

const (
	// Sine produces a sinusoid from the on-chip DAC (no flags set)
	Sine WaveformMode = 0

	// Triangle bypasses the sine ROM
	Triangle WaveformMode = bitMODE

	// Square routes the phase accumulator MSB directly to the output pin
	Square WaveformMode = bitOPBITEN
)

// ParseMode maps the spellings the front ends accept onto a WaveformMode.
// Single letters follow the original bench tool: s, t, q.
func ParseMode(s string) (WaveformMode, error) {
	switch s {
	case "sine", "sin", "s":
		return Sine, nil
	case "triangle", "tri", "t":
		return Triangle, nil
	case "square", "sq", "q":
		return Square, nil
	}
	return Sine, fmt.Errorf("ad9833: unknown waveform %q, want sine, triangle, or square", s)
}

func (m WaveformMode) String() string {
	switch m {
	case Sine:
		return "sine"
	case Triangle:
		return "triangle"
	case Square:
		return "square"
	}
	return "invalid"
}

// Channel identifies one of the chip's two frequency/phase register slots
type Channel uint8

const (
	// Channel0 is the FREQ0/PHASE0 register pair
	Channel0 Channel = 0

	// Channel1 is the FREQ1/PHASE1 register pair
	Channel1 Channel = 1
)

// TuningWord computes the 28-bit frequency accumulator value for a desired
// output frequency given the reference clock, round(freq * 2^28 / clock).
// Rounding is round-half-away-from-zero (math.Round).  The result is masked
// to 28 bits; range validation is the caller's job, see (*AD9833).SetFrequency.
func TuningWord(freqHz, clockHz float64) uint32 {
	w := math.Round(freqHz * (1 << tuningWordBits) / clockHz)
	return uint32(uint64(w) & MaxTuningWord)
}

// OutputFrequency inverts TuningWord, returning the frequency in Hz the chip
// actually synthesizes for a given tuning word.  The difference between this
// and the requested frequency is the quantization error.
func OutputFrequency(word uint32, clockHz float64) float64 {
	return float64(word) * clockHz / (1 << tuningWordBits)
}

// SplitTuningWord breaks a 28-bit tuning word into the two 14-bit halves
// loaded into a frequency register, least significant half first
func SplitTuningWord(word uint32) (lsb, msb uint16) {
	lsb = uint16(word & 0x3FFF)
	msb = uint16((word >> 14) & 0x3FFF)
	return lsb, msb
}

// FreqRegisterWord encodes one 14-bit half of a tuning word for transmission,
// prefixing it with the register select bits for the given channel.  In B28
// mode the chip keys LSB/MSB off write order, so both halves carry the same
// prefix.
func FreqRegisterWord(half14 uint16, ch Channel) uint16 {
	sel := uint16(freq0Select)
	if ch == Channel1 {
		sel = freq1Select
	}
	return sel | (half14 & 0x3FFF)
}

// PhaseRegisterWord encodes a phase offset for the given channel's phase
// register.  The phase is masked to 12 bits (0-4095); one count is
// 2*pi/4096 radians.
func PhaseRegisterWord(phase uint16, ch Channel) uint16 {
	sel := uint16(phase0Select)
	if ch == Channel1 {
		sel = phase1Select
	}
	return sel | (phase & MaxPhase)
}

// ControlWord builds the control register word for a mode and active channel:
// the B28 flag (all loads here are two-write 28-bit loads), the mode's flag
// pattern, and the FREQ1/PHASE1 select bits when channel 1 is active.
func ControlWord(mode WaveformMode, ch Channel) uint16 {
	w := uint16(bitB28) | uint16(mode)
	if ch == Channel1 {
		w |= bitFSELECT | bitPSELECT
	}
	return w
}

// ResetWord returns the control word that asserts reset with no other flags,
// muting the output and zeroing the internal phase accumulator
func ResetWord() uint16 {
	return bitRESET
}
