package ad9833

import "errors"

// ErrMockWrite is the error MockWriter injects when no other is configured
var ErrMockWrite = errors.New("ad9833: injected mock write failure")

// MockWriter is a Writer16 that records every word instead of touching a
// bus.  It backs the package tests and ddssrv's mock mode.  The zero value
// is usable.
type MockWriter struct {
	// Words holds every word written, in order
	Words []uint16

	// FailOn, when positive, makes the Nth write (1-based, counted from
	// the start of the writer's life) fail without recording
	FailOn int

	// Err is the error returned for an induced failure; ErrMockWrite
	// if nil
	Err error

	writes int
}

// Write16 records one word, or fails if this write is the FailOn'th
func (m *MockWriter) Write16(word uint16) error {
	m.writes++
	if m.FailOn > 0 && m.writes == m.FailOn {
		if m.Err != nil {
			return m.Err
		}
		return ErrMockWrite
	}
	m.Words = append(m.Words, word)
	return nil
}

// Reset clears the recording and the write counter
func (m *MockWriter) Reset() {
	m.Words = nil
	m.writes = 0
}
