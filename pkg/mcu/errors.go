package mcu

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound indicates no serial port matched the manufacturer tag.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrNotConnected indicates an operation on a closed link.
	ErrNotConnected = errors.New("not connected")
	// ErrHandshakeTimeout indicates the MCU did not confirm its configuration in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")
	// ErrHandshakeMalformed indicates the confirmation line was not three integers.
	ErrHandshakeMalformed = errors.New("handshake malformed")
	// ErrHandshakeMismatch indicates the MCU echoed a different clock or frequency.
	ErrHandshakeMismatch = errors.New("handshake mismatch")
)

// HandshakeError carries what was sent to the MCU and what came back.
type HandshakeError struct {
	Err       error
	Timestamp int64  // Sent UNIX seconds
	Freq      int    // Sent sampling frequency
	Line      string // Raw confirmation line, if any

	EchoTimestamp int64
	EchoFreq      int
}

// Error implements error.
func (e *HandshakeError) Error() string {
	switch {
	case errors.Is(e.Err, ErrHandshakeMismatch):
		return fmt.Sprintf("%v: sent time %d freq %d, MCU reported time %d freq %d",
			e.Err, e.Timestamp, e.Freq, e.EchoTimestamp, e.EchoFreq)
	case errors.Is(e.Err, ErrHandshakeMalformed):
		return fmt.Sprintf("%v: expected \"<seconds> <freq> <buffer size>\", got %q", e.Err, e.Line)
	default:
		return fmt.Sprintf("%v: no confirmation for T%010dF%03d", e.Err, e.Timestamp, e.Freq)
	}
}

// Unwrap returns the sentinel error.
func (e *HandshakeError) Unwrap() error {
	return e.Err
}
