package mcu

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// HandshakeTimeout bounds the wait for the configuration confirmation.
	HandshakeTimeout = 3 * time.Second
	// CommandSize is the length of the configuration command.
	CommandSize = 15

	maxTimestamp = 9999999999
	maxFreq      = 999
)

// Session is the outcome of a successful handshake.
type Session struct {
	Path         string
	BaudRate     int
	SamplingFreq int
	BufferSize   int // Samples per packet, all channels interleaved
	Timestamp    time.Time
}

// Command builds the configuration command "T<10 digit seconds>F<3 digit freq>".
func Command(timestamp int64, freq int) ([]byte, error) {
	if freq < 1 || freq > maxFreq {
		return nil, fmt.Errorf("sampling frequency %d Hz out of range 1..%d", freq, maxFreq)
	}
	if timestamp < 0 || timestamp > maxTimestamp {
		return nil, fmt.Errorf("timestamp %d does not fit 10 digits", timestamp)
	}
	return []byte(fmt.Sprintf("T%010dF%03d", timestamp, freq)), nil
}

// parseConfirmation parses "<seconds> <freq> <buffer size>".
func parseConfirmation(line string) (int64, int, int, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return 0, 0, 0, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}

	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid timestamp: %w", err)
	}
	freq, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid frequency: %w", err)
	}
	size, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid buffer size: %w", err)
	}
	if size <= 0 {
		return 0, 0, 0, fmt.Errorf("invalid buffer size %d", size)
	}
	return ts, freq, size, nil
}

// Connect opens the port and configures the MCU.
func (l *Link) Connect(ctx context.Context, baudRate, freq int) (*Session, error) {
	if err := l.Open(baudRate); err != nil {
		return nil, err
	}
	return l.Configure(ctx, freq)
}

// Configure synchronizes the MCU clock and sampling frequency and learns the
// packet buffer size. Any failure leaves the link disconnected.
func (l *Link) Configure(ctx context.Context, freq int) (*Session, error) {
	sess, err := l.configure(ctx, freq)
	if err != nil {
		if derr := l.Disconnect(); derr != nil {
			l.log.Warn().Err(derr).Msg("disconnect after failed handshake")
		}
		return nil, err
	}

	l.mu.Lock()
	l.session = sess
	l.mu.Unlock()

	l.log.Info().
		Str("port", sess.Path).
		Int("freq", sess.SamplingFreq).
		Int("buffer_size", sess.BufferSize).
		Msg("configured")
	return sess, nil
}

func (l *Link) configure(ctx context.Context, freq int) (*Session, error) {
	if err := l.Reset(); err != nil {
		return nil, fmt.Errorf("failed to reset device: %w", err)
	}

	now := l.now()
	ts := now.Unix()
	cmd, err := Command(ts, freq)
	if err != nil {
		return nil, err
	}
	if err := l.Write(cmd); err != nil {
		return nil, fmt.Errorf("failed to send configuration: %w", err)
	}
	time.Sleep(settleDelay)

	lineCtx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	line, err := l.ReadLine(lineCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &HandshakeError{Err: ErrHandshakeTimeout, Timestamp: ts, Freq: freq, Line: line}
		}
		return nil, fmt.Errorf("failed to read configuration confirmation: %w", err)
	}

	echoTs, echoFreq, size, err := parseConfirmation(line)
	if err != nil {
		return nil, &HandshakeError{Err: ErrHandshakeMalformed, Timestamp: ts, Freq: freq, Line: line}
	}
	if echoTs != ts || echoFreq != freq {
		return nil, &HandshakeError{
			Err:           ErrHandshakeMismatch,
			Timestamp:     ts,
			Freq:          freq,
			Line:          line,
			EchoTimestamp: echoTs,
			EchoFreq:      echoFreq,
		}
	}

	l.mu.Lock()
	path, baud := l.path, l.baudRate
	l.mu.Unlock()

	return &Session{
		Path:         path,
		BaudRate:     baud,
		SamplingFreq: freq,
		BufferSize:   size,
		Timestamp:    now,
	}, nil
}
