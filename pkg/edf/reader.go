package edf

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	openedf "github.com/OpenPSG/edf"
)

// ReadHeader parses the header at the start of r.
func ReadHeader(r io.Reader) (Header, error) {
	fixed := make([]byte, headerSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return Header{}, fmt.Errorf("failed to read edf header: %w", err)
	}

	p := parser{buf: fixed}
	var h Header
	h.Version = openedf.Version(p.next(8))
	if h.Version != openedf.Version0 {
		return Header{}, fmt.Errorf("unsupported edf version %q", h.Version)
	}
	h.PatientID = p.next(80)
	h.RecordingID = p.next(80)
	start, err := time.ParseInLocation("02.01.06 15.04.05", p.next(8)+" "+p.next(8), time.Local)
	if err != nil {
		return Header{}, fmt.Errorf("invalid start time: %w", err)
	}
	h.StartTime = start
	h.HeaderBytes = p.int(8)
	p.next(44)
	h.DataRecords = p.int(8)
	h.DataRecordDuration = time.Duration(p.float(8) * float64(time.Second))
	h.SignalCount = p.int(4)
	if p.err != nil {
		return Header{}, p.err
	}
	ns := h.SignalCount
	if ns < 1 || h.HeaderBytes != headerBytes(ns) {
		return Header{}, fmt.Errorf("header size %d does not match %d signals", h.HeaderBytes, ns)
	}

	table := make([]byte, signalHeaderSize*ns)
	if _, err := io.ReadFull(r, table); err != nil {
		return Header{}, fmt.Errorf("failed to read edf signal header: %w", err)
	}
	p = parser{buf: table}
	h.Signals = make([]Signal, ns)
	for i := range h.Signals {
		h.Signals[i].Label = p.next(16)
	}
	for i := range h.Signals {
		h.Signals[i].TransducerType = p.next(80)
	}
	for i := range h.Signals {
		h.Signals[i].PhysicalDimension = p.next(8)
	}
	for i := range h.Signals {
		h.Signals[i].PhysicalMin = p.float(8)
	}
	for i := range h.Signals {
		h.Signals[i].PhysicalMax = p.float(8)
	}
	for i := range h.Signals {
		h.Signals[i].DigitalMin = p.int(8)
	}
	for i := range h.Signals {
		h.Signals[i].DigitalMax = p.int(8)
	}
	for i := range h.Signals {
		h.Signals[i].Prefiltering = p.next(80)
	}
	for i := range h.Signals {
		h.Signals[i].SamplesPerRecord = p.int(8)
	}
	for i := range h.Signals {
		h.Signals[i].Reserved = p.next(32)
	}
	if p.err != nil {
		return Header{}, p.err
	}
	return h, nil
}

type parser struct {
	buf []byte
	off int
	err error
}

func (p *parser) next(n int) string {
	s := strings.TrimRight(string(p.buf[p.off:p.off+n]), " ")
	p.off += n
	return s
}

func (p *parser) int(n int) int {
	s := p.next(n)
	v, err := strconv.Atoi(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid integer field %q: %w", s, err)
	}
	return v
}

func (p *parser) float(n int) float64 {
	s := p.next(n)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid number field %q: %w", s, err)
	}
	return v
}
