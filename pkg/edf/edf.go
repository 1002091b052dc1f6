// Package edf writes European Data Format files using the header model of
// github.com/OpenPSG/edf.
package edf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	openedf "github.com/OpenPSG/edf"

	"github.com/itohio/godaq/pkg/config"
)

const (
	headerSize       = 256
	signalHeaderSize = 256
	recordsOffset    = 236 // offset of the data record count field
	unknownRecords   = -1
)

// ErrClosed is returned by writes to a closed file.
var ErrClosed = errors.New("edf file closed")

// Header and Signal are the EDF header model.
type (
	Header = openedf.Header
	Signal = openedf.SignalHeader
)

// SamplesPerRecord returns the number of samples of each signal per record.
// All signals share one rate.
func SamplesPerRecord(h Header) int {
	if len(h.Signals) == 0 {
		return 0
	}
	return h.Signals[0].SamplesPerRecord
}

func headerBytes(signals int) int {
	return headerSize + signalHeaderSize*signals
}

// NewHeader builds a header from the recording configuration.
func NewHeader(cfg *config.Config, start time.Time) Header {
	spr := cfg.SamplesPerRecord()
	signals := make([]Signal, len(cfg.Signals))
	for i, s := range cfg.Signals {
		signals[i] = Signal{
			Label:             s.Label,
			TransducerType:    s.TransducerType,
			PhysicalDimension: s.PhysicalDim,
			PhysicalMin:       s.PhysicalMin,
			PhysicalMax:       s.PhysicalMax,
			DigitalMin:        s.DigitalMin,
			DigitalMax:        s.DigitalMax,
			Prefiltering:      s.Prefiltering,
			SamplesPerRecord:  spr,
		}
	}

	return Header{
		Version:            openedf.Version0,
		PatientID:          PatientID(cfg.Subject),
		RecordingID:        RecordingID(cfg.Recording, start),
		StartTime:          start,
		DataRecords:        unknownRecords,
		HeaderBytes:        headerBytes(len(signals)),
		DataRecordDuration: time.Duration(cfg.Recording.SavingPeriod) * time.Second,
		SignalCount:        len(signals),
		Signals:            signals,
	}
}

// PatientID formats the subject as "code sex birthdate name", unknown
// subfields as X.
func PatientID(s config.SubjectConfig) string {
	return strings.Join([]string{subfield(s.Code), subfield(s.Sex), subfield(s.Birthdate), subfield(s.Name)}, " ")
}

// RecordingID formats "Startdate dd-MMM-yyyy experiment investigator equipment".
func RecordingID(r config.RecordingConfig, start time.Time) string {
	return strings.Join([]string{
		"Startdate",
		strings.ToUpper(start.Format("02-Jan-2006")),
		subfield(r.ExperimentID),
		subfield(r.InvestigatorID),
		subfield(r.EquipmentCode),
	}, " ")
}

func subfield(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "X"
	}
	return strings.ReplaceAll(s, " ", "_")
}

// FileName returns "<subject>_<YYYY-MM-DD_HH_MM_SS>.edf" inside dir.
func FileName(dir, subject string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.edf", subject, t.Format("2006-01-02_15_04_05")))
}

// Writer writes data records to an EDF file. The record count in the header
// is -1 until Close.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	w       *bufio.Writer
	header  Header
	records int
	scratch []byte
	closed  bool
}

// Create creates the file and writes the header.
func Create(filename string, h Header) (*Writer, error) {
	if len(h.Signals) == 0 {
		return nil, errors.New("edf header has no signals")
	}
	spr := SamplesPerRecord(h)
	for i, s := range h.Signals {
		if s.SamplesPerRecord != spr {
			return nil, fmt.Errorf("signal %d has %d samples per record, expected %d", i+1, s.SamplesPerRecord, spr)
		}
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create edf file: %w", err)
	}

	wr := &Writer{
		file:   f,
		w:      bufio.NewWriter(f),
		header: h,
	}
	wr.header.Version = openedf.Version0
	wr.header.HeaderBytes = headerBytes(len(h.Signals))
	wr.header.SignalCount = len(h.Signals)
	wr.header.DataRecords = unknownRecords
	if err := writeHeader(wr.w, wr.header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write edf header: %w", err)
	}
	if err := wr.w.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write edf header: %w", err)
	}
	return wr, nil
}

// Name returns the file name.
func (wr *Writer) Name() string {
	return wr.file.Name()
}

// Header returns the header as written.
func (wr *Writer) Header() Header {
	return wr.header
}

// SamplesPerRecord returns the number of samples of each signal per record.
func (wr *Writer) SamplesPerRecord() int {
	return SamplesPerRecord(wr.header)
}

// Signals returns the number of signals.
func (wr *Writer) Signals() int {
	return len(wr.header.Signals)
}

// Records returns the number of records written so far.
func (wr *Writer) Records() int {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	return wr.records
}

// Closed reports whether Close was called.
func (wr *Writer) Closed() bool {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	return wr.closed
}

// WriteDataRecord writes one record, signal after signal.
func (wr *Writer) WriteDataRecord(samples []int16) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if wr.closed {
		return ErrClosed
	}
	if want := wr.SamplesPerRecord() * len(wr.header.Signals); len(samples) != want {
		return fmt.Errorf("data record has %d samples, expected %d", len(samples), want)
	}

	wr.scratch = wr.scratch[:0]
	for _, s := range samples {
		wr.scratch = binary.LittleEndian.AppendUint16(wr.scratch, uint16(s))
	}
	if _, err := wr.w.Write(wr.scratch); err != nil {
		return err
	}
	wr.records++
	return nil
}

// Flush writes buffered records to disk.
func (wr *Writer) Flush() error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if wr.closed {
		return ErrClosed
	}
	if err := wr.w.Flush(); err != nil {
		return err
	}
	return wr.file.Sync()
}

// Close flushes, patches the record count and closes the file. Closing twice
// is a no-op.
func (wr *Writer) Close() error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if wr.closed {
		return nil
	}
	wr.closed = true

	err := wr.w.Flush()
	if err == nil {
		wr.header.DataRecords = wr.records
		_, err = wr.file.WriteAt([]byte(field(strconv.Itoa(wr.records), 8)), recordsOffset)
	}
	if cerr := wr.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to close edf file: %w", err)
	}
	return nil
}

// field left-justifies s in n bytes of printable ASCII.
func field(s string, n int) string {
	b := []byte(s)
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			b[i] = '_'
		}
	}
	if len(b) > n {
		b = b[:n]
	}
	return string(b) + strings.Repeat(" ", n-len(b))
}

func number(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if len(s) > 8 {
		s = strconv.FormatFloat(v, 'g', 3, 64)
	}
	return s
}

func writeHeader(w io.Writer, h Header) error {
	var b strings.Builder
	b.WriteString(field(string(h.Version), 8))
	b.WriteString(field(h.PatientID, 80))
	b.WriteString(field(h.RecordingID, 80))
	b.WriteString(field(h.StartTime.Format("02.01.06"), 8))
	b.WriteString(field(h.StartTime.Format("15.04.05"), 8))
	b.WriteString(field(strconv.Itoa(h.HeaderBytes), 8))
	b.WriteString(field("", 44))
	b.WriteString(field(strconv.Itoa(h.DataRecords), 8))
	b.WriteString(field(number(h.DataRecordDuration.Seconds()), 8))
	b.WriteString(field(strconv.Itoa(h.SignalCount), 4))

	each := func(n int, f func(s Signal) string) {
		for _, s := range h.Signals {
			b.WriteString(field(f(s), n))
		}
	}
	each(16, func(s Signal) string { return s.Label })
	each(80, func(s Signal) string { return s.TransducerType })
	each(8, func(s Signal) string { return s.PhysicalDimension })
	each(8, func(s Signal) string { return number(s.PhysicalMin) })
	each(8, func(s Signal) string { return number(s.PhysicalMax) })
	each(8, func(s Signal) string { return strconv.Itoa(s.DigitalMin) })
	each(8, func(s Signal) string { return strconv.Itoa(s.DigitalMax) })
	each(80, func(s Signal) string { return s.Prefiltering })
	each(8, func(s Signal) string { return strconv.Itoa(s.SamplesPerRecord) })
	each(32, func(s Signal) string { return s.Reserved })

	_, err := io.WriteString(w, b.String())
	return err
}

// NewRecording creates a file for a recording starting at start, named after
// the subject code inside the configured data path.
func NewRecording(cfg *config.Config, start time.Time) (*Writer, error) {
	dir, err := cfg.ResolveDataPath()
	if err != nil {
		return nil, err
	}
	return Create(FileName(dir, subfield(cfg.Subject.Code), start), NewHeader(cfg, start))
}
