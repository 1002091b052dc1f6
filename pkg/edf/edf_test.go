package edf

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	openedf "github.com/OpenPSG/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/godaq/pkg/config"
	"github.com/itohio/godaq/pkg/record"
)

// Ensure Writer can be used as a recording sink.
var _ record.Sink = (*Writer)(nil)

var testStart = time.Date(2024, 5, 9, 17, 1, 46, 0, time.Local)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Acquisition.SamplingFreq = 10
	cfg.Recording.SavingPeriod = 2
	cfg.Recording.ExperimentID = "EXP 1"
	cfg.Subject = config.SubjectConfig{Code: "ID2020", Sex: "F", Birthdate: "02-AUG-1951", Name: "Jane Doe"}
	cfg.Signals[0].PhysicalDim = "mV"
	cfg.Signals[0].PhysicalMin = -2.5
	cfg.Signals[0].PhysicalMax = 2.5
	cfg.Signals[0].DigitalMin = 0
	cfg.Signals[0].DigitalMax = 4095
	return cfg
}

func TestFileName(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "ID2020_2024-05-09_17_01_46.edf"), FileName("data", "ID2020", testStart))
}

func TestNewHeader(t *testing.T) {
	h := NewHeader(testConfig(), testStart)

	assert.Equal(t, "ID2020 F 02-AUG-1951 Jane_Doe", h.PatientID)
	assert.Equal(t, "Startdate 09-MAY-2024 EXP_1 X X", h.RecordingID)
	assert.Equal(t, 2*time.Second, h.DataRecordDuration)
	assert.Equal(t, -1, h.DataRecords)
	require.Len(t, h.Signals, 3)
	assert.Equal(t, 20, SamplesPerRecord(h))
	assert.Equal(t, "mV", h.Signals[0].PhysicalDimension)
	assert.Equal(t, 256*4, h.HeaderBytes)
	assert.Equal(t, 3, h.SignalCount)
	assert.Equal(t, openedf.Version0, h.Version)
}

func TestPatientID_Unknown(t *testing.T) {
	assert.Equal(t, "X X X X", PatientID(config.SubjectConfig{}))
}

func TestWriter(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test.edf")
	w, err := Create(filename, NewHeader(testConfig(), testStart))
	require.NoError(t, err)

	assert.Equal(t, 20, w.SamplesPerRecord())
	assert.Equal(t, 3, w.Signals())
	assert.False(t, w.Closed())

	record := make([]int16, 60)
	for i := range record {
		record[i] = int16(i - 30)
	}
	require.NoError(t, w.WriteDataRecord(record))
	require.NoError(t, w.Flush())
	require.NoError(t, w.WriteDataRecord(record))
	assert.Equal(t, 2, w.Records())

	assert.Error(t, w.WriteDataRecord(record[:59]), "short record")

	// Record count is unknown until close
	f, err := os.Open(filename)
	require.NoError(t, err)
	h, err := ReadHeader(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, -1, h.DataRecords)

	require.NoError(t, w.Close())
	assert.True(t, w.Closed())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.WriteDataRecord(record), ErrClosed)
	assert.ErrorIs(t, w.Flush(), ErrClosed)

	f, err = os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	h, err = ReadHeader(f)
	require.NoError(t, err)

	assert.Equal(t, 2, h.DataRecords)
	assert.Equal(t, openedf.Version0, h.Version)
	assert.Equal(t, 3, h.SignalCount)
	assert.Equal(t, 256*4, h.HeaderBytes)
	assert.Equal(t, "ID2020 F 02-AUG-1951 Jane_Doe", h.PatientID)
	assert.True(t, testStart.Equal(h.StartTime))
	assert.Equal(t, 2*time.Second, h.DataRecordDuration)
	require.Len(t, h.Signals, 3)
	assert.Equal(t, "Signal 1", h.Signals[0].Label)
	assert.Equal(t, -2.5, h.Signals[0].PhysicalMin)
	assert.Equal(t, 4095, h.Signals[0].DigitalMax)
	assert.Equal(t, -32768, h.Signals[1].DigitalMin)
	assert.Equal(t, 20, h.Signals[2].SamplesPerRecord)

	info, err := os.Stat(filename)
	require.NoError(t, err)
	assert.Equal(t, int64(h.HeaderBytes+2*60*2), info.Size())

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	first := data[h.HeaderBytes:]
	assert.Equal(t, int16(-30), int16(binary.LittleEndian.Uint16(first)))
	assert.Equal(t, int16(29), int16(binary.LittleEndian.Uint16(first[59*2:])))
}

func TestCreate_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := Create(filepath.Join(dir, "a.edf"), Header{})
	assert.Error(t, err)

	h := NewHeader(testConfig(), testStart)
	h.Signals[1].SamplesPerRecord = 7
	_, err = Create(filepath.Join(dir, "b.edf"), h)
	assert.Error(t, err)

	_, err = Create(filepath.Join(dir, "missing", "c.edf"), NewHeader(testConfig(), testStart))
	assert.Error(t, err)
}

func TestNewRecording(t *testing.T) {
	cfg := testConfig()
	cfg.Recording.DataPath = filepath.Join(t.TempDir(), "data")

	wr, err := NewRecording(cfg, testStart)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Recording.DataPath, "ID2020_2024-05-09_17_01_46.edf"), wr.Name())
	assert.Equal(t, 20, wr.SamplesPerRecord())
	assert.Equal(t, 3, wr.Signals())
	require.NoError(t, wr.Close())

	_, err = os.Stat(wr.Name())
	assert.NoError(t, err)
}
