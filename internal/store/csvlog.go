package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aquasense/water-telemetry/internal/telemetry"
)

var (
	// ErrInvalidReading is returned when a reading fails validation and is
	// not appended.
	ErrInvalidReading = errors.New("invalid reading")
)

// TimeLayout is the on-disk timestamp format, second precision, UTC.
const TimeLayout = "2006-01-02 15:04:05"

// header is the fixed first row of the log file.
var header = []string{"Timestamp", "Sensor", "Value", "Latitude", "Longitude"}

// CSVLog is a durable append-only time-series log backed by a single CSV
// file. Appends are whole-record and immediately followed by a synchronous
// prune, so no reader ever observes a record older than the retention
// window. The mutex makes append+prune one critical section; the scheduler
// is the only writer, but HTTP readers run concurrently.
type CSVLog struct {
	mu        sync.RWMutex
	path      string
	retention time.Duration
}

// NewCSVLog creates a log at path with the given retention window. The file
// itself is created lazily on first append.
func NewCSVLog(path string, retention time.Duration) *CSVLog {
	return &CSVLog{
		path:      path,
		retention: retention,
	}
}

// Append validates the reading, writes it to the log (creating the file with
// its header if absent), then prunes records older than the retention
// window. A zero timestamp is stamped with the current wall clock.
func (l *CSVLog) Append(r telemetry.Reading) error {
	if !r.Channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidReading, r.Channel)
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("%w: value %v is not a finite number", ErrInvalidReading, r.Value)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	r.Timestamp = r.Timestamp.UTC().Truncate(time.Second)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.appendLocked(r); err != nil {
		return err
	}
	return l.pruneLocked(time.Now().UTC())
}

// Prune removes every record with timestamp < now - retention. Calling it
// again with the same now is a no-op.
func (l *CSVLog) Prune(now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(now.UTC())
}

// ReadChannel returns all current records for one channel in ascending
// timestamp order. A missing log yields an empty result, not an error.
func (l *CSVLog) ReadChannel(c telemetry.Channel) ([]telemetry.Reading, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all, _, err := l.readLocked()
	if err != nil {
		return nil, err
	}
	var out []telemetry.Reading
	for _, r := range all {
		if r.Channel == c {
			out = append(out, r)
		}
	}
	return out, nil
}

// ReadAll returns every current record in append (chronological) order.
func (l *CSVLog) ReadAll() ([]telemetry.Reading, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all, _, err := l.readLocked()
	return all, err
}

func (l *CSVLog) appendLocked(r telemetry.Reading) error {
	_, statErr := os.Stat(l.path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(recordRow(r)); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	return nil
}

func (l *CSVLog) pruneLocked(now time.Time) error {
	all, rows, err := l.readLocked()
	if err != nil {
		return err
	}
	if rows == 0 {
		return nil
	}

	cutoff := now.Add(-l.retention)
	surviving := all[:0]
	for _, r := range all {
		if !r.Timestamp.Before(cutoff) {
			surviving = append(surviving, r)
		}
	}

	// rows counts data rows on disk including any skipped malformed ones,
	// so this also compacts those away.
	if len(surviving) == rows {
		return nil
	}
	return l.rewriteLocked(surviving)
}

// rewriteLocked replaces the log with the given records via a temp file and
// rename, so a crash mid-rewrite leaves the previous log intact.
func (l *CSVLog) rewriteLocked(records []telemetry.Reading) error {
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, "readings-*.csv")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write(header)
	for _, r := range records {
		if writeErr != nil {
			break
		}
		writeErr = w.Write(recordRow(r))
	}
	if writeErr == nil {
		w.Flush()
		writeErr = w.Error()
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rewrite log: %w", writeErr)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace log: %w", err)
	}
	return nil
}

// readLocked parses the whole log. It returns the readings plus the number
// of data rows on disk; malformed rows are logged, skipped, and counted so
// the next prune compacts them away. A missing file is an empty log.
func (l *CSVLog) readLocked() ([]telemetry.Reading, int, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var readings []telemetry.Reading
	rows := 0
	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read log: %w", err)
		}
		if first {
			first = false
			continue // header
		}
		rows++
		r, err := parseRow(row)
		if err != nil {
			log.Printf("store: skipping malformed row %d: %v", rows, err)
			continue
		}
		readings = append(readings, r)
	}
	return readings, rows, nil
}

func recordRow(r telemetry.Reading) []string {
	return []string{
		r.Timestamp.Format(TimeLayout),
		string(r.Channel),
		strconv.FormatFloat(r.Value, 'f', -1, 64),
		strconv.FormatFloat(r.Coordinates.Latitude, 'f', -1, 64),
		strconv.FormatFloat(r.Coordinates.Longitude, 'f', -1, 64),
	}
}

func parseRow(row []string) (telemetry.Reading, error) {
	if len(row) != len(header) {
		return telemetry.Reading{}, fmt.Errorf("expected %d fields, got %d", len(header), len(row))
	}
	ts, err := time.ParseInLocation(TimeLayout, row[0], time.UTC)
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("bad timestamp %q: %v", row[0], err)
	}
	value, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("bad value %q: %v", row[2], err)
	}
	lat, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("bad latitude %q: %v", row[3], err)
	}
	lon, err := strconv.ParseFloat(row[4], 64)
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("bad longitude %q: %v", row[4], err)
	}
	return telemetry.Reading{
		Timestamp: ts,
		Channel:   telemetry.Channel(row[1]),
		Value:     value,
		Coordinates: telemetry.Coordinates{
			Latitude:  lat,
			Longitude: lon,
		},
	}, nil
}
