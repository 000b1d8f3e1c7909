package store

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aquasense/water-telemetry/internal/telemetry"
)

func newTestLog(t *testing.T) *CSVLog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "readings.csv")
	return NewCSVLog(path, 7*24*time.Hour)
}

func reading(ts time.Time, channel telemetry.Channel, value, lat, lon float64) telemetry.Reading {
	return telemetry.Reading{
		Timestamp: ts,
		Channel:   channel,
		Value:     value,
		Coordinates: telemetry.Coordinates{
			Latitude:  lat,
			Longitude: lon,
		},
	}
}

func TestAbsentLogReadsEmpty(t *testing.T) {
	l := newTestLog(t)

	all, err := l.ReadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty log, got %d readings", len(all))
	}

	// Prune against a missing file is a no-op, not an error.
	if err := l.Prune(time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(l.path); !os.IsNotExist(err) {
		t.Fatalf("prune should not create the log file")
	}
}

func TestAppendCreatesFileWithHeader(t *testing.T) {
	l := newTestLog(t)
	now := time.Now().UTC().Truncate(time.Second)

	if err := l.Append(reading(now, telemetry.ChannelPH, 7.2, 44.8, 20.5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := os.ReadFile(l.path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if lines[0] != "Timestamp,Sensor,Value,Latitude,Longitude" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "pH") {
		t.Fatalf("expected pH row, got %q", lines[1])
	}
}

func TestAppendRejectsInvalidReadings(t *testing.T) {
	l := newTestLog(t)

	err := l.Append(reading(time.Now(), telemetry.Channel("Radiation"), 1.0, 0, 0))
	if !errors.Is(err, ErrInvalidReading) {
		t.Fatalf("expected ErrInvalidReading for unknown channel, got %v", err)
	}

	err = l.Append(reading(time.Now(), telemetry.ChannelPH, math.NaN(), 0, 0))
	if !errors.Is(err, ErrInvalidReading) {
		t.Fatalf("expected ErrInvalidReading for NaN value, got %v", err)
	}

	if _, statErr := os.Stat(l.path); !os.IsNotExist(statErr) {
		t.Fatalf("rejected readings must not create the log")
	}
}

func TestRoundTrip(t *testing.T) {
	l := newTestLog(t)
	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

	want := []telemetry.Reading{
		reading(base, telemetry.ChannelPH, 7.05, 44.81, 20.46),
		reading(base.Add(2*time.Second), telemetry.ChannelTurbidity, 3.4, 44.81, 20.46),
		reading(base.Add(4*time.Second), telemetry.ChannelPH, 7.1, 44.81, 20.46),
		reading(base.Add(6*time.Second), telemetry.ChannelHeavyMetals, 0.02, 0, 0),
		reading(base.Add(8*time.Second), telemetry.ChannelDissolvedOxygen, 8.9, 44.81, 20.46),
	}
	for _, r := range want {
		if err := l.Append(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := l.ReadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d readings, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Fatalf("reading %d: timestamp %v != %v", i, got[i].Timestamp, want[i].Timestamp)
		}
		if got[i].Channel != want[i].Channel || got[i].Value != want[i].Value ||
			got[i].Coordinates != want[i].Coordinates {
			t.Fatalf("reading %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReadChannelFiltersAndPreservesOrder(t *testing.T) {
	l := newTestLog(t)
	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

	channels := []telemetry.Channel{
		telemetry.ChannelPH,
		telemetry.ChannelTurbidity,
		telemetry.ChannelPH,
		telemetry.ChannelTDS,
		telemetry.ChannelPH,
	}
	for i, ch := range channels {
		r := reading(base.Add(time.Duration(i)*time.Second), ch, float64(i), 0, 0)
		if err := l.Append(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := l.ReadChannel(telemetry.ChannelPH)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 pH readings, got %d", len(got))
	}
	for i, r := range got {
		if r.Channel != telemetry.ChannelPH {
			t.Fatalf("reading %d has channel %q", i, r.Channel)
		}
		if i > 0 && got[i-1].Timestamp.After(r.Timestamp) {
			t.Fatalf("readings out of order at index %d", i)
		}
	}
}

func TestPruneDropsExpiredAndIsIdempotent(t *testing.T) {
	l := newTestLog(t)
	now := time.Now().UTC().Truncate(time.Second)

	old := reading(now.Add(-6*24*time.Hour), telemetry.ChannelPH, 7.0, 1, 2)
	mid := reading(now.Add(-3*24*time.Hour), telemetry.ChannelPH, 7.1, 3, 4)
	fresh := reading(now.Add(-time.Hour), telemetry.ChannelTurbidity, 2.5, 5, 6)
	for _, r := range []telemetry.Reading{old, mid, fresh} {
		if err := l.Append(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Advance the clock four days: cutoff lands exactly on mid's timestamp,
	// which must survive, while old expires.
	future := now.Add(4 * 24 * time.Hour)
	if err := l.Prune(future); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := l.ReadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 surviving readings, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(mid.Timestamp) || got[0].Value != mid.Value || got[0].Coordinates != mid.Coordinates {
		t.Fatalf("mid reading not preserved intact: %+v", got[0])
	}
	if !got[1].Timestamp.Equal(fresh.Timestamp) || got[1].Channel != fresh.Channel {
		t.Fatalf("fresh reading not preserved intact: %+v", got[1])
	}

	// Pruning again with the same now must not change the surviving set.
	if err := l.Prune(future); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, err := l.ReadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != len(got) {
		t.Fatalf("prune not idempotent: %d then %d readings", len(got), len(again))
	}
}

func TestPruneSkipsMalformedRows(t *testing.T) {
	l := newTestLog(t)

	now := time.Now().UTC().Truncate(time.Second)
	content := "Timestamp,Sensor,Value,Latitude,Longitude\n" +
		now.Format(TimeLayout) + ",pH,7.2,44.8,20.5\n" +
		"not-a-timestamp,pH,7.3,44.8,20.5\n"
	if err := os.WriteFile(l.path, []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := l.Prune(now); err != nil {
		t.Fatalf("prune must skip malformed rows, got %v", err)
	}

	got, err := l.ReadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the single well-formed reading, got %d", len(got))
	}
	if got[0].Value != 7.2 {
		t.Fatalf("unexpected surviving reading: %+v", got[0])
	}

	// The rewrite compacted the bad row away.
	raw, err := os.ReadFile(l.path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(raw), "not-a-timestamp") {
		t.Fatalf("malformed row still present after prune")
	}
}

func TestAppendStampsZeroTimestamp(t *testing.T) {
	l := newTestLog(t)

	before := time.Now().UTC().Add(-time.Second)
	if err := l.Append(telemetry.Reading{Channel: telemetry.ChannelConductivity, Value: 410}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := time.Now().UTC().Add(time.Second)

	got, err := l.ReadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(got))
	}
	if got[0].Timestamp.Before(before) || got[0].Timestamp.After(after) {
		t.Fatalf("timestamp %v not stamped at append time", got[0].Timestamp)
	}
}
