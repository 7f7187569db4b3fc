package series_test

import (
	"testing"
	"time"

	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func day(offset int) time.Time {
	return time.Date(2024, 1, 1+offset, 0, 0, 0, 0, time.UTC)
}

func mustBar(t *testing.T, offset int, o, h, l, c string) series.Bar {
	t.Helper()
	b, err := series.NewBar(day(offset), dec(o), dec(h), dec(l), dec(c), dec("1000"))
	if err != nil {
		t.Fatalf("NewBar: %v", err)
	}
	return b
}

func buildSeries(t *testing.T) *series.Series {
	t.Helper()
	s := series.New(series.Daily)
	bars := []series.Bar{
		mustBar(t, 0, "100", "101", "99", "100.5"),
		mustBar(t, 1, "100.5", "102", "100", "101"),
		mustBar(t, 2, "101", "103", "100.5", "102"),
	}
	for _, b := range bars {
		if err := s.AddEntry(b); err != nil {
			t.Fatalf("AddEntry: %v", err)
		}
	}
	return s
}

func TestNewBarRejectsInvalidOHLC(t *testing.T) {
	_, err := series.NewBar(day(0), dec("100"), dec("99"), dec("98"), dec("100.5"), dec("0"))
	if !errs.Is(err, errs.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestAddEntryRejectsDuplicateTimestamp(t *testing.T) {
	s := buildSeries(t)
	dup := mustBar(t, 2, "101", "103", "100.5", "102")
	err := s.AddEntry(dup)
	if !errs.Is(err, errs.DuplicateTimestamp) {
		t.Fatalf("expected DuplicateTimestamp, got %v", err)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	s := buildSeries(t)
	_, err := s.GetEntry(day(99))
	if !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGetEntryOffsetOutOfRange(t *testing.T) {
	s := buildSeries(t)
	_, err := s.GetEntryOffset(day(0), 1) // one earlier than the first bar
	if !errs.Is(err, errs.OffsetOutOfRange) {
		t.Fatalf("expected OffsetOutOfRange, got %v", err)
	}
}

// TestOffsetSymmetry verifies the universal invariant from spec.md §8:
// getEntry(getEntry(ts, k).timestamp, -k).timestamp == ts.
func TestOffsetSymmetry(t *testing.T) {
	s := buildSeries(t)
	ts := day(2)
	for k := -2; k <= 0; k++ {
		bar, err := s.GetEntryOffset(ts, k)
		if err != nil {
			t.Fatalf("GetEntryOffset(%v, %d): %v", ts, k, err)
		}
		back, err := s.GetEntryOffset(bar.Timestamp, -k)
		if err != nil {
			t.Fatalf("round trip GetEntryOffset: %v", err)
		}
		if !back.Timestamp.Equal(ts) {
			t.Errorf("offset symmetry broken for k=%d: got %v, want %v", k, back.Timestamp, ts)
		}
	}
}

func TestFirstAndLast(t *testing.T) {
	s := buildSeries(t)
	first, err := s.First()
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if !first.Timestamp.Equal(day(0)) {
		t.Errorf("First timestamp = %v, want %v", first.Timestamp, day(0))
	}

	last, err := s.Last()
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if !last.Timestamp.Equal(day(2)) {
		t.Errorf("Last timestamp = %v, want %v", last.Timestamp, day(2))
	}
}

func TestBetweenIsEndExclusive(t *testing.T) {
	s := buildSeries(t)
	got := s.Between(day(0), day(2))
	if len(got) != 2 {
		t.Fatalf("Between(day0, day2) returned %d bars, want 2", len(got))
	}
}

func TestEqual(t *testing.T) {
	a := buildSeries(t)
	b := buildSeries(t)
	if !a.Equal(b) {
		t.Error("two series built from identical bars should be Equal")
	}
}
