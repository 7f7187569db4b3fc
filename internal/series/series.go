// Package series implements the time-series store (§4.1/§4.2): an
// ordered sequence of OHLC bars of a single timeframe, with exact and
// offset-based lookup, first/last accessors, and chronological
// iteration. Grounded on the base repository's internal/data.Store
// shape (a store wrapping bar lookups) but reworked into an in-memory
// index over immutable bars rather than a CSV-backed reader, since
// readers/writers are an external collaborator here (spec.md §1).
package series

import (
	"time"

	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/shopspring/decimal"
)

// Timeframe tags the granularity a Series was built for.
type Timeframe int

const (
	Daily Timeframe = iota
	Weekly
	Monthly
	Intraday
)

func (tf Timeframe) String() string {
	switch tf {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Intraday:
		return "intraday"
	default:
		return "unknown"
	}
}

// Bar is a single OHLC entry. Bars are immutable once added to a
// Series.
type Bar struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// NewBar validates low <= open,close <= high before constructing a Bar.
func NewBar(ts time.Time, open, high, low, close, volume decimal.Decimal) (Bar, error) {
	if low.GreaterThan(open) || open.GreaterThan(high) {
		return Bar{}, errs.InvalidArg("series.NewBar", "open out of [low, high] range")
	}
	if low.GreaterThan(close) || close.GreaterThan(high) {
		return Bar{}, errs.InvalidArg("series.NewBar", "close out of [low, high] range")
	}
	return Bar{Timestamp: ts, Open: open, High: high, Low: low, Close: close, Volume: volume}, nil
}

// Series is an ordered, read-only-once-populated sequence of bars of a
// single timeframe. Exact lookup is O(1) average via a hash index over
// a sorted backing slice; offset lookup is O(1) once the hash index
// has located the base position. This is the "hash+sorted index"
// policy of the two §4.1 allows.
type Series struct {
	timeframe Timeframe
	bars      []Bar
	index     map[int64]int // unix nanos -> position in bars
}

// New creates an empty Series for the given timeframe.
func New(timeframe Timeframe) *Series {
	return &Series{
		timeframe: timeframe,
		index:     make(map[int64]int),
	}
}

func (s *Series) Timeframe() Timeframe { return s.timeframe }
func (s *Series) Len() int             { return len(s.bars) }

// AddEntry appends bar, failing with DuplicateTimestamp if its
// timestamp is already present. Bars must be added in non-decreasing
// timestamp order; the store does not re-sort on insert.
func (s *Series) AddEntry(bar Bar) error {
	key := bar.Timestamp.UnixNano()
	if _, exists := s.index[key]; exists {
		return errs.NewDuplicateTimestamp("series.AddEntry", "timestamp "+bar.Timestamp.String()+" already present")
	}
	if n := len(s.bars); n > 0 && bar.Timestamp.Before(s.bars[n-1].Timestamp) {
		return errs.InvalidArg("series.AddEntry", "bar timestamp out of order")
	}
	s.index[key] = len(s.bars)
	s.bars = append(s.bars, bar)
	return nil
}

func (s *Series) positionOf(ts time.Time) (int, bool) {
	pos, ok := s.index[ts.UnixNano()]
	return pos, ok
}

// GetEntry returns the bar at ts, failing with NotFound otherwise.
func (s *Series) GetEntry(ts time.Time) (Bar, error) {
	pos, ok := s.positionOf(ts)
	if !ok {
		return Bar{}, errs.NewNotFound("series.GetEntry", "timestamp "+ts.String()+" not found")
	}
	return s.bars[pos], nil
}

// GetEntryOffset returns the bar offset positions earlier (positive) or
// later (negative) than ts, failing with OffsetOutOfRange if that
// position does not exist.
func (s *Series) GetEntryOffset(ts time.Time, offset int) (Bar, error) {
	pos, ok := s.positionOf(ts)
	if !ok {
		return Bar{}, errs.NewNotFound("series.GetEntryOffset", "timestamp "+ts.String()+" not found")
	}
	target := pos - offset
	if target < 0 || target >= len(s.bars) {
		return Bar{}, errs.NewOffsetOutOfRange("series.GetEntryOffset", "offset out of range")
	}
	return s.bars[target], nil
}

// GetValue returns field's value in the bar offset positions from ts — the
// common case for pattern evaluation, which only ever compares OHLC
// field values, never whole bars.
func (s *Series) GetValue(ts time.Time, offset int, field Field) (decimal.Decimal, error) {
	bar, err := s.GetEntryOffset(ts, offset)
	if err != nil {
		return decimal.Zero, err
	}
	return field.Extract(bar), nil
}

// First returns the earliest bar, failing with NotFound if the series
// is empty.
func (s *Series) First() (Bar, error) {
	if len(s.bars) == 0 {
		return Bar{}, errs.NewNotFound("series.First", "series is empty")
	}
	return s.bars[0], nil
}

// Last returns the latest bar, failing with NotFound if the series is
// empty.
func (s *Series) Last() (Bar, error) {
	if len(s.bars) == 0 {
		return Bar{}, errs.NewNotFound("series.Last", "series is empty")
	}
	return s.bars[len(s.bars)-1], nil
}

// All returns bars in chronological order. The returned slice aliases
// internal storage and must not be mutated by callers.
func (s *Series) All() []Bar { return s.bars }

// Between returns bars with timestamp in [start, end). The backtester
// does not use it; it applies its own range filter (§4.6). Callers
// needing an inclusive end pass end.Add(time.Nanosecond) or equivalent.
func (s *Series) Between(start, end time.Time) []Bar {
	var out []Bar
	for _, b := range s.bars {
		if b.Timestamp.Before(start) {
			continue
		}
		if !b.Timestamp.Before(end) {
			break
		}
		out = append(out, b)
	}
	return out
}

// Equal compares timeframe and element-wise entries.
func (s *Series) Equal(o *Series) bool {
	if s.timeframe != o.timeframe || len(s.bars) != len(o.bars) {
		return false
	}
	for i, b := range s.bars {
		ob := o.bars[i]
		if !b.Timestamp.Equal(ob.Timestamp) || !b.Open.Equal(ob.Open) || !b.High.Equal(ob.High) ||
			!b.Low.Equal(ob.Low) || !b.Close.Equal(ob.Close) || !b.Volume.Equal(ob.Volume) {
			return false
		}
	}
	return true
}

// Field identifies an OHLC field extracted by a pattern's price-bar
// references (§4.3).
type Field int

const (
	FieldOpen Field = iota
	FieldHigh
	FieldLow
	FieldClose
	FieldVolume
)

func (f Field) Extract(b Bar) decimal.Decimal {
	switch f {
	case FieldOpen:
		return b.Open
	case FieldHigh:
		return b.High
	case FieldLow:
		return b.Low
	case FieldClose:
		return b.Close
	case FieldVolume:
		return b.Volume
	default:
		return decimal.Zero
	}
}

func (f Field) String() string {
	switch f {
	case FieldOpen:
		return "open"
	case FieldHigh:
		return "high"
	case FieldLow:
		return "low"
	case FieldClose:
		return "close"
	case FieldVolume:
		return "volume"
	default:
		return "unknown"
	}
}
