package backtester_test

import (
	"context"
	"testing"
	"time"

	"github.com/mkc-quant/palvalidator/internal/backtester"
	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/pattern"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/mkc-quant/palvalidator/internal/strategy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
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

func closeGTOpen() *pattern.Comparison {
	return &pattern.Comparison{
		LHS: pattern.PriceBarRef{Field: series.FieldClose, Offset: 0},
		RHS: pattern.PriceBarRef{Field: series.FieldOpen, Offset: 0},
	}
}

// TestEngineRunFillsAndClosesThroughTarget drives a three-bar series
// through a Daily engine end to end: D1 signals, D2's open fills the
// entry and D2's own high reaches the target, so the position is
// closed by the time the range is exhausted (scenario 1 of the
// end-to-end suite).
func TestEngineRunFillsAndClosesThroughTarget(t *testing.T) {
	logger := zap.NewNop()
	target := dec("0.01")
	stop := dec("0.005")
	p, err := pattern.New(closeGTOpen(), pattern.Long, &target, &stop, "close-above-open")
	if err != nil {
		t.Fatalf("pattern.New: %v", err)
	}
	s, err := strategy.New("t1", p, dec("0.01"), decimal.Zero, logger)
	if err != nil {
		t.Fatalf("strategy.New: %v", err)
	}

	ser := series.New(series.Daily)
	for _, b := range []series.Bar{
		mustBar(t, 0, "99", "100", "98", "99"),
		mustBar(t, 1, "100", "101", "99", "100.5"),
		mustBar(t, 2, "100.5", "102", "100.5", "100.5"),
		mustBar(t, 3, "101", "103", "100.5", "102"),
	} {
		if err := ser.AddEntry(b); err != nil {
			t.Fatalf("AddEntry: %v", err)
		}
	}
	s.AddSecurity("XYZ", ser)

	e := backtester.NewDaily(logger)
	if err := e.Configure(day(0), day(4), s); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	summary := result.Summaries["t1"]
	if summary.NumPositions != 1 {
		t.Fatalf("NumPositions = %d, want 1", summary.NumPositions)
	}
	if summary.NumWinners != 1 {
		t.Fatalf("NumWinners = %d, want 1 (target hit on D2's own high)", summary.NumWinners)
	}
	if !s.Broker.Position("XYZ").IsFlat() {
		t.Error("expected the position to be flat after the target fill")
	}
}

// TestEngineConfigureRejectsMismatchedDomain checks the
// reject-on-mismatched-domain rule: a Daily engine refuses a datetime
// range and an Intraday engine refuses an all-midnight range.
func TestEngineConfigureRejectsMismatchedDomain(t *testing.T) {
	logger := zap.NewNop()
	daily := backtester.NewDaily(logger)
	intradayStart := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	intradayEnd := time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC)
	if err := daily.Configure(intradayStart, intradayEnd); !errs.Is(err, errs.UnsupportedTimeframe) {
		t.Fatalf("Configure on Daily with a datetime range: got %v, want UnsupportedTimeframe", err)
	}

	intraday := backtester.NewIntraday(logger)
	if err := intraday.Configure(day(0), day(1)); !errs.Is(err, errs.UnsupportedTimeframe) {
		t.Fatalf("Configure on Intraday with a date-only range: got %v, want UnsupportedTimeframe", err)
	}

	if err := intraday.Configure(intradayStart, intradayEnd); err != nil {
		t.Fatalf("Configure on Intraday with a genuine datetime range: %v", err)
	}
}

func TestNewFromTimeFrameUnknownTagFails(t *testing.T) {
	_, err := backtester.NewFromTimeFrame(zap.NewNop(), series.Timeframe(99))
	if !errs.Is(err, errs.UnsupportedTimeframe) {
		t.Fatalf("NewFromTimeFrame(99): got %v, want UnsupportedTimeframe", err)
	}
}

func TestEngineRunIsDataDrivenAcrossMismatchedPortfolios(t *testing.T) {
	logger := zap.NewNop()
	p, err := pattern.New(closeGTOpen(), pattern.Long, nil, nil, "close-above-open")
	if err != nil {
		t.Fatalf("pattern.New: %v", err)
	}
	s, err := strategy.New("t1", p, dec("0.01"), decimal.Zero, logger)
	if err != nil {
		t.Fatalf("strategy.New: %v", err)
	}

	// ABC only has a bar on day 2; the union-of-timestamps iteration
	// must not choke on a symbol with no bar at every timestamp.
	abc := series.New(series.Daily)
	_ = abc.AddEntry(mustBar(t, 2, "10", "11", "9", "10"))
	s.AddSecurity("ABC", abc)

	xyz := series.New(series.Daily)
	_ = xyz.AddEntry(mustBar(t, 0, "99", "100", "98", "99"))
	_ = xyz.AddEntry(mustBar(t, 1, "100", "101", "99", "99.5"))
	s.AddSecurity("XYZ", xyz)

	e := backtester.NewDaily(logger)
	if err := e.Configure(day(0), day(3), s); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
