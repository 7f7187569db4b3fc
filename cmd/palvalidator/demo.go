package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/mkc-quant/palvalidator/internal/pattern"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/shopspring/decimal"
)

// buildDemoSeries fabricates a deterministic daily OHLC walk standing
// in for a CSV-loaded security (spec.md §1 names readers/writers an
// external collaborator this module does not implement). Its only job
// is to give the preparer and validator something to actually run
// against when no data pipeline is wired in front of this binary.
func buildDemoSeries() *series.Series {
	s := series.New(series.Daily)
	rng := rand.New(rand.NewSource(42))

	price := decimal.NewFromInt(100)
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 500; i++ {
		open := price
		drift := decimal.NewFromFloat(rng.NormFloat64() * 0.8)
		close := open.Add(drift)
		if close.IsNegative() {
			close = decimal.NewFromFloat(1)
		}
		high := open
		if close.GreaterThan(high) {
			high = close
		}
		high = high.Add(decimal.NewFromFloat(rng.Float64()))
		low := open
		if close.LessThan(low) {
			low = close
		}
		low = low.Sub(decimal.NewFromFloat(rng.Float64()))

		bar, err := series.NewBar(ts, open, high, low, close, decimal.NewFromInt(10000))
		if err == nil {
			_ = s.AddEntry(bar)
		}

		price = close
		ts = ts.AddDate(0, 0, 1)
	}
	return s
}

// buildDemoPatterns builds a small catalog of long/short patterns over
// close-price comparisons at increasing lookback offsets, standing in
// for a pattern catalog an upstream PAL-file parser would otherwise
// supply (patterns are given, per spec.md §1's non-goals).
func buildDemoPatterns() []*pattern.Pattern {
	target := decimal.NewFromFloat(0.02)
	stop := decimal.NewFromFloat(0.01)

	var patterns []*pattern.Pattern
	for lookback := 1; lookback <= 4; lookback++ {
		longExpr := &pattern.Comparison{
			LHS: pattern.PriceBarRef{Field: series.FieldClose, Offset: 0},
			RHS: pattern.PriceBarRef{Field: series.FieldClose, Offset: lookback},
		}
		longName := fmt.Sprintf("close > close[%d]", lookback)
		if p, err := pattern.New(longExpr, pattern.Long, &target, &stop, longName); err == nil {
			patterns = append(patterns, p)
		}

		shortExpr := &pattern.Comparison{
			LHS: pattern.PriceBarRef{Field: series.FieldClose, Offset: lookback},
			RHS: pattern.PriceBarRef{Field: series.FieldClose, Offset: 0},
		}
		shortName := fmt.Sprintf("close[%d] > close", lookback)
		if p, err := pattern.New(shortExpr, pattern.Short, &target, &stop, shortName); err == nil {
			patterns = append(patterns, p)
		}
	}
	return patterns
}
