package validator_test

import (
	"context"
	"testing"
	"time"

	"github.com/mkc-quant/palvalidator/internal/backtester"
	"github.com/mkc-quant/palvalidator/internal/pattern"
	"github.com/mkc-quant/palvalidator/internal/permtest"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/mkc-quant/palvalidator/internal/strategy"
	"github.com/mkc-quant/palvalidator/internal/validator"
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

func closeGTClosePrior() pattern.Expr {
	return &pattern.Comparison{
		LHS: pattern.PriceBarRef{Field: series.FieldClose, Offset: 0},
		RHS: pattern.PriceBarRef{Field: series.FieldClose, Offset: 1},
	}
}

// trendingSeries builds a long run of up-days followed by a pullback,
// the same shape internal/pattern's own fixture uses, extended to give
// a handful of entry signals across the range.
func trendingSeries(t *testing.T, n int) *series.Series {
	t.Helper()
	s := series.New(series.Daily)
	price := dec("100")
	for i := 0; i < n; i++ {
		open := price
		var close decimal.Decimal
		if i%4 == 3 {
			close = open.Sub(dec("0.5"))
		} else {
			close = open.Add(dec("1"))
		}
		high := decimalMax(open, close).Add(dec("0.5"))
		low := decimalMin(open, close).Sub(dec("0.5"))
		bar, err := series.NewBar(day(i), open, high, low, close, dec("1000"))
		if err != nil {
			t.Fatalf("NewBar: %v", err)
		}
		if err := s.AddEntry(bar); err != nil {
			t.Fatalf("AddEntry: %v", err)
		}
		price = close
	}
	return s
}

func decimalMax(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func decimalMin(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func buildStrategy(t *testing.T, name string, dir pattern.Direction, ser *series.Series) *strategy.Strategy {
	t.Helper()
	target := dec("0.02")
	stop := dec("0.01")
	p, err := pattern.New(closeGTClosePrior(), dir, &target, &stop, name)
	if err != nil {
		t.Fatalf("pattern.New: %v", err)
	}
	s, err := strategy.New(name, p, dec("0.01"), decimal.NewFromInt(1), zap.NewNop())
	if err != nil {
		t.Fatalf("strategy.New: %v", err)
	}
	s.AddSecurity("ABC", ser)
	return s
}

func buildEngine(t *testing.T, ser *series.Series, s *strategy.Strategy) *backtester.Engine {
	t.Helper()
	eng := backtester.NewDaily(nil)
	first, _ := ser.First()
	last, _ := ser.Last()
	if err := eng.Configure(first.Timestamp, last.Timestamp, s); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return eng
}

func TestMastersRunProducesPValuesForEveryStrategy(t *testing.T) {
	ser := trendingSeries(t, 30)
	s := buildStrategy(t, "strong", pattern.Long, ser)
	eng := buildEngine(t, ser, s)
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("baseline Run: %v", err)
	}
	summary := s.Broker.Summary()

	stat := permtest.ProfitFactorPolicy{MinTrades: 1}
	runner := validator.NewRunner(eng, map[string]*series.Series{"ABC": ser}, dec("0.01"), stat)

	baseline := []validator.StrategyContext{
		{Strategy: s, BaselineStat: stat.Statistic(summary), NumTrades: summary.NumPositions},
	}

	alg := &validator.Masters{Runner: runner}
	result, err := alg.Run(context.Background(), baseline, 5, dec("0.2"), 42)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("len(result) = %d, want 1", len(result))
	}
	p, ok := result["strong"]
	if !ok {
		t.Fatal("missing p-value for strategy \"strong\"")
	}
	if p.LessThan(decimal.Zero) || p.GreaterThan(decimal.NewFromInt(1)) {
		t.Fatalf("p-value %s out of [0,1]", p)
	}
}

func TestRomanoWolfRunIsMonotoneStepDown(t *testing.T) {
	ser := trendingSeries(t, 30)
	s1 := buildStrategy(t, "a", pattern.Long, ser)
	s2 := buildStrategy(t, "b", pattern.Long, ser)
	eng1 := buildEngine(t, ser, s1)
	eng2 := buildEngine(t, ser, s2)
	if _, err := eng1.Run(context.Background()); err != nil {
		t.Fatalf("baseline Run a: %v", err)
	}
	if _, err := eng2.Run(context.Background()); err != nil {
		t.Fatalf("baseline Run b: %v", err)
	}

	stat := permtest.ProfitFactorPolicy{MinTrades: 1}
	runner := validator.NewRunner(eng1, map[string]*series.Series{"ABC": ser}, dec("0.01"), stat)

	baseline := []validator.StrategyContext{
		{Strategy: s1, BaselineStat: stat.Statistic(s1.Broker.Summary()), NumTrades: s1.Broker.Summary().NumPositions},
		{Strategy: s2, BaselineStat: stat.Statistic(s2.Broker.Summary()), NumTrades: s2.Broker.Summary().NumPositions},
	}

	alg := &validator.RomanoWolf{Runner: runner}
	result, err := alg.Run(context.Background(), baseline, 4, dec("1"), 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("len(result) = %d, want 2", len(result))
	}
	for name, p := range result {
		if p.LessThan(decimal.Zero) || p.GreaterThan(decimal.NewFromInt(1)) {
			t.Errorf("strategy %s p-value %s out of [0,1]", name, p)
		}
	}
}

func TestFamilyPartitionedSplitsByDirection(t *testing.T) {
	longSeries := trendingSeries(t, 20)
	shortSeries := trendingSeries(t, 20)
	longStrat := buildStrategy(t, "long-one", pattern.Long, longSeries)
	shortStrat := buildStrategy(t, "short-one", pattern.Short, shortSeries)

	longEng := buildEngine(t, longSeries, longStrat)
	shortEng := buildEngine(t, shortSeries, shortStrat)
	if _, err := longEng.Run(context.Background()); err != nil {
		t.Fatalf("Run long: %v", err)
	}
	if _, err := shortEng.Run(context.Background()); err != nil {
		t.Fatalf("Run short: %v", err)
	}

	stat := permtest.ProfitFactorPolicy{MinTrades: 1}
	baseline := []validator.StrategyContext{
		{Strategy: longStrat, BaselineStat: stat.Statistic(longStrat.Broker.Summary())},
		{Strategy: shortStrat, BaselineStat: stat.Statistic(shortStrat.Broker.Summary())},
	}

	fp := &validator.FamilyPartitioned{
		Partition: true,
		NewRunner: func() *validator.Runner {
			return validator.NewRunner(longEng, map[string]*series.Series{"ABC": longSeries}, dec("0.01"), stat)
		},
		NewAlgorithm: func(r *validator.Runner) validator.Algorithm {
			return &validator.Masters{Runner: r}
		},
	}

	result, err := fp.Run(context.Background(), baseline, 3, dec("0.5"), 11)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("len(result) = %d, want 2", len(result))
	}
}
