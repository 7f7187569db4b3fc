// Package backtester implements the event-driven backtesting engine
// (§4.6): an Engine owns a date-range (or datetime-range, for
// Intraday), a set of strategies, and drives a data-driven,
// time-ordered iteration over the union of timestamps present across
// every strategy's portfolio. Narrowed from the base repository's
// internal/backtester/engine.go, which drove an open-ended
// market-data/signal/order/fill event union off a priority queue, down
// to exactly the three per-strategy hooks of §4.5
// (eventExitOrders/eventProcessPendingOrders/eventEntryOrders) plus
// bar-append; of the base repo's run loop only a context-checked
// Run(ctx) entry point and a Cancel guard are kept, with no periodic
// progress reporting.
package backtester

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/mkc-quant/palvalidator/internal/broker"
	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/mkc-quant/palvalidator/internal/strategy"
	"github.com/mkc-quant/palvalidator/internal/telemetry"
	"go.uber.org/zap"
)

// Result is the outcome of one Run: each configured strategy's broker
// summary, keyed by strategy name.
type Result struct {
	Summaries map[string]broker.Summary
	// BarsProcessed counts (timestamp, strategy, symbol) triples actually
	// dispatched.
	BarsProcessed int
}

// Engine drives a single TimeFrame variant. Construct one via
// NewDaily/NewWeekly/NewMonthly/NewIntraday rather than directly: the
// constructor fixes the timestamp domain (date vs. datetime) that
// Configure validates Start/End against.
type Engine struct {
	logger    *zap.Logger
	timeframe series.Timeframe

	start      time.Time
	end        time.Time
	strategies []*strategy.Strategy

	running   atomic.Bool
	cancelled atomic.Bool
}

func newEngine(logger *zap.Logger, tf series.Timeframe) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger, timeframe: tf}
}

// NewDaily, NewWeekly, and NewMonthly construct engines whose Start/End
// must be date-only (midnight).
func NewDaily(logger *zap.Logger) *Engine   { return newEngine(logger, series.Daily) }
func NewWeekly(logger *zap.Logger) *Engine  { return newEngine(logger, series.Weekly) }
func NewMonthly(logger *zap.Logger) *Engine { return newEngine(logger, series.Monthly) }

// NewIntraday constructs an engine whose Start/End must carry a
// non-midnight time-of-day component.
func NewIntraday(logger *zap.Logger) *Engine { return newEngine(logger, series.Intraday) }

// NewFromTimeFrame is the factory entry point: it selects the variant
// from tf, failing with UnsupportedTimeframe on an unknown tag
// (grounded on BackTesterFactory<DecimalType>::getBackTester's
// tag-driven dispatch).
func NewFromTimeFrame(logger *zap.Logger, tf series.Timeframe) (*Engine, error) {
	switch tf {
	case series.Daily:
		return NewDaily(logger), nil
	case series.Weekly:
		return NewWeekly(logger), nil
	case series.Monthly:
		return NewMonthly(logger), nil
	case series.Intraday:
		return NewIntraday(logger), nil
	default:
		return nil, errs.NewUnsupportedTimeframe("backtester.NewFromTimeFrame", "unknown timeframe tag")
	}
}

func isMidnight(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}

// Configure sets the engine's range and portfolio. Daily/Weekly/Monthly
// reject a start or end carrying a time-of-day component; Intraday
// rejects a start and end that are both exactly midnight, since that
// is indistinguishable from date-only construction (§4.6's
// "INTRADAY rejects date-only construction; non-intraday rejects
// datetime construction").
func (e *Engine) Configure(start, end time.Time, strategies ...*strategy.Strategy) error {
	if !end.After(start) {
		return errs.InvalidArg("backtester.Configure", "end must be after start")
	}
	if e.timeframe == series.Intraday {
		if isMidnight(start) && isMidnight(end) {
			return errs.NewUnsupportedTimeframe("backtester.Configure", "intraday backtester requires datetime construction")
		}
	} else if !isMidnight(start) || !isMidnight(end) {
		return errs.NewUnsupportedTimeframe("backtester.Configure", "non-intraday backtester requires date-only construction")
	}
	e.start = start
	e.end = end
	e.strategies = strategies
	return nil
}

// Clone returns a new Engine of the same variant and configured range,
// with an independent, empty strategy slice.
func (e *Engine) Clone() *Engine {
	c := newEngine(e.logger, e.timeframe)
	c.start, c.end = e.start, e.end
	return c
}

func (e *Engine) Timeframe() series.Timeframe { return e.timeframe }

// Start and End expose the configured range, so a caller that clones
// an engine (e.g. a permutation test re-backtesting against synthetic
// series) can read back the range Clone already copied without having
// to thread it through separately.
func (e *Engine) Start() time.Time { return e.start }
func (e *Engine) End() time.Time   { return e.end }

// AttachStrategies sets the engine's strategy set directly, without
// re-validating the configured range against Start/End's domain. Used
// after Clone, whose copied range is already known valid, to avoid
// forcing a caller to re-derive and re-pass Start/End just to attach a
// fresh strategy set (§4.9/§4.10's per-permutation re-backtest).
func (e *Engine) AttachStrategies(strategies ...*strategy.Strategy) {
	e.strategies = strategies
}

// Cancel requests that a running Run stop at its next timestamp
// boundary.
func (e *Engine) Cancel() { e.cancelled.Store(true) }

// timestampUnion returns, in ascending order, every distinct timestamp
// carried by any strategy's portfolio series that falls in the
// configured range. Daily/Weekly/Monthly ranges are end-inclusive;
// Intraday ranges are end-exclusive when a bar's timestamp lands
// exactly on end (spec.md §9's open-question decision: end-inclusive
// reads naturally for a whole trading day, but an intraday bar
// timestamped exactly at end is the first bar of the *next* session,
// not the last bar of this one).
func (e *Engine) timestampUnion() []time.Time {
	seen := make(map[int64]time.Time)
	for _, s := range e.strategies {
		for _, symbol := range s.Securities() {
			ser, ok := s.SeriesFor(symbol)
			if !ok {
				continue
			}
			for _, bar := range ser.All() {
				if bar.Timestamp.Before(e.start) {
					continue
				}
				if e.timeframe == series.Intraday {
					if !bar.Timestamp.Before(e.end) {
						continue
					}
				} else if bar.Timestamp.After(e.end) {
					continue
				}
				seen[bar.Timestamp.UnixNano()] = bar.Timestamp
			}
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Run drives the configured strategies across the union of portfolio
// timestamps in the configured range (end-inclusive for
// Daily/Weekly/Monthly, end-exclusive for Intraday; see
// timestampUnion). Per timestamp, per strategy, per
// security carrying a bar at that timestamp, it runs the ordering of
// §4.6: exit orders are (re-)emitted and the book is (re-)processed
// around the entry fill so that a unit opened at this bar's open can
// still have its bracket touched by the rest of this same bar (§8
// scenario 1), then entry orders are evaluated, then the bar is
// appended to any position left open. Positions still open when the
// range is exhausted are marked to the last bar's close.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, errs.InvalidArg("backtester.Run", "engine is already running")
	}
	defer e.running.Store(false)
	e.cancelled.Store(false)

	timestamps := e.timestampUnion()
	processed := 0

	for _, ts := range timestamps {
		if e.cancelled.Load() {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		for _, s := range e.strategies {
			for _, symbol := range s.Securities() {
				ser, ok := s.SeriesFor(symbol)
				if !ok {
					continue
				}
				bar, err := ser.GetEntry(ts)
				if err != nil {
					if errs.Is(err, errs.NotFound) {
						continue
					}
					return nil, err
				}

				if err := e.stepSymbol(s, symbol, ts, bar); err != nil {
					return nil, err
				}
				processed++
				telemetry.BacktesterEventsProcessed.WithLabelValues(e.timeframe.String()).Inc()
			}
		}
	}

	if err := e.closeRemainingPositions(); err != nil {
		return nil, err
	}

	return e.collectResult(processed), nil
}

// stepSymbol runs one strategy's hooks for one security at one
// timestamp. Exit-order emission and pending-order processing run
// twice: a unit opened by the first pass's entry fill has no exit
// bracket resting yet, so a second pass emits that bracket and lets it
// fire against the bar that just opened the position, rather than
// deferring it to the following timestamp.
func (e *Engine) stepSymbol(s *strategy.Strategy, symbol string, ts time.Time, bar series.Bar) error {
	if err := s.EventExitOrders(symbol, ts); err != nil {
		return err
	}
	if err := s.EventProcessPendingOrders(symbol, bar); err != nil {
		return err
	}
	if err := s.EventExitOrders(symbol, ts); err != nil {
		return err
	}
	if err := s.EventProcessPendingOrders(symbol, bar); err != nil {
		return err
	}
	if err := s.EventEntryOrders(symbol, ts); err != nil {
		return err
	}
	return s.AppendBar(symbol, bar)
}

func (e *Engine) closeRemainingPositions() error {
	for _, s := range e.strategies {
		for _, symbol := range s.Securities() {
			ser, ok := s.SeriesFor(symbol)
			if !ok {
				continue
			}
			last, err := ser.Last()
			if err != nil {
				continue
			}
			if err := s.Broker.CloseAllOpenPositions(symbol, last.Timestamp, last.Close); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) collectResult(processed int) *Result {
	summaries := make(map[string]broker.Summary, len(e.strategies))
	for _, s := range e.strategies {
		summaries[s.Name] = s.Broker.Summary()
	}
	return &Result{Summaries: summaries, BarsProcessed: processed}
}
