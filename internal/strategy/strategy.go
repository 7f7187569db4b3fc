// Package strategy implements the pattern-driven strategy (§4.5 second
// half): a strategy evaluates one pattern across a portfolio of
// securities and drives entries and exits through a broker via the
// three-hook model the backtester drives per timestamp per security:
// EventExitOrders then EventProcessPendingOrders, that pair run twice
// so a unit opened at the bar's open has its exit bracket checked
// against the same bar, then EventEntryOrders.
//
// Narrowed from the base repository's generic indicator-suite
// Strategy interface (momentum/mean-reversion/breakout/RSI, parameter
// registry, OnBar/OnTick signal emission) down to this single
// pattern-evaluation model; the registry and the generic indicator
// implementations are not carried forward.
package strategy

import (
	"time"

	"github.com/mkc-quant/palvalidator/internal/broker"
	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/orderbook"
	"github.com/mkc-quant/palvalidator/internal/pattern"
	"github.com/mkc-quant/palvalidator/internal/position"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/mkc-quant/palvalidator/pkg/decimalx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var defaultUnitVolume = decimal.NewFromInt(1)

// Strategy evaluates Pattern against each security in its portfolio
// and drives a dedicated Broker. The pattern is shared read-only
// across every clone of a strategy (§9's AST-ownership note); Strategy
// never mutates it.
type Strategy struct {
	Name       string
	Pattern    *pattern.Pattern
	TickSize   decimal.Decimal
	UnitVolume decimal.Decimal

	Broker *broker.Broker

	series map[string]*series.Series
	logger *zap.Logger
}

// New constructs a strategy around p. tickSize rounds every derived
// limit/stop price (§4.5); a zero unitVolume defaults to one unit per
// order, since the statistics this module computes are percent-return
// based and do not depend on absolute position size.
func New(name string, p *pattern.Pattern, tickSize, unitVolume decimal.Decimal, logger *zap.Logger) (*Strategy, error) {
	if p == nil {
		return nil, errs.InvalidArg("strategy.New", "pattern must not be nil")
	}
	if unitVolume.IsZero() {
		unitVolume = defaultUnitVolume
	}
	return &Strategy{
		Name:       name,
		Pattern:    p,
		TickSize:   tickSize,
		UnitVolume: unitVolume,
		Broker:     broker.New(logger),
		series:     make(map[string]*series.Series),
		logger:     logger,
	}, nil
}

// AddSecurity registers symbol's time series in the strategy's
// portfolio.
func (s *Strategy) AddSecurity(symbol string, ser *series.Series) {
	s.series[symbol] = ser
}

// Securities returns the symbols currently in the strategy's
// portfolio, in no particular order.
func (s *Strategy) Securities() []string {
	out := make([]string, 0, len(s.series))
	for sym := range s.series {
		out = append(out, sym)
	}
	return out
}

// SeriesFor returns symbol's registered time series, used by the
// backtester engine to enumerate the timestamps a symbol carries bars
// for.
func (s *Strategy) SeriesFor(symbol string) (*series.Series, bool) {
	ser, ok := s.series[symbol]
	return ser, ok
}

// Clone returns a fresh strategy sharing this one's pattern, tick
// size, and unit volume but with its own broker and an empty
// portfolio — the unit a permutation test re-backtests per synthetic
// series (§4.8/§4.10), since the pattern AST is read-only and safe to
// share across clones (§9) but a broker accumulates per-run state that
// must never leak between permutations.
func (s *Strategy) Clone(name string) *Strategy {
	return &Strategy{
		Name:       name,
		Pattern:    s.Pattern,
		TickSize:   s.TickSize,
		UnitVolume: s.UnitVolume,
		Broker:     broker.New(s.logger),
		series:     make(map[string]*series.Series),
		logger:     s.logger,
	}
}

// EventExitOrders is hook (i): it emits a target/stop pair for every
// open unit of symbol's position that does not already have a pending
// exit order, derived from the pattern's percent specifications
// relative to each unit's own entry price (§4.5).
func (s *Strategy) EventExitOrders(symbol string, ts time.Time) error {
	pos := s.Broker.Position(symbol)
	if pos.IsFlat() {
		return nil
	}
	side, _ := pos.Side()

	pendingSlots := make(map[int]bool)
	for _, o := range s.Broker.Book(symbol).Pending() {
		pendingSlots[o.Unit] = true
	}

	n := pos.NumUnits()
	for i := 1; i <= n; i++ {
		unit, err := pos.GetUnit(i)
		if err != nil {
			return err
		}
		if pendingSlots[s.Broker.SlotFor(symbol, unit)] {
			continue
		}
		if err := s.submitExitPair(symbol, unit, side, ts); err != nil {
			return err
		}
	}
	return nil
}

func (s *Strategy) submitExitPair(symbol string, unit *position.Unit, side position.Side, ts time.Time) error {
	target, stop := s.exitPrices(unit.EntryPrice, side)
	book := s.Broker.Book(symbol)

	var targetOrder, stopOrder *orderbook.Order
	if side == position.Long {
		if target != nil {
			targetOrder = book.NewSellAtLimitOrder(symbol, 0, s.UnitVolume, *target, 1, ts)
		}
		if stop != nil {
			stopOrder = book.NewSellAtStopOrder(symbol, 0, s.UnitVolume, *stop, 0, ts)
		}
	} else {
		if target != nil {
			targetOrder = book.NewCoverAtLimitOrder(symbol, 0, s.UnitVolume, *target, 1, ts)
		}
		if stop != nil {
			stopOrder = book.NewCoverAtStopOrder(symbol, 0, s.UnitVolume, *stop, 0, ts)
		}
	}

	if targetOrder != nil {
		if err := s.Broker.SubmitExitOrder(symbol, unit, targetOrder); err != nil {
			return err
		}
	}
	if stopOrder != nil {
		if err := s.Broker.SubmitExitOrder(symbol, unit, stopOrder); err != nil {
			return err
		}
	}
	return nil
}

// exitPrices derives the tick-rounded target/stop prices for a unit
// entered at entryPrice on side. Either return is nil when the pattern
// carries no such leg.
func (s *Strategy) exitPrices(entryPrice decimal.Decimal, side position.Side) (target, stop *decimal.Decimal) {
	if s.Pattern.ProfitTarget != nil {
		up := side == position.Long
		t := decimalx.RoundToTick(decimalx.PercentOf(entryPrice, *s.Pattern.ProfitTarget, up), s.TickSize)
		target = &t
	}
	if s.Pattern.StopLoss != nil {
		up := side == position.Short
		st := decimalx.RoundToTick(decimalx.PercentOf(entryPrice, *s.Pattern.StopLoss, up), s.TickSize)
		stop = &st
	}
	return target, stop
}

// EventProcessPendingOrders is hook (ii): it advances symbol's order
// book against nextBar, the bar now being processed. A market-on-open
// entry fills only on a bar after the one that produced it
// (§4.5/§4.6's one-bar-delay rule); limit and stop exits are also
// checked against the bar they were submitted on.
func (s *Strategy) EventProcessPendingOrders(symbol string, nextBar series.Bar) error {
	_, err := s.Broker.ProcessPendingOrders(symbol, nextBar)
	return err
}

// EventEntryOrders is hook (iii): if symbol's position is flat and the
// pattern fires against ts on symbol's series, it queues a
// market-on-open entry order timestamped ts, which fills at the next
// bar's open.
func (s *Strategy) EventEntryOrders(symbol string, ts time.Time) error {
	pos := s.Broker.Position(symbol)
	if !pos.IsFlat() {
		return nil
	}
	ser, ok := s.series[symbol]
	if !ok {
		return errs.NewNotFound("strategy.EventEntryOrders", "security not in portfolio")
	}
	if !pattern.EvaluatePattern(s.Pattern, ser, ts) {
		return nil
	}

	side := position.Long
	if s.Pattern.Direction == pattern.Short {
		side = position.Short
	}
	order := s.Broker.Book(symbol).NewMarketOnOpenOrder(symbol, true, side, 0, s.UnitVolume, 0, ts)
	return s.Broker.SubmitEntryOrder(order)
}

// AppendBar forwards bar to every open unit of symbol's position
// (§4.6's "then it appends the current bar to all open positions").
func (s *Strategy) AppendBar(symbol string, bar series.Bar) error {
	pos := s.Broker.Position(symbol)
	if pos.IsFlat() {
		return nil
	}
	return pos.AddBar(bar)
}
