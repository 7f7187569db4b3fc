// Package orderbook implements the order book & order manager (§4.3):
// the five PAL order kinds, a Pending/Executed/Canceled state machine,
// and the conservative fill rules — a strict one-bar delay for
// market-on-open entries, same-bar-or-later eligibility for limit/stop
// exit brackets — including the stop-wins-over-target tie-break when
// both touch the same exit unit on the same bar.
//
// Grounded on the base repository's order manager (mutex-guarded maps
// of pending/filled orders, submit/cancel/check-fills, zap debug
// logging) narrowed from its four generic order types and slippage
// model down to the five PAL order kinds and their exact fill-price
// formulas.
package orderbook

import (
	"sort"
	"sync"
	"time"

	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/position"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Kind is one of the five PAL order kinds.
type Kind int

const (
	MarketOnOpen Kind = iota
	SellAtLimit          // long exit at profit target
	CoverAtLimit         // short exit at profit target
	SellAtStop           // long exit at stop loss
	CoverAtStop          // short exit at stop loss
)

func (k Kind) String() string {
	switch k {
	case MarketOnOpen:
		return "market-on-open"
	case SellAtLimit:
		return "sell-at-limit"
	case CoverAtLimit:
		return "cover-at-limit"
	case SellAtStop:
		return "sell-at-stop"
	case CoverAtStop:
		return "cover-at-stop"
	default:
		return "unknown"
	}
}

// isStop reports whether k is one of the two stop-loss kinds, used to
// resolve the stop-wins-over-target tie on a shared unit.
func (k Kind) isStop() bool { return k == SellAtStop || k == CoverAtStop }

// State is an order's position in the Pending -> Executed/Canceled
// state machine.
type State int

const (
	Pending State = iota
	Executed
	Canceled
)

// Order is a single trading order. Unit identifies the position unit
// an exit order is attached to by the broker's never-reused slot
// number (broker.SlotFor), not by the position's 1-based unit ordinal;
// entry orders carry Unit 0.
type Order struct {
	ID         int64
	Symbol     string
	Kind       Kind
	IsEntry    bool
	Side       position.Side // meaningful on entry orders; exit orders imply side via Kind
	Unit       int
	Volume     decimal.Decimal
	LimitPrice *decimal.Decimal
	StopPrice  *decimal.Decimal
	Priority   int
	Timestamp  time.Time

	State         State
	FillTimestamp time.Time
	FillPrice     decimal.Decimal

	seq              int64 // insertion order, used as a priority tie-break
	pendingFillPrice decimal.Decimal
}

// Book holds pending orders keyed by (priority, insertion order) and
// advances them one bar at a time against §4.3's fill rules.
type Book struct {
	mu       sync.Mutex
	logger   *zap.Logger
	pending  []*Order
	executed []*Order
	canceled []*Order
	nextSeq  int64
	nextID   int64
}

// New creates an empty order book.
func New(logger *zap.Logger) *Book {
	return &Book{logger: logger}
}

func (b *Book) newOrder(symbol string, kind Kind, isEntry bool, side position.Side, unit int, volume decimal.Decimal, limit, stop *decimal.Decimal, priority int, ts time.Time) *Order {
	b.nextID++
	b.nextSeq++
	return &Order{
		ID:         b.nextID,
		Symbol:     symbol,
		Kind:       kind,
		IsEntry:    isEntry,
		Side:       side,
		Unit:       unit,
		Volume:     volume,
		LimitPrice: limit,
		StopPrice:  stop,
		Priority:   priority,
		Timestamp:  ts,
		State:      Pending,
		seq:        b.nextSeq,
	}
}

// NewMarketOnOpenOrder constructs an entry or exit market-on-open
// order timestamped ts, on the given side; it fills at the open of the
// first later bar.
func (b *Book) NewMarketOnOpenOrder(symbol string, isEntry bool, side position.Side, unit int, volume decimal.Decimal, priority int, ts time.Time) *Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newOrder(symbol, MarketOnOpen, isEntry, side, unit, volume, nil, nil, priority, ts)
}

// NewSellAtLimitOrder constructs a long-exit profit-target order.
func (b *Book) NewSellAtLimitOrder(symbol string, unit int, volume decimal.Decimal, limit decimal.Decimal, priority int, ts time.Time) *Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newOrder(symbol, SellAtLimit, false, position.Long, unit, volume, &limit, nil, priority, ts)
}

// NewCoverAtLimitOrder constructs a short-exit profit-target order.
func (b *Book) NewCoverAtLimitOrder(symbol string, unit int, volume decimal.Decimal, limit decimal.Decimal, priority int, ts time.Time) *Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newOrder(symbol, CoverAtLimit, false, position.Short, unit, volume, &limit, nil, priority, ts)
}

// NewSellAtStopOrder constructs a long-exit stop-loss order.
func (b *Book) NewSellAtStopOrder(symbol string, unit int, volume decimal.Decimal, stop decimal.Decimal, priority int, ts time.Time) *Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newOrder(symbol, SellAtStop, false, position.Long, unit, volume, nil, &stop, priority, ts)
}

// NewCoverAtStopOrder constructs a short-exit stop-loss order.
func (b *Book) NewCoverAtStopOrder(symbol string, unit int, volume decimal.Decimal, stop decimal.Decimal, priority int, ts time.Time) *Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newOrder(symbol, CoverAtStop, false, position.Short, unit, volume, nil, &stop, priority, ts)
}

// Submit adds order to the pending book. Submitting an order that is
// not in the Pending state is rejected.
func (b *Book) Submit(order *Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if order.State != Pending {
		return errs.NewOrderNotExecutable("orderbook.Submit", "order is not in the pending state")
	}
	b.pending = append(b.pending, order)
	if b.logger != nil {
		b.logger.Debug("order submitted",
			zap.Int64("id", order.ID),
			zap.String("symbol", order.Symbol),
			zap.String("kind", order.Kind.String()),
		)
	}
	return nil
}

// Cancel cancels a pending order by ID. Canceling an executed or
// already-canceled order fails.
func (b *Book) Cancel(id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, o := range b.pending {
		if o.ID == id {
			o.State = Canceled
			b.canceled = append(b.canceled, o)
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return nil
		}
	}
	return errs.NewOrderNotExecutable("orderbook.Cancel", "order is not pending")
}

// CancelExitOrdersWithNoPosition cancels every pending exit order on
// symbol whose unit is not present in openUnits — modeling "exit
// orders that outlive their position are canceled" (§4.3).
func (b *Book) CancelExitOrdersWithNoPosition(symbol string, openUnits map[int]bool) []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	var canceled []*Order
	var keep []*Order
	for _, o := range b.pending {
		if o.Symbol == symbol && !o.IsEntry && !openUnits[o.Unit] {
			o.State = Canceled
			canceled = append(canceled, o)
			b.canceled = append(b.canceled, o)
			continue
		}
		keep = append(keep, o)
	}
	b.pending = keep
	return canceled
}

// Pending returns the currently pending orders, ordered by priority
// then insertion order (the order §4.3 examines them in).
func (b *Book) Pending() []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]*Order(nil), b.pending...)
	sortByPriority(out)
	return out
}

func sortByPriority(orders []*Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Priority != orders[j].Priority {
			return orders[i].Priority < orders[j].Priority
		}
		return orders[i].seq < orders[j].seq
	})
}

// ProcessPendingOrders advances the book against bar and returns the
// orders that filled. Market-on-open orders enforce a strict one-bar
// delay — an order timestamped T is eligible starting bar T+1, since it
// fills at that bar's open. Limit and stop exit orders are bracket
// conditions already resting against an open position: an order
// timestamped T is eligible starting bar T itself, since the position
// it protects was filled at T's open and the rest of T's range (its
// high/low) can still touch the bracket before T's close. Exit orders
// sharing the same (symbol, unit) are resolved so that a stop touching
// the bar wins over a limit touching the same bar (§4.3's conservative
// rule).
func (b *Book) ProcessPendingOrders(bar series.Bar) ([]*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	candidates := append([]*Order(nil), b.pending...)
	sortByPriority(candidates)

	touched := make(map[orderUnitKey][]*Order)
	var entryFills []*Order
	for _, o := range candidates {
		if o.Kind == MarketOnOpen {
			if !o.Timestamp.Before(bar.Timestamp) {
				continue
			}
		} else if bar.Timestamp.Before(o.Timestamp) {
			continue
		}
		price, ok := fillPrice(o, bar)
		if !ok {
			continue
		}
		if o.IsEntry {
			entryFills = append(entryFills, o)
			o.pendingFillPrice = price
			continue
		}
		key := orderUnitKey{symbol: o.Symbol, unit: o.Unit}
		touched[key] = append(touched[key], o)
		o.pendingFillPrice = price
	}

	var toFill []*Order
	toFill = append(toFill, entryFills...)
	for _, group := range touched {
		toFill = append(toFill, resolveTieBreak(group))
	}
	sortByPriority(toFill)

	var filled []*Order
	remaining := make(map[int64]bool)
	for _, o := range toFill {
		remaining[o.ID] = true
	}
	var kept []*Order
	for _, o := range b.pending {
		if !remaining[o.ID] {
			kept = append(kept, o)
			continue
		}
		o.State = Executed
		o.FillTimestamp = bar.Timestamp
		o.FillPrice = o.pendingFillPrice
		b.executed = append(b.executed, o)
		filled = append(filled, o)
	}
	b.pending = kept
	return filled, nil
}

type orderUnitKey struct {
	symbol string
	unit   int
}

// resolveTieBreak picks, among orders touching the same unit on the
// same bar, a stop order over a limit order.
func resolveTieBreak(group []*Order) *Order {
	if len(group) == 1 {
		return group[0]
	}
	for _, o := range group {
		if o.Kind.isStop() {
			return o
		}
	}
	return group[0]
}

// fillPrice reports whether order fills against bar and, if so, at
// what price, per §4.3's five formulas.
func fillPrice(o *Order, bar series.Bar) (decimal.Decimal, bool) {
	switch o.Kind {
	case MarketOnOpen:
		return bar.Open, true
	case SellAtLimit:
		if bar.High.GreaterThanOrEqual(*o.LimitPrice) {
			return decimalMax(bar.Open, *o.LimitPrice), true
		}
	case CoverAtLimit:
		if bar.Low.LessThanOrEqual(*o.LimitPrice) {
			return decimalMin(bar.Open, *o.LimitPrice), true
		}
	case SellAtStop:
		if bar.Low.LessThanOrEqual(*o.StopPrice) {
			return decimalMin(bar.Open, *o.StopPrice), true
		}
	case CoverAtStop:
		if bar.High.GreaterThanOrEqual(*o.StopPrice) {
			return decimalMax(bar.Open, *o.StopPrice), true
		}
	}
	return decimal.Zero, false
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

// Execute directly marks order filled at price/ts, enforcing the
// price-validity rule for its kind. Used by tests and by any caller
// that needs to force a fill outside the normal bar-driven path;
// ProcessPendingOrders does not call this — it writes fill state
// directly, already having checked validity via fillPrice.
func (b *Book) Execute(order *Order, ts time.Time, price decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if order.State != Pending {
		return errs.NewOrderNotExecutable("orderbook.Execute", "order is not pending")
	}
	if ts.Before(order.Timestamp) {
		return errs.NewOrderNotExecutable("orderbook.Execute", "fill timestamp precedes order timestamp")
	}
	if err := validateFillPrice(order, price); err != nil {
		return err
	}
	order.State = Executed
	order.FillTimestamp = ts
	order.FillPrice = price
	b.executed = append(b.executed, order)
	for i, p := range b.pending {
		if p.ID == order.ID {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			break
		}
	}
	return nil
}

func validateFillPrice(o *Order, price decimal.Decimal) error {
	switch o.Kind {
	case SellAtLimit:
		if price.LessThan(*o.LimitPrice) {
			return errs.NewOrderNotExecutable("orderbook.Execute", "sell-at-limit fill below limit")
		}
	case CoverAtLimit:
		if price.GreaterThan(*o.LimitPrice) {
			return errs.NewOrderNotExecutable("orderbook.Execute", "cover-at-limit fill above limit")
		}
	case SellAtStop:
		if price.GreaterThan(*o.StopPrice) {
			return errs.NewOrderNotExecutable("orderbook.Execute", "sell-at-stop fill above stop")
		}
	case CoverAtStop:
		if price.LessThan(*o.StopPrice) {
			return errs.NewOrderNotExecutable("orderbook.Execute", "cover-at-stop fill below stop")
		}
	}
	return nil
}

// Executed returns all orders filled so far, in fill order.
func (b *Book) Executed() []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Order(nil), b.executed...)
}

// Canceled returns all canceled orders.
func (b *Book) Canceled() []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Order(nil), b.canceled...)
}
