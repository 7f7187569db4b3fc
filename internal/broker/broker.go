// Broker ties together, per symbol, an order book and an instrument
// position, plus the cross-symbol transaction manager and closed-unit
// history. It is the collaborator the backtester's three-hook model
// (§4.5) drives each step: eventEntryOrders and eventExitOrders submit
// orders through it, eventProcessPendingOrders advances its books and
// folds fills back into positions and transactions.
package broker

import (
	"time"

	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/orderbook"
	"github.com/mkc-quant/palvalidator/internal/position"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Broker owns one order book and one instrument position per symbol.
// Exit orders are correlated back to the unit they close by a
// broker-assigned slot number rather than the position's own 1-based
// unit ordinal, which shifts every time an earlier unit in the same
// position closes.
type Broker struct {
	logger *zap.Logger

	books     map[string]*orderbook.Book
	positions map[string]*position.InstrumentPosition
	slots     map[string]map[int]*position.Unit
	nextSlot  map[string]int

	transactions *Manager
	closedUnits  []*position.Unit
}

// New creates a broker with no symbols registered; books and positions
// are created lazily on first use.
func New(logger *zap.Logger) *Broker {
	return &Broker{
		logger:       logger,
		books:        make(map[string]*orderbook.Book),
		positions:    make(map[string]*position.InstrumentPosition),
		slots:        make(map[string]map[int]*position.Unit),
		nextSlot:     make(map[string]int),
		transactions: NewManager(),
	}
}

// Book returns symbol's order book, creating it on first use.
func (b *Broker) Book(symbol string) *orderbook.Book {
	bk, ok := b.books[symbol]
	if !ok {
		bk = orderbook.New(b.logger)
		b.books[symbol] = bk
	}
	return bk
}

// Position returns symbol's instrument position, creating it flat on
// first use.
func (b *Broker) Position(symbol string) *position.InstrumentPosition {
	p, ok := b.positions[symbol]
	if !ok {
		p = position.New(symbol)
		b.positions[symbol] = p
	}
	return p
}

// SlotFor returns the stable slot number broker has assigned to unit
// within symbol, assigning one on first request. A slot is never
// reused and never renumbered, so an exit order built against it today
// still correlates to the right unit even after other units in the
// same position have since closed.
func (b *Broker) SlotFor(symbol string, unit *position.Unit) int {
	m, ok := b.slots[symbol]
	if !ok {
		m = make(map[int]*position.Unit)
		b.slots[symbol] = m
	}
	for slot, u := range m {
		if u == unit {
			return slot
		}
	}
	b.nextSlot[symbol]++
	slot := b.nextSlot[symbol]
	m[slot] = unit
	return slot
}

func (b *Broker) unitForSlot(symbol string, slot int) (*position.Unit, error) {
	m, ok := b.slots[symbol]
	if !ok {
		return nil, errs.NewNotFound("broker.unitForSlot", "no slots registered for symbol")
	}
	u, ok := m[slot]
	if !ok {
		return nil, errs.NewNotFound("broker.unitForSlot", "unknown unit slot")
	}
	return u, nil
}

func (b *Broker) openSlots(symbol string) map[int]bool {
	open := make(map[int]bool)
	for slot, u := range b.slots[symbol] {
		if u.IsOpen() {
			open[slot] = true
		}
	}
	return open
}

// SubmitEntryOrder queues an entry order on its symbol's book.
func (b *Broker) SubmitEntryOrder(o *orderbook.Order) error {
	return b.Book(o.Symbol).Submit(o)
}

// SubmitExitOrder queues an exit order for unit. o.Unit is overwritten
// with unit's broker slot number regardless of what the caller set it
// to, so strategies need only pass the unit they mean to exit.
func (b *Broker) SubmitExitOrder(symbol string, unit *position.Unit, o *orderbook.Order) error {
	o.Unit = b.SlotFor(symbol, unit)
	return b.Book(symbol).Submit(o)
}

// ProcessPendingOrders advances symbol's book against bar (§4.3) and
// folds the resulting fills into the symbol's instrument position and
// the transaction manager: an entry fill opens a new unit and a new
// open transaction; an exit fill closes the unit it was submitted
// against, completes that unit's transaction, appends the unit to the
// closed-position history, and cancels any sibling exit order (the
// target half of a stop/target pair, or vice versa) left pending
// against the now-closed unit.
func (b *Broker) ProcessPendingOrders(symbol string, bar series.Bar) ([]*orderbook.Order, error) {
	fills, err := b.Book(symbol).ProcessPendingOrders(bar)
	if err != nil {
		return nil, err
	}
	pos := b.Position(symbol)
	for _, f := range fills {
		if f.IsEntry {
			unit := position.NewUnit(symbol, f.Side, f.FillTimestamp, f.FillPrice, f.Volume)
			if err := pos.AddPosition(unit); err != nil {
				return fills, err
			}
			tx, err := NewTransaction(f, unit)
			if err != nil {
				return fills, err
			}
			b.transactions.AddTransaction(tx)
			continue
		}

		unit, err := b.unitForSlot(symbol, f.Unit)
		if err != nil {
			return fills, err
		}
		if err := pos.CloseUnitByRef(unit, f.FillTimestamp, f.FillPrice); err != nil {
			return fills, err
		}
		if _, err := b.transactions.CompleteTransaction(unit, f); err != nil {
			return fills, err
		}
		b.closedUnits = append(b.closedUnits, unit)
		b.Book(symbol).CancelExitOrdersWithNoPosition(symbol, b.openSlots(symbol))
	}
	return fills, nil
}

// CloseAllOpenPositions force-closes every open unit in symbol's
// position at price/ts — the end-of-run mark-to-close a backtest
// applies to whatever is still in the market when the series ends.
// Forced closes bypass the exit-order/transaction machinery: there is
// no exit order to attach, so the unit is appended straight to the
// closed-position history and its transaction is left open.
func (b *Broker) CloseAllOpenPositions(symbol string, ts time.Time, price decimal.Decimal) error {
	pos := b.Position(symbol)
	if pos.IsFlat() {
		return nil
	}
	n := pos.NumUnits()
	units := make([]*position.Unit, 0, n)
	for i := 1; i <= n; i++ {
		u, err := pos.GetUnit(i)
		if err != nil {
			return err
		}
		units = append(units, u)
	}
	if err := pos.CloseAll(ts, price); err != nil {
		return err
	}
	b.closedUnits = append(b.closedUnits, units...)
	return nil
}

// ClosedUnits returns every unit closed so far, across all symbols.
func (b *Broker) ClosedUnits() []*position.Unit {
	return append([]*position.Unit(nil), b.closedUnits...)
}

// Summary computes the closed-position statistics (§4.8) over every
// unit closed so far.
func (b *Broker) Summary() Summary {
	return Summarize(b.closedUnits)
}

// OpenTransactions returns every transaction still awaiting an exit
// fill, across all symbols.
func (b *Broker) OpenTransactions() []*Transaction {
	return b.transactions.OpenTransactions()
}

// CompleteTransactions returns every transaction that completed via a
// filled exit order, across all symbols. Forced end-of-run closes via
// CloseAllOpenPositions do not appear here — see its doc comment.
func (b *Broker) CompleteTransactions() []*Transaction {
	return b.transactions.CompleteTransactions()
}
