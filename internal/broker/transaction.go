// Package broker implements the strategy broker (§4.5): the owner of
// an order book, one instrument position per symbol, a strategy
// transaction manager linking entry order <-> position <-> exit
// order, and a closed-position history of derived statistics.
//
// Grounded on the original system's StrategyTransaction/
// StrategyTransactionManager (entry order + position + exit order,
// Open/Complete transaction state) and on the base repository's
// stateless-metrics-calculator idiom for the closed-position summary
// statistics.
package broker

import (
	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/orderbook"
	"github.com/mkc-quant/palvalidator/internal/position"
)

// TransactionState is Open (no exit order yet) or Complete.
type TransactionState int

const (
	TransactionOpen TransactionState = iota
	TransactionComplete
)

// Transaction links one entry order, the position unit it opened, and
// (once filled) the exit order that closed it.
type Transaction struct {
	EntryOrder *orderbook.Order
	Unit       *position.Unit
	ExitOrder  *orderbook.Order
	state      TransactionState
}

// NewTransaction opens a transaction for a filled entry order and the
// unit it produced. The order and unit must agree on symbol and side.
func NewTransaction(entryOrder *orderbook.Order, unit *position.Unit) (*Transaction, error) {
	if entryOrder.Symbol != unit.Symbol {
		return nil, errs.NewPositionStateViolation("broker.NewTransaction", "entry order symbol does not match position symbol")
	}
	if entryOrder.Side != unit.Side {
		return nil, errs.NewPositionStateViolation("broker.NewTransaction", "entry order direction does not match position direction")
	}
	return &Transaction{EntryOrder: entryOrder, Unit: unit, state: TransactionOpen}, nil
}

// IsOpen reports whether the transaction has not yet been completed.
func (t *Transaction) IsOpen() bool { return t.state == TransactionOpen }

// IsComplete reports whether the transaction has an exit order.
func (t *Transaction) IsComplete() bool { return t.state == TransactionComplete }

// Complete attaches the exit order that closed this transaction's
// unit. Completing an already-complete transaction fails.
func (t *Transaction) Complete(exitOrder *orderbook.Order) error {
	if t.state == TransactionComplete {
		return errs.NewOrderNotExecutable("broker.Transaction.Complete", "transaction already complete")
	}
	t.ExitOrder = exitOrder
	t.state = TransactionComplete
	return nil
}

// Manager owns every transaction opened during a backtest run, split
// between open and complete for fast iteration by the strategy's
// per-bar exit-order evaluation (which only needs open transactions).
type Manager struct {
	open     []*Transaction
	complete []*Transaction
}

// NewManager creates an empty transaction manager.
func NewManager() *Manager { return &Manager{} }

// AddTransaction adds a newly opened transaction.
func (m *Manager) AddTransaction(t *Transaction) {
	m.open = append(m.open, t)
}

// CompleteTransaction finds the open transaction for unit, attaches
// exitOrder, and moves it to the complete list.
func (m *Manager) CompleteTransaction(unit *position.Unit, exitOrder *orderbook.Order) (*Transaction, error) {
	for i, t := range m.open {
		if t.Unit == unit {
			if err := t.Complete(exitOrder); err != nil {
				return nil, err
			}
			m.open = append(m.open[:i], m.open[i+1:]...)
			m.complete = append(m.complete, t)
			return t, nil
		}
	}
	return nil, errs.NewNotFound("broker.Manager.CompleteTransaction", "no open transaction for unit")
}

// OpenTransactions returns transactions awaiting an exit fill.
func (m *Manager) OpenTransactions() []*Transaction { return append([]*Transaction(nil), m.open...) }

// CompleteTransactions returns every finished round-trip transaction.
func (m *Manager) CompleteTransactions() []*Transaction {
	return append([]*Transaction(nil), m.complete...)
}
