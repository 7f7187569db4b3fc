package broker_test

import (
	"testing"
	"time"

	"github.com/mkc-quant/palvalidator/internal/broker"
	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/orderbook"
	"github.com/mkc-quant/palvalidator/internal/position"
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

func TestNewTransactionRejectsSymbolMismatch(t *testing.T) {
	book := orderbook.New(zap.NewNop())
	entry := book.NewMarketOnOpenOrder("XYZ", true, position.Long, 0, dec("100"), 0, day(0))
	unit := position.NewUnit("ABC", position.Long, day(0), dec("100"), dec("100"))
	if _, err := broker.NewTransaction(entry, unit); !errs.Is(err, errs.PositionStateViolation) {
		t.Fatalf("expected PositionStateViolation, got %v", err)
	}
}

func TestNewTransactionRejectsSideMismatch(t *testing.T) {
	book := orderbook.New(zap.NewNop())
	entry := book.NewMarketOnOpenOrder("XYZ", true, position.Long, 0, dec("100"), 0, day(0))
	unit := position.NewUnit("XYZ", position.Short, day(0), dec("100"), dec("100"))
	if _, err := broker.NewTransaction(entry, unit); !errs.Is(err, errs.PositionStateViolation) {
		t.Fatalf("expected PositionStateViolation, got %v", err)
	}
}

func TestTransactionCompleteTwiceFails(t *testing.T) {
	book := orderbook.New(zap.NewNop())
	entry := book.NewMarketOnOpenOrder("XYZ", true, position.Long, 0, dec("100"), 0, day(0))
	unit := position.NewUnit("XYZ", position.Long, day(0), dec("100"), dec("100"))
	tx, err := broker.NewTransaction(entry, unit)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	exit := book.NewSellAtLimitOrder("XYZ", 1, dec("100"), dec("105"), 0, day(1))
	if err := tx.Complete(exit); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !tx.IsComplete() {
		t.Error("expected transaction to be complete")
	}
	if err := tx.Complete(exit); err == nil {
		t.Error("expected error completing an already-complete transaction")
	}
}

func TestManagerCompleteTransactionMovesOpenToComplete(t *testing.T) {
	book := orderbook.New(zap.NewNop())
	entry := book.NewMarketOnOpenOrder("XYZ", true, position.Long, 0, dec("100"), 0, day(0))
	unit := position.NewUnit("XYZ", position.Long, day(0), dec("100"), dec("100"))
	tx, err := broker.NewTransaction(entry, unit)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	mgr := broker.NewManager()
	mgr.AddTransaction(tx)
	if len(mgr.OpenTransactions()) != 1 {
		t.Fatalf("expected 1 open transaction")
	}

	exit := book.NewSellAtLimitOrder("XYZ", 1, dec("100"), dec("105"), 0, day(1))
	completed, err := mgr.CompleteTransaction(unit, exit)
	if err != nil {
		t.Fatalf("CompleteTransaction: %v", err)
	}
	if completed != tx {
		t.Error("expected the same transaction to be returned")
	}
	if len(mgr.OpenTransactions()) != 0 {
		t.Error("expected no open transactions remaining")
	}
	if len(mgr.CompleteTransactions()) != 1 {
		t.Error("expected 1 complete transaction")
	}
}

func TestManagerCompleteTransactionUnknownUnitFails(t *testing.T) {
	mgr := broker.NewManager()
	unit := position.NewUnit("XYZ", position.Long, day(0), dec("100"), dec("100"))
	if _, err := mgr.CompleteTransaction(unit, nil); !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
