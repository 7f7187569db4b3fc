package position_test

import (
	"testing"
	"time"

	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/position"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/shopspring/decimal"
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

func mustBar(t *testing.T, offset int) series.Bar {
	t.Helper()
	b, err := series.NewBar(day(offset), dec("100"), dec("101"), dec("99"), dec("100.5"), dec("1000"))
	if err != nil {
		t.Fatalf("NewBar: %v", err)
	}
	return b
}

func TestFlatRejectsAddBar(t *testing.T) {
	ip := position.New("XYZ")
	err := ip.AddBar(mustBar(t, 1))
	if !errs.Is(err, errs.PositionStateViolation) {
		t.Fatalf("expected PositionStateViolation, got %v", err)
	}
}

func TestAddPositionTransitionsFlatToLong(t *testing.T) {
	ip := position.New("XYZ")
	u := position.NewUnit("XYZ", position.Long, day(0), dec("100"), dec("10"))
	if err := ip.AddPosition(u); err != nil {
		t.Fatalf("AddPosition: %v", err)
	}
	side, ok := ip.Side()
	if !ok || side != position.Long {
		t.Fatalf("expected Long, got side=%v ok=%v", side, ok)
	}
	if ip.NumUnits() != 1 {
		t.Errorf("NumUnits = %d, want 1", ip.NumUnits())
	}
}

func TestAddPositionRejectsSymbolMismatch(t *testing.T) {
	ip := position.New("XYZ")
	u := position.NewUnit("ABC", position.Long, day(0), dec("100"), dec("10"))
	err := ip.AddPosition(u)
	if !errs.Is(err, errs.PositionStateViolation) {
		t.Fatalf("expected PositionStateViolation, got %v", err)
	}
}

func TestAddPositionRejectsOppositeSide(t *testing.T) {
	ip := position.New("XYZ")
	_ = ip.AddPosition(position.NewUnit("XYZ", position.Long, day(0), dec("100"), dec("10")))
	err := ip.AddPosition(position.NewUnit("XYZ", position.Short, day(1), dec("101"), dec("10")))
	if !errs.Is(err, errs.PositionStateViolation) {
		t.Fatalf("expected PositionStateViolation, got %v", err)
	}
}

func TestAddPositionAppendsSameSide(t *testing.T) {
	ip := position.New("XYZ")
	_ = ip.AddPosition(position.NewUnit("XYZ", position.Long, day(0), dec("100"), dec("10")))
	if err := ip.AddPosition(position.NewUnit("XYZ", position.Long, day(1), dec("102"), dec("5"))); err != nil {
		t.Fatalf("AddPosition second unit: %v", err)
	}
	if ip.NumUnits() != 2 {
		t.Fatalf("NumUnits = %d, want 2", ip.NumUnits())
	}
	total, err := ip.GetVolumeInAllUnits()
	if err != nil {
		t.Fatalf("GetVolumeInAllUnits: %v", err)
	}
	if !total.Equal(dec("15")) {
		t.Errorf("total volume = %s, want 15", total)
	}
}

func TestGetUnitZeroOrOutOfRangeFails(t *testing.T) {
	ip := position.New("XYZ")
	_ = ip.AddPosition(position.NewUnit("XYZ", position.Long, day(0), dec("100"), dec("10")))
	if _, err := ip.GetUnit(0); !errs.Is(err, errs.PositionStateViolation) {
		t.Errorf("expected PositionStateViolation for unit 0, got %v", err)
	}
	if _, err := ip.GetUnit(2); !errs.Is(err, errs.PositionStateViolation) {
		t.Errorf("expected PositionStateViolation for out-of-range unit, got %v", err)
	}
}

func TestCloseUnitTransitionsToFlatWhenLastUnit(t *testing.T) {
	ip := position.New("XYZ")
	_ = ip.AddPosition(position.NewUnit("XYZ", position.Long, day(0), dec("100"), dec("10")))
	if err := ip.CloseUnit(1, day(1), dec("105")); err != nil {
		t.Fatalf("CloseUnit: %v", err)
	}
	if !ip.IsFlat() {
		t.Error("expected Flat after closing the only unit")
	}
}

func TestCloseUnitKeepsOtherUnitsOpen(t *testing.T) {
	ip := position.New("XYZ")
	_ = ip.AddPosition(position.NewUnit("XYZ", position.Long, day(0), dec("100"), dec("10")))
	_ = ip.AddPosition(position.NewUnit("XYZ", position.Long, day(1), dec("102"), dec("5")))
	if err := ip.CloseUnit(1, day(2), dec("106")); err != nil {
		t.Fatalf("CloseUnit: %v", err)
	}
	if ip.IsFlat() {
		t.Fatal("expected one unit still open")
	}
	if ip.NumUnits() != 1 {
		t.Errorf("NumUnits = %d, want 1", ip.NumUnits())
	}
	remaining, err := ip.GetFillPrice(1)
	if err != nil {
		t.Fatalf("GetFillPrice: %v", err)
	}
	if !remaining.Equal(dec("102")) {
		t.Errorf("remaining unit entry price = %s, want 102 (the second unit)", remaining)
	}
}

func TestCloseAllTransitionsToFlat(t *testing.T) {
	ip := position.New("XYZ")
	_ = ip.AddPosition(position.NewUnit("XYZ", position.Short, day(0), dec("100"), dec("10")))
	_ = ip.AddPosition(position.NewUnit("XYZ", position.Short, day(1), dec("98"), dec("5")))
	if err := ip.CloseAll(day(2), dec("95")); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if !ip.IsFlat() {
		t.Error("expected Flat after CloseAll")
	}
}

func TestCloseUnitTwiceFails(t *testing.T) {
	ip := position.New("XYZ")
	_ = ip.AddPosition(position.NewUnit("XYZ", position.Long, day(0), dec("100"), dec("10")))
	if err := ip.CloseUnit(1, day(1), dec("105")); err != nil {
		t.Fatalf("CloseUnit: %v", err)
	}
	// position is now Flat, so closing again must fail with the
	// flat-state error rather than the unit-already-closed error.
	if err := ip.CloseUnit(1, day(2), dec("106")); !errs.Is(err, errs.PositionStateViolation) {
		t.Errorf("expected PositionStateViolation, got %v", err)
	}
}
