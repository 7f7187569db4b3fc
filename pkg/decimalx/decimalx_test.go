package decimalx_test

import (
	"testing"

	"github.com/mkc-quant/palvalidator/pkg/decimalx"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRoundToTickRoundsUp(t *testing.T) {
	// Scenario 1 of the end-to-end test suite: a 1% long target off a
	// 100.5 entry computes to 101.505, tick-rounded up to 101.51 on a
	// 0.01 tick.
	got := decimalx.RoundToTick(dec("101.505"), dec("0.01"))
	want := dec("101.51")
	if !got.Equal(want) {
		t.Errorf("RoundToTick(101.505, 0.01) = %s, want %s", got, want)
	}
}

func TestRoundToTickRoundsUpForStop(t *testing.T) {
	// Scenario 2: a 0.5% short stop off a 499 entry computes to
	// 501.495, tick-rounded up to 501.50.
	got := decimalx.RoundToTick(dec("501.495"), dec("0.01"))
	want := dec("501.50")
	if !got.Equal(want) {
		t.Errorf("RoundToTick(501.495, 0.01) = %s, want %s", got, want)
	}
}

func TestRoundToTickAlreadyAligned(t *testing.T) {
	got := decimalx.RoundToTick(dec("494.01"), dec("0.01"))
	want := dec("494.01")
	if !got.Equal(want) {
		t.Errorf("RoundToTick(494.01, 0.01) = %s, want %s", got, want)
	}
}

func TestRoundToTickZeroTickIsNoop(t *testing.T) {
	price := dec("123.456")
	got := decimalx.RoundToTick(price, decimal.Zero)
	if !got.Equal(price) {
		t.Errorf("RoundToTick with zero tick = %s, want %s", got, price)
	}
}

func TestPercentOfDirection(t *testing.T) {
	price := dec("100")
	pct := dec("0.01")

	if up := decimalx.PercentOf(price, pct, true); !up.Equal(dec("101")) {
		t.Errorf("PercentOf up = %s, want 101", up)
	}
	if down := decimalx.PercentOf(price, pct, false); !down.Equal(dec("99")) {
		t.Errorf("PercentOf down = %s, want 99", down)
	}
}

func TestClamp(t *testing.T) {
	lo, hi := dec("0"), dec("2")

	if got := decimalx.Clamp(dec("-1"), lo, hi); !got.Equal(lo) {
		t.Errorf("Clamp below range = %s, want %s", got, lo)
	}
	if got := decimalx.Clamp(dec("5"), lo, hi); !got.Equal(hi) {
		t.Errorf("Clamp above range = %s, want %s", got, hi)
	}
	if got := decimalx.Clamp(dec("1"), lo, hi); !got.Equal(dec("1")) {
		t.Errorf("Clamp in range = %s, want 1", got)
	}
}
