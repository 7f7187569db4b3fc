// Package position implements the position & instrument position
// state machine (§3, §4.4): a trading position unit (entry/exit price
// and timestamp) and an instrument position that holds zero or more
// units, tagged Flat/Long/Short.
//
// Grounded exactly on the original system's InstrumentPosition state
// hierarchy (FlatInstrumentPositionState / LongInstrumentPositionState
// / ShortInstrumentPositionState, each delegating shared in-market
// behavior to a common base), re-expressed per the design note in §9
// as a Go tagged sum: instrumentState is an unexported interface with
// three unexported implementations instead of a singleton-state-object
// hierarchy with virtual dispatch.
package position

import (
	"time"

	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/shopspring/decimal"
)

// Side is long or short, the side a Unit or an in-market
// InstrumentPosition is on.
type Side int

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	if s == Short {
		return "short"
	}
	return "long"
}

// Unit is a single trading position: one entry, at most one exit.
// Units accept bars only strictly after their entry timestamp.
type Unit struct {
	Symbol         string
	Side           Side
	EntryTimestamp time.Time
	EntryPrice     decimal.Decimal
	Volume         decimal.Decimal

	closed        bool
	exitTimestamp time.Time
	exitPrice     decimal.Decimal
}

// NewUnit constructs an open unit.
func NewUnit(symbol string, side Side, entryTS time.Time, entryPrice, volume decimal.Decimal) *Unit {
	return &Unit{Symbol: symbol, Side: side, EntryTimestamp: entryTS, EntryPrice: entryPrice, Volume: volume}
}

// IsOpen reports whether the unit has not yet been closed.
func (u *Unit) IsOpen() bool { return !u.closed }

// Close sets the unit's exit price/timestamp exactly once.
func (u *Unit) Close(exitTS time.Time, exitPrice decimal.Decimal) error {
	if u.closed {
		return errs.NewPositionStateViolation("position.Unit.Close", "unit already closed")
	}
	u.closed = true
	u.exitTimestamp = exitTS
	u.exitPrice = exitPrice
	return nil
}

// Exit returns the unit's exit timestamp/price; valid only once closed.
func (u *Unit) Exit() (time.Time, decimal.Decimal) { return u.exitTimestamp, u.exitPrice }

// PercentReturn is the unit's signed return: positive for a winning
// trade regardless of side. Valid only once closed.
func (u *Unit) PercentReturn() decimal.Decimal {
	if !u.closed || u.EntryPrice.IsZero() {
		return decimal.Zero
	}
	raw := u.exitPrice.Sub(u.EntryPrice).Div(u.EntryPrice)
	if u.Side == Short {
		return raw.Neg()
	}
	return raw
}

// AddBar appends bar's contribution to the unit; the caller
// (InstrumentPosition.AddBar) has already filtered to bars strictly
// after entry, so this currently only exists as a seam for
// richer per-bar tracking (e.g. MAE/MFE) a future statistic policy
// might add.
func (u *Unit) AddBar(bar series.Bar) {}

// instrumentState is the sealed Flat/Long/Short state a Go tagged sum
// dispatches through.
type instrumentState interface {
	addPosition(ip *InstrumentPosition, u *Unit) error
	addBar(ip *InstrumentPosition, bar series.Bar) error
	closeUnit(ip *InstrumentPosition, unitNumber int, ts time.Time, price decimal.Decimal) error
	closeAll(ip *InstrumentPosition, ts time.Time, price decimal.Decimal) error
	numUnits() int
	unit(unitNumber int) (*Unit, error)
	side() (Side, bool)
}

// InstrumentPosition holds at most one side's worth of open units for
// a single symbol at a time.
type InstrumentPosition struct {
	symbol string
	state  instrumentState
}

// New creates a flat instrument position for symbol.
func New(symbol string) *InstrumentPosition {
	return &InstrumentPosition{symbol: symbol, state: flatState{}}
}

func (ip *InstrumentPosition) changeState(s instrumentState) { ip.state = s }

// Symbol returns the instrument's symbol.
func (ip *InstrumentPosition) Symbol() string { return ip.symbol }

// IsFlat reports whether the position currently holds no units.
func (ip *InstrumentPosition) IsFlat() bool {
	_, ok := ip.state.side()
	return !ok
}

// Side returns the current side and whether the position is in-market
// (false, false when flat).
func (ip *InstrumentPosition) Side() (Side, bool) { return ip.state.side() }

// NumUnits returns the number of open units.
func (ip *InstrumentPosition) NumUnits() int { return ip.state.numUnits() }

// AddPosition adds a new unit. Flat accepts either side and
// transitions; Long rejects a short unit and vice versa; the unit's
// symbol must match the instrument's.
func (ip *InstrumentPosition) AddPosition(u *Unit) error {
	if u.Symbol != ip.symbol {
		return errs.NewPositionStateViolation("position.AddPosition", "unit symbol does not match instrument position symbol")
	}
	return ip.state.addPosition(ip, u)
}

// AddBar forwards bar to every open unit whose entry timestamp is
// strictly before bar's timestamp. Fails on Flat.
func (ip *InstrumentPosition) AddBar(bar series.Bar) error {
	return ip.state.addBar(ip, bar)
}

// GetUnit returns the 1-based unit, failing if unitNumber is 0, out of
// range, or the position is flat.
func (ip *InstrumentPosition) GetUnit(unitNumber int) (*Unit, error) {
	return ip.state.unit(unitNumber)
}

// GetFillPrice returns the entry price of the given 1-based unit.
func (ip *InstrumentPosition) GetFillPrice(unitNumber int) (decimal.Decimal, error) {
	u, err := ip.GetUnit(unitNumber)
	if err != nil {
		return decimal.Zero, err
	}
	return u.EntryPrice, nil
}

// GetVolumeInAllUnits sums unit volumes; fails on Flat. Unit volumes
// are plain decimals with no volume-unit kind attached, so the total is
// a raw sum: no unit kind is carried into it or checked across units.
func (ip *InstrumentPosition) GetVolumeInAllUnits() (decimal.Decimal, error) {
	n := ip.state.numUnits()
	if n == 0 {
		return decimal.Zero, errs.NewPositionStateViolation("position.GetVolumeInAllUnits", "position is flat")
	}
	total := decimal.Zero
	for i := 1; i <= n; i++ {
		u, err := ip.state.unit(i)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(u.Volume)
	}
	return total, nil
}

// CloseUnit closes the 1-based unit, transitioning to Flat if it was
// the last open unit.
func (ip *InstrumentPosition) CloseUnit(unitNumber int, ts time.Time, price decimal.Decimal) error {
	return ip.state.closeUnit(ip, unitNumber, ts, price)
}

// CloseAll closes every open unit and transitions to Flat.
func (ip *InstrumentPosition) CloseAll(ts time.Time, price decimal.Decimal) error {
	return ip.state.closeAll(ip, ts, price)
}

// CloseUnitByRef closes the unit identified by u itself rather than by
// its current 1-based ordinal, which shifts whenever an earlier unit
// closes. Callers that hold on to a *Unit across bars (the broker,
// matching a filled exit order back to the unit it closes) should use
// this instead of tracking ordinals themselves.
func (ip *InstrumentPosition) CloseUnitByRef(u *Unit, ts time.Time, price decimal.Decimal) error {
	n := ip.state.numUnits()
	for i := 1; i <= n; i++ {
		cur, err := ip.state.unit(i)
		if err != nil {
			return err
		}
		if cur == u {
			return ip.state.closeUnit(ip, i, ts, price)
		}
	}
	return errs.NewPositionStateViolation("position.CloseUnitByRef", "unit not found in open position")
}

// flatState is the no-units state.
type flatState struct{}

func (flatState) addPosition(ip *InstrumentPosition, u *Unit) error {
	units := []*Unit{u}
	if u.Side == Long {
		ip.changeState(longState{units: units})
	} else {
		ip.changeState(shortState{units: units})
	}
	return nil
}

func (flatState) addBar(*InstrumentPosition, series.Bar) error {
	return errs.NewPositionStateViolation("position.AddBar", "no positions available in flat state")
}

func (flatState) closeUnit(*InstrumentPosition, int, time.Time, decimal.Decimal) error {
	return errs.NewPositionStateViolation("position.CloseUnit", "no positions available in flat state")
}

func (flatState) closeAll(*InstrumentPosition, time.Time, decimal.Decimal) error {
	return errs.NewPositionStateViolation("position.CloseAll", "no positions available in flat state")
}

func (flatState) numUnits() int { return 0 }

func (flatState) unit(int) (*Unit, error) {
	return nil, errs.NewPositionStateViolation("position.GetUnit", "no positions available in flat state")
}

func (flatState) side() (Side, bool) { return 0, false }

// inMarket holds the behavior shared by longState and shortState:
// everything except the side check in addPosition.
type inMarket struct {
	mySide Side
	units  []*Unit
}

func (m inMarket) checkUnitNumber(unitNumber int) error {
	if unitNumber == 0 {
		return errs.NewPositionStateViolation("position", "unit numbers start at one")
	}
	if unitNumber > len(m.units) {
		return errs.NewPositionStateViolation("position", "unit number is out of range")
	}
	return nil
}

func (m inMarket) addBar(ip *InstrumentPosition, bar series.Bar) error {
	for _, u := range m.units {
		if bar.Timestamp.After(u.EntryTimestamp) {
			u.AddBar(bar)
		}
	}
	return nil
}

func (m inMarket) closeUnit(ip *InstrumentPosition, unitNumber int, ts time.Time, price decimal.Decimal) error {
	if err := m.checkUnitNumber(unitNumber); err != nil {
		return err
	}
	idx := unitNumber - 1
	u := m.units[idx]
	if !u.IsOpen() {
		return errs.NewPositionStateViolation("position.CloseUnit", "unit already closed")
	}
	if err := u.Close(ts, price); err != nil {
		return err
	}
	remaining := append(append([]*Unit(nil), m.units[:idx]...), m.units[idx+1:]...)
	if len(remaining) == 0 {
		ip.changeState(flatState{})
		return nil
	}
	ip.changeState(rebuild(m.mySide, remaining))
	return nil
}

func (m inMarket) closeAll(ip *InstrumentPosition, ts time.Time, price decimal.Decimal) error {
	for _, u := range m.units {
		if u.IsOpen() {
			if err := u.Close(ts, price); err != nil {
				return err
			}
		}
	}
	ip.changeState(flatState{})
	return nil
}

func (m inMarket) numUnits() int { return len(m.units) }

func (m inMarket) unit(unitNumber int) (*Unit, error) {
	if err := m.checkUnitNumber(unitNumber); err != nil {
		return nil, err
	}
	return m.units[unitNumber-1], nil
}

func (m inMarket) side() (Side, bool) { return m.mySide, true }

func rebuild(side Side, units []*Unit) instrumentState {
	if side == Long {
		return longState{inMarket{mySide: Long, units: units}}
	}
	return shortState{inMarket{mySide: Short, units: units}}
}

// longState is the in-market state with one or more open long units.
type longState struct{ inMarket }

func (s longState) addPosition(ip *InstrumentPosition, u *Unit) error {
	if u.Side != Long {
		return errs.NewPositionStateViolation("position.AddPosition", "cannot add a short unit to a long position")
	}
	ip.changeState(longState{inMarket{mySide: Long, units: append(append([]*Unit(nil), s.units...), u)}})
	return nil
}

// shortState is the in-market state with one or more open short units.
type shortState struct{ inMarket }

func (s shortState) addPosition(ip *InstrumentPosition, u *Unit) error {
	if u.Side != Short {
		return errs.NewPositionStateViolation("position.AddPosition", "cannot add a long unit to a short position")
	}
	ip.changeState(shortState{inMarket{mySide: Short, units: append(append([]*Unit(nil), s.units...), u)}})
	return nil
}
