// Package calendar defines two timestamp domain types: daily
// (date-only) and intraday (full datetime, "ptime" in the original
// system). No other package in this module imports it: the backtester,
// the time-series store and the synthetic generator all work on
// time.Time, and the backtester checks the date-only/datetime domain
// itself in Engine.Configure.
package calendar

import "time"

// TradingDay is a calendar date with no time-of-day component, used by
// the Daily/Weekly/Monthly backtester and time series.
type TradingDay struct {
	t time.Time
}

// NewTradingDay truncates t to midnight UTC.
func NewTradingDay(t time.Time) TradingDay {
	y, m, d := t.Date()
	return TradingDay{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d TradingDay) Time() time.Time { return d.t }
func (d TradingDay) Before(o TradingDay) bool { return d.t.Before(o.t) }
func (d TradingDay) After(o TradingDay) bool  { return d.t.After(o.t) }
func (d TradingDay) Equal(o TradingDay) bool  { return d.t.Equal(o.t) }
func (d TradingDay) String() string           { return d.t.Format("2006-01-02") }

// AddDays returns the day n calendar days later (n may be negative).
func (d TradingDay) AddDays(n int) TradingDay {
	return TradingDay{t: d.t.AddDate(0, 0, n)}
}

// TradingInstant is a full datetime used by the Intraday backtester and
// time series.
type TradingInstant struct {
	t time.Time
}

func NewTradingInstant(t time.Time) TradingInstant {
	return TradingInstant{t: t.UTC()}
}

func (i TradingInstant) Time() time.Time          { return i.t }
func (i TradingInstant) Before(o TradingInstant) bool { return i.t.Before(o.t) }
func (i TradingInstant) After(o TradingInstant) bool  { return i.t.After(o.t) }
func (i TradingInstant) Equal(o TradingInstant) bool  { return i.t.Equal(o.t) }
func (i TradingInstant) String() string               { return i.t.Format(time.RFC3339) }

// Day returns the calendar day this instant falls on.
func (i TradingInstant) Day() TradingDay { return NewTradingDay(i.t) }

// Timestamp is the ordering/formatting contract both TradingDay and
// TradingInstant satisfy.
type Timestamp interface {
	Time() time.Time
	String() string
}
