// Package pattern implements the pattern expression tree (§3, §4.3):
// price-bar references, greater-than comparisons, and AND-composition,
// plus the top-level Pattern that aggregates a tree with a direction,
// entry/target/stop attributes, and a derived payoff ratio.
//
// The grammar is fixed and closed — price-bar reference, greater-than,
// AND — so Expr is an exported interface sealed by an unexported
// method, with exactly two implementations (Comparison and And), rather
// than something a caller could extend.
package pattern

import (
	"time"

	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/shopspring/decimal"
)

// Direction is long or short.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Long {
		return "long"
	}
	return "short"
}

// PriceBarRef identifies an OHLC field at a non-negative bar offset
// from the bar under evaluation (0 = the current bar).
type PriceBarRef struct {
	Field  series.Field
	Offset int
}

// Expr is a node in the pattern expression tree: a Comparison or an
// And composing subtrees. It is sealed — the only implementations are
// in this package.
type Expr interface {
	isExpr()
}

// Comparison is a greater-than test: LHS > RHS.
type Comparison struct {
	LHS PriceBarRef
	RHS PriceBarRef
}

func (*Comparison) isExpr() {}

// And composes one or more subtrees, all of which must hold.
type And struct {
	Children []Expr
}

func (*And) isExpr() {}

// Pattern is a top-level pattern: an expression tree, a direction, a
// profit target and stop loss (either may be nil, meaning "none"), and
// a derived payoff ratio (target% / stop%, zero if either is nil).
type Pattern struct {
	Expr         Expr
	Direction    Direction
	ProfitTarget *decimal.Decimal // percent, e.g. 0.01 for 1%
	StopLoss     *decimal.Decimal // percent, e.g. 0.005 for 0.5%
	Name         string
}

// PayoffRatio is target% / stop%, or zero if either is absent.
func (p *Pattern) PayoffRatio() decimal.Decimal {
	if p.ProfitTarget == nil || p.StopLoss == nil || p.StopLoss.IsZero() {
		return decimal.Zero
	}
	return p.ProfitTarget.Div(*p.StopLoss)
}

// New validates and constructs a Pattern. The expression tree must be
// finite (guaranteed by construction, since Expr values form a DAG-free
// tree built bottom-up in Go) and contain at least one comparison;
// target/stop percentages, if present, must be positive.
func New(expr Expr, dir Direction, profitTarget, stopLoss *decimal.Decimal, name string) (*Pattern, error) {
	if expr == nil {
		return nil, errs.InvalidArg("pattern.New", "nil expression tree")
	}
	if len(FlattenComparisons(expr)) == 0 {
		return nil, errs.InvalidArg("pattern.New", "expression tree has no comparisons")
	}
	if profitTarget != nil && !profitTarget.IsPositive() {
		return nil, errs.InvalidArg("pattern.New", "profit target must be positive")
	}
	if stopLoss != nil && !stopLoss.IsPositive() {
		return nil, errs.InvalidArg("pattern.New", "stop loss must be positive")
	}
	return &Pattern{
		Expr:         expr,
		Direction:    dir,
		ProfitTarget: profitTarget,
		StopLoss:     stopLoss,
		Name:         name,
	}, nil
}

// FlattenComparisons recursively flattens the AND structure into the
// set of underlying greater-than comparisons. This is the first step
// of the classifier algorithm (§4.2) and is also used by New to check
// that a tree contains at least one comparison.
func FlattenComparisons(expr Expr) []*Comparison {
	var out []*Comparison
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case *Comparison:
			out = append(out, n)
		case *And:
			for _, child := range n.Children {
				walk(child)
			}
		}
	}
	walk(expr)
	return out
}

// Evaluate reports whether the pattern's expression tree holds at ts,
// reading bars from s. Each PriceBarRef is resolved relative to ts via
// the time series's offset lookup (§4.1); any lookup failure (offset
// out of range, e.g. too close to the start of the series) makes the
// whole pattern evaluate false rather than propagating the error —
// a pattern with insufficient history simply does not fire.
func Evaluate(expr Expr, s *series.Series, ts time.Time) bool {
	switch n := expr.(type) {
	case *Comparison:
		lhs, err := s.GetValue(ts, n.LHS.Offset, n.LHS.Field)
		if err != nil {
			return false
		}
		rhs, err := s.GetValue(ts, n.RHS.Offset, n.RHS.Field)
		if err != nil {
			return false
		}
		return lhs.GreaterThan(rhs)
	case *And:
		for _, child := range n.Children {
			if !Evaluate(child, s, ts) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// EvaluatePattern is a convenience wrapper evaluating p's whole
// expression tree at ts.
func EvaluatePattern(p *Pattern, s *series.Series, ts time.Time) bool {
	return Evaluate(p.Expr, s, ts)
}
