// Package classifier implements the pattern classifier (§4.4): a
// scoring heuristic over a pattern's flattened comparisons that
// assigns a primary strategy category (trend-following, momentum,
// mean-reversion, or unclassified) and a sub-type (continuation,
// breakout, pullback, trend exhaustion, ambiguous).
//
// The algorithm is grounded exactly on the teacher corpus's pattern
// classifier: bullish/bearish context scoring from comparison offsets,
// a short-term (<=2 bar) dip/rally window, payoff-ratio-driven scoring,
// and a pullback/breakout/trend-exhaustion detection cascade before a
// final argmax over category scores.
package classifier

import (
	"strings"

	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/pattern"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/shopspring/decimal"
)

var (
	decimalOne          = decimal.NewFromInt(1)
	decimalOnePointFive = decimal.NewFromFloat(1.5)
)

// Category is the primary classification of a strategy.
type Category int

const (
	Unclassified Category = iota
	TrendFollowing
	Momentum
	MeanReversion
)

func (c Category) String() string {
	switch c {
	case TrendFollowing:
		return "trend-following"
	case Momentum:
		return "momentum"
	case MeanReversion:
		return "mean-reversion"
	default:
		return "unclassified"
	}
}

// SubType refines Category with the specific signature detected.
type SubType int

const (
	SubTypeNone SubType = iota
	Continuation
	Breakout
	Pullback
	TrendExhaustion
	Ambiguous
)

func (s SubType) String() string {
	switch s {
	case Continuation:
		return "continuation"
	case Breakout:
		return "breakout"
	case Pullback:
		return "pullback"
	case TrendExhaustion:
		return "trend exhaustion"
	case Ambiguous:
		return "ambiguous"
	default:
		return "none"
	}
}

// Result is the outcome of classifying one pattern.
type Result struct {
	Category  Category
	SubType   SubType
	Rationale string
}

// Classify scores p's flattened comparisons and returns a Result. An
// empty expression tree (no comparisons at all) classifies as
// Unclassified/Ambiguous rather than erroring — classification is
// advisory, never a gate on running a pattern.
func Classify(p *pattern.Pattern) (Result, error) {
	if p == nil {
		return Result{}, errs.InvalidArg("classifier.Classify", "nil pattern")
	}
	conditions := pattern.FlattenComparisons(p.Expr)
	if len(conditions) == 0 {
		return Result{Category: Unclassified, SubType: Ambiguous}, nil
	}
	return analyze(conditions, p), nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func analyze(conditions []*pattern.Comparison, p *pattern.Pattern) Result {
	scores := map[Category]int{
		Momentum:       0,
		MeanReversion:  0,
		TrendFollowing: 0,
	}
	var rationale []string
	isBreakout := false
	isPullback := false

	bullishContext := 0
	bearishContext := 0
	hasShortTermDip := false
	hasShortTermRally := false

	for _, cond := range conditions {
		lhs, rhs := cond.LHS, cond.RHS
		switch {
		case lhs.Offset < rhs.Offset,
			lhs.Offset == 0 && rhs.Offset == 0 && lhs.Field == series.FieldClose && rhs.Field == series.FieldOpen:
			bullishContext++
			if abs(lhs.Offset-rhs.Offset) <= 2 {
				hasShortTermRally = true
			}
		case lhs.Offset > rhs.Offset:
			bearishContext++
			if abs(lhs.Offset-rhs.Offset) <= 2 {
				hasShortTermDip = true
			}
		}
	}

	netContext := bullishContext - bearishContext
	isLong := p.Direction == pattern.Long
	isShort := p.Direction == pattern.Short
	payoff := p.PayoffRatio()

	// Heuristic 1: payoff ratio.
	if payoff.IsPositive() {
		if payoff.LessThan(decimalOne) {
			scores[MeanReversion] += 2
			rationale = append(rationale, "Signal: Payoff ratio < 1.0.")
		} else if payoff.GreaterThan(decimalOnePointFive) {
			scores[Momentum] += 1
			scores[TrendFollowing] += 1
		}
	}

	// Heuristic 2: specific signatures.
	switch {
	case isLong && netContext > 1 && hasShortTermDip:
		isPullback = true
		scores[Momentum] += 5
		rationale = append(rationale, "Strong Signal: Detected a pullback in a strong uptrend.")
	case isShort && netContext <= -1 && hasShortTermRally:
		isPullback = true
		scores[Momentum] += 5
		rationale = append(rationale, "Strong Signal: Detected a pullback in a strong downtrend.")
	case netContext == 0:
		if isLong && hasShortTermDip {
			scores[Momentum] += 3
			rationale = append(rationale, "Signal: Detected a dip-buy in a balanced context.")
			isPullback = true
		} else if isShort && hasShortTermRally {
			scores[Momentum] += 3
			rationale = append(rationale, "Signal: Detected a rally-sell in a balanced context.")
			isPullback = true
		}
	}

	for _, cond := range conditions {
		lhs, rhs := cond.LHS, cond.RHS
		if lhs.Offset == 0 && rhs.Offset > 1 && lhs.Field == series.FieldClose && rhs.Field == series.FieldHigh {
			isBreakout = true
			if isLong {
				scores[Momentum] += 4
			} else {
				scores[MeanReversion] += 3
			}
		}
	}

	if (netContext > 1 || netContext < -1) && payoff.IsPositive() && payoff.LessThan(decimalOne) {
		scores[MeanReversion] += 4
		rationale = append(rationale, "Signal: Strong trend context combined with low payoff suggests trend exhaustion.")
	}

	// Heuristic 3: general trend alignment, only if no specific signature fired.
	if !isPullback {
		if netContext > 0 {
			if isLong {
				scores[TrendFollowing] += 3
			} else {
				scores[MeanReversion] += 3
			}
		} else if netContext < 0 {
			if isShort {
				scores[TrendFollowing] += 3
			} else {
				scores[MeanReversion] += 3
			}
		}
	}

	total := scores[Momentum] + scores[MeanReversion] + scores[TrendFollowing]
	result := Result{Rationale: strings.Join(rationale, "\n")}
	if total == 0 {
		result.Category = Unclassified
		result.SubType = Ambiguous
		return result
	}

	result.Category = argmax(scores)
	switch {
	case isPullback && result.Category == Momentum:
		result.SubType = Pullback
	case isBreakout && result.Category == Momentum:
		result.SubType = Breakout
	case result.Category == TrendFollowing:
		result.SubType = Continuation
	case result.Category == Momentum:
		result.SubType = Continuation
	case result.Category == MeanReversion:
		result.SubType = TrendExhaustion
	}
	return result
}

// argmax picks the highest-scoring category. Ties keep the
// earlier-iterated category, matching the std::max_element scan over
// a map ordered by the category enum's declaration order
// (TrendFollowing, Momentum, MeanReversion).
func argmax(scores map[Category]int) Category {
	order := []Category{TrendFollowing, Momentum, MeanReversion}
	best := order[0]
	for _, c := range order[1:] {
		if scores[c] > scores[best] {
			best = c
		}
	}
	return best
}
