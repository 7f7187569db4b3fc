// Package synthetic implements the synthetic series generator (§4.7):
// a relative-return permutation that reshuffles a bar series while
// preserving its first bar (or first day, for intraday) exactly, used
// to build the null distribution a permutation test samples from.
//
// RNG seeding follows the base repository's
// internal/backtester/montecarlo.go (rand.New(rand.NewSource(...)), a
// Fisher-Yates shuffle driving a bootstrap resample), generalized to a
// splittable per-task seed via math/rand/v2's NewPCG, since many
// permutation tasks must each get an independent, reproducible stream
// rather than sharing one process-wide source.
package synthetic

import (
	"math/rand/v2"
	"time"

	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/mkc-quant/palvalidator/pkg/decimalx"
	"github.com/shopspring/decimal"
)

// splitMixIncrement is the usual fixed odd constant used to decorrelate
// a single 64-bit seed into the two PCG seed words.
const splitMixIncrement = 0x9e3779b97f4a7c15

// TaskSeed derives a per-task seed from masterSeed, so that a family of
// independent permutation tasks run under one master seed each get a
// distinct, reproducible stream instead of racing on a shared source.
func TaskSeed(masterSeed uint64, taskIndex int) uint64 {
	return masterSeed ^ (uint64(taskIndex)*splitMixIncrement + splitMixIncrement)
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^splitMixIncrement))
}

// Generator reconstructs price series from shuffled relative-return
// factors. tickSize rounds every reconstructed price the same way
// strategy exit prices are rounded (§4.3).
type Generator struct {
	tickSize decimal.Decimal
}

func New(tickSize decimal.Decimal) *Generator {
	return &Generator{tickSize: tickSize}
}

func divide(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}

func (g *Generator) round(d decimal.Decimal) decimal.Decimal {
	return decimalx.RoundToTick(d, g.tickSize)
}

// PermuteDaily implements the single-series algorithm: relative
// open/high/low/close factors for bars 1..n-1 are computed against the
// prior bar's close and the bar's own open, the index vector [1,n-1] is
// Fisher-Yates shuffled, and prices are replayed from the first bar's
// original close. The first bar is returned unchanged; every other bar
// keeps its original timestamp but receives a reconstructed OHLC and
// zero volume (volume plays no part in the null model).
func (g *Generator) PermuteDaily(bars []series.Bar, seed uint64) ([]series.Bar, error) {
	n := len(bars)
	if n == 0 {
		return nil, errs.InvalidArg("synthetic.PermuteDaily", "bars must not be empty")
	}
	out := make([]series.Bar, n)
	out[0] = bars[0]
	if n == 1 {
		return out, nil
	}

	type factors struct{ rO, rH, rL, rC decimal.Decimal }
	fs := make([]factors, n)
	for i := 1; i < n; i++ {
		o := bars[i].Open
		fs[i] = factors{
			rO: divide(o, bars[i-1].Close),
			rH: divide(bars[i].High, o),
			rL: divide(bars[i].Low, o),
			rC: divide(bars[i].Close, o),
		}
	}

	idx := make([]int, n-1)
	for i := range idx {
		idx[i] = i + 1
	}
	rng := newRNG(seed)
	rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	prevClose := bars[0].Close
	for p, srcIdx := range idx {
		f := fs[srcIdx]
		o := prevClose.Mul(f.rO)
		h := o.Mul(f.rH)
		l := o.Mul(f.rL)
		c := o.Mul(f.rC)
		bar, err := series.NewBar(bars[p+1].Timestamp, g.round(o), g.round(h), g.round(l), g.round(c), decimal.Zero)
		if err != nil {
			return nil, errs.WrapInvalidArg("synthetic.PermuteDaily", "reconstructed bar violates OHLC ordering", err)
		}
		out[p+1] = bar
		prevClose = c
	}
	return out, nil
}

type daySpan struct {
	date time.Time
	bars []series.Bar
}

func dayKey(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}

func groupByDay(bars []series.Bar) []daySpan {
	var spans []daySpan
	for _, b := range bars {
		k := dayKey(b.Timestamp)
		if n := len(spans); n > 0 && spans[n-1].date.Equal(k) {
			spans[n-1].bars = append(spans[n-1].bars, b)
			continue
		}
		spans = append(spans, daySpan{date: k, bars: []series.Bar{b}})
	}
	return spans
}

type intradayFactors struct{ fO, fH, fL, fC decimal.Decimal }

// PermuteIntraday implements the per-day algorithm: the first calendar
// day is preserved bit-exact; every later day's bars are converted to
// factors relative to that day's own opening bar and shuffled among
// themselves; the overnight gaps between consecutive days are
// collected and shuffled separately; and the days are chained together
// in a freshly shuffled processing order, each day's anchor computed
// from the previous processed day's reconstructed close and the next
// shuffled gap factor. A permutable day with no bars contributes no
// gap (the chain's anchor is left unadvanced), since there is no close
// to reconstruct it against.
func (g *Generator) PermuteIntraday(bars []series.Bar, seed uint64) ([]series.Bar, error) {
	days := groupByDay(bars)
	if len(days) == 0 {
		return nil, errs.InvalidArg("synthetic.PermuteIntraday", "bars must not be empty")
	}
	out := append([]series.Bar(nil), days[0].bars...)
	if len(days) == 1 {
		return out, nil
	}

	permutable := days[1:]
	rng := newRNG(seed)

	// Step 1: within-day factor shuffle.
	dayFactors := make([][]intradayFactors, len(permutable))
	for di, day := range permutable {
		if len(day.bars) == 0 {
			continue
		}
		dayOpen := day.bars[0].Open
		fs := make([]intradayFactors, len(day.bars))
		for bi, b := range day.bars {
			fs[bi] = intradayFactors{
				fO: divide(b.Open, dayOpen),
				fH: divide(b.High, dayOpen),
				fL: divide(b.Low, dayOpen),
				fC: divide(b.Close, dayOpen),
			}
		}
		rng.Shuffle(len(fs), func(i, j int) { fs[i], fs[j] = fs[j], fs[i] })
		dayFactors[di] = fs
	}

	// Step 2: overnight gap factors, computed against original closes.
	gaps := make([]decimal.Decimal, len(permutable))
	prevOriginalClose := days[0].bars[len(days[0].bars)-1].Close
	for di, day := range permutable {
		if len(day.bars) == 0 {
			gaps[di] = decimal.NewFromInt(1)
			continue
		}
		gaps[di] = divide(day.bars[0].Open, prevOriginalClose)
		prevOriginalClose = day.bars[len(day.bars)-1].Close
	}
	shuffledGaps := append([]decimal.Decimal(nil), gaps...)
	rng.Shuffle(len(shuffledGaps), func(i, j int) { shuffledGaps[i], shuffledGaps[j] = shuffledGaps[j], shuffledGaps[i] })

	// Step 3: shuffle the processing order of the permutable days.
	order := make([]int, len(permutable))
	for i := range order {
		order[i] = i
	}
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	reconstructed := make([][]series.Bar, len(permutable))
	prevClose := days[0].bars[len(days[0].bars)-1].Close
	for pos, di := range order {
		day := permutable[di]
		if len(day.bars) == 0 {
			// Recorded gap factor is 1.0 and the anchor does not advance,
			// since there is no bar to reconstruct a close from.
			continue
		}
		newDayOpen := prevClose.Mul(shuffledGaps[pos])
		fs := dayFactors[di]
		recon := make([]series.Bar, len(day.bars))
		var lastClose decimal.Decimal
		for bi, b := range day.bars {
			f := fs[bi]
			o := newDayOpen.Mul(f.fO)
			h := newDayOpen.Mul(f.fH)
			l := newDayOpen.Mul(f.fL)
			c := newDayOpen.Mul(f.fC)
			bar, err := series.NewBar(b.Timestamp, g.round(o), g.round(h), g.round(l), g.round(c), decimal.Zero)
			if err != nil {
				return nil, errs.WrapInvalidArg("synthetic.PermuteIntraday", "reconstructed bar violates OHLC ordering", err)
			}
			recon[bi] = bar
			lastClose = bar.Close
		}
		reconstructed[di] = recon
		prevClose = lastClose
	}

	for _, recon := range reconstructed {
		out = append(out, recon...)
	}
	return out, nil
}
