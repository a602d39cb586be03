package bounds

import "math"

// Metric is a deterministic bracket on a quantity whose true value lies
// somewhere between the tight-envelope and leaky-envelope realizations.
// It is not a confidence interval.
// Invariant: Lower <= Mean <= Upper, or all three are NaN.
type Metric struct {
	Mean  float64 `json:"mean"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Pair carries the tight and leaky realizations of one metric.
// Tight is not assumed to be the lower bound.
type Pair struct {
	Tight float64 `json:"tight"`
	Leaky float64 `json:"leaky"`
}

// NaN returns the undefined metric.
func NaN() Metric {
	nan := math.NaN()
	return Metric{Mean: nan, Lower: nan, Upper: nan}
}

// Exact returns a degenerate bracket around v.
func Exact(v float64) Metric {
	if math.IsNaN(v) {
		return NaN()
	}
	return Metric{Mean: v, Lower: v, Upper: v}
}

// FromPair brackets two realizations: mean of the two, min and max.
// A one-sided NaN collapses to the finite realization.
func FromPair(tight, leaky float64) Metric {
	tNaN, lNaN := math.IsNaN(tight), math.IsNaN(leaky)
	switch {
	case tNaN && lNaN:
		return NaN()
	case tNaN:
		return Exact(leaky)
	case lNaN:
		return Exact(tight)
	}
	mean := (tight + leaky) / 2
	if math.IsNaN(mean) {
		// -Inf and +Inf together have no meaningful midpoint.
		return NaN()
	}
	return Metric{
		Mean:  mean,
		Lower: math.Min(tight, leaky),
		Upper: math.Max(tight, leaky),
	}
}

// Metric brackets the pair.
func (p Pair) Metric() Metric { return FromPair(p.Tight, p.Leaky) }

// Map applies fn to both realizations.
func (p Pair) Map(fn func(float64) float64) Pair {
	return Pair{Tight: fn(p.Tight), Leaky: fn(p.Leaky)}
}

// Difference bounds Z = X - Y for independently bracketed X and Y.
// The extremes of a difference sit at opposite extremes of the operands.
func Difference(x, y Metric) Metric {
	if x.IsNaN() || y.IsNaN() {
		return NaN()
	}
	return normalize(Metric{
		Mean:  x.Mean - y.Mean,
		Lower: x.Lower - y.Upper,
		Upper: x.Upper - y.Lower,
	})
}

// Ratio bounds Z = X / Y where a larger X and a smaller Y both increase Z.
// Denominators that can reach zero or below make the upper bound +Inf.
func Ratio(x, y Metric) Metric {
	if x.IsNaN() || y.IsNaN() {
		return NaN()
	}
	if y.Lower > 0 {
		corners := [4]float64{
			x.Lower / y.Lower, x.Lower / y.Upper,
			x.Upper / y.Lower, x.Upper / y.Upper,
		}
		lo, hi := corners[0], corners[0]
		for _, c := range corners[1:] {
			lo = math.Min(lo, c)
			hi = math.Max(hi, c)
		}
		return normalize(Metric{Mean: x.Mean / y.Mean, Lower: lo, Upper: hi})
	}
	if x.Lower < 0 {
		// Sign of the quotient is unknown once the denominator crosses zero.
		return NaN()
	}
	lower := math.Inf(1)
	if y.Upper > 0 {
		lower = x.Lower / y.Upper
	}
	mean := math.Inf(1)
	if y.Mean > 0 {
		mean = x.Mean / y.Mean
	}
	return normalize(Metric{Mean: mean, Lower: lower, Upper: math.Inf(1)})
}

// PerUnit divides cost by effect, returning +Inf when the effect is not a
// positive improvement: no finite spend buys a non-improvement.
func PerUnit(cost, effect float64) float64 {
	if math.IsNaN(cost) || math.IsNaN(effect) {
		return math.NaN()
	}
	if effect <= 0 {
		return math.Inf(1)
	}
	return cost / effect
}

// CostPerUnit bounds cost-per-unit-effect. Each envelope's realization uses
// PerUnit; the bracket uses the ratio rule on the cost and effect brackets
// (lower = cost.Lower/effect.Upper, upper = cost.Upper/effect.Lower).
func CostPerUnit(cost, effect Pair) Metric {
	realized := Pair{
		Tight: PerUnit(cost.Tight, effect.Tight),
		Leaky: PerUnit(cost.Leaky, effect.Leaky),
	}
	c, e := cost.Metric(), effect.Metric()
	if c.IsNaN() || e.IsNaN() {
		return realized.Metric()
	}
	lower := PerUnit(c.Lower, e.Upper)
	upper := PerUnit(c.Upper, e.Lower)
	m := realized.Metric()
	if m.IsNaN() {
		return NaN()
	}
	return normalize(Metric{Mean: m.Mean, Lower: lower, Upper: upper})
}

// IsNaN reports whether any field is NaN.
func (m Metric) IsNaN() bool {
	return math.IsNaN(m.Mean) || math.IsNaN(m.Lower) || math.IsNaN(m.Upper)
}

// Width is Upper - Lower.
func (m Metric) Width() float64 { return m.Upper - m.Lower }

// HalfWidth is half the bracket width.
func (m Metric) HalfWidth() float64 { return m.Width() / 2 }

// Valid reports whether the ordering invariant holds.
func (m Metric) Valid() bool {
	if math.IsNaN(m.Mean) && math.IsNaN(m.Lower) && math.IsNaN(m.Upper) {
		return true
	}
	if m.IsNaN() {
		return false
	}
	return m.Lower <= m.Mean && m.Mean <= m.Upper
}

// Scale multiplies every field by k, swapping the bracket when k < 0.
func (m Metric) Scale(k float64) Metric {
	if m.IsNaN() || math.IsNaN(k) {
		return NaN()
	}
	lo, hi := m.Lower*k, m.Upper*k
	if k < 0 {
		lo, hi = hi, lo
	}
	return normalize(Metric{Mean: m.Mean * k, Lower: lo, Upper: hi})
}

// Clamp limits every field to [lo, hi].
func (m Metric) Clamp(lo, hi float64) Metric {
	if m.IsNaN() {
		return m
	}
	c := func(v float64) float64 { return math.Max(lo, math.Min(hi, v)) }
	return Metric{Mean: c(m.Mean), Lower: c(m.Lower), Upper: c(m.Upper)}
}

// normalize repairs rounding drift and undefined midpoints so the ordering
// invariant holds for every derived metric.
func normalize(m Metric) Metric {
	if math.IsNaN(m.Lower) || math.IsNaN(m.Upper) {
		return NaN()
	}
	if m.Lower > m.Upper {
		m.Lower, m.Upper = m.Upper, m.Lower
	}
	if math.IsNaN(m.Mean) {
		return NaN()
	}
	if m.Mean < m.Lower {
		m.Mean = m.Lower
	}
	if m.Mean > m.Upper {
		m.Mean = m.Upper
	}
	return m
}
