package events

import "math"

// CrossCorrelation returns the Pearson correlation between outdoor[t] and
// indoor[t+lag] for lag = 0..maxLag, using only pairs where both samples are
// present. Lags with fewer than three pairs or zero variance are NaN.
func CrossCorrelation(outdoor, indoor []float64, maxLag int) []float64 {
	if maxLag < 0 {
		maxLag = 0
	}
	out := make([]float64, maxLag+1)
	for lag := 0; lag <= maxLag; lag++ {
		out[lag] = laggedPearson(outdoor, indoor, lag)
	}
	return out
}

func laggedPearson(x, y []float64, lag int) float64 {
	var sx, sy, sxx, syy, sxy float64
	var n int
	for t := 0; t+lag < len(y) && t < len(x); t++ {
		a, b := x[t], y[t+lag]
		if math.IsNaN(a) || math.IsNaN(b) {
			continue
		}
		sx += a
		sy += b
		sxx += a * a
		syy += b * b
		sxy += a * b
		n++
	}
	if n < 3 {
		return math.NaN()
	}
	fn := float64(n)
	cov := sxy - sx*sy/fn
	vx := sxx - sx*sx/fn
	vy := syy - sy*sy/fn
	if vx <= 0 || vy <= 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(vx*vy)
}

// PeakLag returns the lag with the highest correlation, or -1 when every
// coefficient is NaN. Ties resolve to the shortest lag.
func PeakLag(coeffs []float64) (lag int, coeff float64) {
	lag, coeff = -1, math.NaN()
	for i, c := range coeffs {
		if math.IsNaN(c) {
			continue
		}
		if lag < 0 || c > coeff {
			lag, coeff = i, c
		}
	}
	return lag, coeff
}
