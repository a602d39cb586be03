package events

import (
	"math"
	"sort"
)

// Event is a contiguous run of samples above a threshold. Indices are
// zero-based and inclusive. Events are immutable once detected.
type Event struct {
	Start     int     `json:"start"`
	End       int     `json:"end"`
	Duration  int     `json:"duration"`
	PeakTime  int     `json:"peak_time"`
	PeakValue float64 `json:"peak_value"`
	// Baseline is the pre-event level the threshold was derived from.
	Baseline float64 `json:"baseline"`
}

// Detect returns the maximal runs where series exceeds threshold for at least
// minDuration samples, in ascending start order. NaN samples never exceed the
// threshold and so split runs. multiplier is the threshold-to-baseline ratio
// used to reconstruct each event's baseline.
func Detect(series []float64, threshold float64, minDuration int, multiplier float64) []Event {
	if minDuration < 1 {
		minDuration = 1
	}
	baseline := math.NaN()
	if multiplier > 0 {
		baseline = threshold / multiplier
	}

	var events []Event
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		if end-start+1 >= minDuration {
			peak := start
			for i := start + 1; i <= end; i++ {
				if series[i] > series[peak] {
					peak = i
				}
			}
			events = append(events, Event{
				Start:     start,
				End:       end,
				Duration:  end - start + 1,
				PeakTime:  peak,
				PeakValue: series[peak],
				Baseline:  baseline,
			})
		}
		start = -1
	}
	for i, v := range series {
		if v > threshold {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i - 1)
	}
	flush(len(series) - 1)
	return events
}

// Threshold derives a detection threshold as multiplier times the median of
// the finite samples. An empty or all-NaN series yields NaN.
func Threshold(series []float64, multiplier float64) float64 {
	return multiplier * nanMedian(series)
}

func nanMedian(series []float64) float64 {
	vals := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}
