package cost

import (
	"fmt"
	"math"

	"iaq-analysis/internal/aqi"
)

const (
	// cleanAQI is the upper edge of the Good category.
	cleanAQI = 50.0
	// severityExponent weights reductions at higher baseline AQI more heavily.
	severityExponent = 1.5
	// perfectHour is one hour reduced from AQI 100 to 0.
	perfectHour = 100.0
	// referenceDailyExposure is 15 µg/m³ sustained for 24 hours.
	referenceDailyExposure = 15.0 * 24
	healthScaleDivisor     = 10.0
	pm10HealthWeight       = 0.5
)

// Estimate breaks the improved AQI-hours-avoided metric into its estimators.
type Estimate struct {
	Traditional   float64 `json:"traditional"`
	Weighted      float64 `json:"weighted"`
	Health        float64 `json:"health"`
	ImprovedHours int     `json:"improved_hours"`
	FloorApplied  bool    `json:"floor_applied"`
	Value         float64 `json:"value"`
}

// Series is an hourly PM2.5/PM10 pair with its precomputed composite AQI.
type Series struct {
	PM25 []float64
	PM10 []float64
	AQI  []float64
}

// NewSeries converts a PM pair to composite AQI with bp.
func NewSeries(bp aqi.Breakpoints, pm25, pm10 []float64) (Series, error) {
	idx, err := bp.IndexSeries(pm25, pm10)
	if err != nil {
		return Series{}, err
	}
	return Series{PM25: pm25, PM10: pm10, AQI: idx}, nil
}

// ImprovedAQIHours combines the threshold-crossing, severity-weighted and
// health-proxy estimators of AQI-hours avoided and returns their maximum,
// never negative. When all three round to zero but some hour still improved,
// a small positive floor is returned instead.
func ImprovedAQIHours(baseline, intervention Series) (Estimate, error) {
	n := len(baseline.AQI)
	if len(intervention.AQI) != n || len(baseline.PM25) != n || len(intervention.PM25) != n ||
		len(baseline.PM10) != n || len(intervention.PM10) != n {
		return Estimate{}, fmt.Errorf("%w: baseline %d hours, intervention %d hours", ErrLengthMismatch, n, len(intervention.AQI))
	}

	var est Estimate
	var weighted float64
	for i := 0; i < n; i++ {
		b, v := baseline.AQI[i], intervention.AQI[i]
		if math.IsNaN(b) || math.IsNaN(v) {
			continue
		}
		if b > cleanAQI && v <= cleanAQI {
			est.Traditional++
		}
		reduction := b - v
		if reduction > 0 {
			est.ImprovedHours++
			weight := 1 + math.Pow(math.Max(0, b)/cleanAQI, severityExponent)
			weighted += reduction * weight
		}
	}
	est.Weighted = weighted / perfectHour

	baseLoad := nanSum(baseline.PM25) + pm10HealthWeight*nanSum(baseline.PM10)
	intLoad := nanSum(intervention.PM25) + pm10HealthWeight*nanSum(intervention.PM10)
	est.Health = (baseLoad - intLoad) / referenceDailyExposure / healthScaleDivisor

	est.Value = math.Max(0, math.Max(est.Traditional, math.Max(est.Weighted, est.Health)))
	if roundsToZero(est.Traditional) && roundsToZero(est.Weighted) && roundsToZero(est.Health) && est.ImprovedHours > 0 {
		floor := 0.1 + 0.01*float64(est.ImprovedHours)
		if floor > est.Value {
			est.Value = floor
			est.FloorApplied = true
		}
	}
	return est, nil
}

// roundsToZero reports whether v is zero at two decimal places.
func roundsToZero(v float64) bool {
	return math.Round(v*100) == 0
}

func nanSum(values []float64) float64 {
	var s float64
	for _, v := range values {
		if !math.IsNaN(v) {
			s += v
		}
	}
	return s
}
