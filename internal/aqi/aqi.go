package aqi

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidBreakpoints is returned when a breakpoint table is malformed.
	ErrInvalidBreakpoints = errors.New("aqi: invalid breakpoints")
	// ErrNaNConcentration is returned when a classified series contains NaN.
	ErrNaNConcentration = errors.New("aqi: NaN concentration")
	// ErrLengthMismatch is returned when PM2.5 and PM10 series differ in length.
	ErrLengthMismatch = errors.New("aqi: pm2.5/pm10 length mismatch")
)

// Category is an ordinal AQI health category.
type Category int

const (
	Good Category = iota
	Moderate
	USG
	Unhealthy
	VeryUnhealthy
	Hazardous
)

// NumCategories is the number of AQI categories.
const NumCategories = 6

var categoryNames = [NumCategories]string{
	"Good",
	"Moderate",
	"Unhealthy for Sensitive Groups",
	"Unhealthy",
	"Very Unhealthy",
	"Hazardous",
}

var categoryKeys = [NumCategories]string{
	"good", "moderate", "usg", "unhealthy", "very_unhealthy", "hazardous",
}

// String returns the display name.
func (c Category) String() string {
	if c < Good || c > Hazardous {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// Key returns a column-friendly identifier.
func (c Category) Key() string {
	if c < Good || c > Hazardous {
		return "unknown"
	}
	return categoryKeys[c]
}

// Categories lists all categories in ascending severity.
func Categories() []Category {
	return []Category{Good, Moderate, USG, Unhealthy, VeryUnhealthy, Hazardous}
}

// Breakpoints holds the concentration edges for each pollutant and the AQI
// scale they map onto. Each table has NumCategories+1 ascending entries.
type Breakpoints struct {
	PM25  []float64
	PM10  []float64
	Scale []float64
}

// DefaultBreakpoints returns the EPA-style tables.
func DefaultBreakpoints() Breakpoints {
	return Breakpoints{
		PM25:  []float64{0.0, 9.0, 35.4, 55.4, 125.4, 225.4, 325.4},
		PM10:  []float64{0.0, 54.0, 154.0, 254.0, 354.0, 424.0, 604.0},
		Scale: []float64{0, 50, 100, 150, 200, 300, 500},
	}
}

// Validate checks table lengths and strict monotonicity.
func (b Breakpoints) Validate() error {
	for name, edges := range map[string][]float64{"pm25": b.PM25, "pm10": b.PM10, "scale": b.Scale} {
		if len(edges) != NumCategories+1 {
			return fmt.Errorf("%w: %s has %d edges, want %d", ErrInvalidBreakpoints, name, len(edges), NumCategories+1)
		}
		for i := 1; i < len(edges); i++ {
			if !(edges[i] > edges[i-1]) {
				return fmt.Errorf("%w: %s not strictly increasing at %d", ErrInvalidBreakpoints, name, i)
			}
		}
	}
	return nil
}

// CategoryPM25 buckets a PM2.5 concentration.
func (b Breakpoints) CategoryPM25(c float64) Category { return bucket(b.PM25, c) }

// CategoryPM10 buckets a PM10 concentration.
func (b Breakpoints) CategoryPM10(c float64) Category { return bucket(b.PM10, c) }

// Composite returns the worse of the two pollutant categories for one hour.
func (b Breakpoints) Composite(pm25, pm10 float64) Category {
	c25, c10 := b.CategoryPM25(pm25), b.CategoryPM10(pm10)
	if c10 > c25 {
		return c10
	}
	return c25
}

// Classify maps paired hourly series to composite categories. NaN is an
// error: silently dropping hours would bias exposure tallies.
func (b Breakpoints) Classify(pm25, pm10 []float64) ([]Category, error) {
	if len(pm25) != len(pm10) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(pm25), len(pm10))
	}
	out := make([]Category, len(pm25))
	for i := range pm25 {
		if math.IsNaN(pm25[i]) || math.IsNaN(pm10[i]) {
			return nil, fmt.Errorf("%w at hour %d", ErrNaNConcentration, i)
		}
		out[i] = b.Composite(pm25[i], pm10[i])
	}
	return out, nil
}

// IndexPM25 converts a PM2.5 concentration to a continuous AQI value.
func (b Breakpoints) IndexPM25(c float64) float64 { return interpolate(b.PM25, b.Scale, c) }

// IndexPM10 converts a PM10 concentration to a continuous AQI value.
func (b Breakpoints) IndexPM10(c float64) float64 { return interpolate(b.PM10, b.Scale, c) }

// CompositeIndex is the worse-pollutant continuous AQI for one hour.
func (b Breakpoints) CompositeIndex(pm25, pm10 float64) float64 {
	a, c := b.IndexPM25(pm25), b.IndexPM10(pm10)
	if math.IsNaN(a) || math.IsNaN(c) {
		return math.NaN()
	}
	return math.Max(a, c)
}

// IndexSeries converts paired hourly series to composite AQI values.
// NaN hours yield NaN.
func (b Breakpoints) IndexSeries(pm25, pm10 []float64) ([]float64, error) {
	if len(pm25) != len(pm10) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(pm25), len(pm10))
	}
	out := make([]float64, len(pm25))
	for i := range pm25 {
		out[i] = b.CompositeIndex(pm25[i], pm10[i])
	}
	return out, nil
}

// bucket places c in (e[i], e[i+1]]; the first bin also takes everything at
// or below e[1] and the last bin everything above the top edge.
func bucket(edges []float64, c float64) Category {
	for i := 1; i < len(edges)-1; i++ {
		if c <= edges[i] {
			return Category(i - 1)
		}
	}
	return Category(len(edges) - 2)
}

// interpolate is piecewise-linear with linear extrapolation off both ends.
func interpolate(edges, scale []float64, c float64) float64 {
	if math.IsNaN(c) {
		return math.NaN()
	}
	seg := len(edges) - 2
	for i := 0; i < len(edges)-1; i++ {
		if c <= edges[i+1] {
			seg = i
			break
		}
	}
	x0, x1 := edges[seg], edges[seg+1]
	y0, y1 := scale[seg], scale[seg+1]
	return y0 + (c-x0)*(y1-y0)/(x1-x0)
}

// Counts tallies hours per category.
type Counts [NumCategories]int

// CountHours tallies a category series.
func CountHours(cats []Category) Counts {
	var c Counts
	for _, cat := range cats {
		if cat >= Good && cat <= Hazardous {
			c[cat]++
		}
	}
	return c
}

// Total returns the number of tallied hours.
func (c Counts) Total() int {
	var n int
	for _, v := range c {
		n += v
	}
	return n
}

// AtLeast returns hours at or above a severity.
func (c Counts) AtLeast(min Category) int {
	var n int
	for cat := min; cat <= Hazardous; cat++ {
		n += c[cat]
	}
	return n
}
