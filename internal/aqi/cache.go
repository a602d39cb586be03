package aqi

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SeriesCache memoizes composite AQI series per run so that a baseline run
// shared by several configurations is converted once.
type SeriesCache struct {
	bp     Breakpoints
	cache  *lru.Cache[string, []float64]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewSeriesCache constructs a cache holding up to size series.
func NewSeriesCache(bp Breakpoints, size int) (*SeriesCache, error) {
	if size <= 0 {
		size = 64
	}
	cache, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, err
	}
	return &SeriesCache{bp: bp, cache: cache}, nil
}

// Breakpoints returns the tables the cache converts with.
func (c *SeriesCache) Breakpoints() Breakpoints { return c.bp }

// Index returns the composite AQI series for key, computing it on a miss.
// Callers must not modify the returned slice.
func (c *SeriesCache) Index(key string, pm25, pm10 []float64) ([]float64, error) {
	if c == nil {
		return DefaultBreakpoints().IndexSeries(pm25, pm10)
	}
	if cached, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return cached, nil
	}
	c.misses.Add(1)
	series, err := c.bp.IndexSeries(pm25, pm10)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, series)
	return series, nil
}

// Stats returns hit and miss counts.
func (c *SeriesCache) Stats() (hits, misses uint64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}
