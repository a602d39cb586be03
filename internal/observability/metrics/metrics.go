package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	metricPrefix = "iaq_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once
	registry     *prometheus.Registry

	stageTotal   *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec

	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram

	skippedConfigurations *prometheus.CounterVec
	configurationsScored  prometheus.Gauge
	eventsDetected        *prometheus.CounterVec
	topEfficacyScore      prometheus.Gauge
	aqiCacheLookups       *prometheus.CounterVec
	reportFilesTotal      *prometheus.CounterVec
)

// Init registers analysis metrics on a dedicated registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		registry = prometheus.NewRegistry()

		stageTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pipeline_stage_total",
				Help: "Total pipeline stage executions by stage and result",
			},
			[]string{"stage", "result"},
		)
		stageLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "pipeline_stage_latency_seconds",
				Help:    "Pipeline stage latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage", "result"},
		)
		runsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "analysis_runs_total",
				Help: "Total analysis runs by result",
			},
			[]string{"result"},
		)
		runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "analysis_run_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: prometheus.DefBuckets,
		})
		skippedConfigurations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "skipped_configurations_total",
				Help: "Configurations skipped for missing tight/leaky data by stage",
			},
			[]string{"stage"},
		)
		configurationsScored = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "configurations_scored",
			Help: "Configurations in the last efficacy ranking",
		})
		eventsDetected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pollution_events_detected_total",
				Help: "Outdoor pollution events detected by pollutant",
			},
			[]string{"pollutant"},
		)
		topEfficacyScore = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "top_efficacy_score",
			Help: "Mean efficacy score of the top-ranked configuration",
		})
		aqiCacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aqi_cache_lookups_total",
				Help: "AQI series cache lookups by outcome",
			},
			[]string{"outcome"},
		)
		reportFilesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_files_total",
				Help: "Report files written by format",
			},
			[]string{"format"},
		)

		registry.MustRegister(
			collectors.NewGoCollector(),
			stageTotal,
			stageLatency,
			runsTotal,
			runDuration,
			skippedConfigurations,
			configurationsScored,
			eventsDetected,
			topEfficacyScore,
			aqiCacheLookups,
			reportFilesTotal,
		)
	})
}

// Gatherer exposes the analysis registry, nil before Init.
func Gatherer() prometheus.Gatherer {
	if registry == nil {
		return nil
	}
	return registry
}

// ObserveStage records a pipeline stage result and duration.
func ObserveStage(stage, result string, duration time.Duration) {
	if stage == "" {
		stage = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if stageTotal != nil {
		stageTotal.WithLabelValues(stage, result).Inc()
	}
	if stageLatency != nil {
		stageLatency.WithLabelValues(stage, result).Observe(duration.Seconds())
	}
}

// ObserveRun records an analysis run result and duration.
func ObserveRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if runsTotal != nil {
		runsTotal.WithLabelValues(result).Inc()
	}
	if runDuration != nil {
		runDuration.Observe(duration.Seconds())
	}
}

// AddSkipped counts configurations a stage skipped.
func AddSkipped(stage string, count int) {
	if count <= 0 || skippedConfigurations == nil {
		return
	}
	skippedConfigurations.WithLabelValues(stage).Add(float64(count))
}

// SetRanking records the ranked configuration count and top score.
func SetRanking(count int, topScore float64) {
	if configurationsScored != nil {
		configurationsScored.Set(float64(count))
	}
	if topEfficacyScore != nil && count > 0 {
		topEfficacyScore.Set(topScore)
	}
}

// AddEvents counts detected pollution events.
func AddEvents(pollutant string, count int) {
	if count <= 0 || eventsDetected == nil {
		return
	}
	eventsDetected.WithLabelValues(pollutant).Add(float64(count))
}

// AddCacheLookups records AQI cache hits and misses.
func AddCacheLookups(hits, misses uint64) {
	if aqiCacheLookups == nil {
		return
	}
	aqiCacheLookups.WithLabelValues("hit").Add(float64(hits))
	aqiCacheLookups.WithLabelValues("miss").Add(float64(misses))
}

// IncReportFile counts a written report file.
func IncReportFile(format string) {
	if format == "" {
		format = "unknown"
	}
	if reportFilesTotal != nil {
		reportFilesTotal.WithLabelValues(format).Inc()
	}
}

// Push sends the registry to a Pushgateway grouped by run id. Batch runs
// exit before any scrape, so this is how their metrics leave the process.
func Push(ctx context.Context, url, job, runID string) error {
	if url == "" {
		return nil
	}
	if registry == nil {
		return errors.New("metrics: not initialised")
	}
	if job == "" {
		job = "iaq_analysis"
	}
	pusher := push.New(url, job).Gatherer(registry)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	return pusher.PushContext(ctx)
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
