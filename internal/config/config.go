package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"iaq-analysis/internal/aqi"
	"iaq-analysis/internal/cost"
	"iaq-analysis/internal/efficacy"
	"iaq-analysis/internal/events"
	"iaq-analysis/internal/scenario/domain"
	"iaq-analysis/internal/tradeoff"
	"iaq-analysis/internal/uncertainty"
)

// ErrInvalidConfig is returned when loaded configuration cannot drive an analysis.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Breakpoints are the AQI tables.
type Breakpoints struct {
	PM25  []float64 `yaml:"pm25"`
	PM10  []float64 `yaml:"pm10"`
	Scale []float64 `yaml:"scale"`
}

// Events holds event detection and response settings. Zero values and nil
// pointers in a per-location override inherit the defaults.
type Events struct {
	ThresholdMultiplier float64 `yaml:"threshold_multiplier"`
	MinDuration         int     `yaml:"min_duration"`
	PreWindow           int     `yaml:"pre_window"`
	Lookahead           int     `yaml:"lookahead"`
	RecoveryFactor      float64 `yaml:"recovery_factor"`
	RecoveryLookahead   int     `yaml:"recovery_lookahead"`
	ClampPeakReduction  *bool   `yaml:"clamp_peak_reduction"`
	FitDecay            *bool   `yaml:"fit_decay"`
	MaxCorrelationLag   int     `yaml:"max_correlation_lag"`
}

// Location carries per-location overrides.
type Location struct {
	Events Events `yaml:"events"`
}

// PressureDrop is a filter's clean and loaded resistance in pascals.
type PressureDrop struct {
	Initial float64 `yaml:"initial"`
	Loaded  float64 `yaml:"loaded"`
}

// Tradeoff holds fan-law constants.
type Tradeoff struct {
	SystemStaticBudget float64      `yaml:"system_static_budget"`
	HEPA               PressureDrop `yaml:"hepa"`
	MERV               PressureDrop `yaml:"merv"`
	LoadingActive      float64      `yaml:"loading_active"`
	LoadingAlwaysOn    float64      `yaml:"loading_always_on"`
	WideningActive     float64      `yaml:"widening_active"`
	WideningAlwaysOn   float64      `yaml:"widening_always_on"`
	MaxAirflowPenalty  float64      `yaml:"max_airflow_penalty"`
	EnergyMultiplier   float64      `yaml:"energy_multiplier"`
	MaxEnergyPenalty   float64      `yaml:"max_energy_penalty"`
}

// Config defines the analysis configuration.
type Config struct {
	HoursPerYear       float64             `yaml:"hours_per_year"`
	ZeroBaselinePolicy string              `yaml:"zero_baseline_policy"`
	Breakpoints        Breakpoints         `yaml:"breakpoints"`
	Weights            efficacy.Weights    `yaml:"weights"`
	Events             Events              `yaml:"events"`
	Locations          map[string]Location `yaml:"locations"`
	Tradeoff           Tradeoff            `yaml:"tradeoff"`
	RangeMetrics       []string            `yaml:"range_metrics"`
	RequiredFilters    []string            `yaml:"required_filters"`
	AQICacheSize       int                 `yaml:"aqi_cache_size"`

	StorageRoot    string `yaml:"storage_root"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name"`
}

// Default returns the built-in configuration.
func Default() Config {
	bp := aqi.DefaultBreakpoints()
	ep := events.DefaultParams()
	tp := tradeoff.DefaultParams()
	return Config{
		HoursPerYear:       tp.HoursPerYear,
		ZeroBaselinePolicy: string(cost.ZeroBaselineNaN),
		Breakpoints:        Breakpoints{PM25: bp.PM25, PM10: bp.PM10, Scale: bp.Scale},
		Weights:            efficacy.DefaultWeights(),
		Events: Events{
			ThresholdMultiplier: ep.ThresholdMultiplier,
			MinDuration:         ep.MinDuration,
			PreWindow:           ep.PreWindow,
			Lookahead:           ep.Lookahead,
			RecoveryFactor:      ep.RecoveryFactor,
			RecoveryLookahead:   ep.RecoveryLookahead,
			ClampPeakReduction:  boolPtr(ep.ClampPeakReduction),
			FitDecay:            boolPtr(ep.FitDecay),
			MaxCorrelationLag:   ep.MaxCorrelationLag,
		},
		Tradeoff: Tradeoff{
			SystemStaticBudget: tp.SystemStaticBudget,
			HEPA:               PressureDrop(tp.PressureDrops[domain.FilterHEPA]),
			MERV:               PressureDrop(tp.PressureDrops[domain.FilterMERV]),
			LoadingActive:      tp.LoadingFactors[domain.ModeActive],
			LoadingAlwaysOn:    tp.LoadingFactors[domain.ModeAlwaysOn],
			WideningActive:     tp.Widening[domain.ModeActive],
			WideningAlwaysOn:   tp.Widening[domain.ModeAlwaysOn],
			MaxAirflowPenalty:  tp.MaxAirflowPenalty,
			EnergyMultiplier:   tp.EnergyMultiplier,
			MaxEnergyPenalty:   tp.MaxEnergyPenalty,
		},
		RangeMetrics: append([]string(nil), uncertainty.DefaultMetrics...),
		AQICacheSize: 256,
		StorageRoot:  filepath.FromSlash("var/reports/iaq"),
		ServiceName:  "iaq-analysis",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (or
// IAQ_CONFIG when path is empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("IAQ_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.HoursPerYear = getenvFloatDefault("IAQ_HOURS_PER_YEAR", cfg.HoursPerYear)
	cfg.StorageRoot = getenvDefault("IAQ_STORAGE_ROOT", cfg.StorageRoot)
	cfg.ZeroBaselinePolicy = getenvDefault("IAQ_ZERO_BASELINE_POLICY", cfg.ZeroBaselinePolicy)
	cfg.AQICacheSize = getenvIntDefault("IAQ_AQI_CACHE_SIZE", cfg.AQICacheSize)
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = getenvDefault("PG_DSN", os.Getenv("DATABASE_URL"))
	}
	if cfg.PushgatewayURL == "" {
		cfg.PushgatewayURL = os.Getenv("IAQ_PUSHGATEWAY_URL")
	}
	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if metrics := splitCSV(os.Getenv("IAQ_RANGE_METRICS")); len(metrics) > 0 {
		cfg.RangeMetrics = metrics
	}
	if filters := splitCSV(os.Getenv("IAQ_REQUIRED_FILTERS")); len(filters) > 0 {
		cfg.RequiredFilters = filters
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every constant before any analysis runs.
func (c Config) Validate() error {
	if c.StorageRoot == "" {
		return fmt.Errorf("%w: storage root required", ErrInvalidConfig)
	}
	if !(c.HoursPerYear > 0) {
		return fmt.Errorf("%w: hours_per_year must be > 0", ErrInvalidConfig)
	}
	if err := c.AQIBreakpoints().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.EventsFor("").Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for name := range c.Locations {
		if err := c.EventsFor(name).Validate(); err != nil {
			return fmt.Errorf("%w: location %s: %v", ErrInvalidConfig, name, err)
		}
	}
	if err := c.TradeoffParams().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for _, name := range c.RangeMetrics {
		if !uncertainty.KnownMetric(name) {
			return fmt.Errorf("%w: unknown range metric %q", ErrInvalidConfig, name)
		}
	}
	if _, err := c.Filters(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// AQIBreakpoints converts the breakpoint tables.
func (c Config) AQIBreakpoints() aqi.Breakpoints {
	return aqi.Breakpoints{PM25: c.Breakpoints.PM25, PM10: c.Breakpoints.PM10, Scale: c.Breakpoints.Scale}
}

// Policy parses the zero-baseline percent policy.
func (c Config) Policy() (cost.ZeroBaselinePolicy, error) {
	return cost.ParseZeroBaselinePolicy(c.ZeroBaselinePolicy)
}

// Filters parses the required filter list. Empty means every filter present.
func (c Config) Filters() ([]domain.FilterType, error) {
	var out []domain.FilterType
	for _, name := range c.RequiredFilters {
		ft, err := domain.ParseFilterType(name)
		if err != nil {
			return nil, err
		}
		if ft == domain.FilterBaseline {
			return nil, fmt.Errorf("%w: baseline is not an intervention filter", domain.ErrInvalidFilterType)
		}
		out = append(out, ft)
	}
	return out, nil
}

// EventsFor returns event parameters for a location, merging any override
// over the defaults.
func (c Config) EventsFor(location string) events.Params {
	merged := c.Events
	if c.Locations != nil {
		if override, ok := c.Locations[location]; ok {
			merged = mergeEvents(c.Events, override.Events)
		}
	}
	p := events.DefaultParams()
	p.ThresholdMultiplier = merged.ThresholdMultiplier
	p.MinDuration = merged.MinDuration
	p.PreWindow = merged.PreWindow
	p.Lookahead = merged.Lookahead
	p.RecoveryFactor = merged.RecoveryFactor
	p.RecoveryLookahead = merged.RecoveryLookahead
	p.MaxCorrelationLag = merged.MaxCorrelationLag
	if merged.ClampPeakReduction != nil {
		p.ClampPeakReduction = *merged.ClampPeakReduction
	}
	if merged.FitDecay != nil {
		p.FitDecay = *merged.FitDecay
	}
	return p
}

// TradeoffParams converts the fan-law constants.
func (c Config) TradeoffParams() tradeoff.Params {
	t := c.Tradeoff
	return tradeoff.Params{
		HoursPerYear:       c.HoursPerYear,
		SystemStaticBudget: t.SystemStaticBudget,
		PressureDrops: map[domain.FilterType]tradeoff.PressureDrop{
			domain.FilterHEPA: tradeoff.PressureDrop(t.HEPA),
			domain.FilterMERV: tradeoff.PressureDrop(t.MERV),
		},
		LoadingFactors: map[domain.Mode]float64{
			domain.ModeActive:   t.LoadingActive,
			domain.ModeAlwaysOn: t.LoadingAlwaysOn,
		},
		Widening: map[domain.Mode]float64{
			domain.ModeActive:   t.WideningActive,
			domain.ModeAlwaysOn: t.WideningAlwaysOn,
		},
		MaxAirflowPenalty: t.MaxAirflowPenalty,
		EnergyMultiplier:  t.EnergyMultiplier,
		MaxEnergyPenalty:  t.MaxEnergyPenalty,
	}
}

func mergeEvents(base, override Events) Events {
	if override.ThresholdMultiplier != 0 {
		base.ThresholdMultiplier = override.ThresholdMultiplier
	}
	if override.MinDuration != 0 {
		base.MinDuration = override.MinDuration
	}
	if override.PreWindow != 0 {
		base.PreWindow = override.PreWindow
	}
	if override.Lookahead != 0 {
		base.Lookahead = override.Lookahead
	}
	if override.RecoveryFactor != 0 {
		base.RecoveryFactor = override.RecoveryFactor
	}
	if override.RecoveryLookahead != 0 {
		base.RecoveryLookahead = override.RecoveryLookahead
	}
	if override.MaxCorrelationLag != 0 {
		base.MaxCorrelationLag = override.MaxCorrelationLag
	}
	if override.ClampPeakReduction != nil {
		base.ClampPeakReduction = override.ClampPeakReduction
	}
	if override.FitDecay != nil {
		base.FitDecay = override.FitDecay
	}
	return base
}

func boolPtr(v bool) *bool { return &v }

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
