package exposure

import (
	"errors"
	"fmt"

	"iaq-analysis/internal/scenario/domain"
)

var (
	// ErrEmptyTable is returned when there is nothing to aggregate.
	ErrEmptyTable = errors.New("exposure: empty summary table")
	// ErrMissingBaseline is returned when a location/leakage has no baseline run.
	ErrMissingBaseline = errors.New("exposure: missing baseline scenario")
	// ErrMissingScenario is returned when a required intervention run is absent.
	ErrMissingScenario = errors.New("exposure: missing required scenario")
	// ErrEmptySeries is returned when a required PM series has no samples.
	ErrEmptySeries = errors.New("exposure: empty PM series")
	// ErrNaNSeries is returned when a required PM series contains NaN.
	ErrNaNSeries = errors.New("exposure: NaN in PM series")
)

// ScenarioError identifies the combination that failed validation.
type ScenarioError struct {
	Kind       error
	Location   string
	Leakage    domain.Leakage
	FilterType domain.FilterType
	Mode       domain.Mode
	Detail     string
}

func (e *ScenarioError) Error() string {
	msg := fmt.Sprintf("%v: location=%s leakage=%s filter=%s mode=%s", e.Kind, e.Location, e.Leakage, e.FilterType, e.Mode)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ScenarioError) Unwrap() error { return e.Kind }

func scenarioError(kind error, key domain.RunKey, detail string) *ScenarioError {
	return &ScenarioError{
		Kind:       kind,
		Location:   key.Location,
		Leakage:    key.Leakage,
		FilterType: key.FilterType,
		Mode:       key.Mode,
		Detail:     detail,
	}
}
