package domain

import (
	"fmt"
	"sort"
)

// Table is the validated summary table handed to the analysis stages.
// It is read-only after construction; stages never mutate runs.
type Table struct {
	runs  []*ScenarioRun
	index map[RunKey]*ScenarioRun
}

// NewTable validates runs and builds the key index.
func NewTable(runs []*ScenarioRun) (*Table, error) {
	t := &Table{
		runs:  make([]*ScenarioRun, 0, len(runs)),
		index: make(map[RunKey]*ScenarioRun, len(runs)),
	}
	for _, run := range runs {
		if run == nil {
			continue
		}
		if err := run.Validate(); err != nil {
			return nil, err
		}
		key := run.Key()
		if _, exists := t.index[key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRun, key)
		}
		t.index[key] = run
		t.runs = append(t.runs, run)
	}
	return t, nil
}

// Runs returns the runs in input order.
func (t *Table) Runs() []*ScenarioRun { return t.runs }

// Len returns the number of runs.
func (t *Table) Len() int { return len(t.runs) }

// Get returns the run for key.
func (t *Table) Get(key RunKey) (*ScenarioRun, bool) {
	run, ok := t.index[key]
	return run, ok
}

// Run returns the run for a configuration under one envelope.
func (t *Table) Run(cfg Configuration, leakage Leakage) (*ScenarioRun, bool) {
	return t.Get(RunKey{Configuration: cfg, Leakage: leakage})
}

// Pair returns the tight and leaky runs of a configuration.
func (t *Table) Pair(cfg Configuration) (tight, leaky *ScenarioRun, err error) {
	tight, okT := t.Run(cfg, LeakageTight)
	leaky, okL := t.Run(cfg, LeakageLeaky)
	switch {
	case !okT && !okL:
		return nil, nil, fmt.Errorf("%w: %s tight and leaky", ErrRunNotFound, cfg)
	case !okT:
		return nil, nil, fmt.Errorf("%w: %s tight", ErrRunNotFound, cfg)
	case !okL:
		return nil, nil, fmt.Errorf("%w: %s leaky", ErrRunNotFound, cfg)
	}
	return tight, leaky, nil
}

// BaselinePair returns the tight and leaky baseline runs at a location.
func (t *Table) BaselinePair(location string) (tight, leaky *ScenarioRun, err error) {
	return t.Pair(Configuration{Location: location, FilterType: FilterBaseline, Mode: ModeBaseline})
}

// Locations returns the distinct locations, sorted.
func (t *Table) Locations() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, run := range t.runs {
		if _, ok := seen[run.Location]; ok {
			continue
		}
		seen[run.Location] = struct{}{}
		out = append(out, run.Location)
	}
	sort.Strings(out)
	return out
}

// FilterTypes returns the distinct non-baseline filter types, sorted.
func (t *Table) FilterTypes() []FilterType {
	seen := make(map[FilterType]struct{})
	var out []FilterType
	for _, run := range t.runs {
		if run.FilterType == FilterBaseline {
			continue
		}
		if _, ok := seen[run.FilterType]; ok {
			continue
		}
		seen[run.FilterType] = struct{}{}
		out = append(out, run.FilterType)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Configurations returns every non-baseline configuration present under at
// least one envelope, ordered by location, filter type, then mode.
func (t *Table) Configurations() []Configuration {
	seen := make(map[Configuration]struct{})
	var out []Configuration
	for _, run := range t.runs {
		cfg := run.Configuration()
		if cfg.IsBaseline() {
			continue
		}
		if _, ok := seen[cfg]; ok {
			continue
		}
		seen[cfg] = struct{}{}
		out = append(out, cfg)
	}
	SortConfigurations(out)
	return out
}

// SortConfigurations orders configurations deterministically in place.
func SortConfigurations(cfgs []Configuration) {
	sort.SliceStable(cfgs, func(i, j int) bool {
		a, b := cfgs[i], cfgs[j]
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		if a.FilterType != b.FilterType {
			return a.FilterType < b.FilterType
		}
		return modeOrder(a.Mode) < modeOrder(b.Mode)
	})
}

func modeOrder(m Mode) int {
	switch m {
	case ModeBaseline:
		return 0
	case ModeActive:
		return 1
	case ModeAlwaysOn:
		return 2
	}
	return 3
}
