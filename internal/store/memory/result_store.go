package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"iaq-analysis/internal/pipeline"
)

// ErrResultNotFound is returned for an unknown run id.
var ErrResultNotFound = errors.New("memory result store: run not found")

// ResultStore keeps analysis results in memory for tests and runs without a database.
type ResultStore struct {
	mu   sync.RWMutex
	data map[string]*pipeline.Result
}

// NewResultStore constructs a store.
func NewResultStore() *ResultStore {
	return &ResultStore{data: make(map[string]*pipeline.Result)}
}

// SaveAnalysis stores a result by run id, replacing any earlier one.
func (s *ResultStore) SaveAnalysis(ctx context.Context, result *pipeline.Result) error {
	_ = ctx
	if result == nil {
		return errors.New("memory result store: nil result")
	}
	if result.RunID == "" {
		return errors.New("memory result store: empty run id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[result.RunID] = result
	return nil
}

// Get loads a result by run id.
func (s *ResultStore) Get(ctx context.Context, runID string) (*pipeline.Result, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := s.data[runID]
	if result == nil {
		return nil, ErrResultNotFound
	}
	return result, nil
}

// List returns stored results, oldest first.
func (s *ResultStore) List(ctx context.Context) []*pipeline.Result {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*pipeline.Result, 0, len(s.data))
	for _, result := range s.data {
		out = append(out, result)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
