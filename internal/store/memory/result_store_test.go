package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iaq-analysis/internal/pipeline"
)

func TestResultStoreSaveGetList(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()
	t0 := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveAnalysis(ctx, &pipeline.Result{RunID: "b", StartedAt: t0.Add(time.Hour)}))
	require.NoError(t, store.SaveAnalysis(ctx, &pipeline.Result{RunID: "a", StartedAt: t0}))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, t0, got.StartedAt)

	list := store.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].RunID)
	assert.Equal(t, "b", list[1].RunID)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestResultStoreRejectsInvalid(t *testing.T) {
	store := NewResultStore()
	assert.Error(t, store.SaveAnalysis(context.Background(), nil))
	assert.Error(t, store.SaveAnalysis(context.Background(), &pipeline.Result{}))
}
