package ratelimit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudget_Wait_GrantsBurstImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.json")
	b := New(path, 60, 5)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond, "burst should be near-instant")
	assert.Equal(t, int64(5), b.Calls())
}

func TestBudget_Wait_ReturnsErrorWhenContextCanceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.json")
	b := New(path, 1, 1)
	require.NoError(t, b.Wait(context.Background()), "consume the sole burst token")

	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, b.Wait(cancelCtx), "should time out waiting for the next token")
}

func TestPeek_MissingFileReportsFullBurst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.json")
	tokens, err := Peek(path, 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, tokens)
}

func TestPeek_ReflectsTokensConsumedByABudget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.json")
	b := New(path, 60, 5)
	require.NoError(t, b.Wait(context.Background()))
	require.NoError(t, b.Wait(context.Background()))

	tokens, err := Peek(path, 5)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, tokens, 0.1)
}

func TestBudget_Wait_SharesCeilingAcrossInstancesOnTheSamePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.json")
	a := New(path, 60, 2)
	b := New(path, 60, 2)
	ctx := context.Background()

	// The burst of 2 is shared by path, not per-instance: two grants total,
	// regardless of which Budget value asks for them.
	require.NoError(t, a.Wait(ctx))
	require.NoError(t, b.Wait(ctx))

	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, a.Wait(cancelCtx), "third grant across the two instances must block on the shared bucket")
}
