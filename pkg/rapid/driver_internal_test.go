package rapid //nolint:testpackage // Corrupts unexported driver state.

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnact_DetectsValueMismatch(t *testing.T) {
	t.Parallel()

	driver, err := New()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, driver.Enact(ctx, Insert))

	driver.entries[0].Value ^= 1

	require.ErrorIs(t, driver.Enact(ctx, Lookup), ErrValueMismatch)
	require.ErrorIs(t, driver.Enact(ctx, Remove), ErrValueMismatch)
}

func TestEnact_DetectsMissingEntry(t *testing.T) {
	t.Parallel()

	driver, err := New()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, driver.Enact(ctx, Insert))

	_, ok := driver.bag.Remove(driver.entries[0].Index)
	require.True(t, ok)

	require.ErrorIs(t, driver.Enact(ctx, Lookup), ErrMissingEntry)
	require.ErrorIs(t, driver.Enact(ctx, Remove), ErrMissingEntry)
	require.Empty(t, driver.entries)
}

func TestWeights_Pick(t *testing.T) {
	t.Parallel()

	driver, err := New(WithWeights(Weights{Remove: 1}))
	require.NoError(t, err)

	for range 100 {
		require.Equal(t, Remove, driver.opts.weights.pick(driver.rng))
	}
}
