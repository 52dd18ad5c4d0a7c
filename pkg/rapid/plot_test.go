package rapid_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/indexbag/pkg/rapid"
)

func TestSamples(t *testing.T) {
	t.Parallel()

	driver, err := rapid.New(rapid.WithSampleEvery(10))
	require.NoError(t, err)

	_, err = driver.Run(context.Background(), 91)
	require.NoError(t, err)

	samples := driver.Samples()
	require.Len(t, samples, 10)

	for i, sample := range samples {
		assert.Equal(t, uint64((i+1)*10), sample.Step)
		assert.Equal(t, sample.PoolSize, sample.Live+sample.Unused)
	}
}

func TestRenderOccupancyChart(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	err := rapid.RenderOccupancyChart(&buf, []rapid.Sample{
		{Step: 1, PoolSize: 1, Live: 1},
		{Step: 2, PoolSize: 2, Live: 1, Unused: 1},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "<html")
	assert.Contains(t, out, "indexbag occupancy")
	assert.Contains(t, out, "Pool size")
}

func TestRenderOccupancyChart_NoSamples(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, rapid.RenderOccupancyChart(&bytes.Buffer{}, nil), rapid.ErrNoSamples)
}
