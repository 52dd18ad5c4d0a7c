package rapid_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/indexbag/pkg/indexbag"
	"github.com/Sumatoshi-tech/indexbag/pkg/rapid"
)

const testRunOps = 2000

type fakeRecorder struct {
	mu        sync.Mutex
	ops       map[string]int
	misses    int
	occupancy int
}

func (f *fakeRecorder) RecordOp(_ context.Context, op string, hit bool, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ops == nil {
		f.ops = map[string]int{}
	}

	f.ops[op]++

	if !hit {
		f.misses++
	}
}

func (f *fakeRecorder) RecordOccupancy(_ context.Context, _, _ uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.occupancy++
}

func TestNew_InvalidWeights(t *testing.T) {
	t.Parallel()

	_, err := rapid.New(rapid.WithWeights(rapid.Weights{}))
	require.ErrorIs(t, err, rapid.ErrInvalidWeights)

	_, err = rapid.New(rapid.WithWeights(rapid.Weights{Insert: 2, Remove: -1}))
	require.ErrorIs(t, err, rapid.ErrInvalidWeights)
}

func TestRun_StartupSequence(t *testing.T) {
	t.Parallel()

	driver, err := rapid.New()
	require.NoError(t, err)

	report, err := driver.Run(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, uint64(8), report.Inserts)
	assert.Equal(t, uint64(1), report.Removes)
	assert.Zero(t, report.Lookups)
	assert.Equal(t, uint64(7), report.PoolSize)
	assert.Zero(t, report.Unused)
	assert.Equal(t, uint64(7), report.Live)
	assert.Len(t, driver.Entries(), 7)
}

func TestRun_EntriesStayResolvable(t *testing.T) {
	t.Parallel()

	driver, err := rapid.New(rapid.WithSeed(99))
	require.NoError(t, err)

	report, err := driver.Run(context.Background(), testRunOps)
	require.NoError(t, err)

	entries := driver.Entries()
	assert.Equal(t, report.Live, uint64(len(entries)))
	assert.Equal(t, report.PoolSize, report.Live+report.Unused)
	assert.Equal(t, uint64(testRunOps+9), report.Actions()+report.Skipped)

	for _, entry := range entries {
		value, ok := driver.Bag().Get(entry.Index)
		require.True(t, ok, "entry %v must resolve", entry.Index)
		assert.Equal(t, entry.Value, value)
	}
}

func TestRun_Deterministic(t *testing.T) {
	t.Parallel()

	run := func() (rapid.Report, []rapid.Entry) {
		driver, err := rapid.New(rapid.WithSeed(7))
		require.NoError(t, err)

		report, err := driver.Run(context.Background(), 500)
		require.NoError(t, err)

		return report, driver.Entries()
	}

	first, firstEntries := run()
	second, secondEntries := run()

	first.Duration, second.Duration = 0, 0

	assert.Equal(t, first, second)
	assert.Equal(t, firstEntries, secondEntries)
}

func TestRun_InsertOnlyWeights(t *testing.T) {
	t.Parallel()

	driver, err := rapid.New(rapid.WithWeights(rapid.Weights{Insert: 1}))
	require.NoError(t, err)

	report, err := driver.Run(context.Background(), 50)
	require.NoError(t, err)

	assert.Equal(t, uint64(58), report.Inserts)
	assert.Equal(t, uint64(1), report.Removes)
	assert.Equal(t, uint64(57), report.PoolSize)
	assert.Zero(t, report.Unused)
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	driver, err := rapid.New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := driver.Run(ctx, testRunOps)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(9), report.Actions())
}

func TestRun_HibernateEach(t *testing.T) {
	t.Parallel()

	driver, err := rapid.New(
		rapid.WithHibernateEach(10),
		rapid.WithBagOptions(indexbag.WithPageSize(16)),
	)
	require.NoError(t, err)

	report, err := driver.Run(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), report.Hibernations)
	assert.False(t, driver.Bag().IsHibernated())

	for _, entry := range driver.Entries() {
		value, ok := driver.Bag().Get(entry.Index)
		require.True(t, ok)
		assert.Equal(t, entry.Value, value)
	}
}

func TestRun_Recorder(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}

	driver, err := rapid.New(rapid.WithRecorder(rec))
	require.NoError(t, err)

	report, err := driver.Run(context.Background(), 300)
	require.NoError(t, err)

	assert.Equal(t, int(report.Inserts), rec.ops["insert"])
	assert.Equal(t, int(report.Removes), rec.ops["remove"])
	assert.Equal(t, int(report.Lookups), rec.ops["lookup"])
	assert.Zero(t, rec.misses)
	assert.Equal(t, 1, rec.occupancy)
}

func TestEnact_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	driver, err := rapid.New()
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, driver.Enact(ctx, rapid.Remove))
	require.NoError(t, driver.Enact(ctx, rapid.Lookup))

	report := driver.Report(0)
	assert.Equal(t, uint64(2), report.Skipped)
	assert.Zero(t, report.Actions())
	assert.Zero(t, report.PoolSize)
}

func TestEnact_UnknownAction(t *testing.T) {
	t.Parallel()

	driver, err := rapid.New()
	require.NoError(t, err)

	require.ErrorIs(t, driver.Enact(context.Background(), rapid.Action(42)), rapid.ErrUnknownAction)
}

func TestEnact_Trace(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	driver, err := rapid.New(rapid.WithTrace(&buf))
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, driver.Enact(ctx, rapid.Insert))
	require.NoError(t, driver.Enact(ctx, rapid.Lookup))
	require.NoError(t, driver.Enact(ctx, rapid.Remove))

	out := buf.String()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)

	assert.Contains(t, string(lines[0]), "INSERT")
	assert.Contains(t, string(lines[0]), "(   0/   1)")
	assert.Contains(t, string(lines[0]), "@ #1@0")
	assert.Contains(t, string(lines[1]), "LOOKUP")
	assert.Contains(t, string(lines[2]), "REMOVE")
	assert.Contains(t, string(lines[2]), "(   1/   1)")
	assert.Contains(t, out, "==")
}

func TestAction_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "insert", rapid.Insert.String())
	assert.Equal(t, "remove", rapid.Remove.String())
	assert.Equal(t, "lookup", rapid.Lookup.String())
	assert.Equal(t, "action(9)", rapid.Action(9).String())
	assert.Len(t, rapid.AllActions, 3)
}
