package persist_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/indexbag/pkg/persist"
)

type testState struct {
	Name   string         `json:"name"`
	Values map[string]int `json:"values"`
	Blob   []byte         `json:"blob"`
	Count  int            `json:"count"`
}

func sampleState() *testState {
	return &testState{
		Name:   "test",
		Values: map[string]int{"a": 1, "b": 2},
		Blob:   []byte{0, 1, 2, 255},
		Count:  42,
	}
}

func TestStore_SaveLoad(t *testing.T) {
	t.Parallel()

	for _, name := range []string{persist.CodecGob, persist.CodecJSON} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			codec, err := persist.CodecByName(name)
			require.NoError(t, err)

			store := persist.NewStore[testState](filepath.Join(t.TempDir(), "nested", "dir"), "state", codec)
			assert.False(t, store.Exists())

			require.NoError(t, store.Save(sampleState()))
			assert.True(t, store.Exists())
			assert.Equal(t, "state."+name, filepath.Base(store.Path()))

			loaded, err := store.Load()
			require.NoError(t, err)
			assert.Equal(t, sampleState(), loaded)
		})
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := persist.NewStore[testState](dir, "state", persist.NewJSONCodec())

	require.NoError(t, store.Save(sampleState()))

	next := sampleState()
	next.Count = 7
	require.NoError(t, store.Save(next))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Count)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestStore_LoadMissing(t *testing.T) {
	t.Parallel()

	store := persist.NewStore[testState](t.TempDir(), "absent", persist.NewGobCodec())

	_, err := store.Load()
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestStore_LoadCorrupt(t *testing.T) {
	t.Parallel()

	store := persist.NewStore[testState](t.TempDir(), "state", persist.NewJSONCodec())
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o600))

	_, err := store.Load()
	require.ErrorContains(t, err, "decode state")
}

func TestStore_SaveEncodeErrorCleansUp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := persist.NewStore[map[string]any](dir, "state", persist.NewJSONCodec())

	err := store.Save(&map[string]any{"bad": make(chan int)})
	require.ErrorContains(t, err, "encode state")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCodecByName(t *testing.T) {
	t.Parallel()

	codec, err := persist.CodecByName("JSON")
	require.NoError(t, err)
	assert.Equal(t, ".json", codec.Extension())

	_, err = persist.CodecByName("xml")
	require.ErrorIs(t, err, persist.ErrUnknownCodec)
}
