package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/thesislens/internal/models"
	"github.com/hyperjump/thesislens/internal/vector"
)

func testSnapshot(t *testing.T, compression vector.Compression) *Snapshot {
	t.Helper()
	idx, err := vector.Build(context.Background(), "flat", 3, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}, vector.WithCompression(compression))
	require.NoError(t, err)
	snap, err := New(idx, []models.MetadataRecord{
		{ID: "a", Title: "Cats", Author: "X", Abstract: "cats and dogs"},
		{ID: "b", Title: "ML", Author: "Y", Abstract: "machine learning basics"},
		{ID: "c", Title: "Garden", Author: "Z", Abstract: "gardening tips"},
	}, "test-model")
	require.NoError(t, err)
	return snap
}

func TestNew_rejectsMisalignedRecords(t *testing.T) {
	idx, err := vector.Build(context.Background(), "flat", 2, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	_, err = New(idx, []models.MetadataRecord{{ID: "only-one"}}, "m")
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	for _, c := range []vector.Compression{vector.CompressionNone, vector.CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			ctx := context.Background()
			store := NewStore(t.TempDir())
			snap := testSnapshot(t, c)
			require.NoError(t, store.Save(ctx, snap))

			loaded, err := store.Load(ctx)
			require.NoError(t, err)
			defer loaded.Close()

			assert.Equal(t, snap.Version, loaded.Version)
			assert.Equal(t, "test-model", loaded.Model)
			assert.Equal(t, 3, loaded.Dimensions)
			assert.Equal(t, snap.Records, loaded.Records)
			assert.Equal(t, loaded.Size(), loaded.Index.Size())

			query := []float32{0.2, 0.9, 0.1}
			want, err := snap.Index.Search(ctx, query, 3)
			require.NoError(t, err)
			got, err := loaded.Index.Search(ctx, query, 3)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestStore_LoadWithoutSnapshot(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = NewStore(filepath.Join(t.TempDir(), "does-not-exist")).Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestStore_LoadMissingHalf(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		remove func(s *Store, version string) string
	}{
		{"vectors missing", func(s *Store, v string) string { return s.VectorsPath(v) }},
		{"metadata missing", func(s *Store, v string) string { return s.MetadataPath(v) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(t.TempDir())
			snap := testSnapshot(t, vector.CompressionNone)
			require.NoError(t, store.Save(ctx, snap))
			require.NoError(t, os.Remove(tt.remove(store, snap.Version)))

			_, err := store.Load(ctx)
			assert.ErrorIs(t, err, ErrNoSnapshot)
		})
	}
}

func TestStore_LoadLengthMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewStore(t.TempDir())
	snap := testSnapshot(t, vector.CompressionNone)
	require.NoError(t, store.Save(ctx, snap))

	path := store.MetadataPath(snap.Version)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	env.Records = env.Records[:2]
	env.Count = 2
	data, err = json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestStore_LoadVersionMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewStore(t.TempDir())
	first := testSnapshot(t, vector.CompressionNone)
	require.NoError(t, store.Save(ctx, first))

	// Point the metadata file of the committed version at another version id.
	path := store.MetadataPath(first.Version)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	env.Version = "some-other-version"
	data, _ = json.Marshal(env)
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestStore_LoadCorruptVectors(t *testing.T) {
	ctx := context.Background()
	store := NewStore(t.TempDir())
	snap := testSnapshot(t, vector.CompressionNone)
	require.NoError(t, store.Save(ctx, snap))
	require.NoError(t, os.WriteFile(store.VectorsPath(snap.Version), []byte("junk"), 0600))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestStore_SavePrunesOldVersions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewStore(dir)

	first := testSnapshot(t, vector.CompressionNone)
	require.NoError(t, store.Save(ctx, first))
	second := testSnapshot(t, vector.CompressionNone)
	require.NoError(t, store.Save(ctx, second))

	current, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, second.Version, current)

	_, err = os.Stat(store.VectorsPath(first.Version))
	assert.True(t, errors.Is(err, os.ErrNotExist), "old vectors should be pruned")
	_, err = os.Stat(store.MetadataPath(first.Version))
	assert.True(t, errors.Is(err, os.ErrNotExist), "old metadata should be pruned")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestSnapshot_CheckCompatible(t *testing.T) {
	snap := testSnapshot(t, vector.CompressionNone)
	assert.NoError(t, snap.CheckCompatible("test-model", 3))
	assert.ErrorIs(t, snap.CheckCompatible("other-model", 3), ErrStale)

	err := snap.CheckCompatible("test-model", 384)
	var dm *vector.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 384, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
}

func TestSnapshot_Record(t *testing.T) {
	snap := testSnapshot(t, vector.CompressionNone)
	rec, ok := snap.Record(1)
	require.True(t, ok)
	assert.Equal(t, "b", rec.ID)
	_, ok = snap.Record(3)
	assert.False(t, ok)
	_, ok = snap.Record(-1)
	assert.False(t, ok)
}
