package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"wsi-tiler/internal/tiling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *tiling.Result {
	return &tiling.Result{
		Coordinates: []tiling.TileCoordinate{
			{X: 0, Y: 0, TissueRatio: 0.9, Level: 1, ResizeFactor: 1},
			{X: 0, Y: 1024, TissueRatio: 0.5, Level: 1, ResizeFactor: 1},
			{X: 1024, Y: 0, TissueRatio: 0.75, Level: 1, ResizeFactor: 1},
		},
		TileLevel:      1,
		ResizeFactor:   1,
		TileSizeLevel0: 1024,
	}
}

func sampleConfig() tiling.Config {
	return tiling.Config{Spacing: 2, Tolerance: 0.1, TileSize: 256, MinTissueRatio: 0.25, UsePadding: true}
}

func TestFileSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "tiles.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	f := New(sampleConfig(), tiling.DefaultFilterConfig(), sampleResult())
	f.SetSlide(path, filepath.Join(dir, "slides", "case1", "manifest.yaml"))
	require.NoError(t, f.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, FileVersion, loaded.Version)
	assert.Equal(t, filepath.Join("..", "slides", "case1", "manifest.yaml"), loaded.SlidePath)
	assert.Equal(t, filepath.Join(dir, "slides", "case1", "manifest.yaml"), loaded.GetSlidePath(path))
	assert.Empty(t, loaded.GetMaskPath(path))
	assert.Equal(t, sampleConfig(), loaded.Tiling)
	assert.Equal(t, tiling.DefaultFilterConfig(), loaded.Filter)
	assert.Equal(t, sampleResult().Coordinates, loaded.Tiles)
	assert.Equal(t, 1024, loaded.TileSizeLevel0)
}

func TestFileEmptyResult(t *testing.T) {
	f := New(sampleConfig(), tiling.DefaultFilterConfig(), &tiling.Result{TileLevel: tiling.NoLevel})
	assert.Equal(t, tiling.NoLevel, f.TileLevel)
	assert.NotNil(t, f.Tiles, "serialised as an empty list")
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99}`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "tiles.db"))
	require.NoError(t, err)
	defer store.Close()

	id, err := store.SaveRun(ctx, "case1/manifest.yaml", "", sampleConfig(), tiling.DefaultFilterConfig(), sampleResult())
	require.NoError(t, err)
	assert.Len(t, id, 36)

	run, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "case1/manifest.yaml", run.Slide)
	assert.Empty(t, run.Mask)
	assert.Equal(t, sampleConfig(), run.Tiling)
	assert.Equal(t, tiling.DefaultFilterConfig(), run.Filter)
	assert.Equal(t, *sampleResult(), run.Result)
	assert.False(t, run.CreatedAt.IsZero())
}

func TestStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "tiles.db"))
	require.NoError(t, err)
	defer store.Close()

	a, err := store.SaveRun(ctx, "a.yaml", "a-mask.yaml", sampleConfig(), tiling.DefaultFilterConfig(), sampleResult())
	require.NoError(t, err)
	_, err = store.SaveRun(ctx, "b.yaml", "", sampleConfig(), tiling.DefaultFilterConfig(), &tiling.Result{TileLevel: tiling.NoLevel})
	require.NoError(t, err)

	all, err := store.ListRuns(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyA, err := store.ListRuns(ctx, "a.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{a}, onlyA)

	run, err := store.GetRun(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "a-mask.yaml", run.Mask)

	// Hold the existing connections so the delete runs on a new one.
	for i := 0; i < 4; i++ {
		conn, err := store.db.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()
	}

	require.NoError(t, store.DeleteRun(ctx, a))

	var orphans int
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tiles WHERE run_id = ?", a).Scan(&orphans))
	assert.Zero(t, orphans)

	_, err = store.GetRun(ctx, a)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, store.DeleteRun(ctx, a), ErrRunNotFound)
}
