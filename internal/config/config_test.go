package config

import (
	"os"
	"path/filepath"
	"testing"

	"wsi-tiler/internal/tiling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConverts(t *testing.T) {
	cfg := Default()

	tc, err := cfg.TilingConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.5, tc.Spacing)
	assert.Equal(t, 224, tc.TileSize)
	assert.True(t, tc.UsePadding)

	fc, err := cfg.FilterConfig()
	require.NoError(t, err)
	assert.Equal(t, tiling.DefaultFilterConfig(), fc)

	seg, err := cfg.SegmentOptions()
	require.NoError(t, err)
	assert.Equal(t, 32.0, seg.Downsample)
	assert.Equal(t, 255, seg.MaxValue)

	m, err := cfg.MaskOptions()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), m.TissueValue)

	assert.Positive(t, cfg.Processing.Workers)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"run.yaml", "run.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			cfg := Default()
			cfg.Tiling.Spacing = 1.0
			cfg.Tiling.DropHoles = true
			cfg.Filter.MaxHoles = 3
			cfg.Segmentation.UseOtsu = true
			cfg.Processing.Workers = 6
			cfg.Processing.BaseSpacing = 0.242
			require.NoError(t, Save(cfg, path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadPartialYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tiling:\n  tileSize: 512\n  overlap: 0.25\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Tiling.TileSize)
	assert.Equal(t, 0.25, cfg.Tiling.Overlap)
	assert.Equal(t, 0.5, cfg.Tiling.Spacing)
	assert.Equal(t, 16, cfg.Filter.RefTileSize)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	doc := `
[tiling]
spacing = 2.0
tile_size = 256

[processing]
workers = 3
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Tiling.Spacing)
	assert.Equal(t, 256, cfg.Tiling.TileSize)
	assert.Equal(t, 3, cfg.Processing.Workers)
}

func TestLoadRejectsBadSyntax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tiling: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestInvalidValuesSurfaceOnConversion(t *testing.T) {
	cfg := Default()
	cfg.Tiling.Overlap = 1
	_, err := cfg.TilingConfig()
	assert.ErrorIs(t, err, tiling.ErrInvalidConfig)

	cfg.Filter.RefTileSize = 0
	_, err = cfg.FilterConfig()
	assert.ErrorIs(t, err, tiling.ErrInvalidConfig)

	cfg.Segmentation.MedianKernel = 4
	_, err = cfg.SegmentOptions()
	assert.Error(t, err)

	cfg.Mask.TissueValue = 300
	_, err = cfg.MaskOptions()
	assert.Error(t, err)
}
