package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dacapoday/glass/compress"
	"github.com/dacapoday/glass/table"
)

func TestDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	opts, err := cfg.TableOptions()
	require.NoError(t, err)
	require.Equal(t, 8192, opts.BlockSize)
	require.Equal(t, compress.Zstd, opts.Strategy)
	require.Zero(t, opts.Flags)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glass.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
table:
  blockSize: 4096
  compression: lz4
  noSync: true
  retainRevisions: 2
logging:
  level: debug
  format: json
metrics:
  enabled: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4096, cfg.Table.BlockSize)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Metrics.Enabled)

	opts, err := cfg.TableOptions()
	require.NoError(t, err)
	require.Equal(t, compress.LZ4, opts.Strategy)
	require.Equal(t, table.FlagNoSync, opts.Flags)
	require.Equal(t, uint8(2), opts.RetainRevisions)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GLASS_TABLE_BLOCK_SIZE", "16384")
	t.Setenv("GLASS_TABLE_COMPRESSION", "S2")
	t.Setenv("GLASS_TABLE_NO_COMPRESS", "true")
	t.Setenv("GLASS_TABLE_READ_ONLY", "1")
	t.Setenv("GLASS_LOGGING_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "json", cfg.Logging.Format)

	opts, err := cfg.TableOptions()
	require.NoError(t, err)
	require.Equal(t, 16384, opts.BlockSize)
	require.Equal(t, compress.S2, opts.Strategy)
	require.Equal(t, table.FlagNoCompress, opts.Flags)
	require.True(t, opts.ReadOnly)
}

func TestInvalid(t *testing.T) {
	t.Setenv("GLASS_TABLE_NO_SYNC", "maybe")
	_, err := Load("")
	require.ErrorContains(t, err, "GLASS_TABLE_NO_SYNC")

	cfg := Default()
	cfg.Table.BlockSize = 3000
	cfg.Table.Compression = "brotli"
	cfg.Logging.Level = "loud"
	err = cfg.Validate()
	require.ErrorContains(t, err, "table.blockSize 3000")
	require.ErrorIs(t, err, compress.ErrUnknownStrategy)
	require.ErrorContains(t, err, "logging.level")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
