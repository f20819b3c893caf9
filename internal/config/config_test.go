package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xprof/internal/config"
	"github.com/maxgio92/xprof/internal/settings"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, settings.CurrentSession, cfg.Session)
	require.Equal(t, settings.SamplesDir+"/current", cfg.SessionDir())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
samples_dir: /data/samples
counters:
  - event: CACHE_MISSES
    count: 500
    unit_mask: 2
  - event: CPU_CYCLES
    count: 100000
separate:
  lib: true
  cpu: true
sync_interval: 2s
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "/data/samples", cfg.SamplesDir)
	require.Len(t, cfg.Counters, 2)
	require.Equal(t, config.Counter{Event: "CACHE_MISSES", Count: 500, UnitMask: 2}, cfg.Counters[0])
	require.True(t, cfg.Separate.Lib)
	require.True(t, cfg.Separate.CPU)
	require.False(t, cfg.Separate.Thread)
	require.Equal(t, 2*time.Second, cfg.SyncInterval)
	require.Equal(t, 64, cfg.MaxOpenFiles)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(config.EnvSamplesDir, "/env/samples")
	t.Setenv(config.EnvSession, "bench")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("samples_dir: /file/samples\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "/env/samples", cfg.SamplesDir)
	require.Equal(t, "/env/samples/bench", cfg.SessionDir())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
	}{
		{name: "no counters", content: "counters: []\n", err: config.ErrNoCounters},
		{name: "bad event", content: "counters: [{event: a.b, count: 1}]\n", err: config.ErrCounterEvent},
		{name: "zero count", content: "counters: [{event: X, count: 0}]\n", err: config.ErrCounterCount},
		{name: "zero sync", content: "sync_interval: 0s\n", err: config.ErrSyncInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := config.Load(path)
			require.ErrorIs(t, err, tt.err)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseCounter(t *testing.T) {
	tests := []struct {
		in      string
		want    config.Counter
		wantErr bool
	}{
		{in: "CPU_CYCLES:100000", want: config.Counter{Event: "CPU_CYCLES", Count: 100000}},
		{in: "CACHE_MISSES:500:0x2", want: config.Counter{Event: "CACHE_MISSES", Count: 500, UnitMask: 2}},
		{in: "CPU_CYCLES", wantErr: true},
		{in: "CPU_CYCLES:x", wantErr: true},
		{in: "A:1:2:3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := config.ParseCounter(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
