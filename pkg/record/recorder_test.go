package record_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xprof/internal/config"
	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/filename"
	"github.com/maxgio92/xprof/pkg/record"
	"github.com/maxgio92/xprof/pkg/samplefile"
	"github.com/maxgio92/xprof/pkg/store"
)

const (
	app    = "/usr/bin/app"
	libc   = "/lib/libc.so.6"
	kernel = "vmlinux"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.SamplesDir = t.TempDir()
	cfg.Counters = []config.Counter{{Event: "CPU_CYCLES", Count: 100000}}

	return cfg
}

func stream(t *testing.T, records ...record.Record) *bytes.Buffer {
	var buf bytes.Buffer
	enc := record.NewEncoder(&buf)
	for _, rec := range records {
		require.NoError(t, enc.Encode(rec))
	}
	return &buf
}

func addressSpace() []record.Record {
	return []record.Record{
		record.ExecRecord(10, app),
		record.MmapRecord(10, record.Mapping{Start: 0x400000, End: 0x500000, Path: app}),
		record.MmapRecord(10, record.Mapping{Start: 0x7f0000000000, End: 0x7f0000100000, PgOff: 0x1000, Path: libc}),
		record.MmapRecord(0, record.Mapping{Start: 0xffffffff81000000, End: 0xffffffff82000000, Path: kernel}),
	}
}

func samples(records ...record.Record) []record.Record {
	return append(addressSpace(), records...)
}

func lookup(t *testing.T, cfg *config.Config, spec filename.Spec, key store.Key) store.Value {
	t.Helper()

	spec.BaseDir = cfg.SessionDir()
	spec.Event, spec.Count = "CPU_CYCLES", 100000
	if spec.TGID == 0 {
		spec.TGID, spec.TID = filename.All, filename.All
	}
	if spec.CPU == 0 {
		spec.CPU = filename.All
	}
	path, err := filename.Encode(spec)
	require.NoError(t, err)

	f, err := samplefile.Open(path)
	require.NoError(t, err)
	defer f.Close()

	v, _ := f.Lookup(key)
	return v
}

func TestRecorderRun(t *testing.T) {
	cfg := testConfig(t)
	src := stream(t, samples(
		record.SampleRecord(0, 10, 10, 0, 0x401000),
		record.SampleRecord(0, 10, 10, 0, 0x401000),
		record.SampleRecord(0, 10, 10, 1, 0x401000),
		record.SampleRecord(0, 10, 10, 0, 0x7f0000000010),
		record.SampleRecord(0, 10, 10, 0, 0x7f0000000010),
		record.SampleRecord(0, 10, 10, 0, 0xffffffff81000100),
		// unknown process.
		record.SampleRecord(0, 99, 99, 0, 0x1234),
		// unknown counter.
		record.SampleRecord(7, 10, 10, 0, 0x401000),
	)...)

	ready := false
	r, err := record.New(
		record.WithConfig(cfg),
		record.WithReadyFunc(func() { ready = true }),
	)
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background(), src))
	require.True(t, ready)

	stats := r.Stats()
	require.Equal(t, uint64(8), stats.Samples)
	require.Equal(t, uint64(2), stats.Lost)
	require.Zero(t, stats.Stores)

	require.Equal(t, store.Value(3), lookup(t, cfg, filename.Spec{Image: app}, 0x1000))
	require.Equal(t, store.Value(2), lookup(t, cfg, filename.Spec{Image: libc}, 0x1010))
	require.Equal(t, store.Value(1), lookup(t, cfg, filename.Spec{Image: kernel}, 0x100))
}

func TestRecorderSeparate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Separate = config.Separate{Lib: true, Kernel: true, Thread: true, CPU: true}

	src := stream(t, samples(
		record.SampleRecord(0, 10, 11, 2, 0x7f0000000010),
		record.SampleRecord(0, 10, 11, 2, 0xffffffff81000100),
	)...)

	r, err := record.New(record.WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background(), src))

	dims := filename.Spec{TGID: 10, TID: 11, CPU: 2}

	lib := dims
	lib.Image, lib.LibImage = app, libc
	require.Equal(t, store.Value(1), lookup(t, cfg, lib, 0x1010))

	kern := dims
	kern.Image, kern.LibImage = app, kernel
	require.Equal(t, store.Value(1), lookup(t, cfg, kern, 0x100))

	path, err := filename.Encode(filename.Spec{
		BaseDir: cfg.SessionDir(), Image: app, LibImage: kernel,
		Event: "CPU_CYCLES", Count: 100000, TGID: 10, TID: 11, CPU: 2,
	})
	require.NoError(t, err)
	f, err := samplefile.Open(path)
	require.NoError(t, err)
	defer f.Close()
	require.True(t, f.Header.IsKernel)
	require.True(t, f.Header.SeparateLib)
	require.True(t, f.Header.SeparateKernel)
	require.Equal(t, "CPU_CYCLES", f.Header.Event)
}

func TestRecorderEviction(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxOpenFiles = 1

	var records []record.Record
	for i := 0; i < 5; i++ {
		records = append(records,
			record.SampleRecord(0, 10, 10, 0, 0x401000),
			record.SampleRecord(0, 10, 10, 0, 0x7f0000000010),
		)
	}

	r, err := record.New(record.WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background(), stream(t, samples(records...)...)))
	require.Zero(t, r.Stats().Lost)

	require.Equal(t, store.Value(5), lookup(t, cfg, filename.Spec{Image: app}, 0x1000))
	require.Equal(t, store.Value(5), lookup(t, cfg, filename.Spec{Image: libc}, 0x1010))
}

func TestRecorderProcessLifecycle(t *testing.T) {
	cfg := testConfig(t)

	src := stream(t, samples(
		record.ForkRecord(20, 10),
		record.SampleRecord(0, 20, 20, 0, 0x402000),
		record.ExitRecord(20),
		record.SampleRecord(0, 20, 20, 0, 0x402000),
		// a new image replaces the overlapped mapping.
		record.MmapRecord(10, record.Mapping{Start: 0x400000, End: 0x410000, Path: "/usr/lib/plugin.so"}),
		record.SampleRecord(0, 10, 10, 0, 0x400010),
		// the mapping start is not a valid sample key.
		record.SampleRecord(0, 10, 10, 0, 0x400000),
	)...)

	r, err := record.New(record.WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, r.Run(context.Background(), src))

	require.Equal(t, uint64(2), r.Stats().Lost)
	require.Equal(t, store.Value(1), lookup(t, cfg, filename.Spec{Image: app}, 0x2000))
	require.Equal(t, store.Value(1), lookup(t, cfg, filename.Spec{Image: "/usr/lib/plugin.so"}, 0x10))
}

func TestRecorderCorruptStream(t *testing.T) {
	buf := stream(t, addressSpace()...)
	buf.Truncate(buf.Len() - 3)

	r, err := record.New(record.WithConfig(testConfig(t)))
	require.NoError(t, err)

	err = r.Run(context.Background(), buf)
	require.Error(t, err)
	require.True(t, fault.Is(err, fault.Corruption))
}

func TestRecorderCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	r, err := record.New(record.WithConfig(testConfig(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, pr)
	}()

	enc := record.NewEncoder(pw)
	for _, rec := range samples(record.SampleRecord(0, 10, 10, 0, 0x401000)) {
		require.NoError(t, enc.Encode(rec))
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop")
	}
}

func TestNewRecorderErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []record.Option
	}{
		{"no config", nil},
		{"invalid config", []record.Option{record.WithConfig(&config.Config{})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := record.New(tt.opts...)
			require.Error(t, err)
			require.True(t, fault.Is(err, fault.Usage))
		})
	}
}
