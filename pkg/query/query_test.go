package query_test

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/query"
)

const base = "/var/lib/xprof/samples/current"

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		tokens  []string
		kind    fault.Kind
		wantErr bool
	}{
		{name: "empty", tokens: nil},
		{name: "event and count", tokens: []string{"event:CYCLES", "count:100000"}},
		{name: "implicit image", tokens: []string{"/bin/*"}},
		{name: "sample-file alone", tokens: []string{"sample-file:" + base + "/{root}/bin/ls/CYCLES.100.0.all.all.all"}},
		{name: "sample-file with binary", tokens: []string{
			"sample-file:" + base + "/{root}/bin/ls/CYCLES.100.0.all.all.all", "binary:/usr/bin/ls",
		}},
		{name: "sample-file with event", tokens: []string{
			"sample-file:" + base + "/{root}/bin/ls/CYCLES.100.0.all.all.all", "event:CYCLES",
		}, wantErr: true, kind: fault.Usage},
		{name: "binary with image pattern", tokens: []string{"binary:/bin/ls", "/bin/*"}, wantErr: true, kind: fault.Usage},
		{name: "bad count", tokens: []string{"count:-1"}, wantErr: true, kind: fault.Usage},
		{name: "bad cpu", tokens: []string{"cpu:x"}, wantErr: true, kind: fault.Usage},
		{name: "bad pattern", tokens: []string{"image:[abc"}, wantErr: true, kind: fault.Usage},
		{name: "bad sample-file", tokens: []string{"sample-file:/tmp/nothing"}, wantErr: true, kind: fault.Usage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := query.Parse(tt.tokens)
			if tt.wantErr {
				require.Error(t, err)
				require.Equal(t, tt.kind, fault.KindOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestExclusiveTagError(t *testing.T) {
	_, err := query.Parse([]string{"binary:/bin/ls", "event:CYCLES"})
	require.ErrorIs(t, err, query.ErrExclusiveTag)
}

func TestIsValidTag(t *testing.T) {
	require.True(t, query.IsValidTag("event:CYCLES"))
	require.True(t, query.IsValidTag("session-exclude:old"))
	require.False(t, query.IsValidTag("/bin/ls"))
	require.False(t, query.IsValidTag("nosuchtag:1"))
}

func TestDefaultSession(t *testing.T) {
	q, err := query.Parse(nil)
	require.NoError(t, err)
	require.Equal(t, []string{query.CurrentSession}, q.Sessions())

	q, err = query.Parse([]string{"session:a,b,c", "session-exclude:b"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, q.Sessions())
}

func TestMatch(t *testing.T) {
	var (
		ls      = base + "/{root}/bin/ls/CYCLES.100000.0.all.all.all"
		lsCPU1  = base + "/{root}/bin/ls/CYCLES.100000.0.all.all.1"
		libc    = base + "/{root}/lib/libc.so.6/{root}/bin/ls/CYCLES.100000.0.all.all.all"
		vmlinux = base + "/{kern}/vmlinux/CYCLES.100000.0.all.all.all"
		cache   = base + "/{root}/bin/ls/CACHE_MISSES.500.1.12.12.all"
	)

	tests := []struct {
		name   string
		tokens []string
		path   string
		want   bool
	}{
		{name: "empty query matches all", path: libc, want: true},
		{name: "event", tokens: []string{"event:CYCLES"}, path: ls, want: true},
		{name: "event mismatch", tokens: []string{"event:CYCLES"}, path: cache},
		{name: "event list", tokens: []string{"event:CYCLES,CACHE_MISSES"}, path: cache, want: true},
		{name: "count mismatch", tokens: []string{"count:1000"}, path: ls},
		{name: "unit mask", tokens: []string{"unit-mask:1"}, path: cache, want: true},
		{name: "cpu all", tokens: []string{"cpu:all"}, path: lsCPU1, want: true},
		{name: "cpu list", tokens: []string{"cpu:0,1"}, path: lsCPU1, want: true},
		{name: "cpu mismatch", tokens: []string{"cpu:0"}, path: lsCPU1},
		{name: "unseparated cpu matches", tokens: []string{"cpu:3"}, path: ls, want: true},
		{name: "tgid", tokens: []string{"tgid:12"}, path: cache, want: true},
		{name: "tgid mismatch", tokens: []string{"tgid:13"}, path: cache},
		{name: "image glob crosses directories", tokens: []string{"image:/*/ls"}, path: ls, want: true},
		{name: "image glob on app of a library table", tokens: []string{"image:/bin/ls"}, path: libc, want: true},
		{name: "image exclude", tokens: []string{"image:/bin/*", "image-exclude:/bin/ls"}, path: ls},
		{name: "image exclude alone", tokens: []string{"image-exclude:/bin/ls"}, path: ls},
		{name: "image exclude alone spares others", tokens: []string{"image-exclude:/bin/ls"}, path: vmlinux, want: true},
		{name: "lib image", tokens: []string{"lib-image:/lib/*"}, path: libc, want: true},
		{name: "lib image misses plain table", tokens: []string{"lib-image:/lib/*"}, path: ls},
		{name: "lib image exclude", tokens: []string{"lib-image-exclude:*libc*"}, path: libc},
		{name: "implicit matches image", tokens: []string{"/bin/ls"}, path: ls, want: true},
		{name: "implicit matches library", tokens: []string{"*libc*"}, path: libc, want: true},
		{name: "implicit misses", tokens: []string{"/usr/*"}, path: ls},
		{name: "implicit kernel", tokens: []string{"vmlinux"}, path: vmlinux, want: true},
		{name: "implicit with image", tokens: []string{"/usr/*", "image:/bin/*"}, path: ls, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := query.Parse(tt.tokens)
			require.NoError(t, err)

			got, err := q.Match(tt.path)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestMatchSampleFile(t *testing.T) {
	sf := base + "/{root}/bin/ls/CYCLES.100000.0.all.all.all"

	q, err := query.Parse([]string{"sample-file:" + sf})
	require.NoError(t, err)

	ok, err := q.Match(sf)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.Match(base + "/{root}/bin/ls/CYCLES.100000.0.5.5.2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = q.Match(base + "/{root}/bin/cat/CYCLES.100000.0.all.all.all")
	require.NoError(t, err)
	require.False(t, ok)

	q, err = query.Parse([]string{"sample-file:" + sf, "binary:/bin/cat"})
	require.NoError(t, err)
	ok, err = q.Match(base + "/{root}/bin/cat/CYCLES.100000.0.all.all.all")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMatchCorruptName(t *testing.T) {
	q, err := query.Parse(nil)
	require.NoError(t, err)

	_, err = q.Match(base + "/{root}/bin/ls/CYCLES.notanumber")
	require.Error(t, err)
	require.True(t, fault.Is(err, fault.Corruption))
}

func touch(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte{}, 0o644))
}

func TestList(t *testing.T) {
	const root = "/samples"

	fs := afero.NewMemMapFs()
	files := []string{
		root + "/current/{root}/bin/ls/CYCLES.100000.0.all.all.all",
		root + "/current/{root}/lib/libc.so.6/{root}/bin/ls/CYCLES.100000.0.all.all.all",
		root + "/current/{kern}/vmlinux/CYCLES.100000.0.all.all.all",
		root + "/old/{root}/bin/ls/CYCLES.100000.0.all.all.all",
	}
	for _, f := range files {
		touch(t, fs, f)
	}
	touch(t, fs, root+"/current/README")

	tests := []struct {
		name   string
		tokens []string
		want   []string
	}{
		{name: "current session", want: files[:3]},
		{name: "image filter", tokens: []string{"image:/bin/ls"}, want: files[:2]},
		{name: "other session", tokens: []string{"session:old"}, want: files[3:]},
		{name: "both sessions", tokens: []string{"session:current,old", "/bin/ls"}, want: []string{files[0], files[1], files[3]}},
		{name: "session glob", tokens: []string{"session:*", "session-exclude:current", "/bin/ls"}, want: files[3:]},
		{name: "absolute session", tokens: []string{"session:" + root + "/old"}, want: files[3:]},
		{name: "missing session", tokens: []string{"session:nosuch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := query.Parse(tt.tokens)
			require.NoError(t, err)

			got, err := query.List(fs, root, q)
			require.NoError(t, err)
			require.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestListSampleFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	sf := "/samples/current/{root}/bin/ls/CYCLES.100000.0.all.all.all"
	touch(t, fs, sf)

	q, err := query.Parse([]string{"sample-file:" + sf})
	require.NoError(t, err)
	got, err := query.List(fs, "/samples", q)
	require.NoError(t, err)
	require.Equal(t, []string{sf}, got)

	q, err = query.Parse([]string{"sample-file:" + sf, "binary:/bin/cat"})
	require.NoError(t, err)
	got, err = query.List(fs, "/samples", q)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestListCorruptNames(t *testing.T) {
	fs := afero.NewMemMapFs()
	touch(t, fs, "/samples/current/{root}/bin/ls/CYCLES.100000.0.all.all.all")
	touch(t, fs, "/samples/current/{root}/bin/ls/garbage")
	touch(t, fs, "/samples/current/{root}/bin/cat/CYCLES")

	q, err := query.Parse(nil)
	require.NoError(t, err)

	_, err = query.List(fs, "/samples", q)
	require.Error(t, err)
	require.True(t, fault.Is(err, fault.Corruption))
	require.Contains(t, err.Error(), "garbage")
}
