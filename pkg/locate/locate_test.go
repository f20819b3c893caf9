package locate_test

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/locate"
)

func newFs(t *testing.T, files ...string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for _, f := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(f), 0o755))
		require.NoError(t, afero.WriteFile(fs, f, []byte("\x7fELF"), 0o644))
	}
	return fs
}

func TestResolve(t *testing.T) {
	fs := newFs(t,
		"/bin/ls",
		"/debug/usr/bin/cat",
		"/debug/a/dup",
		"/debug/b/dup",
		"/modules/kernel/fs/ext4.ko",
		"/modules/kernel/drivers/snd-hda-intel.ko",
		"/boot/vmlinux",
	)
	l, err := locate.New(locate.WithFs(fs), locate.WithPaths("/debug", "/modules", "/boot"))
	require.NoError(t, err)
	require.Equal(t, 6, l.Len())

	tests := []struct {
		name  string
		image string
		want  string
		kind  fault.Kind
		err   error
	}{
		{name: "readable", image: "/bin/ls", want: "/bin/ls"},
		{name: "alternate by basename", image: "/usr/bin/cat", want: "/debug/usr/bin/cat"},
		{name: "kernel", image: "vmlinux", want: "/boot/vmlinux"},
		{name: "module", image: "ext4", want: "/modules/kernel/fs/ext4.ko"},
		{name: "module with dashes", image: "snd_hda_intel", want: "/modules/kernel/drivers/snd-hda-intel.ko"},
		{name: "ambiguous", image: "/opt/dup", kind: fault.Usage, err: locate.ErrAmbiguous},
		{name: "missing", image: "/opt/none", kind: fault.Advisory, err: locate.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Resolve(tt.image, "samples")
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				require.Equal(t, tt.kind, fault.KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestResolveWithoutPaths(t *testing.T) {
	l, err := locate.New(locate.WithFs(newFs(t, "/bin/ls")))
	require.NoError(t, err)

	got, err := l.Resolve("/bin/ls", "")
	require.NoError(t, err)
	require.Equal(t, "/bin/ls", got)

	_, err = l.Resolve("/bin/cat", "")
	require.True(t, fault.Is(err, fault.Advisory))
}
