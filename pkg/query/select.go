package query

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/filename"
)

// List returns the sample tables under samplesDir selected by q, sorted by
// path. Session names are globs relative to samplesDir unless absolute.
// Files whose names carry no image marker are ignored. Marked files that
// cannot be decoded are reported together.
func List(fs afero.Fs, samplesDir string, q *Query) ([]string, error) {
	const op = "query.List"

	if err := q.compile(); err != nil {
		return nil, err
	}

	if spec, ok := q.SampleFile(); ok {
		return listSampleFile(fs, spec, q)
	}

	var (
		out  []string
		merr error
		seen = make(map[string]struct{})
	)
	for _, dir := range q.sessionDirs(fs, samplesDir) {
		exists, err := afero.DirExists(fs, dir)
		if err != nil {
			return nil, fault.ResourceErr(op, err)
		}
		if !exists {
			continue
		}
		err = afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if !strings.Contains(path, filename.RootMarker) && !strings.Contains(path, filename.KernMarker) {
				return nil
			}
			if _, ok := seen[path]; ok {
				return nil
			}
			seen[path] = struct{}{}

			ok, err := q.Match(path)
			if err != nil {
				merr = multierror.Append(merr, err)
				return nil
			}
			if ok {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fault.ResourceErr(op, err)
		}
	}
	if merr != nil {
		return nil, fault.Corrupt(op, merr)
	}
	sort.Strings(out)

	return out, nil
}

// sessionDirs expands session names into directories, dropping the
// excluded sessions.
func (q *Query) sessionDirs(fs afero.Fs, samplesDir string) []string {
	abs := func(s string) string {
		if filepath.IsAbs(s) {
			return s
		}
		return filepath.Join(samplesDir, s)
	}
	excluded := make(map[string]struct{}, len(q.sessionExclude))
	for _, s := range q.sessionExclude {
		excluded[abs(s)] = struct{}{}
	}

	var dirs []string
	for _, s := range q.Sessions() {
		candidates := []string{abs(s)}
		if strings.ContainsAny(s, "*?[") {
			matches, err := afero.Glob(fs, abs(s))
			if err == nil {
				candidates = matches
			}
		}
		for _, dir := range candidates {
			if _, ok := excluded[dir]; !ok {
				dirs = append(dirs, dir)
			}
		}
	}

	return dirs
}

// listSampleFile resolves a sample-file: clause. An existing path is
// returned as is, otherwise the spec is encoded under its own base
// directory with binary: as the sampled image.
func listSampleFile(fs afero.Fs, spec filename.Spec, q *Query) ([]string, error) {
	const op = "query.List"

	path := q.sampleFilePath
	if q.Binary() != "" {
		if spec.LibImage != "" {
			spec.LibImage = q.Binary()
		} else {
			spec.Image = q.Binary()
		}
		var err error
		if path, err = filename.Encode(spec); err != nil {
			return nil, err
		}
	}
	ok, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fault.ResourceErr(op, err)
	}
	if !ok {
		return nil, nil
	}

	return []string{path}, nil
}
