// Package locate finds the binary image files that sample tables refer to.
package locate

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/maxgio92/xprof/pkg/fault"
)

// Locator resolves image names recorded at sampling time to readable files.
type Locator struct {
	*Options
	// alternates maps a basename to the directories holding a file of
	// that name below the search roots.
	alternates map[string][]string
}

// New indexes the files below the search roots.
func New(opts ...Option) (*Locator, error) {
	const op = "locate.New"

	l := &Locator{
		Options:    &Options{logger: log.Nop()},
		alternates: make(map[string][]string),
	}
	for _, f := range opts {
		f(l.Options)
	}
	if l.fs == nil {
		l.fs = afero.NewOsFs()
	}

	for _, root := range l.roots {
		err := afero.Walk(l.fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				// Unreadable subtrees are skipped.
				l.logger.Debug().Err(err).Str("path", path).Msg("skipping")
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				return nil
			}
			base := filepath.Base(path)
			l.alternates[base] = append(l.alternates[base], filepath.Dir(path))
			return nil
		})
		if err != nil {
			return nil, fault.ResourceErr(op, err)
		}
	}
	for _, dirs := range l.alternates {
		sort.Strings(dirs)
	}

	return l, nil
}

// Resolve returns the file to read symbols of image from. The image is
// used as is when readable. Otherwise a file of the same basename below the
// search roots is used when it is unique, and kernel modules are matched
// by their module name. sampleFile is used in diagnostics.
func (l *Locator) Resolve(image, sampleFile string) (string, error) {
	const op = "locate.Resolve"

	if filepath.IsAbs(image) {
		f, err := l.fs.Open(image)
		if err == nil {
			f.Close()
			return image, nil
		}
		if os.IsPermission(err) {
			return "", fault.AdvisoryErr(op, errors.Wrap(ErrAccessDenied, image))
		}
	}

	base := filepath.Base(image)
	switch dirs := l.alternates[base]; len(dirs) {
	case 0:
	case 1:
		return filepath.Join(dirs[0], base), nil
	default:
		return "", fault.UsageErr(op, errors.Wrapf(ErrAmbiguous, "%s (%s)", sampleFile, base))
	}

	candidates := l.modules(base + ".ko")
	if len(candidates) == 0 {
		return "", fault.AdvisoryErr(op, errors.Wrapf(ErrNotFound, "%s for %s", image, sampleFile))
	}
	if len(candidates) > 1 {
		l.logger.Warn().Str("image", image).Str("using", candidates[0]).
			Msg("image name matches more than one module")
	}

	return candidates[0], nil
}

// modules returns the indexed files whose name matches the module file
// name, where an underscore also matches a comma or a dash.
func (l *Locator) modules(name string) []string {
	var out []string
	for base, dirs := range l.alternates {
		if !matchModuleName(base, name) {
			continue
		}
		for _, d := range dirs {
			out = append(out, filepath.Join(d, base))
		}
	}
	sort.Strings(out)

	return out
}

func matchModuleName(candidate, name string) bool {
	if len(candidate) != len(name) {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] == candidate[i] {
			continue
		}
		if name[i] == '_' && (candidate[i] == ',' || candidate[i] == '-') {
			continue
		}
		return false
	}

	return true
}

// Len returns the number of indexed files.
func (l *Locator) Len() int {
	n := 0
	for _, dirs := range l.alternates {
		n += len(dirs)
	}
	return n
}
