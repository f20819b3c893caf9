// Package query selects sample tables with tag:value clauses.
package query

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/filename"
)

// CurrentSession is the session used when none is given.
const CurrentSession = "current"

const (
	TagSampleFile      = "sample-file"
	TagBinary          = "binary"
	TagSession         = "session"
	TagSessionExclude  = "session-exclude"
	TagImage           = "image"
	TagImageExclude    = "image-exclude"
	TagLibImage        = "lib-image"
	TagLibImageExclude = "lib-image-exclude"
	TagEvent           = "event"
	TagCount           = "count"
	TagUnitMask        = "unit-mask"
	TagTID             = "tid"
	TagTGID            = "tgid"
	TagCPU             = "cpu"
)

// Query is a predicate over sample filenames.
type Query struct {
	sampleFile     filename.Spec
	sampleFilePath string
	sampleFileSet  bool
	binary         string

	session        []string
	sessionExclude []string

	image           []string
	imageExclude    []string
	libImage        []string
	libImageExclude []string
	imageOrLibImage []string

	event    valueList[string]
	count    valueList[uint32]
	unitMask valueList[uint32]
	tid      valueList[int]
	tgid     valueList[int]
	cpu      valueList[int]

	// set when any tag but sample-file and binary was given.
	set bool

	filters struct {
		image, libImage  globFilter
		implicitImage    globFilter
		implicitLibImage globFilter
		compiled         bool
	}
}

type handler func(q *Query, value string) error

var handlers = map[string]handler{
	TagSampleFile: func(q *Query, v string) error {
		spec, err := filename.Decode(v)
		if err != nil {
			return err
		}
		q.sampleFileSet = true
		q.sampleFile = spec
		q.sampleFilePath = v
		return nil
	},
	TagBinary: func(q *Query, v string) error {
		q.binary = v
		return nil
	},
	TagSession: func(q *Query, v string) error {
		q.session = append(q.session, splitTokens(v)...)
		return nil
	},
	TagSessionExclude: func(q *Query, v string) error {
		q.sessionExclude = append(q.sessionExclude, splitTokens(v)...)
		return nil
	},
	TagImage: func(q *Query, v string) error {
		q.image = append(q.image, splitTokens(v)...)
		return nil
	},
	TagImageExclude: func(q *Query, v string) error {
		q.imageExclude = append(q.imageExclude, splitTokens(v)...)
		return nil
	},
	TagLibImage: func(q *Query, v string) error {
		q.libImage = append(q.libImage, splitTokens(v)...)
		return nil
	},
	TagLibImageExclude: func(q *Query, v string) error {
		q.libImageExclude = append(q.libImageExclude, splitTokens(v)...)
		return nil
	},
	TagEvent:    func(q *Query, v string) error { return q.event.parse(v, identity) },
	TagCount:    func(q *Query, v string) error { return q.count.parse(v, strictUint32) },
	TagUnitMask: func(q *Query, v string) error { return q.unitMask.parse(v, strictUint32) },
	TagTID:      func(q *Query, v string) error { return q.tid.parse(v, strictID) },
	TagTGID:     func(q *Query, v string) error { return q.tgid.parse(v, strictID) },
	TagCPU:      func(q *Query, v string) error { return q.cpu.parse(v, strictID) },
}

func lookup(tagValue string) (string, string, handler) {
	tag, value, ok := strings.Cut(tagValue, ":")
	if !ok {
		return "", "", nil
	}

	return tag, value, handlers[tag]
}

// IsValidTag reports whether tagValue is a tag:value clause.
func IsValidTag(tagValue string) bool {
	_, _, h := lookup(tagValue)
	return h != nil
}

func New() *Query {
	return &Query{}
}

// Parse builds a validated query from command line tokens. Tokens that are
// not tag:value clauses are image or library image patterns.
func Parse(tokens []string) (*Query, error) {
	q := New()
	for _, tok := range tokens {
		if IsValidTag(tok) {
			if err := q.Set(tok); err != nil {
				return nil, err
			}
			continue
		}
		q.SetImageOrLibImage(tok)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	return q, nil
}

// Set applies one tag:value clause.
func (q *Query) Set(tagValue string) error {
	const op = "query.Set"

	tag, value, h := lookup(tagValue)
	if h == nil {
		return fault.UsageErr(op, errors.Wrapf(ErrUnknownTag, "%q", tagValue))
	}
	if err := h(q, value); err != nil {
		if fault.KindOf(err) == fault.Usage {
			return err
		}
		return fault.UsageErr(op, errors.Wrap(err, tag))
	}
	if tag != TagSampleFile && tag != TagBinary {
		q.set = true
	}
	q.filters.compiled = false

	return nil
}

// SetImageOrLibImage adds a pattern matching either the image or the
// library image of a table.
func (q *Query) SetImageOrLibImage(pattern string) {
	q.set = true
	q.imageOrLibImage = append(q.imageOrLibImage, pattern)
	q.filters.compiled = false
}

// Validate checks the constraints between clauses and fills in defaults.
func (q *Query) Validate() error {
	if (q.sampleFileSet || q.binary != "") && q.set {
		return fault.UsageErr("query.Validate", ErrExclusiveTag)
	}
	if len(q.session) == 0 {
		q.session = []string{CurrentSession}
	}

	return q.compile()
}

func (q *Query) compile() error {
	if q.filters.compiled {
		return nil
	}

	build := func(include, exclude []string) (globFilter, error) {
		in, err := compileGlobs(include)
		if err != nil {
			return globFilter{}, err
		}
		ex, err := compileGlobs(exclude)
		if err != nil {
			return globFilter{}, err
		}
		return globFilter{include: in, exclude: ex}, nil
	}

	var err error
	if q.filters.image, err = build(q.image, q.imageExclude); err != nil {
		return fault.UsageErr("query.Validate", err)
	}
	if q.filters.libImage, err = build(q.libImage, q.libImageExclude); err != nil {
		return fault.UsageErr("query.Validate", err)
	}
	if q.filters.implicitImage, err = build(q.imageOrLibImage, q.imageExclude); err != nil {
		return fault.UsageErr("query.Validate", err)
	}
	if q.filters.implicitLibImage, err = build(q.imageOrLibImage, q.libImageExclude); err != nil {
		return fault.UsageErr("query.Validate", err)
	}
	q.filters.compiled = true

	return nil
}

// Sessions returns the sessions to search, minus the excluded ones.
func (q *Query) Sessions() []string {
	sessions := q.session
	if len(sessions) == 0 {
		sessions = []string{CurrentSession}
	}

	var out []string
	for _, s := range sessions {
		excluded := false
		for _, x := range q.sessionExclude {
			if x == s {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, s)
		}
	}

	return out
}

// SampleFile returns the spec given with sample-file:, if any.
func (q *Query) SampleFile() (filename.Spec, bool) {
	return q.sampleFile, q.sampleFileSet
}

// Binary returns the value of binary:.
func (q *Query) Binary() string { return q.binary }

// Match decodes path and reports whether the query selects it.
func (q *Query) Match(path string) (bool, error) {
	spec, err := filename.Decode(path)
	if err != nil {
		return false, err
	}
	if err := q.compile(); err != nil {
		return false, err
	}

	return q.MatchSpec(spec), nil
}

// MatchSpec reports whether the query selects the table described by spec.
func (q *Query) MatchSpec(spec filename.Spec) bool {
	if q.sampleFileSet {
		return q.matchSampleFile(spec)
	}

	matchedByImageOrLib := false
	if len(q.imageOrLibImage) > 0 {
		if q.filters.implicitImage.match(spec.Image) || q.filters.implicitLibImage.match(spec.LibImage) {
			matchedByImageOrLib = true
		}
	}

	if !matchedByImageOrLib {
		if len(q.image) > 0 {
			if !q.filters.image.match(spec.Image) {
				return false
			}
		} else if len(q.imageOrLibImage) > 0 {
			return false
		}

		if len(q.libImage) > 0 {
			if !q.filters.libImage.match(spec.LibImage) {
				return false
			}
		} else if len(q.image) == 0 && len(q.imageOrLibImage) > 0 {
			return false
		}

		// Exclusions given without inclusions.
		if len(q.image) == 0 && !q.filters.image.match(spec.Image) {
			return false
		}
		if len(q.libImage) == 0 && spec.LibImage != "" && !q.filters.libImage.match(spec.LibImage) {
			return false
		}
	}

	return q.event.match(spec.Event) &&
		q.count.match(spec.Count) &&
		q.unitMask.match(spec.UnitMask) &&
		q.cpu.matchDim(spec.CPU, spec.CPU == filename.All) &&
		q.tid.matchDim(spec.TID, spec.TID == filename.All) &&
		q.tgid.matchDim(spec.TGID, spec.TGID == filename.All)
}

// matchSampleFile compares spec with the sample-file: clause. A binary:
// clause names the image the sample file belongs to.
func (q *Query) matchSampleFile(spec filename.Spec) bool {
	want := q.sampleFile
	if q.binary != "" {
		if want.LibImage != "" {
			want.LibImage = q.binary
		} else {
			want.Image = q.binary
		}
	}

	return want.Image == spec.Image &&
		want.LibImage == spec.LibImage &&
		want.Event == spec.Event &&
		want.Count == spec.Count &&
		want.UnitMask == spec.UnitMask &&
		dimMatch(want.TGID, spec.TGID) &&
		dimMatch(want.TID, spec.TID) &&
		dimMatch(want.CPU, spec.CPU)
}

func dimMatch(a, b int) bool {
	return a == filename.All || b == filename.All || a == b
}
