package query

import (
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

const allValue = "all"

// valueList matches a scalar dimension: any value unless set to a comma
// separated list of values. The value "all" in the list matches anything.
type valueList[T comparable] struct {
	set   bool
	all   bool
	items []T
}

func (l *valueList[T]) parse(str string, conv func(string) (T, error)) error {
	l.set = true
	l.all = false
	l.items = l.items[:0]
	for _, tok := range splitTokens(str) {
		if tok == allValue {
			l.all = true
			l.items = nil
			return nil
		}
		v, err := conv(tok)
		if err != nil {
			return errors.Wrapf(ErrBadValue, "%q", tok)
		}
		l.items = append(l.items, v)
	}

	return nil
}

func (l *valueList[T]) match(v T) bool {
	if !l.set || l.all {
		return true
	}
	for _, item := range l.items {
		if item == v {
			return true
		}
	}

	return false
}

// matchDim matches a tgid, tid or cpu dimension, where a negative value
// stands for a table that was not separated along it.
func (l *valueList[T]) matchDim(v T, unseparated bool) bool {
	return unseparated || l.match(v)
}

func strictUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func strictID(s string) (int, error) {
	v, err := strconv.ParseUint(s, 10, 31)
	return int(v), err
}

func identity(s string) (string, error) { return s, nil }

// splitTokens splits a comma separated list, dropping empty items.
func splitTokens(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		if tok != "" {
			out = append(out, tok)
		}
	}

	return out
}

// globFilter matches a path against include patterns minus exclude ones.
// Wildcards match across path separators.
type globFilter struct {
	include []glob.Glob
	exclude []glob.Glob
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(ErrBadPattern, "%q: %v", p, err)
		}
		out = append(out, g)
	}

	return out, nil
}

func anyMatch(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}

	return false
}

func (f globFilter) match(s string) bool {
	if anyMatch(f.exclude, s) {
		return false
	}
	return len(f.include) == 0 || anyMatch(f.include, s)
}
