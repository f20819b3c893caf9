package aggregate

import (
	"path"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// DemangleMode selects how symbol names are rendered.
type DemangleMode string

const (
	DemangleNone       DemangleMode = "none"
	DemangleSimplified DemangleMode = "simplified"
	DemangleFull       DemangleMode = "full"
)

func (m DemangleMode) options() []demangle.Option {
	switch m {
	case DemangleSimplified:
		return []demangle.Option{demangle.NoParams, demangle.NoEnclosingParams, demangle.NoTemplateParams}
	case DemangleFull:
		return []demangle.Option{demangle.NoClones}
	default:
		return nil
	}
}

// NoSymbol is displayed in place of the names of artificial symbols.
const NoSymbol = "(no symbol)"

type storedName struct {
	name      string
	demangled map[DemangleMode]string
	basename  string
}

// Names interns the image, source file and symbol names of one report
// and caches their rendered forms. It is not safe for concurrent use; give
// every concurrent report its own.
type Names struct {
	names map[string]*storedName
}

func NewNames() *Names {
	return &Names{names: make(map[string]*storedName)}
}

// Intern returns the canonical copy of name.
func (n *Names) Intern(name string) string {
	return n.get(name).name
}

// Len returns the number of distinct names seen.
func (n *Names) Len() int { return len(n.names) }

func (n *Names) get(name string) *storedName {
	s, ok := n.names[name]
	if !ok {
		s = &storedName{name: name}
		n.names[name] = s
	}

	return s
}

// Demangle renders a symbol name according to mode.
func (n *Names) Demangle(name string, mode DemangleMode) string {
	if strings.HasPrefix(name, "?") {
		return NoSymbol
	}
	if mode == DemangleNone || mode == "" {
		return name
	}

	s := n.get(name)
	if d, ok := s.demangled[mode]; ok {
		return d
	}
	if s.demangled == nil {
		s.demangled = make(map[DemangleMode]string)
	}
	d := demangle.Filter(name, mode.options()...)
	s.demangled[mode] = d

	return d
}

// Basename returns the last element of a path name.
func (n *Names) Basename(name string) string {
	s := n.get(name)
	if s.basename == "" {
		s.basename = path.Base(name)
	}

	return s.basename
}
