// Package fault classifies the errors returned by the storage, loading and
// reporting layers, so that a caller can tell bad data from bad input.
package fault

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the class of a failure.
type Kind int

const (
	// Unknown is returned by KindOf for errors that were never classified.
	Unknown Kind = iota
	// Corruption covers malformed sample filenames, store size/descriptor
	// mismatches and incompatible headers between merged profiles.
	Corruption
	// Resource covers open, grow and mmap failures.
	Resource
	// Usage covers invalid caller input: conflicting query tags, ambiguous
	// images, unmergeable sample sets.
	Usage
	// Advisory conditions are reported but never abort processing.
	Advisory
)

func (k Kind) String() string {
	switch k {
	case Corruption:
		return "corruption"
	case Resource:
		return "resource"
	case Usage:
		return "usage"
	case Advisory:
		return "advisory"
	default:
		return "unknown"
	}
}

// Error is a classified error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
}

func (e *Error) Unwrap() error { return e.Err }

// Cause makes Error play along with errors.Cause.
func (e *Error) Cause() error { return e.Err }

func newError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Corrupt(op string, err error) error { return newError(Corruption, op, err) }

func Corruptf(op string, format string, args ...interface{}) error {
	return newError(Corruption, op, errors.Errorf(format, args...))
}

func ResourceErr(op string, err error) error { return newError(Resource, op, err) }

func Usagef(op string, format string, args ...interface{}) error {
	return newError(Usage, op, errors.Errorf(format, args...))
}

func UsageErr(op string, err error) error { return newError(Usage, op, err) }

func Advisoryf(op string, format string, args ...interface{}) error {
	return newError(Advisory, op, errors.Errorf(format, args...))
}

func AdvisoryErr(op string, err error) error { return newError(Advisory, op, err) }

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
