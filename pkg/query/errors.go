package query

import (
	"github.com/pkg/errors"
)

var (
	ErrExclusiveTag = errors.New("cannot specify sample-file: or binary: tag with another tag")
	ErrUnknownTag   = errors.New("not a valid tag")
	ErrBadValue     = errors.New("invalid value")
	ErrBadPattern   = errors.New("invalid glob pattern")
)
