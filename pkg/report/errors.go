package report

import (
	"github.com/pkg/errors"
)

var (
	ErrUnknownFormat = errors.New("unknown output format letter")
	ErrUnknownSort   = errors.New("unknown sort order")
)
