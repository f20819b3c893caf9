package aggregate

import (
	"github.com/pkg/errors"
)

var (
	ErrFrozen     = errors.New("aggregation cannot change after it was queried")
	ErrNilProfile = errors.New("profile is nil")
	ErrNilTable   = errors.New("symbol table is nil")
)
