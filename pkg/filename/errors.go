package filename

import (
	"github.com/pkg/errors"
)

var (
	ErrNoMarker      = errors.New("no {root} or {kern} marker")
	ErrMarkerCount   = errors.New("more than two image markers")
	ErrEmptyImage    = errors.New("empty image path")
	ErrFieldCount    = errors.New("sample spec needs six dot-separated fields")
	ErrBadField      = errors.New("invalid numeric field")
	ErrRelativeImage = errors.New("image path must be absolute or a kernel image name")
)
