package locate

import (
	"github.com/pkg/errors"
)

var (
	ErrNotFound     = errors.New("image file not found")
	ErrAmbiguous    = errors.New("image name matches more than one file")
	ErrAccessDenied = errors.New("no read access to image file")
)
