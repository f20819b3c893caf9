package partition

import (
	"github.com/pkg/errors"
)

var (
	ErrUnmergeable = errors.New("sample files with different events or counts cannot be merged")
)
