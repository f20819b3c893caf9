package samplefile

import (
	"github.com/pkg/errors"
)

var (
	ErrBadMagic        = errors.New("not a sample file")
	ErrVersionMismatch = errors.New("sample file version mismatch")
	ErrHeaderMismatch  = errors.New("sample file headers are different")
	ErrMtimeUnknown    = errors.New("cannot check the binary was not modified since profiling")
	ErrMtimeMismatch   = errors.New("binary was modified since the sample file was created")
)
