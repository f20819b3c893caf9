package session

import "github.com/pkg/errors"

var (
	ErrNoSamples = errors.New("no sample files found")
	ErrNoImages  = errors.New("no image could be read for the selected sample files")
)
