package record

import "github.com/pkg/errors"

var (
	ErrNoConfig = errors.New("no recording configuration specified")
)
