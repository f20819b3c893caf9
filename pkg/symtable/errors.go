package symtable

import (
	"github.com/pkg/errors"
)

var (
	ErrSymNotFound       = errors.New("symbol not found")
	ErrSymTableEmpty     = errors.New("symtable is empty")
	ErrNoFunctionSymbols = errors.New("no functions found")
	ErrNoTextSection     = errors.New("no .text section")
)
