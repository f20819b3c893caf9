package store

import (
	"github.com/pkg/errors"
)

var (
	ErrEmptyFile     = errors.New("sample file is empty")
	ErrShortFile     = errors.New("file is shorter than its header")
	ErrSizeMismatch  = errors.New("node count computed from file size does not match descriptor")
	ErrExhausted     = errors.New("node index space exhausted")
	ErrBadSize       = errors.New("descriptor size is out of range")
	ErrBadChain      = errors.New("bucket chain references an unallocated node")
	ErrReadOnly      = errors.New("store is opened read-only")
	ErrZeroKey       = errors.New("key zero is reserved")
	ErrClosed        = errors.New("store is closed")
	ErrNodeUnreached = errors.New("allocated node is not reachable from any bucket")
)
