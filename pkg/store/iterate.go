package store

import (
	"github.com/pkg/errors"

	"github.com/maxgio92/xprof/pkg/fault"
)

// Iterate calls fn for every published (key, value) pair, in node order,
// until fn returns false. A reader first follows any growth of the file;
// nodes past its mapping are not visited.
func (s *Store) Iterate(fn func(key Key, value Value) bool) {
	if s.data == nil {
		return
	}
	s.refresh()
	size := s.visibleSize()
	for i := NodeIndex(1); i < size; i++ {
		k := s.nodeKey(i)
		if k == 0 {
			continue
		}
		if !fn(k, s.nodeValue(i)) {
			return
		}
	}
}

// Pairs returns a copy of all published pairs.
func (s *Store) Pairs() map[Key]Value {
	m := make(map[Key]Value, s.Len())
	s.Iterate(func(k Key, v Value) bool {
		m[k] += v
		return true
	})

	return m
}

// Check walks every chain and verifies each allocated node is reachable
// exactly once through a valid index.
func (s *Store) Check() error {
	const op = "store.Check"

	if s.data == nil {
		return fault.UsageErr(op, ErrClosed)
	}
	if !s.refresh() {
		return fault.Corrupt(op, errors.Wrapf(ErrSizeMismatch, "%s (mapped: %d, descriptor: %d)",
			s.path, s.mapped, s.descrCapacity()))
	}
	size := s.currentSize()
	if size == 0 || size > s.mapped {
		return fault.Corrupt(op, errors.Wrapf(ErrBadSize, "%s (size: %d, capacity: %d)", s.path, size, s.mapped))
	}

	seen := make([]bool, size)
	nbuckets := s.mapped * BucketFactor
	for b := uint32(0); b < nbuckets; b++ {
		for i := s.bucket(b); i != 0; i = s.nodeNext(i) {
			if i >= size {
				return fault.Corrupt(op, errors.Wrapf(ErrBadChain, "%s (bucket %d, index %d)", s.path, b, i))
			}
			if seen[i] {
				return fault.Corruptf(op, "%s: node %d is chained twice", s.path, i)
			}
			seen[i] = true
		}
	}
	for i := NodeIndex(1); i < size; i++ {
		if !seen[i] {
			return fault.Corrupt(op, errors.Wrapf(ErrNodeUnreached, "%s (index %d)", s.path, i))
		}
	}

	return nil
}
