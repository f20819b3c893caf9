package store

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/maxgio92/xprof/pkg/fault"
)

func (s *Store) hash(key Key) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)

	return uint32(xxhash.Sum64(b[:])) & s.hashMask
}

// Insert adds value to the counter of key, creating it when absent.
// Counters saturate at their maximum instead of wrapping.
func (s *Store) Insert(key Key, value Value) error {
	const op = "store.Insert"

	if s.data == nil {
		return fault.UsageErr(op, ErrClosed)
	}
	if s.mode != ReadWrite {
		return fault.UsageErr(op, ErrReadOnly)
	}
	if key == 0 {
		return fault.UsageErr(op, ErrZeroKey)
	}

	for i := s.bucket(s.hash(key)); i != 0; i = s.nodeNext(i) {
		if i >= s.currentSize() {
			return s.setError(fault.Corrupt(op, errors.Wrapf(ErrBadChain, "%s (index %d, size %d)",
				s.path, i, s.currentSize())))
		}
		if s.nodeKey(i) == key {
			s.setNodeValue(i, s.saturatingAdd(s.nodeValue(i), value))
			return nil
		}
	}

	n, err := s.newNode()
	if err != nil {
		return err
	}

	// value first: a concurrent reader treats a non-zero key as published.
	s.setNodeValue(n, value)
	s.setNodeKey(n, key)

	// the mask may have changed if newNode grew the table.
	b := s.hash(key)
	s.setNodeNext(n, s.bucket(b))
	s.setBucket(b, n)

	return nil
}

func (s *Store) saturatingAdd(a, b Value) Value {
	if a > maxValue-b {
		s.saturated++
		return maxValue
	}

	return a + b
}

// newNode reserves the next free node, growing the table when full.
func (s *Store) newNode() (NodeIndex, error) {
	if s.currentSize() >= s.Capacity() {
		if err := s.grow(); err != nil {
			return 0, err
		}
	}
	n := s.currentSize()
	s.setCurrentSize(n + 1)

	return n, nil
}

// grow doubles the capacity and rebuilds every bucket chain.
func (s *Store) grow() error {
	const op = "store.grow"

	oldCapacity := s.Capacity()
	newCapacity := oldCapacity * 2
	if newCapacity < oldCapacity {
		return s.setError(fault.ResourceErr(op, errors.Wrapf(ErrExhausted, "%s", s.path)))
	}
	oldBuckets := s.offsetNode + int(oldCapacity)*nodeSize
	newSize := tablesSize(s.offsetNode, newCapacity)

	if err := s.file.Truncate(int64(newSize)); err != nil {
		return s.setError(fault.ResourceErr(op, err))
	}
	if err := s.unmap(); err != nil {
		return s.setError(fault.ResourceErr(op, err))
	}
	data, err := unix.Mmap(int(s.file.Fd()), 0, newSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return s.setError(fault.ResourceErr(op, err))
	}
	s.data = data
	s.mapped = newCapacity

	s.setCapacity(newCapacity)
	s.hashMask = newCapacity*BucketFactor - 1

	// the old bucket array now lies inside the node array.
	clear(s.data[oldBuckets:])

	for i := NodeIndex(1); i < s.currentSize(); i++ {
		b := s.hash(s.nodeKey(i))
		s.setNodeNext(i, s.bucket(b))
		s.setBucket(b, i)
	}

	return nil
}

// Lookup returns the counter of key. A reader that cannot follow the
// writer's latest growth reports the key as missing.
func (s *Store) Lookup(key Key) (Value, bool) {
	if s.data == nil || key == 0 {
		return 0, false
	}
	if !s.refresh() {
		return 0, false
	}
	size := s.visibleSize()
	// a chain never has more links than allocated nodes.
	steps := size
	for i := s.bucket(s.hash(key)); i != 0 && i < size && steps > 0; i, steps = s.nodeNext(i), steps-1 {
		if s.nodeKey(i) == key {
			return s.nodeValue(i), true
		}
	}

	return 0, false
}
