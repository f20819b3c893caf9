// Package store implements the on-disk sample table: a memory-mapped hash
// table mapping a 64-bit key to a saturating 32-bit counter, grown in place
// by doubling.
//
// File layout:
//
//	[caller header][descriptor][node array: capacity][bucket array: capacity*BucketFactor]
//
// Nodes and buckets are addressed by index, never by pointer, since growing
// the file remaps it at a possibly different address. Node 0 is a sentinel.
//
// A single writer may append while other processes read the same file
// read-only. No locks are taken: a new node gets its value before its key,
// and readers skip nodes whose key is still zero.
package store

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/maxgio92/xprof/pkg/fault"
)

type (
	// Key is either a sampled address or a packed call-graph edge.
	Key = uint64
	// Value is an accumulated hit count.
	Value = uint32
	// NodeIndex addresses a node in the node array.
	NodeIndex = uint32
)

const (
	// BucketFactor is the number of buckets per node. Must be a power of two.
	BucketFactor = 1
	// DefaultCapacity is the node capacity of a freshly created store.
	DefaultCapacity NodeIndex = 128

	// descriptor: capacity u32, current size u32, 6 reserved u32.
	descrSize = 32
	// node: key u64, value u32, next u32.
	nodeSize  = 16
	indexSize = 4

	maxValue = ^Value(0)
)

// Mode selects how a store file is opened.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Store is one opened sample table.
type Store struct {
	path       string
	mode       Mode
	file       *os.File
	data       []byte
	headerSize int
	offsetNode int
	hashMask   uint32

	// node capacity covered by data. A reader's descriptor may run ahead of
	// it when the writer grows the file.
	mapped NodeIndex

	// first pending error, see setError.
	err error
	// number of inserts that hit the counter ceiling.
	saturated uint64
}

var le = binary.LittleEndian

// tablesSize returns the file size needed by capacity nodes.
func tablesSize(offsetNode int, capacity NodeIndex) int {
	return offsetNode + int(capacity)*(nodeSize+indexSize*BucketFactor)
}

// Open maps the store at path. headerSize bytes at the start of the file
// belong to the caller and are never interpreted here.
//
// Opening an empty file read-only fails; opening it read-write initializes
// an empty table of DefaultCapacity nodes.
func Open(path string, mode Mode, headerSize int) (*Store, error) {
	const op = "store.Open"

	s := &Store{
		path:       path,
		mode:       mode,
		headerSize: headerSize,
		offsetNode: headerSize + descrSize,
	}

	flags := os.O_RDONLY
	prot := unix.PROT_READ
	if mode == ReadWrite {
		flags = os.O_CREATE | os.O_RDWR
		prot |= unix.PROT_WRITE
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fault.ResourceErr(op, err)
	}
	s.file = f

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fault.ResourceErr(op, err)
	}

	var capacity NodeIndex
	fresh := info.Size() == 0
	switch {
	case fresh && mode == ReadOnly:
		f.Close()
		return nil, fault.Corrupt(op, errors.Wrapf(ErrEmptyFile, "%s", path))
	case fresh:
		capacity = DefaultCapacity
		if err := f.Truncate(int64(tablesSize(s.offsetNode, capacity))); err != nil {
			f.Close()
			return nil, fault.ResourceErr(op, err)
		}
	default:
		if info.Size() < int64(s.offsetNode) {
			f.Close()
			return nil, fault.Corrupt(op, errors.Wrapf(ErrShortFile, "%s", path))
		}
		capacity = NodeIndex((info.Size() - int64(s.offsetNode)) / (nodeSize + indexSize*BucketFactor))
	}

	s.data, err = unix.Mmap(int(f.Fd()), 0, tablesSize(s.offsetNode, capacity), prot, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fault.ResourceErr(op, err)
	}

	s.mapped = capacity

	if fresh {
		s.setCapacity(capacity)
		// node zero is never used.
		s.setCurrentSize(1)
	} else if got := s.descrCapacity(); got != capacity {
		s.unmap()
		f.Close()
		return nil, fault.Corrupt(op, errors.Wrapf(ErrSizeMismatch, "%s (file: %d, descriptor: %d)",
			path, capacity, got))
	} else if size := s.currentSize(); size == 0 || size > capacity {
		s.unmap()
		f.Close()
		return nil, fault.Corrupt(op, errors.Wrapf(ErrBadSize, "%s (size: %d, capacity: %d)",
			path, size, capacity))
	}
	s.hashMask = capacity*BucketFactor - 1

	return s, nil
}

// Close unmaps the store and releases its file. Any pending error is
// discarded.
func (s *Store) Close() error {
	s.ClearError()

	var err error
	if s.data != nil {
		err = s.unmap()
	}
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file = nil
	}
	if err != nil {
		return fault.ResourceErr("store.Close", err)
	}

	return nil
}

// Sync schedules an asynchronous flush of the mapping. It is advisory:
// a later Open never depends on it.
func (s *Store) Sync() error {
	if s.data == nil {
		return nil
	}
	if err := unix.Msync(s.data, unix.MS_ASYNC); err != nil {
		return fault.ResourceErr("store.Sync", err)
	}

	return nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Header returns the caller header region. The slice aliases the mapping
// and must not be retained across an Insert, which may remap the file.
func (s *Store) Header() []byte {
	return s.data[:s.headerSize]
}

// Capacity returns the number of nodes the mapped node array can hold.
func (s *Store) Capacity() NodeIndex {
	return s.mapped
}

// Len returns the number of allocated nodes visible through the mapping,
// the sentinel excluded.
func (s *Store) Len() int {
	if s.data == nil {
		return 0
	}
	s.refresh()

	return int(s.visibleSize()) - 1
}

// Saturated returns how many inserts clamped a counter to its maximum.
func (s *Store) Saturated() uint64 { return s.saturated }

// Err returns the pending error, if any.
func (s *Store) Err() error { return s.err }

// ClearError drops the pending error.
func (s *Store) ClearError() { s.err = nil }

// setError records err as the pending error. Recording a second error
// before the first one was cleared is a programming error.
func (s *Store) setError(err error) error {
	if s.err != nil {
		panic(fmt.Sprintf("store: error %q raised while error %q is pending", err, s.err))
	}
	s.err = err

	return err
}

func (s *Store) unmap() error {
	err := unix.Munmap(s.data)
	s.data = nil

	return err
}

// refresh remaps a read-only store whose writer grew the file since it was
// mapped. It reports whether the mapping matches the descriptor.
func (s *Store) refresh() bool {
	capacity := s.descrCapacity()
	if capacity == s.mapped {
		return true
	}
	if s.mode != ReadOnly || capacity < s.mapped {
		return false
	}

	info, err := s.file.Stat()
	if err != nil || info.Size() < int64(tablesSize(s.offsetNode, capacity)) {
		return false
	}
	data, err := unix.Mmap(int(s.file.Fd()), 0, tablesSize(s.offsetNode, capacity), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return false
	}
	unix.Munmap(s.data)
	s.data = data
	s.mapped = capacity
	s.hashMask = capacity*BucketFactor - 1

	return true
}

// visibleSize is the current size clamped to the mapped capacity.
func (s *Store) visibleSize() NodeIndex {
	return min(s.currentSize(), s.mapped)
}

func (s *Store) descrCapacity() NodeIndex {
	return le.Uint32(s.data[s.headerSize:])
}

func (s *Store) currentSize() NodeIndex {
	return le.Uint32(s.data[s.headerSize+4:])
}

func (s *Store) setCapacity(n NodeIndex) {
	le.PutUint32(s.data[s.headerSize:], n)
}

func (s *Store) setCurrentSize(n NodeIndex) {
	le.PutUint32(s.data[s.headerSize+4:], n)
}

func (s *Store) nodeOffset(i NodeIndex) int {
	return s.offsetNode + int(i)*nodeSize
}

func (s *Store) nodeKey(i NodeIndex) Key {
	return le.Uint64(s.data[s.nodeOffset(i):])
}

func (s *Store) nodeValue(i NodeIndex) Value {
	return le.Uint32(s.data[s.nodeOffset(i)+8:])
}

func (s *Store) nodeNext(i NodeIndex) NodeIndex {
	return le.Uint32(s.data[s.nodeOffset(i)+12:])
}

func (s *Store) setNodeKey(i NodeIndex, k Key) {
	le.PutUint64(s.data[s.nodeOffset(i):], k)
}

func (s *Store) setNodeValue(i NodeIndex, v Value) {
	le.PutUint32(s.data[s.nodeOffset(i)+8:], v)
}

func (s *Store) setNodeNext(i NodeIndex, n NodeIndex) {
	le.PutUint32(s.data[s.nodeOffset(i)+12:], n)
}

func (s *Store) bucketOffset(b uint32) int {
	return s.offsetNode + int(s.mapped)*nodeSize + int(b)*indexSize
}

func (s *Store) bucket(b uint32) NodeIndex {
	return le.Uint32(s.data[s.bucketOffset(b):])
}

func (s *Store) setBucket(b uint32, i NodeIndex) {
	le.PutUint32(s.data[s.bucketOffset(b):], i)
}
