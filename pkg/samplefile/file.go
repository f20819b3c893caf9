package samplefile

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/store"
)

// File is a sample table along with its decoded header.
type File struct {
	*store.Store
	Header Header
}

// Create opens the sample table at path for writing, creating it and its
// parent directories when missing. A new table gets h as its header; an
// existing one keeps its own.
func Create(path string, h Header) (*File, error) {
	const op = "samplefile.Create"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fault.ResourceErr(op, err)
	}

	s, err := store.Open(path, store.ReadWrite, HeaderSize)
	if err != nil {
		return nil, err
	}

	f := &File{Store: s}
	if s.Len() == 0 && string(s.Header()[0:4]) != Magic {
		if h.Version == 0 {
			h.Version = Version
		}
		b, err := h.MarshalBinary()
		if err != nil {
			s.Close()
			return nil, err
		}
		copy(s.Header(), b)
		f.Header = h

		return f, nil
	}

	if err := f.decode(); err != nil {
		s.Close()
		return nil, err
	}

	return f, nil
}

// Open opens the sample table at path read-only and validates its header.
func Open(path string) (*File, error) {
	s, err := store.Open(path, store.ReadOnly, HeaderSize)
	if err != nil {
		return nil, err
	}

	f := &File{Store: s}
	if err := f.decode(); err != nil {
		s.Close()
		return nil, err
	}

	return f, nil
}

func (f *File) decode() error {
	if err := f.Header.UnmarshalBinary(f.Store.Header()); err != nil {
		return errors.Wrap(err, f.Path())
	}
	if f.Header.Version != Version {
		return fault.Corrupt("samplefile.Open", errors.Wrapf(ErrVersionMismatch, "%s (got %d, want %d)",
			f.Path(), f.Header.Version, Version))
	}

	return nil
}

// CheckMtime compares the recorded binary modification time with the one
// of binary. Mismatches are advisory.
func CheckMtime(h Header, binary string) error {
	const op = "samplefile.CheckMtime"

	if h.Mtime == 0 {
		return fault.AdvisoryErr(op, errors.Wrap(ErrMtimeUnknown, binary))
	}
	info, err := os.Stat(binary)
	if err != nil {
		return fault.AdvisoryErr(op, errors.Wrap(err, binary))
	}
	if info.ModTime().Unix() != h.Mtime {
		return fault.AdvisoryErr(op, errors.Wrap(ErrMtimeMismatch, binary))
	}

	return nil
}
