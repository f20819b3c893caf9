// Package samplefile defines the header stored in front of every sample
// table and opens sample tables with it.
package samplefile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/maxgio92/xprof/pkg/fault"
)

const (
	Magic      = "XPRF"
	Version    = 1
	HeaderSize = 64

	eventNameLen = 24
)

const (
	flagKernel = 1 << iota
	flagSeparateLib
	flagSeparateKernel
)

// Header describes the sampling configuration a table was recorded with.
type Header struct {
	Version     uint32
	CPUType     uint32
	Event       string
	UnitMask    uint32
	Count       uint32
	IsKernel    bool
	SeparateLib bool
	// SeparateKernel attributes kernel samples to the running process.
	SeparateKernel bool
	// CPUSpeed is an estimation in MHz.
	CPUSpeed float64
	// Mtime is the modification time of the profiled binary, in seconds
	// since the epoch, or zero when unknown.
	Mtime int64
}

func (h Header) MarshalBinary() ([]byte, error) {
	if len(h.Event) > eventNameLen {
		return nil, fault.Usagef("samplefile.MarshalBinary", "event name %q longer than %d bytes", h.Event, eventNameLen)
	}

	b := make([]byte, HeaderSize)
	copy(b[0:4], Magic)
	binary.LittleEndian.PutUint32(b[4:], h.Version)
	binary.LittleEndian.PutUint32(b[8:], h.CPUType)
	binary.LittleEndian.PutUint32(b[12:], h.UnitMask)
	binary.LittleEndian.PutUint32(b[16:], h.Count)

	var flags uint32
	if h.IsKernel {
		flags |= flagKernel
	}
	if h.SeparateLib {
		flags |= flagSeparateLib
	}
	if h.SeparateKernel {
		flags |= flagSeparateKernel
	}
	binary.LittleEndian.PutUint32(b[20:], flags)
	binary.LittleEndian.PutUint64(b[24:], math.Float64bits(h.CPUSpeed))
	binary.LittleEndian.PutUint64(b[32:], uint64(h.Mtime))
	copy(b[40:40+eventNameLen], h.Event)

	return b, nil
}

func (h *Header) UnmarshalBinary(b []byte) error {
	const op = "samplefile.UnmarshalBinary"

	if len(b) < HeaderSize {
		return fault.Corruptf(op, "header is %d bytes, want %d", len(b), HeaderSize)
	}
	if string(b[0:4]) != Magic {
		return fault.Corrupt(op, ErrBadMagic)
	}

	h.Version = binary.LittleEndian.Uint32(b[4:])
	h.CPUType = binary.LittleEndian.Uint32(b[8:])
	h.UnitMask = binary.LittleEndian.Uint32(b[12:])
	h.Count = binary.LittleEndian.Uint32(b[16:])
	flags := binary.LittleEndian.Uint32(b[20:])
	h.IsKernel = flags&flagKernel != 0
	h.SeparateLib = flags&flagSeparateLib != 0
	h.SeparateKernel = flags&flagSeparateKernel != 0
	h.CPUSpeed = math.Float64frombits(binary.LittleEndian.Uint64(b[24:]))
	h.Mtime = int64(binary.LittleEndian.Uint64(b[32:]))
	h.Event = string(bytes.TrimRight(b[40:40+eventNameLen], "\x00"))

	return nil
}

// String describes the counter setup.
func (h Header) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CPU type: %d\n", h.CPUType)
	fmt.Fprintf(&sb, "CPU speed was (MHz estimation): %g\n", h.CPUSpeed)
	fmt.Fprintf(&sb, "Counted %s events with a unit mask of 0x%02x, count %d", h.Event, h.UnitMask, h.Count)

	return sb.String()
}

// CheckHeaders fails when two tables were recorded with sampling settings
// that make their counts impossible to sum.
func CheckHeaders(a, b Header) error {
	const op = "samplefile.CheckHeaders"

	switch {
	case a.Mtime != b.Mtime:
		return fault.Corrupt(op, errors.Wrapf(ErrHeaderMismatch, "timestamps (%d, %d)", a.Mtime, b.Mtime))
	case a.IsKernel != b.IsKernel:
		return fault.Corrupt(op, errors.Wrap(ErrHeaderMismatch, "is_kernel flags"))
	case a.CPUSpeed != b.CPUSpeed:
		return fault.Corrupt(op, errors.Wrapf(ErrHeaderMismatch, "cpu speeds (%g, %g)", a.CPUSpeed, b.CPUSpeed))
	case a.SeparateLib != b.SeparateLib:
		return fault.Corrupt(op, errors.Wrapf(ErrHeaderMismatch, "separate_lib_samples (%t, %t)", a.SeparateLib, b.SeparateLib))
	case a.SeparateKernel != b.SeparateKernel:
		return fault.Corrupt(op, errors.Wrapf(ErrHeaderMismatch, "separate_kernel_samples (%t, %t)", a.SeparateKernel, b.SeparateKernel))
	}

	return nil
}
