// Package profile loads one sample table into an address-ordered index
// answering range sums.
package profile

import (
	"cmp"
	"slices"
	"sort"

	"github.com/pkg/errors"

	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/samplefile"
	"github.com/maxgio92/xprof/pkg/store"
)

// Sample is one stored address and its count.
type Sample struct {
	Addr  uint64
	Count uint32
}

// Profile is the read-only, address-ordered content of a sample table.
type Profile struct {
	path    string
	header  samplefile.Header
	samples []Sample

	// subtracted from query bounds, see SetStartOffset.
	startOffset uint64
}

// Load opens the sample table at path, validates its header and indexes
// its samples. The table is closed before returning.
func Load(path string) (*Profile, error) {
	f, err := samplefile.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return FromFile(f), nil
}

// FromFile indexes an already opened sample table.
func FromFile(f *samplefile.File) *Profile {
	p := &Profile{
		path:    f.Path(),
		header:  f.Header,
		samples: make([]Sample, 0, f.Len()),
	}
	f.Iterate(func(k store.Key, v store.Value) bool {
		p.samples = append(p.samples, Sample{Addr: k, Count: v})
		return true
	})
	slices.SortFunc(p.samples, func(a, b Sample) int {
		return cmp.Compare(a.Addr, b.Addr)
	})

	return p
}

// New builds a profile from in-memory samples. Duplicate addresses are
// summed.
func New(path string, h samplefile.Header, samples map[uint64]uint32) *Profile {
	p := &Profile{path: path, header: h, samples: make([]Sample, 0, len(samples))}
	for addr, count := range samples {
		if addr == 0 {
			continue
		}
		p.samples = append(p.samples, Sample{Addr: addr, Count: count})
	}
	slices.SortFunc(p.samples, func(a, b Sample) int {
		return cmp.Compare(a.Addr, b.Addr)
	})

	return p
}

func (p *Profile) Path() string { return p.path }

func (p *Profile) Header() samplefile.Header { return p.header }

// Len returns the number of distinct sampled addresses.
func (p *Profile) Len() int { return len(p.samples) }

// SetStartOffset sets the distance between symbol addresses and sampled
// addresses. It only applies to kernel and module profiles.
func (p *Profile) SetStartOffset(offset uint64) {
	if !p.header.IsKernel {
		return
	}
	p.startOffset = offset
}

func (p *Profile) StartOffset() uint64 { return p.startOffset }

// Last returns the highest sampled address, start offset applied.
func (p *Profile) Last() (uint64, bool) {
	if len(p.samples) == 0 {
		return 0, false
	}

	return p.samples[len(p.samples)-1].Addr + p.startOffset, true
}

// lowerBound returns the index of the first sample whose address is not
// below the symbol-space address a.
func (p *Profile) lowerBound(a uint64) int {
	// addresses below the offset have no sample.
	if a < p.startOffset {
		return 0
	}
	key := a - p.startOffset

	return sort.Search(len(p.samples), func(i int) bool {
		return p.samples[i].Addr >= key
	})
}

func (p *Profile) window(start, end uint64) []Sample {
	lo, hi := p.lowerBound(start), p.lowerBound(end)
	if hi < lo {
		return nil
	}

	return p.samples[lo:hi]
}

// RangeSum returns the count of the samples in [start, end), both bounds
// expressed in symbol space.
func (p *Profile) RangeSum(start, end uint64) uint64 {
	var sum uint64
	for _, s := range p.window(start, end) {
		sum += uint64(s.Count)
	}

	return sum
}

// Count returns the count of the single address addr.
func (p *Profile) Count(addr uint64) uint64 {
	return p.RangeSum(addr, addr+1)
}

// Total returns the count of every sample in the table.
func (p *Profile) Total() uint64 {
	var sum uint64
	for _, s := range p.samples {
		sum += uint64(s.Count)
	}

	return sum
}

// Range calls fn for each sample in [start, end), in increasing address
// order, with the address translated back to symbol space.
func (p *Profile) Range(start, end uint64, fn func(addr uint64, count uint32)) {
	for _, s := range p.window(start, end) {
		fn(s.Addr+p.startOffset, s.Count)
	}
}

// Samples returns the samples in symbol space.
func (p *Profile) Samples() []Sample {
	out := make([]Sample, len(p.samples))
	for i, s := range p.samples {
		out[i] = Sample{Addr: s.Addr + p.startOffset, Count: s.Count}
	}

	return out
}

// CheckHeaders fails when profiles cannot be merged into one report.
func CheckHeaders(profiles ...*Profile) error {
	for i := 1; i < len(profiles); i++ {
		if err := samplefile.CheckHeaders(profiles[0].header, profiles[i].header); err != nil {
			return fault.Corrupt("profile.CheckHeaders", errors.Wrapf(err, "%s and %s",
				profiles[0].path, profiles[i].path))
		}
	}

	return nil
}
