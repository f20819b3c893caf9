package aggregate

// FileLocation is a source position. Line zero means unknown.
type FileLocation struct {
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

func (l FileLocation) Valid() bool { return l.File != "" && l.Line != 0 }

func (l FileLocation) less(o FileLocation) bool {
	if l.File != o.File {
		return l.File < o.File
	}
	return l.Line < o.Line
}

// Sample is the count of one sampled address.
type Sample struct {
	FileLocation
	VMA   uint64 `json:"vma"`
	Count uint64 `json:"count"`
}

// Symbol is the count of one symbol, summed over every added profile.
type Symbol struct {
	// Image is the binary holding the symbol.
	Image string `json:"image"`
	// App is the owning application when Image is a shared library
	// profiled separately, Image otherwise.
	App  string `json:"app"`
	Name string `json:"name"`
	Size uint64 `json:"size"`
	// Sample carries the start address, the total count and the source
	// location of the symbol.
	Sample

	// Artificial symbols cover samples outside of any known symbol.
	Artificial bool `json:"artificial,omitempty"`

	order   int
	samples []*Sample
	byVMA   map[uint64]*Sample
}

type identity struct {
	image, app string
	vma        uint64
	name       string
	size       uint64
}

// identity of an artificial symbol ignores its size: the trailing gap of
// an image may be bounded differently by each profile.
func (s *Symbol) identity() identity {
	if s.Artificial {
		return identity{s.Image, s.App, s.VMA, s.Name, 0}
	}
	return identity{s.Image, s.App, s.VMA, s.Name, s.Size}
}

// End returns the first address past the symbol.
func (s *Symbol) End() uint64 { return s.VMA + s.Size }

// Samples returns the per-address details of the symbol, ordered by
// address. Empty unless details were requested.
func (s *Symbol) Samples() []*Sample { return s.samples }

func (s *Symbol) addSample(vma, count uint64, loc FileLocation) *Sample {
	if s.byVMA == nil {
		s.byVMA = make(map[uint64]*Sample)
	}
	if smp, ok := s.byVMA[vma]; ok {
		smp.Count += count
		return smp
	}
	smp := &Sample{FileLocation: loc, VMA: vma, Count: count}
	s.byVMA[vma] = smp
	s.samples = append(s.samples, smp)

	return smp
}
