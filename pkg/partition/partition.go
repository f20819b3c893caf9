// Package partition groups sample tables into sets that can be merged into
// one profile.
package partition

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/filename"
)

// MergeOption selects the dimensions to merge across. A dimension that is
// not merged separates classes.
type MergeOption struct {
	CPU      bool
	Lib      bool
	TID      bool
	TGID     bool
	UnitMask bool
}

// ParseMergeOption parses a comma separated list among cpu, lib, tid,
// tgid, unitmask and all.
func ParseMergeOption(s string) (MergeOption, error) {
	var m MergeOption
	for _, tok := range strings.Split(s, ",") {
		switch strings.TrimSpace(tok) {
		case "":
		case "cpu":
			m.CPU = true
		case "lib":
			m.Lib = true
		case "tid":
			m.TID = true
		case "tgid":
			m.TGID = true
		case "unitmask":
			m.UnitMask = true
		case "all":
			m = MergeOption{CPU: true, Lib: true, TID: true, TGID: true, UnitMask: true}
		default:
			return MergeOption{}, fault.Usagef("partition.ParseMergeOption", "unknown merge dimension %q", tok)
		}
	}

	return m, nil
}

// File is a sample table path with its decoded name.
type File struct {
	Path string
	filename.Spec
}

// Class is a set of sample tables merged into one profile.
type Class []File

// Compare orders two specs. Specs comparing equal belong to the same class.
func (m MergeOption) Compare(a, b filename.Spec) int {
	if m.Lib {
		if c := cmp.Compare(a.LibImage, b.LibImage); c != 0 {
			return c
		}
		if a.LibImage == "" {
			if c := cmp.Compare(a.Image, b.Image); c != 0 {
				return c
			}
		}
	} else if c := cmp.Compare(a.Image, b.Image); c != 0 {
		return c
	}

	if c := cmp.Compare(a.Event, b.Event); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Count, b.Count); c != 0 {
		return c
	}
	if !m.CPU {
		if c := cmp.Compare(a.CPU, b.CPU); c != 0 {
			return c
		}
	}
	if !m.TID {
		if c := cmp.Compare(a.TID, b.TID); c != 0 {
			return c
		}
	}
	if !m.TGID {
		if c := cmp.Compare(a.TGID, b.TGID); c != 0 {
			return c
		}
	}
	if !m.UnitMask {
		if c := cmp.Compare(a.UnitMask, b.UnitMask); c != 0 {
			return c
		}
	}

	return 0
}

// Decode decodes every path. Undecodable names are reported together as a
// corruption error.
func Decode(paths []string) ([]File, error) {
	var merr error
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		spec, err := filename.Decode(p)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		files = append(files, File{Path: p, Spec: spec})
	}
	if merr != nil {
		return nil, fault.Corrupt("partition.Decode", merr)
	}

	return files, nil
}

// Partition splits paths into maximal classes of tables that compare equal
// under m. Classes are returned in comparison order, and the tables of a
// class keep their input order.
func Partition(paths []string, m MergeOption) ([]Class, error) {
	files, err := Decode(paths)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(files, func(a, b File) int {
		return m.Compare(a.Spec, b.Spec)
	})

	var classes []Class
	for i := 0; i < len(files); {
		j := i + 1
		for j < len(files) && m.Compare(files[i].Spec, files[j].Spec) == 0 {
			j++
		}
		classes = append(classes, Class(files[i:j:j]))
		i = j
	}

	return classes, nil
}

// Unmergeable identifies a sampling configuration.
type Unmergeable struct {
	Event string
	Count uint32
}

func (u Unmergeable) String() string {
	return fmt.Sprintf("%s %d", u.Event, u.Count)
}

// DetectUnmergeable returns the distinct (event, count) pairs of paths,
// sorted.
func DetectUnmergeable(paths []string) ([]Unmergeable, error) {
	files, err := Decode(paths)
	if err != nil {
		return nil, err
	}
	pairs := lo.Uniq(lo.Map(files, func(f File, _ int) Unmergeable {
		return Unmergeable{Event: f.Event, Count: f.Count}
	}))
	slices.SortFunc(pairs, func(a, b Unmergeable) int {
		if c := cmp.Compare(a.Event, b.Event); c != 0 {
			return c
		}
		return cmp.Compare(a.Count, b.Count)
	})

	return pairs, nil
}

// CheckMergeable fails with a usage error naming the pairs when paths mix
// sampling configurations.
func CheckMergeable(paths []string) error {
	pairs, err := DetectUnmergeable(paths)
	if err != nil {
		return err
	}
	if len(pairs) <= 1 {
		return nil
	}
	names := lo.Map(pairs, func(u Unmergeable, _ int) string { return u.String() })

	return fault.UsageErr("partition.CheckMergeable",
		errors.Wrap(ErrUnmergeable, strings.Join(names, ", ")))
}

// Images returns the sampled image of each class member grouped by image
// name. resolve maps an image name to the path to read symbols from; a
// false result drops the member.
func Images(classes []Class, resolve func(image string, f File) (string, bool)) map[string][]File {
	out := make(map[string][]File)
	for _, c := range classes {
		for _, f := range c {
			image, ok := resolve(f.SampledImage(), f)
			if !ok {
				continue
			}
			out[image] = append(out[image], f)
		}
	}

	return out
}

// Label describes the dimensions a class is separated along under m. The
// image is not part of it.
func (c Class) Label(m MergeOption) string {
	if len(c) == 0 {
		return ""
	}
	s := c[0].Spec

	parts := []string{s.Event, strconv.FormatUint(uint64(s.Count), 10)}
	if !m.UnitMask {
		parts = append(parts, fmt.Sprintf("um 0x%x", s.UnitMask))
	}
	if !m.TGID && s.TGID != filename.All {
		parts = append(parts, "tgid "+strconv.Itoa(s.TGID))
	}
	if !m.TID && s.TID != filename.All {
		parts = append(parts, "tid "+strconv.Itoa(s.TID))
	}
	if !m.CPU && s.CPU != filename.All {
		parts = append(parts, "cpu "+strconv.Itoa(s.CPU))
	}

	return strings.Join(parts, " ")
}
