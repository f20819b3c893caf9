// Package filename maps the dimensions of a sample table to and from its
// path below a session directory:
//
//	<base>/{root|kern}/<image>/[{root|kern}/<app>/]<event>.<count>.<unitmask>.<tgid>.<tid>.<cpu>
//
// The {kern} marker is used for images named without a directory, that is
// the kernel and its modules. The second image segment is present only
// for libraries whose samples are attributed to their owning application.
package filename

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/maxgio92/xprof/pkg/fault"
)

const (
	RootMarker = "{root}"
	KernMarker = "{kern}"

	// All is the value of a tgid, tid or cpu dimension that was not
	// separated.
	All = -1

	allString = "all"
)

// Spec is the decoded form of a sample filename.
type Spec struct {
	BaseDir string
	// Image is the application the samples belong to.
	Image string
	// LibImage is the library the samples were taken in, when it differs
	// from Image.
	LibImage string
	Event    string
	Count    uint32
	UnitMask uint32
	TGID     int
	TID      int
	CPU      int
}

// SampledImage returns the image the sampled addresses belong to.
func (s Spec) SampledImage() string {
	if s.LibImage != "" {
		return s.LibImage
	}
	return s.Image
}

// IsKernel reports whether the sampled image is a kernel image.
func (s Spec) IsKernel() bool {
	return !strings.Contains(s.SampledImage(), "/")
}

func imageSegment(image string) (string, error) {
	switch {
	case image == "":
		return "", ErrEmptyImage
	case !strings.Contains(image, "/"):
		return KernMarker + "/" + image, nil
	case !strings.HasPrefix(image, "/"):
		return "", ErrRelativeImage
	default:
		return RootMarker + image, nil
	}
}

func dim(v int) string {
	if v < 0 {
		return allString
	}
	return strconv.Itoa(v)
}

// Encode returns the path of the sample table described by s.
func Encode(s Spec) (string, error) {
	const op = "filename.Encode"

	if s.Event == "" || strings.ContainsAny(s.Event, "./") {
		return "", fault.Usagef(op, "invalid event name %q", s.Event)
	}

	first, second := s.Image, ""
	if s.LibImage != "" && s.LibImage != s.Image {
		first, second = s.LibImage, s.Image
	}

	var sb strings.Builder
	if s.BaseDir != "" {
		sb.WriteString(strings.TrimSuffix(s.BaseDir, "/"))
		sb.WriteByte('/')
	}

	seg, err := imageSegment(first)
	if err != nil {
		return "", fault.UsageErr(op, err)
	}
	sb.WriteString(seg)
	sb.WriteByte('/')
	if second != "" {
		seg, err := imageSegment(second)
		if err != nil {
			return "", fault.UsageErr(op, err)
		}
		sb.WriteString(seg)
		sb.WriteByte('/')
	}
	fmt.Fprintf(&sb, "%s.%d.%d.%s.%s.%s", s.Event, s.Count, s.UnitMask, dim(s.TGID), dim(s.TID), dim(s.CPU))

	return sb.String(), nil
}

// Decode parses a sample table path.
func Decode(path string) (Spec, error) {
	const op = "filename.Decode"

	parts := strings.Split(path, "/")

	var markers []int
	for i, p := range parts {
		if p == RootMarker || p == KernMarker {
			markers = append(markers, i)
		}
	}
	switch {
	case len(markers) == 0:
		return Spec{}, fault.Corrupt(op, errors.Wrap(ErrNoMarker, path))
	case len(markers) > 2:
		return Spec{}, fault.Corrupt(op, errors.Wrap(ErrMarkerCount, path))
	}

	var s Spec
	s.BaseDir = strings.Join(parts[:markers[0]], "/")
	if s.BaseDir == "" && markers[0] > 0 {
		s.BaseDir = "/"
	}

	last := len(parts) - 1
	bounds := append(markers, last)
	var images []string
	for i := 0; i+1 < len(bounds); i++ {
		image, err := decodeImage(parts[bounds[i]], parts[bounds[i]+1:bounds[i+1]])
		if err != nil {
			return Spec{}, fault.Corrupt(op, errors.Wrap(err, path))
		}
		images = append(images, image)
	}
	s.Image = images[0]
	if len(images) == 2 {
		s.LibImage, s.Image = images[0], images[1]
	}

	if err := s.decodeEvent(parts[last]); err != nil {
		return Spec{}, fault.Corrupt(op, errors.Wrap(err, path))
	}

	return s, nil
}

func decodeImage(marker string, parts []string) (string, error) {
	if len(parts) == 0 {
		return "", ErrEmptyImage
	}
	image := strings.Join(parts, "/")
	if marker == RootMarker {
		image = "/" + image
	}

	return image, nil
}

func (s *Spec) decodeEvent(name string) error {
	fields := strings.Split(name, ".")
	if len(fields) != 6 || fields[0] == "" {
		return errors.Wrapf(ErrFieldCount, "%q", name)
	}
	s.Event = fields[0]

	count, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return errors.Wrapf(ErrBadField, "count %q", fields[1])
	}
	s.Count = uint32(count)

	um, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return errors.Wrapf(ErrBadField, "unit mask %q", fields[2])
	}
	s.UnitMask = uint32(um)

	for i, dst := range []*int{&s.TGID, &s.TID, &s.CPU} {
		v, err := parseDim(fields[3+i])
		if err != nil {
			return err
		}
		*dst = v
	}

	return nil
}

func parseDim(f string) (int, error) {
	if f == allString {
		return All, nil
	}
	v, err := strconv.ParseUint(f, 10, 31)
	if err != nil {
		return 0, errors.Wrapf(ErrBadField, "%q", f)
	}

	return int(v), nil
}
