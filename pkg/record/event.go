package record

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/maxgio92/xprof/pkg/fault"
)

// Kind identifies the type of a stream record.
type Kind uint32

const (
	KindSample Kind = iota + 1
	KindMmap
	KindExec
	KindFork
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindSample:
		return "sample"
	case KindMmap:
		return "mmap"
	case KindExec:
		return "exec"
	case KindFork:
		return "fork"
	case KindExit:
		return "exit"
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

const (
	// HeaderSize is the size of the fixed part of every record:
	// kind, counter, pid, tid, cpu, payload length (u32 each) and address (u64).
	HeaderSize = 32
	// MaxPayload bounds the payload of a single record.
	MaxPayload = 4096

	mmapFixedSize = 24
)

// Record is one entry of the sampling stream.
type Record struct {
	Kind    Kind
	Counter uint32
	PID     uint32
	TID     uint32
	CPU     uint32
	Addr    uint64
	Payload []byte
}

// Mapping is a file mapped in a process address space.
type Mapping struct {
	Start uint64
	End   uint64
	PgOff uint64
	Path  string
}

func (m Mapping) contains(addr uint64) bool {
	return addr >= m.Start && addr < m.End
}

func (m Mapping) overlaps(o Mapping) bool {
	return m.Start < o.End && o.Start < m.End
}

// Mapping decodes the payload of a mmap record.
func (r Record) Mapping() (Mapping, error) {
	if r.Kind != KindMmap {
		return Mapping{}, fault.Usagef("record.Mapping", "not a mmap record: %s", r.Kind)
	}
	if len(r.Payload) < mmapFixedSize {
		return Mapping{}, fault.Corruptf("record.Mapping", "mmap payload is %d bytes", len(r.Payload))
	}

	m := Mapping{
		Start: binary.LittleEndian.Uint64(r.Payload[0:]),
		End:   binary.LittleEndian.Uint64(r.Payload[8:]),
		PgOff: binary.LittleEndian.Uint64(r.Payload[16:]),
		Path:  cString(r.Payload[mmapFixedSize:]),
	}
	if m.End <= m.Start {
		return Mapping{}, fault.Corruptf("record.Mapping", "empty mapping [%#x, %#x)", m.Start, m.End)
	}

	return m, nil
}

// Path decodes the payload of an exec record.
func (r Record) Path() string {
	return cString(r.Payload)
}

// ParentPID decodes the payload of a fork record.
func (r Record) ParentPID() (uint32, error) {
	if len(r.Payload) < 4 {
		return 0, fault.Corruptf("record.ParentPID", "fork payload is %d bytes", len(r.Payload))
	}
	return binary.LittleEndian.Uint32(r.Payload), nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Decoder reads records from a sampling stream.
type Decoder struct {
	r   *bufio.Reader
	hdr [HeaderSize]byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode returns the next record. io.EOF is returned only on a record
// boundary.
func (d *Decoder) Decode() (Record, error) {
	const op = "record.Decode"

	if _, err := io.ReadFull(d.r, d.hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, fault.Corrupt(op, errors.Wrap(err, "truncated record header"))
		}
		return Record{}, fault.ResourceErr(op, err)
	}

	le := binary.LittleEndian
	rec := Record{
		Kind:    Kind(le.Uint32(d.hdr[0:])),
		Counter: le.Uint32(d.hdr[4:]),
		PID:     le.Uint32(d.hdr[8:]),
		TID:     le.Uint32(d.hdr[12:]),
		CPU:     le.Uint32(d.hdr[16:]),
		Addr:    le.Uint64(d.hdr[24:]),
	}
	n := le.Uint32(d.hdr[20:])
	if n > MaxPayload {
		return Record{}, fault.Corruptf(op, "%s record payload of %d bytes exceeds %d", rec.Kind, n, MaxPayload)
	}
	if n > 0 {
		rec.Payload = make([]byte, n)
		if _, err := io.ReadFull(d.r, rec.Payload); err != nil {
			return Record{}, fault.Corrupt(op, errors.Wrapf(err, "truncated %s record payload", rec.Kind))
		}
	}

	return rec, nil
}

// Encoder writes records to a sampling stream.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(rec Record) error {
	if len(rec.Payload) > MaxPayload {
		return fault.Usagef("record.Encode", "payload of %d bytes exceeds %d", len(rec.Payload), MaxPayload)
	}

	b := make([]byte, HeaderSize+len(rec.Payload))
	le := binary.LittleEndian
	le.PutUint32(b[0:], uint32(rec.Kind))
	le.PutUint32(b[4:], rec.Counter)
	le.PutUint32(b[8:], rec.PID)
	le.PutUint32(b[12:], rec.TID)
	le.PutUint32(b[16:], rec.CPU)
	le.PutUint32(b[20:], uint32(len(rec.Payload)))
	le.PutUint64(b[24:], rec.Addr)
	copy(b[HeaderSize:], rec.Payload)

	_, err := e.w.Write(b)
	return err
}

func SampleRecord(counter, pid, tid, cpu uint32, addr uint64) Record {
	return Record{Kind: KindSample, Counter: counter, PID: pid, TID: tid, CPU: cpu, Addr: addr}
}

// MmapRecord maps m in the address space of pid. Pid 0 maps kernel images.
func MmapRecord(pid uint32, m Mapping) Record {
	p := make([]byte, mmapFixedSize+len(m.Path))
	binary.LittleEndian.PutUint64(p[0:], m.Start)
	binary.LittleEndian.PutUint64(p[8:], m.End)
	binary.LittleEndian.PutUint64(p[16:], m.PgOff)
	copy(p[mmapFixedSize:], m.Path)

	return Record{Kind: KindMmap, PID: pid, TID: pid, Payload: p}
}

func ExecRecord(pid uint32, path string) Record {
	return Record{Kind: KindExec, PID: pid, TID: pid, Payload: []byte(path)}
}

func ForkRecord(pid, parent uint32) Record {
	p := make([]byte, 4)
	binary.LittleEndian.PutUint32(p, parent)

	return Record{Kind: KindFork, PID: pid, TID: pid, Payload: p}
}

func ExitRecord(pid uint32) Record {
	return Record{Kind: KindExit, PID: pid, TID: pid}
}
