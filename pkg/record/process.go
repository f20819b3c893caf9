package record

import (
	"slices"
	"sort"
	"strings"

	"github.com/samber/lo"
)

type process struct {
	app  string
	maps []Mapping
}

// location is where a sampled address belongs.
type location struct {
	app    string
	image  string
	offset uint64
}

func (l location) kernel() bool {
	return !strings.Contains(l.image, "/")
}

// processTable tracks the address spaces of the sampled processes.
type processTable struct {
	procs  map[uint32]*process
	kernel []Mapping
}

func newProcessTable() *processTable {
	return &processTable{procs: make(map[uint32]*process)}
}

func (t *processTable) get(pid uint32) *process {
	p, ok := t.procs[pid]
	if !ok {
		p = new(process)
		t.procs[pid] = p
	}
	return p
}

func (t *processTable) exec(pid uint32, path string) {
	t.procs[pid] = &process{app: path}
}

func (t *processTable) fork(pid, parent uint32) {
	pp, ok := t.procs[parent]
	if !ok {
		t.procs[pid] = new(process)
		return
	}
	t.procs[pid] = &process{app: pp.app, maps: slices.Clone(pp.maps)}
}

func (t *processTable) exit(pid uint32) {
	delete(t.procs, pid)
}

func (t *processTable) mmap(pid uint32, m Mapping) {
	if pid == 0 {
		t.kernel = insertMapping(t.kernel, m)
		return
	}

	p := t.get(pid)
	if p.app == "" && strings.HasPrefix(m.Path, "/") {
		p.app = m.Path
	}
	p.maps = insertMapping(p.maps, m)
}

func (t *processTable) resolve(pid uint32, addr uint64) (location, bool) {
	var app string
	if p, ok := t.procs[pid]; ok {
		app = p.app
		if m, ok := findMapping(p.maps, addr); ok {
			return location{app: app, image: m.Path, offset: addr - m.Start + m.PgOff}, true
		}
	}
	if m, ok := findMapping(t.kernel, addr); ok {
		return location{app: app, image: m.Path, offset: addr - m.Start + m.PgOff}, true
	}

	return location{}, false
}

// insertMapping replaces the mappings m overlaps, keeping maps sorted by
// start address.
func insertMapping(maps []Mapping, m Mapping) []Mapping {
	maps = lo.Reject(maps, func(o Mapping, _ int) bool {
		return o.overlaps(m)
	})
	i := sort.Search(len(maps), func(i int) bool { return maps[i].Start >= m.Start })

	return slices.Insert(maps, i, m)
}

func findMapping(maps []Mapping, addr uint64) (Mapping, bool) {
	i := sort.Search(len(maps), func(i int) bool { return maps[i].End > addr })
	if i < len(maps) && maps[i].contains(addr) {
		return maps[i], true
	}
	return Mapping{}, false
}
