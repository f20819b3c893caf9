// Package session selects the sample tables of a recording session and
// folds them into aggregations, one per group of mergeable tables.
package session

import (
	"cmp"
	"io"
	"slices"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/maxgio92/xprof/internal/settings"
	"github.com/maxgio92/xprof/pkg/aggregate"
	"github.com/maxgio92/xprof/pkg/fault"
	"github.com/maxgio92/xprof/pkg/locate"
	"github.com/maxgio92/xprof/pkg/partition"
	"github.com/maxgio92/xprof/pkg/profile"
	"github.com/maxgio92/xprof/pkg/query"
	"github.com/maxgio92/xprof/pkg/report"
	"github.com/maxgio92/xprof/pkg/samplefile"
	"github.com/maxgio92/xprof/pkg/symtable"
)

// Group is a set of classes separated only by their image. Its tables are
// reported together.
type Group struct {
	Label   string
	Classes []partition.Class
}

// Files returns the tables of every class of g.
func (g Group) Files() []partition.File {
	return lo.Flatten(lo.Map(g.Classes, func(c partition.Class, _ int) []partition.File {
		return c
	}))
}

type Session struct {
	query  *query.Query
	files  []string
	groups []Group

	*Options
}

func elfOpener(path string, opts ...symtable.Option) (symtable.Table, error) {
	return symtable.NewELFSymTab(path, opts...)
}

// Open lists the tables matching q and partitions them. Tables recorded
// with different events or counts are rejected.
func Open(q *query.Query, opts ...Option) (*Session, error) {
	const op = "session.Open"

	s := &Session{
		query: q,
		Options: &Options{
			fs:         afero.NewOsFs(),
			samplesDir: settings.SamplesDir,
			openTable:  elfOpener,
			logger:     log.Nop(),
		},
	}
	for _, f := range opts {
		f(s.Options)
	}
	s.logger = s.logger.With().Str("component", "session").Logger()

	if s.locator == nil {
		var err error
		if s.locator, err = locate.New(locate.WithFs(s.fs), locate.WithLogger(s.logger)); err != nil {
			return nil, err
		}
	}

	var err error
	s.files, err = query.List(s.fs, s.samplesDir, q)
	if err != nil {
		return nil, err
	}
	if len(s.files) == 0 {
		return nil, fault.UsageErr(op, ErrNoSamples)
	}
	if err := partition.CheckMergeable(s.files); err != nil {
		return nil, err
	}

	classes, err := partition.Partition(s.files, s.merge)
	if err != nil {
		return nil, err
	}
	s.groups = group(classes, s.merge)
	s.logger.Debug().Int("files", len(s.files)).Int("groups", len(s.groups)).Msg("session opened")

	return s, nil
}

func group(classes []partition.Class, m partition.MergeOption) []Group {
	byLabel := lo.GroupBy(classes, func(c partition.Class) string {
		return c.Label(m)
	})
	groups := make([]Group, 0, len(byLabel))
	for label, cs := range byLabel {
		groups = append(groups, Group{Label: label, Classes: cs})
	}
	slices.SortFunc(groups, func(a, b Group) int {
		return cmp.Compare(a.Label, b.Label)
	})

	return groups
}

// Files returns the selected table paths, sorted.
func (s *Session) Files() []string { return s.files }

func (s *Session) Groups() []Group { return s.groups }

// Event returns the sampling configuration shared by every table.
func (s *Session) Event() (string, uint32) {
	f := s.groups[0].Classes[0][0]
	return f.Event, f.Count
}

// load opens the profiles of g and checks they were recorded with the same
// settings.
func (s *Session) load(g Group) ([]partition.File, []*profile.Profile, error) {
	files := g.Files()
	profiles := make([]*profile.Profile, 0, len(files))
	for _, f := range files {
		p, err := profile.Load(f.Path)
		if err != nil {
			return nil, nil, err
		}
		profiles = append(profiles, p)
	}

	// tables of one image must have been recorded with the same settings.
	byImage := lo.GroupBy(lo.Range(len(files)), func(i int) string {
		return files[i].SampledImage()
	})
	for _, idx := range byImage {
		if err := profile.CheckHeaders(lo.Map(idx, func(i int, _ int) *profile.Profile {
			return profiles[i]
		})...); err != nil {
			return nil, nil, err
		}
	}

	return files, profiles, nil
}

// Aggregate folds the tables of g onto the symbol tables of their images.
// Tables whose image cannot be found are skipped with a warning.
func (s *Session) Aggregate(g Group) (*aggregate.Aggregator, error) {
	files, profiles, err := s.load(g)
	if err != nil {
		return nil, err
	}

	tables := make(map[string]symtable.Table)
	defer func() {
		for _, tab := range tables {
			if c, ok := tab.(io.Closer); ok {
				c.Close()
			}
		}
	}()

	agg := aggregate.New(append([]aggregate.Option{aggregate.WithLogger(s.logger)}, s.aggOpts...)...)
	added := 0
	for i, f := range files {
		tab, err := s.table(f, tables)
		if err != nil {
			if fault.Is(err, fault.Advisory) {
				s.logger.Warn().Err(err).Msg("skipping sample file")
				continue
			}
			return nil, err
		}
		if err := samplefile.CheckMtime(profiles[i].Header(), tab.Image()); err != nil && !f.IsKernel() {
			s.logger.Warn().Err(err).Msg("profile may not match the binary")
		}

		var app string
		if f.LibImage != "" {
			app = f.Image
		}
		if err := agg.Add(profiles[i], tab, app); err != nil {
			return nil, err
		}
		added++
	}
	if added == 0 {
		return nil, fault.UsageErr("session.Aggregate", errors.Wrap(ErrNoImages, g.Label))
	}

	return agg, nil
}

func (s *Session) table(f partition.File, tables map[string]symtable.Table) (symtable.Table, error) {
	image := f.SampledImage()
	if b := s.query.Binary(); b != "" {
		image = b
	}
	path, err := s.locator.Resolve(image, f.Path)
	if err != nil {
		return nil, err
	}
	if tab, ok := tables[path]; ok {
		return tab, nil
	}

	opts := append([]symtable.Option{symtable.WithKernel(f.IsKernel()), symtable.WithLogger(s.logger)}, s.symOpts...)
	tab, err := s.openTable(path, opts...)
	if err != nil {
		return nil, fault.AdvisoryErr("session.table", errors.Wrap(err, path))
	}
	tables[path] = tab

	return tab, nil
}

// ImageCounts sums the samples of every table of g by image.
func (s *Session) ImageCounts(g Group) ([]report.ImageCount, error) {
	files, profiles, err := s.load(g)
	if err != nil {
		return nil, err
	}

	counts := make([]report.ImageCount, 0, len(files))
	for i, f := range files {
		c := report.ImageCount{Image: f.SampledImage(), Count: profiles[i].Total()}
		if f.LibImage != "" {
			c.App = f.Image
		}
		counts = append(counts, c)
	}

	return counts, nil
}
