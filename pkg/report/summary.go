package report

import (
	"cmp"
	"encoding/json"
	"io"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
)

// ImageCount is the number of samples of one image, attributed to its
// owning application.
type ImageCount struct {
	Image string
	App   string
	Count uint64
}

// ImageShare is a line of the summary. Libraries sampled on behalf of an
// application are listed below it.
type ImageShare struct {
	Image   string       `json:"image"`
	Count   uint64       `json:"count"`
	Percent float64      `json:"percent"`
	Libs    []ImageShare `json:"libs,omitempty"`
}

// Summary is the per image breakdown of the samples of one class of
// sample files.
type Summary struct {
	Event string       `json:"event,omitempty"`
	Total uint64       `json:"total"`
	Apps  []ImageShare `json:"apps"`
}

// FileCounts sums counts by application, dropping the applications below
// threshold percent of the total.
func FileCounts(event string, counts []ImageCount, threshold float64) *Summary {
	s := &Summary{Event: event}
	for _, c := range counts {
		s.Total += c.Count
	}

	byApp := lo.GroupBy(counts, func(c ImageCount) string {
		if c.App == "" {
			return c.Image
		}
		return c.App
	})
	for app, cs := range byApp {
		share := ImageShare{Image: app}
		libs := make(map[string]uint64)
		for _, c := range cs {
			share.Count += c.Count
			if c.Image != app {
				libs[c.Image] += c.Count
			}
		}
		share.Percent = percent(share.Count, s.Total)
		if share.Percent < threshold {
			continue
		}
		for lib, n := range libs {
			share.Libs = append(share.Libs, ImageShare{Image: lib, Count: n, Percent: percent(n, share.Count)})
		}
		sortShares(share.Libs)
		s.Apps = append(s.Apps, share)
	}
	sortShares(s.Apps)

	return s
}

func sortShares(shares []ImageShare) {
	slices.SortFunc(shares, func(x, y ImageShare) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Image, y.Image)
	})
}

// Write prints the summary as columned text. Library percentages are
// relative to their application.
func (s *Summary) Write(w io.Writer) error {
	table := newTable(w)
	table.SetHeader([]string{"samples", "%", "image name"})
	for _, app := range s.Apps {
		table.Append([]string{humanize.Comma(int64(app.Count)), formatPercent(app.Percent), app.Image})
		for _, lib := range app.Libs {
			table.Append([]string{"  " + humanize.Comma(int64(lib.Count)), formatPercent(lib.Percent), "  " + lib.Image})
		}
	}
	table.Render()

	return nil
}

// WriteReport prints the summary as JSON.
func (s *Summary) WriteReport(w io.Writer) error {
	encoder := json.NewEncoder(w)
	return encoder.Encode(s)
}
