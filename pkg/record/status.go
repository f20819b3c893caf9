package record

import (
	"context"
	"os"
	"time"

	"github.com/maxgio92/xprof/internal/output"
)

func (r *Recorder) printStatusBar(ctx context.Context) {
	if !r.status {
		return
	}
	output.StatusBar(ctx,
		1*time.Second, // bar refresh interval.
		func() {
			s := r.Stats()
			var lostPct float64
			if s.Samples > 0 {
				lostPct = float64(s.Lost) / float64(s.Samples) * 100
			}
			output.PrintRight(os.Stderr, output.PrettyRecordStatus(
				s.Samples,
				r.consumed.Swap(0), // sample rate reset at each bar refresh.
				lostPct,
				s.Stores,
				r.config.MaxOpenFiles,
			))
		},
	)
}
