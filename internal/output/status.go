package output

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

func StatusBar(ctx context.Context, refreshRate time.Duration, printF func()) {
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printF()
		case <-ctx.Done():
			return
		}
	}
}

// PrettyRecordStatus formats the recorder counters. lostPct is the share
// of samples that could not be attributed to an image.
func PrettyRecordStatus(samples, rate uint64, lostPct float64, stores, maxStores int) string {
	util := 0
	if maxStores > 0 {
		util = stores * 100 / maxStores
	}

	return fmt.Sprintf("\r%-28s %-20s %-16s %-30s",
		fmt.Sprintf("Samples: %s", humanize.Comma(int64(samples))),
		fmt.Sprintf("Samples/s: %s", humanize.Comma(int64(rate))),
		fmt.Sprintf("Lost: %5.2f%%", lostPct),
		fmt.Sprintf("Open files: [%s] %3d%%", ProgressBar(util, 10), util),
	)
}
