package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/podcache/internal/tiered"
)

// DefaultReportInterval is how often Reporter logs a utilization summary.
const DefaultReportInterval = 10 * time.Second

// Reporter periodically logs cache utilization. It follows the same
// ticker-plus-waitgroup lifecycle PodCache uses for its other background
// loops: Start launches the goroutine, Stop blocks until it has exited.
type Reporter struct {
	cache    *tiered.Cache
	logger   *zap.SugaredLogger
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReporter builds a Reporter for cache, logging through logger every
// interval. A non-positive interval falls back to DefaultReportInterval.
func NewReporter(cache *tiered.Cache, logger *zap.SugaredLogger, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &Reporter{cache: cache, logger: logger, interval: interval}
}

// Start launches the reporting loop. Calling Start twice without an
// intervening Stop is a programmer error.
func (r *Reporter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.report()
			}
		}
	}()
}

// Stop cancels the reporting loop and waits for it to exit.
func (r *Reporter) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Reporter) report() {
	if r.logger == nil {
		return
	}
	stats := r.cache.Stats()

	var usedBytes, capacityBytes int64
	var entries int
	for i, p := range stats.Partitions {
		usedBytes += p.UsedBytes
		capacityBytes += p.CapacityBytes
		entries += p.Count
		r.logger.Infow("partition status",
			"partition", i,
			"used_bytes", p.UsedBytes,
			"capacity_bytes", p.CapacityBytes,
			"entries", p.Count,
		)
	}

	r.logger.Infow("cache status",
		"memory_entries", entries,
		"memory_used_bytes", usedBytes,
		"memory_capacity_bytes", capacityBytes,
		"disk_entries", stats.DiskEntries,
		"hits", stats.Hits,
		"misses", stats.Misses,
		"spills", stats.Spills,
		"promotions", stats.Promotions,
		"spill_failures", stats.SpillFailures,
	)
}
