package format

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// memoryMonitor cancels a formatter run once process memory has grown by
// more than the limit since the run started.
//
// gopher-lua has no per-VM accounting, so this reads runtime.MemStats and
// concurrent runs see each other's allocations.
type memoryMonitor struct {
	limitBytes uint64
	baseline   uint64
	interval   time.Duration
	exceeded   atomic.Bool
}

// newMemoryMonitor returns nil when maxMB <= 0.
func newMemoryMonitor(maxMB int, interval time.Duration) *memoryMonitor {
	if maxMB <= 0 {
		return nil
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	return &memoryMonitor{
		limitBytes: uint64(maxMB) * 1024 * 1024,
		baseline:   stats.Alloc,
		interval:   interval,
	}
}

// watch polls until ctx is done and calls kill when the limit is crossed.
// The returned function stops the poller.
func (m *memoryMonitor) watch(ctx context.Context, script string, kill context.CancelFunc) context.CancelFunc {
	if m == nil {
		return func() {}
	}

	monCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-monCtx.Done():
				return
			case <-ticker.C:
				var stats runtime.MemStats
				runtime.ReadMemStats(&stats)

				delta := uint64(0)
				if stats.Alloc > m.baseline {
					delta = stats.Alloc - m.baseline
				}

				if delta > m.limitBytes {
					m.exceeded.Store(true)
					log.Warnf("memory limit exceeded for %s (delta=%dMB, limit=%dMB), stopping script",
						script, delta/(1024*1024), m.limitBytes/(1024*1024))
					kill()
					return
				}
			}
		}
	}()

	return cancel
}

func (m *memoryMonitor) wasExceeded() bool {
	if m == nil {
		return false
	}
	return m.exceeded.Load()
}
