package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when any recent stop-the-world pause exceeds
// threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		for _, pause := range stats.Pause {
			if pause > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, threshold)
			}
		}
		return nil
	}
}

// PoolUsage reports how many connections of a pool are checked out and how
// many it may open.
type PoolUsage func() (inUse, capacity int64)

// PoolSaturationCheck fails when the in-use share of a connection pool
// reaches ratio. An empty pool is never saturated.
func PoolSaturationCheck(usage PoolUsage, ratio float64) CheckFunc {
	return func(context.Context) error {
		inUse, capacity := usage()
		if capacity <= 0 {
			return nil
		}
		if float64(inUse) >= ratio*float64(capacity) {
			return errors.Errorf("pool saturated: %d of %d connections in use", inUse, capacity)
		}
		return nil
	}
}
