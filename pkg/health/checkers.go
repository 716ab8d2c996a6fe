package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running,
// which usually means requests are piling up behind a stuck dependency.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// HeapCheck fails when the live heap exceeds limit bytes.
func HeapCheck(limit uint64) CheckFunc {
	return func(context.Context) error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		if m.HeapAlloc > limit {
			return errors.Errorf("heap %d bytes exceeds limit %d", m.HeapAlloc, limit)
		}
		return nil
	}
}
