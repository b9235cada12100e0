package logger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type componentStat struct {
	warns  int64
	errors int64
}

var componentStats sync.Map // map[string]*componentStat

func recordWarn(component string) {
	stat := statFor(component)
	atomic.AddInt64(&stat.warns, 1)
}

func recordError(component string) {
	stat := statFor(component)
	atomic.AddInt64(&stat.errors, 1)
}

func statFor(component string) *componentStat {
	v, _ := componentStats.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

// StartReport begins periodic logging of per-component warning and error
// counters. The goroutine exits when the context is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func logReport(log *Log) {
	components := map[string]map[string]int64{}
	componentStats.Range(func(k, v any) bool {
		name := k.(string)
		stat := v.(*componentStat)
		components[name] = map[string]int64{
			"warns":  atomic.LoadInt64(&stat.warns),
			"errors": atomic.LoadInt64(&stat.errors),
		}
		return true
	})

	log.WithComponent("report").WithFields(Fields{
		"components": components,
	}).Info("periodic status report")
}
