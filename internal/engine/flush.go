package engine

import (
	"time"

	"go.uber.org/zap"
)

// runFlushLoop is the background flush task, spawned at construction and
// stopped by Stop. Missing a tick only widens the window that must be
// replayed on restart — there is no correctness dependency on exact
// timing.
func (e *Engine) runFlushLoop() {
	defer close(e.flushDone)

	ticker := time.NewTicker(e.flushIntervalOrDefault())
	defer ticker.Stop()

	for {
		select {
		case <-e.flushStop:
			return
		case <-ticker.C:
			if e.stopped.Load() {
				return
			}

			e.flushTick()
		}
	}
}

func (e *Engine) flushTick() {
	start := time.Now()

	preSN := e.GetSN()

	kv := e.kvHandle()
	idx := e.indexHandle()

	if kv == nil || idx == nil {
		return // follower: nothing local to flush
	}

	if err := kv.Flush(); err != nil {
		e.logger.Warn("kv flush failed", zap.Error(err))
	}

	if err := idx.Flush(); err != nil {
		e.logger.Warn("index flush failed", zap.Error(err))
	}

	if err := kv.WriteSN(preSN); err != nil {
		e.logger.Warn("persist kv sn failed", zap.Error(err))
	}

	if err := idx.WriteSN(preSN); err != nil {
		e.logger.Warn("persist index sn failed", zap.Error(err))
	}

	e.metrics.FlushDurationMS.Observe(float64(time.Since(start).Milliseconds()))
}
