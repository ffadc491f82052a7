// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package replay

import (
	"context"
	"time"

	"github.com/tomtom215/pitwall/internal/metrics"
)

// consume advances the simulation clock of run once per tick period.
func (e *Engine) consume(ctx context.Context, run *Run) {
	ticker := time.NewTicker(e.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(run)
		}
	}
}

// tick advances the simulation clock by one period and publishes the
// newest buffered sample the clock has reached. With nothing due, the
// previous position is held.
func (e *Engine) tick(run *Run) {
	run.mu.Lock()
	if run.stopped || run.simClock.IsZero() {
		run.mu.Unlock()
		return
	}

	run.simClock = run.simClock.Add(e.cfg.TickPeriod)
	sample, ok := run.buffer.Drain(run.simClock)
	if ok {
		run.current = sample
		run.hasCurrent = true
	}
	size := run.buffer.Len()
	lead := run.fetchClock.Sub(run.simClock)
	run.mu.Unlock()

	metrics.RecordReplayTick(ok, size, lead)
	if ok {
		e.notifyPosition(run, sample)
	}
}
