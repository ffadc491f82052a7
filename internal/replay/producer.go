// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package replay

import (
	"context"
	"time"

	"github.com/tomtom215/pitwall/internal/metrics"
	"github.com/tomtom215/pitwall/internal/openf1"
)

// Producer outcomes, also used as metric labels.
const (
	outcomeSamples     = "samples"
	outcomeGap         = "gap"
	outcomeRateLimited = "rate_limited"
	outcomeError       = "error"
	outcomeDiscarded   = "discarded"
	outcomeLead        = "lead"
	outcomeBufferFull  = "buffer_full"
	outcomeStopped     = "stopped"
)

// produce runs the self-rescheduling fetch loop of run. Each step decides
// the delay before the next one, so steps never overlap.
func (e *Engine) produce(ctx context.Context, run *Run) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delay, outcome := e.produceOnce(ctx, run)
		if outcome == outcomeStopped || outcome == outcomeDiscarded {
			return
		}
		timer.Reset(delay)
	}
}

// produceOnce performs one producer step and returns the delay before the
// next step together with what happened.
func (e *Engine) produceOnce(ctx context.Context, run *Run) (time.Duration, string) {
	run.mu.Lock()
	if run.stopped {
		run.mu.Unlock()
		return 0, outcomeStopped
	}

	lead := run.fetchClock.Sub(run.simClock)
	if lead > e.cfg.LeadCeiling {
		run.mu.Unlock()
		metrics.ReplayBackpressure.WithLabelValues(outcomeLead).Inc()
		return e.cfg.CooldownDelay, outcomeLead
	}
	if e.cfg.MaxBufferSize > 0 && run.buffer.Len() >= e.cfg.MaxBufferSize {
		size := run.buffer.Len()
		run.mu.Unlock()
		metrics.ReplayBackpressure.WithLabelValues(outcomeBufferFull).Inc()
		run.logger.Warn().Int("buffer_size", size).Int("max_buffer_size", e.cfg.MaxBufferSize).Msg("Replay buffer full, pausing fetches")
		return e.cfg.CooldownDelay, outcomeBufferFull
	}

	from := run.fetchClock
	to := from.Add(e.cfg.BlockDuration)
	run.mu.Unlock()

	// Stopping the run must not abort the request; the gateway bounds it.
	samples, err := e.source.Locations(context.WithoutCancel(ctx), openf1.LocationQuery{
		SessionKey:   run.info.SessionID,
		DriverNumber: run.info.EntityID,
		From:         from,
		To:           to,
	})

	run.mu.Lock()
	defer run.mu.Unlock()

	if run.stopped {
		metrics.RecordReplayFetch(outcomeDiscarded, 0, 0)
		return 0, outcomeDiscarded
	}

	switch {
	case openf1.IsRateLimited(err):
		delay := max(e.cfg.RateLimitBackoff, openf1.RetryAfter(err))
		metrics.RecordReplayFetch(outcomeRateLimited, 0, 0)
		run.logger.Warn().Dur("backoff", delay).Time("window_start", from).Msg("OpenF1 rate limit hit, backing off")
		return delay, outcomeRateLimited

	case err != nil:
		metrics.RecordReplayFetch(outcomeError, 0, 0)
		run.logger.Warn().Err(err).Time("window_start", from).Msg("Location fetch failed, retrying")
		return e.cfg.ErrorBackoff, outcomeError

	case len(samples) == 0:
		run.fetchClock = to
		metrics.RecordReplayFetch(outcomeGap, 0, 0)
		run.logger.Debug().Time("window_start", from).Msg("No samples in window")
		return e.cfg.GapDelay, outcomeGap

	default:
		appended, dropped := run.buffer.Append(samples)
		run.fetchClock = to
		metrics.RecordReplayFetch(outcomeSamples, appended, dropped)
		if dropped > 0 {
			run.logger.Debug().Int("dropped", dropped).Msg("Dropped out-of-order samples")
		}
		return e.cfg.FetchDelay, outcomeSamples
	}
}
