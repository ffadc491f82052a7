// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package replay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/pitwall/internal/models"
)

// RunInfo identifies a run and its resolved start time.
type RunInfo struct {
	RunID     string          `json:"runId"`
	SessionID string          `json:"sessionId"`
	EntityID  string          `json:"entityId"`
	StartTime time.Time       `json:"startTime"`
	Session   *models.Session `json:"session,omitempty"`
}

// Run is one start-to-stop replay of an entity within a session. The
// producer and consumer goroutines share it; mu guards everything below it.
type Run struct {
	info   RunInfo
	cancel context.CancelFunc
	logger zerolog.Logger

	mu         sync.Mutex
	stopped    bool
	simClock   time.Time
	fetchClock time.Time
	buffer     Buffer
	current    models.Sample
	hasCurrent bool

	track trackCache
}

func newRun(info RunInfo, cancel context.CancelFunc, logger zerolog.Logger) *Run {
	return &Run{
		info:       info,
		cancel:     cancel,
		logger:     logger,
		simClock:   info.StartTime,
		fetchClock: info.StartTime,
	}
}

// stop detaches the run: loops exit, pending results are discarded and all
// run state is released. Safe to call more than once.
func (r *Run) stop() bool {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	r.stopped = true
	r.simClock = time.Time{}
	r.fetchClock = time.Time{}
	r.buffer.Reset()
	r.current = models.Sample{}
	r.hasCurrent = false
	r.mu.Unlock()

	r.cancel()
	return true
}

// isStopped reports whether stop has been called.
func (r *Run) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// position returns the current position, if one has been set.
func (r *Run) position() (models.Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || !r.hasCurrent {
		return models.Sample{}, false
	}
	return r.current, true
}

// trackCache memoizes the track-shape window of a run. mu is held across
// the upstream call so concurrent first requests share one fetch; loaded
// can be read without waiting on it.
type trackCache struct {
	mu      sync.Mutex
	samples []models.Sample
	loaded  atomic.Bool
}

func (t *trackCache) get(fetch func() ([]models.Sample, error)) ([]models.Sample, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.loaded.Load() {
		return t.samples, true, nil
	}
	samples, err := fetch()
	if err != nil {
		return nil, false, err
	}
	t.samples = samples
	t.loaded.Store(true)
	return samples, false, nil
}
