// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

// Package replay turns windowed historical position queries into a
// fixed-cadence live feed.
//
// A Run pairs two goroutines around one Buffer:
//
//   - the producer fetches small forward windows from the upstream,
//     rescheduling itself on buffer lead and rate-limit feedback;
//   - the consumer ticks at a fixed period, advancing a simulation clock
//     and publishing the newest sample the clock has passed.
//
// The Engine owns at most one Run. Start replaces the active run, Stop
// detaches it; both are idempotent with respect to run state. The last
// call wins when a Start is still resolving its session.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/pitwall/internal/config"
	"github.com/tomtom215/pitwall/internal/logging"
	"github.com/tomtom215/pitwall/internal/metrics"
	"github.com/tomtom215/pitwall/internal/models"
	"github.com/tomtom215/pitwall/internal/openf1"
)

// ErrNotRunning is returned by run-scoped operations when no run is active.
var ErrNotRunning = errors.New("replay not running")

// ErrNoStartTime is returned by Start when the session has no start date.
var ErrNoStartTime = errors.New("session has no start time")

// ErrStartSuperseded is returned by Start when a Stop or a later Start
// arrived while the session was being resolved.
var ErrStartSuperseded = errors.New("replay start superseded")

// Source is the upstream the engine replays from. *openf1.Client
// satisfies it.
type Source interface {
	ResolveSession(ctx context.Context, sessionKey string) (*models.Session, error)
	Locations(ctx context.Context, q openf1.LocationQuery) ([]models.Sample, error)
}

// Observer is notified of run lifecycle and position changes. Calls are
// made outside engine locks, from the goroutine that caused the change.
type Observer interface {
	RunStarted(info RunInfo)
	PositionChanged(runID string, sample models.Sample)
	RunStopped(runID string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// Engine is the replay session state machine: Idle until Start, Running
// until Stop or the next Start.
type Engine struct {
	source    Source
	cfg       config.ReplayConfig
	logger    zerolog.Logger
	observers []Observer

	// launch starts the run loops; tests replace it to drive them by hand.
	launch func(ctx context.Context, run *Run)

	// mu serializes run installation and teardown. It is not held while a
	// Start resolves its session.
	mu sync.Mutex
	// gen counts Start and Stop calls; a Start whose generation moved on
	// while resolving discards its result.
	gen           uint64
	cancelPending context.CancelFunc

	// runMu guards run so readers never wait behind a Start in progress.
	runMu sync.RWMutex
	run   *Run

	wg sync.WaitGroup
}

// New creates an idle engine.
func New(source Source, cfg config.ReplayConfig, opts ...Option) *Engine {
	e := &Engine{
		source: source,
		cfg:    cfg,
		logger: logging.WithComponent("replay"),
	}
	e.launch = e.launchLoops
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start stops any active run, resolves the session start time and begins
// replaying entityID from it. The run is keyed by the resolved numeric
// session key, so aliases such as "latest" are pinned at start. On error
// no run is left behind.
//
// Stop and later Starts do not wait for the resolve; they cancel it and
// this call returns ErrStartSuperseded.
func (e *Engine) Start(ctx context.Context, sessionID, entityID string) (*RunInfo, error) {
	e.mu.Lock()
	gen := e.supersedeLocked()
	e.stopLocked()
	resolveCtx, cancelResolve := context.WithCancel(ctx)
	e.cancelPending = cancelResolve
	e.mu.Unlock()
	defer cancelResolve()

	session, err := e.source.ResolveSession(resolveCtx, sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return nil, ErrStartSuperseded
	}
	e.cancelPending = nil
	if err != nil {
		return nil, fmt.Errorf("resolve session %s: %w", sessionID, err)
	}
	if session.DateStart.IsZero() {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNoStartTime)
	}

	info := RunInfo{
		RunID:     uuid.New().String(),
		SessionID: strconv.Itoa(session.SessionKey),
		EntityID:  entityID,
		StartTime: session.DateStart.UTC(),
		Session:   session,
	}

	runCtx, cancel := context.WithCancel(logging.ContextWithRunID(context.Background(), info.RunID))
	run := newRun(info, cancel, e.logger.With().
		Str("run_id", info.RunID).
		Str("session_id", info.SessionID).
		Str("requested_session", sessionID).
		Str("entity_id", entityID).
		Logger())

	e.runMu.Lock()
	e.run = run
	e.runMu.Unlock()

	e.launch(runCtx, run)

	metrics.ReplayRunsStarted.Inc()
	metrics.SetRunActive(true)
	run.logger.Info().Time("start_time", info.StartTime).Msg("Replay started")

	for _, o := range e.observers {
		o.RunStarted(info)
	}
	return &info, nil
}

// Stop ends the active run, if any. In-flight upstream requests are left
// to finish on their own deadline and their results discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.supersedeLocked()
	e.stopLocked()
}

// supersedeLocked invalidates any Start still resolving and returns the
// new generation.
func (e *Engine) supersedeLocked() uint64 {
	e.gen++
	if e.cancelPending != nil {
		e.cancelPending()
		e.cancelPending = nil
	}
	return e.gen
}

func (e *Engine) stopLocked() {
	e.runMu.Lock()
	run := e.run
	e.run = nil
	e.runMu.Unlock()

	if run == nil || !run.stop() {
		return
	}

	metrics.SetRunActive(false)
	run.logger.Info().Msg("Replay stopped")
	for _, o := range e.observers {
		o.RunStopped(run.info.RunID)
	}
}

func (e *Engine) active() *Run {
	e.runMu.RLock()
	defer e.runMu.RUnlock()
	return e.run
}

// Running reports whether a run is active.
func (e *Engine) Running() bool {
	return e.active() != nil
}

// CurrentPosition returns the latest replayed sample. It never blocks on
// the upstream.
func (e *Engine) CurrentPosition() (models.Sample, bool) {
	run := e.active()
	if run == nil {
		return models.Sample{}, false
	}
	return run.position()
}

// TrackShape returns the samples of the first track window of the active
// run, fetching them once. The returned slice must not be modified.
func (e *Engine) TrackShape(ctx context.Context) ([]models.Sample, error) {
	run := e.active()
	if run == nil {
		return nil, ErrNotRunning
	}

	samples, hit, err := run.track.get(func() ([]models.Sample, error) {
		return e.source.Locations(ctx, openf1.LocationQuery{
			SessionKey:   run.info.SessionID,
			DriverNumber: run.info.EntityID,
			From:         run.info.StartTime,
			To:           run.info.StartTime.Add(e.cfg.TrackWindow),
		})
	})
	if err != nil {
		metrics.ReplayTrackShapeFetches.WithLabelValues("failure").Inc()
		run.logger.Warn().Err(err).Msg("Track shape fetch failed")
		return nil, fmt.Errorf("track shape: %w", err)
	}
	if !hit {
		metrics.ReplayTrackShapeFetches.WithLabelValues("success").Inc()
		run.logger.Debug().Int("samples", len(samples)).Msg("Track shape cached")
	}
	return samples, nil
}

// TrackBounds returns the bounding box of the track shape.
func (e *Engine) TrackBounds(ctx context.Context) (models.TrackBounds, error) {
	samples, err := e.TrackShape(ctx)
	if err != nil {
		return models.TrackBounds{}, err
	}
	return models.BoundsOf(samples), nil
}

// Status is a point-in-time view of the engine.
type Status struct {
	State           string          `json:"state"`
	RunID           string          `json:"runId,omitempty"`
	SessionID       string          `json:"sessionId,omitempty"`
	EntityID        string          `json:"entityId,omitempty"`
	Session         *models.Session `json:"session,omitempty"`
	StartTime       *time.Time      `json:"startTime,omitempty"`
	SimulationClock *time.Time      `json:"simulationClock,omitempty"`
	FetchClock      *time.Time      `json:"fetchClock,omitempty"`
	LeadMs          int64           `json:"leadMs"`
	BufferLength    int             `json:"bufferLength"`
	HasPosition     bool            `json:"hasPosition"`
	TrackCached     bool            `json:"trackCached"`
}

const (
	StateIdle    = "idle"
	StateRunning = "running"
)

// Status reports the engine state.
func (e *Engine) Status() Status {
	run := e.active()
	if run == nil {
		return Status{State: StateIdle}
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	if run.stopped {
		return Status{State: StateIdle}
	}

	start := run.info.StartTime
	sim := run.simClock
	fetch := run.fetchClock
	return Status{
		State:           StateRunning,
		RunID:           run.info.RunID,
		SessionID:       run.info.SessionID,
		EntityID:        run.info.EntityID,
		Session:         run.info.Session,
		StartTime:       &start,
		SimulationClock: &sim,
		FetchClock:      &fetch,
		LeadMs:          fetch.Sub(sim).Milliseconds(),
		BufferLength:    run.buffer.Len(),
		HasPosition:     run.hasCurrent,
		TrackCached:     run.track.loaded.Load(),
	}
}

// Serve blocks until ctx is done, then stops the active run and waits for
// its goroutines. It lets the engine run under a suture supervisor.
func (e *Engine) Serve(ctx context.Context) error {
	e.logger.Info().Msg("Replay engine ready")
	<-ctx.Done()

	e.Stop()
	e.wg.Wait()
	e.logger.Info().Msg("Replay engine stopped")
	return ctx.Err()
}

// String names the service in supervisor logs.
func (e *Engine) String() string {
	return "replay-engine"
}

func (e *Engine) launchLoops(ctx context.Context, run *Run) {
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.produce(ctx, run)
	}()
	go func() {
		defer e.wg.Done()
		e.consume(ctx, run)
	}()
}

func (e *Engine) notifyPosition(run *Run, s models.Sample) {
	for _, o := range e.observers {
		o.PositionChanged(run.info.RunID, s)
	}
}
