// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

// Package supervisor builds the suture process tree that owns every
// long-running Pitwall service.
//
//	pitwall
//	├── storage-layer    badger GC loop (accounts enabled only)
//	├── streaming-layer  websocket hub, replay engine
//	└── api-layer        HTTP server
//
// A panic or error in one layer restarts only that layer's children.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds restart and shutdown tuning for every supervisor in
// the tree. Zero fields take the suture defaults.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig returns suture's built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay <= 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) spec() suture.Spec {
	return suture.Spec{
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// Tree is the root supervisor plus its three layers.
type Tree struct {
	root      *suture.Supervisor
	storage   *suture.Supervisor
	streaming *suture.Supervisor
	api       *suture.Supervisor
	config    TreeConfig
}

// NewTree builds the tree. Supervisor events (restarts, backoff, panics)
// are logged through logger.
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	config = config.withDefaults()

	rootSpec := config.spec()
	// MustHook has a pointer receiver.
	rootSpec.EventHook = (&sutureslog.Handler{Logger: logger}).MustHook()

	t := &Tree{
		root:      suture.New("pitwall", rootSpec),
		storage:   suture.New("storage-layer", config.spec()),
		streaming: suture.New("streaming-layer", config.spec()),
		api:       suture.New("api-layer", config.spec()),
		config:    config,
	}
	t.root.Add(t.storage)
	t.root.Add(t.streaming)
	t.root.Add(t.api)
	return t
}

// AddStorageService supervises a persistence service.
func (t *Tree) AddStorageService(svc suture.Service) suture.ServiceToken {
	return t.storage.Add(svc)
}

// AddStreamingService supervises a service that produces or fans out
// replay positions.
func (t *Tree) AddStreamingService(svc suture.Service) suture.ServiceToken {
	return t.streaming.Add(svc)
}

// AddAPIService supervises an externally facing listener.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in its own goroutine. The returned
// channel yields the root's exit error.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that outlived ShutdownTimeout.
// Only meaningful after Serve has returned.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
