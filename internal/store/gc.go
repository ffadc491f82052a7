// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/pitwall/internal/logging"
)

// gcDiscardRatio is the value-log discard ratio passed to Badger.
const gcDiscardRatio = 0.5

// RunGC rewrites value-log files until Badger reports nothing left to
// reclaim. In-memory stores have no value log and return immediately.
func (s *Store) RunGC() error {
	if s.inMemory {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	for {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Serve runs value-log GC every gc interval until ctx is done. It lets the
// store run under a suture supervisor.
func (s *Store) Serve(ctx context.Context) error {
	if s.inMemory || s.gcInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.RunGC(); err != nil {
				logging.Warn().Str("component", "store").Err(err).Msg("Value log GC failed")
				continue
			}
			logging.Debug().Str("component", "store").Dur("duration", time.Since(start)).Msg("Value log GC complete")
		}
	}
}

// String names the service in supervisor logs.
func (s *Store) String() string {
	return "badger-store"
}
