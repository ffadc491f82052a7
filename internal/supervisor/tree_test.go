// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingService struct {
	name    string
	starts  atomic.Int32
	failFor int32
	started chan struct{}
}

func newCountingService(name string, failFor int32) *countingService {
	return &countingService{name: name, failFor: failFor, started: make(chan struct{}, 16)}
}

func (s *countingService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	select {
	case s.started <- struct{}{}:
	default:
	}
	if n <= s.failFor {
		return errors.New("boom")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return s.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitStarted(t *testing.T, s *countingService) {
	t.Helper()
	select {
	case <-s.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s never started", s.name)
	}
}

func TestTreeConfigDefaults(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{FailureBackoff: time.Second})
	if tree.config.FailureThreshold != 5 || tree.config.FailureDecay != 30 {
		t.Errorf("threshold/decay = %v/%v", tree.config.FailureThreshold, tree.config.FailureDecay)
	}
	if tree.config.FailureBackoff != time.Second {
		t.Errorf("explicit backoff overwritten: %v", tree.config.FailureBackoff)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v", tree.config.ShutdownTimeout)
	}
}

func TestTreeRunsEveryLayer(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	storage := newCountingService("storage", 0)
	streaming := newCountingService("streaming", 0)
	api := newCountingService("api", 0)
	tree.AddStorageService(storage)
	tree.AddStreamingService(streaming)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	waitStarted(t, storage)
	waitStarted(t, streaming)
	waitStarted(t, api)

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("tree exit = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}

	report, err := tree.UnstoppedServiceReport()
	if err != nil {
		t.Fatalf("UnstoppedServiceReport: %v", err)
	}
	if len(report) != 0 {
		t.Errorf("unstopped services: %v", report)
	}
}

func TestTreeRestartsFailedService(t *testing.T) {
	tree := NewTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	flaky := newCountingService("flaky", 2)
	steady := newCountingService("steady", 0)
	tree.AddStreamingService(flaky)
	tree.AddAPIService(steady)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	deadline := time.After(3 * time.Second)
	for flaky.starts.Load() < 3 {
		select {
		case <-flaky.started:
		case <-deadline:
			t.Fatalf("flaky started %d times, want 3", flaky.starts.Load())
		}
	}
	if got := steady.starts.Load(); got != 1 {
		t.Errorf("sibling layer restarted: %d starts", got)
	}

	cancel()
	<-errCh
}
