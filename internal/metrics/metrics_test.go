// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/replay/current-position", "200"))

	RecordAPIRequest("GET", "/api/v1/replay/current-position", "200", 3*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/replay/current-position", "200"))
	if after-before != 1 {
		t.Errorf("api_requests_total delta = %v, want 1", after-before)
	}

	h, ok := APIRequestDuration.WithLabelValues("GET", "/api/v1/replay/current-position").(interface {
		Write(*dto.Metric) error
	})
	if !ok {
		t.Fatal("histogram does not expose Write")
	}
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.GetHistogram().GetSampleCount() == 0 {
		t.Error("expected at least one duration observation")
	}
}

func TestTrackActiveRequest(t *testing.T) {
	base := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests) - base; got != 2 {
		t.Errorf("active delta = %v, want 2", got)
	}
	TrackActiveRequest(false)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != base {
		t.Errorf("active = %v, want %v", got, base)
	}
}

func TestRecordReplayFetch(t *testing.T) {
	beforeOutcome := testutil.ToFloat64(ReplayFetches.WithLabelValues("samples"))
	beforeBuffered := testutil.ToFloat64(ReplaySamplesBuffered)
	beforeDropped := testutil.ToFloat64(ReplaySamplesDropped)

	RecordReplayFetch("samples", 15, 1)

	if got := testutil.ToFloat64(ReplayFetches.WithLabelValues("samples")) - beforeOutcome; got != 1 {
		t.Errorf("fetch outcome delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ReplaySamplesBuffered) - beforeBuffered; got != 15 {
		t.Errorf("buffered delta = %v, want 15", got)
	}
	if got := testutil.ToFloat64(ReplaySamplesDropped) - beforeDropped; got != 1 {
		t.Errorf("dropped delta = %v, want 1", got)
	}
}

func TestRecordReplayTick(t *testing.T) {
	beforeTicks := testutil.ToFloat64(ReplayTicks)
	beforeUpdates := testutil.ToFloat64(ReplayPositionUpdates)

	RecordReplayTick(true, 7, 3500*time.Millisecond)
	RecordReplayTick(false, 6, 3*time.Second)

	if got := testutil.ToFloat64(ReplayTicks) - beforeTicks; got != 2 {
		t.Errorf("ticks delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(ReplayPositionUpdates) - beforeUpdates; got != 1 {
		t.Errorf("position updates delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ReplayBufferSize); got != 6 {
		t.Errorf("buffer gauge = %v, want 6", got)
	}
	if got := testutil.ToFloat64(ReplayLeadSeconds); got != 3 {
		t.Errorf("lead gauge = %v, want 3", got)
	}
}

func TestSetRunActive(t *testing.T) {
	SetRunActive(true)
	if got := testutil.ToFloat64(ReplayRunActive); got != 1 {
		t.Errorf("run active = %v, want 1", got)
	}
	ReplayBufferSize.Set(12)
	SetRunActive(false)
	if got := testutil.ToFloat64(ReplayRunActive); got != 0 {
		t.Errorf("run active = %v, want 0", got)
	}
	if got := testutil.ToFloat64(ReplayBufferSize); got != 0 {
		t.Errorf("buffer gauge should reset on stop, got %v", got)
	}
}

func TestRecordOpenF1Request(t *testing.T) {
	before := testutil.ToFloat64(OpenF1RequestsTotal.WithLabelValues("location", "rate_limited"))
	RecordOpenF1Request("location", "rate_limited", 40*time.Millisecond)
	if got := testutil.ToFloat64(OpenF1RequestsTotal.WithLabelValues("location", "rate_limited")) - before; got != 1 {
		t.Errorf("openf1 requests delta = %v, want 1", got)
	}
}
