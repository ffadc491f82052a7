// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package replay

import (
	"math/rand"
	"testing"
	"time"

	"github.com/tomtom215/pitwall/internal/models"
)

var t0 = time.Date(2023, 9, 17, 12, 0, 0, 0, time.UTC)

func at(ms int) models.Sample {
	return models.NewSample(float64(ms), float64(-ms), t0.Add(time.Duration(ms)*time.Millisecond))
}

func TestBufferAppendDropsOutOfOrder(t *testing.T) {
	var b Buffer

	appended, dropped := b.Append([]models.Sample{at(100), at(400), at(300), at(400), at(700)})
	if appended != 3 || dropped != 2 {
		t.Errorf("Append = %d appended, %d dropped; want 3, 2", appended, dropped)
	}

	got := b.Samples()
	want := []int{100, 400, 700}
	if len(got) != len(want) {
		t.Fatalf("buffer = %d samples, want %d", len(got), len(want))
	}
	for i, ms := range want {
		if !got[i].Date.Equal(at(ms).Date) {
			t.Errorf("sample %d at %v, want +%dms", i, got[i].Date, ms)
		}
	}

	// The high-water mark survives draining.
	b.Drain(t0.Add(time.Second))
	if appended, _ := b.Append([]models.Sample{at(500)}); appended != 0 {
		t.Error("sample older than a consumed one was accepted")
	}
}

func TestBufferDrainSelectsLatestDue(t *testing.T) {
	var b Buffer
	b.Append([]models.Sample{at(100), at(400)})

	s, ok := b.Drain(t0.Add(270 * time.Millisecond))
	if !ok || !s.Date.Equal(at(100).Date) {
		t.Fatalf("Drain = %v, %v; want +100ms sample", s.Date, ok)
	}
	if b.Len() != 1 || !b.Samples()[0].Date.Equal(at(400).Date) {
		t.Errorf("remaining = %+v, want only +400ms", b.Samples())
	}

	if _, ok := b.Drain(t0.Add(300 * time.Millisecond)); ok {
		t.Error("Drain selected a sample from the future")
	}
	if b.Len() != 1 {
		t.Errorf("Len = %d after empty drain, want 1", b.Len())
	}
}

func TestBufferDrainSupersedesOlderSamples(t *testing.T) {
	var b Buffer
	b.Append([]models.Sample{at(10), at(20), at(30), at(270), at(280)})

	s, ok := b.Drain(t0.Add(270 * time.Millisecond))
	if !ok || !s.Date.Equal(at(270).Date) {
		t.Fatalf("Drain = %v, want +270ms (date equal to clock qualifies)", s.Date)
	}
	if b.Len() != 1 {
		t.Errorf("Len = %d, want 1", b.Len())
	}
}

func TestBufferDrainEmpty(t *testing.T) {
	var b Buffer
	if _, ok := b.Drain(t0); ok {
		t.Error("Drain on empty buffer returned a sample")
	}
	b.Append([]models.Sample{at(1)})
	b.Reset()
	if b.Len() != 0 {
		t.Error("Reset left samples behind")
	}
	if appended, _ := b.Append([]models.Sample{at(0)}); appended != 1 {
		t.Error("Reset did not clear the high-water mark")
	}
}

// After any tick the buffer holds only samples newer than the position.
func TestBufferInvariantAfterDrain(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		var b Buffer
		var current models.Sample
		var hasCurrent bool
		clock := t0

		for step := 0; step < 30; step++ {
			batch := make([]models.Sample, rng.Intn(6))
			for i := range batch {
				batch[i] = at(rng.Intn(10000))
			}
			b.Append(batch)

			clock = clock.Add(time.Duration(rng.Intn(600)) * time.Millisecond)
			if s, ok := b.Drain(clock); ok {
				current, hasCurrent = s, true
			}

			for _, s := range b.Samples() {
				if !s.Date.After(clock) {
					t.Fatalf("round %d: sample %v not after clock %v", round, s.Date, clock)
				}
				if hasCurrent && !s.Date.After(current.Date) {
					t.Fatalf("round %d: sample %v not after position %v", round, s.Date, current.Date)
				}
			}
		}
	}
}
