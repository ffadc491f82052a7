// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package replay

import (
	"time"

	"github.com/tomtom215/pitwall/internal/models"
)

// Buffer is the time-ordered queue of samples between the producer and the
// consumer. It is not safe for concurrent use; Run guards it.
//
// Every retained sample is strictly newer than anything consumed before it:
// Append drops samples that are not after the newest date seen so far.
type Buffer struct {
	samples   []models.Sample
	highWater time.Time
}

// Append adds samples at the tail and returns how many were kept and how
// many were dropped for breaking time order.
func (b *Buffer) Append(samples []models.Sample) (appended, dropped int) {
	for _, s := range samples {
		if !b.highWater.IsZero() && !s.Date.After(b.highWater) {
			dropped++
			continue
		}
		b.samples = append(b.samples, s)
		b.highWater = s.Date
		appended++
	}
	return appended, dropped
}

// Drain returns the newest sample dated at or before clock and discards it
// together with everything older. Samples after clock stay queued.
func (b *Buffer) Drain(clock time.Time) (models.Sample, bool) {
	idx := -1
	for i, s := range b.samples {
		if s.Date.After(clock) {
			break
		}
		idx = i
	}
	if idx < 0 {
		return models.Sample{}, false
	}

	selected := b.samples[idx]
	clear(b.samples[:idx+1])
	b.samples = b.samples[idx+1:]
	if len(b.samples) == 0 {
		b.samples = nil
	}
	return selected, true
}

// Len returns the number of queued samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// Samples returns a copy of the queued samples, oldest first.
func (b *Buffer) Samples() []models.Sample {
	out := make([]models.Sample, len(b.samples))
	copy(out, b.samples)
	return out
}

// Reset empties the buffer and forgets the high-water mark.
func (b *Buffer) Reset() {
	b.samples = nil
	b.highWater = time.Time{}
}
