// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

// Package models holds the data types shared across Pitwall packages:
// telemetry samples, OpenF1 session and driver metadata, track bounds,
// user accounts and favorites.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ErrInvalidSample is returned when a location entry lacks a usable date.
var ErrInvalidSample = errors.New("invalid telemetry sample")

// Sample is one timestamped car position as delivered by the upstream
// location feed. X, Y and Date are decoded for the replay engine; every
// other upstream field (z, driver_number, session_key, meeting_key...) is
// kept verbatim and re-emitted unchanged by MarshalJSON.
//
// A Sample is immutable once decoded.
type Sample struct {
	X    float64
	Y    float64
	Date time.Time

	raw map[string]json.RawMessage
}

// NewSample builds a sample with no extra upstream fields.
func NewSample(x, y float64, date time.Time) Sample {
	return Sample{X: x, Y: y, Date: date}
}

// Field returns an upstream field exactly as received.
func (s Sample) Field(name string) (json.RawMessage, bool) {
	v, ok := s.raw[name]
	return v, ok
}

// UnmarshalJSON decodes an upstream location object.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	rawDate, ok := fields["date"]
	if !ok {
		return fmt.Errorf("%w: missing date", ErrInvalidSample)
	}
	var dateStr string
	if err := json.Unmarshal(rawDate, &dateStr); err != nil {
		return fmt.Errorf("%w: date is not a string", ErrInvalidSample)
	}
	date, err := time.Parse(time.RFC3339Nano, dateStr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}

	var x, y float64
	if v, ok := fields["x"]; ok {
		if err := json.Unmarshal(v, &x); err != nil {
			return fmt.Errorf("%w: x: %v", ErrInvalidSample, err)
		}
	}
	if v, ok := fields["y"]; ok {
		if err := json.Unmarshal(v, &y); err != nil {
			return fmt.Errorf("%w: y: %v", ErrInvalidSample, err)
		}
	}

	*s = Sample{X: x, Y: y, Date: date, raw: fields}
	return nil
}

// MarshalJSON re-emits the upstream object, or a minimal {x, y, date}
// object for samples built locally.
func (s Sample) MarshalJSON() ([]byte, error) {
	if s.raw != nil {
		return json.Marshal(s.raw)
	}
	return json.Marshal(struct {
		X    float64 `json:"x"`
		Y    float64 `json:"y"`
		Date string  `json:"date"`
	}{s.X, s.Y, s.Date.UTC().Format(time.RFC3339Nano)})
}
