// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package models

import "time"

// Session is an OpenF1 session (practice, qualifying, race...).
type Session struct {
	SessionKey       int       `json:"session_key"`
	MeetingKey       int       `json:"meeting_key"`
	SessionName      string    `json:"session_name"`
	SessionType      string    `json:"session_type"`
	DateStart        time.Time `json:"date_start"`
	DateEnd          time.Time `json:"date_end"`
	Year             int       `json:"year"`
	Location         string    `json:"location,omitempty"`
	CountryName      string    `json:"country_name,omitempty"`
	CircuitKey       int       `json:"circuit_key,omitempty"`
	CircuitShortName string    `json:"circuit_short_name,omitempty"`
	GMTOffset        string    `json:"gmt_offset,omitempty"`
}

// Driver is an OpenF1 driver entry for one session.
type Driver struct {
	DriverNumber  int    `json:"driver_number"`
	BroadcastName string `json:"broadcast_name"`
	FullName      string `json:"full_name"`
	NameAcronym   string `json:"name_acronym"`
	TeamName      string `json:"team_name"`
	TeamColour    string `json:"team_colour"`
	HeadshotURL   string `json:"headshot_url,omitempty"`
	CountryCode   string `json:"country_code,omitempty"`
	SessionKey    int    `json:"session_key"`
	MeetingKey    int    `json:"meeting_key"`
}

// TrackBounds is the bounding box of a track shape, used by map clients
// to scale positions into their viewport.
type TrackBounds struct {
	MinX   float64 `json:"minX"`
	MaxX   float64 `json:"maxX"`
	MinY   float64 `json:"minY"`
	MaxY   float64 `json:"maxY"`
	Points int     `json:"points"`
}

// BoundsOf computes the bounding box of samples. Points is 0 and the box
// is empty for an empty slice.
func BoundsOf(samples []Sample) TrackBounds {
	if len(samples) == 0 {
		return TrackBounds{}
	}
	b := TrackBounds{
		MinX:   samples[0].X,
		MaxX:   samples[0].X,
		MinY:   samples[0].Y,
		MaxY:   samples[0].Y,
		Points: len(samples),
	}
	for _, s := range samples[1:] {
		b.MinX = min(b.MinX, s.X)
		b.MaxX = max(b.MaxX, s.X)
		b.MinY = min(b.MinY, s.Y)
		b.MaxY = max(b.MaxY, s.Y)
	}
	return b
}
