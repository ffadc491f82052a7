// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package models

import (
	"fmt"
	"time"
)

// User is a registered account. PasswordHash is a bcrypt hash and never
// leaves the server.
type User struct {
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Favorite is a replay a user saved for later: a driver in a given race.
type Favorite struct {
	ID          string    `json:"id"`
	Username    string    `json:"-"`
	Year        int       `json:"year"`
	Round       int       `json:"round"`
	DriverID    string    `json:"driverId"`
	CircuitName string    `json:"circuitName,omitempty"`
	DateAdded   time.Time `json:"dateAdded"`
}

// FavoriteID derives the identity of a favorite within one user's list.
func FavoriteID(year, round int, driverID string) string {
	return fmt.Sprintf("%d-%d-%s", year, round, driverID)
}
