// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

// maxRequestBodySize bounds every JSON request body.
const maxRequestBodySize = 64 * 1024

// FlexibleID is an identifier that clients may send as a JSON string or
// number. It always holds the decimal text form.
type FlexibleID string

// UnmarshalJSON accepts "9161", 9161 and null.
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}

	if len(data) == 0 || (data[0] != '-' && (data[0] < '0' || data[0] > '9')) {
		return fmt.Errorf("identifier must be a string or number, got %s", data)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// StartRequest starts a replay. The legacy snake_case names are accepted
// as fallbacks.
type StartRequest struct {
	SessionID FlexibleID `json:"sessionId" validate:"required,openf1key"`
	EntityID  FlexibleID `json:"entityId" validate:"required,numeric,max=3"`

	SessionKey   FlexibleID `json:"session_key" validate:"-"`
	DriverNumber FlexibleID `json:"driver_number" validate:"-"`
}

// normalize fills the canonical fields from the legacy ones.
func (r *StartRequest) normalize() {
	if r.SessionID == "" {
		r.SessionID = r.SessionKey
	}
	if r.EntityID == "" {
		r.EntityID = r.DriverNumber
	}
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// FavoriteRequest saves a driver in a race.
type FavoriteRequest struct {
	Year        int    `json:"year" validate:"gte=1950,lte=2100"`
	Round       int    `json:"round" validate:"gte=1,lte=30"`
	DriverID    string `json:"driverId" validate:"required,max=64,username"`
	CircuitName string `json:"circuitName" validate:"max=128"`
}

// errEmptyBody is returned by decodeJSON for an empty body when one is
// required.
var errEmptyBody = errors.New("request body is empty")

// decodeJSON decodes a bounded JSON body into dst. An empty body is an
// error unless allowEmpty is set.
func decodeJSON(r *http.Request, dst interface{}, allowEmpty bool) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxRequestBodySize {
		return fmt.Errorf("request body exceeds %d bytes", maxRequestBodySize)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if allowEmpty {
			return nil
		}
		return errEmptyBody
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
