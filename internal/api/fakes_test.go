// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

package api

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/pitwall/internal/models"
	"github.com/tomtom215/pitwall/internal/openf1"
	"github.com/tomtom215/pitwall/internal/replay"
	"github.com/tomtom215/pitwall/internal/store"
)

var raceStart = time.Date(2023, 9, 17, 12, 0, 0, 0, time.UTC)

// fakeReplay records calls and returns canned results.
type fakeReplay struct {
	mu        sync.Mutex
	startErr  error
	started   [][2]string
	stops     int
	running   bool
	position  *models.Sample
	track     []models.Sample
	trackErr  error
	lastStart *replay.RunInfo
}

func (f *fakeReplay) Start(_ context.Context, sessionID, entityID string) (*replay.RunInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, [2]string{sessionID, entityID})
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.running = true
	f.lastStart = &replay.RunInfo{RunID: "run-1", SessionID: sessionID, EntityID: entityID, StartTime: raceStart}
	return f.lastStart, nil
}

func (f *fakeReplay) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
}

func (f *fakeReplay) CurrentPosition() (models.Sample, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.position == nil {
		return models.Sample{}, false
	}
	return *f.position, true
}

func (f *fakeReplay) TrackShape(context.Context) ([]models.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return nil, replay.ErrNotRunning
	}
	if f.trackErr != nil {
		return nil, f.trackErr
	}
	return f.track, nil
}

func (f *fakeReplay) TrackBounds(ctx context.Context) (models.TrackBounds, error) {
	samples, err := f.TrackShape(ctx)
	if err != nil {
		return models.TrackBounds{}, err
	}
	return models.BoundsOf(samples), nil
}

func (f *fakeReplay) Status() replay.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return replay.Status{State: replay.StateIdle}
	}
	return replay.Status{State: replay.StateRunning, RunID: f.lastStart.RunID, SessionID: f.lastStart.SessionID}
}

// fakeCatalog serves fixed sessions and drivers.
type fakeCatalog struct {
	breaker string
	err     error
}

func (f *fakeCatalog) ResolveSession(_ context.Context, key string) (*models.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	if key != "9161" {
		return nil, fmt.Errorf("resolve %s: %w", key, openf1.ErrSessionNotFound)
	}
	return &models.Session{SessionKey: 9161, SessionName: "Race", Year: 2023, DateStart: raceStart}, nil
}

func (f *fakeCatalog) RacesByYear(_ context.Context, year int) ([]models.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.Session{
		{SessionKey: 9161, SessionName: "Race", Year: year},
		{SessionKey: 9165, SessionName: "Race", Year: year},
	}, nil
}

func (f *fakeCatalog) DriversBySession(_ context.Context, key string) ([]models.Driver, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.Driver{{DriverNumber: 14, NameAcronym: "ALO"}}, nil
}

func (f *fakeCatalog) BreakerState() string {
	if f.breaker == "" {
		return "closed"
	}
	return f.breaker
}

// fakeAccounts keeps users and favorites in maps with plain-text passwords.
type fakeAccounts struct {
	mu        sync.Mutex
	users     map[string]string
	favorites map[string]map[string]models.Favorite
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		users:     map[string]string{},
		favorites: map[string]map[string]models.Favorite{},
	}
}

func (f *fakeAccounts) CreateUser(_ context.Context, username, password string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	username = strings.ToLower(username)
	if _, ok := f.users[username]; ok {
		return nil, store.ErrUserExists
	}
	f.users[username] = password
	return &models.User{Username: username}, nil
}

func (f *fakeAccounts) Authenticate(_ context.Context, username, password string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pw, ok := f.users[strings.ToLower(username)]; !ok || pw != password {
		return nil, store.ErrInvalidCredentials
	}
	return &models.User{Username: strings.ToLower(username)}, nil
}

func (f *fakeAccounts) AddFavorite(_ context.Context, fav *models.Favorite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fav.ID = models.FavoriteID(fav.Year, fav.Round, fav.DriverID)
	fav.DateAdded = raceStart
	if f.favorites[fav.Username] == nil {
		f.favorites[fav.Username] = map[string]models.Favorite{}
	}
	if _, ok := f.favorites[fav.Username][fav.ID]; ok {
		return store.ErrFavoriteExists
	}
	f.favorites[fav.Username][fav.ID] = *fav
	return nil
}

func (f *fakeAccounts) ListFavorites(_ context.Context, username string) ([]models.Favorite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Favorite{}
	for _, fav := range f.favorites[username] {
		out = append(out, fav)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAccounts) RemoveFavorite(_ context.Context, username, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.favorites[username][id]; !ok {
		return store.ErrFavoriteNotFound
	}
	delete(f.favorites[username], id)
	return nil
}
