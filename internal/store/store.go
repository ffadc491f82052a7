// Pitwall - Telemetry Replay Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pitwall

// Package store persists user accounts and their favorite replays in an
// embedded BadgerDB.
//
// Key layout:
//
//	user:<username>                 models.User
//	fav:<username>:<favorite id>    models.Favorite
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/pitwall/internal/config"
	"github.com/tomtom215/pitwall/internal/logging"
	"github.com/tomtom215/pitwall/internal/models"
)

// Key prefixes
const (
	userKeyPrefix     = "user:"
	favoriteKeyPrefix = "fav:"
)

// bcryptCost is the production password hashing cost.
const bcryptCost = 12

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrFavoriteExists     = errors.New("favorite already exists")
	ErrFavoriteNotFound   = errors.New("favorite not found")
	ErrClosed             = errors.New("store is closed")
)

// Store is the Badger-backed account and favorites store.
type Store struct {
	db         *badger.DB
	inMemory   bool
	gcInterval time.Duration
	bcryptCost int
	now        func() time.Time

	// dummyHash keeps the cost of a login for an unknown user comparable
	// to a wrong password for a known one.
	dummyHash []byte

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store described by cfg.
func Open(cfg config.StoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &Store{
		db:         db,
		inMemory:   cfg.InMemory,
		gcInterval: cfg.GCInterval,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}

	logging.Info().
		Str("component", "store").
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Store opened")
	return s, nil
}

// Close closes the database. Further calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	return nil
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Update(fn)
}

func userKey(username string) []byte {
	return []byte(userKeyPrefix + strings.ToLower(username))
}

func favoritePrefix(username string) []byte {
	return []byte(favoriteKeyPrefix + strings.ToLower(username) + ":")
}

func favoriteKey(username, id string) []byte {
	return append(favoritePrefix(username), id...)
}

// CreateUser registers a new account with a bcrypt-hashed password.
// Usernames are case-insensitive.
func (s *Store) CreateUser(ctx context.Context, username, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}

	err = s.update(func(txn *badger.Txn) error {
		key := userKey(username)
		_, err := txn.Get(key)
		if err == nil {
			return ErrUserExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get user: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser returns the account for username, or ErrInvalidCredentials.
func (s *Store) GetUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.view(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrInvalidCredentials
		}
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate checks a username and password pair.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetUser(ctx, username)
	if errors.Is(err, ErrInvalidCredentials) {
		_ = bcrypt.CompareHashAndPassword(s.placeholderHash(), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Store) placeholderHash() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dummyHash == nil {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("pitwall-placeholder"), s.bcryptCost)
	}
	return s.dummyHash
}

// AddFavorite saves fav for its user. ID and DateAdded are filled in.
func (s *Store) AddFavorite(ctx context.Context, fav *models.Favorite) error {
	fav.ID = models.FavoriteID(fav.Year, fav.Round, fav.DriverID)
	if fav.DateAdded.IsZero() {
		fav.DateAdded = s.now().UTC()
	}
	data, err := json.Marshal(storedFavorite{Favorite: *fav, Username: fav.Username})
	if err != nil {
		return fmt.Errorf("marshal favorite: %w", err)
	}

	return s.update(func(txn *badger.Txn) error {
		key := favoriteKey(fav.Username, fav.ID)
		_, err := txn.Get(key)
		if err == nil {
			return ErrFavoriteExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get favorite: %w", err)
		}
		return txn.Set(key, data)
	})
}

// ListFavorites returns the favorites of username, newest first.
func (s *Store) ListFavorites(ctx context.Context, username string) ([]models.Favorite, error) {
	favorites := []models.Favorite{}

	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := favoritePrefix(username)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var stored storedFavorite
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			})
			if err != nil {
				return fmt.Errorf("decode favorite %s: %w", it.Item().Key(), err)
			}
			fav := stored.Favorite
			fav.Username = stored.Username
			favorites = append(favorites, fav)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}

	sort.SliceStable(favorites, func(i, j int) bool {
		return favorites[i].DateAdded.After(favorites[j].DateAdded)
	})
	return favorites, nil
}

// RemoveFavorite deletes one favorite of username.
func (s *Store) RemoveFavorite(ctx context.Context, username, id string) error {
	return s.update(func(txn *badger.Txn) error {
		key := favoriteKey(username, id)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrFavoriteNotFound
			}
			return fmt.Errorf("get favorite: %w", err)
		}
		return txn.Delete(key)
	})
}

// storedFavorite persists the owner, which the API encoding omits.
type storedFavorite struct {
	models.Favorite
	Username string `json:"username"`
}
