// Package sessionstore persists per-session auth state: the bearer token
// and the JSON-encoded identity record. State lives in memory with a TTL
// and is optionally snapshotted to disk, so sessions survive a gateway
// restart. Restoration from the snapshot runs asynchronously; readers
// that need settled state wait on Restored().
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

type record struct {
	Token     string    `json:"token"`
	User      string    `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store is a thread-safe TTL session store with optional disk snapshots.
type Store struct {
	mu           sync.RWMutex
	items        map[string]record
	ttl          time.Duration
	snapshotPath string
	restored     chan struct{}
	logger       *zap.Logger
}

// New creates a session store. When snapshotPath is non-empty the store
// loads its previous snapshot in the background and rewrites it on every
// mutation. Restored() is closed once loading has finished (immediately
// when there is nothing to load).
func New(ttl time.Duration, snapshotPath string, logger *zap.Logger) *Store {
	s := &Store{
		items:        make(map[string]record),
		ttl:          ttl,
		snapshotPath: snapshotPath,
		restored:     make(chan struct{}),
		logger:       logger,
	}
	go s.restore()
	go s.cleanup()
	return s
}

// Read returns the persisted token and user entries for a session.
// Missing or expired sessions come back empty with no error.
func (s *Store) Read(_ context.Context, sid string) (string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.items[sid]
	if !ok || time.Now().After(rec.ExpiresAt) {
		return "", "", nil
	}
	return rec.Token, rec.User, nil
}

// Write persists both entries for a session and refreshes its TTL.
func (s *Store) Write(_ context.Context, sid, token, userJSON string) error {
	s.mu.Lock()
	s.items[sid] = record{
		Token:     token,
		User:      userJSON,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	s.snapshot()
	return nil
}

// Clear removes every persisted entry for a session.
func (s *Store) Clear(_ context.Context, sid string) error {
	s.mu.Lock()
	delete(s.items, sid)
	s.mu.Unlock()

	s.snapshot()
	return nil
}

// Restored is closed once startup restoration has finished.
func (s *Store) Restored() <-chan struct{} {
	return s.restored
}

// restore loads the snapshot file, drops expired sessions, then signals
// readers. Runs once, on its own goroutine, so a slow disk never blocks
// construction.
func (s *Store) restore() {
	defer close(s.restored)

	if s.snapshotPath == "" {
		return
	}

	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("session snapshot unreadable, starting empty",
				zap.String("path", s.snapshotPath),
				zap.Error(err),
			)
		}
		return
	}

	var items map[string]record
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.Warn("session snapshot malformed, starting empty",
			zap.String("path", s.snapshotPath),
			zap.Error(err),
		)
		return
	}

	now := time.Now()
	live := 0
	s.mu.Lock()
	for sid, rec := range items {
		if now.After(rec.ExpiresAt) {
			continue
		}
		s.items[sid] = rec
		live++
	}
	s.mu.Unlock()

	s.logger.Info("sessions restored from snapshot",
		zap.String("path", s.snapshotPath),
		zap.Int("sessions", live),
	)
}

// snapshot rewrites the snapshot file. Best effort: a failed write is
// logged, never surfaced, since the in-memory state stays correct.
func (s *Store) snapshot() {
	if s.snapshotPath == "" {
		return
	}

	s.mu.RLock()
	cp := make(map[string]record, len(s.items))
	for k, v := range s.items {
		cp[k] = v
	}
	s.mu.RUnlock()

	data, err := json.Marshal(cp)
	if err != nil {
		s.logger.Warn("session snapshot encode failed", zap.Error(err))
		return
	}

	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		s.logger.Warn("session snapshot write failed",
			zap.String("path", filepath.Dir(s.snapshotPath)),
			zap.Error(err),
		)
		return
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		s.logger.Warn("session snapshot rename failed", zap.Error(err))
	}
}

// cleanup periodically removes expired sessions.
func (s *Store) cleanup() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for sid, rec := range s.items {
			if now.After(rec.ExpiresAt) {
				delete(s.items, sid)
			}
		}
		s.mu.Unlock()
	}
}
