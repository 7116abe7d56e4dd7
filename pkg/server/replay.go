// Copyright (C) 2025 SIWA Project
//
// This file is part of siwa-go.
//
// siwa-go is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// siwa-go is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with siwa-go.  If not, see <https://www.gnu.org/licenses/>.

package server

import (
	"sync"
	"time"
)

const (
	// DefaultReplayWindow bounds how long a signature nonce is tracked.
	// Signatures older than the window are rejected by freshness checks
	// before they reach the store, so entries can be dropped after it.
	DefaultReplayWindow = 5 * time.Minute

	// maxReplayEntries caps memory under a flood of unique nonces.
	maxReplayEntries = 50000

	replayCleanupInterval = time.Minute
)

// ReplayStore tracks signature nonces that have already been accepted.
// CheckAndMark is atomic: two concurrent requests carrying the same
// nonce result in exactly one acceptance.
type ReplayStore struct {
	mu          sync.Mutex
	seen        map[string]time.Time
	window      time.Duration
	lastCleanup time.Time
	now         func() time.Time
}

// NewReplayStore creates a replay store. A window of 0 uses
// DefaultReplayWindow.
func NewReplayStore(window time.Duration) *ReplayStore {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	return &ReplayStore{
		seen:        make(map[string]time.Time),
		window:      window,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// CheckAndMark returns true and records the key if it has not been seen
// within the window; it returns false if the key is a replay.
func (s *ReplayStore) CheckAndMark(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastCleanup) > replayCleanupInterval {
		s.cleanupLocked(now)
		s.lastCleanup = now
	}

	if seenAt, ok := s.seen[key]; ok && now.Sub(seenAt) < s.window {
		return false
	}

	if len(s.seen) >= maxReplayEntries {
		s.cleanupLocked(now)
		if len(s.seen) >= maxReplayEntries {
			// Still full of in-window entries. Fail closed: rejecting a
			// fresh request is safer than letting a replay through.
			return false
		}
	}

	s.seen[key] = now
	return true
}

// Len reports the number of tracked nonces.
func (s *ReplayStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func (s *ReplayStore) cleanupLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	for key, seenAt := range s.seen {
		if seenAt.Before(cutoff) {
			delete(s.seen, key)
		}
	}
}
