// Package csrf implements double-submit anti-forgery protection: a
// per-session secret held server-side and echoed in a cookie, with a
// derived token the client must present on state-changing requests.
package csrf

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

const secretLength = 32

// secretEntry is one session's anti-forgery secret.
type secretEntry struct {
	secret    []byte
	issuedAt  time.Time
	expiresAt time.Time
}

// Store holds CSRF secrets keyed by session key. Secrets are created on
// first token request, refreshed on successful verification and destroyed
// on logout or expiry. All state is partitioned by session key, so a
// single mutex over the map suffices.
type Store struct {
	mu      sync.Mutex
	secrets map[string]*secretEntry
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewStore creates a secret store with the given TTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{
		secrets: make(map[string]*secretEntry),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// GetOrCreate returns the session's secret, minting a fresh one when none
// exists or the previous one expired.
func (s *Store) GetOrCreate(sessionKey string) ([]byte, error) {
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.secrets[sessionKey]; ok && now.Before(entry.expiresAt) {
		return entry.secret, nil
	}

	secret := make([]byte, secretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate csrf secret: %w", err)
	}

	s.secrets[sessionKey] = &secretEntry{
		secret:    secret,
		issuedAt:  now,
		expiresAt: now.Add(s.ttl),
	}
	return secret, nil
}

// Lookup returns the live secret bound to the session key. Expired
// entries are dropped and reported as missing.
func (s *Store) Lookup(sessionKey string) ([]byte, bool) {
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.secrets[sessionKey]
	if !ok {
		return nil, false
	}
	if !now.Before(entry.expiresAt) {
		delete(s.secrets, sessionKey)
		return nil, false
	}
	return entry.secret, true
}

// Refresh extends the secret's TTL, keeping an active session's token
// usable.
func (s *Store) Refresh(sessionKey string) {
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.secrets[sessionKey]; ok && now.Before(entry.expiresAt) {
		entry.expiresAt = now.Add(s.ttl)
	}
}

// Rotate invalidates the session's secret. Safe to call when no secret
// exists, which makes it usable unconditionally on logout.
func (s *Store) Rotate(sessionKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, sessionKey)
}

// Cleanup removes expired secrets and returns how many were dropped.
func (s *Store) Cleanup() int {
	now := s.nowFunc()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.secrets {
		if !now.Before(entry.expiresAt) {
			delete(s.secrets, key)
			removed++
		}
	}
	return removed
}
