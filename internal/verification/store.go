// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package verification holds outstanding one-time email codes.
package verification

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// CodeTTL is how long an issued code stays valid.
const CodeTTL = 5 * time.Minute

var (
	// ErrNoPendingCode is returned when no code has been issued for the email.
	ErrNoPendingCode = errors.New("no pending verification code")
	// ErrExpired is returned when the code's validity window has passed.
	ErrExpired = errors.New("verification code expired")
	// ErrMismatch is returned when the supplied code does not match.
	ErrMismatch = errors.New("verification code mismatch")
)

type entry struct {
	code      string
	expiresAt time.Time
}

// Store keeps at most one live code per email. All operations are
// serialized through a single mutex; entries are rare and short-lived,
// so whole-store granularity is sufficient.
type Store struct {
	mu    sync.Mutex
	codes map[string]entry
	now   func() time.Time
}

// NewStore creates an empty code store.
func NewStore() *Store {
	return &Store{
		codes: make(map[string]entry),
		now:   time.Now,
	}
}

// Issue generates a 6-digit code for the email and stores it with a
// fresh expiry, replacing any previously issued code for that email.
func (s *Store) Issue(email string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email] = entry{code: code, expiresAt: s.now().Add(CodeTTL)}
	return code, nil
}

// Validate checks the supplied code against the stored entry. On an
// exact match the entry is consumed. An expired entry is removed as a
// side effect; a mismatch leaves the entry in place so the user can
// retry until expiry.
func (s *Store) Validate(email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.codes[email]
	if !ok {
		return ErrNoPendingCode
	}
	if s.now().After(e.expiresAt) {
		delete(s.codes, email)
		return ErrExpired
	}
	if e.code != code {
		return ErrMismatch
	}

	delete(s.codes, email)
	return nil
}

// Pending reports whether a code (expired or not) is stored for the email.
func (s *Store) Pending(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.codes[email]
	return ok
}

// generateCode returns a uniformly random 6-digit numeric string.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n), nil
}
