// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session issues and reads signed session cookies.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/lvshenfx/liaotian/internal/config"
)

// Session is the server-side binding of a connection to an
// authenticated identity. It is resolved once per request or
// connection and passed explicitly from there on.
type Session struct {
	ID       string `json:"id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// Manager creates, reads and clears session cookies.
type Manager struct {
	sc         *securecookie.SecureCookie
	cookieName string
	maxAge     int
	secure     bool
}

// NewManager creates a session manager from config. The hash key is
// required in production; when absent a random key is generated so dev
// servers work out of the box (sessions then die with the process).
func NewManager(cfg *config.SessionConfig, secure bool) (*Manager, error) {
	hashKey, err := keyFromHex(cfg.HashKey)
	if err != nil {
		return nil, fmt.Errorf("invalid session hash key: %w", err)
	}
	if hashKey == nil {
		hashKey = securecookie.GenerateRandomKey(32)
	}

	blockKey, err := keyFromHex(cfg.BlockKey)
	if err != nil {
		return nil, fmt.Errorf("invalid session block key: %w", err)
	}

	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(cfg.MaxAge)

	return &Manager{
		sc:         sc,
		cookieName: cfg.CookieName,
		maxAge:     cfg.MaxAge,
		secure:     secure,
	}, nil
}

// Create issues a session cookie bound to the given identity.
func (m *Manager) Create(userID int64, username string) (*http.Cookie, error) {
	sess := Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
	}

	encoded, err := m.sc.Encode(m.cookieName, sess)
	if err != nil {
		return nil, fmt.Errorf("encoding session cookie: %w", err)
	}

	return &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   m.maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Read returns the session carried by the request, or nil if the
// request has no valid session cookie.
func (m *Manager) Read(r *http.Request) *Session {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return nil
	}

	var sess Session
	if err := m.sc.Decode(m.cookieName, cookie.Value, &sess); err != nil {
		return nil
	}
	if sess.UserID == 0 {
		return nil
	}
	return &sess
}

// Clear returns a cookie that removes the session.
func (m *Manager) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func keyFromHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(key))
	}
	return key, nil
}

// GenerateKey returns a fresh 32-byte key as a hex string, for use in
// config files.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
