// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements the email one-time-code registration and
// login flows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/lvshenfx/liaotian/internal/models"
	"github.com/lvshenfx/liaotian/internal/repository"
	"github.com/lvshenfx/liaotian/internal/verification"
)

var (
	// ErrInvalidInput is returned for missing or malformed fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUsernameTaken is returned when the username already exists.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUnknownEmail is returned on login for an unregistered email.
	ErrUnknownEmail = errors.New("email not registered")
	// ErrDeliveryFailed is returned when the verification email could
	// not be sent.
	ErrDeliveryFailed = errors.New("verification code delivery failed")
	// ErrUserVanished is returned when the account disappeared between
	// login request and confirm.
	ErrUserVanished = errors.New("user no longer exists")
)

// Mailer delivers a verification code to an email address.
type Mailer interface {
	SendCode(email, code string) error
}

// Service is the identity gate: it turns (username/email, code) pairs
// into authenticated identities. The code store is owned here and
// shared by the register and login flows.
type Service struct {
	repo   *repository.Repository
	codes  *verification.Store
	mailer Mailer
}

// NewService creates a new auth service.
func NewService(repo *repository.Repository, codes *verification.Store, mailer Mailer) *Service {
	return &Service{
		repo:   repo,
		codes:  codes,
		mailer: mailer,
	}
}

// RegisterRequest validates the desired identity and sends a
// verification code to the email address.
func (s *Service) RegisterRequest(ctx context.Context, username, email string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" || email == "" {
		return fmt.Errorf("%w: username and email are required", ErrInvalidInput)
	}
	if len(username) > models.MaxUsernameLength {
		return fmt.Errorf("%w: username exceeds %d characters", ErrInvalidInput, models.MaxUsernameLength)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: malformed email address", ErrInvalidInput)
	}

	taken, err := s.repo.UsernameExists(ctx, username)
	if err != nil {
		return fmt.Errorf("checking username: %w", err)
	}
	if taken {
		return ErrUsernameTaken
	}

	taken, err = s.repo.EmailExists(ctx, email)
	if err != nil {
		return fmt.Errorf("checking email: %w", err)
	}
	if taken {
		return ErrEmailTaken
	}

	return s.issueAndSend(email)
}

// RegisterConfirm validates the code and creates the account. A
// uniqueness violation here means another registration completed with
// the same username or email between request and confirm; that race is
// surfaced as a conflict, never retried.
func (s *Service) RegisterConfirm(ctx context.Context, username, email, code string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)

	if username == "" || email == "" || code == "" {
		return nil, fmt.Errorf("%w: username, email and code are required", ErrInvalidInput)
	}

	if err := s.codes.Validate(email, code); err != nil {
		return nil, err
	}

	user, err := s.repo.CreateUser(ctx, username, email)
	if err != nil {
		return nil, s.classifyCreateConflict(ctx, username, email, err)
	}
	return user, nil
}

// LoginRequest sends a verification code to a registered email address.
func (s *Service) LoginRequest(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownEmail
		}
		return nil, fmt.Errorf("looking up email: %w", err)
	}

	if err := s.issueAndSend(email); err != nil {
		return nil, err
	}
	return user, nil
}

// LoginConfirm validates the code and re-fetches the identity. The
// account is looked up again rather than trusting anything cached from
// the login request, so an intervening deletion is detected.
func (s *Service) LoginConfirm(ctx context.Context, email, code string) (*models.User, error) {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)

	if email == "" || code == "" {
		return nil, fmt.Errorf("%w: email and code are required", ErrInvalidInput)
	}

	if err := s.codes.Validate(email, code); err != nil {
		return nil, err
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserVanished
		}
		return nil, fmt.Errorf("looking up email: %w", err)
	}
	return user, nil
}

// issueAndSend stores a fresh code and dispatches it. The stored entry
// is not rolled back on delivery failure: an undelivered code can never
// be validated, and the next request overwrites it.
func (s *Service) issueAndSend(email string) error {
	if s.codes.Pending(email) {
		slog.Debug("replacing pending verification code", "email", email)
	}

	code, err := s.codes.Issue(email)
	if err != nil {
		return fmt.Errorf("issuing verification code: %w", err)
	}

	if err := s.mailer.SendCode(email, code); err != nil {
		slog.Error("verification email failed", "email", email, "error", err)
		return ErrDeliveryFailed
	}
	return nil
}

// classifyCreateConflict maps an insert failure to the identity that
// lost the race, or passes the error through untouched.
func (s *Service) classifyCreateConflict(ctx context.Context, username, email string, insertErr error) error {
	if taken, err := s.repo.UsernameExists(ctx, username); err == nil && taken {
		return ErrUsernameTaken
	}
	if taken, err := s.repo.EmailExists(ctx, email); err == nil && taken {
		return ErrEmailTaken
	}
	return fmt.Errorf("creating user: %w", insertErr)
}
