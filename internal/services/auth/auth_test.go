// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lvshenfx/liaotian/internal/models"
	"github.com/lvshenfx/liaotian/internal/services/auth"
	"github.com/lvshenfx/liaotian/internal/testutil"
	"github.com/lvshenfx/liaotian/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMailer records sent codes and can simulate delivery failure.
type fakeMailer struct {
	codes map[string]string
	fail  bool
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{codes: make(map[string]string)}
}

func (m *fakeMailer) SendCode(email, code string) error {
	if m.fail {
		return errors.New("smtp unavailable")
	}
	m.codes[email] = code
	return nil
}

func newTestService(t *testing.T) (*auth.Service, *fakeMailer) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	mailer := newFakeMailer()
	return auth.NewService(repo, verification.NewStore(), mailer), mailer
}

func TestRegisterRequest(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()

	err := svc.RegisterRequest(ctx, "alice", "alice@example.com")

	require.NoError(t, err)
	assert.Len(t, mailer.codes["alice@example.com"], 6)
}

func TestRegisterRequest_InvalidInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		email    string
	}{
		{"empty username", "", "alice@example.com"},
		{"empty email", "alice", ""},
		{"username too long", strings.Repeat("a", 33), "alice@example.com"},
		{"malformed email", "alice", "not-an-email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.RegisterRequest(ctx, tt.username, tt.email)
			assert.ErrorIs(t, err, auth.ErrInvalidInput)
		})
	}
}

func TestRegisterRequest_UsernameTaken(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()

	registerUser(t, svc, mailer, "alice", "alice@example.com")

	err := svc.RegisterRequest(ctx, "alice", "other@example.com")

	assert.ErrorIs(t, err, auth.ErrUsernameTaken)
}

func TestRegisterRequest_EmailTaken(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()

	registerUser(t, svc, mailer, "alice", "alice@example.com")

	err := svc.RegisterRequest(ctx, "bob", "alice@example.com")

	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestRegisterRequest_DeliveryFailed(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()
	mailer.fail = true

	err := svc.RegisterRequest(ctx, "alice", "alice@example.com")

	assert.ErrorIs(t, err, auth.ErrDeliveryFailed)
}

func TestRegisterConfirm(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterRequest(ctx, "alice", "alice@example.com"))
	code := mailer.codes["alice@example.com"]

	user, err := svc.RegisterConfirm(ctx, "alice", "alice@example.com", code)

	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestRegisterConfirm_NoPendingCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterConfirm(ctx, "alice", "alice@example.com", "123456")

	assert.ErrorIs(t, err, verification.ErrNoPendingCode)
}

func TestRegisterConfirm_WrongCode(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RegisterRequest(ctx, "alice", "alice@example.com"))
	code := mailer.codes["alice@example.com"]
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, err := svc.RegisterConfirm(ctx, "alice", "alice@example.com", wrong)
	assert.ErrorIs(t, err, verification.ErrMismatch)

	// Mismatch does not consume the entry; the real code still works.
	_, err = svc.RegisterConfirm(ctx, "alice", "alice@example.com", code)
	assert.NoError(t, err)
}

func TestRegisterConfirm_ConcurrentUsernameConflict(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()

	registerUser(t, svc, mailer, "alice", "alice@example.com")

	// A second registration for the same username sneaks past the
	// request-time check because the first completed in between.
	require.NoError(t, svc.RegisterRequest(ctx, "alicia", "alicia@example.com"))
	code := mailer.codes["alicia@example.com"]

	_, err := svc.RegisterConfirm(ctx, "alice", "alicia@example.com", code)

	assert.ErrorIs(t, err, auth.ErrUsernameTaken)
}

func TestLoginRequest(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()

	registered := registerUser(t, svc, mailer, "alice", "alice@example.com")

	user, err := svc.LoginRequest(ctx, "alice@example.com")

	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.NotEmpty(t, mailer.codes["alice@example.com"])
}

func TestLoginRequest_UnknownEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.LoginRequest(ctx, "nobody@example.com")

	assert.ErrorIs(t, err, auth.ErrUnknownEmail)
}

func TestLoginConfirm(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()

	registered := registerUser(t, svc, mailer, "alice", "alice@example.com")

	_, err := svc.LoginRequest(ctx, "alice@example.com")
	require.NoError(t, err)
	code := mailer.codes["alice@example.com"]

	user, err := svc.LoginConfirm(ctx, "alice@example.com", code)

	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
}

func TestLoginConfirm_UserVanished(t *testing.T) {
	db, repo := testutil.NewTestDB(t)
	mailer := newFakeMailer()
	svc := auth.NewService(repo, verification.NewStore(), mailer)
	ctx := context.Background()

	registerUser(t, svc, mailer, "alice", "alice@example.com")

	_, err := svc.LoginRequest(ctx, "alice@example.com")
	require.NoError(t, err)
	code := mailer.codes["alice@example.com"]

	// The account disappears between login request and confirm.
	_, err = db.ExecContext(ctx, "DELETE FROM users WHERE email = ?", "alice@example.com")
	require.NoError(t, err)

	_, err = svc.LoginConfirm(ctx, "alice@example.com", code)

	assert.ErrorIs(t, err, auth.ErrUserVanished)
}

func TestLoginConfirm_ReissueInvalidatesOldCode(t *testing.T) {
	svc, mailer := newTestService(t)
	ctx := context.Background()

	registerUser(t, svc, mailer, "alice", "alice@example.com")

	_, err := svc.LoginRequest(ctx, "alice@example.com")
	require.NoError(t, err)
	first := mailer.codes["alice@example.com"]

	// Request again until a different code is issued.
	second := first
	for second == first {
		_, err = svc.LoginRequest(ctx, "alice@example.com")
		require.NoError(t, err)
		second = mailer.codes["alice@example.com"]
	}

	_, err = svc.LoginConfirm(ctx, "alice@example.com", first)
	assert.ErrorIs(t, err, verification.ErrMismatch)

	_, err = svc.LoginConfirm(ctx, "alice@example.com", second)
	assert.NoError(t, err)
}

func registerUser(t *testing.T, svc *auth.Service, mailer *fakeMailer, username, email string) *models.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, svc.RegisterRequest(ctx, username, email))
	user, err := svc.RegisterConfirm(ctx, username, email, mailer.codes[email])
	require.NoError(t, err)
	return user
}
