// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lvshenfx/liaotian/internal/models"
	"github.com/lvshenfx/liaotian/internal/services/auth"
	"github.com/lvshenfx/liaotian/internal/services/session"
	"github.com/lvshenfx/liaotian/internal/verification"
)

// AuthHandlers contains handlers for the register and login flows.
type AuthHandlers struct {
	svc      *auth.Service
	sessions *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *auth.Service, sessions *session.Manager) *AuthHandlers {
	return &AuthHandlers{svc: svc, sessions: sessions}
}

// authResponse is the uniform response body for all auth endpoints.
type authResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    *userPayload `json:"user,omitempty"`
}

type userPayload struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func toUserPayload(u *models.User) *userPayload {
	return &userPayload{ID: u.ID, Username: u.Username, Email: u.Email}
}

// RegisterRequestBody is the request body for starting registration.
type RegisterRequestBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// RegisterRequest checks the desired identity and sends a code.
func (h *AuthHandlers) RegisterRequest(c echo.Context) error {
	var req RegisterRequestBody
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, authResponse{Message: "invalid request"})
	}

	if err := h.svc.RegisterRequest(c.Request().Context(), req.Username, req.Email); err != nil {
		return failure(c, err)
	}

	return c.JSON(http.StatusOK, authResponse{
		Success: true,
		Message: "verification code sent to your email",
	})
}

// RegisterConfirmBody is the request body for finishing registration.
type RegisterConfirmBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Code     string `json:"code"`
}

// RegisterConfirm validates the code, creates the account and starts a
// session.
func (h *AuthHandlers) RegisterConfirm(c echo.Context) error {
	var req RegisterConfirmBody
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, authResponse{Message: "invalid request"})
	}

	user, err := h.svc.RegisterConfirm(c.Request().Context(), req.Username, req.Email, req.Code)
	if err != nil {
		return failure(c, err)
	}

	cookie, err := h.sessions.Create(user.ID, user.Username)
	if err != nil {
		slog.Error("creating session", "user_id", user.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, authResponse{Message: "failed to create session"})
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, authResponse{
		Success: true,
		Message: "registration successful",
		User:    toUserPayload(user),
	})
}

// LoginRequestBody is the request body for starting a login.
type LoginRequestBody struct {
	Email string `json:"email"`
}

// LoginRequest sends a login code to a registered address.
func (h *AuthHandlers) LoginRequest(c echo.Context) error {
	var req LoginRequestBody
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, authResponse{Message: "invalid request"})
	}

	user, err := h.svc.LoginRequest(c.Request().Context(), req.Email)
	if err != nil {
		return failure(c, err)
	}

	return c.JSON(http.StatusOK, authResponse{
		Success: true,
		Message: "verification code sent to your email",
		User:    toUserPayload(user),
	})
}

// LoginConfirmBody is the request body for finishing a login.
type LoginConfirmBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// LoginConfirm validates the code and starts a session.
func (h *AuthHandlers) LoginConfirm(c echo.Context) error {
	var req LoginConfirmBody
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, authResponse{Message: "invalid request"})
	}

	user, err := h.svc.LoginConfirm(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		return failure(c, err)
	}

	cookie, err := h.sessions.Create(user.ID, user.Username)
	if err != nil {
		slog.Error("creating session", "user_id", user.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, authResponse{Message: "failed to create session"})
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, authResponse{
		Success: true,
		Message: "login successful",
		User:    toUserPayload(user),
	})
}

// Logout clears the session cookie.
func (h *AuthHandlers) Logout(c echo.Context) error {
	c.SetCookie(h.sessions.Clear())
	return c.JSON(http.StatusOK, authResponse{
		Success: true,
		Message: "logged out",
	})
}

// failure maps a flow error to a wire response. Client faults get a
// 4xx, delivery and storage failures a 5xx; every failure is recovered
// into a {success:false, message} body here.
func failure(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	message := "something went wrong, please try again later"

	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrUsernameTaken):
		status, message = http.StatusBadRequest, "this username is already taken"
	case errors.Is(err, auth.ErrEmailTaken):
		status, message = http.StatusBadRequest, "this email is already registered"
	case errors.Is(err, auth.ErrUnknownEmail):
		status, message = http.StatusBadRequest, "this email is not registered"
	case errors.Is(err, auth.ErrUserVanished):
		status, message = http.StatusBadRequest, "this account no longer exists"
	case errors.Is(err, verification.ErrNoPendingCode):
		status, message = http.StatusBadRequest, "please request a verification code first"
	case errors.Is(err, verification.ErrExpired):
		status, message = http.StatusBadRequest, "verification code expired, please request a new one"
	case errors.Is(err, verification.ErrMismatch):
		status, message = http.StatusBadRequest, "incorrect verification code"
	case errors.Is(err, auth.ErrDeliveryFailed):
		status, message = http.StatusInternalServerError, "failed to send verification code, please try again later"
	default:
		slog.Error("auth flow failed", "error", err)
	}

	return c.JSON(status, authResponse{Message: message})
}
