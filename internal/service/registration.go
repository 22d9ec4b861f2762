package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"vortex.app/relay/common/logger"
	"vortex.app/relay/internal/model"
	"vortex.app/relay/internal/store"
)

// ErrInvalidRegistration is returned for a registration missing its email or
// username.
var ErrInvalidRegistration = errors.New("email and githubUsername are required")

type RegisterParams struct {
	Email          string
	GithubUsername string
}

type RegistrationService interface {
	Register(ctx context.Context, params RegisterParams) (*model.UserProfile, error)
}

type registrationService struct {
	profiles store.ProfileStore
	now      func() time.Time
}

func NewRegistrationService(profiles store.ProfileStore) RegistrationService {
	return &registrationService{profiles: profiles, now: time.Now}
}

// Register upserts the profile; registering again replaces the address.
func (s *registrationService) Register(ctx context.Context, params RegisterParams) (*model.UserProfile, error) {
	email := strings.TrimSpace(params.Email)
	username := strings.TrimSpace(params.GithubUsername)
	if email == "" || username == "" {
		return nil, ErrInvalidRegistration
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email: %v", ErrInvalidRegistration, err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Username:  logger.Ptr(username),
		Component: "relay.service.registration",
	})

	profile := model.UserProfile{
		GithubUsername: username,
		Email:          email,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.profiles.Put(ctx, profile); err != nil {
		slog.ErrorContext(ctx, "storing profile failed", "error", err)
		return nil, fmt.Errorf("storing profile: %w", err)
	}

	slog.InfoContext(ctx, "email registered")
	return &profile, nil
}
