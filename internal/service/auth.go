// Package service implements the identity flows behind the auth endpoints.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/echowave/internal/auth"
	"github.com/echowave/internal/logger"
	"github.com/echowave/internal/model"
	"github.com/echowave/internal/repository"
)

const (
	bcryptCost  = 10
	minUsername = 3
	minPassword = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = repository.ErrUsernameTaken
	ErrThrottled          = errors.New("too many attempts, try again later")
)

// ValidationError carries a message safe to show the caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Users is the slice of the user repository the auth flows need.
type Users interface {
	Create(ctx context.Context, username, passwordHash string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// Throttle counts attempts per username. nil-safe via NoThrottle.
type Throttle interface {
	CheckAuthThrottle(ctx context.Context, username string) (bool, error)
}

// NoThrottle disables throttling (tests, single-user dev runs).
type NoThrottle struct{}

func (NoThrottle) CheckAuthThrottle(context.Context, string) (bool, error) { return true, nil }

type AuthService struct {
	users    Users
	tokens   *auth.Tokens
	throttle Throttle
}

func NewAuthService(users Users, tokens *auth.Tokens, throttle Throttle) *AuthService {
	if throttle == nil {
		throttle = NoThrottle{}
	}
	return &AuthService{users: users, tokens: tokens, throttle: throttle}
}

func validateCredentials(username, password string) error {
	if utf8.RuneCountInString(username) < minUsername {
		return &ValidationError{Msg: fmt.Sprintf("username must be at least %d characters", minUsername)}
	}
	if utf8.RuneCountInString(password) < minPassword {
		return &ValidationError{Msg: fmt.Sprintf("password must be at least %d characters", minPassword)}
	}
	return nil
}

// Signup registers a user and returns it together with a fresh token.
func (s *AuthService) Signup(ctx context.Context, username, password string) (*model.User, string, error) {
	defer logger.DeferLogDuration("auth.Signup", time.Now())()
	if err := validateCredentials(username, password); err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("authService.Signup hash: %w", err)
	}
	u, err := s.users.Create(ctx, username, string(hash))
	if err != nil {
		return nil, "", err
	}
	token, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		return nil, "", fmt.Errorf("authService.Signup token: %w", err)
	}
	return u, token, nil
}

// Signin verifies credentials and returns the user and a fresh token.
// Unknown username and wrong password collapse into one error.
func (s *AuthService) Signin(ctx context.Context, username, password string) (*model.User, string, error) {
	defer logger.DeferLogDuration("auth.Signin", time.Now())()
	allowed, err := s.throttle.CheckAuthThrottle(ctx, username)
	if err != nil {
		logger.Errorf("auth throttle check: %v", err)
	} else if !allowed {
		return nil, "", ErrThrottled
	}

	u, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		return nil, "", fmt.Errorf("authService.Signin token: %w", err)
	}
	return u, token, nil
}

// ResetPassword sets a new password by username. No challenge beyond the
// throttle; there are no recovery addresses on file.
func (s *AuthService) ResetPassword(ctx context.Context, username, newPassword string) error {
	defer logger.DeferLogDuration("auth.ResetPassword", time.Now())()
	allowed, err := s.throttle.CheckAuthThrottle(ctx, username)
	if err != nil {
		logger.Errorf("auth throttle check: %v", err)
	} else if !allowed {
		return ErrThrottled
	}

	if utf8.RuneCountInString(newPassword) < minPassword {
		return &ValidationError{Msg: fmt.Sprintf("password must be at least %d characters", minPassword)}
	}
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("authService.ResetPassword hash: %w", err)
	}
	return s.users.UpdatePassword(ctx, u.ID, string(hash))
}
