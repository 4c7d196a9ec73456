// Package auth implements login flows. Telegram WebApp logins verify the
// init data signature, lazily create the directory entry and issue a
// user-class token whose hash becomes the single session pointer for that
// user. Admin logins are credential-based and issue short-lived admin-class
// tokens with no session pointer.
package auth

import (
	"context"
	"crypto/subtle"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/parcellink/backend/internal/app/domain/user"
	"github.com/parcellink/backend/internal/app/services/users"
	tokens "github.com/parcellink/backend/internal/auth"
	"github.com/parcellink/backend/internal/errors"
	"github.com/parcellink/backend/internal/logging"
	"github.com/parcellink/backend/internal/session"
	"github.com/parcellink/backend/internal/telegram"
)

// AdminCredentials configures the dashboard login. PasswordHash is a bcrypt
// hash; an empty hash disables admin login entirely.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// Service implements the login, refresh and logout flows.
type Service struct {
	users    *users.Service
	issuer   *tokens.Issuer
	sessions session.Store
	botToken string
	admin    AdminCredentials
	log      *logging.Logger
}

// New constructs an auth service.
func New(userSvc *users.Service, issuer *tokens.Issuer, sessions session.Store, botToken string, admin AdminCredentials, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("auth")
	}
	return &Service{
		users:    userSvc,
		issuer:   issuer,
		sessions: sessions,
		botToken: botToken,
		admin:    admin,
		log:      log,
	}
}

// LoginResult is the outcome of a successful login or refresh.
type LoginResult struct {
	Token     string
	ExpiresIn time.Duration
	User      user.User
	Created   bool
}

// Login verifies Telegram init data, ensures the directory entry and
// issues a fresh user-class token. The session pointer is replaced, so any
// previously issued token loses its refresh ability.
func (s *Service) Login(ctx context.Context, initData string) (LoginResult, error) {
	identity, err := telegram.Verify(initData, s.botToken)
	if err != nil {
		s.log.LogSecurityEvent(ctx, "telegram_login_rejected", map[string]interface{}{"reason": err.Error()})
		if err == telegram.ErrMissingPayload {
			return LoginResult{}, errors.Validation("init data is required").AddField("init_data", "required")
		}
		return LoginResult{}, errors.Unauthorized("invalid telegram init data")
	}

	u, created, err := s.users.EnsureUser(ctx, identity)
	if err != nil {
		return LoginResult{}, err
	}

	token, expiresIn, err := s.issuer.IssueUser(u.ID, u.TelegramID, u.Role)
	if err != nil {
		return LoginResult{}, errors.Internal("token issuance failed", err)
	}
	if err := s.sessions.Put(ctx, u.ID, tokens.HashToken(token), expiresIn); err != nil {
		return LoginResult{}, errors.Internal("session creation failed", err)
	}

	s.log.WithContext(ctx).
		WithField("user_id", u.ID).
		WithField("created", created).
		Info("user logged in")
	return LoginResult{Token: token, ExpiresIn: expiresIn, User: u, Created: created}, nil
}

// Refresh exchanges a valid user-class token for a fresh one. The presented
// token must match the stored session pointer; a replaced or logged-out
// session fails with a session-expired error even when the token itself is
// still within its lifetime.
func (s *Service) Refresh(ctx context.Context, rawToken string) (LoginResult, error) {
	claims, err := s.issuer.Validate(rawToken)
	if err != nil {
		return LoginResult{}, errors.InvalidToken(err)
	}
	if claims.Class != tokens.ClassUser {
		return LoginResult{}, errors.Forbidden("admin tokens cannot be refreshed")
	}

	stored, err := s.sessions.Get(ctx, claims.UserID)
	if err == session.ErrNotFound {
		return LoginResult{}, errors.SessionExpired()
	}
	if err != nil {
		return LoginResult{}, errors.Internal("session lookup failed", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(tokens.HashToken(rawToken))) != 1 {
		s.log.LogSecurityEvent(ctx, "stale_token_refresh", map[string]interface{}{"user_id": claims.UserID})
		return LoginResult{}, errors.SessionExpired()
	}

	u, err := s.users.Get(ctx, claims.UserID)
	if err != nil {
		return LoginResult{}, err
	}

	token, expiresIn, err := s.issuer.IssueUser(u.ID, u.TelegramID, u.Role)
	if err != nil {
		return LoginResult{}, errors.Internal("token issuance failed", err)
	}
	if err := s.sessions.Put(ctx, u.ID, tokens.HashToken(token), expiresIn); err != nil {
		return LoginResult{}, errors.Internal("session update failed", err)
	}
	return LoginResult{Token: token, ExpiresIn: expiresIn, User: u}, nil
}

// Logout drops the session pointer. The token remains cryptographically
// valid until expiry but can no longer be refreshed.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.Delete(ctx, userID); err != nil {
		return errors.Internal("session deletion failed", err)
	}
	s.log.WithContext(ctx).WithField("user_id", userID).Info("user logged out")
	return nil
}

// AdminLoginResult is the outcome of a successful dashboard login.
type AdminLoginResult struct {
	Token     string
	ExpiresIn time.Duration
	Username  string
}

// AdminLogin checks the configured dashboard credentials and issues an
// admin-class token. Failures are uniform so usernames cannot be probed.
func (s *Service) AdminLogin(ctx context.Context, username, password string) (AdminLoginResult, error) {
	if s.admin.Username == "" || s.admin.PasswordHash == "" {
		return AdminLoginResult{}, errors.Unauthorized("admin login is not configured")
	}

	nameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(s.admin.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(s.admin.PasswordHash), []byte(password))
	if !nameMatch || passErr != nil {
		s.log.LogSecurityEvent(ctx, "admin_login_failed", map[string]interface{}{"username": username})
		return AdminLoginResult{}, errors.Unauthorized("invalid credentials")
	}

	token, expiresIn, err := s.issuer.IssueAdmin(username)
	if err != nil {
		return AdminLoginResult{}, errors.Internal("token issuance failed", err)
	}
	s.log.WithContext(ctx).WithField("username", username).Info("admin logged in")
	return AdminLoginResult{Token: token, ExpiresIn: expiresIn, Username: username}, nil
}
