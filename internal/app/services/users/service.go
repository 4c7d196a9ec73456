// Package users implements the user directory. Users are created lazily on
// first verified login and seeded with a starting credit grant through the
// ledger, so the balance always equals the signed sum of history.
package users

import (
	"context"
	"strings"

	"github.com/parcellink/backend/internal/app/domain/credit"
	"github.com/parcellink/backend/internal/app/domain/user"
	"github.com/parcellink/backend/internal/app/storage"
	"github.com/parcellink/backend/internal/errors"
	"github.com/parcellink/backend/internal/logging"
	"github.com/parcellink/backend/internal/telegram"
)

// Service manages directory entries.
type Service struct {
	store           storage.UserStore
	ledger          storage.LedgerStore
	startingCredits int64
	log             *logging.Logger
}

// New constructs a user service.
func New(store storage.UserStore, ledger storage.LedgerStore, startingCredits int64, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("users")
	}
	return &Service{store: store, ledger: ledger, startingCredits: startingCredits, log: log}
}

// EnsureUser returns the directory entry for a verified Telegram identity,
// creating it on first sight. Profile fields are refreshed from the
// identity on every login. The returned bool reports whether the entry was
// created by this call.
func (s *Service) EnsureUser(ctx context.Context, identity telegram.Identity) (user.User, bool, error) {
	existing, err := s.store.GetUserByTelegramID(ctx, identity.TelegramID)
	if err == nil {
		refreshed := s.refreshProfile(ctx, existing, identity)
		s.touchLastLogin(ctx, refreshed.ID)
		return refreshed, false, nil
	}
	if err != storage.ErrNotFound {
		return user.User{}, false, errors.Internal("user lookup failed", err)
	}

	created, err := s.store.CreateUser(ctx, user.User{
		TelegramID: identity.TelegramID,
		Username:   identity.Username,
		FirstName:  identity.FirstName,
		LastName:   identity.LastName,
		Phone:      identity.Phone,
		Role:       user.RoleUser,
	})
	if err == storage.ErrConflict {
		// Lost a concurrent first-login race; the other writer won.
		existing, err = s.store.GetUserByTelegramID(ctx, identity.TelegramID)
		if err != nil {
			return user.User{}, false, errors.Internal("user lookup failed", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return user.User{}, false, errors.Internal("user creation failed", err)
	}

	if s.startingCredits > 0 {
		_, balance, err := s.ledger.AddCredits(ctx, created.ID, creditGrant(s.startingCredits))
		if err != nil {
			return user.User{}, false, errors.Internal("starting credit grant failed", err)
		}
		created.Credits = balance
	}

	s.touchLastLogin(ctx, created.ID)

	s.log.WithContext(ctx).
		WithField("user_id", created.ID).
		WithField("telegram_id", created.TelegramID).
		Info("user created")
	return created, true, nil
}

func (s *Service) touchLastLogin(ctx context.Context, id string) {
	if err := s.store.TouchLastLogin(ctx, id); err != nil {
		// A stale last-login stamp is not worth failing a login over.
		s.log.WithContext(ctx).WithError(err).WithField("user_id", id).Warn("last login update failed")
	}
}

func (s *Service) refreshProfile(ctx context.Context, u user.User, identity telegram.Identity) user.User {
	if u.Username == identity.Username && u.FirstName == identity.FirstName &&
		u.LastName == identity.LastName && (identity.Phone == "" || u.Phone == identity.Phone) {
		return u
	}
	u.Username = identity.Username
	u.FirstName = identity.FirstName
	u.LastName = identity.LastName
	if identity.Phone != "" {
		u.Phone = identity.Phone
	}
	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		// Stale profile fields are not worth failing a login over.
		s.log.WithContext(ctx).WithError(err).WithField("user_id", u.ID).Warn("profile refresh failed")
		return u
	}
	return updated
}

// CreateInput is the admin-supplied shape of a directory entry created
// outside the login flow.
type CreateInput struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	Phone      string
	Role       string
	Credits    int64
}

// Create adds a directory entry directly. Admin surface only; an initial
// balance is granted through the ledger so history stays authoritative.
func (s *Service) Create(ctx context.Context, in CreateInput) (user.User, error) {
	verr := errors.Validation("invalid user")
	if in.TelegramID <= 0 {
		verr.AddField("telegram_id", "must be a positive integer")
	}
	if in.Role == "" {
		in.Role = user.RoleUser
	}
	if in.Role != user.RoleUser && in.Role != user.RoleAdmin {
		verr.AddField("role", "must be user or admin")
	}
	if in.Credits < 0 {
		verr.AddField("credits", "must not be negative")
	}
	if verr.FieldCount() > 0 {
		return user.User{}, verr
	}

	created, err := s.store.CreateUser(ctx, user.User{
		TelegramID: in.TelegramID,
		Username:   in.Username,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Phone:      in.Phone,
		Role:       in.Role,
	})
	if err == storage.ErrConflict {
		return user.User{}, errors.Conflict("a user with this telegram id already exists")
	}
	if err != nil {
		return user.User{}, errors.Internal("user creation failed", err)
	}

	if in.Credits > 0 {
		_, balance, err := s.ledger.AddCredits(ctx, created.ID, credit.Transaction{
			Kind:        credit.KindAdd,
			Amount:      in.Credits,
			Description: "initial credit grant",
		})
		if err != nil {
			return user.User{}, errors.Internal("initial credit grant failed", err)
		}
		created.Credits = balance
	}

	s.log.WithContext(ctx).
		WithField("user_id", created.ID).
		WithField("telegram_id", created.TelegramID).
		Info("user created by admin")
	return created, nil
}

// Get returns a directory entry by id.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	if strings.TrimSpace(id) == "" {
		return user.User{}, errors.Validation("invalid user id").AddField("id", "required")
	}
	u, err := s.store.GetUser(ctx, id)
	if err == storage.ErrNotFound {
		return user.User{}, errors.NotFound("user")
	}
	if err != nil {
		return user.User{}, errors.Internal("user lookup failed", err)
	}
	return u, nil
}

// GetByTelegramID returns a directory entry by Telegram identity.
func (s *Service) GetByTelegramID(ctx context.Context, telegramID int64) (user.User, error) {
	if telegramID <= 0 {
		return user.User{}, errors.Validation("invalid telegram id").AddField("telegram_id", "must be a positive integer")
	}
	u, err := s.store.GetUserByTelegramID(ctx, telegramID)
	if err == storage.ErrNotFound {
		return user.User{}, errors.NotFound("user")
	}
	if err != nil {
		return user.User{}, errors.Internal("user lookup failed", err)
	}
	return u, nil
}

// UpdateInput carries the optional fields of a partial update. Nil pointers
// leave the field unchanged.
type UpdateInput struct {
	Username  *string
	FirstName *string
	LastName  *string
	Phone     *string
	// Credits sets a target balance. Admin only; the delta is applied
	// through the ledger so the balance never diverges from history.
	Credits *int64
}

// Update applies a partial update to a directory entry. Profile fields may
// be changed by the user themselves or an admin; a credits target requires
// the admin role.
func (s *Service) Update(ctx context.Context, id string, actorIsAdmin bool, in UpdateInput) (user.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	if in.Credits != nil {
		if !actorIsAdmin {
			return user.User{}, errors.Forbidden("only admins may adjust credits")
		}
		if *in.Credits < 0 {
			return user.User{}, errors.Validation("invalid credits").AddField("credits", "must not be negative")
		}
	}

	if in.Username != nil {
		u.Username = strings.TrimSpace(*in.Username)
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Phone != nil {
		u.Phone = strings.TrimSpace(*in.Phone)
	}

	updated, err := s.store.UpdateUser(ctx, u)
	if err == storage.ErrNotFound {
		return user.User{}, errors.NotFound("user")
	}
	if err != nil {
		return user.User{}, errors.Internal("user update failed", err)
	}

	if in.Credits != nil {
		balance, err := s.adjustBalance(ctx, id, updated.Credits, *in.Credits)
		if err != nil {
			return user.User{}, err
		}
		updated.Credits = balance
	}
	return updated, nil
}

// adjustBalance moves a balance to the target through a single ledger entry.
func (s *Service) adjustBalance(ctx context.Context, id string, current, target int64) (int64, error) {
	delta := target - current
	if delta == 0 {
		return current, nil
	}

	entry := credit.Transaction{Description: "admin balance adjustment"}
	var balance int64
	var err error
	if delta > 0 {
		entry.Kind = credit.KindAdd
		entry.Amount = delta
		_, balance, err = s.ledger.AddCredits(ctx, id, entry)
	} else {
		entry.Amount = -delta
		_, balance, err = s.ledger.DeductCredits(ctx, id, entry)
	}
	if err != nil {
		return 0, errors.Internal("balance adjustment failed", err)
	}

	s.log.WithContext(ctx).
		WithField("user_id", id).
		WithField("delta", delta).
		WithField("balance", balance).
		Info("balance adjusted")
	return balance, nil
}

// List returns one page of the directory with the total match count.
func (s *Service) List(ctx context.Context, offset, limit int) ([]user.User, int64, error) {
	users, total, err := s.store.ListUsers(ctx, offset, limit)
	if err != nil {
		return nil, 0, errors.Internal("user listing failed", err)
	}
	return users, total, nil
}

// SetRole changes a user's role. Only the admin surface calls this.
func (s *Service) SetRole(ctx context.Context, id, role string) (user.User, error) {
	if role != user.RoleUser && role != user.RoleAdmin {
		return user.User{}, errors.Validation("invalid role").AddField("role", "must be user or admin")
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	u.Role = role
	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, errors.Internal("role update failed", err)
	}
	s.log.WithContext(ctx).WithField("user_id", id).WithField("role", role).Info("role changed")
	return updated, nil
}

// Delete removes a user and, through the schema, their requests and history.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.DeleteUser(ctx, id)
	if err == storage.ErrNotFound {
		return errors.NotFound("user")
	}
	if err != nil {
		return errors.Internal("user deletion failed", err)
	}
	s.log.WithContext(ctx).WithField("user_id", id).Info("user deleted")
	return nil
}

func creditGrant(amount int64) credit.Transaction {
	return credit.Transaction{
		Kind:        credit.KindAdd,
		Amount:      amount,
		Description: "starting credit grant",
	}
}
