// Package credits implements the credit ledger service. The balance is
// authoritative and every mutation appends a history row in the same atomic
// unit; the service layer only validates and translates store errors.
package credits

import (
	"context"
	"strings"

	"github.com/parcellink/backend/internal/app/domain/credit"
	"github.com/parcellink/backend/internal/app/storage"
	"github.com/parcellink/backend/internal/errors"
	"github.com/parcellink/backend/internal/logging"
)

// Service manages balances and ledger history.
type Service struct {
	ledger storage.LedgerStore
	log    *logging.Logger
}

// New constructs a credit service.
func New(ledger storage.LedgerStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("credits")
	}
	return &Service{ledger: ledger, log: log}
}

// Balance returns the current balance for a user.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err == storage.ErrNotFound {
		return 0, errors.NotFound("user")
	}
	if err != nil {
		return 0, errors.Internal("balance lookup failed", err)
	}
	return balance, nil
}

// Add credits a user and returns the ledger entry with the new balance.
// Amount must be positive; kind defaults to add and may be refund.
func (s *Service) Add(ctx context.Context, userID string, amount int64, kind credit.Kind, description string) (credit.Transaction, int64, error) {
	if amount <= 0 {
		return credit.Transaction{}, 0, errors.Validation("invalid amount").AddField("amount", "must be a positive integer")
	}
	if kind == "" {
		kind = credit.KindAdd
	}
	if kind != credit.KindAdd && kind != credit.KindRefund {
		return credit.Transaction{}, 0, errors.Validation("invalid transaction type").AddField("type", "must be add or refund")
	}

	entry, balance, err := s.ledger.AddCredits(ctx, userID, credit.Transaction{
		Kind:        kind,
		Amount:      amount,
		Description: strings.TrimSpace(description),
	})
	if err == storage.ErrNotFound {
		return credit.Transaction{}, 0, errors.NotFound("user")
	}
	if err != nil {
		return credit.Transaction{}, 0, errors.Internal("credit add failed", err)
	}

	s.log.WithContext(ctx).
		WithField("user_id", userID).
		WithField("amount", amount).
		WithField("balance", balance).
		Info("credits added")
	return entry, balance, nil
}

// Deduct debits a user and returns the ledger entry with the new balance.
// A zero amount is valid and records a free action in the history without
// changing the balance. An uncoverable amount fails with the
// insufficient-credits error carrying the current balance.
func (s *Service) Deduct(ctx context.Context, userID string, amount int64, description string) (credit.Transaction, int64, error) {
	if amount < 0 {
		return credit.Transaction{}, 0, errors.Validation("invalid amount").AddField("amount", "must not be negative")
	}

	entry, balance, err := s.ledger.DeductCredits(ctx, userID, credit.Transaction{
		Amount:      amount,
		Description: strings.TrimSpace(description),
	})
	if err == storage.ErrNotFound {
		return credit.Transaction{}, 0, errors.NotFound("user")
	}
	if err == storage.ErrInsufficientCredits {
		return credit.Transaction{}, 0, errors.InsufficientCredits(balance, amount)
	}
	if err != nil {
		return credit.Transaction{}, 0, errors.Internal("credit deduct failed", err)
	}

	s.log.WithContext(ctx).
		WithField("user_id", userID).
		WithField("amount", amount).
		WithField("balance", balance).
		Info("credits deducted")
	return entry, balance, nil
}

// History returns one page of a user's ledger, newest first, with the total
// match count.
func (s *Service) History(ctx context.Context, userID string, kind credit.Kind, offset, limit int) ([]credit.Transaction, int64, error) {
	if kind != "" && !credit.ValidKind(kind) {
		return nil, 0, errors.Validation("invalid transaction type").AddField("type", "must be add, deduct or refund")
	}
	entries, total, err := s.ledger.ListTransactions(ctx, storage.TransactionFilter{
		UserID: userID,
		Kind:   kind,
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		return nil, 0, errors.Internal("history listing failed", err)
	}
	return entries, total, nil
}

