// Package postgres implements the storage interfaces on PostgreSQL. Balance
// mutations lock the owning user row with SELECT ... FOR UPDATE inside a
// transaction, so the balance update and the ledger row commit together or
// not at all.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/parcellink/backend/internal/app/domain/credit"
	"github.com/parcellink/backend/internal/app/domain/parcel"
	"github.com/parcellink/backend/internal/app/domain/user"
	"github.com/parcellink/backend/internal/app/storage"
)

// Store implements the storage interfaces on a PostgreSQL database.
type Store struct {
	db *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.ParcelStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.StatsStore = (*Store)(nil)

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return storage.ErrConflict
	}
	return err
}

// UserStore implementation ----------------------------------------------------

const userColumns = `id, telegram_id, username, first_name, last_name, phone, role, credits, last_login_at, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, telegram_id, username, first_name, last_name, phone, role, credits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.TelegramID, u.Username, u.FirstName, u.LastName, u.Phone, u.Role, u.Credits, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return user.User{}, translateError(err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	var updated user.User
	err := s.db.GetContext(ctx, &updated, `
		UPDATE users
		SET username = $2, first_name = $3, last_name = $4, phone = $5, role = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		u.ID, u.Username, u.FirstName, u.LastName, u.Phone, u.Role,
	)
	if err != nil {
		return user.User{}, translateError(err)
	}
	return updated, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return user.User{}, translateError(err)
	}
	return u, nil
}

func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return user.User{}, translateError(err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]user.User, int64, error) {
	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, err
	}

	users := make([]user.User, 0)
	err := s.db.SelectContext(ctx, &users, `
		SELECT `+userColumns+` FROM users
		ORDER BY created_at DESC, id
		OFFSET $1 LIMIT $2`,
		offset, limitOrAll(limit),
	)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ParcelStore implementation --------------------------------------------------

const requestColumns = `id, user_id, type, from_location, to_location, description, weight, contact_name, trip_date, status, accepted_by, created_at, updated_at`

func (s *Store) CreateRequestCharged(ctx context.Context, req parcel.Request, charge credit.Transaction) (parcel.Request, credit.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return parcel.Request{}, credit.Transaction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	err = tx.GetContext(ctx, &balance, `SELECT credits FROM users WHERE id = $1 FOR UPDATE`, req.UserID)
	if err != nil {
		return parcel.Request{}, credit.Transaction{}, translateError(err)
	}
	if balance < charge.Amount {
		return parcel.Request{}, credit.Transaction{}, storage.ErrInsufficientCredits
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.Status = parcel.StatusPending
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO parcel_requests (id, user_id, type, from_location, to_location, description, weight, contact_name, trip_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		req.ID, req.UserID, req.Kind, req.FromLocation, req.ToLocation, req.Description,
		req.Weight, req.ContactName, req.TripDate, req.Status, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return parcel.Request{}, credit.Transaction{}, translateError(err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE users SET credits = credits - $2, updated_at = NOW() WHERE id = $1`, req.UserID, charge.Amount)
	if err != nil {
		return parcel.Request{}, credit.Transaction{}, err
	}

	charge.ID = uuid.NewString()
	charge.UserID = req.UserID
	charge.Kind = credit.KindDeduct
	charge.RelatedRequestID = sql.NullString{String: req.ID, Valid: true}
	charge.CreatedAt = now
	err = tx.GetContext(ctx, &charge.Seq, `
		INSERT INTO credit_transactions (id, user_id, type, amount, description, related_request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`,
		charge.ID, charge.UserID, charge.Kind, charge.Amount, charge.Description, charge.RelatedRequestID, charge.CreatedAt,
	)
	if err != nil {
		return parcel.Request{}, credit.Transaction{}, err
	}

	if err := tx.Commit(); err != nil {
		return parcel.Request{}, credit.Transaction{}, err
	}
	return req, charge, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (parcel.Request, error) {
	var req parcel.Request
	err := s.db.GetContext(ctx, &req, `SELECT `+requestColumns+` FROM parcel_requests WHERE id = $1`, id)
	if err != nil {
		return parcel.Request{}, translateError(err)
	}
	return req, nil
}

func (s *Store) UpdateRequestStatus(ctx context.Context, id string, from, to parcel.Status, acceptedBy string) (parcel.Request, error) {
	var req parcel.Request
	err := s.db.GetContext(ctx, &req, `
		UPDATE parcel_requests
		SET status = $3, accepted_by = COALESCE(NULLIF($4, ''), accepted_by), updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+requestColumns,
		id, from, to, acceptedBy,
	)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return parcel.Request{}, err
	}

	// Distinguish a missing request from a lost transition race.
	var exists bool
	if probeErr := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM parcel_requests WHERE id = $1)`, id); probeErr != nil {
		return parcel.Request{}, probeErr
	}
	if !exists {
		return parcel.Request{}, storage.ErrNotFound
	}
	return parcel.Request{}, storage.ErrConflict
}

func (s *Store) UpdateRequestDetails(ctx context.Context, req parcel.Request) (parcel.Request, error) {
	var updated parcel.Request
	err := s.db.GetContext(ctx, &updated, `
		UPDATE parcel_requests
		SET type = $2, from_location = $3, to_location = $4, description = $5,
		    weight = $6, contact_name = $7, trip_date = $8, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestColumns,
		req.ID, req.Kind, req.FromLocation, req.ToLocation, req.Description,
		req.Weight, req.ContactName, req.TripDate,
	)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return parcel.Request{}, err
	}

	var exists bool
	if probeErr := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM parcel_requests WHERE id = $1)`, req.ID); probeErr != nil {
		return parcel.Request{}, probeErr
	}
	if !exists {
		return parcel.Request{}, storage.ErrNotFound
	}
	return parcel.Request{}, storage.ErrConflict
}

func (s *Store) ListRequests(ctx context.Context, f storage.RequestFilter) ([]parcel.Request, int64, error) {
	where := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)

	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, status := range f.Statuses {
			statuses[i] = string(status)
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.Kind != "" {
		args = append(args, f.Kind)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM parcel_requests`+clause, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Offset)
	offsetArg := len(args)
	args = append(args, limitOrAll(f.Limit))
	limitArg := len(args)

	requests := make([]parcel.Request, 0)
	query := fmt.Sprintf(`SELECT %s FROM parcel_requests%s ORDER BY created_at DESC, id OFFSET $%d LIMIT $%d`,
		requestColumns, clause, offsetArg, limitArg)
	if err := s.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM parcel_requests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// LedgerStore implementation --------------------------------------------------

const transactionColumns = `id, seq, user_id, type, amount, description, related_request_id, created_at`

func (s *Store) AddCredits(ctx context.Context, userID string, tx credit.Transaction) (credit.Transaction, int64, error) {
	if tx.Kind == "" {
		tx.Kind = credit.KindAdd
	}
	return s.mutateBalance(ctx, userID, tx, false)
}

func (s *Store) DeductCredits(ctx context.Context, userID string, tx credit.Transaction) (credit.Transaction, int64, error) {
	tx.Kind = credit.KindDeduct
	return s.mutateBalance(ctx, userID, tx, true)
}

func (s *Store) mutateBalance(ctx context.Context, userID string, entry credit.Transaction, deduct bool) (credit.Transaction, int64, error) {
	dbTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return credit.Transaction{}, 0, err
	}
	defer func() { _ = dbTx.Rollback() }()

	var balance int64
	err = dbTx.GetContext(ctx, &balance, `SELECT credits FROM users WHERE id = $1 FOR UPDATE`, userID)
	if err != nil {
		return credit.Transaction{}, 0, translateError(err)
	}

	delta := entry.Amount
	if deduct {
		if balance < entry.Amount {
			return credit.Transaction{}, balance, storage.ErrInsufficientCredits
		}
		delta = -entry.Amount
	}
	balance += delta

	_, err = dbTx.ExecContext(ctx, `UPDATE users SET credits = $2, updated_at = NOW() WHERE id = $1`, userID, balance)
	if err != nil {
		return credit.Transaction{}, 0, err
	}

	entry.ID = uuid.NewString()
	entry.UserID = userID
	entry.CreatedAt = time.Now().UTC()
	err = dbTx.GetContext(ctx, &entry.Seq, `
		INSERT INTO credit_transactions (id, user_id, type, amount, description, related_request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`,
		entry.ID, entry.UserID, entry.Kind, entry.Amount, entry.Description, entry.RelatedRequestID, entry.CreatedAt,
	)
	if err != nil {
		return credit.Transaction{}, 0, err
	}

	if err := dbTx.Commit(); err != nil {
		return credit.Transaction{}, 0, err
	}
	return entry, balance, nil
}

func (s *Store) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `SELECT credits FROM users WHERE id = $1`, userID)
	if err != nil {
		return 0, translateError(err)
	}
	return balance, nil
}

func (s *Store) ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]credit.Transaction, int64, error) {
	where := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)

	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, f.Kind)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM credit_transactions`+clause, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Offset)
	offsetArg := len(args)
	args = append(args, limitOrAll(f.Limit))
	limitArg := len(args)

	transactions := make([]credit.Transaction, 0)
	query := fmt.Sprintf(`SELECT %s FROM credit_transactions%s ORDER BY seq DESC OFFSET $%d LIMIT $%d`,
		transactionColumns, clause, offsetArg, limitArg)
	if err := s.db.SelectContext(ctx, &transactions, query, args...); err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

// StatsStore implementation ---------------------------------------------------

func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	stats := storage.Stats{RequestsByStatus: make(map[string]int64)}

	err := s.db.GetContext(ctx, &stats.TotalUsers, `SELECT COUNT(*) FROM users`)
	if err != nil {
		return storage.Stats{}, err
	}
	err = s.db.GetContext(ctx, &stats.TotalCredits, `SELECT COALESCE(SUM(credits), 0) FROM users`)
	if err != nil {
		return storage.Stats{}, err
	}
	err = s.db.GetContext(ctx, &stats.TotalRequests, `SELECT COUNT(*) FROM parcel_requests`)
	if err != nil {
		return storage.Stats{}, err
	}
	err = s.db.GetContext(ctx, &stats.TotalTransactions, `SELECT COUNT(*) FROM credit_transactions`)
	if err != nil {
		return storage.Stats{}, err
	}

	rows, err := s.db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM parcel_requests GROUP BY status`)
	if err != nil {
		return storage.Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return storage.Stats{}, err
		}
		stats.RequestsByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return storage.Stats{}, err
	}
	return stats, nil
}

// limitOrAll maps a non-positive limit to LIMIT ALL.
func limitOrAll(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}
