package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parcellink/backend/internal/app/domain/credit"
	"github.com/parcellink/backend/internal/app/domain/parcel"
	"github.com/parcellink/backend/internal/app/domain/user"
	"github.com/parcellink/backend/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
// A single mutex serializes every mutation, which trivially preserves the
// balance/history atomicity the interfaces promise.
type Store struct {
	mu              sync.RWMutex
	users           map[string]user.User
	usersByTelegram map[int64]string
	requests        map[string]parcel.Request
	transactions    map[string]credit.Transaction
	nextSeq         int64
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.ParcelStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.StatsStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:           make(map[string]user.User),
		usersByTelegram: make(map[int64]string),
		requests:        make(map[string]parcel.Request),
		transactions:    make(map[string]credit.Transaction),
		nextSeq:         1,
	}
}

func (s *Store) nextSeqLocked() int64 {
	seq := s.nextSeq
	s.nextSeq++
	return seq
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, storage.ErrConflict
	}
	if _, exists := s.usersByTelegram[u.TelegramID]; exists {
		return user.User{}, storage.ErrConflict
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	s.users[u.ID] = u
	s.usersByTelegram[u.TelegramID] = u.ID
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}

	u.TelegramID = original.TelegramID
	u.Credits = original.Credits
	u.LastLoginAt = original.LastLoginAt
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByTelegramID(_ context.Context, telegramID int64) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByTelegram[telegramID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) ListUsers(_ context.Context, offset, limit int) ([]user.User, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	return pageOf(all, offset, limit), total, nil
}

func (s *Store) TouchLastLogin(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	now := time.Now().UTC()
	u.LastLoginAt = &now
	s.users[id] = u
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.users, id)
	delete(s.usersByTelegram, u.TelegramID)

	// Cascade the way the relational schema does.
	for reqID, req := range s.requests {
		if req.UserID == id {
			delete(s.requests, reqID)
		}
	}
	for txID, tx := range s.transactions {
		if tx.UserID == id {
			delete(s.transactions, txID)
		}
	}
	return nil
}

// ParcelStore implementation --------------------------------------------------

func (s *Store) CreateRequestCharged(_ context.Context, req parcel.Request, charge credit.Transaction) (parcel.Request, credit.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.users[req.UserID]
	if !ok {
		return parcel.Request{}, credit.Transaction{}, storage.ErrNotFound
	}
	if owner.Credits < charge.Amount {
		return parcel.Request{}, credit.Transaction{}, storage.ErrInsufficientCredits
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if _, exists := s.requests[req.ID]; exists {
		return parcel.Request{}, credit.Transaction{}, storage.ErrConflict
	}

	now := time.Now().UTC()
	req.Status = parcel.StatusPending
	req.CreatedAt = now
	req.UpdatedAt = now
	s.requests[req.ID] = req

	owner.Credits -= charge.Amount
	owner.UpdatedAt = now
	s.users[owner.ID] = owner

	charge.ID = uuid.NewString()
	charge.Seq = s.nextSeqLocked()
	charge.UserID = req.UserID
	charge.Kind = credit.KindDeduct
	charge.RelatedRequestID.String = req.ID
	charge.RelatedRequestID.Valid = true
	charge.CreatedAt = now
	s.transactions[charge.ID] = charge

	return req, charge, nil
}

func (s *Store) GetRequest(_ context.Context, id string) (parcel.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return parcel.Request{}, storage.ErrNotFound
	}
	return req, nil
}

func (s *Store) UpdateRequestStatus(_ context.Context, id string, from, to parcel.Status, acceptedBy string) (parcel.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return parcel.Request{}, storage.ErrNotFound
	}
	if req.Status != from {
		return parcel.Request{}, storage.ErrConflict
	}

	req.Status = to
	if acceptedBy != "" {
		req.AcceptedBy.String = acceptedBy
		req.AcceptedBy.Valid = true
	}
	req.UpdatedAt = time.Now().UTC()

	s.requests[id] = req
	return req, nil
}

func (s *Store) UpdateRequestDetails(_ context.Context, req parcel.Request) (parcel.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.requests[req.ID]
	if !ok {
		return parcel.Request{}, storage.ErrNotFound
	}
	if current.Status != parcel.StatusPending {
		return parcel.Request{}, storage.ErrConflict
	}

	current.Kind = req.Kind
	current.FromLocation = req.FromLocation
	current.ToLocation = req.ToLocation
	current.Description = req.Description
	current.Weight = req.Weight
	current.ContactName = req.ContactName
	current.TripDate = req.TripDate
	current.UpdatedAt = time.Now().UTC()

	s.requests[req.ID] = current
	return current, nil
}

func (s *Store) ListRequests(_ context.Context, f storage.RequestFilter) ([]parcel.Request, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]parcel.Request, 0)
	for _, req := range s.requests {
		if f.UserID != "" && req.UserID != f.UserID {
			continue
		}
		if len(f.Statuses) > 0 && !statusIn(req.Status, f.Statuses) {
			continue
		}
		if f.Kind != "" && req.Kind != f.Kind {
			continue
		}
		matched = append(matched, req)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	return pageOf(matched, f.Offset, f.Limit), total, nil
}

func (s *Store) DeleteRequest(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.requests, id)

	// History keeps the row but loses the reference, mirroring the
	// ON DELETE SET NULL foreign key.
	for txID, tx := range s.transactions {
		if tx.RelatedRequestID.Valid && tx.RelatedRequestID.String == id {
			tx.RelatedRequestID.String = ""
			tx.RelatedRequestID.Valid = false
			s.transactions[txID] = tx
		}
	}
	return nil
}

// LedgerStore implementation --------------------------------------------------

func (s *Store) AddCredits(_ context.Context, userID string, tx credit.Transaction) (credit.Transaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return credit.Transaction{}, 0, storage.ErrNotFound
	}

	now := time.Now().UTC()
	u.Credits += tx.Amount
	u.UpdatedAt = now
	s.users[userID] = u

	tx.ID = uuid.NewString()
	tx.Seq = s.nextSeqLocked()
	tx.UserID = userID
	if tx.Kind == "" {
		tx.Kind = credit.KindAdd
	}
	tx.CreatedAt = now
	s.transactions[tx.ID] = tx

	return tx, u.Credits, nil
}

func (s *Store) DeductCredits(_ context.Context, userID string, tx credit.Transaction) (credit.Transaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return credit.Transaction{}, 0, storage.ErrNotFound
	}
	if u.Credits < tx.Amount {
		return credit.Transaction{}, u.Credits, storage.ErrInsufficientCredits
	}

	now := time.Now().UTC()
	u.Credits -= tx.Amount
	u.UpdatedAt = now
	s.users[userID] = u

	tx.ID = uuid.NewString()
	tx.Seq = s.nextSeqLocked()
	tx.UserID = userID
	tx.Kind = credit.KindDeduct
	tx.CreatedAt = now
	s.transactions[tx.ID] = tx

	return tx, u.Credits, nil
}

func (s *Store) GetBalance(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return u.Credits, nil
}

func (s *Store) ListTransactions(_ context.Context, f storage.TransactionFilter) ([]credit.Transaction, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]credit.Transaction, 0)
	for _, tx := range s.transactions {
		if f.UserID != "" && tx.UserID != f.UserID {
			continue
		}
		if f.Kind != "" && tx.Kind != f.Kind {
			continue
		}
		matched = append(matched, tx)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Seq > matched[j].Seq
	})

	total := int64(len(matched))
	return pageOf(matched, f.Offset, f.Limit), total, nil
}

// StatsStore implementation ---------------------------------------------------

func (s *Store) Stats(_ context.Context) (storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := storage.Stats{
		TotalUsers:        int64(len(s.users)),
		TotalRequests:     int64(len(s.requests)),
		RequestsByStatus:  make(map[string]int64),
		TotalTransactions: int64(len(s.transactions)),
	}
	for _, req := range s.requests {
		stats.RequestsByStatus[string(req.Status)]++
	}
	for _, u := range s.users {
		stats.TotalCredits += u.Credits
	}
	return stats, nil
}

// Helpers --------------------------------------------------------------------

func statusIn(status parcel.Status, set []parcel.Status) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func pageOf[T any](all []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []T{}
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]T{}, all[offset:end]...)
}
