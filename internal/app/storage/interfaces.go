package storage

import (
	"context"
	"errors"

	"github.com/parcellink/backend/internal/app/domain/credit"
	"github.com/parcellink/backend/internal/app/domain/parcel"
	"github.com/parcellink/backend/internal/app/domain/user"
)

// Sentinel errors shared by all store implementations. Services translate
// these into the boundary error taxonomy.
var (
	ErrNotFound            = errors.New("storage: not found")
	ErrConflict            = errors.New("storage: conflict")
	ErrInsufficientCredits = errors.New("storage: insufficient credits")
)

// UserStore persists directory entries.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (user.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]user.User, int64, error)
	// TouchLastLogin stamps the user's last login time without touching
	// any other field.
	TouchLastLogin(ctx context.Context, id string) error
	DeleteUser(ctx context.Context, id string) error
}

// RequestFilter narrows a parcel request listing. Zero values match
// everything; Statuses are combined with OR semantics; Limit <= 0 means no
// limit.
type RequestFilter struct {
	UserID   string
	Statuses []parcel.Status
	Kind     parcel.Kind
	Offset   int
	Limit    int
}

// ParcelStore persists parcel requests.
//
// CreateRequestCharged is an atomic unit: it inserts the request, deducts
// the charge from the owner's balance and writes the ledger row, or does
// none of it. A zero-amount charge still writes the ledger row so creation
// is always visible in history.
type ParcelStore interface {
	CreateRequestCharged(ctx context.Context, req parcel.Request, charge credit.Transaction) (parcel.Request, credit.Transaction, error)
	GetRequest(ctx context.Context, id string) (parcel.Request, error)
	// UpdateRequestStatus moves a request from one status to another and
	// optionally records who accepted it. The transition is guarded in the
	// store so concurrent updates cannot both succeed: ErrConflict is
	// returned when the request exists but is no longer in from.
	UpdateRequestStatus(ctx context.Context, id string, from, to parcel.Status, acceptedBy string) (parcel.Request, error)
	// UpdateRequestDetails rewrites the mutable fields (kind, locations,
	// description, weight, contact name, trip date) of a still-pending
	// request. ErrConflict is returned when the request exists but has
	// left the pending state.
	UpdateRequestDetails(ctx context.Context, req parcel.Request) (parcel.Request, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]parcel.Request, int64, error)
	DeleteRequest(ctx context.Context, id string) error
}

// TransactionFilter narrows a ledger history listing.
type TransactionFilter struct {
	UserID string
	Kind   credit.Kind
	Offset int
	Limit  int
}

// LedgerStore is the authoritative credit ledger. AddCredits and
// DeductCredits update the balance and append the history row as a single
// atomic unit; a failed mutation leaves both untouched. DeductCredits
// returns ErrInsufficientCredits when the balance cannot cover the amount.
type LedgerStore interface {
	AddCredits(ctx context.Context, userID string, tx credit.Transaction) (credit.Transaction, int64, error)
	DeductCredits(ctx context.Context, userID string, tx credit.Transaction) (credit.Transaction, int64, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]credit.Transaction, int64, error)
}

// Stats is the aggregate snapshot served to the admin dashboard.
type Stats struct {
	TotalUsers        int64            `json:"total_users"`
	TotalRequests     int64            `json:"total_requests"`
	RequestsByStatus  map[string]int64 `json:"requests_by_status"`
	TotalCredits      int64            `json:"total_credits"`
	TotalTransactions int64            `json:"total_transactions"`
}

// StatsStore computes aggregate platform statistics.
type StatsStore interface {
	Stats(ctx context.Context) (Stats, error)
}
