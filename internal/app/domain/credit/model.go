package credit

import (
	"database/sql"
	"time"
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindAdd    Kind = "add"
	KindDeduct Kind = "deduct"
	KindRefund Kind = "refund"
)

// ValidKind reports whether k is a known ledger entry kind.
func ValidKind(k Kind) bool {
	return k == KindAdd || k == KindDeduct || k == KindRefund
}

// Transaction is one immutable ledger entry. Amount is always recorded
// non-negative; Kind determines the sign applied to the balance. Seq is a
// monotonically increasing per-table sequence that fixes history order
// even when timestamps collide.
type Transaction struct {
	ID               string         `json:"id" db:"id"`
	Seq              int64          `json:"-" db:"seq"`
	UserID           string         `json:"user_id" db:"user_id"`
	Kind             Kind           `json:"type" db:"type"`
	Amount           int64          `json:"amount" db:"amount"`
	Description      string         `json:"description,omitempty" db:"description"`
	RelatedRequestID sql.NullString `json:"-" db:"related_request_id"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}

// SignedAmount returns the balance delta this entry represents.
func (t *Transaction) SignedAmount() int64 {
	if t.Kind == KindDeduct {
		return -t.Amount
	}
	return t.Amount
}

// View is the wire shape of a transaction.
type View struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Kind             Kind      `json:"type"`
	Amount           int64     `json:"amount"`
	Description      string    `json:"description,omitempty"`
	RelatedRequestID *string   `json:"related_request_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// ToView converts a transaction to its wire shape.
func (t *Transaction) ToView() View {
	v := View{
		ID:          t.ID,
		UserID:      t.UserID,
		Kind:        t.Kind,
		Amount:      t.Amount,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
	if t.RelatedRequestID.Valid {
		s := t.RelatedRequestID.String
		v.RelatedRequestID = &s
	}
	return v
}

// Views maps a slice of transactions to wire shapes.
func Views(transactions []Transaction) []View {
	views := make([]View, 0, len(transactions))
	for i := range transactions {
		views = append(views, transactions[i].ToView())
	}
	return views
}
