package parcel

import (
	"database/sql"
	"time"
)

// Status is the lifecycle state of a parcel request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Kind distinguishes who posted the request: a sender offering a parcel or
// a traveller ready to receive and carry one along their trip.
type Kind string

const (
	KindSend    Kind = "send"
	KindReceive Kind = "receive"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusAccepted, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ValidKind reports whether k is a known request kind.
func ValidKind(k Kind) bool {
	return k == KindSend || k == KindReceive
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether the lifecycle permits moving from s to
// next. Pending admits every other state, including completed directly so
// either party can mark a request done without a prior accept; accepted may
// be completed or cancelled; terminal states admit nothing.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusAccepted || next == StatusCompleted || next == StatusCancelled
	case StatusAccepted:
		return next == StatusCompleted || next == StatusCancelled
	}
	return false
}

// Request is a parcel delivery request posted by a user. ContactName is
// denormalized at creation time so the listing survives later profile edits.
type Request struct {
	ID           string         `json:"id" db:"id"`
	UserID       string         `json:"user_id" db:"user_id"`
	Kind         Kind           `json:"type" db:"type"`
	FromLocation string         `json:"from_location" db:"from_location"`
	ToLocation   string         `json:"to_location" db:"to_location"`
	Description  string         `json:"description" db:"description"`
	Weight       float64        `json:"weight" db:"weight"`
	ContactName  string         `json:"contact_name" db:"contact_name"`
	TripDate     sql.NullTime   `json:"-" db:"trip_date"`
	Status       Status         `json:"status" db:"status"`
	AcceptedBy   sql.NullString `json:"-" db:"accepted_by"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// View is the wire shape of a request, flattening the nullable columns.
type View struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Kind         Kind       `json:"type"`
	FromLocation string     `json:"from_location"`
	ToLocation   string     `json:"to_location"`
	Description  string     `json:"description"`
	Weight       float64    `json:"weight"`
	ContactName  string     `json:"contact_name"`
	TripDate     *time.Time `json:"trip_date"`
	Status       Status     `json:"status"`
	AcceptedBy   *string    `json:"accepted_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ToView converts a request to its wire shape.
func (r *Request) ToView() View {
	v := View{
		ID:           r.ID,
		UserID:       r.UserID,
		Kind:         r.Kind,
		FromLocation: r.FromLocation,
		ToLocation:   r.ToLocation,
		Description:  r.Description,
		Weight:       r.Weight,
		ContactName:  r.ContactName,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.TripDate.Valid {
		t := r.TripDate.Time
		v.TripDate = &t
	}
	if r.AcceptedBy.Valid {
		s := r.AcceptedBy.String
		v.AcceptedBy = &s
	}
	return v
}

// Views maps a slice of requests to wire shapes, never returning nil so
// empty lists encode as [].
func Views(requests []Request) []View {
	views := make([]View, 0, len(requests))
	for i := range requests {
		views = append(views, requests[i].ToView())
	}
	return views
}
