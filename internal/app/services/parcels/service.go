// Package parcels implements the parcel request marketplace. Creation
// charges the poster through the ledger in the same atomic unit as the
// insert, and lifecycle transitions are guarded in the store so concurrent
// actors cannot both win.
package parcels

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/parcellink/backend/internal/app/domain/credit"
	"github.com/parcellink/backend/internal/app/domain/parcel"
	"github.com/parcellink/backend/internal/app/domain/user"
	"github.com/parcellink/backend/internal/app/storage"
	"github.com/parcellink/backend/internal/errors"
	"github.com/parcellink/backend/internal/logging"
)

// Service manages parcel requests.
type Service struct {
	store           storage.ParcelStore
	ledger          storage.LedgerStore
	pricePerRequest int64
	log             *logging.Logger
}

// New constructs a parcel service. pricePerRequest is the creation fee for
// non-admin posters; zero disables charging but still records the creation
// in the ledger.
func New(store storage.ParcelStore, ledger storage.LedgerStore, pricePerRequest int64, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("parcels")
	}
	return &Service{store: store, ledger: ledger, pricePerRequest: pricePerRequest, log: log}
}

// CreateInput is the caller-supplied portion of a new request.
type CreateInput struct {
	Kind         parcel.Kind
	FromLocation string
	ToLocation   string
	Description  string
	Weight       float64
	ContactName  string
	TripDate     *time.Time
}

// Create posts a new request for the actor and charges the creation fee.
// Admin actors are exempt from the fee; the zero-amount ledger row is still
// written so every creation appears in history.
func (s *Service) Create(ctx context.Context, actorID, actorRole string, in CreateInput) (parcel.Request, error) {
	if err := validateInput(&in); err != nil {
		return parcel.Request{}, err
	}

	price := s.pricePerRequest
	if actorRole == user.RoleAdmin {
		price = 0
	}

	req := parcel.Request{
		UserID:       actorID,
		Kind:         in.Kind,
		FromLocation: in.FromLocation,
		ToLocation:   in.ToLocation,
		Description:  in.Description,
		Weight:       in.Weight,
		ContactName:  in.ContactName,
	}
	if in.TripDate != nil {
		req.TripDate = sql.NullTime{Time: in.TripDate.UTC(), Valid: true}
	}

	created, charge, err := s.store.CreateRequestCharged(ctx, req, credit.Transaction{
		Amount:      price,
		Description: "parcel request creation fee",
	})
	if err == storage.ErrNotFound {
		return parcel.Request{}, errors.NotFound("user")
	}
	if err == storage.ErrInsufficientCredits {
		balance, balErr := s.ledger.GetBalance(ctx, actorID)
		if balErr != nil {
			balance = 0
		}
		return parcel.Request{}, errors.InsufficientCredits(balance, price)
	}
	if err != nil {
		return parcel.Request{}, errors.Internal("request creation failed", err)
	}

	s.log.WithContext(ctx).
		WithField("request_id", created.ID).
		WithField("type", created.Kind).
		WithField("fee", charge.Amount).
		Info("parcel request created")
	return created, nil
}

// Get returns one request by id.
func (s *Service) Get(ctx context.Context, id string) (parcel.Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err == storage.ErrNotFound {
		return parcel.Request{}, errors.NotFound("parcel request")
	}
	if err != nil {
		return parcel.Request{}, errors.Internal("request lookup failed", err)
	}
	return req, nil
}

// List returns one page of requests matching the filter, newest first. The
// status filter is a set combined with OR semantics.
func (s *Service) List(ctx context.Context, f storage.RequestFilter) ([]parcel.Request, int64, error) {
	for _, status := range f.Statuses {
		if !parcel.ValidStatus(status) {
			return nil, 0, errors.Validation("invalid status").AddField("status", "must be pending, accepted, completed or cancelled")
		}
	}
	if f.Kind != "" && !parcel.ValidKind(f.Kind) {
		return nil, 0, errors.Validation("invalid type").AddField("type", "must be send or receive")
	}
	requests, total, err := s.store.ListRequests(ctx, f)
	if err != nil {
		return nil, 0, errors.Internal("request listing failed", err)
	}
	return requests, total, nil
}

// UpdateInput carries the optional fields of a partial update. Nil pointers
// leave the field unchanged; a Status change goes through the state machine.
type UpdateInput struct {
	Kind         *parcel.Kind
	FromLocation *string
	ToLocation   *string
	Description  *string
	Weight       *float64
	ContactName  *string
	TripDate     *time.Time
	Status       *parcel.Status
}

// Update applies a partial update on behalf of the poster or an admin.
// Detail fields are mutable only while the request is pending; a requested
// status change is validated against the state machine. Accepting is not
// possible through here since the poster cannot take their own request.
func (s *Service) Update(ctx context.Context, id, actorID, actorRole string, in UpdateInput) (parcel.Request, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return parcel.Request{}, err
	}
	if req.UserID != actorID && actorRole != user.RoleAdmin {
		return parcel.Request{}, errors.Forbidden("only the poster may edit this request")
	}

	if in.Status != nil && !parcel.ValidStatus(*in.Status) {
		return parcel.Request{}, errors.Validation("invalid status").AddField("status", "must be pending, accepted, completed or cancelled")
	}
	if in.Status != nil && *in.Status == parcel.StatusAccepted {
		return parcel.Request{}, errors.Validation("requests are accepted through the accept operation").AddField("status", "unsupported target")
	}

	if hasDetailChanges(in) {
		merged := applyDetails(req, in)
		fields := CreateInput{
			Kind:         merged.Kind,
			FromLocation: merged.FromLocation,
			ToLocation:   merged.ToLocation,
			Description:  merged.Description,
			Weight:       merged.Weight,
			ContactName:  merged.ContactName,
		}
		if merged.TripDate.Valid {
			trip := merged.TripDate.Time
			fields.TripDate = &trip
		}
		if err := validateInput(&fields); err != nil {
			return parcel.Request{}, err
		}
		merged.FromLocation = fields.FromLocation
		merged.ToLocation = fields.ToLocation
		merged.Description = fields.Description
		merged.ContactName = fields.ContactName

		updated, err := s.store.UpdateRequestDetails(ctx, merged)
		if err == storage.ErrNotFound {
			return parcel.Request{}, errors.NotFound("parcel request")
		}
		if err == storage.ErrConflict {
			conflict := errors.Conflict("only pending requests can be edited")
			if current, getErr := s.store.GetRequest(ctx, req.ID); getErr == nil {
				conflict = conflict.WithDetails("current_status", string(current.Status))
			}
			return parcel.Request{}, conflict
		}
		if err != nil {
			return parcel.Request{}, errors.Internal("request update failed", err)
		}
		req = updated
	}

	if in.Status != nil && *in.Status != req.Status {
		return s.transition(ctx, req, *in.Status, "")
	}
	return req, nil
}

func hasDetailChanges(in UpdateInput) bool {
	return in.Kind != nil || in.FromLocation != nil || in.ToLocation != nil ||
		in.Description != nil || in.Weight != nil || in.ContactName != nil || in.TripDate != nil
}

func applyDetails(req parcel.Request, in UpdateInput) parcel.Request {
	if in.Kind != nil {
		req.Kind = *in.Kind
	}
	if in.FromLocation != nil {
		req.FromLocation = *in.FromLocation
	}
	if in.ToLocation != nil {
		req.ToLocation = *in.ToLocation
	}
	if in.Description != nil {
		req.Description = *in.Description
	}
	if in.Weight != nil {
		req.Weight = *in.Weight
	}
	if in.ContactName != nil {
		req.ContactName = *in.ContactName
	}
	if in.TripDate != nil {
		req.TripDate = sql.NullTime{Time: in.TripDate.UTC(), Valid: true}
	}
	return req
}

// Accept moves a pending request to accepted on behalf of the actor. A
// poster cannot accept their own request, and only one of multiple
// concurrent acceptors wins.
func (s *Service) Accept(ctx context.Context, id, actorID string) (parcel.Request, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return parcel.Request{}, err
	}
	if req.UserID == actorID {
		return parcel.Request{}, errors.Validation("cannot accept your own request").AddField("id", "owned by caller")
	}
	return s.transition(ctx, req, parcel.StatusAccepted, actorID)
}

// Complete marks a request done, from pending or accepted. Only the poster,
// the acceptor or an admin may complete.
func (s *Service) Complete(ctx context.Context, id, actorID, actorRole string) (parcel.Request, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return parcel.Request{}, err
	}
	if !s.mayClose(req, actorID, actorRole) {
		return parcel.Request{}, errors.Forbidden("not a participant of this request")
	}
	return s.transition(ctx, req, parcel.StatusCompleted, "")
}

// Cancel moves a non-terminal request to cancelled. Only the poster or an
// admin may cancel; the creation fee is not refunded.
func (s *Service) Cancel(ctx context.Context, id, actorID, actorRole string) (parcel.Request, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return parcel.Request{}, err
	}
	if req.UserID != actorID && actorRole != user.RoleAdmin {
		return parcel.Request{}, errors.Forbidden("only the poster may cancel this request")
	}
	return s.transition(ctx, req, parcel.StatusCancelled, "")
}

// Delete removes a request entirely on behalf of the poster or an admin.
// Ledger rows keep their history but lose the request reference.
func (s *Service) Delete(ctx context.Context, id, actorID, actorRole string) error {
	req, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if req.UserID != actorID && actorRole != user.RoleAdmin {
		return errors.Forbidden("only the poster may delete this request")
	}

	err = s.store.DeleteRequest(ctx, id)
	if err == storage.ErrNotFound {
		return errors.NotFound("parcel request")
	}
	if err != nil {
		return errors.Internal("request deletion failed", err)
	}
	s.log.WithContext(ctx).WithField("request_id", id).Info("parcel request deleted")
	return nil
}

func (s *Service) transition(ctx context.Context, req parcel.Request, to parcel.Status, acceptedBy string) (parcel.Request, error) {
	if !req.Status.CanTransitionTo(to) {
		return parcel.Request{}, transitionConflict(req.Status, to)
	}

	updated, err := s.store.UpdateRequestStatus(ctx, req.ID, req.Status, to, acceptedBy)
	if err == storage.ErrNotFound {
		return parcel.Request{}, errors.NotFound("parcel request")
	}
	if err == storage.ErrConflict {
		// Another actor moved the request first.
		current, getErr := s.store.GetRequest(ctx, req.ID)
		if getErr != nil {
			return parcel.Request{}, errors.Conflict("request status changed concurrently")
		}
		return parcel.Request{}, transitionConflict(current.Status, to)
	}
	if err != nil {
		return parcel.Request{}, errors.Internal("status update failed", err)
	}

	s.log.WithContext(ctx).
		WithField("request_id", updated.ID).
		WithField("from", req.Status).
		WithField("to", to).
		Info("parcel request status changed")
	return updated, nil
}

func (s *Service) mayClose(req parcel.Request, actorID, actorRole string) bool {
	if actorRole == user.RoleAdmin || req.UserID == actorID {
		return true
	}
	return req.AcceptedBy.Valid && req.AcceptedBy.String == actorID
}

func transitionConflict(from, to parcel.Status) error {
	return errors.Conflict("cannot move request from " + string(from) + " to " + string(to)).
		WithDetails("current_status", string(from)).
		WithDetails("requested_status", string(to))
}

func validateInput(in *CreateInput) error {
	in.FromLocation = strings.TrimSpace(in.FromLocation)
	in.ToLocation = strings.TrimSpace(in.ToLocation)
	in.Description = strings.TrimSpace(in.Description)
	in.ContactName = strings.TrimSpace(in.ContactName)

	verr := errors.Validation("invalid parcel request")
	if !parcel.ValidKind(in.Kind) {
		verr.AddField("type", "must be send or receive")
	}
	if in.FromLocation == "" {
		verr.AddField("from_location", "required")
	}
	if in.ToLocation == "" {
		verr.AddField("to_location", "required")
	}
	if in.Description == "" {
		verr.AddField("description", "required")
	}
	if in.Weight <= 0 {
		verr.AddField("weight", "must be positive")
	}
	if in.ContactName == "" {
		verr.AddField("contact_name", "required")
	}
	if in.Kind == parcel.KindReceive && in.TripDate == nil {
		verr.AddField("trip_date", "required for receive requests")
	}
	if verr.FieldCount() > 0 {
		return verr
	}
	return nil
}
