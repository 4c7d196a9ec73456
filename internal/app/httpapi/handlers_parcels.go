package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/parcellink/backend/internal/app/domain/parcel"
	"github.com/parcellink/backend/internal/app/services/parcels"
	"github.com/parcellink/backend/internal/app/storage"
	"github.com/parcellink/backend/internal/errors"
	"github.com/parcellink/backend/internal/httputil"
	"github.com/parcellink/backend/internal/middleware"
)

func (h *handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Type         string  `json:"type"`
		FromLocation string  `json:"from_location"`
		ToLocation   string  `json:"to_location"`
		Description  string  `json:"description"`
		Weight       float64 `json:"weight"`
		ContactName  string  `json:"contact_name"`
		TripDate     string  `json:"trip_date"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.badRequest(w, r, err)
		return
	}

	in := parcels.CreateInput{
		Kind:         parcel.Kind(payload.Type),
		FromLocation: payload.FromLocation,
		ToLocation:   payload.ToLocation,
		Description:  payload.Description,
		Weight:       payload.Weight,
		ContactName:  payload.ContactName,
	}
	if payload.TripDate != "" {
		parsed, err := time.Parse(time.RFC3339, payload.TripDate)
		if err != nil {
			h.writeError(w, r, errors.Validation("invalid trip date").AddField("trip_date", "must be RFC 3339"))
			return
		}
		in.TripDate = &parsed
	}

	created, err := h.app.Parcels.Create(r.Context(), middleware.GetUserID(r.Context()), middleware.GetUserRole(r.Context()), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidateRequestCaches(r, created.UserID)
	httputil.WriteJSON(w, http.StatusCreated, created.ToView())
}

func (h *handler) getRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var view parcel.View
	err := h.cache.GetOrCompute(r.Context(), "request:"+id, h.cfg.Cache.EntityTTL.Std(), &view, func() (interface{}, error) {
		req, err := h.app.Parcels.Get(r.Context(), id)
		if err != nil {
			return nil, err
		}
		return req.ToView(), nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *handler) listRequests(w http.ResponseWriter, r *http.Request) {
	h.serveRequestList(w, r, storage.RequestFilter{
		UserID:   r.URL.Query().Get("user_id"),
		Statuses: parseStatusSet(r.URL.Query().Get("status")),
		Kind:     parcel.Kind(r.URL.Query().Get("type")),
	})
}

// parseStatusSet splits a comma-separated status filter; the listing treats
// the set with OR semantics.
func parseStatusSet(raw string) []parcel.Status {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	statuses := make([]parcel.Status, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			statuses = append(statuses, parcel.Status(trimmed))
		}
	}
	return statuses
}

func (h *handler) listRequestsByUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	if !selfOrAdmin(r, userID) {
		h.writeError(w, r, errors.Forbidden(""))
		return
	}
	h.serveRequestList(w, r, storage.RequestFilter{UserID: userID})
}

func (h *handler) listRequestsByStatus(w http.ResponseWriter, r *http.Request) {
	h.serveRequestList(w, r, storage.RequestFilter{Statuses: parseStatusSet(mux.Vars(r)["status"])})
}

func (h *handler) serveRequestList(w http.ResponseWriter, r *http.Request, f storage.RequestFilter) {
	page, limit := httputil.ParsePagination(r)
	f.Offset = (page - 1) * limit
	f.Limit = limit

	statusKey := make([]string, len(f.Statuses))
	for i, status := range f.Statuses {
		statusKey[i] = string(status)
	}

	var envelope httputil.Page
	key := fmt.Sprintf("requests:%s:%s:%s:%d:%d", f.UserID, strings.Join(statusKey, ","), f.Kind, page, limit)
	err := h.cache.GetOrCompute(r.Context(), key, h.cfg.Cache.ListTTL.Std(), &envelope, func() (interface{}, error) {
		requests, total, err := h.app.Parcels.List(r.Context(), f)
		if err != nil {
			return nil, err
		}
		return httputil.NewPage(r.URL.Path, page, limit, total, parcel.Views(requests)), nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, envelope)
}

func (h *handler) updateRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var payload struct {
		Type         *string  `json:"type"`
		FromLocation *string  `json:"from_location"`
		ToLocation   *string  `json:"to_location"`
		Description  *string  `json:"description"`
		Weight       *float64 `json:"weight"`
		ContactName  *string  `json:"contact_name"`
		TripDate     *string  `json:"trip_date"`
		Status       *string  `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.badRequest(w, r, err)
		return
	}

	in := parcels.UpdateInput{
		FromLocation: payload.FromLocation,
		ToLocation:   payload.ToLocation,
		Description:  payload.Description,
		Weight:       payload.Weight,
		ContactName:  payload.ContactName,
	}
	if payload.Type != nil {
		kind := parcel.Kind(*payload.Type)
		in.Kind = &kind
	}
	if payload.Status != nil {
		status := parcel.Status(*payload.Status)
		in.Status = &status
	}
	if payload.TripDate != nil {
		parsed, err := time.Parse(time.RFC3339, *payload.TripDate)
		if err != nil {
			h.writeError(w, r, errors.Validation("invalid trip date").AddField("trip_date", "must be RFC 3339"))
			return
		}
		in.TripDate = &parsed
	}

	updated, err := h.app.Parcels.Update(r.Context(), id, middleware.GetUserID(r.Context()), middleware.GetUserRole(r.Context()), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidateRequestCaches(r, updated.UserID)
	httputil.WriteJSON(w, http.StatusOK, updated.ToView())
}

func (h *handler) acceptRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	updated, err := h.app.Parcels.Accept(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidateRequestCaches(r, updated.UserID)
	httputil.WriteJSON(w, http.StatusOK, updated.ToView())
}

func (h *handler) completeRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	updated, err := h.app.Parcels.Complete(r.Context(), id, middleware.GetUserID(r.Context()), middleware.GetUserRole(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidateRequestCaches(r, updated.UserID)
	httputil.WriteJSON(w, http.StatusOK, updated.ToView())
}

func (h *handler) cancelRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	updated, err := h.app.Parcels.Cancel(r.Context(), id, middleware.GetUserID(r.Context()), middleware.GetUserRole(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidateRequestCaches(r, updated.UserID)
	httputil.WriteJSON(w, http.StatusOK, updated.ToView())
}

func (h *handler) deleteRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.app.Parcels.Delete(r.Context(), id, middleware.GetUserID(r.Context()), middleware.GetUserRole(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cache.Invalidate(r.Context(), "request:"+id)
	h.cache.InvalidatePrefix(r.Context(), "requests:")
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) invalidateRequestCaches(r *http.Request, ownerID string) {
	ctx := r.Context()
	if id, ok := mux.Vars(r)["id"]; ok {
		h.cache.Invalidate(ctx, "request:"+id)
	}
	h.cache.InvalidatePrefix(ctx, "requests:")
	if ownerID != "" {
		// Creation charges the owner, so their cached balance is stale.
		h.cache.Invalidate(ctx, "balance:"+ownerID)
	}
}
