package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/parcellink/backend/internal/app/domain/credit"
	"github.com/parcellink/backend/internal/errors"
	"github.com/parcellink/backend/internal/httputil"
	"github.com/parcellink/backend/internal/middleware"
)

func (h *handler) balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		h.writeError(w, r, errors.Unauthorized(""))
		return
	}

	h.serveBalance(w, r, userID)
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		h.writeError(w, r, errors.Unauthorized(""))
		return
	}

	page, limit := httputil.ParsePagination(r)
	kind := credit.Kind(r.URL.Query().Get("type"))

	entries, total, err := h.app.Credits.History(r.Context(), userID, kind, (page-1)*limit, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPage(r.URL.Path, page, limit, total, credit.Views(entries)))
}

func (h *handler) balanceFor(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	if !selfOrAdmin(r, userID) {
		h.writeError(w, r, errors.Forbidden(""))
		return
	}
	h.serveBalance(w, r, userID)
}

func (h *handler) serveBalance(w http.ResponseWriter, r *http.Request, userID string) {
	var balance int64
	err := h.cache.GetOrCompute(r.Context(), "balance:"+userID, h.cfg.Cache.BalanceTTL.Std(), &balance, func() (interface{}, error) {
		return h.app.Credits.Balance(r.Context(), userID)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (h *handler) historyFor(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	page, limit := httputil.ParsePagination(r)
	kind := credit.Kind(r.URL.Query().Get("type"))

	entries, total, err := h.app.Credits.History(r.Context(), userID, kind, (page-1)*limit, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPage(r.URL.Path, page, limit, total, credit.Views(entries)))
}

type creditMutation struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (h *handler) addCredits(w http.ResponseWriter, r *http.Request) {
	var payload creditMutation
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.badRequest(w, r, err)
		return
	}

	entry, balance, err := h.app.Credits.Add(r.Context(), payload.UserID, payload.Amount, credit.KindAdd, payload.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cache.Invalidate(r.Context(), "balance:"+payload.UserID, "user:"+payload.UserID)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction": entry.ToView(),
		"balance":     balance,
	})
}

func (h *handler) deductCredits(w http.ResponseWriter, r *http.Request) {
	var payload creditMutation
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if !selfOrAdmin(r, payload.UserID) {
		h.writeError(w, r, errors.Forbidden(""))
		return
	}

	entry, balance, err := h.app.Credits.Deduct(r.Context(), payload.UserID, payload.Amount, payload.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cache.Invalidate(r.Context(), "balance:"+payload.UserID, "user:"+payload.UserID)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction": entry.ToView(),
		"balance":     balance,
	})
}
