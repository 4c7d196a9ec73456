package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/parcellink/backend/internal/app/domain/user"
	"github.com/parcellink/backend/internal/app/services/users"
	"github.com/parcellink/backend/internal/errors"
	"github.com/parcellink/backend/internal/httputil"
	"github.com/parcellink/backend/internal/middleware"
)

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !selfOrAdmin(r, id) {
		h.writeError(w, r, errors.Forbidden(""))
		return
	}

	var u user.User
	err := h.cache.GetOrCompute(r.Context(), "user:"+id, h.cfg.Cache.EntityTTL.Std(), &u, func() (interface{}, error) {
		fetched, err := h.app.Users.Get(r.Context(), id)
		if err != nil {
			return nil, err
		}
		return fetched, nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, limit := httputil.ParsePagination(r)

	users, total, err := h.app.Users.List(r.Context(), (page-1)*limit, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPage(r.URL.Path, page, limit, total, users))
}

func (h *handler) getUserByTelegramID(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(mux.Vars(r)["telegramID"], 10, 64)
	if err != nil {
		h.writeError(w, r, errors.Validation("invalid telegram id").AddField("telegram_id", "must be an integer"))
		return
	}

	u, err := h.app.Users.GetByTelegramID(r.Context(), telegramID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TelegramID int64  `json:"telegram_id"`
		Username   string `json:"username"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		Phone      string `json:"phone"`
		Role       string `json:"role"`
		Credits    int64  `json:"credits"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.badRequest(w, r, err)
		return
	}

	created, err := h.app.Users.Create(r.Context(), users.CreateInput{
		TelegramID: payload.TelegramID,
		Username:   payload.Username,
		FirstName:  payload.FirstName,
		LastName:   payload.LastName,
		Phone:      payload.Phone,
		Role:       payload.Role,
		Credits:    payload.Credits,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !selfOrAdmin(r, id) {
		h.writeError(w, r, errors.Forbidden(""))
		return
	}

	var payload struct {
		Username  *string `json:"username"`
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Phone     *string `json:"phone"`
		Credits   *int64  `json:"credits"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.badRequest(w, r, err)
		return
	}

	isAdmin := middleware.GetUserRole(r.Context()) == user.RoleAdmin
	updated, err := h.app.Users.Update(r.Context(), id, isAdmin, users.UpdateInput{
		Username:  payload.Username,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Phone:     payload.Phone,
		Credits:   payload.Credits,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cache.Invalidate(r.Context(), "user:"+id, "balance:"+id)
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) setUserRole(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var payload struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.badRequest(w, r, err)
		return
	}

	updated, err := h.app.Users.SetRole(r.Context(), id, payload.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cache.Invalidate(r.Context(), "user:"+id)
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.app.Users.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cache.Invalidate(r.Context(), "user:"+id, "balance:"+id)
	h.cache.InvalidatePrefix(r.Context(), "requests:")
	w.WriteHeader(http.StatusNoContent)
}
