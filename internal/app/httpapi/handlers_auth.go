package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/parcellink/backend/internal/errors"
	"github.com/parcellink/backend/internal/httputil"
	"github.com/parcellink/backend/internal/middleware"
)

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresIn int64       `json:"expires_in"`
	User      interface{} `json:"user"`
	Created   bool        `json:"created,omitempty"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		InitData string `json:"init_data"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.badRequest(w, r, err)
		return
	}

	result, err := h.app.Auth.Login(r.Context(), payload.InitData)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, loginResponse{
		Token:     result.Token,
		ExpiresIn: int64(result.ExpiresIn / time.Second),
		User:      result.User,
		Created:   result.Created,
	})
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	rawToken := bearerToken(r)
	if rawToken == "" {
		h.writeError(w, r, errors.Unauthorized(""))
		return
	}

	result, err := h.app.Auth.Refresh(r.Context(), rawToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresIn: int64(result.ExpiresIn / time.Second),
		User:      result.User,
	})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		// Admin-class tokens have no session pointer to drop.
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
		return
	}
	if err := h.app.Auth.Logout(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil || claims.UserID == "" {
		h.writeError(w, r, errors.Unauthorized(""))
		return
	}
	u, err := h.app.Users.Get(r.Context(), claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.badRequest(w, r, err)
		return
	}

	result, err := h.app.Auth.AdminLogin(r.Context(), payload.Username, payload.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token":      result.Token,
		"expires_in": int64(result.ExpiresIn / time.Second),
		"username":   result.Username,
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
