package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/parcellink/backend/internal/app/domain/user"
	"github.com/parcellink/backend/internal/errors"
	"github.com/parcellink/backend/internal/httputil"
	"github.com/parcellink/backend/internal/middleware"
)

// decodeJSON decodes a request body strictly: unknown fields and trailing
// garbage are rejected.
func decodeJSON(body io.Reader, dst interface{}) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if svcErr := errors.GetServiceError(err); svcErr == nil || svcErr.Code == errors.CodeInternal {
		h.log.WithContext(r.Context()).WithError(err).Error("request failed")
	}
	httputil.WriteServiceError(w, r, err)
}

func (h *handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	h.writeError(w, r, errors.Validation(err.Error()))
}

// selfOrAdmin reports whether the caller is the target user or an admin.
func selfOrAdmin(r *http.Request, targetID string) bool {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		return false
	}
	return claims.Role == user.RoleAdmin || (claims.UserID != "" && claims.UserID == targetID)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
