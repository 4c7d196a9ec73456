package httpapi

import (
	"net/http"

	"github.com/parcellink/backend/internal/httputil"
)

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.app.Admin.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
