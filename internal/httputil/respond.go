// Package httputil contains the JSON response helpers shared by handlers
// and middleware.
package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/parcellink/backend/internal/errors"
)

// WriteJSON encodes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the wire shape of every error leaving the service.
type ErrorResponse struct {
	Error struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error"`
}

// WriteErrorResponse writes a structured error envelope.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	WriteJSON(w, status, resp)
}

// WriteServiceError translates any error into the boundary envelope.
// Non-taxonomy errors surface as a generic internal error; the caller is
// responsible for logging the full detail.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("", err)
	}
	message := svcErr.Message
	details := svcErr.Details
	if svcErr.Code == errors.CodeInternal {
		// Never leak internals to the caller.
		message = "internal error"
		details = nil
	}
	WriteErrorResponse(w, r, svcErr.HTTPStatus, string(svcErr.Code), message, details)
}

// Unauthorized writes a bare 401 envelope.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "authentication required"
	}
	WriteErrorResponse(w, nil, http.StatusUnauthorized, string(errors.CodeUnauthorized), message, nil)
}

// Page is the pagination envelope for list endpoints.
type Page struct {
	CurrentPage int         `json:"current_page"`
	PerPage     int         `json:"per_page"`
	Total       int64       `json:"total"`
	LastPage    int         `json:"last_page"`
	From        int64       `json:"from"`
	To          int64       `json:"to"`
	NextPageURL *string     `json:"next_page_url"`
	PrevPageURL *string     `json:"prev_page_url"`
	Data        interface{} `json:"data"`
}

// NewPage assembles the envelope for one page of results. data must be the
// slice for the current page; total is the full match count.
func NewPage(path string, page, perPage int, total int64, data interface{}) Page {
	lastPage := int((total + int64(perPage) - 1) / int64(perPage))
	if lastPage < 1 {
		lastPage = 1
	}

	offset := int64(page-1) * int64(perPage)
	from := offset + 1
	to := offset + int64(perPage)
	if to > total {
		to = total
	}
	if total == 0 {
		from = 0
		to = 0
	}

	p := Page{
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		LastPage:    lastPage,
		From:        from,
		To:          to,
		Data:        data,
	}
	if page < lastPage {
		u := fmt.Sprintf("%s?page=%d&limit=%d", path, page+1, perPage)
		p.NextPageURL = &u
	}
	if page > 1 {
		u := fmt.Sprintf("%s?page=%d&limit=%d", path, page-1, perPage)
		p.PrevPageURL = &u
	}
	return p
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ParsePagination extracts page and limit query parameters, clamping page
// to >= 1 and limit to [1,100] with a default of 20.
func ParsePagination(r *http.Request) (page, limit int) {
	page = 1
	limit = defaultPageSize

	if raw := r.URL.Query().Get("page"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 1 {
			page = v
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}
