package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/crypto/bcrypt"

	app "github.com/parcellink/backend/internal/app"
	"github.com/parcellink/backend/internal/config"
)

const testBotToken = "12345:test-bot-token"

func signedInitData(t *testing.T, userJSON string) string {
	t.Helper()

	checkString := "auth_date=1700000000\nuser=" + userJSON

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(testBotToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(checkString))

	values := url.Values{}
	values.Set("auth_date", "1700000000")
	values.Set("user", userJSON)
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BotToken = testBotToken
	cfg.Pricing.PricePerRequest = 10

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	cfg.Auth.AdminUsername = "root"
	cfg.Auth.AdminPasswordHash = string(hash)

	application, err := app.New(cfg, app.Stores{}, nil, nil)
	if err != nil {
		t.Fatalf("app new: %v", err)
	}
	return NewRouter(Deps{App: application, Config: cfg})
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, router http.Handler, telegramID int64) (token, userID string) {
	t.Helper()

	userJSON := fmt.Sprintf(`{"id":%d,"username":"u%d"}`, telegramID, telegramID)
	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", "", map[string]string{
		"init_data": signedInitData(t, userJSON),
	})
	if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Token, resp.User.ID
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)
	for _, path := range []string{"/health", "/api/health"} {
		rec := doJSON(t, router, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestAuthGate(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/credits/balance", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/credits/balance", "not-a-jwt", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bad token: status = %d, want 403", rec.Code)
	}
}

func TestLoginAndBalance(t *testing.T) {
	router := newTestRouter(t)
	token, _ := login(t, router, 42)

	rec := doJSON(t, router, http.MethodGet, "/api/credits/balance", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["balance"] != 100 {
		t.Fatalf("balance = %d, want starting 100", resp["balance"])
	}
}

func TestParcelRequestFlow(t *testing.T) {
	router := newTestRouter(t)
	senderToken, senderID := login(t, router, 1)
	courierToken, _ := login(t, router, 2)

	rec := doJSON(t, router, http.MethodPost, "/api/parcel-requests", senderToken, map[string]interface{}{
		"type":          "send",
		"from_location": "Tbilisi",
		"to_location":   "Berlin",
		"description":   "documents",
		"weight":        0.5,
		"contact_name":  "Kim",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if created.Status != "pending" {
		t.Fatalf("status = %q, want pending", created.Status)
	}

	// The creation fee came off the sender's balance.
	rec = doJSON(t, router, http.MethodGet, "/api/credits/balance", senderToken, nil)
	var balance map[string]int64
	_ = json.Unmarshal(rec.Body.Bytes(), &balance)
	if balance["balance"] != 90 {
		t.Fatalf("balance = %d, want 90 after fee", balance["balance"])
	}

	// Sender cannot accept their own request.
	rec = doJSON(t, router, http.MethodPost, "/api/parcel-requests/"+created.ID+"/accept", senderToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("own accept status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/parcel-requests/"+created.ID+"/accept", courierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d: %s", rec.Code, rec.Body.String())
	}

	// A second accept conflicts.
	otherToken, _ := login(t, router, 3)
	rec = doJSON(t, router, http.MethodPost, "/api/parcel-requests/"+created.ID+"/accept", otherToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second accept status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/parcel-requests/"+created.ID+"/complete", courierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d: %s", rec.Code, rec.Body.String())
	}

	// History shows the creation charge linked to the request.
	rec = doJSON(t, router, http.MethodGet, "/api/credits/history", senderToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var history struct {
		Data []struct {
			Type             string  `json:"type"`
			Amount           int64   `json:"amount"`
			RelatedRequestID *string `json:"related_request_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	foundCharge := false
	for _, entry := range history.Data {
		if entry.Type == "deduct" && entry.RelatedRequestID != nil && *entry.RelatedRequestID == created.ID {
			foundCharge = true
		}
	}
	if !foundCharge {
		t.Fatalf("creation charge missing from history: %+v", history.Data)
	}

	// Filtered listing by user carries the pagination envelope.
	rec = doJSON(t, router, http.MethodGet, "/api/parcel-requests/user/"+senderID, senderToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list by user status = %d", rec.Code)
	}
	var envelope struct {
		CurrentPage int             `json:"current_page"`
		Total       int64           `json:"total"`
		Data        json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.CurrentPage != 1 || envelope.Total != 1 {
		t.Fatalf("envelope = %+v, want page 1 total 1", envelope)
	}

	// A comma-separated status filter matches any of the listed states.
	rec = doJSON(t, router, http.MethodGet, "/api/parcel-requests?status=completed,cancelled", senderToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status set list status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode status set envelope: %v", err)
	}
	if envelope.Total != 1 {
		t.Fatalf("status set total = %d, want 1 completed request", envelope.Total)
	}
}

func TestInsufficientCreditsOnCreate(t *testing.T) {
	router := newTestRouter(t)
	token, _ := login(t, router, 1)

	// Burn the starting balance with repeated creations (fee 10).
	for i := 0; i < 10; i++ {
		rec := doJSON(t, router, http.MethodPost, "/api/parcel-requests", token, map[string]interface{}{
			"type":          "send",
			"from_location": "A",
			"to_location":   "B",
			"description":   "box",
			"weight":        1,
			"contact_name":  "Kim",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %d status = %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, router, http.MethodPost, "/api/parcel-requests", token, map[string]interface{}{
		"type":          "send",
		"from_location": "A",
		"to_location":   "B",
		"description":   "box",
		"weight":        1,
		"contact_name":  "Kim",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var errResp struct {
		Error struct {
			Code    string                 `json:"code"`
			Details map[string]interface{} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errResp.Error.Code != "INSUFFICIENT_CREDITS" {
		t.Fatalf("code = %q, want INSUFFICIENT_CREDITS", errResp.Error.Code)
	}
	if errResp.Error.Details["current_balance"].(float64) != 0 {
		t.Fatalf("current_balance = %v, want 0", errResp.Error.Details["current_balance"])
	}
}

func TestAdminSurface(t *testing.T) {
	router := newTestRouter(t)
	userToken, userID := login(t, router, 1)

	// Regular users are kept off the admin surface.
	rec := doJSON(t, router, http.MethodGet, "/api/admin/stats", userToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user stats status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/admin/login", "", map[string]string{
		"username": "root",
		"password": "hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin login status = %d: %s", rec.Code, rec.Body.String())
	}
	var adminResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &adminResp); err != nil {
		t.Fatalf("decode admin login: %v", err)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/admin/stats", adminResp.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin stats status = %d: %s", rec.Code, rec.Body.String())
	}
	var stats struct {
		TotalUsers int64 `json:"total_users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalUsers != 1 {
		t.Fatalf("total_users = %d, want 1", stats.TotalUsers)
	}

	// Admin credit adjustment flows through the ledger.
	rec = doJSON(t, router, http.MethodPost, "/api/credits/add", adminResp.Token, map[string]interface{}{
		"user_id":     userID,
		"amount":      50,
		"description": "goodwill",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("credit add status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/credits/balance", userToken, nil)
	var balance map[string]int64
	_ = json.Unmarshal(rec.Body.Bytes(), &balance)
	if balance["balance"] != 150 {
		t.Fatalf("balance = %d, want 150 after adjustment", balance["balance"])
	}
}

func TestSelfOrAdminGates(t *testing.T) {
	router := newTestRouter(t)
	aliceToken, aliceID := login(t, router, 1)
	bobToken, _ := login(t, router, 2)

	// A user cannot read another user's profile or balance.
	rec := doJSON(t, router, http.MethodGet, "/api/users/"+aliceID, bobToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign profile status = %d, want 403", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/credits/balance/"+aliceID, bobToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign balance status = %d, want 403", rec.Code)
	}

	// Self access works.
	rec = doJSON(t, router, http.MethodGet, "/api/credits/balance/"+aliceID, aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("own balance status = %d: %s", rec.Code, rec.Body.String())
	}

	// Profile fields are self-editable, credits are not.
	rec = doJSON(t, router, http.MethodPut, "/api/users/"+aliceID, aliceToken, map[string]interface{}{
		"first_name": "Alice",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("self update status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, router, http.MethodPut, "/api/users/"+aliceID, aliceToken, map[string]interface{}{
		"credits": 9999,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("self credits update status = %d, want 403", rec.Code)
	}
}

func TestUpdateAndDeleteOwnRequest(t *testing.T) {
	router := newTestRouter(t)
	ownerToken, _ := login(t, router, 1)
	strangerToken, _ := login(t, router, 2)

	rec := doJSON(t, router, http.MethodPost, "/api/parcel-requests", ownerToken, map[string]interface{}{
		"type":          "send",
		"from_location": "Tbilisi",
		"to_location":   "Berlin",
		"description":   "documents",
		"weight":        0.5,
		"contact_name":  "Kim",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}

	rec = doJSON(t, router, http.MethodPut, "/api/parcel-requests/"+created.ID, strangerToken, map[string]interface{}{
		"to_location": "Paris",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger edit status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPut, "/api/parcel-requests/"+created.ID, ownerToken, map[string]interface{}{
		"to_location": "Paris",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("owner edit status = %d: %s", rec.Code, rec.Body.String())
	}
	var updated struct {
		ToLocation string `json:"to_location"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if updated.ToLocation != "Paris" {
		t.Fatalf("to_location = %q, want Paris", updated.ToLocation)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/parcel-requests/"+created.ID, strangerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger delete status = %d, want 403", rec.Code)
	}
	rec = doJSON(t, router, http.MethodDelete, "/api/parcel-requests/"+created.ID, ownerToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("owner delete status = %d, want 204", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/parcel-requests/"+created.ID, ownerToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted fetch status = %d, want 404", rec.Code)
	}
}

func TestRefreshFlow(t *testing.T) {
	router := newTestRouter(t)
	token, _ := login(t, router, 1)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/refresh", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d: %s", rec.Code, rec.Body.String())
	}
	var refreshed struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}

	// The replaced token is cryptographically valid but can no longer
	// refresh.
	rec = doJSON(t, router, http.MethodPost, "/api/auth/refresh", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale refresh status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/auth/me", refreshed.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d: %s", rec.Code, rec.Body.String())
	}
}
