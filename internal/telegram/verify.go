// Package telegram verifies Telegram WebApp init data. Verification is a
// pure function: user lookup/creation belongs to the caller.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	// ErrMissingPayload is returned when init data or its hash field is absent.
	ErrMissingPayload = errors.New("telegram: missing init data")
	// ErrInvalidSignature is returned when the recomputed signature does not
	// match the provided one.
	ErrInvalidSignature = errors.New("telegram: invalid init data signature")
)

// webAppDomain is the domain-separation string Telegram prescribes for
// WebApp init data signatures.
const webAppDomain = "WebAppData"

// Identity is the external identity asserted by a verified init payload.
type Identity struct {
	TelegramID int64  `json:"id"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone_number"`
}

// Verify checks the signature of a raw initData query string against the
// bot token and returns the identity carried in its user field.
//
// The expected signature is HMAC-SHA256 over the data-check string (all
// non-hash pairs sorted by key, joined as "key=value" with newlines), keyed
// by HMAC-SHA256("WebAppData", botToken).
func Verify(initData, botToken string) (Identity, error) {
	if strings.TrimSpace(initData) == "" {
		return Identity{}, ErrMissingPayload
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return Identity{}, fmt.Errorf("telegram: parse init data: %w", err)
	}

	providedHash := values.Get("hash")
	if providedHash == "" {
		return Identity{}, ErrMissingPayload
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	checkString := strings.Join(pairs, "\n")

	secret := hmac.New(sha256.New, []byte(webAppDomain))
	secret.Write([]byte(botToken))
	intermediate := secret.Sum(nil)

	mac := hmac.New(sha256.New, intermediate)
	mac.Write([]byte(checkString))
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(providedHash)) != 1 {
		return Identity{}, ErrInvalidSignature
	}

	var identity Identity
	if rawUser := values.Get("user"); rawUser != "" {
		if err := json.Unmarshal([]byte(rawUser), &identity); err != nil {
			return Identity{}, fmt.Errorf("telegram: parse user field: %w", err)
		}
	}
	if identity.TelegramID == 0 {
		return Identity{}, fmt.Errorf("telegram: init data carries no user id")
	}
	return identity, nil
}
