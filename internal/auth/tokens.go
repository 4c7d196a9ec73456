// Package auth issues and validates the bearer tokens used by the API.
// Two token classes exist: end-user sessions (7 days by default) and admin
// dashboard sessions (12 hours). The classes are never interchangeable.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token classes.
const (
	ClassUser  = "user"
	ClassAdmin = "admin"
)

const issuerName = "parcellink"

// Claims are the JWT claims carried by both token classes. AdminUsername is
// set only on admin-class tokens; UserID and TelegramID only on user-class
// tokens.
type Claims struct {
	UserID        string `json:"user_id,omitempty"`
	TelegramID    int64  `json:"telegram_id,omitempty"`
	Role          string `json:"role"`
	Class         string `json:"class"`
	AdminUsername string `json:"admin_username,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and validates tokens with a shared HMAC secret.
type Issuer struct {
	secret   []byte
	userTTL  time.Duration
	adminTTL time.Duration
	now      func() time.Time
}

// NewIssuer creates an issuer. Zero TTLs fall back to 7 days (user) and
// 12 hours (admin).
func NewIssuer(secret string, userTTL, adminTTL time.Duration) *Issuer {
	if userTTL <= 0 {
		userTTL = 7 * 24 * time.Hour
	}
	if adminTTL <= 0 {
		adminTTL = 12 * time.Hour
	}
	return &Issuer{
		secret:   []byte(secret),
		userTTL:  userTTL,
		adminTTL: adminTTL,
		now:      time.Now,
	}
}

// UserTTL reports the lifetime of user-class tokens.
func (i *Issuer) UserTTL() time.Duration { return i.userTTL }

// AdminTTL reports the lifetime of admin-class tokens.
func (i *Issuer) AdminTTL() time.Duration { return i.adminTTL }

// IssueUser signs a user-class token.
func (i *Issuer) IssueUser(userID string, telegramID int64, role string) (token string, expiresIn time.Duration, err error) {
	now := i.now()
	claims := &Claims{
		UserID:     userID,
		TelegramID: telegramID,
		Role:       role,
		Class:      ClassUser,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.userTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuerName,
			Subject:   userID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", 0, err
	}
	return signed, i.userTTL, nil
}

// IssueAdmin signs an admin-class token for the dashboard login.
func (i *Issuer) IssueAdmin(username string) (token string, expiresIn time.Duration, err error) {
	now := i.now()
	claims := &Claims{
		Role:          "admin",
		Class:         ClassAdmin,
		AdminUsername: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.adminTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuerName,
			Subject:   username,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", 0, err
	}
	return signed, i.adminTTL, nil
}

// Validate parses and verifies a token of either class.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	switch claims.Class {
	case ClassUser, ClassAdmin:
	default:
		return nil, fmt.Errorf("unknown token class %q", claims.Class)
	}
	return claims, nil
}

// HashToken returns the SHA-256 hex digest of a token, used as the
// server-side session pointer value so raw tokens are never stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
