package user

import "time"

// Roles a user can hold. Role is only ever read from a signed token claim
// or the directory row, never from request input.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a directory entry keyed by Telegram identity. Credits is the
// authoritative balance maintained by the ledger.
type User struct {
	ID          string     `json:"id" db:"id"`
	TelegramID  int64      `json:"telegram_id" db:"telegram_id"`
	Username    string     `json:"username,omitempty" db:"username"`
	FirstName   string     `json:"first_name,omitempty" db:"first_name"`
	LastName    string     `json:"last_name,omitempty" db:"last_name"`
	Phone       string     `json:"phone,omitempty" db:"phone"`
	Role        string     `json:"role" db:"role"`
	Credits     int64      `json:"credits" db:"credits"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
