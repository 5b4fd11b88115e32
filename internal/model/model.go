package model

import "time"

// Role is the closed set of user roles. Every authorization decision
// switches exhaustively over these values.
type Role string

const (
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
	RoleAdmin   Role = "admin"
)

func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleStudent, RoleParent, RoleAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         Role
	Locale       string
	Timezone     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal is the authenticated identity resolved from a valid session.
type Principal struct {
	ID       string
	Username string
	Role     Role
}

// Session rows are keyed by the sha256 hash of the bearer token so the
// token value itself never reaches storage.
type Session struct {
	TokenHash string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Program struct {
	ID          int64
	Name        string
	Description string
	Active      bool
	CreatedAt   time.Time
}

type QRToken struct {
	ID         string
	ProgramID  int64
	Payload    string
	Version    int32
	IssuedAtMs int64
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CheckIn struct {
	ID          string
	StudentID   string
	ProgramID   int64
	TokenID     string
	CheckedInAt time.Time
	Location    string
}

type ParentLink struct {
	ParentID     string
	StudentID    string
	Relationship string
	CreatedAt    time.Time
}
