package store

import (
	"encoding/json"
	"time"
)

// Profile is a row of daily_user.
type Profile struct {
	ID         int64
	CreatedAt  time.Time
	Name       *string
	Title      *string
	Phone      *string
	SendHour   *int
	Options    *string
	IdentityID *string
	IsAdmin    bool
}

// Linked reports whether an identity is attached to the profile.
func (p Profile) Linked() bool {
	return p.IdentityID != nil && *p.IdentityID != ""
}

// ProfileFields carries the editable columns of a profile. Nil leaves a
// column NULL on insert and clears it on update.
type ProfileFields struct {
	Name     *string
	Title    *string
	Phone    *string
	SendHour *int
	Options  *string
}

// Activity is a row of daily_data. The poll sender writes these; this
// service only reads them.
type Activity struct {
	ID           int64
	ProfileID    int64
	CreatedAt    time.Time
	ActivityDate time.Time
	Completed    bool
	Option       *string
}

type AuditEntry struct {
	ID         int64
	ActorID    string
	ActorEmail string
	ProfileID  int64
	Action     string
	IdentityID *string
	Detail     json.RawMessage
	CreatedAt  time.Time
}

// AuthUser is a self-hosted identity row.
type AuthUser struct {
	ID               string
	Email            string
	PasswordHash     string
	CreatedAt        time.Time
	EmailConfirmedAt *time.Time
	LastSignInAt     *time.Time
}
