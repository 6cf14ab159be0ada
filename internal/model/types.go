package model

import (
	"time"

	"github.com/google/uuid"
)

// Purpose scopes an OTP challenge; challenges are never valid across purposes.
type Purpose string

const (
	PurposeSignup        Purpose = "signup"
	PurposePasswordReset Purpose = "password_reset"
)

// Valid reports whether p is a known purpose value.
func (p Purpose) Valid() bool {
	return p == PurposeSignup || p == PurposePasswordReset
}

// User represents a registered identity
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	Mobile       string
	PasswordHash string
	DeviceToken  *string
	CreatedAt    time.Time
}

// Challenge represents a single-use OTP challenge for an email+purpose pair.
// Only the newest unconsumed challenge per pair is valid for verification;
// older rows are superseded and simply ignored until the ledger's TTL cleanup
// removes them.
type Challenge struct {
	ID         uuid.UUID
	Email      string
	CodeHash   []byte
	Purpose    Purpose
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Consumed reports whether the challenge reached a terminal state
// (verified or detected expired).
func (c Challenge) Consumed() bool {
	return c.ConsumedAt != nil
}

// Task represents a due-dated task owned by a user
type Task struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Title       string
	Description *string
	DueAt       time.Time
	Notified    bool
	Completed   bool
	CreatedAt   time.Time
}

// MaxTasksPerUser is the cap on concurrently tracked tasks per identity.
const MaxTasksPerUser = 10
