package entity

import (
	"database/sql"
	"time"
)

// Account is the persisted identity record keyed by email. Every *_token
// field and its paired *_sent_at timestamp are created and cleared together:
// a token without its timestamp is meaningless.
type Account struct {
	ID                  uint64
	Email               string
	EncryptedPassword   sql.NullString
	SignInCount         uint64
	LastSignInAt        sql.NullTime
	EmailVerified       bool
	EmailVerifiedAt     sql.NullTime
	VerifyEmailToken    sql.NullString
	VerifyEmailSentAt   sql.NullTime
	MagicLinkToken      sql.NullString
	MagicLinkSentAt     sql.NullTime
	ResetPasswordToken  sql.NullString
	ResetPasswordSentAt sql.NullTime
	GivenName           sql.NullString
	FamilyName          sql.NullString
	PhoneNumber         sql.NullString
	Job                 sql.NullString
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
