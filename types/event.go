package types

import "time"

// Account event types published on the events channel.
const (
	EventUserSignedUp     = "user.signed_up"
	EventVerificationCode = "user.verification_code"
	EventUserVerified     = "user.verified"
	EventUserDeleted      = "user.deleted"
)

// AccountEvent notifies other services about account lifecycle changes.
type AccountEvent struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email"`

	// Code is the verification code to deliver. Set only on EventVerificationCode.
	Code       string    `json:"code,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
