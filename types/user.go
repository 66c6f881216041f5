package types

import "time"

// User represents an account in the system.
// It contains profile, credential, session, and audit metadata.
type User struct {
	// UserID is the unique, immutable identifier of the user (UUID).
	UserID string `json:"userId" db:"user_id"`

	// Firstname is the user's given name.
	Firstname string `json:"firstname" db:"first_name"`

	// Lastname is the user's family name.
	Lastname string `json:"lastname" db:"last_name"`

	// Email is the user's email address. At most one live user holds a given email.
	Email string `json:"email" db:"email"`

	// Phone is the user's phone number in free form.
	Phone string `json:"phone" db:"phone"`

	// Password stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	Password string `json:"-" db:"password"`

	// IsEmailVerified reports whether the user confirmed ownership of Email.
	IsEmailVerified bool `json:"isEmailVerified" db:"is_email_verified"`

	// IdentityID links the user to an external identity provider subject.
	// It is nil when the account is managed locally.
	IdentityID *string `json:"-" db:"identity_id"`

	// AccessToken and RefreshToken hold the only session tokens currently
	// accepted for this user. Both are nil after sign-out.
	AccessToken  *string `json:"-" db:"access_token"`
	RefreshToken *string `json:"-" db:"refresh_token"`

	// CreatedDate is the timestamp when the account was created.
	CreatedDate time.Time `json:"createdDate" db:"created_date"`

	// UpdatedDate is the timestamp of the most recent change to the account.
	UpdatedDate time.Time `json:"updatedDate" db:"updated_date"`

	// DeletedDate marks a soft-deleted account. Live accounts have it unset.
	DeletedDate *time.Time `json:"-" db:"deleted_date"`
}

// Profile is the subset of User safe to return to clients.
type Profile struct {
	UserID          string    `json:"userId"`
	Firstname       string    `json:"firstname"`
	Lastname        string    `json:"lastname"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedDate     time.Time `json:"createdDate"`
	UpdatedDate     time.Time `json:"updatedDate"`
}

// ProfileOf copies the public fields of u.
func ProfileOf(u User) Profile {
	return Profile{
		UserID:          u.UserID,
		Firstname:       u.Firstname,
		Lastname:        u.Lastname,
		Email:           u.Email,
		Phone:           u.Phone,
		IsEmailVerified: u.IsEmailVerified,
		CreatedDate:     u.CreatedDate,
		UpdatedDate:     u.UpdatedDate,
	}
}

// Identity links a local user to a subject of the external identity provider.
type Identity struct {
	IdentityID     string     `json:"identityId" db:"identity_id"`
	ProviderUserID string     `json:"providerUserId" db:"provider_user_id"`
	CreatedDate    time.Time  `json:"createdDate" db:"created_date"`
	UpdatedDate    time.Time  `json:"updatedDate" db:"updated_date"`
	DeletedDate    *time.Time `json:"-" db:"deleted_date"`
}
