package services

import (
	"context"
	"errors"

	"github.com/takemehome/accounts/internal/apperr"
	"github.com/takemehome/accounts/internal/auth"
	"github.com/takemehome/accounts/internal/store"
	"github.com/takemehome/accounts/types"
)

var loginFields = []store.UserField{
	store.UserFieldUserID,
	store.UserFieldEmail,
	store.UserFieldFirstname,
	store.UserFieldLastname,
	store.UserFieldPassword,
}

// CredentialValidator checks credentials before sign-up and login.
type CredentialValidator struct {
	users                UserRepository
	passwords            auth.PasswordHasher
	requireVerifiedEmail bool
}

func NewCredentialValidator(users UserRepository, passwords auth.PasswordHasher, requireVerifiedEmail bool) *CredentialValidator {
	return &CredentialValidator{
		users:                users,
		passwords:            passwords,
		requireVerifiedEmail: requireVerifiedEmail,
	}
}

// ValidateOnCreate rejects an email already held by a live user.
func (v *CredentialValidator) ValidateOnCreate(ctx context.Context, email string) error {
	_, err := v.users.FindOne(ctx, store.UserFilter{Email: email}, store.UserFieldUserID)
	if err == nil {
		return apperr.Conflict(apperr.UserIsAlreadyExists)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// ValidateOnLogin returns the user owning email when password matches. An
// unknown email and a wrong password fail the same way.
func (v *CredentialValidator) ValidateOnLogin(ctx context.Context, email, password string) (types.User, error) {
	filter := store.UserFilter{Email: email}
	if v.requireVerifiedEmail {
		verified := true
		filter.EmailVerified = &verified
	}

	user, err := v.users.FindOne(ctx, filter, loginFields...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFound(apperr.UserNotFound)
		}
		return types.User{}, err
	}

	ok, err := v.passwords.Verify(password, user.Password)
	if err != nil {
		return types.User{}, apperr.Internal(err)
	}
	if !ok {
		return types.User{}, apperr.NotFound(apperr.UserNotFound)
	}
	return user, nil
}
