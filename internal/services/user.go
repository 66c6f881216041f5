package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/takemehome/accounts/internal/apperr"
	"github.com/takemehome/accounts/internal/auth"
	"github.com/takemehome/accounts/internal/db"
	"github.com/takemehome/accounts/internal/store"
	"github.com/takemehome/accounts/types"
)

const compensationTimeout = 10 * time.Second

var jwtShape = regexp.MustCompile(`^[\w-]+\.[\w-]+\.[\w-]+$`)

// UserServiceDeps lists the collaborators of UserService. Provider is nil when
// accounts are managed locally. Events may be nil.
type UserServiceDeps struct {
	DB        db.DBTX
	Stores    Stores
	Tokens    *auth.TokenService
	Passwords auth.PasswordHasher
	Codes     VerificationCodes
	Provider  IdentityProvider
	Events    EventPublisher
	Logger    *slog.Logger

	RequireVerifiedEmail bool
}

// UserService encapsulates the account and session use-cases.
type UserService struct {
	db        db.DBTX
	stores    Stores
	users     UserRepository
	validator *CredentialValidator
	tokens    *auth.TokenService
	passwords auth.PasswordHasher
	codes     VerificationCodes
	provider  IdentityProvider
	events    EventPublisher
	logger    *slog.Logger
}

func NewUserService(deps UserServiceDeps) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	users := deps.Stores.Users(deps.DB)
	return &UserService{
		db:        deps.DB,
		stores:    deps.Stores,
		users:     users,
		validator: NewCredentialValidator(users, deps.Passwords, deps.RequireVerifiedEmail),
		tokens:    deps.Tokens,
		passwords: deps.Passwords,
		codes:     deps.Codes,
		provider:  deps.Provider,
		events:    deps.Events,
		logger:    logger,
	}
}

// SignUp registers a new unverified user. When an identity provider is
// configured the provider user and its identity row are created in the same
// transaction, and the provider user is removed again if the transaction fails.
func (s *UserService) SignUp(ctx context.Context, input types.SignUpInput) error {
	if err := s.validator.ValidateOnCreate(ctx, input.Email); err != nil {
		return err
	}

	hash, err := s.passwords.Hash(input.Password)
	if err != nil {
		return apperr.Internal(err)
	}

	var (
		created        types.User
		providerUserID string
	)
	err = db.WithTx(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		user := types.User{
			Firstname: input.Firstname,
			Lastname:  input.Lastname,
			Email:     input.Email,
			Phone:     input.Phone,
			Password:  hash,
		}

		if s.provider != nil {
			sub, err := s.provider.SignUp(ctx, input.Email, input.Password)
			if err != nil {
				return apperr.Internal(fmt.Errorf("provider sign-up: %w", err))
			}
			providerUserID = sub
		}

		if err := s.createUser(ctx, tx, &user, providerUserID); err != nil {
			return err
		}
		created = user
		return nil
	})
	if err != nil {
		if providerUserID != "" {
			s.compensateSignUp(ctx, providerUserID)
		}
		if errors.Is(err, store.ErrUniqueViolation) {
			return apperr.Conflict(apperr.UserIsAlreadyExists)
		}
		var appErr *apperr.Error
		if !errors.As(err, &appErr) {
			return apperr.Database(err, apperr.DefaultDatabaseError)
		}
		return err
	}

	s.logger.Info("user signed up", "user_id", created.UserID)
	s.publish(ctx, types.AccountEvent{Type: types.EventUserSignedUp, UserID: created.UserID, Email: created.Email})
	if s.provider == nil {
		s.issueCode(ctx, created.UserID, created.Email)
	}
	return nil
}

// compensateSignUp removes a provider user whose local records were not
// committed. Cancellation of ctx does not stop it.
func (s *UserService) compensateSignUp(ctx context.Context, providerUserID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.provider.DeleteUser(ctx, providerUserID); err != nil {
		s.logger.Error("sign-up compensation failed", "provider_user_id", providerUserID, "error", err)
	}
}

func (s *UserService) createUser(ctx context.Context, tx db.DBTX, user *types.User, providerUserID string) error {
	if providerUserID != "" {
		identity, err := s.stores.Identities(tx).Create(ctx, types.Identity{ProviderUserID: providerUserID})
		if err != nil {
			return err
		}
		user.IdentityID = &identity.IdentityID
	}

	created, err := s.stores.Users(tx).Create(ctx, *user)
	if err != nil {
		return err
	}
	*user = created
	return nil
}

// Verify confirms email with code and marks the user verified.
func (s *UserService) Verify(ctx context.Context, email, code string) error {
	if err := s.codes.Verify(ctx, email, code); err != nil {
		s.logger.Debug("verification code rejected", "error", err)
		return apperr.Conflict(apperr.UserExpiredCode)
	}

	verified := true
	err := s.users.UpdateOne(ctx, store.UserFilter{Email: email}, store.UserPatch{IsEmailVerified: &verified})
	if err != nil {
		s.logger.Warn("marking email verified failed", "error", err)
		return apperr.Conflict(apperr.UserExpiredCode)
	}

	s.publish(ctx, types.AccountEvent{Type: types.EventUserVerified, Email: email})
	return nil
}

// ResendCode issues a new verification code for an existing unverified user.
// It reports success for unknown or already verified emails.
func (s *UserService) ResendCode(ctx context.Context, email string) error {
	verified := false
	user, err := s.users.FindOne(ctx, store.UserFilter{Email: email, EmailVerified: &verified}, store.UserFieldUserID, store.UserFieldEmail)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	s.issueCode(ctx, user.UserID, user.Email)
	return nil
}

// Login checks credentials and stores a freshly issued token pair on the user.
func (s *UserService) Login(ctx context.Context, email, password string) (types.LoginResult, error) {
	user, err := s.validator.ValidateOnLogin(ctx, email, password)
	if err != nil {
		return types.LoginResult{}, err
	}

	pair, err := s.tokens.SignTokens(types.AuthUser{UserID: user.UserID, Email: user.Email})
	if err != nil {
		return types.LoginResult{}, apperr.Internal(err)
	}

	err = s.users.UpdateOne(ctx, store.UserFilter{UserID: user.UserID, Email: user.Email}, store.SetTokens(pair))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.LoginResult{}, apperr.NotFound(apperr.UserNotFound)
		}
		return types.LoginResult{}, err
	}

	return types.LoginResult{
		UserID:       user.UserID,
		Email:        user.Email,
		Firstname:    user.Firstname,
		Lastname:     user.Lastname,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Refresh rotates the token pair of the user holding the presented refresh
// token. The stored refresh token must still match, so a token can be
// exchanged only once.
func (s *UserService) Refresh(ctx context.Context, authorization string) (types.TokenPair, error) {
	token, err := BearerToken(authorization)
	if err != nil {
		return types.TokenPair{}, err
	}
	if !jwtShape.MatchString(token) {
		return types.TokenPair{}, apperr.Validation(apperr.UserRefreshTokenInvalid)
	}

	claims, err := verifyToken(s.tokens, token)
	if err != nil {
		return types.TokenPair{}, err
	}

	subject := claims.AuthUser()
	pair, err := s.tokens.SignTokens(subject)
	if err != nil {
		return types.TokenPair{}, apperr.Internal(err)
	}

	err = s.users.UpdateOne(ctx, store.UserFilter{
		UserID:       subject.UserID,
		Email:        subject.Email,
		RefreshToken: token,
	}, store.SetTokens(pair))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.TokenPair{}, apperr.Forbidden(apperr.UserUnknownOrInvalidRefreshToken)
		}
		return types.TokenPair{}, err
	}
	return pair, nil
}

// SignOut clears the stored token pair.
func (s *UserService) SignOut(ctx context.Context, user types.AuthUser) error {
	err := s.users.UpdateOne(ctx, store.UserFilter{UserID: user.UserID, Email: user.Email}, store.ClearTokens())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound(apperr.UserNotFound)
		}
		return err
	}
	return nil
}

// GetSelf returns the profile of the authenticated user.
func (s *UserService) GetSelf(ctx context.Context, user types.AuthUser) (types.Profile, error) {
	return s.findProfile(ctx, store.UserFilter{UserID: user.UserID, Email: user.Email})
}

// GetOne returns the profile of the user with the given id.
func (s *UserService) GetOne(ctx context.Context, userID string) (types.Profile, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return types.Profile{}, apperr.Validation(apperr.UserIsNotUUID)
	}
	return s.findProfile(ctx, store.UserFilter{UserID: userID})
}

func (s *UserService) findProfile(ctx context.Context, filter store.UserFilter) (types.Profile, error) {
	user, err := s.users.FindOne(ctx, filter, store.ProfileFields...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Profile{}, apperr.NotFound(apperr.UserNotFound)
		}
		return types.Profile{}, err
	}
	return types.ProfileOf(user), nil
}

// Delete removes the user, its provider identity and the provider user in one
// transaction.
func (s *UserService) Delete(ctx context.Context, authUser types.AuthUser) error {
	filter := store.UserFilter{UserID: authUser.UserID, Email: authUser.Email}

	err := db.WithTx(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		users := s.stores.Users(tx)
		identities := s.stores.Identities(tx)

		user, err := users.FindOne(ctx, filter, store.UserFieldUserID, store.UserFieldIdentityID)
		if err != nil {
			return err
		}

		var identity types.Identity
		if user.IdentityID != nil {
			identity, err = identities.FindOne(ctx, *user.IdentityID)
			if err != nil {
				return err
			}
			if s.provider != nil {
				if err := s.provider.DeleteUser(ctx, identity.ProviderUserID); err != nil {
					return err
				}
			}
		}

		if err := users.DeleteOne(ctx, filter); err != nil {
			return err
		}
		if identity.IdentityID != "" {
			return identities.DeleteOne(ctx, identity.IdentityID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound(apperr.UserNotFound)
		}
		return err
	}

	s.logger.Info("user deleted", "user_id", authUser.UserID)
	s.publish(ctx, types.AccountEvent{Type: types.EventUserDeleted, UserID: authUser.UserID, Email: authUser.Email})
	return nil
}

func (s *UserService) issueCode(ctx context.Context, userID, email string) {
	code, err := s.codes.Issue(ctx, email)
	if err != nil {
		s.logger.Error("issuing verification code failed", "user_id", userID, "error", err)
		return
	}
	if code == "" {
		return
	}
	s.publish(ctx, types.AccountEvent{Type: types.EventVerificationCode, UserID: userID, Email: email, Code: code})
}

func (s *UserService) publish(ctx context.Context, event types.AccountEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger.Error("publishing account event failed", "type", event.Type, "error", err)
	}
}
