package services

import (
	"context"
	"errors"
	"strings"

	"github.com/takemehome/accounts/internal/apperr"
	"github.com/takemehome/accounts/internal/auth"
	"github.com/takemehome/accounts/internal/store"
	"github.com/takemehome/accounts/types"
)

// AuthService resolves bearer tokens to the users they were issued for.
type AuthService struct {
	users  UserRepository
	tokens *auth.TokenService
}

func NewAuthService(users UserRepository, tokens *auth.TokenService) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

// Authenticate checks the Authorization header value and returns the user whose
// current access token it carries.
func (s *AuthService) Authenticate(ctx context.Context, authorization string) (types.AuthUser, error) {
	token, err := BearerToken(authorization)
	if err != nil {
		return types.AuthUser{}, err
	}

	claims, err := verifyToken(s.tokens, token)
	if err != nil {
		return types.AuthUser{}, err
	}

	user, err := s.users.FindOne(ctx, store.UserFilter{
		UserID:      claims.UserID,
		Email:       claims.Email,
		AccessToken: token,
	}, store.UserFieldUserID, store.UserFieldEmail)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.AuthUser{}, apperr.NotFound(apperr.UserNotFound)
		}
		return types.AuthUser{}, err
	}

	return types.AuthUser{UserID: user.UserID, Email: user.Email}, nil
}

// verifyToken checks the signature and expiry of token and reports forged and
// expired tokens with their own codes.
func verifyToken(tokens *auth.TokenService, token string) (*auth.Claims, error) {
	claims, err := tokens.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperr.Forbidden(apperr.AuthJWTTokenHasBeenExpired)
		}
		return nil, apperr.Forbidden(apperr.AuthJWTUnauthorized)
	}
	return claims, nil
}

// BearerToken extracts the token of a "Bearer <token>" header value.
func BearerToken(authorization string) (string, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return "", apperr.Forbidden(apperr.AuthJWTAuthHeaderRequired)
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperr.Forbidden(apperr.AuthJWTAuthHeaderRequired)
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", apperr.Forbidden(apperr.AuthJWTAuthHeaderRequired)
	}
	return token, nil
}
