package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/takemehome/accounts/config"
	"github.com/takemehome/accounts/types"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the payload carried by access and refresh tokens.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Expired reports whether the token is past its expiry at now.
// Tokens without an expiry are treated as expired.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return now.After(c.ExpiresAt.Time)
}

// AuthUser returns the identity the token was issued for.
func (c *Claims) AuthUser() types.AuthUser {
	return types.AuthUser{UserID: c.UserID, Email: c.Email}
}

// TokenService signs and decodes HS256 session tokens.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(cfg config.AuthConfig) *TokenService {
	return &TokenService{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
	}
}

// WithClock returns a copy of s that reads the current time from now.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	clone := *s
	clone.now = now
	return &clone
}

// SignTokens issues an access/refresh pair for subject. Both tokens carry the
// same claims and differ in expiry and token id.
func (s *TokenService) SignTokens(subject types.AuthUser) (types.TokenPair, error) {
	now := s.now()

	access, err := s.sign(subject, now, s.accessTTL)
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.sign(subject, now, s.refreshTTL)
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return types.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *TokenService) sign(subject types.AuthUser, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: subject.UserID,
		Email:  subject.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Decode verifies the signature of tokenString and returns its claims.
// Expiry is not checked here, callers use Claims.Expired so that an expired
// token can be reported apart from a forged or malformed one.
func (s *TokenService) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.Email) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// Verify decodes tokenString and rejects it when expired.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	claims, err := s.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Expired(s.now()) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}
