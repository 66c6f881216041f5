package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/takemehome/accounts/config"
	"github.com/takemehome/accounts/internal/apperr"
	"github.com/takemehome/accounts/internal/auth"
	"github.com/takemehome/accounts/internal/db"
	"github.com/takemehome/accounts/internal/store"
	"github.com/takemehome/accounts/types"
)

// fakeUsers is an in-memory UserRepository with the filter semantics of the SQL store.
type fakeUsers struct {
	mu        sync.Mutex
	rows      map[string]types.User
	createErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{rows: make(map[string]types.User)}
}

func (f *fakeUsers) Create(_ context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return types.User{}, f.createErr
	}
	for _, row := range f.rows {
		if row.Email == user.Email {
			return types.User{}, apperr.Database(errors.Join(store.ErrUniqueViolation, errors.New("duplicate email")), apperr.UserInsertOneError)
		}
	}
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedDate, user.UpdatedDate = now, now
	f.rows[user.UserID] = user
	return user, nil
}

func (f *fakeUsers) FindOne(_ context.Context, filter store.UserFilter, _ ...store.UserField) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if matches(row, filter) {
			return row, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUsers) UpdateOne(_ context.Context, filter store.UserFilter, patch store.UserPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, row := range f.rows {
		if !matches(row, filter) {
			continue
		}
		if patch.IsEmailVerified != nil {
			row.IsEmailVerified = *patch.IsEmailVerified
		}
		if patch.AccessToken != nil {
			row.AccessToken = nullable(*patch.AccessToken)
		}
		if patch.RefreshToken != nil {
			row.RefreshToken = nullable(*patch.RefreshToken)
		}
		row.UpdatedDate = time.Now().UTC()
		f.rows[id] = row
		return nil
	}
	return store.ErrNotFound
}

func (f *fakeUsers) DeleteOne(_ context.Context, filter store.UserFilter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, row := range f.rows {
		if matches(row, filter) {
			delete(f.rows, id)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeUsers) byEmail(email string) (types.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.Email == email {
			return row, true
		}
	}
	return types.User{}, false
}

func (f *fakeUsers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func matches(row types.User, filter store.UserFilter) bool {
	if filter.UserID != "" && row.UserID != filter.UserID {
		return false
	}
	if filter.Email != "" && row.Email != filter.Email {
		return false
	}
	if filter.AccessToken != "" && (row.AccessToken == nil || *row.AccessToken != filter.AccessToken) {
		return false
	}
	if filter.RefreshToken != "" && (row.RefreshToken == nil || *row.RefreshToken != filter.RefreshToken) {
		return false
	}
	if filter.EmailVerified != nil && row.IsEmailVerified != *filter.EmailVerified {
		return false
	}
	return true
}

func nullable(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

type fakeIdentities struct {
	mu   sync.Mutex
	rows map[string]types.Identity
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{rows: make(map[string]types.Identity)}
}

func (f *fakeIdentities) Create(_ context.Context, identity types.Identity) (types.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if identity.IdentityID == "" {
		identity.IdentityID = uuid.NewString()
	}
	f.rows[identity.IdentityID] = identity
	return identity, nil
}

func (f *fakeIdentities) FindOne(_ context.Context, identityID string) (types.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.rows[identityID]
	if !ok {
		return types.Identity{}, store.ErrNotFound
	}
	return identity, nil
}

func (f *fakeIdentities) DeleteOne(_ context.Context, identityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[identityID]; !ok {
		return store.ErrNotFound
	}
	delete(f.rows, identityID)
	return nil
}

// fakeStores hands out the same fakes whatever the handle.
type fakeStores struct {
	users      *fakeUsers
	identities *fakeIdentities
}

func (s fakeStores) Users(db.DBTX) UserRepository { return s.users }
func (s fakeStores) Identities(db.DBTX) IdentityRepository { return s.identities }

type fakeCodes struct {
	mu     sync.Mutex
	codes  map[string]string
	issued []string
}

func newFakeCodes() *fakeCodes {
	return &fakeCodes{codes: make(map[string]string)}
}

func (c *fakeCodes) Issue(_ context.Context, email string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	code := fmt.Sprintf("%06d", len(c.issued)+100000)
	c.codes[email] = code
	c.issued = append(c.issued, email)
	return code, nil
}

func (c *fakeCodes) Verify(_ context.Context, email, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if want, ok := c.codes[email]; !ok || want != code {
		return errors.New("code mismatch")
	}
	delete(c.codes, email)
	return nil
}

type fakeProvider struct {
	mu        sync.Mutex
	signUpErr error
	deleteErr error
	signedUp  []string
	deleted   []string

	// onSignUp runs after a successful provider sign-up.
	onSignUp func()
	// deleteCtxErrs records ctx.Err() seen by each DeleteUser call.
	deleteCtxErrs []error
}

func (p *fakeProvider) SignUp(_ context.Context, email, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signUpErr != nil {
		return "", p.signUpErr
	}
	sub := "sub-" + email
	p.signedUp = append(p.signedUp, sub)
	if p.onSignUp != nil {
		p.onSignUp()
	}
	return sub, nil
}

func (p *fakeProvider) DeleteUser(ctx context.Context, providerUserID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, providerUserID)
	p.deleteCtxErrs = append(p.deleteCtxErrs, ctx.Err())
	return p.deleteErr
}

type fakeEvents struct {
	mu     sync.Mutex
	events []types.AccountEvent
	err    error
}

func (e *fakeEvents) PublishEvent(_ context.Context, event types.AccountEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, event)
	return nil
}

func (e *fakeEvents) eventTypes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, event := range e.events {
		out = append(out, event.Type)
	}
	return out
}

type fixture struct {
	svc        *UserService
	auth       *AuthService
	users      *fakeUsers
	identities *fakeIdentities
	codes      *fakeCodes
	events     *fakeEvents
	tokens     *auth.TokenService
	mock       sqlmock.Sqlmock
}

func newFixture(t *testing.T, provider IdentityProvider) *fixture {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	f := &fixture{
		users:      newFakeUsers(),
		identities: newFakeIdentities(),
		codes:      newFakeCodes(),
		events:     &fakeEvents{},
		tokens: auth.NewTokenService(config.AuthConfig{
			JWTSecret:       "test-secret",
			AccessTokenTTL:  time.Minute,
			RefreshTokenTTL: time.Hour,
		}),
		mock: mock,
	}
	f.rebuild(conn, provider)
	return f
}

func (f *fixture) rebuild(handle db.DBTX, provider IdentityProvider) {
	f.svc = NewUserService(UserServiceDeps{
		DB:                   handle,
		Stores:               fakeStores{users: f.users, identities: f.identities},
		Tokens:               f.tokens,
		Passwords:            auth.NewBcrypt(4),
		Codes:                f.codes,
		Provider:             provider,
		Events:               f.events,
		RequireVerifiedEmail: true,
	})
	f.auth = NewAuthService(f.users, f.tokens)
}

// seedVerified signs up and verifies a user through the service.
func (f *fixture) seedVerified(t *testing.T, email, password string) types.User {
	t.Helper()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.SignUp(context.Background(), types.SignUpInput{
		Firstname: "Bob",
		Lastname:  "Marcos",
		Email:     email,
		Phone:     "+380677777777",
		Password:  password,
	}))
	code := f.codes.codes[email]
	require.NoError(t, f.svc.Verify(context.Background(), email, code))
	user, ok := f.users.byEmail(email)
	require.True(t, ok)
	return user
}

func requireAppErr(t *testing.T, err error, status, code int) {
	t.Helper()
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, status, appErr.Status)
	require.Equal(t, code, apperr.Code(err))
}
