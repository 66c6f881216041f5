package services

import (
	"context"

	"github.com/takemehome/accounts/internal/db"
	"github.com/takemehome/accounts/internal/store"
	"github.com/takemehome/accounts/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user types.User) (types.User, error)
	FindOne(ctx context.Context, filter store.UserFilter, fields ...store.UserField) (types.User, error)
	UpdateOne(ctx context.Context, filter store.UserFilter, patch store.UserPatch) error
	DeleteOne(ctx context.Context, filter store.UserFilter) error
}

// IdentityRepository defines persistence operations for provider identities.
type IdentityRepository interface {
	Create(ctx context.Context, identity types.Identity) (types.Identity, error)
	FindOne(ctx context.Context, identityID string) (types.Identity, error)
	DeleteOne(ctx context.Context, identityID string) error
}

// Stores opens repositories on a database handle, either the pool or a
// transaction started by the caller.
type Stores interface {
	Users(handle db.DBTX) UserRepository
	Identities(handle db.DBTX) IdentityRepository
}

// SQLStores holds the Postgres repositories bound to the pool and rebinds
// them to other handles on demand.
type SQLStores struct {
	users      *store.UserRepository
	identities *store.IdentityRepository
}

func NewSQLStores(pool db.DBTX) *SQLStores {
	return &SQLStores{
		users:      store.NewUserRepository(pool),
		identities: store.NewIdentityRepository(pool),
	}
}

func (s *SQLStores) Users(handle db.DBTX) UserRepository {
	return s.users.WithTx(handle)
}

func (s *SQLStores) Identities(handle db.DBTX) IdentityRepository {
	return s.identities.WithTx(handle)
}

// IdentityProvider registers and removes users in an external user pool.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (string, error)
	DeleteUser(ctx context.Context, providerUserID string) error
}

// VerificationCodes issues and checks email verification codes. Issue returns
// an empty code when the backend delivers the code itself.
type VerificationCodes interface {
	Issue(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, email, code string) error
}

// EventPublisher hands account events to other services.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event types.AccountEvent) error
}
