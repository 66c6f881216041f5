package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/takemehome/accounts/internal/apperr"
	"github.com/takemehome/accounts/internal/db"
	"github.com/takemehome/accounts/types"
)

// IdentityRepository handles persistence for identity provider links.
type IdentityRepository struct {
	db db.DBTX
}

func NewIdentityRepository(handle db.DBTX) *IdentityRepository {
	return &IdentityRepository{db: handle}
}

func (r *IdentityRepository) WithTx(tx db.DBTX) *IdentityRepository {
	return &IdentityRepository{db: tx}
}

func (r *IdentityRepository) Create(ctx context.Context, identity types.Identity) (types.Identity, error) {
	if identity.IdentityID == "" {
		identity.IdentityID = uuid.NewString()
	}

	const query = `
		INSERT INTO identities (identity_id, provider_user_id)
		VALUES ($1, $2)
		RETURNING created_date, updated_date`
	err := r.db.QueryRowContext(ctx, query, identity.IdentityID, identity.ProviderUserID).
		Scan(&identity.CreatedDate, &identity.UpdatedDate)
	if err != nil {
		return types.Identity{}, writeError("insert identity", err, apperr.IdentityInsertOneError)
	}
	return identity, nil
}

func (r *IdentityRepository) FindOne(ctx context.Context, identityID string) (types.Identity, error) {
	const query = `
		SELECT identity_id, provider_user_id, created_date, updated_date
		FROM identities
		WHERE identity_id = $1 AND deleted_date IS NULL`
	var identity types.Identity
	err := r.db.QueryRowContext(ctx, query, identityID).Scan(
		&identity.IdentityID,
		&identity.ProviderUserID,
		&identity.CreatedDate,
		&identity.UpdatedDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Identity{}, ErrNotFound
		}
		return types.Identity{}, apperr.Database(fmt.Errorf("find identity: %w", err), apperr.DefaultDatabaseError)
	}
	return identity, nil
}

func (r *IdentityRepository) DeleteOne(ctx context.Context, identityID string) error {
	const query = `DELETE FROM identities WHERE identity_id = $1`
	result, err := r.db.ExecContext(ctx, query, identityID)
	if err != nil {
		return writeError("delete identity", err, apperr.IdentityDeleteOneError)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return writeError("delete identity", err, apperr.IdentityDeleteOneError)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
