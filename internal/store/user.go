package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/takemehome/accounts/internal/apperr"
	"github.com/takemehome/accounts/internal/db"
	"github.com/takemehome/accounts/types"
)

// UserField names a column of the users table that FindOne can project.
type UserField string

const (
	UserFieldUserID          UserField = "user_id"
	UserFieldFirstname       UserField = "first_name"
	UserFieldLastname        UserField = "last_name"
	UserFieldEmail           UserField = "email"
	UserFieldPhone           UserField = "phone"
	UserFieldPassword        UserField = "password"
	UserFieldIsEmailVerified UserField = "is_email_verified"
	UserFieldIdentityID      UserField = "identity_id"
	UserFieldAccessToken     UserField = "access_token"
	UserFieldRefreshToken    UserField = "refresh_token"
	UserFieldCreatedDate     UserField = "created_date"
	UserFieldUpdatedDate     UserField = "updated_date"
)

var allUserFields = []UserField{
	UserFieldUserID,
	UserFieldFirstname,
	UserFieldLastname,
	UserFieldEmail,
	UserFieldPhone,
	UserFieldPassword,
	UserFieldIsEmailVerified,
	UserFieldIdentityID,
	UserFieldAccessToken,
	UserFieldRefreshToken,
	UserFieldCreatedDate,
	UserFieldUpdatedDate,
}

// ProfileFields is the projection that never includes credentials or tokens.
var ProfileFields = []UserField{
	UserFieldUserID,
	UserFieldFirstname,
	UserFieldLastname,
	UserFieldEmail,
	UserFieldPhone,
	UserFieldIsEmailVerified,
	UserFieldCreatedDate,
	UserFieldUpdatedDate,
}

// UserFilter selects live users. Empty fields are ignored; at least one must be set.
type UserFilter struct {
	UserID        string
	Email         string
	AccessToken   string
	RefreshToken  string
	EmailVerified *bool
}

// UserPatch lists the columns UpdateOne changes. Nil fields are left untouched.
// A token set to an invalid sql.NullString is cleared.
type UserPatch struct {
	Firstname       *string
	Lastname        *string
	Phone           *string
	IsEmailVerified *bool
	AccessToken     *sql.NullString
	RefreshToken    *sql.NullString
}

// SetTokens builds a patch that stores a new session token pair.
func SetTokens(pair types.TokenPair) UserPatch {
	return UserPatch{
		AccessToken:  &sql.NullString{String: pair.AccessToken, Valid: true},
		RefreshToken: &sql.NullString{String: pair.RefreshToken, Valid: true},
	}
}

// ClearTokens builds a patch that invalidates the current session.
func ClearTokens() UserPatch {
	return UserPatch{
		AccessToken:  &sql.NullString{},
		RefreshToken: &sql.NullString{},
	}
}

// UserRepository handles persistence for users.
type UserRepository struct {
	db db.DBTX
}

func NewUserRepository(handle db.DBTX) *UserRepository {
	return &UserRepository{db: handle}
}

// WithTx returns a repository whose calls run on the given transaction handle.
func (r *UserRepository) WithTx(tx db.DBTX) *UserRepository {
	return &UserRepository{db: tx}
}

// Create inserts a new user. A missing UserID is generated.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}

	const query = `
		INSERT INTO users (user_id, first_name, last_name, email, phone, password, is_email_verified, identity_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_date, updated_date`
	err := r.db.QueryRowContext(ctx, query,
		user.UserID,
		user.Firstname,
		user.Lastname,
		user.Email,
		user.Phone,
		user.Password,
		user.IsEmailVerified,
		user.IdentityID,
	).Scan(&user.CreatedDate, &user.UpdatedDate)
	if err != nil {
		return types.User{}, writeError("insert user", err, apperr.UserInsertOneError)
	}
	return user, nil
}

// FindOne returns the first live user matching filter, reading only the given
// fields (all columns when none are given). It returns ErrNotFound when nothing matches.
func (r *UserRepository) FindOne(ctx context.Context, filter UserFilter, fields ...UserField) (types.User, error) {
	if len(fields) == 0 {
		fields = allUserFields
	}
	where, args, err := filter.where(1)
	if err != nil {
		return types.User{}, apperr.Database(err, apperr.DefaultDatabaseError)
	}

	var user types.User
	columns := make([]string, 0, len(fields))
	dest := make([]any, 0, len(fields))
	for _, field := range fields {
		target, err := userFieldTarget(&user, field)
		if err != nil {
			return types.User{}, apperr.Database(err, apperr.DefaultDatabaseError)
		}
		columns = append(columns, string(field))
		dest = append(dest, target)
	}

	query := "SELECT " + strings.Join(columns, ", ") + " FROM users WHERE " + where + " LIMIT 1"
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, apperr.Database(fmt.Errorf("find user: %w", err), apperr.DefaultDatabaseError)
	}
	return user, nil
}

// UpdateOne applies patch to the live user matching filter and bumps updated_date.
// It returns ErrNotFound when no row matched, which callers use as a
// compare-and-swap guard (e.g. filtering on the stored refresh token).
func (r *UserRepository) UpdateOne(ctx context.Context, filter UserFilter, patch UserPatch) error {
	sets, args := patch.assignments()
	if len(sets) == 0 {
		return apperr.Database(errors.New("update user: empty patch"), apperr.UserUpdateOneError)
	}
	sets = append(sets, "updated_date = now()")

	where, whereArgs, err := filter.where(len(args) + 1)
	if err != nil {
		return apperr.Database(err, apperr.UserUpdateOneError)
	}
	args = append(args, whereArgs...)

	query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE " + where
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return writeError("update user", err, apperr.UserUpdateOneError)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return writeError("update user", err, apperr.UserUpdateOneError)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOne hard-deletes the live user matching filter.
func (r *UserRepository) DeleteOne(ctx context.Context, filter UserFilter) error {
	where, args, err := filter.where(1)
	if err != nil {
		return apperr.Database(err, apperr.UserDeleteOneError)
	}

	query := "DELETE FROM users WHERE " + where
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return writeError("delete user", err, apperr.UserDeleteOneError)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return writeError("delete user", err, apperr.UserDeleteOneError)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (f UserFilter) where(next int) (string, []any, error) {
	conds := []string{"deleted_date IS NULL"}
	var args []any
	add := func(column string, value any) {
		conds = append(conds, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, value)
		next++
	}

	if f.UserID != "" {
		add("user_id", f.UserID)
	}
	if f.Email != "" {
		add("email", f.Email)
	}
	if f.AccessToken != "" {
		add("access_token", f.AccessToken)
	}
	if f.RefreshToken != "" {
		add("refresh_token", f.RefreshToken)
	}
	if f.EmailVerified != nil {
		add("is_email_verified", *f.EmailVerified)
	}
	if len(args) == 0 {
		return "", nil, errors.New("user filter has no criteria")
	}
	return strings.Join(conds, " AND "), args, nil
}

func (p UserPatch) assignments() ([]string, []any) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Firstname != nil {
		add("first_name", *p.Firstname)
	}
	if p.Lastname != nil {
		add("last_name", *p.Lastname)
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.IsEmailVerified != nil {
		add("is_email_verified", *p.IsEmailVerified)
	}
	if p.AccessToken != nil {
		add("access_token", *p.AccessToken)
	}
	if p.RefreshToken != nil {
		add("refresh_token", *p.RefreshToken)
	}
	return sets, args
}

func userFieldTarget(user *types.User, field UserField) (any, error) {
	switch field {
	case UserFieldUserID:
		return &user.UserID, nil
	case UserFieldFirstname:
		return &user.Firstname, nil
	case UserFieldLastname:
		return &user.Lastname, nil
	case UserFieldEmail:
		return &user.Email, nil
	case UserFieldPhone:
		return &user.Phone, nil
	case UserFieldPassword:
		return &user.Password, nil
	case UserFieldIsEmailVerified:
		return &user.IsEmailVerified, nil
	case UserFieldIdentityID:
		return &user.IdentityID, nil
	case UserFieldAccessToken:
		return &user.AccessToken, nil
	case UserFieldRefreshToken:
		return &user.RefreshToken, nil
	case UserFieldCreatedDate:
		return &user.CreatedDate, nil
	case UserFieldUpdatedDate:
		return &user.UpdatedDate, nil
	default:
		return nil, fmt.Errorf("unknown user field %q", field)
	}
}
