package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/takemehome/accounts/internal/apperr"
	"github.com/takemehome/accounts/types"
)

func newUserRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewUserRepository(conn), mock
}

func TestUserCreate_Success(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	q := `(?s)^\s*INSERT\s+INTO\s+users\s*\(user_id,\s*first_name,\s*last_name,\s*email,\s*phone,\s*password,\s*is_email_verified,\s*identity_id\).*RETURNING\s+created_date,\s*updated_date\s*$`
	mock.ExpectQuery(q).
		WithArgs(sqlmock.AnyArg(), "Bob", "Marcos", "email-valid@gmail.com", "+380677777777", "hash", false, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_date", "updated_date"}).AddRow(now, now))

	got, err := repo.Create(context.Background(), types.User{
		Firstname: "Bob",
		Lastname:  "Marcos",
		Email:     "email-valid@gmail.com",
		Phone:     "+380677777777",
		Password:  "hash",
	})
	require.NoError(t, err)
	assert.Len(t, got.UserID, 36)
	assert.Equal(t, now, got.CreatedDate)
	assert.Nil(t, got.AccessToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreate_UniqueViolation(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := repo.Create(context.Background(), types.User{UserID: "u-1", Email: "dup@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUniqueViolation)
	assert.Equal(t, apperr.UserInsertOneError.ErrorCode, apperr.Code(err))
}

func TestUserCreate_DBError(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), types.User{UserID: "u-1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUniqueViolation)
	assert.Equal(t, 20001, apperr.Code(err))
	assert.Contains(t, err.Error(), "db down")
}

func TestUserFindOne_Projection(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	q := `^SELECT user_id, email FROM users WHERE deleted_date IS NULL AND user_id = \$1 AND email = \$2 AND access_token = \$3 LIMIT 1$`
	mock.ExpectQuery(q).
		WithArgs("u-1", "a@example.com", "tok").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "email"}).AddRow("u-1", "a@example.com"))

	got, err := repo.FindOne(context.Background(),
		UserFilter{UserID: "u-1", Email: "a@example.com", AccessToken: "tok"},
		UserFieldUserID, UserFieldEmail,
	)
	require.NoError(t, err)
	assert.Equal(t, types.User{UserID: "u-1", Email: "a@example.com"}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserFindOne_AllFieldsWithNulls(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	now := time.Now().UTC()
	verified := true
	columns := []string{
		"user_id", "first_name", "last_name", "email", "phone", "password", "is_email_verified",
		"identity_id", "access_token", "refresh_token", "created_date", "updated_date",
	}
	mock.ExpectQuery(`^SELECT user_id, first_name, .* FROM users WHERE deleted_date IS NULL AND email = \$1 AND is_email_verified = \$2 LIMIT 1$`).
		WithArgs("a@example.com", true).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"u-1", "Bob", "Marcos", "a@example.com", "+1", "hash", true,
			nil, "access", nil, now, now,
		))

	got, err := repo.FindOne(context.Background(), UserFilter{Email: "a@example.com", EmailVerified: &verified})
	require.NoError(t, err)
	assert.Equal(t, "hash", got.Password)
	assert.Nil(t, got.IdentityID)
	require.NotNil(t, got.AccessToken)
	assert.Equal(t, "access", *got.AccessToken)
	assert.Nil(t, got.RefreshToken)
}

func TestUserFindOne_NotFound(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery(`FROM users`).WithArgs("ghost@example.com").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindOne(context.Background(), UserFilter{Email: "ghost@example.com"}, UserFieldUserID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserFindOne_EmptyFilter(t *testing.T) {
	repo, _ := newUserRepoWithMock(t)

	_, err := repo.FindOne(context.Background(), UserFilter{}, UserFieldUserID)
	require.Error(t, err)
	assert.Equal(t, 20000, apperr.Code(err))
}

func TestUserUpdateOne_CompareAndSwap(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	q := `^UPDATE users SET access_token = \$1, refresh_token = \$2, updated_date = now\(\) WHERE deleted_date IS NULL AND user_id = \$3 AND email = \$4 AND refresh_token = \$5$`
	mock.ExpectExec(q).
		WithArgs("new-access", "new-refresh", "u-1", "a@example.com", "old-refresh").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs("new-access", "new-refresh", "u-1", "a@example.com", "old-refresh").
		WillReturnResult(sqlmock.NewResult(0, 0))

	filter := UserFilter{UserID: "u-1", Email: "a@example.com", RefreshToken: "old-refresh"}
	patch := SetTokens(types.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh"})

	require.NoError(t, repo.UpdateOne(context.Background(), filter, patch))
	// the stored refresh token already rotated
	assert.ErrorIs(t, repo.UpdateOne(context.Background(), filter, patch), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpdateOne_ClearTokens(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectExec(`^UPDATE users SET access_token = \$1, refresh_token = \$2, updated_date = now\(\) WHERE deleted_date IS NULL AND user_id = \$3$`).
		WithArgs(nil, nil, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateOne(context.Background(), UserFilter{UserID: "u-1"}, ClearTokens()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpdateOne_Errors(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	err := repo.UpdateOne(context.Background(), UserFilter{UserID: "u-1"}, UserPatch{})
	assert.Equal(t, 20003, apperr.Code(err))

	verified := true
	mock.ExpectExec(`UPDATE users SET is_email_verified = \$1`).WillReturnError(errors.New("db down"))
	err = repo.UpdateOne(context.Background(), UserFilter{Email: "a@example.com"}, UserPatch{IsEmailVerified: &verified})
	assert.Equal(t, 20003, apperr.Code(err))
}

func TestUserDeleteOne(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	q := `^DELETE FROM users WHERE deleted_date IS NULL AND user_id = \$1$`
	mock.ExpectExec(q).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("u-2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs("u-3").WillReturnError(errors.New("db down"))

	require.NoError(t, repo.DeleteOne(context.Background(), UserFilter{UserID: "u-1"}))
	assert.ErrorIs(t, repo.DeleteOne(context.Background(), UserFilter{UserID: "u-2"}), ErrNotFound)
	assert.Equal(t, 20002, apperr.Code(repo.DeleteOne(context.Background(), UserFilter{UserID: "u-3"})))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserWithTx(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM users`).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	tx, err := conn.Begin()
	require.NoError(t, err)

	repo := NewUserRepository(conn).WithTx(tx)
	require.NoError(t, repo.DeleteOne(context.Background(), UserFilter{UserID: "u-1"}))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}
