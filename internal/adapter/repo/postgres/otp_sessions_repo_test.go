package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharow/sharow/internal/adapter/repo/postgres"
	"github.com/sharow/sharow/internal/domain"
)

func TestOtpSessionRepo_CreateAndGet(t *testing.T) {
	t.Parallel()

	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	now := time.Now().UTC()
	s := domain.OtpSession{
		ID: uuid.New(), Email: "ana@example.com", Username: "ana",
		PasswordHash: "pw", OtpHash: "otp", CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute),
	}
	m.ExpectExec("INSERT INTO otp_sessions").
		WithArgs(s.ID, s.Email, s.Username, s.PasswordHash, s.OtpHash, 0, s.CreatedAt, s.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectQuery(`FROM otp_sessions WHERE id=\$1`).
		WithArgs(s.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "username", "password_hash", "otp_hash", "attempts", "created_at", "expires_at"}).
			AddRow(s.ID, s.Email, s.Username, s.PasswordHash, s.OtpHash, 2, s.CreatedAt, s.ExpiresAt))

	repo := postgres.NewOtpSessionRepo(m)
	require.NoError(t, repo.Create(context.Background(), s))
	got, err := repo.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, s.Email, got.Email)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestOtpSessionRepo_Get_NotFound(t *testing.T) {
	t.Parallel()

	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	id := uuid.New()
	m.ExpectQuery(`FROM otp_sessions WHERE id=\$1`).WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err = postgres.NewOtpSessionRepo(m).Get(context.Background(), id)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestOtpSessionRepo_ClaimAttempt(t *testing.T) {
	t.Parallel()

	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	id := uuid.New()
	const q = `UPDATE otp_sessions SET attempts = attempts \+ 1 WHERE id=\$1 AND attempts < \$2 RETURNING attempts`
	m.ExpectQuery(q).
		WithArgs(id, 3).
		WillReturnRows(pgxmock.NewRows([]string{"attempts"}).AddRow(3))
	m.ExpectQuery(q).
		WithArgs(id, 3).
		WillReturnError(pgx.ErrNoRows)

	repo := postgres.NewOtpSessionRepo(m)
	n, err := repo.ClaimAttempt(context.Background(), id, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = repo.ClaimAttempt(context.Background(), id, 3)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestOtpSessionRepo_Renew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{"renewed", 1, nil},
		{"missing", 0, domain.ErrNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer m.Close()
			id := uuid.New()
			exp := time.Now().Add(5 * time.Minute)
			m.ExpectExec(`UPDATE otp_sessions SET otp_hash=\$2, attempts=0, expires_at=\$3 WHERE id=\$1`).
				WithArgs(id, "newhash", exp).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			err = postgres.NewOtpSessionRepo(m).Renew(context.Background(), id, "newhash", exp)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, m.ExpectationsWereMet())
		})
	}
}

func TestOtpSessionRepo_DeleteAndDeleteExpired(t *testing.T) {
	t.Parallel()

	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()
	id := uuid.New()
	now := time.Now().UTC()
	m.ExpectExec(`DELETE FROM otp_sessions WHERE id=\$1`).WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	m.ExpectExec(`DELETE FROM otp_sessions WHERE expires_at <= \$1`).WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	repo := postgres.NewOtpSessionRepo(m)
	require.NoError(t, repo.Delete(context.Background(), id))
	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, m.ExpectationsWereMet())
}
