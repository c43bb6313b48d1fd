package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sharow/sharow/internal/domain"
)

// OtpSessionRepo persists pending signups.
type OtpSessionRepo struct{ Pool PgxPool }

// NewOtpSessionRepo constructs an OtpSessionRepo with the given pool.
func NewOtpSessionRepo(p PgxPool) *OtpSessionRepo { return &OtpSessionRepo{Pool: p} }

// Create stores a new session.
func (r *OtpSessionRepo) Create(ctx domain.Context, s domain.OtpSession) error {
	ctx, span := startSpan(ctx, "otp_sessions", "Create", "INSERT")
	defer span.End()
	q := `INSERT INTO otp_sessions (id, email, username, password_hash, otp_hash, attempts, created_at, expires_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := r.Pool.Exec(ctx, q, s.ID, s.Email, s.Username, s.PasswordHash, s.OtpHash, s.Attempts, s.CreatedAt, s.ExpiresAt); err != nil {
		return mapErr("otp_session.create", err)
	}
	return nil
}

// Get loads a session by id. Expired rows are still returned; callers check expiry.
func (r *OtpSessionRepo) Get(ctx domain.Context, id uuid.UUID) (domain.OtpSession, error) {
	ctx, span := startSpan(ctx, "otp_sessions", "Get", "SELECT")
	defer span.End()
	q := `SELECT id, email, username, password_hash, otp_hash, attempts, created_at, expires_at FROM otp_sessions WHERE id=$1`
	var s domain.OtpSession
	err := r.Pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.Email, &s.Username, &s.PasswordHash, &s.OtpHash, &s.Attempts, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return domain.OtpSession{}, mapErr("otp_session.get", err)
	}
	return s, nil
}

// ClaimAttempt bumps the attempt counter in the same statement that checks the ceiling.
func (r *OtpSessionRepo) ClaimAttempt(ctx domain.Context, id uuid.UUID, max int) (int, error) {
	ctx, span := startSpan(ctx, "otp_sessions", "ClaimAttempt", "UPDATE")
	defer span.End()
	var attempts int
	err := r.Pool.QueryRow(ctx,
		`UPDATE otp_sessions SET attempts = attempts + 1 WHERE id=$1 AND attempts < $2 RETURNING attempts`,
		id, max).Scan(&attempts)
	if err != nil {
		return 0, mapErr("otp_session.claim_attempt", err)
	}
	return attempts, nil
}

// Renew replaces the code hash, resets attempts and moves the expiry.
func (r *OtpSessionRepo) Renew(ctx domain.Context, id uuid.UUID, otpHash string, expiresAt time.Time) error {
	ctx, span := startSpan(ctx, "otp_sessions", "Renew", "UPDATE")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `UPDATE otp_sessions SET otp_hash=$2, attempts=0, expires_at=$3 WHERE id=$1`, id, otpHash, expiresAt)
	if err != nil {
		return mapErr("otp_session.renew", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=otp_session.renew: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a session; deleting a missing session is not an error.
func (r *OtpSessionRepo) Delete(ctx domain.Context, id uuid.UUID) error {
	ctx, span := startSpan(ctx, "otp_sessions", "Delete", "DELETE")
	defer span.End()
	if _, err := r.Pool.Exec(ctx, `DELETE FROM otp_sessions WHERE id=$1`, id); err != nil {
		return mapErr("otp_session.delete", err)
	}
	return nil
}

// DeleteExpired removes sessions whose expiry is at or before now.
func (r *OtpSessionRepo) DeleteExpired(ctx domain.Context, now time.Time) (int64, error) {
	ctx, span := startSpan(ctx, "otp_sessions", "DeleteExpired", "DELETE")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM otp_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, mapErr("otp_session.delete_expired", err)
	}
	return tag.RowsAffected(), nil
}
