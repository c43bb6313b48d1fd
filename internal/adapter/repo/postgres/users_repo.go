package postgres

import (
	"time"

	"github.com/google/uuid"

	"github.com/sharow/sharow/internal/domain"
)

// UserRepo persists accounts.
type UserRepo struct{ Pool PgxPool }

// NewUserRepo constructs a UserRepo with the given pool.
func NewUserRepo(p PgxPool) *UserRepo { return &UserRepo{Pool: p} }

const userColumns = `id, email, username, password_hash, created_at, updated_at`

// Create inserts u, generating an id when empty. Duplicate email or username yields domain.ErrConflict.
func (r *UserRepo) Create(ctx domain.Context, u domain.User) (domain.User, error) {
	ctx, span := startSpan(ctx, "users", "Create", "INSERT")
	defer span.End()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	q := `INSERT INTO users (` + userColumns + `) VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := r.Pool.Exec(ctx, q, u.ID, u.Email, u.Username, u.PasswordHash, u.CreatedAt, u.UpdatedAt); err != nil {
		return domain.User{}, mapErr("user.create", err)
	}
	return u, nil
}

// GetByID loads a user by id.
func (r *UserRepo) GetByID(ctx domain.Context, id uuid.UUID) (domain.User, error) {
	ctx, span := startSpan(ctx, "users", "GetByID", "SELECT")
	defer span.End()
	return r.getOne(ctx, "user.get_by_id", `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// GetByEmail loads a user by (normalised) email.
func (r *UserRepo) GetByEmail(ctx domain.Context, email string) (domain.User, error) {
	ctx, span := startSpan(ctx, "users", "GetByEmail", "SELECT")
	defer span.End()
	return r.getOne(ctx, "user.get_by_email", `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

func (r *UserRepo) getOne(ctx domain.Context, op, q string, arg any) (domain.User, error) {
	var u domain.User
	err := r.Pool.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapErr(op, err)
	}
	return u, nil
}

// ExistsByEmail reports whether an account uses email.
func (r *UserRepo) ExistsByEmail(ctx domain.Context, email string) (bool, error) {
	ctx, span := startSpan(ctx, "users", "ExistsByEmail", "SELECT")
	defer span.End()
	var ok bool
	if err := r.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email=$1)`, email).Scan(&ok); err != nil {
		return false, mapErr("user.exists_by_email", err)
	}
	return ok, nil
}

// ExistsByUsername reports whether an account uses username.
func (r *UserRepo) ExistsByUsername(ctx domain.Context, username string) (bool, error) {
	ctx, span := startSpan(ctx, "users", "ExistsByUsername", "SELECT")
	defer span.End()
	var ok bool
	if err := r.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username=$1)`, username).Scan(&ok); err != nil {
		return false, mapErr("user.exists_by_username", err)
	}
	return ok, nil
}
