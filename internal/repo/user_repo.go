package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tudu/server/internal/model"
	apperrors "github.com/tudu/server/pkg/errors"
)

// UserRepo defines the interface for credential store operations
type UserRepo interface {
	Create(ctx context.Context, name, email, mobile, passwordHash string) (model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdatePasswordHash(ctx context.Context, email, passwordHash string) error
	UpdateDeviceToken(ctx context.Context, userID uuid.UUID, deviceToken string) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const uniqueViolation = "23505"

// Create inserts a new user. Returns ErrIdentityConflict if the email is
// already registered (covers the verify-then-create race via the unique index).
func (r *userRepo) Create(ctx context.Context, name, email, mobile, passwordHash string) (model.User, error) {
	query := `
		INSERT INTO users (name, email, mobile, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	user := model.User{
		Name:         name,
		Email:        email,
		Mobile:       mobile,
		PasswordHash: passwordHash,
	}
	var idStr string
	err := r.db.QueryRowContext(ctx, query, name, email, mobile, passwordHash).Scan(
		&idStr,
		&user.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return model.User{}, apperrors.ErrIdentityConflict
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `
		SELECT id, name, email, mobile, password_hash, device_token, created_at
		FROM users
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by email
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `
		SELECT id, name, email, mobile, password_hash, device_token, created_at
		FROM users
		WHERE email = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// ExistsByEmail reports whether a user with the given email is registered
func (r *userRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

// UpdatePasswordHash overwrites the stored password hash for the email
func (r *userRepo) UpdatePasswordHash(ctx context.Context, email, passwordHash string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE email = $1
	`, email, passwordHash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.ErrIdentityNotFound
	}
	return nil
}

// UpdateDeviceToken registers or replaces the user's notification address
func (r *userRepo) UpdateDeviceToken(ctx context.Context, userID uuid.UUID, deviceToken string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET device_token = $2 WHERE id = $1
	`, userID, deviceToken)
	if err != nil {
		return fmt.Errorf("update device token: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.ErrIdentityNotFound
	}
	return nil
}

func (r *userRepo) scanOne(row *sql.Row) (model.User, error) {
	var user model.User
	var idStr string
	var deviceToken sql.NullString
	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.Mobile,
		&user.PasswordHash,
		&deviceToken,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, apperrors.ErrIdentityNotFound
		}
		return model.User{}, fmt.Errorf("query user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	if deviceToken.Valid && deviceToken.String != "" {
		user.DeviceToken = &deviceToken.String
	}
	return user, nil
}
