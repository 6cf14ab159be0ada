package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tudu/server/internal/model"
	apperrors "github.com/tudu/server/pkg/errors"
)

// OtpRepo defines the interface for OTP ledger operations
type OtpRepo interface {
	Create(ctx context.Context, email string, purpose model.Purpose, codeHashHex string, expiresAt time.Time) (uuid.UUID, error)
	GetLatestUnconsumed(ctx context.Context, email string, purpose model.Purpose) (model.Challenge, error)
	MarkConsumed(ctx context.Context, challengeID uuid.UUID) error
}

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a new OtpRepo instance
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

// Create inserts a new challenge row. Earlier unconsumed rows for the same
// (email, purpose) are left in place: verification only ever looks at the
// newest one, so they are superseded by being unreachable, and the ledger's
// TTL cleanup removes them physically on its own schedule.
func (r *otpRepo) Create(ctx context.Context, email string, purpose model.Purpose, codeHashHex string, expiresAt time.Time) (uuid.UUID, error) {
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO otp_challenges (email, code_hash, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, email, codeHashHex, string(purpose), expiresAt).Scan(&idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert challenge: %w", err)
	}
	challengeID, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse challenge ID: %w", err)
	}
	return challengeID, nil
}

// GetLatestUnconsumed returns the newest unconsumed challenge for the
// (email, purpose) pair. Expiry is deliberately NOT filtered here: the
// challenge manager must observe an expired row to mark it consumed.
func (r *otpRepo) GetLatestUnconsumed(ctx context.Context, email string, purpose model.Purpose) (model.Challenge, error) {
	query := `
		SELECT id, email, code_hash, purpose, expires_at, consumed_at, created_at
		FROM otp_challenges
		WHERE email = $1
		  AND purpose = $2
		  AND consumed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	var challenge model.Challenge
	var idStr string
	var codeHashHex string
	var purposeStr string
	err := r.db.QueryRowContext(ctx, query, email, string(purpose)).Scan(
		&idStr,
		&challenge.Email,
		&codeHashHex,
		&purposeStr,
		&challenge.ExpiresAt,
		&challenge.ConsumedAt,
		&challenge.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Challenge{}, apperrors.ErrNoChallenge
		}
		return model.Challenge{}, fmt.Errorf("query challenge: %w", err)
	}

	challenge.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Challenge{}, fmt.Errorf("parse challenge ID: %w", err)
	}
	challenge.Purpose = model.Purpose(purposeStr)
	challenge.CodeHash, err = hex.DecodeString(codeHashHex)
	if err != nil {
		return model.Challenge{}, fmt.Errorf("decode code_hash: %w", err)
	}
	return challenge, nil
}

// MarkConsumed sets consumed_at = now() for the challenge. This is the only
// mutation a challenge ever receives; there is no transition out of consumed.
func (r *otpRepo) MarkConsumed(ctx context.Context, challengeID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE otp_challenges SET consumed_at = now() WHERE id = $1 AND consumed_at IS NULL
	`, challengeID)
	if err != nil {
		return fmt.Errorf("mark consumed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperrors.ErrNoChallenge
	}
	return nil
}
