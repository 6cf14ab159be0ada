package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/tudu/server/internal/logger"
	"github.com/tudu/server/internal/model"
	"github.com/tudu/server/internal/notify"
	"github.com/tudu/server/internal/repo"
	apperrors "github.com/tudu/server/pkg/errors"
)

// DefaultOTPTTL is the challenge lifetime used when none is configured.
const DefaultOTPTTL = 10 * time.Minute

// ChallengeManager issues, verifies and consumes OTP challenges. A challenge
// moves Issued -> Consumed (verified or detected expired); a wrong code leaves
// it Issued so the caller can retry until expiry.
type ChallengeManager struct {
	otpRepo  repo.OtpRepo
	userRepo repo.UserRepo
	mailer   notify.Mailer
	salt     string
	ttl      time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

// NewChallengeManager creates a challenge manager. ttl <= 0 falls back to
// DefaultOTPTTL.
func NewChallengeManager(
	otpRepo repo.OtpRepo,
	userRepo repo.UserRepo,
	mailer notify.Mailer,
	salt string,
	ttl time.Duration,
	log *logger.Logger,
) *ChallengeManager {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	return &ChallengeManager{
		otpRepo:  otpRepo,
		userRepo: userRepo,
		mailer:   mailer,
		salt:     salt,
		ttl:      ttl,
		logger:   log,
		now:      time.Now,
	}
}

func purposeLabel(purpose model.Purpose) string {
	if purpose == model.PurposePasswordReset {
		return "Reset password"
	}
	return "Sign up"
}

// RequestChallenge generates a 6-digit code, persists its hash with
// expiry = now + ttl, and dispatches the plaintext code to the email.
// Signup for a registered email fails with ErrIdentityConflict; password
// reset for an unknown email fails with ErrIdentityNotFound. A dispatch
// failure is returned to the caller but the persisted challenge stands:
// the user may still verify it or request a fresh one.
func (m *ChallengeManager) RequestChallenge(ctx context.Context, email string, purpose model.Purpose) error {
	if !purpose.Valid() {
		return apperrors.InvalidArg(fmt.Sprintf("unknown challenge purpose %q", purpose))
	}

	exists, err := m.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check registration: %w", err)
	}
	switch purpose {
	case model.PurposeSignup:
		if exists {
			return apperrors.ErrIdentityConflict
		}
	case model.PurposePasswordReset:
		if !exists {
			return apperrors.ErrIdentityNotFound
		}
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	expiresAt := m.now().Add(m.ttl)
	challengeID, err := m.otpRepo.Create(ctx, email, purpose, hashCodeHex(email, code, m.salt), expiresAt)
	if err != nil {
		return fmt.Errorf("persist challenge: %w", err)
	}

	if err := m.mailer.SendChallengeCode(ctx, email, code, purposeLabel(purpose)); err != nil {
		m.logger.Error("challenge dispatch failed",
			"challenge_id", challengeID,
			"purpose", purpose,
			"error", err.Error())
		return err
	}

	m.logger.Info("challenge issued",
		"challenge_id", challengeID,
		"purpose", purpose)
	return nil
}

// VerifyChallenge checks the submitted code against the newest unconsumed
// challenge for (email, purpose).
//
// Outcomes: ErrNoChallenge when none exists (or the last one was consumed),
// ErrChallengeExpired when past expiry (the challenge is consumed so the
// expiry is only ever reported once), ErrInvalidCode on hash mismatch
// (challenge stays live for retries), nil on match (challenge consumed).
func (m *ChallengeManager) VerifyChallenge(ctx context.Context, email string, purpose model.Purpose, code string) error {
	challenge, err := m.otpRepo.GetLatestUnconsumed(ctx, email, purpose)
	if err != nil {
		return err
	}

	if m.now().After(challenge.ExpiresAt) {
		if err := m.otpRepo.MarkConsumed(ctx, challenge.ID); err != nil {
			return fmt.Errorf("consume expired challenge: %w", err)
		}
		return apperrors.ErrChallengeExpired
	}

	submitted := hashCodeBytes(email, code, m.salt)
	if subtle.ConstantTimeCompare(submitted, challenge.CodeHash) != 1 {
		return apperrors.ErrInvalidCode
	}

	if err := m.otpRepo.MarkConsumed(ctx, challenge.ID); err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	return nil
}

// generateCode returns a uniformly distributed 6-digit code (100000-999999).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// hashCodeHex returns SHA-256(email:code:salt) as hex for ledger storage
func hashCodeHex(email, code, salt string) string {
	return hex.EncodeToString(hashCodeBytes(email, code, salt))
}

func hashCodeBytes(email, code, salt string) []byte {
	data := fmt.Sprintf("%s:%s:%s", email, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hash[:]
}
