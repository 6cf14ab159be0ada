package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tudu/server/internal/logger"
	"github.com/tudu/server/internal/model"
	"github.com/tudu/server/internal/repo"
	apperrors "github.com/tudu/server/pkg/errors"
)

// SignupParams carries the identity fields submitted alongside the signup code.
type SignupParams struct {
	Name     string
	Email    string
	Mobile   string
	Password string
}

// AuthService composes the challenge manager with the credential store:
// verified signup, login, password reset and device registration.
type AuthService struct {
	challenges *ChallengeManager
	jwtService *JWTService
	userRepo   repo.UserRepo
	hasher     *Hasher
	logger     *logger.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	challenges *ChallengeManager,
	jwtService *JWTService,
	userRepo repo.UserRepo,
	hasher *Hasher,
	log *logger.Logger,
) *AuthService {
	return &AuthService{
		challenges: challenges,
		jwtService: jwtService,
		userRepo:   userRepo,
		hasher:     hasher,
		logger:     log,
	}
}

// RequestSignupOTP issues a signup challenge for an unregistered email.
func (s *AuthService) RequestSignupOTP(ctx context.Context, email string) error {
	return s.challenges.RequestChallenge(ctx, email, model.PurposeSignup)
}

// RequestPasswordResetOTP issues a password-reset challenge for a registered email.
func (s *AuthService) RequestPasswordResetOTP(ctx context.Context, email string) error {
	return s.challenges.RequestChallenge(ctx, email, model.PurposePasswordReset)
}

// CompleteSignup verifies the signup challenge, creates the identity and
// issues a session token. A concurrent registration between verification and
// creation surfaces as ErrIdentityConflict from the store's unique index.
func (s *AuthService) CompleteSignup(ctx context.Context, params SignupParams, code string) (model.User, string, error) {
	if err := s.challenges.VerifyChallenge(ctx, params.Email, model.PurposeSignup, code); err != nil {
		return model.User{}, "", err
	}

	passwordHash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return model.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.userRepo.Create(ctx, params.Name, params.Email, params.Mobile, passwordHash)
	if err != nil {
		return model.User{}, "", err
	}

	token, err := s.jwtService.SignAccessToken(user.ID, user.Email)
	if err != nil {
		return model.User{}, "", fmt.Errorf("sign token: %w", err)
	}

	s.logger.Info("signup completed", "user_id", user.ID)
	return user, token, nil
}

// Login verifies the password and issues a session token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (model.User, string, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrIdentityNotFound) {
			return model.User{}, "", apperrors.ErrInvalidCredentials
		}
		return model.User{}, "", err
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return model.User{}, "", apperrors.ErrInvalidCredentials
	}

	token, err := s.jwtService.SignAccessToken(user.ID, user.Email)
	if err != nil {
		return model.User{}, "", fmt.Errorf("sign token: %w", err)
	}
	return user, token, nil
}

// CompletePasswordReset verifies the reset challenge and overwrites the
// stored password hash.
func (s *AuthService) CompletePasswordReset(ctx context.Context, email, code, newPassword string) error {
	if err := s.challenges.VerifyChallenge(ctx, email, model.PurposePasswordReset, code); err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.userRepo.UpdatePasswordHash(ctx, email, passwordHash); err != nil {
		return err
	}

	s.logger.Info("password reset completed", "email", email)
	return nil
}

// RegisterDevice stores the caller's notification address (device token).
func (s *AuthService) RegisterDevice(ctx context.Context, userID uuid.UUID, deviceToken string) error {
	if deviceToken == "" {
		return apperrors.InvalidArg("device_token is required")
	}
	return s.userRepo.UpdateDeviceToken(ctx, userID, deviceToken)
}
