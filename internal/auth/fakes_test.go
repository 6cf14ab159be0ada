package auth

import (
	"context"
	"encoding/hex"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tudu/server/internal/model"
	apperrors "github.com/tudu/server/pkg/errors"
)

// In-memory collaborators for exercising the challenge/signup state machines
// without a database.

type fakeOtpRepo struct {
	challenges []model.Challenge
}

func (f *fakeOtpRepo) Create(_ context.Context, email string, purpose model.Purpose, codeHashHex string, expiresAt time.Time) (uuid.UUID, error) {
	hash, err := hex.DecodeString(codeHashHex)
	if err != nil {
		return uuid.Nil, err
	}
	ch := model.Challenge{
		ID:        uuid.New(),
		Email:     email,
		CodeHash:  hash,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().Add(time.Duration(len(f.challenges)) * time.Millisecond),
	}
	f.challenges = append(f.challenges, ch)
	return ch.ID, nil
}

func (f *fakeOtpRepo) GetLatestUnconsumed(_ context.Context, email string, purpose model.Purpose) (model.Challenge, error) {
	var matches []model.Challenge
	for _, ch := range f.challenges {
		if ch.Email == email && ch.Purpose == purpose && !ch.Consumed() {
			matches = append(matches, ch)
		}
	}
	if len(matches) == 0 {
		return model.Challenge{}, apperrors.ErrNoChallenge
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	return matches[0], nil
}

func (f *fakeOtpRepo) MarkConsumed(_ context.Context, challengeID uuid.UUID) error {
	for i := range f.challenges {
		if f.challenges[i].ID == challengeID && !f.challenges[i].Consumed() {
			now := time.Now()
			f.challenges[i].ConsumedAt = &now
			return nil
		}
	}
	return apperrors.ErrNoChallenge
}

type fakeUserRepo struct {
	users map[string]model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, name, email, mobile, passwordHash string) (model.User, error) {
	if _, ok := f.users[email]; ok {
		return model.User{}, apperrors.ErrIdentityConflict
	}
	user := model.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		Mobile:       mobile,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	f.users[email] = user
	return user, nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, apperrors.ErrIdentityNotFound
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	u, ok := f.users[email]
	if !ok {
		return model.User{}, apperrors.ErrIdentityNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, ok := f.users[email]
	return ok, nil
}

func (f *fakeUserRepo) UpdatePasswordHash(_ context.Context, email, passwordHash string) error {
	u, ok := f.users[email]
	if !ok {
		return apperrors.ErrIdentityNotFound
	}
	u.PasswordHash = passwordHash
	f.users[email] = u
	return nil
}

func (f *fakeUserRepo) UpdateDeviceToken(_ context.Context, userID uuid.UUID, deviceToken string) error {
	for email, u := range f.users {
		if u.ID == userID {
			u.DeviceToken = &deviceToken
			f.users[email] = u
			return nil
		}
	}
	return apperrors.ErrIdentityNotFound
}

type fakeMailer struct {
	sent    []string // plaintext codes, in dispatch order
	sendErr error
}

func (f *fakeMailer) SendChallengeCode(_ context.Context, _, code, _ string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, code)
	return nil
}

func (f *fakeMailer) lastCode() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}
