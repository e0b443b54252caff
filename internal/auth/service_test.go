package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"socialecho/internal/audit"
	"socialecho/internal/contextauth"
	"socialecho/internal/domain"
	secherrors "socialecho/pkg/errors"
	"socialecho/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

// Mocks

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) SetEmailVerified(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

type MockPreferenceRepository struct {
	mock.Mock
}

func (m *MockPreferenceRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*domain.UserPreference, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserPreference), args.Error(1)
}

func (m *MockPreferenceRepository) Upsert(ctx context.Context, pref *domain.UserPreference) error {
	args := m.Called(ctx, pref)
	return args.Error(0)
}

type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenRepository) FindByRefreshToken(ctx context.Context, refreshToken string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *MockTokenRepository) UpdateAccessToken(ctx context.Context, id uuid.UUID, accessToken string) error {
	args := m.Called(ctx, id, accessToken)
	return args.Error(0)
}

func (m *MockTokenRepository) DeleteByAccessToken(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

func (m *MockTokenRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockResetRepository struct {
	mock.Mock
}

func (m *MockResetRepository) Replace(ctx context.Context, token *domain.PasswordResetToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockResetRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*domain.PasswordResetToken, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PasswordResetToken), args.Error(1)
}

func (m *MockResetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockContextAuthenticator struct {
	mock.Mock
}

func (m *MockContextAuthenticator) Extract(ip, userAgent string) contextauth.Descriptor {
	args := m.Called(ip, userAgent)
	return args.Get(0).(contextauth.Descriptor)
}

func (m *MockContextAuthenticator) ClassifyForUser(ctx context.Context, userID uuid.UUID, fresh contextauth.Descriptor) (contextauth.Classification, error) {
	args := m.Called(ctx, userID, fresh)
	return args.Get(0).(contextauth.Classification), args.Error(1)
}

func (m *MockContextAuthenticator) RecordContext(ctx context.Context, userID uuid.UUID, d contextauth.Descriptor, trusted bool) (*domain.UserContext, error) {
	args := m.Called(ctx, userID, d, trusted)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserContext), args.Error(1)
}

func (m *MockContextAuthenticator) SetTrust(ctx context.Context, userID, contextID uuid.UUID, trusted bool) error {
	args := m.Called(ctx, userID, contextID, trusted)
	return args.Error(0)
}

func (m *MockContextAuthenticator) TrustPending(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Issue(ctx context.Context, email, name string, purpose domain.VerificationPurpose, contextID *uuid.UUID) error {
	args := m.Called(ctx, email, name, purpose, contextID)
	return args.Error(0)
}

func (m *MockVerifier) Consume(ctx context.Context, email, code string, purpose domain.VerificationPurpose) (*uuid.UUID, error) {
	args := m.Called(ctx, email, code, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uuid.UUID), args.Error(1)
}

type MockAttemptCounter struct {
	mock.Mock
}

func (m *MockAttemptCounter) Increment(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAttemptCounter) Expire(ctx context.Context, key string, expiration time.Duration) error {
	args := m.Called(ctx, key, expiration)
	return args.Error(0)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(to, subject, body string) error {
	args := m.Called(to, subject, body)
	return args.Error(0)
}

// stubRecorder collects audit events without the ceremony of a full mock.
type stubRecorder struct {
	events []audit.Event
}

func (r *stubRecorder) Record(ctx context.Context, e audit.Event) {
	r.events = append(r.events, e)
}

func (r *stubRecorder) messages() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Message)
	}
	return out
}

// Fixture

type fixture struct {
	users    *MockUserRepository
	prefs    *MockPreferenceRepository
	tokens   *MockTokenRepository
	resets   *MockResetRepository
	contexts *MockContextAuthenticator
	verifier *MockVerifier
	attempts *MockAttemptCounter
	sender   *MockSender
	recorder *stubRecorder
	service  *Service
}

func newFixture() *fixture {
	f := &fixture{
		users:    new(MockUserRepository),
		prefs:    new(MockPreferenceRepository),
		tokens:   new(MockTokenRepository),
		resets:   new(MockResetRepository),
		contexts: new(MockContextAuthenticator),
		verifier: new(MockVerifier),
		attempts: new(MockAttemptCounter),
		sender:   new(MockSender),
		recorder: &stubRecorder{},
	}
	f.service = NewService(
		f.users, f.prefs, f.tokens, f.resets,
		f.contexts, f.verifier, f.attempts, f.sender, nil,
		f.recorder, logger.NewNop(),
		Config{
			AccessSecret:      "access-secret",
			RefreshSecret:     "refresh-secret",
			AccessExpiry:      6 * time.Hour,
			RefreshExpiry:     7 * 24 * time.Hour,
			MismatchThreshold: 3,
			MismatchWindow:    15 * time.Minute,
			ClientBaseURL:     "http://localhost:3000",
		},
	)

	// Every audit emission fingerprints the request origin.
	f.contexts.On("Extract", mock.Anything, mock.Anything).Return(contextauth.Descriptor{
		IP:         "203.0.113.10",
		Country:    "Germany",
		City:       "Berlin",
		Browser:    "Chrome 120.0",
		OS:         "Linux",
		Platform:   "X11",
		Device:     contextauth.Unknown,
		DeviceType: "Desktop",
	})

	return f
}

const testPassword = "correct horse battery"

func testUser(t *testing.T) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	assert.NoError(t, err)
	return &domain.User{
		ID:            uuid.New(),
		Name:          "Jordan",
		Email:         "jordan@example.com",
		PasswordHash:  string(hash),
		Role:          domain.RoleGeneral,
		EmailVerified: true,
	}
}

func testMeta() RequestMeta {
	return RequestMeta{
		IP:        "203.0.113.10",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
		Endpoint:  "/api/v1/auth/signin",
		Method:    "POST",
	}
}

func (f *fixture) expectIssuedTokens(user *domain.User) {
	f.tokens.On("Create", mock.Anything, mock.MatchedBy(func(tok *domain.RefreshToken) bool {
		return tok.UserID == user.ID && tok.AccessToken != "" && tok.RefreshToken != ""
	})).Return(nil)
	f.users.On("Update", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.ID == user.ID && u.LastLogin != nil
	})).Return(nil)
}

// SignIn

func TestSignInUnknownEmail(t *testing.T) {
	f := newFixture()
	f.users.On("FindByEmail", mock.Anything, "nobody@example.com").Return(nil, secherrors.ErrUserNotFound)

	_, err := f.service.SignIn(context.Background(), &SignInRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	}, testMeta())

	assert.ErrorIs(t, err, secherrors.ErrInvalidCredentials)
	assert.Contains(t, f.recorder.messages(), "Incorrect email")
}

func TestSignInWrongPassword(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)

	_, err := f.service.SignIn(context.Background(), &SignInRequest{
		Email:    user.Email,
		Password: "wrong",
	}, testMeta())

	assert.ErrorIs(t, err, secherrors.ErrInvalidCredentials)
	assert.Contains(t, f.recorder.messages(), "Incorrect password")
}

func TestSignInUnverifiedEmail(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	user.EmailVerified = false
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)

	_, err := f.service.SignIn(context.Background(), &SignInRequest{
		Email:    user.Email,
		Password: testPassword,
	}, testMeta())

	assert.ErrorIs(t, err, secherrors.ErrEmailNotVerified)
}

func TestSignInContextAuthDisabled(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)
	f.prefs.On("FindByUser", mock.Anything, user.ID).Return(&domain.UserPreference{
		UserID:                 user.ID,
		EnableContextBasedAuth: false,
	}, nil)
	f.expectIssuedTokens(user)

	resp, err := f.service.SignIn(context.Background(), &SignInRequest{
		Email:    user.Email,
		Password: testPassword,
	}, testMeta())

	assert.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.False(t, resp.VerificationRequired)

	f.contexts.AssertNotCalled(t, "ClassifyForUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestSignInNoStoredPreferencesDefaultsOff(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)
	f.prefs.On("FindByUser", mock.Anything, user.ID).Return(nil, secherrors.ErrUserNotFound)
	f.expectIssuedTokens(user)

	resp, err := f.service.SignIn(context.Background(), &SignInRequest{
		Email:    user.Email,
		Password: testPassword,
	}, testMeta())

	assert.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	f.contexts.AssertNotCalled(t, "ClassifyForUser", mock.Anything, mock.Anything, mock.Anything)
}

func enableContextAuth(f *fixture, user *domain.User) {
	f.prefs.On("FindByUser", mock.Anything, user.ID).Return(&domain.UserPreference{
		UserID:                 user.ID,
		EnableContextBasedAuth: true,
	}, nil)
}

func TestSignInFirstContextIsTrusted(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)
	enableContextAuth(f, user)

	f.contexts.On("ClassifyForUser", mock.Anything, user.ID, mock.Anything).
		Return(contextauth.Classification{Outcome: contextauth.OutcomeNoContextData}, nil)
	f.contexts.On("RecordContext", mock.Anything, user.ID, mock.Anything, true).
		Return(&domain.UserContext{ID: uuid.New(), UserID: user.ID, IsTrusted: true}, nil)
	f.expectIssuedTokens(user)

	resp, err := f.service.SignIn(context.Background(), &SignInRequest{
		Email:    user.Email,
		Password: testPassword,
	}, testMeta())

	assert.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	f.contexts.AssertCalled(t, "RecordContext", mock.Anything, user.ID, mock.Anything, true)
	f.verifier.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignInTrustedContext(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)
	enableContextAuth(f, user)

	f.contexts.On("ClassifyForUser", mock.Anything, user.ID, mock.Anything).
		Return(contextauth.Classification{Outcome: contextauth.OutcomeTrusted}, nil)
	f.expectIssuedTokens(user)

	resp, err := f.service.SignIn(context.Background(), &SignInRequest{
		Email:    user.Email,
		Password: testPassword,
	}, testMeta())

	assert.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	f.contexts.AssertNotCalled(t, "RecordContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignInBlockedContext(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)
	enableContextAuth(f, user)

	f.contexts.On("ClassifyForUser", mock.Anything, user.ID, mock.Anything).
		Return(contextauth.Classification{Outcome: contextauth.OutcomeBlocked}, nil)

	_, err := f.service.SignIn(context.Background(), &SignInRequest{
		Email:    user.Email,
		Password: testPassword,
	}, testMeta())

	assert.ErrorIs(t, err, secherrors.ErrDeviceBlocked)
	assert.Contains(t, f.recorder.messages(), "Sign in attempt from blocked device")
	f.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSignInMismatchTriggersVerification(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)
	enableContextAuth(f, user)

	f.contexts.On("ClassifyForUser", mock.Anything, user.ID, mock.Anything).
		Return(contextauth.Classification{
			Outcome:          contextauth.OutcomeMismatch,
			MismatchedFields: []string{"ip", "country"},
		}, nil)
	pendingID := uuid.New()
	f.attempts.On("Increment", mock.Anything, mock.Anything).Return(int64(1), nil)
	f.attempts.On("Expire", mock.Anything, mock.Anything, 15*time.Minute).Return(nil)
	f.contexts.On("RecordContext", mock.Anything, user.ID, mock.Anything, false).
		Return(&domain.UserContext{ID: pendingID, UserID: user.ID}, nil)
	f.verifier.On("Issue", mock.Anything, user.Email, user.Name, domain.PurposeNewDevice, &pendingID).Return(nil)

	resp, err := f.service.SignIn(context.Background(), &SignInRequest{
		Email:    user.Email,
		Password: testPassword,
	}, testMeta())

	assert.NoError(t, err)
	assert.True(t, resp.VerificationRequired)
	assert.Empty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.Message)
	// The challenge is bound to the pending context it was issued for.
	f.verifier.AssertCalled(t, "Issue", mock.Anything, user.Email, user.Name, domain.PurposeNewDevice, &pendingID)
	f.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.attempts.AssertExpectations(t)
}

func TestSignInRepeatedMismatchIsSuspicious(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)
	enableContextAuth(f, user)

	f.contexts.On("ClassifyForUser", mock.Anything, user.ID, mock.Anything).
		Return(contextauth.Classification{Outcome: contextauth.OutcomeMismatch}, nil)
	f.attempts.On("Increment", mock.Anything, mock.Anything).Return(int64(3), nil)

	_, err := f.service.SignIn(context.Background(), &SignInRequest{
		Email:    user.Email,
		Password: testPassword,
	}, testMeta())

	assert.ErrorIs(t, err, secherrors.ErrDeviceSuspicious)
	assert.Contains(t, f.recorder.messages(), "Multiple sign in attempts detected without verifying identity.")
	// The suspicious rejection dispatches nothing; the client message only
	// references the email sent on an earlier mismatch attempt.
	f.verifier.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.contexts.AssertNotCalled(t, "RecordContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSignInMismatchDispatchFailureStillPending(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)
	enableContextAuth(f, user)

	f.contexts.On("ClassifyForUser", mock.Anything, user.ID, mock.Anything).
		Return(contextauth.Classification{Outcome: contextauth.OutcomeMismatch}, nil)
	f.attempts.On("Increment", mock.Anything, mock.Anything).Return(int64(1), nil)
	f.attempts.On("Expire", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.contexts.On("RecordContext", mock.Anything, user.ID, mock.Anything, false).
		Return(&domain.UserContext{ID: uuid.New(), UserID: user.ID}, nil)
	f.verifier.On("Issue", mock.Anything, user.Email, user.Name, domain.PurposeNewDevice, mock.Anything).
		Return(secherrors.ErrDispatchFailed)

	resp, err := f.service.SignIn(context.Background(), &SignInRequest{
		Email:    user.Email,
		Password: testPassword,
	}, testMeta())

	assert.NoError(t, err)
	assert.True(t, resp.VerificationRequired)
}

func TestSignInClassificationFailureFailsClosed(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)
	enableContextAuth(f, user)

	f.contexts.On("ClassifyForUser", mock.Anything, user.ID, mock.Anything).
		Return(contextauth.Classification{}, errors.New("store unavailable"))

	_, err := f.service.SignIn(context.Background(), &SignInRequest{
		Email:    user.Email,
		Password: testPassword,
	}, testMeta())

	assert.Error(t, err)
	assert.NotErrorIs(t, err, secherrors.ErrInvalidCredentials)
	f.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// VerifyDevice

func TestVerifyDevicePromotesOnlyChallengedContext(t *testing.T) {
	f := newFixture()
	user := testUser(t)

	// Two pending contexts exist for the user; the challenge is bound to
	// one of them. Consuming the code must trust that record alone.
	challengedID := uuid.New()
	f.verifier.On("Consume", mock.Anything, user.Email, "A1B2C", domain.PurposeNewDevice).
		Return(&challengedID, nil)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)
	f.contexts.On("SetTrust", mock.Anything, user.ID, challengedID, true).Return(nil)

	err := f.service.VerifyDevice(context.Background(), user.Email, "A1B2C", testMeta())

	assert.NoError(t, err)
	f.contexts.AssertCalled(t, "SetTrust", mock.Anything, user.ID, challengedID, true)
	f.contexts.AssertNotCalled(t, "TrustPending", mock.Anything, mock.Anything)
}

func TestVerifyDeviceUnboundChallengePromotesPending(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	f.verifier.On("Consume", mock.Anything, user.Email, "A1B2C", domain.PurposeNewDevice).
		Return(nil, nil)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)
	f.contexts.On("TrustPending", mock.Anything, user.ID).Return(nil)

	err := f.service.VerifyDevice(context.Background(), user.Email, "A1B2C", testMeta())

	assert.NoError(t, err)
	f.contexts.AssertCalled(t, "TrustPending", mock.Anything, user.ID)
	f.contexts.AssertNotCalled(t, "SetTrust", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyDeviceBadCode(t *testing.T) {
	f := newFixture()
	f.verifier.On("Consume", mock.Anything, "jordan@example.com", "ZZZZZ", domain.PurposeNewDevice).
		Return(nil, secherrors.ErrVerificationCodeInvalid)

	err := f.service.VerifyDevice(context.Background(), "jordan@example.com", "ZZZZZ", testMeta())

	assert.ErrorIs(t, err, secherrors.ErrVerificationCodeInvalid)
	f.contexts.AssertNotCalled(t, "SetTrust", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.contexts.AssertNotCalled(t, "TrustPending", mock.Anything, mock.Anything)
}

// SignUp and email verification

func TestSignUpCreatesGeneralUser(t *testing.T) {
	f := newFixture()
	f.users.On("ExistsByEmail", mock.Anything, "new@example.com").Return(false, nil)

	var created *domain.User
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		created = u
		return u.Email == "new@example.com" && u.Role == domain.RoleGeneral && !u.EmailVerified
	})).Return(nil)
	f.verifier.On("Issue", mock.Anything, "new@example.com", "New User", domain.PurposeSignup, (*uuid.UUID)(nil)).Return(nil)

	summary, err := f.service.SignUp(context.Background(), &SignUpRequest{
		Name:     "New User",
		Email:    "new@example.com",
		Password: "long enough password",
	}, testMeta())

	assert.NoError(t, err)
	assert.Equal(t, created.ID, summary.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("long enough password")))
	assert.NotEmpty(t, created.Avatar)
}

func TestSignUpModeratorDomain(t *testing.T) {
	f := newFixture()
	f.users.On("ExistsByEmail", mock.Anything, mock.Anything).Return(false, nil)
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Role == domain.RoleModerator
	})).Return(nil)
	f.verifier.On("Issue", mock.Anything, mock.Anything, mock.Anything, domain.PurposeSignup, mock.Anything).Return(nil)

	_, err := f.service.SignUp(context.Background(), &SignUpRequest{
		Name:     "Mod",
		Email:    "mod@mod.socialecho.com",
		Password: "long enough password",
	}, testMeta())

	assert.NoError(t, err)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	f := newFixture()
	f.users.On("ExistsByEmail", mock.Anything, "dup@example.com").Return(true, nil)

	_, err := f.service.SignUp(context.Background(), &SignUpRequest{
		Name:     "Dup",
		Email:    "dup@example.com",
		Password: "long enough password",
	}, testMeta())

	assert.ErrorIs(t, err, secherrors.ErrUserAlreadyExists)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestVerifySignupEmail(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	user.EmailVerified = false
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)
	f.verifier.On("Consume", mock.Anything, user.Email, "A1B2C", domain.PurposeSignup).Return(nil, nil)
	f.users.On("SetEmailVerified", mock.Anything, user.ID).Return(nil)

	err := f.service.VerifySignupEmail(context.Background(), user.Email, "A1B2C", testMeta())

	assert.NoError(t, err)
	f.users.AssertCalled(t, "SetEmailVerified", mock.Anything, user.ID)
}

func TestVerifySignupEmailAlreadyVerified(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)

	err := f.service.VerifySignupEmail(context.Background(), user.Email, "A1B2C", testMeta())

	assert.ErrorIs(t, err, secherrors.ErrAlreadyVerified)
	f.verifier.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// Refresh and logout

func signTestToken(t *testing.T, userID uuid.UUID, secret string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     expiresAt.Unix(),
		"iat":     time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	assert.NoError(t, err)
	return signed
}

func TestRefreshTokensRotatesAccessToken(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	refreshToken := signTestToken(t, user.ID, "refresh-secret", time.Now().Add(time.Hour))
	stored := &domain.RefreshToken{ID: uuid.New(), UserID: user.ID, RefreshToken: refreshToken}

	f.tokens.On("FindByRefreshToken", mock.Anything, refreshToken).Return(stored, nil)
	f.users.On("FindByID", mock.Anything, user.ID).Return(user, nil)
	f.tokens.On("UpdateAccessToken", mock.Anything, stored.ID, mock.Anything).Return(nil)

	resp, err := f.service.RefreshTokens(context.Background(), refreshToken)

	assert.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, refreshToken, resp.RefreshToken)
	f.tokens.AssertCalled(t, "UpdateAccessToken", mock.Anything, stored.ID, resp.AccessToken)
}

func TestRefreshTokensUnknownToken(t *testing.T) {
	f := newFixture()
	f.tokens.On("FindByRefreshToken", mock.Anything, "nope").Return(nil, secherrors.ErrInvalidRefreshToken)

	_, err := f.service.RefreshTokens(context.Background(), "nope")

	assert.ErrorIs(t, err, secherrors.ErrInvalidRefreshToken)
}

func TestRefreshTokensExpiredIsDeleted(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	refreshToken := signTestToken(t, user.ID, "refresh-secret", time.Now().Add(-time.Hour))
	stored := &domain.RefreshToken{ID: uuid.New(), UserID: user.ID, RefreshToken: refreshToken}

	f.tokens.On("FindByRefreshToken", mock.Anything, refreshToken).Return(stored, nil)
	f.tokens.On("Delete", mock.Anything, stored.ID).Return(nil)

	_, err := f.service.RefreshTokens(context.Background(), refreshToken)

	assert.ErrorIs(t, err, secherrors.ErrExpiredRefreshToken)
	f.tokens.AssertCalled(t, "Delete", mock.Anything, stored.ID)
}

func TestRefreshTokensWrongSecret(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	refreshToken := signTestToken(t, user.ID, "some-other-secret", time.Now().Add(time.Hour))
	stored := &domain.RefreshToken{ID: uuid.New(), UserID: user.ID, RefreshToken: refreshToken}

	f.tokens.On("FindByRefreshToken", mock.Anything, refreshToken).Return(stored, nil)

	_, err := f.service.RefreshTokens(context.Background(), refreshToken)

	assert.ErrorIs(t, err, secherrors.ErrInvalidRefreshToken)
}

func TestLogoutDeletesSession(t *testing.T) {
	f := newFixture()
	f.tokens.On("DeleteByAccessToken", mock.Anything, "the-token").Return(nil)

	err := f.service.Logout(context.Background(), "the-token", testMeta())

	assert.NoError(t, err)
	f.tokens.AssertExpectations(t)
}

// Password reset

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	f := newFixture()
	f.users.On("FindByEmail", mock.Anything, "nobody@example.com").Return(nil, secherrors.ErrUserNotFound)

	err := f.service.ForgotPassword(context.Background(), "nobody@example.com", testMeta())

	assert.NoError(t, err)
	f.resets.AssertNotCalled(t, "Replace", mock.Anything, mock.Anything)
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestForgotPasswordStoresHashedToken(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	f.users.On("FindByEmail", mock.Anything, user.Email).Return(user, nil)

	var stored *domain.PasswordResetToken
	f.resets.On("Replace", mock.Anything, mock.MatchedBy(func(tok *domain.PasswordResetToken) bool {
		stored = tok
		return tok.UserID == user.ID
	})).Return(nil)

	var link string
	f.sender.On("Send", user.Email, mock.Anything, mock.MatchedBy(func(body string) bool {
		link = body
		return true
	})).Return(nil)

	err := f.service.ForgotPassword(context.Background(), user.Email, testMeta())

	assert.NoError(t, err)
	assert.NotEmpty(t, stored.TokenHash)
	// The stored value is a bcrypt hash, never the raw token.
	assert.NotContains(t, link, stored.TokenHash)
}

func TestResetPasswordHappyPath(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	raw := "adadadadadadadadadadadadadadadadadadadadadadadadadadadadadadadad"
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	assert.NoError(t, err)

	stored := &domain.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: string(hash),
		CreatedAt: time.Now().Add(-10 * time.Minute),
	}

	f.resets.On("FindByUser", mock.Anything, user.ID).Return(stored, nil)
	f.users.On("UpdatePassword", mock.Anything, user.ID, mock.Anything).Return(nil)
	f.resets.On("Delete", mock.Anything, stored.ID).Return(nil)

	err = f.service.ResetPassword(context.Background(), user.ID, raw, "brand new password", testMeta())

	assert.NoError(t, err)
	f.users.AssertCalled(t, "UpdatePassword", mock.Anything, user.ID, mock.Anything)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	stored := &domain.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: "irrelevant",
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}

	f.resets.On("FindByUser", mock.Anything, user.ID).Return(stored, nil)
	f.resets.On("Delete", mock.Anything, stored.ID).Return(nil)

	err := f.service.ResetPassword(context.Background(), user.ID, "whatever", "brand new password", testMeta())

	assert.ErrorIs(t, err, secherrors.ErrResetTokenInvalid)
	f.users.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetPasswordWrongToken(t *testing.T) {
	f := newFixture()
	user := testUser(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("the real token"), bcrypt.MinCost)
	assert.NoError(t, err)

	stored := &domain.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: string(hash),
		CreatedAt: time.Now(),
	}

	f.resets.On("FindByUser", mock.Anything, user.ID).Return(stored, nil)

	err = f.service.ResetPassword(context.Background(), user.ID, "a forged token", "brand new password", testMeta())

	assert.ErrorIs(t, err, secherrors.ErrResetTokenInvalid)
}

// Preferences

func TestPreferencesDefaultWhenMissing(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	f.prefs.On("FindByUser", mock.Anything, userID).Return(nil, secherrors.ErrUserNotFound)

	pref, err := f.service.Preferences(context.Background(), userID)

	assert.NoError(t, err)
	assert.False(t, pref.EnableContextBasedAuth)
	assert.Equal(t, userID, pref.UserID)
}

func TestSetContextAuth(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	f.prefs.On("Upsert", mock.Anything, mock.MatchedBy(func(p *domain.UserPreference) bool {
		return p.UserID == userID && p.EnableContextBasedAuth
	})).Return(nil)

	err := f.service.SetContextAuth(context.Background(), userID, true)

	assert.NoError(t, err)
	f.prefs.AssertExpectations(t)
}
