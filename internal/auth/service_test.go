package auth

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flordegrace/ims-api/internal/logging"
	"github.com/flordegrace/ims-api/internal/user"
)

// fakeUserStore is an in-memory UserStore with the same semantics as the
// real repository, including atomic reset token consumption.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*user.User)}
}

func (f *fakeUserStore) Create(_ context.Context, email, passwordHash, firstName, lastName string, isAdmin bool) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == email {
			return nil, user.ErrDuplicateEmail
		}
	}

	u := &user.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		IsAdmin:      isAdmin,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	f.users[u.ID] = u

	clone := *u
	return &clone, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUserStore) UpdateProfile(_ context.Context, id uuid.UUID, firstName, lastName, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return user.ErrNotFound
	}
	for _, other := range f.users {
		if other.ID != id && other.Email == email {
			return user.ErrDuplicateEmail
		}
	}
	u.FirstName = firstName
	u.LastName = lastName
	u.Email = email
	return nil
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeUserStore) SetResetToken(_ context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.ResetTokenHash = &tokenHash
	u.ResetTokenExpiresAt = &expiresAt
	return nil
}

func (f *fakeUserStore) ClearResetToken(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	return nil
}

func (f *fakeUserStore) ConsumeResetToken(_ context.Context, id uuid.UUID, tokenHash, newPasswordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok || u.ResetTokenHash == nil || *u.ResetTokenHash != tokenHash {
		return user.ErrNotFound
	}
	if u.ResetTokenExpiresAt == nil || !u.ResetTokenExpiresAt.After(time.Now()) {
		return user.ErrNotFound
	}

	u.PasswordHash = newPasswordHash
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
	return nil
}

func (f *fakeUserStore) AdminExists(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.IsAdmin {
			return true, nil
		}
	}
	return false, nil
}

// expireResetToken backdates a pending token so expiry paths can be tested
// without sleeping
func (f *fakeUserStore) expireResetToken(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.users[id]; ok && u.ResetTokenExpiresAt != nil {
		past := time.Now().Add(-time.Minute)
		u.ResetTokenExpiresAt = &past
	}
}

// fakeEmailService records sends on channels so tests can wait for the
// goroutine-delivered notifications
type fakeEmailService struct {
	resetLinks chan string
	changed    chan string
}

func newFakeEmailService() *fakeEmailService {
	return &fakeEmailService{
		resetLinks: make(chan string, 8),
		changed:    make(chan string, 8),
	}
}

func (f *fakeEmailService) SendPasswordResetEmail(_ context.Context, _, _, resetLink string) error {
	f.resetLinks <- resetLink
	return nil
}

func (f *fakeEmailService) SendPasswordChangedEmail(_ context.Context, toEmail, _ string) error {
	f.changed <- toEmail
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeUserStore, *fakeEmailService) {
	t.Helper()
	store := newFakeUserStore()
	mailer := newFakeEmailService()
	svc := NewService(store, mailer, logging.NewLogger(true), "https://app.example.com")
	return svc, store, mailer
}

func seedUser(t *testing.T, svc *Service, email, password string) *user.User {
	t.Helper()
	u, err := svc.Register(context.Background(), email, password, "Jamie", "Rivera", false)
	require.NoError(t, err)
	return u
}

func waitForResetLink(t *testing.T, mailer *fakeEmailService) string {
	t.Helper()
	select {
	case link := <-mailer.resetLinks:
		return link
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for password reset email")
		return ""
	}
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestLogin_Success(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedUser(t, svc, "jamie@example.com", "Valid1Pass")

	u, err := svc.Login(context.Background(), "  Jamie@Example.COM ", "Valid1Pass")
	require.NoError(t, err)
	assert.Equal(t, "jamie@example.com", u.Email)
}

func TestLogin_GenericFailure(t *testing.T) {
	svc, store, _ := newTestService(t)
	seeded := seedUser(t, svc, "jamie@example.com", "Valid1Pass")

	ctx := context.Background()

	// Unknown email, wrong password, and deactivated account must all be
	// indistinguishable to the caller
	_, err := svc.Login(ctx, "nobody@example.com", "Valid1Pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "jamie@example.com", "Wrong1Pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	store.mu.Lock()
	store.users[seeded.ID].IsActive = false
	store.mu.Unlock()

	_, err = svc.Login(ctx, "jamie@example.com", "Valid1Pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "not-an-email", "Valid1Pass", "Jamie", "Rivera", false)
	assert.ErrorIs(t, err, ErrInvalidEmailFormat)

	_, err = svc.Register(ctx, "jamie@example.com", "weak", "Jamie", "Rivera", false)
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = svc.Register(ctx, "jamie@example.com", "Valid1Pass", "  ", "Rivera", false)
	assert.ErrorIs(t, err, ErrFirstNameRequired)

	_, err = svc.Register(ctx, "jamie@example.com", "Valid1Pass", "Jamie", "", false)
	assert.ErrorIs(t, err, ErrLastNameRequired)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedUser(t, svc, "jamie@example.com", "Valid1Pass")

	_, err := svc.Register(context.Background(), "JAMIE@example.com", "Valid1Pass", "Other", "Person", false)
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)
}

func TestRegister_HashesPassword(t *testing.T) {
	svc, store, _ := newTestService(t)
	seeded := seedUser(t, svc, "jamie@example.com", "Valid1Pass")

	stored, err := store.GetByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "Valid1Pass", stored.PasswordHash)
	assert.True(t, VerifyPassword(stored.PasswordHash, "Valid1Pass"))
}

func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	svc, _, mailer := newTestService(t)

	// Unknown accounts succeed identically so responses cannot be used to
	// probe which emails exist
	err := svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	assert.NoError(t, err)

	select {
	case link := <-mailer.resetLinks:
		t.Fatalf("no email should be sent for unknown account, got %q", link)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRequestPasswordReset_InactiveUser(t *testing.T) {
	svc, store, mailer := newTestService(t)
	seeded := seedUser(t, svc, "jamie@example.com", "Valid1Pass")

	store.mu.Lock()
	store.users[seeded.ID].IsActive = false
	store.mu.Unlock()

	err := svc.RequestPasswordReset(context.Background(), "jamie@example.com")
	assert.NoError(t, err)

	select {
	case link := <-mailer.resetLinks:
		t.Fatalf("no email should be sent for inactive account, got %q", link)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestResetPassword_FullLifecycle(t *testing.T) {
	svc, _, mailer := newTestService(t)
	seedUser(t, svc, "jamie@example.com", "Valid1Pass")
	ctx := context.Background()

	require.NoError(t, svc.RequestPasswordReset(ctx, "jamie@example.com"))
	token := tokenFromLink(t, waitForResetLink(t, mailer))

	require.NoError(t, svc.ResetPassword(ctx, "jamie@example.com", token, "Fresh2Pass"))

	// Old password no longer works, new one does
	_, err := svc.Login(ctx, "jamie@example.com", "Valid1Pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "jamie@example.com", "Fresh2Pass")
	assert.NoError(t, err)

	// Single use: the same token cannot reset again
	err = svc.ResetPassword(ctx, "jamie@example.com", token, "Third3Pass")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	svc, store, mailer := newTestService(t)
	seeded := seedUser(t, svc, "jamie@example.com", "Valid1Pass")
	ctx := context.Background()

	require.NoError(t, svc.RequestPasswordReset(ctx, "jamie@example.com"))
	token := tokenFromLink(t, waitForResetLink(t, mailer))

	store.expireResetToken(seeded.ID)

	err := svc.ResetPassword(ctx, "jamie@example.com", token, "Fresh2Pass")
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	// Password is untouched
	_, err = svc.Login(ctx, "jamie@example.com", "Valid1Pass")
	assert.NoError(t, err)
}

func TestResetPassword_ReissueInvalidatesOldToken(t *testing.T) {
	svc, _, mailer := newTestService(t)
	seedUser(t, svc, "jamie@example.com", "Valid1Pass")
	ctx := context.Background()

	require.NoError(t, svc.RequestPasswordReset(ctx, "jamie@example.com"))
	firstToken := tokenFromLink(t, waitForResetLink(t, mailer))

	require.NoError(t, svc.RequestPasswordReset(ctx, "jamie@example.com"))
	secondToken := tokenFromLink(t, waitForResetLink(t, mailer))
	require.NotEqual(t, firstToken, secondToken)

	err := svc.ResetPassword(ctx, "jamie@example.com", firstToken, "Fresh2Pass")
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	err = svc.ResetPassword(ctx, "jamie@example.com", secondToken, "Fresh2Pass")
	assert.NoError(t, err)
}

func TestResetPassword_BadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedUser(t, svc, "jamie@example.com", "Valid1Pass")
	ctx := context.Background()

	err := svc.ResetPassword(ctx, "jamie@example.com", "", "Fresh2Pass")
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	err = svc.ResetPassword(ctx, "nobody@example.com", "sometoken", "Fresh2Pass")
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	err = svc.ResetPassword(ctx, "jamie@example.com", "sometoken", "weak")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	err = svc.ResetPassword(ctx, "jamie@example.com", "wrong-token", "Fresh2Pass")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	seeded := seedUser(t, svc, "jamie@example.com", "Valid1Pass")
	ctx := context.Background()

	err := svc.ChangePassword(ctx, seeded.ID, "Wrong1Pass", "Fresh2Pass")
	assert.ErrorIs(t, err, ErrWrongPassword)

	err = svc.ChangePassword(ctx, seeded.ID, "Valid1Pass", "weak")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	require.NoError(t, svc.ChangePassword(ctx, seeded.ID, "Valid1Pass", "Fresh2Pass"))

	_, err = svc.Login(ctx, "jamie@example.com", "Fresh2Pass")
	assert.NoError(t, err)
}

func TestChangePassword_ClearsPendingResetToken(t *testing.T) {
	svc, store, mailer := newTestService(t)
	seeded := seedUser(t, svc, "jamie@example.com", "Valid1Pass")
	ctx := context.Background()

	require.NoError(t, svc.RequestPasswordReset(ctx, "jamie@example.com"))
	token := tokenFromLink(t, waitForResetLink(t, mailer))

	require.NoError(t, svc.ChangePassword(ctx, seeded.ID, "Valid1Pass", "Fresh2Pass"))

	// The mailed link must be dead after a deliberate password change
	err := svc.ResetPassword(ctx, "jamie@example.com", token, "Third3Pass")
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	stored, err := store.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ResetTokenHash)
}

func TestAdminResetPassword(t *testing.T) {
	svc, _, mailer := newTestService(t)
	seedUser(t, svc, "jamie@example.com", "Valid1Pass")
	ctx := context.Background()

	target, err := svc.AdminResetPassword(ctx, "jamie@example.com")
	require.NoError(t, err)
	assert.Equal(t, "jamie@example.com", target.Email)
	waitForResetLink(t, mailer)

	// Unlike the self-service flow, unknown users are reported to the admin
	_, err = svc.AdminResetPassword(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, user.ErrNotFound)

	_, err = svc.AdminResetPassword(ctx, "  ")
	assert.ErrorIs(t, err, ErrEmailRequired)
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	seeded := seedUser(t, svc, "jamie@example.com", "Valid1Pass")
	ctx := context.Background()

	updated, err := svc.UpdateProfile(ctx, seeded.ID, "Jordan", "Lee", "jordan@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Jordan", updated.FirstName)
	assert.Equal(t, "jordan@example.com", updated.Email)

	// Keeping your own email is not a conflict
	_, err = svc.UpdateProfile(ctx, seeded.ID, "Jordan", "Lee", "jordan@example.com")
	assert.NoError(t, err)
}

func TestUpdateProfile_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	seeded := seedUser(t, svc, "jamie@example.com", "Valid1Pass")

	_, err := svc.Register(context.Background(), "taken@example.com", "Valid1Pass", "Other", "Person", false)
	require.NoError(t, err)

	_, err = svc.UpdateProfile(context.Background(), seeded.ID, "Jamie", "Rivera", "taken@example.com")
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)
}

func TestEnsureDefaultAdmin(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	// No admin and no configured password is a hard startup error
	err := svc.EnsureDefaultAdmin(ctx, "admin@localhost", "", "System", "Administrator")
	assert.Error(t, err)

	require.NoError(t, svc.EnsureDefaultAdmin(ctx, "admin@localhost", "Bootstrap1Pass", "System", "Administrator"))

	exists, err := store.AdminExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	admin, err := store.GetByEmail(ctx, "admin@localhost")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)

	// Second call is a no-op even without a password configured
	assert.NoError(t, svc.EnsureDefaultAdmin(ctx, "admin@localhost", "", "System", "Administrator"))
}
