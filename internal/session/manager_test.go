package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flordegrace/ims-api/internal/logging"
	"github.com/flordegrace/ims-api/internal/user"
)

type fakeUserSource struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
}

func newFakeUserSource(users ...*user.User) *fakeUserSource {
	src := &fakeUserSource{users: make(map[uuid.UUID]*user.User)}
	for _, u := range users {
		src.users[u.ID] = u
	}
	return src
}

func (f *fakeUserSource) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUserSource) setActive(id uuid.UUID, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.IsActive = active
	}
}

func testUser() *user.User {
	return &user.User{
		ID:       uuid.New(),
		Email:    "jamie@example.com",
		IsAdmin:  false,
		IsActive: true,
	}
}

func newTestManager(t *testing.T, users *fakeUserSource) *Manager {
	t.Helper()
	return NewManager(NewMemoryStore(), users, logging.NewLogger(true), time.Hour, 24*time.Hour, false)
}

// requestWithCookies builds a request carrying the auth cookies set on a
// previous response, the way a browser would replay them
func requestWithCookies(cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	for _, c := range cookies {
		if c.MaxAge >= 0 && c.Value != "" {
			r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	return r
}

func findCookie(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not found", name)
	return nil
}

func TestManager_LoginResolveLogout(t *testing.T) {
	u := testUser()
	m := newTestManager(t, newFakeUserSource(u))
	ctx := context.Background()

	w := httptest.NewRecorder()
	require.NoError(t, m.Login(ctx, w, u, false))

	cookies := w.Result().Cookies()
	sessionCookie := findCookie(t, cookies, SessionCookieName)
	assert.True(t, sessionCookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, sessionCookie.SameSite)

	ident, ok := m.Resolve(ctx, httptest.NewRecorder(), requestWithCookies(cookies...))
	require.True(t, ok)
	assert.Equal(t, u.ID, ident.UserID)
	assert.Equal(t, u.Email, ident.Email)
	assert.False(t, ident.IsAdmin)

	// Logout invalidates the server-side record, not just the cookie
	m.Logout(ctx, httptest.NewRecorder(), requestWithCookies(cookies...))

	_, ok = m.Resolve(ctx, httptest.NewRecorder(), requestWithCookies(cookies...))
	assert.False(t, ok)
}

func TestManager_LoginWithoutRemember(t *testing.T) {
	u := testUser()
	m := newTestManager(t, newFakeUserSource(u))

	w := httptest.NewRecorder()
	require.NoError(t, m.Login(context.Background(), w, u, false))

	for _, c := range w.Result().Cookies() {
		assert.NotEqual(t, RememberCookieName, c.Name)
	}
}

func TestManager_RememberReestablishesSession(t *testing.T) {
	u := testUser()
	m := newTestManager(t, newFakeUserSource(u))
	ctx := context.Background()

	w := httptest.NewRecorder()
	require.NoError(t, m.Login(ctx, w, u, true))
	cookies := w.Result().Cookies()
	rememberCookie := findCookie(t, cookies, RememberCookieName)

	// Simulate an expired session: only the remember cookie comes back
	resolveW := httptest.NewRecorder()
	ident, ok := m.Resolve(ctx, resolveW, requestWithCookies(rememberCookie))
	require.True(t, ok)
	assert.Equal(t, u.ID, ident.UserID)

	// A fresh session cookie is issued and works on its own
	newSession := findCookie(t, resolveW.Result().Cookies(), SessionCookieName)
	_, ok = m.Resolve(ctx, httptest.NewRecorder(), requestWithCookies(newSession))
	assert.True(t, ok)
}

func TestManager_ResolveNoCookies(t *testing.T) {
	m := newTestManager(t, newFakeUserSource())

	_, ok := m.Resolve(context.Background(), httptest.NewRecorder(), requestWithCookies())
	assert.False(t, ok)
}

func TestManager_ResolveGarbageCookie(t *testing.T) {
	m := newTestManager(t, newFakeUserSource())

	r := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "not-a-real-token"})

	_, ok := m.Resolve(context.Background(), httptest.NewRecorder(), r)
	assert.False(t, ok)
}

func TestManager_DeactivatedUserResolvesUnauthenticated(t *testing.T) {
	u := testUser()
	src := newFakeUserSource(u)
	m := newTestManager(t, src)
	ctx := context.Background()

	w := httptest.NewRecorder()
	require.NoError(t, m.Login(ctx, w, u, true))
	cookies := w.Result().Cookies()

	src.setActive(u.ID, false)

	_, ok := m.Resolve(ctx, httptest.NewRecorder(), requestWithCookies(cookies...))
	assert.False(t, ok)

	// The session record was dropped: reactivating does not revive it
	src.setActive(u.ID, true)
	sessionCookie := findCookie(t, cookies, SessionCookieName)
	_, ok = m.Resolve(ctx, httptest.NewRecorder(), requestWithCookies(sessionCookie))
	assert.False(t, ok)
}

func TestManager_LogoutWithoutSession(t *testing.T) {
	m := newTestManager(t, newFakeUserSource())

	w := httptest.NewRecorder()
	m.Logout(context.Background(), w, requestWithCookies())

	// Every cookie variant is expired, legacy names included
	cookies := w.Result().Cookies()
	for _, name := range []string{SessionCookieName, RememberCookieName, "session", "remember_token"} {
		c := findCookie(t, cookies, name)
		assert.Less(t, c.MaxAge, 0, "cookie %q should be expired", name)
	}
}
