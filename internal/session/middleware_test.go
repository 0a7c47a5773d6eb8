package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flordegrace/ims-api/internal/httputil"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestRequireAuth(t *testing.T) {
	u := testUser()
	m := newTestManager(t, newFakeUserSource(u))
	ctx := context.Background()

	var seen Identity
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		seen = ident
		w.WriteHeader(http.StatusNoContent)
	}))

	// No session: 401 with a machine code, the handler never runs
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithCookies())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, httputil.CodeAuthRequired, decodeError(t, w).Code)

	loginW := httptest.NewRecorder()
	require.NoError(t, m.Login(ctx, loginW, u, false))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithCookies(loginW.Result().Cookies()...))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, u.ID, seen.UserID)
}

func TestRequireAdmin(t *testing.T) {
	member := testUser()
	admin := testUser()
	admin.Email = "admin@example.com"
	admin.IsAdmin = true

	m := newTestManager(t, newFakeUserSource(member, admin))
	ctx := context.Background()

	handler := m.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// Anonymous callers get 401, not 403: their identity is unknown
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithCookies())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	memberW := httptest.NewRecorder()
	require.NoError(t, m.Login(ctx, memberW, member, false))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithCookies(memberW.Result().Cookies()...))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, httputil.CodeAdminRequired, decodeError(t, w).Code)

	adminW := httptest.NewRecorder()
	require.NoError(t, m.Login(ctx, adminW, admin, false))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithCookies(adminW.Result().Cookies()...))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
