package session

import (
	"context"
	"net/http"

	"github.com/flordegrace/ims-api/internal/httputil"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const identityContextKey ContextKey = "identity"

// RequireAuth gates a handler behind a valid session. The resolved identity
// is placed in the request context; the wrapped handler never runs without
// one.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := m.Resolve(r.Context(), w, r)
		if !ok {
			httputil.RespondErrorWithCode(w, "authentication required", httputil.CodeAuthRequired, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates a handler behind a valid session with admin privilege.
// A valid non-admin session gets a 403, distinct from the 401 for a missing
// session: the caller's identity is known, so a specific denial is safe.
func (m *Manager) RequireAdmin(next http.Handler) http.Handler {
	return m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFromContext(r.Context())
		if !ident.IsAdmin {
			httputil.RespondErrorWithCode(w, "admin access required", httputil.CodeAdminRequired, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// IdentityFromContext extracts the resolved identity placed by RequireAuth
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityContextKey).(Identity)
	return ident, ok
}
