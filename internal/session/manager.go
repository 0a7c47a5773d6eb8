package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/flordegrace/ims-api/internal/logging"
	"github.com/flordegrace/ims-api/internal/user"
)

// Identity is the resolved authenticated caller. Handlers receive it
// explicitly via the request context set by the gate middleware; there is
// no process-wide current user.
type Identity struct {
	UserID  uuid.UUID
	Email   string
	IsAdmin bool
}

// UserSource looks up users when resolving a session back to an identity
type UserSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// Manager establishes, resolves, and terminates authenticated sessions.
// Session proof is an opaque random token delivered via cookie; only its
// hash is used as the store key.
type Manager struct {
	store         Store
	users         UserSource
	logger        *logging.Logger
	sessionTTL    time.Duration
	rememberTTL   time.Duration
	secureCookies bool
}

func NewManager(store Store, users UserSource, logger *logging.Logger, sessionTTL, rememberTTL time.Duration, secureCookies bool) *Manager {
	return &Manager{
		store:         store,
		users:         users,
		logger:        logger,
		sessionTTL:    sessionTTL,
		rememberTTL:   rememberTTL,
		secureCookies: secureCookies,
	}
}

// Login creates a new server-side session for the user and sets the session
// cookie. With remember enabled a second, longer-lived token is issued that
// can re-establish a session after the primary one expires.
func (m *Manager) Login(ctx context.Context, w http.ResponseWriter, u *user.User, remember bool) error {
	token, err := newSessionToken()
	if err != nil {
		return err
	}

	rec := Record{UserID: u.ID, CreatedAt: time.Now()}
	if err := m.store.Set(ctx, sessionKey(token), rec, m.sessionTTL); err != nil {
		return err
	}
	setAuthCookie(w, SessionCookieName, token, m.sessionTTL, m.secureCookies)

	if remember {
		rememberToken, err := newSessionToken()
		if err != nil {
			return err
		}
		if err := m.store.Set(ctx, rememberKey(rememberToken), rec, m.rememberTTL); err != nil {
			return err
		}
		setAuthCookie(w, RememberCookieName, rememberToken, m.rememberTTL, m.secureCookies)
	}

	return nil
}

// Resolve returns the caller's identity from the request's session proof.
// Absent, malformed, or expired proof is a normal outcome and resolves to
// (zero, false), never an error. A session whose user no longer exists or
// has been deactivated resolves to unauthenticated and the record is
// dropped.
func (m *Manager) Resolve(ctx context.Context, w http.ResponseWriter, r *http.Request) (Identity, bool) {
	if token, ok := cookieValue(r, SessionCookieName); ok {
		rec, err := m.store.Get(ctx, sessionKey(token))
		if err == nil {
			if ident, ok := m.identityFor(ctx, rec.UserID); ok {
				return ident, true
			}
			_ = m.store.Delete(ctx, sessionKey(token))
		} else if !errors.Is(err, ErrNotFound) {
			m.logger.Warn("session lookup failed", "error", err)
			return Identity{}, false
		}
	}

	// Fall back to the remember token: re-establish a fresh session and
	// extend the remember lifetime independently
	if token, ok := cookieValue(r, RememberCookieName); ok {
		rec, err := m.store.Get(ctx, rememberKey(token))
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				m.logger.Warn("remember token lookup failed", "error", err)
			}
			return Identity{}, false
		}

		ident, ok := m.identityFor(ctx, rec.UserID)
		if !ok {
			_ = m.store.Delete(ctx, rememberKey(token))
			return Identity{}, false
		}

		if err := m.establishSession(ctx, w, rec.UserID); err != nil {
			m.logger.Warn("failed to re-establish session from remember token", "error", err)
			return Identity{}, false
		}
		if err := m.store.Refresh(ctx, rememberKey(token), m.rememberTTL); err == nil {
			setAuthCookie(w, RememberCookieName, token, m.rememberTTL, m.secureCookies)
		}

		return ident, true
	}

	return Identity{}, false
}

// Logout invalidates the server-side session and remember records and
// expires every cookie variant the client may hold. Safe to call without a
// valid session.
func (m *Manager) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if token, ok := cookieValue(r, SessionCookieName); ok {
		if err := m.store.Delete(ctx, sessionKey(token)); err != nil {
			m.logger.Warn("failed to delete session record", "error", err)
		}
	}
	if token, ok := cookieValue(r, RememberCookieName); ok {
		if err := m.store.Delete(ctx, rememberKey(token)); err != nil {
			m.logger.Warn("failed to delete remember record", "error", err)
		}
	}

	clearAuthCookies(w)
}

func (m *Manager) establishSession(ctx context.Context, w http.ResponseWriter, userID uuid.UUID) error {
	token, err := newSessionToken()
	if err != nil {
		return err
	}
	rec := Record{UserID: userID, CreatedAt: time.Now()}
	if err := m.store.Set(ctx, sessionKey(token), rec, m.sessionTTL); err != nil {
		return err
	}
	setAuthCookie(w, SessionCookieName, token, m.sessionTTL, m.secureCookies)
	return nil
}

// identityFor validates that the session's user still exists and is active
func (m *Manager) identityFor(ctx context.Context, userID uuid.UUID) (Identity, bool) {
	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			m.logger.Warn("failed to load session user", "user_id", userID, "error", err)
		}
		return Identity{}, false
	}
	if !u.IsActive {
		return Identity{}, false
	}

	return Identity{UserID: u.ID, Email: u.Email, IsAdmin: u.IsAdmin}, true
}

// newSessionToken creates an opaque token with 32 bytes of entropy
func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Tokens are hashed before use as store keys so a leaked store dump does
// not contain usable session proof

func sessionKey(token string) string {
	return "session:" + tokenDigest(token)
}

func rememberKey(token string) string {
	return "remember:" + tokenDigest(token)
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
