package session

import (
	"net/http"
	"time"
)

const (
	// SessionCookieName carries the opaque session token
	SessionCookieName = "ims_session"
	// RememberCookieName carries the long-lived remember token
	RememberCookieName = "ims_remember"
)

// legacyCookieNames were issued by earlier releases. Logout must expire
// them too, or a stale variant could resurrect a session.
var legacyCookieNames = []string{"session", "remember_token"}

func setAuthCookie(w http.ResponseWriter, name, value string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearAuthCookies expires every session and remember cookie variant this
// application has ever issued
func clearAuthCookies(w http.ResponseWriter) {
	names := append([]string{SessionCookieName, RememberCookieName}, legacyCookieNames...)
	for _, name := range names {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func cookieValue(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
