package auth

import (
	"crypto/sha256"
	"net/http"
	"net/url"
	"time"

	"github.com/cardmate/cardmate/internal/config"
	"github.com/gorilla/securecookie"
)

const sessionLifetime = 7 * 24 * time.Hour

type sessionValue struct {
	UserID string `json:"user_id"`
	Exp    int64  `json:"exp"`
}

// SessionManager manages web UI sessions.
type SessionManager struct {
	cookieName string
	codec      *securecookie.SecureCookie
	secure     bool
}

func NewSessionManager(cfg *config.Config) *SessionManager {
	hash := sha256.Sum256([]byte(cfg.Session.Secret))

	// The sha256 digest doubles as an AES-256 sized block key.
	sc := securecookie.New(hash[:], hash[:])
	sc.MaxAge(int(sessionLifetime / time.Second))
	sc.SetSerializer(securecookie.JSONEncoder{})

	secure := true
	if base, err := url.Parse(cfg.BaseURL); err == nil && base.Scheme != "https" {
		secure = false
	}

	return &SessionManager{
		cookieName: "cardmate_session",
		codec:      sc,
		secure:     secure,
	}
}

// Issue sets the session cookie for a user.
func (m *SessionManager) Issue(w http.ResponseWriter, userID string) error {
	value := sessionValue{
		UserID: userID,
		Exp:    time.Now().Add(sessionLifetime).Unix(),
	}

	encoded, err := m.codec.Encode(m.cookieName, value)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		Expires:  time.Now().Add(sessionLifetime),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear removes the session cookie.
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:    m.cookieName,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0),
		Secure:  m.secure,
	})
}

// CurrentUserID extracts the user ID from the request session if present.
func (m *SessionManager) CurrentUserID(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}

	var value sessionValue
	if err := m.codec.Decode(m.cookieName, c.Value, &value); err != nil {
		return "", false
	}

	if value.UserID == "" || time.Unix(value.Exp, 0).Before(time.Now()) {
		return "", false
	}
	return value.UserID, true
}
