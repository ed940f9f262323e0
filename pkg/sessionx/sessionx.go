// Package sessionx implements the cookie session for facility users. The
// session is a signed JWT carrying the authenticated principal and a small
// bag of string values (e.g. the OAuth handoff stashed by the sign-in flow).
// State lives entirely in the cookie; popping a value takes effect as soon
// as the rewritten cookie is saved, regardless of how the request ends.
package sessionx

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the session cookie.
const CookieName = "fd_session"

// DefaultTTL bounds how long a session cookie stays valid without a rewrite.
const DefaultTTL = 24 * time.Hour

// Manager signs and verifies session cookies with an HS256 secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
}

// NewManager returns a Manager signing with secret. A non-positive ttl
// falls back to DefaultTTL.
func NewManager(secret []byte, ttl time.Duration, secure bool) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{secret: secret, ttl: ttl, secure: secure}
}

type sessionClaims struct {
	Values map[string]string `json:"vals,omitempty"`

	jwt.RegisteredClaims
}

// Session is the mutable per-request view of the cookie. Mutations are only
// persisted once Save writes the rewritten cookie.
type Session struct {
	userID string
	values map[string]string
	dirty  bool
}

// Load parses the session cookie from r. A missing, expired or otherwise
// invalid cookie yields a fresh anonymous session, never an error.
func (m *Manager) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return &Session{}
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return &Session{}
	}

	return &Session{
		userID: claims.Subject,
		values: claims.Values,
	}
}

// Save writes the session back to the client if it changed. Empty sessions
// expire the cookie instead of re-signing it.
func (m *Manager) Save(w http.ResponseWriter, s *Session) {
	if !s.dirty {
		return
	}
	s.dirty = false

	if s.userID == "" && len(s.values) == 0 {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   m.secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
		return
	}

	now := time.Now()
	claims := sessionClaims{
		Values: s.values,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		// HMAC signing only fails on a broken key type; drop the session
		// rather than send an unsigned cookie.
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
}

// UserID returns the authenticated principal, or "" for anonymous sessions.
func (s *Session) UserID() string { return s.userID }

// Authenticated reports whether a principal is logged in.
func (s *Session) Authenticated() bool { return s.userID != "" }

// Login makes userID the session principal.
func (s *Session) Login(userID string) {
	s.userID = userID
	s.dirty = true
}

// Logout drops the principal and every stashed value.
func (s *Session) Logout() {
	s.userID = ""
	s.values = nil
	s.dirty = true
}

// Get returns the stashed value for key, or "".
func (s *Session) Get(key string) string {
	return s.values[key]
}

// Set stashes a value under key.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Pop removes and returns the stashed value for key. The removal sticks once
// the session is saved, even if the request ultimately fails.
func (s *Session) Pop(key string) (string, bool) {
	value, ok := s.values[key]
	if !ok {
		return "", false
	}
	delete(s.values, key)
	s.dirty = true
	return value, true
}
