package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finex/internal/core"
)

const (
	// CookieName is the session cookie set by the login handler.
	CookieName = "finex_session"

	defaultSessionTTL = 7 * 24 * time.Hour
)

var (
	ErrNoSession      = errors.New("no session")
	ErrBadSession     = errors.New("malformed session")
	ErrExpiredSession = errors.New("session expired")
)

// Sessions signs and verifies session cookies. The cookie value is
// base64(principal) "." expiry-unix "." base64(hmac-sha256).
type Sessions struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewSessions returns a session manager. A zero ttl selects seven days.
func NewSessions(secret string, ttl time.Duration, secure bool) *Sessions {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, secure: secure, now: time.Now}
}

// Issue writes a fresh session cookie for p.
func (s *Sessions) Issue(w http.ResponseWriter, p core.Principal) {
	expires := s.now().Add(s.ttl)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.encode(p, expires),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Principal reads and verifies the session cookie of r.
func (s *Sessions) Principal(r *http.Request) (core.Principal, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", ErrNoSession
	}
	return s.decode(c.Value)
}

// Middleware attaches the session principal, when present, to the request
// context. Requests without a valid session pass through anonymous.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, err := s.Principal(r); err == nil {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Sessions) encode(p core.Principal, expires time.Time) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(p)) + "." + strconv.FormatInt(expires.Unix(), 10)
	return payload + "." + base64.RawURLEncoding.EncodeToString(s.sign(payload))
}

func (s *Sessions) decode(v string) (core.Principal, error) {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return "", ErrBadSession
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", ErrBadSession
	}
	if !hmac.Equal(sig, s.sign(parts[0]+"."+parts[1])) {
		return "", ErrBadSession
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrBadSession
	}
	if s.now().Unix() >= exp {
		return "", ErrExpiredSession
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil || len(raw) == 0 {
		return "", ErrBadSession
	}
	return core.Principal(raw), nil
}

func (s *Sessions) sign(payload string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
