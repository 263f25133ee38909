// Package session keeps the dashboard login in two cookies: the opaque
// backend token and the signed admin user record.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/phillip-england/leadsdash/internal/security"
)

const (
	TokenCookie = "admin_token"
	UserCookie  = "admin_user"
	DefaultTTL  = 12 * time.Hour
)

var ErrNoSession = errors.New("no session")

type User struct {
	Role        string `json:"role"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type Session struct {
	User  User
	Token string
}

func (s Session) Valid() bool { return strings.TrimSpace(s.Token) != "" }

type Store struct {
	signer *security.Signer
	secure bool
	ttl    time.Duration
}

func NewStore(signer *security.Signer, secure bool, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{signer: signer, secure: secure, ttl: ttl}
}

// Save writes both cookies. The token cookie is readable by page scripts and
// sent on same-site navigation only.
func (s *Store) Save(w http.ResponseWriter, sess Session) error {
	if !sess.Valid() {
		return errors.New("session token is empty")
	}
	payload, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode admin user: %w", err)
	}
	maxAge := int(s.ttl / time.Second)
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secure,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     UserCookie,
		Value:    s.signer.Sign(payload),
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secure,
	})
	return nil
}

func (s *Store) Clear(w http.ResponseWriter) {
	for _, name := range []string{TokenCookie, UserCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			SameSite: http.SameSiteLaxMode,
			Secure:   s.secure,
		})
	}
}

// Read decodes the cookies of r. Both must be present and the user record
// must carry a valid signature.
func (s *Store) Read(r *http.Request) (Session, error) {
	tokenCookie, err := r.Cookie(TokenCookie)
	if err != nil || strings.TrimSpace(tokenCookie.Value) == "" {
		return Session{}, ErrNoSession
	}
	userCookie, err := r.Cookie(UserCookie)
	if err != nil {
		return Session{}, ErrNoSession
	}
	payload, err := s.signer.Verify(userCookie.Value)
	if err != nil {
		return Session{}, fmt.Errorf("admin user cookie: %w", err)
	}
	var user User
	if err := json.Unmarshal(payload, &user); err != nil {
		return Session{}, fmt.Errorf("admin user cookie: %w", err)
	}
	return Session{User: user, Token: tokenCookie.Value}, nil
}

type contextKey struct{}

// Middleware reads the cookies once and stores the outcome on the request
// context for FromContext.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.Read(r)
		if err != nil {
			sess = Session{}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, sess)))
	})
}

func FromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(Session)
	return sess, ok && sess.Valid()
}
