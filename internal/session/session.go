// Package session reads the reader's cookie session and exposes the authenticated flag
// that the navigation guard consults. Signing in itself happens elsewhere.
package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/hlog"
)

const (
	Name = "novelshelf-session"

	isAuthKey = "is_authenticated"
)

type ctxKey string

const authenticatedKey ctxKey = "authenticated"

type Store struct {
	cookies *sessions.CookieStore
}

// NewStore builds a cookie store. An empty key yields a random per-process key, so
// sessions do not survive a restart.
func NewStore(sessionKey string, secure bool) (*Store, error) {
	key := []byte(sessionKey)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, errors.New("generate session key")
		}
	}

	cookies := sessions.NewCookieStore(key)
	cookies.Options = &sessions.Options{
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Store{cookies: cookies}, nil
}

// Middleware stores the session's authenticated flag in the request context.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.cookies.Get(r, Name)
		if err != nil {
			var scErr securecookie.Error
			if errors.As(err, &scErr) && scErr.IsDecode() {
				hlog.FromRequest(r).Warn().Err(err).Msg("session cookie invalid, using fresh session")
			} else {
				hlog.FromRequest(r).Error().Err(err).Msg("session store error, using fresh session")
			}
		}

		isAuth, _ := sess.Values[isAuthKey].(bool)
		next.ServeHTTP(w, r.WithContext(WithAuthenticated(r.Context(), isAuth)))
	})
}

func WithAuthenticated(ctx context.Context, authenticated bool) context.Context {
	return context.WithValue(ctx, authenticatedKey, authenticated)
}

// Status implements guard.AuthStatus over the request context.
type Status struct{}

func (Status) IsAuthenticated(ctx context.Context) bool {
	authenticated, _ := ctx.Value(authenticatedKey).(bool)
	return authenticated
}
