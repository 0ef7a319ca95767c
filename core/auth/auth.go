package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/eskills/edx-store/api/web"
	"github.com/eskills/edx-store/api/weberr"
	"github.com/eskills/edx-store/core/claims"
)

// LoadAndSave adapts the session manager's http middleware to the web.Handler
// chain.
func LoadAndSave(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			var err error
			hf := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				err = handler(r.Context(), w, r)
			})
			session.LoadAndSave(hf).ServeHTTP(w, r)
			return err
		}
		return h
	}
	return m
}

// Authenticate rejects requests without a logged-in session and loads the
// session identity into claims for downstream handlers.
func Authenticate(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			userID := session.GetString(ctx, "user_id")
			if userID == "" {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}

			ctx = claims.Set(ctx, claims.Claims{
				UserID:      userID,
				Username:    session.GetString(ctx, "username"),
				Email:       session.GetString(ctx, "email"),
				EdxUsername: session.GetString(ctx, "edx_username"),
			})

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
