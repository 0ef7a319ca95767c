package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/eskills/edx-store/api/web"
	"github.com/eskills/edx-store/api/weberr"
	"github.com/eskills/edx-store/config"
	"github.com/eskills/edx-store/core/user"
	"github.com/eskills/edx-store/edx"
	"github.com/eskills/edx-store/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// HandleSignup creates the local account and, best-effort, mirrors it on the
// LMS so the user can later be enrolled under the same identity. LMS
// registration failure does not fail the signup; enrollment then falls back
// to the local username.
func HandleSignup(db *sqlx.DB, session *scs.SessionManager, edxCfg config.Edx, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var signup user.UserSignup
		if err := web.Decode(w, r, &signup); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(signup); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(signup.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		usr := user.User{
			ID:           validate.GenerateID(),
			Username:     signup.Username,
			Email:        signup.Email,
			PasswordHash: string(hash),
			Role:         "user",
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		client := edx.New(edxCfg, log)
		edxUsername, err := client.RegisterAccount(ctx, edx.Registration{
			Username:             signup.Username,
			Email:                signup.Email,
			Password:             signup.Password,
			Name:                 signup.Name,
			HonorCode:            true,
			MarketingEmailsOptIn: true,
		})
		if err != nil {
			log.WithField("message", err).Warnf("could not register LMS account for user %s", signup.Username)
		} else {
			usr.EdxUsername.String = edxUsername
			usr.EdxUsername.Valid = true
		}

		if err := user.Create(ctx, db, usr); err != nil {
			return err
		}

		if err := login(ctx, session, usr); err != nil {
			return err
		}

		return web.Respond(ctx, w, usr, http.StatusCreated)
	}
}

func HandleLogin(db *sqlx.DB, session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var creds user.UserLogin
		if err := web.Decode(w, r, &creds); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(creds); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		usr, err := user.FetchByEmail(ctx, db, creds.Email)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return weberr.NotAuthorized(err)
			}
			return err
		}

		if err := bcrypt.CompareHashAndPassword([]byte(usr.PasswordHash), []byte(creds.Password)); err != nil {
			return weberr.NotAuthorized(errors.New("wrong credentials"))
		}

		if err := login(ctx, session, usr); err != nil {
			return err
		}

		return web.Respond(ctx, w, usr, http.StatusOK)
	}
}

func HandleLogout(session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := session.Destroy(ctx); err != nil {
			return err
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func login(ctx context.Context, session *scs.SessionManager, usr user.User) error {
	if err := session.RenewToken(ctx); err != nil {
		return err
	}

	session.Put(ctx, "user_id", usr.ID)
	session.Put(ctx, "username", usr.Username)
	session.Put(ctx, "email", usr.Email)
	if usr.EdxUsername.Valid {
		session.Put(ctx, "edx_username", usr.EdxUsername.String)
	}

	return nil
}
