package cart

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/eskills/edx-store/api/web"
	"github.com/eskills/edx-store/api/weberr"
	"github.com/eskills/edx-store/config"
	"github.com/eskills/edx-store/core/claims"
	"github.com/eskills/edx-store/core/course"
	"github.com/eskills/edx-store/edx"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type cartView struct {
	Cart
	Total float64 `json:"total"`
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		crt, err := FetchByUser(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		crt.Items, err = FetchItems(ctx, db, crt.ID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, cartView{Cart: crt, Total: Total(crt.Items)}, http.StatusOK)
	}
}

// HandleCreateItem verifies the course against the remote catalog, picks its
// purchasable mode and price, and adds the line. Adding a course already in
// the cart answers 200 without a second line.
func HandleCreateItem(db *sqlx.DB, edxCfg config.Edx, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var in ItemNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(err)
		}

		client := edx.New(edxCfg, log)
		rc, err := client.GetCourseDetails(ctx, in.CourseID)
		if err != nil {
			return err
		}
		if rc == nil {
			return weberr.NotFound(errors.New("course not found on any endpoint"))
		}

		if err := course.Upsert(ctx, db, course.FromRemote(*rc)); err != nil {
			log.WithField("message", err).Warnf("caching course %s", rc.ID)
		}

		crt, err := FetchByUser(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		it := Item{
			CartID:    crt.ID,
			CourseID:  rc.ID,
			Mode:      rc.Mode,
			Currency:  rc.Currency,
			CreatedAt: time.Now().UTC(),
		}
		if rc.Price > 0 {
			price := rc.Price
			it.Price = &price
		}

		added, err := AddItem(ctx, db, it)
		if err != nil {
			return err
		}
		if !added {
			log.Infof("course %s already in cart of user %s", rc.ID, clm.UserID)
			return web.Respond(ctx, w, it, http.StatusOK)
		}

		return web.Respond(ctx, w, it, http.StatusCreated)
	}
}

func HandleDeleteItem(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		crt, err := FetchByUser(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		removed, err := DeleteItem(ctx, db, crt.ID, web.Param(r, "course_id"))
		if err != nil {
			return err
		}
		if !removed {
			return weberr.NotFound(errors.New("course not in cart"))
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleDelete(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		crt, err := FetchByUser(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		if err := Clear(ctx, db, crt.ID); err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
