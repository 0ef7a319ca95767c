package course

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/eskills/edx-store/api/web"
	"github.com/eskills/edx-store/api/weberr"
	"github.com/eskills/edx-store/config"
	"github.com/eskills/edx-store/core/claims"
	"github.com/eskills/edx-store/core/enrollment"
	"github.com/eskills/edx-store/edx"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const defaultPageSize = 12

// HandleList serves the catalog listing straight from the LMS, prices
// already merged in.
func HandleList(edxCfg config.Edx, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		page := queryInt(r, "page", 1)
		pageSize := queryInt(r, "page_size", defaultPageSize)

		client := edx.New(edxCfg, log)
		list, err := client.ListCourses(ctx, page, pageSize)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, list, http.StatusOK)
	}
}

// HandleShow fetches course details across the endpoint variants and caches
// the merged record locally.
func HandleShow(db *sqlx.DB, edxCfg config.Edx, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		courseID := web.Param(r, "id")

		client := edx.New(edxCfg, log)
		rc, err := client.GetCourseDetails(ctx, courseID)
		if err != nil {
			return err
		}
		if rc == nil {
			return weberr.NotFound(errors.New("course not found on any endpoint"))
		}

		if err := Upsert(ctx, db, FromRemote(*rc)); err != nil {
			log.WithField("message", err).Warnf("caching course %s", courseID)
		}

		return web.Respond(ctx, w, rc, http.StatusOK)
	}
}

// HandleEnroll performs a direct (unpaid) enrollment in the course's default
// mode. Paid modes go through the cart.
func HandleEnroll(db *sqlx.DB, edxCfg config.Edx, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		courseID := web.Param(r, "id")

		client := edx.New(edxCfg, log)
		rc, err := client.GetCourseDetails(ctx, courseID)
		if err != nil {
			return err
		}
		if rc == nil {
			return weberr.NotFound(errors.New("course not found on any endpoint"))
		}

		if rc.Price > 0 {
			err := errors.New("course requires purchase")
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		payload, err := client.Enroll(ctx, clm.LMSUser(), courseID, "audit")
		if err != nil {
			var enrErr *edx.EnrollmentError
			if errors.As(err, &enrErr) {
				return weberr.NewError(err, enrErr.Message, http.StatusBadGateway)
			}
			return err
		}

		if err := enrollment.Record(ctx, db, clm.UserID, courseID, "audit"); err != nil {
			log.WithField("message", err).Warnf("recording enrollment of user %s in course %s", clm.UserID, courseID)
		}

		return web.Respond(ctx, w, payload, http.StatusOK)
	}
}

// HandleListOwned lists the courses the user holds enrollments for, rendered
// from the local cache.
func HandleListOwned(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		enrollments, err := enrollment.FetchByUser(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(enrollments))
		for _, e := range enrollments {
			ids = append(ids, e.CourseID)
		}

		courses, err := FetchByIDs(ctx, db, ids)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, courses, http.StatusOK)
	}
}

// HandleProbe reports which catalog path spelling this LMS deployment
// actually serves. Diagnostic surface, admin debugging only.
func HandleProbe(edxCfg config.Edx, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		client := edx.New(edxCfg, log)
		attempts, err := client.Probe(ctx)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, attempts, http.StatusOK)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
