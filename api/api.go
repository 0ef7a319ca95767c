package api

import (
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/eskills/edx-store/api/middleware"
	"github.com/eskills/edx-store/api/web"
	"github.com/eskills/edx-store/config"
	"github.com/eskills/edx-store/core/auth"
	"github.com/eskills/edx-store/core/cart"
	"github.com/eskills/edx-store/core/course"
	"github.com/eskills/edx-store/core/payment"
	"github.com/eskills/edx-store/core/user"
	"github.com/eskills/edx-store/rate"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

type APIConfig struct {
	CorsOrigin string
	Log        logrus.FieldLogger
	DB         *sqlx.DB
	Session    *scs.SessionManager
	Limiter    *rate.Limiter
	Paypal     *paypal.Client
	Stripe     *stripecl.API
	StripeCfg  config.Stripe
	EdxCfg     config.Edx
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, auth.LoadAndSave(cfg.Session))
	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.Limiter != nil {
		a.mw = append(a.mw, middleware.RateLimit(cfg.Limiter))
	}

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	authen := auth.Authenticate(cfg.Session)

	a.Handle(http.MethodPost, "/auth/signup", auth.HandleSignup(cfg.DB, cfg.Session, cfg.EdxCfg, cfg.Log))
	a.Handle(http.MethodPost, "/auth/login", auth.HandleLogin(cfg.DB, cfg.Session))
	a.Handle(http.MethodPost, "/auth/logout", auth.HandleLogout(cfg.Session))

	a.Handle(http.MethodGet, "/users/current", user.HandleShowCurrent(cfg.DB), authen)

	a.Handle(http.MethodGet, "/courses/owned", course.HandleListOwned(cfg.DB), authen)
	a.Handle(http.MethodGet, "/courses/probe", course.HandleProbe(cfg.EdxCfg, cfg.Log))
	a.Handle(http.MethodGet, "/courses/{id}", course.HandleShow(cfg.DB, cfg.EdxCfg, cfg.Log))
	a.Handle(http.MethodPost, "/courses/{id}/enroll", course.HandleEnroll(cfg.DB, cfg.EdxCfg, cfg.Log), authen)
	a.Handle(http.MethodGet, "/courses", course.HandleList(cfg.EdxCfg, cfg.Log))

	a.Handle(http.MethodGet, "/cart", cart.HandleShow(cfg.DB), authen)
	a.Handle(http.MethodDelete, "/cart", cart.HandleDelete(cfg.DB), authen)
	a.Handle(http.MethodPut, "/cart/items", cart.HandleCreateItem(cfg.DB, cfg.EdxCfg, cfg.Log), authen)
	a.Handle(http.MethodDelete, "/cart/items/{course_id}", cart.HandleDeleteItem(cfg.DB), authen)

	a.Handle(http.MethodPost, "/payment/intent", payment.HandleCreateIntent(cfg.DB, cfg.Stripe, cfg.StripeCfg), authen)
	a.Handle(http.MethodPost, "/payment/webhook", payment.HandleWebhook(cfg.DB, cfg.StripeCfg, cfg.EdxCfg, cfg.Log))
	a.Handle(http.MethodPost, "/orders/paypal", payment.HandlePaypalCheckout(cfg.DB, cfg.Paypal), authen)
	a.Handle(http.MethodPost, "/orders/paypal/{id}/capture", payment.HandlePaypalCapture(cfg.DB, cfg.Paypal, cfg.EdxCfg, cfg.Log))

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
