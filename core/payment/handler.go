package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/eskills/edx-store/api/web"
	"github.com/eskills/edx-store/api/weberr"
	"github.com/eskills/edx-store/config"
	"github.com/eskills/edx-store/core/cart"
	"github.com/eskills/edx-store/core/claims"
	"github.com/eskills/edx-store/core/course"
	"github.com/eskills/edx-store/core/user"
	"github.com/eskills/edx-store/edx"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

type ack struct {
	Status string `json:"status"`
}

// HandleCreateIntent computes the payable total from the cart and creates a
// payment intent tagged with the user and cart identifiers the webhook
// needs to find them again. The intent is not deduplicated here; the
// checkout page holds a single in-flight intent.
func HandleCreateIntent(db *sqlx.DB, strp *stripecl.API, cfg config.Stripe) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		crt, err := cart.FetchByUser(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		items, err := cart.FetchItems(ctx, db, crt.ID)
		if err != nil {
			return err
		}

		if len(items) == 0 {
			return weberr.NewError(ErrEmptyCart, ErrEmptyCart.Error(), http.StatusUnprocessableEntity)
		}

		amount := int64(math.Round(cart.Total(items) * 100))

		params := &stripe.PaymentIntentParams{
			Amount:   stripe.Int64(amount),
			Currency: stripe.String(cfg.Currency),
		}
		params.AddMetadata("user_id", clm.UserID)
		params.AddMetadata("cart_id", crt.ID)

		intent, err := strp.PaymentIntents.New(params)
		if err != nil {
			return fmt.Errorf("creating payment intent: %w", err)
		}

		resp := struct {
			ClientSecret string `json:"clientSecret"`
		}{intent.ClientSecret}

		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

// HandleWebhook settles carts on confirmed payments. Signature and payload
// problems answer 400 so the processor retries; every other event type is
// acknowledged and ignored to honor its delivery contract.
func HandleWebhook(db *sqlx.DB, cfg config.Stripe, edxCfg config.Edx, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.BadRequest(errors.New("received stripe event is not signed"))
		}

		event, err := webhook.ConstructEvent(b, sig, cfg.WebhookSecret)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot construct stripe event: %w", err))
		}

		if event.Type != "payment_intent.succeeded" {
			return web.Respond(ctx, w, ack{"ignored"}, http.StatusOK)
		}

		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode stripe event: %w", err))
		}

		cartID := intent.Metadata["cart_id"]
		userID := intent.Metadata["user_id"]
		if cartID == "" || userID == "" {
			return weberr.BadRequest(errors.New("payment intent metadata incomplete"))
		}

		usr, err := user.Fetch(ctx, db, userID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		crt, err := cart.Fetch(ctx, db, cartID)
		if err != nil {
			return weberr.NotFound(fmt.Errorf("cart not found: %w", err))
		}

		items, err := cart.FetchItems(ctx, db, crt.ID)
		if err != nil {
			return err
		}

		lines := make([]line, 0, len(items))
		for _, it := range items {
			lines = append(lines, line{courseID: it.CourseID, mode: it.Mode})
		}

		client := edx.New(edxCfg, log)
		if err := settle(ctx, db, client, log, usr, crt.ID, lines); err != nil {
			return fmt.Errorf("the payment succeeded but its settlement failed: %w", err)
		}

		return web.Respond(ctx, w, ack{"success"}, http.StatusOK)
	}
}

// HandlePaypalCheckout creates a PayPal order from the cart and snapshots
// the lines so capture can settle them later.
func HandlePaypalCheckout(db *sqlx.DB, pp *paypal.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		crt, err := cart.FetchByUser(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		items, err := cart.FetchItems(ctx, db, crt.ID)
		if err != nil {
			return err
		}

		if len(items) == 0 {
			return weberr.NewError(ErrEmptyCart, ErrEmptyCart.Error(), http.StatusUnprocessableEntity)
		}

		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.CourseID)
		}
		courses, err := course.FetchByIDs(ctx, db, ids)
		if err != nil {
			return err
		}
		names := make(map[string]course.Course, len(courses))
		for _, c := range courses {
			names[c.ID] = c
		}

		var tot float64
		ppItems := make([]paypal.Item, 0, len(items))
		for _, it := range items {
			price := 0.0
			if it.Price != nil {
				price = *it.Price
			}

			name := it.CourseID
			description := ""
			if c, ok := names[it.CourseID]; ok {
				name = c.Name
				description = c.ShortDescription
			}

			ppItems = append(ppItems, paypal.Item{
				Quantity:    "1",
				Name:        name,
				Description: description,

				UnitAmount: &paypal.Money{
					Currency: "USD",
					Value:    money(price),
				},
			})

			tot += price
		}

		units := []paypal.PurchaseUnitRequest{{
			Items: ppItems,

			Amount: &paypal.PurchaseUnitAmount{
				Currency: "USD",
				Value:    money(tot),

				Breakdown: &paypal.PurchaseUnitAmountBreakdown{ItemTotal: &paypal.Money{
					Currency: "USD",
					Value:    money(tot),
				}},
			},
		}}

		ord, err := pp.CreateOrder(ctx, "CAPTURE", units, nil, &paypal.ApplicationContext{})
		if err != nil {
			return fmt.Errorf("creating paypal order: %w", err)
		}

		if err := prepare(ctx, db, clm.UserID, ord.ID, items); err != nil {
			return fmt.Errorf("creating the order on the database: %w", err)
		}

		return web.Respond(ctx, w, ord, http.StatusOK)
	}
}

// HandlePaypalCapture captures the provider order and settles the snapshot
// taken at checkout.
func HandlePaypalCapture(db *sqlx.DB, pp *paypal.Client, edxCfg config.Edx, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		providerID := web.Param(r, "id")

		resp, err := pp.CaptureOrder(ctx, providerID, paypal.CaptureOrderRequest{})
		if err != nil {
			return fmt.Errorf("capturing paypal order[%s]: %w", providerID, err)
		}

		if resp.Status != "COMPLETED" {
			return fmt.Errorf("captured order[%s] with status[%s] different from 'COMPLETED'", providerID, resp.Status)
		}

		ord, err := FetchByProviderID(ctx, db, providerID)
		if err != nil {
			return err
		}

		orderItems, err := FetchOrderItems(ctx, db, ord.ID)
		if err != nil {
			return err
		}

		usr, err := user.Fetch(ctx, db, ord.UserID)
		if err != nil {
			return err
		}

		crt, err := cart.FetchByUser(ctx, db, ord.UserID)
		if err != nil {
			return err
		}

		if err := UpdateStatus(ctx, db, ord.ID, Success); err != nil {
			return err
		}

		lines := make([]line, 0, len(orderItems))
		for _, it := range orderItems {
			lines = append(lines, line{courseID: it.CourseID, mode: it.Mode})
		}

		client := edx.New(edxCfg, log)
		if err := settle(ctx, db, client, log, usr, crt.ID, lines); err != nil {
			return fmt.Errorf("the order was payed but its settlement failed: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
