package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/eskills/edx-store/api/web"
	"github.com/eskills/edx-store/core/course"
	"github.com/gorilla/mux"
	"github.com/plutov/paypal/v4"
	mock "github.com/stripe/stripe-mock/param"
)

type mockPaypal struct {
	mu           sync.Mutex
	expectedCart []course.Course
	orders       int
	captured     []string
}

func (m *mockPaypal) handle() http.Handler {
	token := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"pp-token","token_type":"Bearer","expires_in":3600}`))
	})

	checkout := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var pu struct {
			Units []paypal.PurchaseUnitRequest `json:"purchase_units"`
		}
		if err := json.NewDecoder(r.Body).Decode(&pu); err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		if len(pu.Units) != 1 {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		if len(pu.Units[0].Items) != len(m.expectedCart) {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		var tot float64
		for _, c := range m.expectedCart {
			tot += c.Price
		}

		if pu.Units[0].Amount.Value != strconv.FormatFloat(tot, 'f', 2, 64) {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		m.orders++
		ord := paypal.Order{ID: fmt.Sprintf("paypal-%d", m.orders)}
		web.Respond(context.Background(), w, ord, 200)
	})

	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		m.mu.Lock()
		m.captured = append(m.captured, id)
		m.mu.Unlock()

		payload := map[string]string{"id": id, "status": "COMPLETED"}
		web.Respond(context.Background(), w, payload, 200)
	})

	r := mux.NewRouter()
	r.Handle("/v1/oauth2/token", token).Methods("POST")
	r.Handle("/v2/checkout/orders", checkout).Methods("POST")
	r.Handle("/v2/checkout/orders/{id}/capture", capture).Methods("POST")
	return r
}

type stripeIntent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Metadata     map[string]string
}

type mockStripe struct {
	mu      sync.Mutex
	intents []stripeIntent
}

func (m *mockStripe) handle() http.Handler {
	create := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := mock.ParseParams(r)
		if err != nil {
			web.Respond(context.Background(), w, err, 400)
			return
		}

		s, _ := params["amount"].(string)
		amount, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			web.Respond(context.Background(), w, err, 400)
			return
		}

		metadata := map[string]string{}
		if md, ok := params["metadata"].(map[string]any); ok {
			for k, v := range md {
				if sv, ok := v.(string); ok {
					metadata[k] = sv
				}
			}
		}

		m.mu.Lock()
		in := stripeIntent{
			ID:       fmt.Sprintf("pi_%d", len(m.intents)+1),
			Amount:   amount,
			Metadata: metadata,
		}
		in.ClientSecret = in.ID + "_secret"
		m.intents = append(m.intents, in)
		m.mu.Unlock()

		payload := map[string]any{
			"id":            in.ID,
			"client_secret": in.ClientSecret,
			"amount":        in.Amount,
			"currency":      params["currency"],
			"metadata":      metadata,
			"status":        "requires_payment_method",
		}
		web.Respond(context.Background(), w, payload, 200)
	})

	r := mux.NewRouter()
	r.Handle("/v1/payment_intents", create).Methods("POST")
	return r
}

func (m *mockStripe) lastIntent() (stripeIntent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.intents) == 0 {
		return stripeIntent{}, false
	}
	return m.intents[len(m.intents)-1], true
}
