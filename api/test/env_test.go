package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/eskills/edx-store/api"
	"github.com/eskills/edx-store/config"
	"github.com/eskills/edx-store/database"
	"github.com/eskills/edx-store/random"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

const webhookSecret = "whsec_test_secret"

// TestEnv is one isolated instance of the whole API: its own database, its
// own stub LMS and payment providers, and one signed-up user.
type TestEnv struct {
	Server *httptest.Server
	URL    string
	DB     *sqlx.DB

	LMS    *mockLMS
	Paypal *mockPaypal
	Stripe *mockStripe

	UserID    string
	UserEmail string
	UserPass  string

	WebhookSecret string
}

func NewTestEnv(t *testing.T, name string) (*TestEnv, error) {
	t.Helper()

	dbName := strings.ToLower(name + "_" + random.String(6))

	admin, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("opening admin db connection: %w", err)
	}
	if _, err := admin.Exec("CREATE DATABASE " + dbName); err != nil {
		admin.Close()
		return nil, fmt.Errorf("creating database %s: %w", dbName, err)
	}
	admin.Close()

	cfg := dbCfg
	cfg.Name = dbName
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	lms := newMockLMS()
	lmsSrv := httptest.NewServer(lms.handle())
	t.Cleanup(lmsSrv.Close)

	stripeMock := &mockStripe{}
	stripeSrv := httptest.NewServer(stripeMock.handle())
	t.Cleanup(stripeSrv.Close)

	paypalMock := &mockPaypal{}
	paypalSrv := httptest.NewServer(paypalMock.handle())
	t.Cleanup(paypalSrv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL: stripe.String(stripeSrv.URL),
	})
	strp := &stripecl.API{}
	strp.Init("sk_test_123", &stripe.Backends{API: backend})

	pp, err := paypal.NewClient("test-client", "test-secret", paypalSrv.URL)
	if err != nil {
		return nil, fmt.Errorf("building paypal client: %w", err)
	}
	if _, err := pp.GetAccessToken(context.Background()); err != nil {
		return nil, fmt.Errorf("getting paypal access token: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	session := scs.New()
	session.Lifetime = time.Hour

	edxCfg := config.Edx{
		URL:          lmsSrv.URL,
		ClientID:     "store-client",
		ClientSecret: "store-secret",
		Timeout:      5 * time.Second,
		CourseDetailPaths: []string{
			"api/courses/v1/courses/%s",
			"api/mobile/v0.5/course_info/%s",
		},
		CatalogProbePaths: []string{
			"api/course/v1/courses/",
			"api/courses/v1/courses/",
		},
	}

	mux := api.APIMux(api.APIConfig{
		Log:       logger,
		DB:        db,
		Session:   session,
		Paypal:    pp,
		Stripe:    strp,
		StripeCfg: config.Stripe{APISecret: "sk_test_123", WebhookSecret: webhookSecret, Currency: "usd"},
		EdxCfg:    edxCfg,
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("building cookie jar: %w", err)
	}
	srv.Client().Jar = jar

	env := &TestEnv{
		Server:        srv,
		URL:           srv.URL,
		DB:            db,
		LMS:           lms,
		Paypal:        paypalMock,
		Stripe:        stripeMock,
		UserEmail:     "tester@example.com",
		UserPass:      "s3cret-pass",
		WebhookSecret: webhookSecret,
	}

	if err := env.signupDefaultUser(); err != nil {
		return nil, err
	}

	return env, nil
}

func (e *TestEnv) Client() *http.Client {
	return e.Server.Client()
}

func (e *TestEnv) signupDefaultUser() error {
	body, err := json.Marshal(map[string]string{
		"username": "tester",
		"email":    e.UserEmail,
		"password": e.UserPass,
		"name":     "Test User",
	})
	if err != nil {
		return err
	}

	res, err := e.Client().Post(e.URL+"/auth/signup", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("signing up: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		return fmt.Errorf("signing up: status code %s", res.Status)
	}

	var usr struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&usr); err != nil {
		return fmt.Errorf("decoding signup response: %w", err)
	}
	e.UserID = usr.ID

	return Logout(e.Server)
}

func Login(srv *httptest.Server, email, pass string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": pass})
	if err != nil {
		return err
	}

	res, err := srv.Client().Post(srv.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("logging in: status code %s", res.Status)
	}
	return nil
}

func Logout(srv *httptest.Server) error {
	res, err := srv.Client().Post(srv.URL+"/auth/logout", "application/json", nil)
	if err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusNoContent {
		return fmt.Errorf("logging out: status code %s", res.Status)
	}
	return nil
}
