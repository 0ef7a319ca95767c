package edx

import (
	"context"
	"net/http"

	"github.com/eskills/edx-store/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Credentials caches the two tokens the LMS requires: a bearer token from the
// client-credentials grant and a CSRF token scraped from the site root. Both
// are fetched lazily and reused for the lifetime of the instance. The cache
// represents the application's service identity with the LMS, never an
// individual user, and is not shared across requests.
type Credentials struct {
	oauth   clientcredentials.Config
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger

	bearer  string
	csrf    string
	csrfSet bool
}

func newCredentials(cfg config.Edx, baseURL string, hc *http.Client, log logrus.FieldLogger) *Credentials {
	return &Credentials{
		oauth: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     baseURL + "/oauth2/access_token/",
			EndpointParams: map[string][]string{
				"token_type": {"jwt"},
			},
			AuthStyle: oauth2.AuthStyleInParams,
		},
		baseURL: baseURL,
		http:    hc,
		log:     log,
	}
}

// BearerToken returns the cached token, fetching it on first use. A failed
// fetch caches nothing, so the next call retries.
func (c *Credentials) BearerToken(ctx context.Context) (string, error) {
	if c.bearer != "" {
		return c.bearer, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.Token(ctx)
	if err != nil {
		return "", &AuthError{Reason: "requesting access token", Err: err}
	}
	if tok.AccessToken == "" {
		return "", &AuthError{Reason: "access token missing from token response"}
	}

	c.bearer = tok.AccessToken
	return c.bearer, nil
}

// CSRFToken returns the token found on the site root, first from the
// csrftoken cookie, else from the X-CSRFToken header. Whatever is found,
// including nothing, is cached for the instance lifetime so every call after
// the first is free. A transport failure caches nothing.
func (c *Credentials) CSRFToken(ctx context.Context) string {
	if c.csrfSet {
		return c.csrf
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		c.log.WithField("message", err).Warn("fetching CSRF token")
		return ""
	}
	defer res.Body.Close()

	var token string
	for _, ck := range res.Cookies() {
		if ck.Name == "csrftoken" {
			token = ck.Value
			break
		}
	}
	if token == "" {
		token = res.Header.Get("X-CSRFToken")
	}
	if token == "" {
		c.log.Warn("no CSRF token found in response")
	}

	c.csrf = token
	c.csrfSet = true
	return c.csrf
}

// Invalidate drops the cached bearer token. Callers use it for the single
// reactive refresh performed on an observed 401.
func (c *Credentials) Invalidate() {
	c.bearer = ""
}

// AuthHeaders builds the header set for an authenticated LMS call. The
// bearer token is mandatory; the CSRF pair is added best-effort when
// requested and available.
func (c *Credentials) AuthHeaders(ctx context.Context, includeCSRF bool) (http.Header, error) {
	bearer, err := c.BearerToken(ctx)
	if err != nil {
		return nil, err
	}

	h := make(http.Header)
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", "EDXStore/1.0")
	h.Set("Authorization", "jwt "+bearer)

	if includeCSRF {
		if csrf := c.CSRFToken(ctx); csrf != "" {
			h.Set("X-CSRFToken", csrf)
			h.Set("Cookie", "csrftoken="+csrf)
		}
	}

	return h, nil
}
