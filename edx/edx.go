// Package edx is the client for the remote LMS: course catalog, pricing,
// account registration and enrollment. The remote surface is not uniformly
// versioned, so lookups that have known alternate spellings walk an ordered
// list of path variants until one answers.
package edx

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/eskills/edx-store/config"
	"github.com/sirupsen/logrus"
)

type Client struct {
	baseURL     string
	http        *http.Client
	creds       *Credentials
	log         logrus.FieldLogger
	detailPaths []string
	probePaths  []string
}

// New builds a client with a fresh credential cache. Clients are cheap and
// carry per-instance credential state, so callers create one per request
// rather than sharing instances.
func New(cfg config.Edx, log logrus.FieldLogger) *Client {
	transport := http.DefaultTransport
	if cfg.InsecureSkipVerify {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}

	hc := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}

	base := strings.TrimRight(cfg.URL, "/")

	return &Client{
		baseURL:     base,
		http:        hc,
		creds:       newCredentials(cfg, base, hc, log),
		log:         log,
		detailPaths: cfg.CourseDetailPaths,
		probePaths:  cfg.CatalogProbePaths,
	}
}

// Credentials exposes the client's credential cache, mostly for tests and
// for callers that only need auth headers.
func (c *Client) Credentials() *Credentials { return c.creds }

// result is a completed remote call: failure is represented as data so that
// fallback iteration can consume it instead of unwinding.
type result struct {
	status int
	body   []byte
}

func (r result) ok() bool { return r.status >= 200 && r.status < 300 }

// send performs one authenticated call against the LMS. A 401 invalidates
// the cached bearer token and retries exactly once; there is no further
// retry or backoff.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte, contentType string) (result, error) {
	for attempt := 0; ; attempt++ {
		headers, err := c.creds.AuthHeaders(ctx, true)
		if err != nil {
			return result{}, err
		}
		if contentType != "" {
			headers.Set("Content-Type", contentType)
		}

		u := c.baseURL + "/" + strings.TrimLeft(path, "/")
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return result{}, fmt.Errorf("building request for %s: %w", path, err)
		}
		req.Header = headers

		res, err := c.http.Do(req)
		if err != nil {
			return result{}, fmt.Errorf("calling %s: %w", path, err)
		}

		b, err := io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			return result{}, fmt.Errorf("reading response of %s: %w", path, err)
		}

		if res.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.log.WithField("path", path).Info("received 401, refreshing bearer token")
			c.creds.Invalidate()
			continue
		}

		return result{status: res.StatusCode, body: b}, nil
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (result, error) {
	return c.send(ctx, http.MethodGet, path, query, nil, "")
}
