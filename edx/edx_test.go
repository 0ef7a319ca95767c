package edx

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eskills/edx-store/config"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func testConfig(url string) config.Edx {
	return config.Edx{
		URL:          url,
		ClientID:     "store-client",
		ClientSecret: "store-secret",
		Timeout:      5 * time.Second,
		CourseDetailPaths: []string{
			"api/courses/v1/courses/%s",
			"api/mobile/v0.5/course_info/%s",
		},
		CatalogProbePaths: []string{
			"api/courses/v1/courses/",
			"api/course/v1/courses/",
			"api/v1/courses/",
		},
	}
}

func testLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// stubToken registers a token endpoint handing out tok-1, tok-2, ... and
// counting its hits.
func stubToken(r *mux.Router, hits *int32) {
	r.HandleFunc("/oauth2/access_token/", func(w http.ResponseWriter, req *http.Request) {
		n := atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":3600}`, n)
	}).Methods(http.MethodPost)
}

func newStubServer(t *testing.T, r *mux.Router) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// newTestClient spins a stub LMS around the given router, with a working
// token endpoint, and returns a client pointed at it.
func newTestClient(t *testing.T, r *mux.Router) (*Client, *int32) {
	t.Helper()

	var tokenHits int32
	stubToken(r, &tokenHits)

	srv := newStubServer(t, r)

	return New(testConfig(srv.URL), testLog()), &tokenHits
}
