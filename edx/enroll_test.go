package edx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
)

func TestEnroll(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/enrollment/v1/enrollment", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			User          string `json:"user"`
			CourseDetails struct {
				CourseID string `json:"course_id"`
			} `json:"course_details"`
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body.User != "alice" || body.CourseDetails.CourseID != testCourseID || body.Mode != "verified" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"course_details":{"course_id":"` + testCourseID + `"},"mode":"verified","is_active":true}`))
	}).Methods(http.MethodPost)

	c, _ := newTestClient(t, r)

	raw, err := c.Enroll(context.Background(), "alice", testCourseID, "verified")
	if err != nil {
		t.Fatalf("enrolling: %v", err)
	}

	e, err := EnrollmentPayload(raw)
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if e.CourseDetails.CourseID != testCourseID || !e.IsActive {
		t.Errorf("payload = %+v", e)
	}
}

func TestEnrollDefaultsToAudit(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/enrollment/v1/enrollment", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body["mode"] != "audit" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}).Methods(http.MethodPost)

	c, _ := newTestClient(t, r)

	if _, err := c.Enroll(context.Background(), "alice", testCourseID, ""); err != nil {
		t.Fatalf("enrolling: %v", err)
	}
}

func TestEnrollRemoteMessage(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/enrollment/v1/enrollment", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Course is full"}`))
	}).Methods(http.MethodPost)

	c, _ := newTestClient(t, r)

	_, err := c.Enroll(context.Background(), "alice", testCourseID, "audit")
	if err == nil {
		t.Fatal("expected an error")
	}

	var enrErr *EnrollmentError
	if !errors.As(err, &enrErr) {
		t.Fatalf("got %T, want *EnrollmentError", err)
	}
	if enrErr.Message != "Course is full" {
		t.Errorf("message = %q, want the remote one", enrErr.Message)
	}
}

func TestEnrollUnknownError(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/enrollment/v1/enrollment", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}).Methods(http.MethodPost)

	c, _ := newTestClient(t, r)

	_, err := c.Enroll(context.Background(), "alice", testCourseID, "audit")

	var enrErr *EnrollmentError
	if !errors.As(err, &enrErr) {
		t.Fatalf("got %T, want *EnrollmentError", err)
	}
	if enrErr.Message != "Unknown error occurred" {
		t.Errorf("message = %q, want Unknown error occurred", enrErr.Message)
	}
}

func TestEnrollAuthFailure(t *testing.T) {
	var enrollHits int32
	r := mux.NewRouter()
	r.HandleFunc("/oauth2/access_token/", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/enrollment/v1/enrollment", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&enrollHits, 1)
	}).Methods(http.MethodPost)

	srv := newStubServer(t, r)
	c := New(testConfig(srv.URL), testLog())

	_, err := c.Enroll(context.Background(), "alice", testCourseID, "audit")

	var enrErr *EnrollmentError
	if !errors.As(err, &enrErr) {
		t.Fatalf("got %T, want *EnrollmentError", err)
	}
	if enrErr.Message != "Authentication failed" {
		t.Errorf("message = %q, want Authentication failed", enrErr.Message)
	}
	if n := atomic.LoadInt32(&enrollHits); n != 0 {
		t.Errorf("enrollment endpoint hit %d times without credentials", n)
	}
}
