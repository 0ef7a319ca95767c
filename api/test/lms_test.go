package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/eskills/edx-store/api/web"
	"github.com/gorilla/mux"
)

type lmsCourse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Org        string  `json:"org"`
	Number     string  `json:"number"`
	Price      float64 `json:"-"`
	mobileOnly bool
}

type enrollCall struct {
	User     string
	CourseID string
	Mode     string
}

// mockLMS stubs the remote learning platform: token endpoint, catalog,
// pricing, registration and enrollment.
type mockLMS struct {
	mu       sync.Mutex
	seq      int
	courses  map[string]lmsCourse
	order    []string
	fail     map[string]bool
	enrolled []enrollCall
}

func newMockLMS() *mockLMS {
	return &mockLMS{
		courses: make(map[string]lmsCourse),
		fail:    make(map[string]bool),
	}
}

func (m *mockLMS) addCourse(name string, price float64) lmsCourse {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	c := lmsCourse{
		ID:     fmt.Sprintf("course-v1:TEST+C%d+2024", m.seq),
		Name:   name,
		Org:    "TEST",
		Number: fmt.Sprintf("C%d", m.seq),
		Price:  price,
	}
	m.courses[c.ID] = c
	m.order = append(m.order, c.ID)
	return c
}

// addMobileCourse registers a course served only by the legacy mobile
// detail endpoint.
func (m *mockLMS) addMobileCourse(name string, price float64) lmsCourse {
	c := m.addCourse(name, price)

	m.mu.Lock()
	defer m.mu.Unlock()
	c.mobileOnly = true
	m.courses[c.ID] = c
	return c
}

// failEnrollment makes every enrollment into the course answer an error.
func (m *mockLMS) failEnrollment(courseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[courseID] = true
}

func (m *mockLMS) enrollments() []enrollCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]enrollCall, len(m.enrolled))
	copy(out, m.enrolled)
	return out
}

func (m *mockLMS) handle() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/oauth2/access_token/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"lms-token","token_type":"bearer","expires_in":3600}`))
	}).Methods(http.MethodPost)

	r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "lms-csrf"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/user/v1/account/registration/", func(w http.ResponseWriter, req *http.Request) {
		web.Respond(context.Background(), w, map[string]bool{"success": true}, http.StatusOK)
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/courses/v1/courses/", m.listCourses).Methods(http.MethodGet)
	r.HandleFunc("/api/courses/v1/courses/{id}", m.courseDetail).Methods(http.MethodGet)
	r.HandleFunc("/api/mobile/v0.5/course_info/{id}", m.mobileDetail).Methods(http.MethodGet)

	r.HandleFunc("/api/commerce/v1/courses/{id}/", m.commerceModes).Methods(http.MethodGet)
	r.HandleFunc("/api/enrollment/v1/course/{id}/modes", m.courseModes).Methods(http.MethodGet)
	r.HandleFunc("/api/course_modes/v1/courses/{id}/", m.courseModes).Methods(http.MethodGet)

	r.HandleFunc("/api/enrollment/v1/enrollment", m.enroll).Methods(http.MethodPost)

	return r
}

func (m *mockLMS) listCourses(w http.ResponseWriter, req *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]lmsCourse, 0, len(m.order))
	for _, id := range m.order {
		results = append(results, m.courses[id])
	}

	payload := map[string]any{
		"results": results,
		"count":   len(results),
	}
	web.Respond(context.Background(), w, payload, http.StatusOK)
}

func (m *mockLMS) courseDetail(w http.ResponseWriter, req *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.courses[mux.Vars(req)["id"]]
	if !ok || c.mobileOnly {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	web.Respond(context.Background(), w, c, http.StatusOK)
}

func (m *mockLMS) mobileDetail(w http.ResponseWriter, req *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.courses[mux.Vars(req)["id"]]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	web.Respond(context.Background(), w, c, http.StatusOK)
}

func (m *mockLMS) commerceModes(w http.ResponseWriter, req *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.courses[mux.Vars(req)["id"]]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	modes := []map[string]any{{"name": "audit", "price": 0, "currency": "usd"}}
	if c.Price > 0 {
		modes = append(modes, map[string]any{"name": "verified", "price": c.Price, "currency": "usd"})
	}
	web.Respond(context.Background(), w, map[string]any{"modes": modes}, http.StatusOK)
}

func (m *mockLMS) courseModes(w http.ResponseWriter, req *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.courses[mux.Vars(req)["id"]]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	modes := []map[string]any{{"mode_slug": "audit", "price": 0, "currency": "usd"}}
	if c.Price > 0 {
		modes = append(modes, map[string]any{"mode_slug": "verified", "price": c.Price, "currency": "usd"})
	}
	web.Respond(context.Background(), w, modes, http.StatusOK)
}

func (m *mockLMS) enroll(w http.ResponseWriter, req *http.Request) {
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

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail[body.CourseDetails.CourseID] {
		web.Respond(context.Background(), w, map[string]string{"message": "enrollment closed"}, http.StatusBadRequest)
		return
	}

	m.enrolled = append(m.enrolled, enrollCall{
		User:     body.User,
		CourseID: body.CourseDetails.CourseID,
		Mode:     body.Mode,
	})

	payload := map[string]any{
		"course_details": map[string]string{"course_id": body.CourseDetails.CourseID},
		"mode":           body.Mode,
		"is_active":      true,
	}
	web.Respond(context.Background(), w, payload, http.StatusOK)
}
