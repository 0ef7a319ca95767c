package edx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Enroll submits an enrollment for the (user, course, mode) triple and
// returns the remote payload on success. It never lets a raw transport
// failure escape: everything that can go wrong comes back as an
// *EnrollmentError carrying a message fit for logs and users, because the
// webhook handler calling this must survive any single failed enrollment.
func (c *Client) Enroll(ctx context.Context, user, courseID, mode string) (json.RawMessage, error) {
	if mode == "" {
		mode = "audit"
	}

	if _, err := c.creds.BearerToken(ctx); err != nil {
		c.log.WithField("message", err).Error("failed to get access token for enrollment")
		return nil, &EnrollmentError{Message: "Authentication failed", Err: err}
	}

	body, err := json.Marshal(map[string]interface{}{
		"user": user,
		"course_details": map[string]string{
			"course_id": courseID,
		},
		"mode": mode,
	})
	if err != nil {
		return nil, &EnrollmentError{Message: err.Error(), Err: err}
	}

	c.log.Infof("enrolling user %s in course %s with mode %s", user, courseID, mode)

	res, err := c.send(ctx, http.MethodPost, "api/enrollment/v1/enrollment", nil, body, "application/json")
	if err != nil {
		return nil, &EnrollmentError{Message: err.Error(), Err: err}
	}

	if res.status == http.StatusOK || res.status == http.StatusCreated {
		return res.body, nil
	}

	msg := "Unknown error occurred"
	var remote struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(res.body, &remote); err == nil && remote.Message != "" {
		msg = remote.Message
	}

	c.log.Errorf("failed to enroll user %s in course %s: status %d: %s", user, courseID, res.status, msg)
	return nil, &EnrollmentError{Message: msg}
}

// RemoteEnrollment is one entry of the LMS enrollment listing.
type RemoteEnrollment struct {
	CourseDetails struct {
		CourseID string `json:"course_id"`
	} `json:"course_details"`
	Mode     string `json:"mode"`
	IsActive bool   `json:"is_active"`
}

// UserEnrollments lists a user's enrollments as the LMS sees them. Failures
// degrade to an empty list; this feeds reconciliation views, not billing.
func (c *Client) UserEnrollments(ctx context.Context, username string) []RemoteEnrollment {
	q := url.Values{}
	q.Set("user", username)

	res, err := c.get(ctx, "api/enrollment/v1/enrollment", q)
	if err != nil || !res.ok() {
		c.log.Warnf("fetching enrollments of user %s failed", username)
		return nil
	}

	var enrollments []RemoteEnrollment
	if err := json.Unmarshal(res.body, &enrollments); err != nil {
		c.log.WithField("message", err).Warnf("decoding enrollments of user %s", username)
		return nil
	}

	return enrollments
}

// EnrollmentPayload is a convenience for callers that want the parsed shape
// of a successful Enroll response.
func EnrollmentPayload(raw json.RawMessage) (RemoteEnrollment, error) {
	var e RemoteEnrollment
	if err := json.Unmarshal(raw, &e); err != nil {
		return RemoteEnrollment{}, fmt.Errorf("decoding enrollment payload: %w", err)
	}
	return e, nil
}
