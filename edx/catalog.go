package edx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Course is the merged view of a catalog record: the remote payload fields
// the storefront renders, explicit where the remote shape is optional, plus
// the pricing result attached by the resolver.
type Course struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	Org              string                 `json:"org"`
	Number           string                 `json:"number"`
	ShortDescription string                 `json:"short_description"`
	Overview         string                 `json:"overview"`
	Prerequisites    string                 `json:"prerequisites"`
	StartDisplay     string                 `json:"start_display"`
	Pacing           string                 `json:"pacing"`
	Effort           string                 `json:"effort"`
	Start            *time.Time             `json:"start"`
	End              *time.Time             `json:"end"`
	EnrollmentStart  *time.Time             `json:"enrollment_start"`
	EnrollmentEnd    *time.Time             `json:"enrollment_end"`
	Media            map[string]interface{} `json:"media"`
	MobileAvailable  *bool                  `json:"mobile_available"`

	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Source   Source  `json:"source"`
	Mode     string  `json:"mode"`
}

// withDefaults fills every optional field the remote payload may omit, so
// downstream code never branches on absence. Pure: the receiver is copied.
func (co Course) withDefaults(courseID string) Course {
	if co.ID == "" {
		co.ID = courseID
	}
	if co.Name == "" {
		co.Name = "Course"
	}
	if co.ShortDescription == "" {
		co.ShortDescription = "No description available."
	}
	if co.Overview == "" {
		co.Overview = "No overview available."
	}
	if co.Prerequisites == "" {
		co.Prerequisites = "No prerequisites."
	}
	if co.Org == "" {
		co.Org = "Organization"
	}
	if co.Number == "" {
		co.Number = "Course Number"
	}
	if co.StartDisplay == "" {
		co.StartDisplay = "Not specified"
	}
	if co.Pacing == "" {
		co.Pacing = "Self-paced"
	}
	if co.Effort == "" {
		co.Effort = "Not specified"
	}
	if co.Media == nil {
		co.Media = map[string]interface{}{}
	}
	if co.MobileAvailable == nil {
		t := true
		co.MobileAvailable = &t
	}
	if co.Currency == "" {
		co.Currency = "USD"
	}
	if co.Mode == "" {
		co.Mode = "audit"
	}
	return co
}

type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

type CourseList struct {
	Results    []Course   `json:"results"`
	Pagination Pagination `json:"pagination"`
}

// ListCourses fetches one catalog page and attaches pricing to every course.
// The listing endpoint has no fallback variants: a non-200 fails the call.
// A pricing failure for an individual course does not; that course keeps a
// zero price.
func (c *Client) ListCourses(ctx context.Context, page, pageSize int) (CourseList, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	res, err := c.get(ctx, "api/courses/v1/courses/", q)
	if err != nil {
		return CourseList{}, &CatalogError{Op: "listing courses", Err: err}
	}
	if !res.ok() {
		return CourseList{}, &CatalogError{Op: "listing courses", Status: res.status}
	}

	var payload struct {
		Results []Course `json:"results"`
		Count   int      `json:"count"`
	}
	if err := json.Unmarshal(res.body, &payload); err != nil {
		return CourseList{}, &CatalogError{Op: "decoding course listing", Err: err}
	}

	list := CourseList{
		Results: make([]Course, 0, len(payload.Results)),
		Pagination: Pagination{
			Page:     page,
			PageSize: pageSize,
			Total:    payload.Count,
		},
	}

	for _, co := range payload.Results {
		price := c.ResolvePrice(ctx, co.ID)
		co.Price = price.Amount
		co.Currency = price.Currency
		co.Source = price.Source
		list.Results = append(list.Results, co.withDefaults(co.ID))
	}

	c.log.Infof("fetched %d courses from catalog", len(list.Results))
	return list, nil
}

// GetCourseDetails looks a course up across the configured detail path
// variants, primary endpoint first, legacy mobile endpoint last. A course
// absent from every variant is (nil, nil), which callers render as not
// found; only credential failures surface as errors.
func (c *Client) GetCourseDetails(ctx context.Context, courseID string) (*Course, error) {
	paths := make([]string, 0, len(c.detailPaths))
	for _, tpl := range c.detailPaths {
		paths = append(paths, fmt.Sprintf(tpl, courseID))
	}

	res, ok, err := c.tryPaths(ctx, paths, nil)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		c.log.WithField("message", err).Warnf("fetching details of course %s", courseID)
		return nil, nil
	}
	if !ok {
		c.log.Warnf("course %s not found on any detail endpoint", courseID)
		return nil, nil
	}

	var co Course
	if err := json.Unmarshal(res.body, &co); err != nil {
		c.log.WithField("message", err).Warnf("decoding details of course %s", courseID)
		return nil, nil
	}

	price := c.ResolvePrice(ctx, courseID)
	co.Price = price.Amount
	co.Currency = price.Currency
	co.Source = price.Source

	if mode, ok := c.CourseMode(ctx, courseID); ok {
		co.Mode = mode.Name
	}

	co = co.withDefaults(courseID)
	return &co, nil
}
