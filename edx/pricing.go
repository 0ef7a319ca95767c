package edx

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Source identifies which endpoint a resolved price came from.
type Source string

const (
	SourceCommerce    Source = "commerce_api"
	SourceCourseModes Source = "course_modes_api"
	SourceDefault     Source = "default"
	SourceError       Source = "error"
)

// Price is the outcome of a pricing resolution. Amount is in major units and
// Currency is always upper-cased.
type Price struct {
	Amount   float64 `json:"price"`
	Currency string  `json:"currency"`
	Source   Source  `json:"source"`
}

// money tolerates the remote APIs reporting prices both as numbers and as
// quoted strings like "149.00".
type money float64

func (m *money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing price %q: %w", s, err)
	}
	*m = money(f)
	return nil
}

// Mode is one enrollment track of a course. The commerce API names it via
// "name", the course-modes API via "mode_slug"; both are accepted.
type Mode struct {
	Name     string `json:"name"`
	Slug     string `json:"mode_slug"`
	Price    money  `json:"price"`
	Currency string `json:"currency"`
}

func (m Mode) label() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Slug
}

func (m Mode) currency() string {
	if m.Currency == "" {
		return "USD"
	}
	return strings.ToUpper(m.Currency)
}

// pickMode applies the two-pass scan both pricing sources share: first any
// mode named professional or verified in listing order, else the first mode
// with a positive price.
func pickMode(modes []Mode) (Mode, bool) {
	for _, m := range modes {
		if l := m.label(); l == "professional" || l == "verified" {
			return m, true
		}
	}
	for _, m := range modes {
		if m.Price > 0 {
			return m, true
		}
	}
	return Mode{}, false
}

// ResolvePrice determines price, currency and source for a course by asking
// the commerce API first and the course-modes API second. It never returns
// an error: a transport or decode failure downgrades to a zero price with
// source "error", and no usable mode anywhere yields the "default" source.
func (c *Client) ResolvePrice(ctx context.Context, courseID string) Price {
	res, err := c.get(ctx, fmt.Sprintf("api/commerce/v1/courses/%s/", courseID), nil)
	if err != nil {
		c.log.WithField("message", err).Warnf("commerce api failed for course %s", courseID)
		return Price{Currency: "USD", Source: SourceError}
	}
	if res.ok() {
		var commerce struct {
			Modes []Mode `json:"modes"`
		}
		if err := json.Unmarshal(res.body, &commerce); err != nil {
			c.log.WithField("message", err).Warnf("decoding commerce response for course %s", courseID)
			return Price{Currency: "USD", Source: SourceError}
		}
		if m, ok := pickMode(commerce.Modes); ok {
			return Price{Amount: float64(m.Price), Currency: m.currency(), Source: SourceCommerce}
		}
	} else {
		c.log.Warnf("commerce api returned status %d for course %s", res.status, courseID)
	}

	res, err = c.get(ctx, fmt.Sprintf("api/enrollment/v1/course/%s/modes", courseID), nil)
	if err != nil {
		c.log.WithField("message", err).Warnf("course modes api failed for course %s", courseID)
		return Price{Currency: "USD", Source: SourceError}
	}
	if res.ok() {
		var modes []Mode
		if err := json.Unmarshal(res.body, &modes); err != nil {
			c.log.WithField("message", err).Warnf("decoding course modes response for course %s", courseID)
			return Price{Currency: "USD", Source: SourceError}
		}
		if m, ok := pickMode(modes); ok {
			return Price{Amount: float64(m.Price), Currency: m.currency(), Source: SourceCourseModes}
		}
	} else {
		c.log.Warnf("course modes api returned status %d for course %s", res.status, courseID)
	}

	return Price{Currency: "USD", Source: SourceDefault}
}

// CourseMode reports the purchasable mode of a course, preferring
// professional and verified tracks, then the first paid mode, then audit.
// The second value is false when the course-modes endpoint is unusable.
func (c *Client) CourseMode(ctx context.Context, courseID string) (Mode, bool) {
	res, err := c.get(ctx, fmt.Sprintf("api/course_modes/v1/courses/%s/", courseID), nil)
	if err != nil || !res.ok() {
		return Mode{}, false
	}

	var modes []Mode
	if err := json.Unmarshal(res.body, &modes); err != nil {
		return Mode{}, false
	}

	if m, ok := pickMode(modes); ok {
		if m.Name == "" {
			m.Name = m.Slug
		}
		return m, true
	}

	return Mode{Name: "audit", Currency: "USD"}, true
}
