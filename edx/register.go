package edx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"unicode"
)

// Registration is the account creation form pushed to the LMS registration
// endpoint when a storefront user signs up.
type Registration struct {
	Username             string
	Email                string
	Password             string
	Name                 string
	Country              string
	Gender               string
	LevelOfEducation     string
	HonorCode            bool
	MarketingEmailsOptIn bool
}

// normalizeUsername strips everything the LMS rejects and lower-cases the
// rest.
func normalizeUsername(username string) string {
	var b strings.Builder
	for _, r := range username {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// RegisterAccount creates the user on the LMS and returns the username the
// account was created under. Remote field errors are flattened into one
// readable message.
func (c *Client) RegisterAccount(ctx context.Context, reg Registration) (string, error) {
	username := normalizeUsername(reg.Username)

	name := strings.TrimSpace(reg.Name)
	if name == "" {
		name = strings.Title(strings.NewReplacer(".", " ", "_", " ").Replace(username))
	}

	country := reg.Country
	if country == "" {
		country = "EG"
	}
	gender := reg.Gender
	if gender == "" {
		gender = "o"
	}
	education := reg.LevelOfEducation
	if education == "" {
		education = "none"
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("email", strings.TrimSpace(reg.Email))
	form.Set("password", reg.Password)
	form.Set("name", name)
	form.Set("country", country)
	form.Set("gender", gender)
	form.Set("level_of_education", education)
	form.Set("goals", "Learn new skills")
	form.Set("honor_code", fmt.Sprintf("%t", reg.HonorCode))
	form.Set("terms_of_service", fmt.Sprintf("%t", reg.HonorCode))
	form.Set("language", "en")
	form.Set("year_of_birth", "1990")
	form.Set("marketing_emails_opt_in", fmt.Sprintf("%t", reg.MarketingEmailsOptIn))

	c.log.Infof("registering LMS account for user %s", username)

	res, err := c.send(ctx, http.MethodPost, "api/user/v1/account/registration/",
		nil, []byte(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return "", fmt.Errorf("registering account: %w", err)
	}

	if res.status == http.StatusOK || res.status == http.StatusCreated {
		return username, nil
	}

	return "", fmt.Errorf("registering account: status %d: %s", res.status, flattenFieldErrors(res.body))
}

// flattenFieldErrors turns the registration endpoint's per-field error shape
// into one "field: message; field: message" string. The remote mixes plain
// strings and {user_message} objects inside each field's list.
func flattenFieldErrors(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return string(body)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var msgs []string
	for _, name := range names {
		var entries []json.RawMessage
		if err := json.Unmarshal(fields[name], &entries); err != nil {
			continue
		}
		for _, e := range entries {
			var structured struct {
				UserMessage string `json:"user_message"`
			}
			if err := json.Unmarshal(e, &structured); err == nil && structured.UserMessage != "" {
				msgs = append(msgs, name+": "+structured.UserMessage)
				continue
			}
			var plain string
			if err := json.Unmarshal(e, &plain); err == nil {
				msgs = append(msgs, name+": "+plain)
			}
		}
	}

	if len(msgs) == 0 {
		return string(body)
	}
	return strings.Join(msgs, "; ")
}
