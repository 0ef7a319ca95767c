package edx

import (
	"context"
	"errors"
	"net/url"
)

// tryPaths walks an ordered list of path variants for the same logical
// resource and stops at the first 2xx answer. A non-2xx status or a
// transport failure on one variant is data that moves iteration along, not
// an abort; the error return is reserved for failures that would hit every
// variant the same way (credential acquisition).
func (c *Client) tryPaths(ctx context.Context, paths []string, query url.Values) (result, bool, error) {
	var last result
	for _, p := range paths {
		res, err := c.get(ctx, p, query)
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				return result{}, false, err
			}
			c.log.WithField("message", err).Warnf("path variant %s failed", p)
			continue
		}
		if res.ok() {
			return res, true, nil
		}
		c.log.Infof("path variant %s answered %d, trying next", p, res.status)
		last = res
	}
	return last, false, nil
}

// ProbeResult is one attempt of a catalog probe.
type ProbeResult struct {
	Path   string `json:"path"`
	Status int    `json:"status"`
	OK     bool   `json:"ok"`
}

// Probe tries every configured catalog listing spelling in order and reports
// each attempt, stopping at the first success. It exists because deployments
// disagree on the exact catalog path; the result tells an operator which
// variant this deployment serves.
func (c *Client) Probe(ctx context.Context) ([]ProbeResult, error) {
	out := make([]ProbeResult, 0, len(c.probePaths))
	for _, p := range c.probePaths {
		res, err := c.get(ctx, p, nil)
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				return nil, err
			}
			out = append(out, ProbeResult{Path: p})
			continue
		}
		out = append(out, ProbeResult{Path: p, Status: res.status, OK: res.ok()})
		if res.ok() {
			break
		}
	}
	return out, nil
}
