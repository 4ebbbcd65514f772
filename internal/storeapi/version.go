package storeapi

import (
	"context"
	"fmt"

	"golang.org/x/mod/semver"
)

// MinServerVersion is the oldest commerce API this client speaks to.
// Older servers lack the payment-order endpoint.
const MinServerVersion = "v1.4.0"

// VersionError reports an incompatible commerce API.
type VersionError struct {
	Server  string
	Minimum string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("commerce API version %s is older than required %s", e.Server, e.Minimum)
}

// CheckVersion reads GET /api/version and rejects servers older than min.
// Non-semver versions are accepted as-is with a nil error and the raw string.
func (c *Client) CheckVersion(ctx context.Context, min string) (string, error) {
	req, err := c.newRequest(ctx, "GET", pathVersion, nil)
	if err != nil {
		return "", fmt.Errorf("creating version request: %w", err)
	}

	var resp versionResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}

	if !Compatible(resp.Version, min) {
		return resp.Version, &VersionError{Server: resp.Version, Minimum: min}
	}
	return resp.Version, nil
}

// Compatible reports whether server >= min. Versions that are not semver-like
// (date-stamped builds, empty) are treated as compatible.
func Compatible(server, min string) bool {
	sv := normalizeVersion(server)
	mv := normalizeVersion(min)
	if !semver.IsValid(sv) || !semver.IsValid(mv) || server == "" {
		return true
	}
	return semver.Compare(sv, mv) >= 0
}

// normalizeVersion adds "v" prefix if needed for semver parsing.
func normalizeVersion(v string) string {
	if v == "" {
		return "v0.0.0"
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}
