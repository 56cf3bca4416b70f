// Package oidc resolves the JWKS endpoint of an issuer through its
// OpenID Connect discovery document.
package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"

	"github.com/oidckit/go-jwt-verify/jwterror"
)

// WellKnownEndpoints is the subset of the discovery document this module
// consumes.
type WellKnownEndpoints struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// GetWellKnownEndpoints fetches .well-known/openid-configuration from the
// issuer and double-validates that the metadata's issuer matches the
// expected issuer, so a compromised or misrouted endpoint cannot steer
// key resolution to a foreign JWKS.
func GetWellKnownEndpoints(ctx context.Context, client *http.Client, issuer string) (*WellKnownEndpoints, error) {
	u, err := url.Parse(issuer)
	if err != nil {
		return nil, jwterror.Wrap(jwterror.KindNonRetryableFetchError, "invalid issuer URL", err)
	}
	u.Path = path.Join(u.Path, ".well-known/openid-configuration")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, jwterror.Wrap(jwterror.KindNonRetryableFetchError, "could not build discovery request", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, jwterror.Wrap(jwterror.KindFetchError, "could not fetch discovery document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, jwterror.Newf(jwterror.KindNonRetryableFetchError, "discovery endpoint returned status %d", resp.StatusCode)
	}

	var endpoints WellKnownEndpoints
	if err := json.NewDecoder(resp.Body).Decode(&endpoints); err != nil {
		return nil, jwterror.Wrap(jwterror.KindNonRetryableFetchError, "could not decode discovery document", err)
	}
	if endpoints.JWKSURI == "" {
		return nil, jwterror.New(jwterror.KindNonRetryableFetchError, "discovery document is missing jwks_uri")
	}
	if endpoints.Issuer != issuer {
		return nil, jwterror.Newf(jwterror.KindNonRetryableFetchError, "discovery document issuer %q does not match %q", endpoints.Issuer, issuer)
	}
	return &endpoints, nil
}
