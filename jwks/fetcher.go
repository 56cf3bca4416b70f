package jwks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oidckit/go-jwt-verify/jwterror"
)

// DefaultResponseTimeout bounds a single JWKS fetch.
const DefaultResponseTimeout = 3000 * time.Millisecond

// maxResponseBytes caps the JWKS response body. Real key sets are a few
// kilobytes.
const maxResponseBytes = 1 << 20

// Fetcher retrieves raw bytes from a JWKS endpoint. It is the only
// component in the cache that performs I/O.
//
// Implementations must fail with a NonRetryableFetchError on a non-200
// HTTP status and with a FetchError on network errors or timeouts; the
// caller uses that distinction to decide whether a later verification
// attempt may retry.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// HTTPFetcher fetches JWKS documents over HTTPS.
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
	headers http.Header
}

// HTTPFetcherOption configures the HTTPFetcher.
type HTTPFetcherOption func(*HTTPFetcher) error

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPFetcherOption {
	return func(f *HTTPFetcher) error {
		if c == nil {
			return errors.New("HTTP client cannot be nil")
		}
		f.client = c
		return nil
	}
}

// WithResponseTimeout sets the per-request timeout. The default is 3000 ms.
func WithResponseTimeout(d time.Duration) HTTPFetcherOption {
	return func(f *HTTPFetcher) error {
		if d <= 0 {
			return errors.New("response timeout must be positive")
		}
		f.timeout = d
		return nil
	}
}

// WithRequestHeaders sets extra headers sent on every fetch, for issuers
// that sit behind gateways requiring custom headers.
func WithRequestHeaders(h http.Header) HTTPFetcherOption {
	return func(f *HTTPFetcher) error {
		f.headers = h.Clone()
		return nil
	}
}

// NewHTTPFetcher builds an HTTPFetcher.
func NewHTTPFetcher(opts ...HTTPFetcherOption) (*HTTPFetcher, error) {
	f := &HTTPFetcher{
		client:  &http.Client{},
		timeout: DefaultResponseTimeout,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	return f, nil
}

// Fetch performs a GET against the JWKS URI. The response timeout aborts
// the underlying request; awaiters observe a FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, jwterror.Wrap(jwterror.KindNonRetryableFetchError, "could not build JWKS request", err)
	}
	req.Header.Set("Accept", "application/json")
	for name, values := range f.headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, jwterror.Wrap(jwterror.KindFetchError, "JWKS fetch timed out", err)
		}
		return nil, jwterror.Wrap(jwterror.KindFetchError, "JWKS fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, jwterror.Newf(jwterror.KindNonRetryableFetchError, "JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, jwterror.Wrap(jwterror.KindFetchError, "could not read JWKS response", err)
	}
	return body, nil
}
