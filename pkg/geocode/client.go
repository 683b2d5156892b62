// Package geocode resolves free-text Korean addresses to coordinates via the
// Kakao local-address API, with variant fallback, rate limiting, and an
// in-process result cache.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes a single free-text address.
type Client interface {
	// Lookup resolves an address. An unmatched address is not an error:
	// the returned Result has Matched=false.
	Lookup(ctx context.Context, address string) (*Result, error)
}

// Result holds the outcome of a geocode lookup.
type Result struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Matched   bool    `json:"matched"`
	Source    string  `json:"source,omitempty"`  // "kakao"
	Variant   string  `json:"variant,omitempty"` // the address variant that matched
}

// Option configures the Kakao client.
type Option func(*KakaoClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(k *KakaoClient) {
		k.httpClient = hc
	}
}

// WithBaseURL overrides the Kakao API base URL.
func WithBaseURL(u string) Option {
	return func(k *KakaoClient) {
		k.baseURL = u
	}
}

// WithMinInterval sets the minimum spacing between external calls. The gate
// is shared: concurrent lookups are serialized to one call per interval.
func WithMinInterval(d time.Duration) Option {
	return func(k *KakaoClient) {
		if d > 0 {
			k.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// NewKakaoClient creates a Client backed by the Kakao local-address API.
func NewKakaoClient(apiKey string, opts ...Option) *KakaoClient {
	k := &KakaoClient{
		apiKey:     apiKey,
		baseURL:    kakaoAddressURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}
