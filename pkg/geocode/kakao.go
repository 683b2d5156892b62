package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const kakaoAddressURL = "https://dapi.kakao.com/v2/local/search/address.json"

// kakaoAddressResponse is the JSON response from the Kakao address search API.
// Coordinates arrive as strings: y is latitude, x is longitude.
type kakaoAddressResponse struct {
	Documents []kakaoDocument `json:"documents"`
}

type kakaoDocument struct {
	AddressName string `json:"address_name"`
	X           string `json:"x"`
	Y           string `json:"y"`
}

// KakaoClient implements Client against the Kakao local-address API.
type KakaoClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Lookup tries each address variant in order and returns the first match.
// Network errors, bad statuses, and empty result sets all advance to the
// next variant; exhausting every variant yields an unmatched Result, not an
// error.
func (k *KakaoClient) Lookup(ctx context.Context, address string) (*Result, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return &Result{Matched: false, Source: "kakao"}, nil
	}

	for _, variant := range Variants(trimmed) {
		doc, err := k.search(ctx, variant)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "geocode: lookup canceled")
			}
			zap.L().Debug("kakao: variant failed, trying next",
				zap.String("variant", variant),
				zap.Error(err),
			)
			continue
		}
		if doc == nil {
			zap.L().Debug("kakao: no documents for variant", zap.String("variant", variant))
			continue
		}

		lat, latErr := strconv.ParseFloat(doc.Y, 64)
		lon, lonErr := strconv.ParseFloat(doc.X, 64)
		if latErr != nil || lonErr != nil {
			zap.L().Warn("kakao: unparseable coordinates in response",
				zap.String("variant", variant),
				zap.String("y", doc.Y),
				zap.String("x", doc.X),
			)
			continue
		}

		return &Result{
			Latitude:  lat,
			Longitude: lon,
			Matched:   true,
			Source:    "kakao",
			Variant:   variant,
		}, nil
	}

	return &Result{Matched: false, Source: "kakao"}, nil
}

// search performs one rate-limited request and returns the first candidate
// document, or nil when the service found nothing.
func (k *KakaoClient) search(ctx context.Context, query string) (*kakaoDocument, error) {
	if err := k.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit wait")
	}

	params := url.Values{"query": {query}}
	reqURL := k.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("Authorization", "KakaoAK "+k.apiKey)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: kakao returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var parsed kakaoAddressResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}

	if len(parsed.Documents) == 0 {
		return nil, nil
	}
	return &parsed.Documents[0], nil
}
