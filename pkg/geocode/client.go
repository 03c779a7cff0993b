// Package geocode resolves museum street addresses to coordinates via the
// Census Geocoder, with the Google Geocoding API as an optional paid
// fallback.
package geocode

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client geocodes addresses.
type Client interface {
	// Geocode geocodes a single address.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)

	// BatchGeocode geocodes multiple addresses in one Census batch call.
	BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error)
}

// AddressInput represents an address to geocode.
type AddressInput struct {
	ID      string // optional identifier for batch correlation
	Street  string
	City    string
	State   string
	ZipCode string
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "census" or "google"
	Quality   string // "rooftop", "range", "approximate"
	Matched   bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback for addresses
// Census cannot match.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Census and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit for API calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

// WithBaseURLs overrides the Census endpoints; used by tests.
func WithBaseURLs(oneLine, batch string) Option {
	return func(g *geocoder) {
		g.oneLineURL = oneLine
		g.batchURL = batch
	}
}

// WithGoogleBaseURL overrides the Google endpoint; used by tests.
func WithGoogleBaseURL(u string) Option {
	return func(g *geocoder) {
		g.googleURL = u
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	limiter    *rate.Limiter
	oneLineURL string
	batchURL   string
	googleURL  string
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(5, 5),
		oneLineURL: censusOneLineURL,
		batchURL:   censusBatchURL,
		googleURL:  googleGeocodeURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode tries Census first and falls back to Google for unmatched
// addresses when a key is configured.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	res, err := g.geocodeCensus(ctx, addr)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census")
	}
	if res.Matched || g.googleKey == "" {
		return res, nil
	}

	zap.L().Debug("census miss, trying google fallback",
		zap.String("city", addr.City),
		zap.String("state", addr.State))
	gres, err := g.geocodeGoogle(ctx, addr)
	if err != nil {
		// The census non-match still stands when the fallback fails.
		zap.L().Warn("google fallback failed", zap.Error(err))
		return res, nil
	}
	return gres, nil
}

// BatchGeocode geocodes up to 10,000 addresses via the Census batch API.
func (g *geocoder) BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	return g.batchGeocodeCensus(ctx, addrs)
}
