// Package wikidata looks museums up in Wikidata and extracts the claims the
// enrichment pipeline cares about.
package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/markhazleton/MuseumSpark-sub000/internal/resilience"
)

const defaultBaseURL = "https://www.wikidata.org/w/api.php"

// Claim property IDs.
const (
	propInception    = "P571"
	propVisitors     = "P1174"
	propCoordinates  = "P625"
	propOfficialSite = "P856"
)

// Entity holds the extracted museum facts for one Wikidata item.
type Entity struct {
	QID            string
	Label          string
	Description    string
	FoundedYear    *int
	AnnualVisitors *int
	Website        string
	Latitude       *float64
	Longitude      *float64

	// LastRevisionID changes whenever the item is edited; the pipeline
	// uses it as the upstream signature.
	LastRevisionID int64
}

// Signature returns the watermark string for this entity revision.
func (e *Entity) Signature() string {
	return fmt.Sprintf("rev:%d", e.LastRevisionID)
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API endpoint; used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithUserAgent sets the User-Agent header. Wikidata asks API consumers to
// identify themselves.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)) }
}

// Client calls the Wikidata action API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

// NewClient creates a Wikidata client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  "museumspark/1.0",
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	Search []struct {
		ID          string `json:"id"`
		Label       string `json:"label"`
		Description string `json:"description"`
	} `json:"search"`
}

// SearchEntity finds the best-matching item QID for a museum name. The city
// disambiguates between museums sharing a name; a candidate whose
// description mentions the city wins over earlier candidates.
func (c *Client) SearchEntity(ctx context.Context, name, city string) (string, error) {
	params := url.Values{
		"action":   {"wbsearchentities"},
		"search":   {name},
		"language": {"en"},
		"type":     {"item"},
		"limit":    {"5"},
		"format":   {"json"},
	}

	var sr searchResponse
	if err := c.get(ctx, params, &sr); err != nil {
		return "", eris.Wrapf(err, "wikidata: search %q", name)
	}
	if len(sr.Search) == 0 {
		return "", nil
	}

	if city != "" {
		cityLower := strings.ToLower(city)
		for _, cand := range sr.Search {
			if strings.Contains(strings.ToLower(cand.Description), cityLower) {
				return cand.ID, nil
			}
		}
	}
	return sr.Search[0].ID, nil
}

type getEntitiesResponse struct {
	Entities map[string]json.RawMessage `json:"entities"`
}

type rawEntity struct {
	ID        string `json:"id"`
	LastRevID int64  `json:"lastrevid"`
	Labels    map[string]struct {
		Value string `json:"value"`
	} `json:"labels"`
	Descriptions map[string]struct {
		Value string `json:"value"`
	} `json:"descriptions"`
	Claims map[string][]claim `json:"claims"`
}

type claim struct {
	Mainsnak struct {
		Datavalue struct {
			Value json.RawMessage `json:"value"`
			Type  string          `json:"type"`
		} `json:"datavalue"`
	} `json:"mainsnak"`
	Rank string `json:"rank"`
}

// GetEntity fetches one item and extracts its museum facts.
func (c *Client) GetEntity(ctx context.Context, qid string) (*Entity, error) {
	params := url.Values{
		"action": {"wbgetentities"},
		"ids":    {qid},
		"props":  {"labels|descriptions|claims|info"},
		"format": {"json"},
	}

	var gr getEntitiesResponse
	if err := c.get(ctx, params, &gr); err != nil {
		return nil, eris.Wrapf(err, "wikidata: get entity %s", qid)
	}

	raw, ok := gr.Entities[qid]
	if !ok {
		return nil, eris.Errorf("wikidata: entity %s not in response", qid)
	}

	var re rawEntity
	if err := json.Unmarshal(raw, &re); err != nil {
		return nil, eris.Wrapf(err, "wikidata: parse entity %s", qid)
	}

	e := &Entity{
		QID:            re.ID,
		LastRevisionID: re.LastRevID,
	}
	if l, ok := re.Labels["en"]; ok {
		e.Label = l.Value
	}
	if d, ok := re.Descriptions["en"]; ok {
		e.Description = d.Value
	}

	e.FoundedYear = extractYear(firstClaim(re.Claims, propInception))
	e.AnnualVisitors = extractQuantity(firstClaim(re.Claims, propVisitors))
	e.Website = extractString(firstClaim(re.Claims, propOfficialSite))
	e.Latitude, e.Longitude = extractCoordinates(firstClaim(re.Claims, propCoordinates))

	return e, nil
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("wikidata", "get")

	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limit")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, eris.Wrap(err, "build request")
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "request")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("status %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "parse response")
	}
	return nil
}

// firstClaim returns the first preferred-or-normal claim for a property.
func firstClaim(claims map[string][]claim, prop string) *claim {
	for i := range claims[prop] {
		cl := &claims[prop][i]
		if cl.Rank == "preferred" {
			return cl
		}
	}
	if len(claims[prop]) > 0 {
		return &claims[prop][0]
	}
	return nil
}

func extractYear(cl *claim) *int {
	if cl == nil {
		return nil
	}
	var v struct {
		Time string `json:"time"`
	}
	if json.Unmarshal(cl.Mainsnak.Datavalue.Value, &v) != nil {
		return nil
	}
	// Time values look like "+1879-00-00T00:00:00Z".
	ts := strings.TrimPrefix(v.Time, "+")
	if len(ts) < 4 {
		return nil
	}
	year, err := strconv.Atoi(ts[:4])
	if err != nil {
		return nil
	}
	return &year
}

func extractQuantity(cl *claim) *int {
	if cl == nil {
		return nil
	}
	var v struct {
		Amount string `json:"amount"`
	}
	if json.Unmarshal(cl.Mainsnak.Datavalue.Value, &v) != nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimPrefix(v.Amount, "+"), 64)
	if err != nil {
		return nil
	}
	n := int(f)
	return &n
}

func extractString(cl *claim) string {
	if cl == nil {
		return ""
	}
	var s string
	if json.Unmarshal(cl.Mainsnak.Datavalue.Value, &s) != nil {
		return ""
	}
	return s
}

func extractCoordinates(cl *claim) (*float64, *float64) {
	if cl == nil {
		return nil, nil
	}
	var v struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if json.Unmarshal(cl.Mainsnak.Datavalue.Value, &v) != nil {
		return nil, nil
	}
	return &v.Latitude, &v.Longitude
}
