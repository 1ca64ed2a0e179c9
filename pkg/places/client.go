// Package places wraps the Google Places web service endpoints used for
// lead discovery: paginated text search and field-masked place details.
// Responses carry the raw body alongside the decoded form so callers can
// cache pages verbatim and replay them without touching the network.
package places

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-engine/internal/resilience"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// DetailFields is the field mask requested on every details call. Keeping
// the mask fixed keeps the per-call billing SKU fixed.
const DetailFields = "place_id,name,formatted_address,formatted_phone_number,international_phone_number,website,types,rating,user_ratings_total"

// Client performs Places API operations.
type Client interface {
	TextSearch(ctx context.Context, query, location, pageToken string) (*TextSearchResponse, error)
	Details(ctx context.Context, placeID string) (*DetailsResponse, error)
}

// SearchResult is one entry of a text search page.
type SearchResult struct {
	PlaceID          string `json:"place_id"`
	Name             string `json:"name"`
	FormattedAddress string `json:"formatted_address"`
}

// TextSearchResponse is one page of text search results. Raw holds the
// body exactly as received.
type TextSearchResponse struct {
	Results       []SearchResult `json:"results"`
	NextPageToken string         `json:"next_page_token"`
	Status        string         `json:"status"`
	ErrorMessage  string         `json:"error_message"`

	Raw []byte `json:"-"`
}

// PlaceDetail is the masked detail payload for one place.
type PlaceDetail struct {
	PlaceID                  string   `json:"place_id"`
	Name                     string   `json:"name"`
	FormattedAddress         string   `json:"formatted_address"`
	FormattedPhoneNumber     string   `json:"formatted_phone_number"`
	InternationalPhoneNumber string   `json:"international_phone_number"`
	Website                  string   `json:"website"`
	Types                    []string `json:"types"`
	Rating                   float64  `json:"rating"`
	UserRatingsTotal         int      `json:"user_ratings_total"`
}

// DetailsResponse is the details endpoint envelope.
type DetailsResponse struct {
	Result       PlaceDetail `json:"result"`
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message"`

	Raw []byte `json:"-"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, query, location, pageToken string) (*TextSearchResponse, error) {
	params := url.Values{}
	if pageToken != "" {
		// A page token encodes the original query; resending it is an error.
		params.Set("pagetoken", pageToken)
	} else {
		params.Set("query", query+" in "+location)
	}

	body, err := c.get(ctx, "/textsearch/json", params)
	if err != nil {
		return nil, err
	}

	var result TextSearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal search response")
	}
	result.Raw = body

	if err := classifyStatus(result.Status, result.ErrorMessage); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) Details(ctx context.Context, placeID string) (*DetailsResponse, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", DetailFields)

	body, err := c.get(ctx, "/details/json", params)
	if err != nil {
		return nil, err
	}

	var result DetailsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal details response")
	}
	result.Raw = body

	if err := classifyStatus(result.Status, result.ErrorMessage); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransient(eris.Wrap(err, "places: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransient(eris.Wrap(err, "places: read response"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransient(err, resp.StatusCode)
		}
		return nil, resilience.NewPermanent(err, resp.StatusCode)
	}
	return body, nil
}

// classifyStatus maps the API-level status string into the retry taxonomy.
// The web service returns HTTP 200 even for errors, so this is the real
// error surface.
func classifyStatus(status, message string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return resilience.NewTransient(eris.Errorf("places: status %s: %s", status, message), 0)
	case "REQUEST_DENIED":
		return resilience.NewMisconfig(eris.Errorf("places: status %s: %s", status, message), 0)
	default:
		// INVALID_REQUEST, NOT_FOUND and anything unrecognized: skip the unit.
		return resilience.NewPermanent(eris.Errorf("places: status %s: %s", status, message), 0)
	}
}
