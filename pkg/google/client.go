package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL      = "https://places.googleapis.com/v1"
	defaultMaxWidthPx   = 1600
	defaultMaxResults   = 20
	defaultRadiusMeters = 1000
)

// placeFieldMask lists the place fields requested by both searches.
var placeFieldMask = strings.Join([]string{
	"places.id",
	"places.displayName",
	"places.formattedAddress",
	"places.location",
	"places.photos",
	"places.rating",
	"places.userRatingCount",
	"places.types",
}, ",")

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, query string) (*SearchResponse, error)
	NearbySearch(ctx context.Context, req NearbySearchRequest) (*SearchResponse, error)
	PhotoURI(ctx context.Context, photoName string, maxWidthPx int) (string, error)
}

// SearchResponse is the response from Text Search and Nearby Search.
type SearchResponse struct {
	Places []Place `json:"places"`
}

// Place represents a place returned by the API.
type Place struct {
	ID               string      `json:"id"`
	DisplayName      DisplayName `json:"displayName"`
	FormattedAddress string      `json:"formattedAddress"`
	Location         LatLng      `json:"location"`
	Photos           []Photo     `json:"photos"`
	Rating           float64     `json:"rating"`
	UserRatingCount  int         `json:"userRatingCount"`
	Types            []string    `json:"types"`
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text string `json:"text"`
}

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Photo is a photo resource reference. Name has the form
// places/{place_id}/photos/{photo_reference}.
type Photo struct {
	Name     string `json:"name"`
	WidthPx  int    `json:"widthPx"`
	HeightPx int    `json:"heightPx"`
}

// NearbySearchRequest describes a circle to search for restaurants.
type NearbySearchRequest struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
	MaxResults   int
	Types        []string
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
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

// NewClient creates a Google Places API client.
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
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

type textSearchRequest struct {
	TextQuery    string `json:"textQuery"`
	IncludedType string `json:"includedType,omitempty"`
}

type nearbySearchRequest struct {
	IncludedTypes       []string            `json:"includedTypes,omitempty"`
	MaxResultCount      int                 `json:"maxResultCount"`
	LocationRestriction locationRestriction `json:"locationRestriction"`
}

type locationRestriction struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"`
}

func (c *httpClient) TextSearch(ctx context.Context, query string) (*SearchResponse, error) {
	return c.search(ctx, "/places:searchText", textSearchRequest{TextQuery: query, IncludedType: "restaurant"})
}

func (c *httpClient) NearbySearch(ctx context.Context, req NearbySearchRequest) (*SearchResponse, error) {
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		return nil, eris.Errorf("google: invalid coordinates %f,%f", req.Latitude, req.Longitude)
	}
	radius := req.RadiusMeters
	if radius <= 0 {
		radius = defaultRadiusMeters
	}
	maxResults := req.MaxResults
	if maxResults <= 0 || maxResults > defaultMaxResults {
		maxResults = defaultMaxResults
	}
	types := req.Types
	if len(types) == 0 {
		types = []string{"restaurant"}
	}

	return c.search(ctx, "/places:searchNearby", nearbySearchRequest{
		IncludedTypes:  types,
		MaxResultCount: maxResults,
		LocationRestriction: locationRestriction{Circle: circle{
			Center: LatLng{Latitude: req.Latitude, Longitude: req.Longitude},
			Radius: radius,
		}},
	})
}

func (c *httpClient) search(ctx context.Context, path string, payload any) (*SearchResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", placeFieldMask)

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}
	return &result, nil
}

type photoMediaResponse struct {
	Name     string `json:"name"`
	PhotoURI string `json:"photoUri"`
}

// PhotoURI resolves a photo resource name to a short-lived public image URL.
func (c *httpClient) PhotoURI(ctx context.Context, photoName string, maxWidthPx int) (string, error) {
	if !strings.HasPrefix(photoName, "places/") {
		return "", eris.Errorf("google: invalid photo name %q", photoName)
	}
	if maxWidthPx <= 0 || maxWidthPx > 4800 {
		maxWidthPx = defaultMaxWidthPx
	}

	q := url.Values{}
	q.Set("maxWidthPx", fmt.Sprint(maxWidthPx))
	q.Set("skipHttpRedirect", "true")
	endpoint := c.baseURL + "/" + photoName + "/media?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", eris.Wrap(err, "google: create photo request")
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	respBody, err := c.do(req)
	if err != nil {
		return "", err
	}

	var media photoMediaResponse
	if err := json.Unmarshal(respBody, &media); err != nil {
		return "", eris.Wrap(err, "google: unmarshal photo response")
	}
	if media.PhotoURI == "" {
		return "", eris.Errorf("google: no photo uri for %s", photoName)
	}
	return media.PhotoURI, nil
}

func (c *httpClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("google: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
