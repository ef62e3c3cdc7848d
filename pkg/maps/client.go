package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
)

const (
	defaultBaseURL               = "https://routes.googleapis.com"
	computeRoutesPath            = "directions/v2:computeRoutes"
	computeRoutesFieldMask       = "routes.distanceMeters,routes.duration"
	responseBodyReadLimit  int64 = 1024
)

var (
	errAPIKeyRequired = errors.New("google maps api key is required")
)

// Client wraps the Google Routes API used to measure courier legs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured Routes base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the Google Maps client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// LatLng is the latitude/longitude pair accepted by Google.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Route is the distance and duration of the best driving route.
type Route struct {
	DistanceMeters int64
	Duration       time.Duration
}

type waypoint struct {
	Location struct {
		LatLng LatLng `json:"latLng"`
	} `json:"location"`
}

func newWaypoint(p LatLng) waypoint {
	var w waypoint
	w.Location.LatLng = p
	return w
}

// ComputeRoute asks Google for the driving distance between two points.
func (c *Client) ComputeRoute(ctx context.Context, origin, destination LatLng) (*Route, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "google maps client not configured")
	}

	body := struct {
		Origin      waypoint `json:"origin"`
		Destination waypoint `json:"destination"`
		TravelMode  string   `json:"travelMode"`
	}{
		Origin:      newWaypoint(origin),
		Destination: newWaypoint(destination),
		TravelMode:  "TWO_WHEELER",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal compute routes request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(computeRoutesPath), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build compute routes request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", computeRoutesFieldMask)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute compute routes request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "compute routes request failed")
	}

	var apiResp struct {
		Routes []struct {
			DistanceMeters int64  `json:"distanceMeters"`
			Duration       string `json:"duration"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode compute routes response")
	}
	if len(apiResp.Routes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no route between points")
	}

	best := apiResp.Routes[0]
	// durations come back as "123s"
	duration, _ := time.ParseDuration(best.Duration)
	return &Route{DistanceMeters: best.DistanceMeters, Duration: duration}, nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
