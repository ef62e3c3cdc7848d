package maps

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func TestComputeRouteRequest(t *testing.T) {
	const expectedURL = "http://routes.test/directions/v2:computeRoutes"

	var capturedURL string
	var capturedHeaders http.Header

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedHeaders = req.Header.Clone()

		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		var payload struct {
			Origin struct {
				Location struct {
					LatLng LatLng `json:"latLng"`
				} `json:"location"`
			} `json:"origin"`
			TravelMode string `json:"travelMode"`
		}
		if err := json.Unmarshal(bodyBytes, &payload); err != nil {
			t.Fatalf("unmarshal request body: %v", err)
		}
		if payload.Origin.Location.LatLng.Latitude != -23.56 {
			t.Fatalf("unexpected origin %+v", payload.Origin)
		}
		if payload.TravelMode == "" {
			t.Fatal("travel mode missing")
		}

		return jsonResponse(http.StatusOK, `{"routes":[{"distanceMeters":4200,"duration":"780s"}]}`), nil
	})

	client, err := NewClient("test-key", WithBaseURL("http://routes.test"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	route, err := client.ComputeRoute(context.Background(), LatLng{Latitude: -23.56, Longitude: -46.65}, LatLng{Latitude: -23.58, Longitude: -46.68})
	if err != nil {
		t.Fatalf("compute route: %v", err)
	}
	if capturedURL != expectedURL {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedHeaders.Get("X-Goog-Api-Key") != "test-key" {
		t.Fatalf("api key header missing")
	}
	if capturedHeaders.Get("X-Goog-FieldMask") != computeRoutesFieldMask {
		t.Fatalf("unexpected field mask %q", capturedHeaders.Get("X-Goog-FieldMask"))
	}
	if route.DistanceMeters != 4200 {
		t.Fatalf("unexpected distance %d", route.DistanceMeters)
	}
	if route.Duration != 780*time.Second {
		t.Fatalf("unexpected duration %v", route.Duration)
	}
}

func TestComputeRouteNoRoutes(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	client, err := NewClient("key", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.ComputeRoute(context.Background(), LatLng{}, LatLng{})
	if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestComputeRouteUpstreamError(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusForbidden, `{"error":"denied"}`), nil
	})
	client, err := NewClient("key", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.ComputeRoute(context.Background(), LatLng{}, LatLng{})
	if !pkgerrors.Is(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient("   "); err == nil {
		t.Fatal("expected error for empty key")
	}
}
