package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/heinnell/ordertrack/internal/core/ports"
	"github.com/heinnell/ordertrack/internal/pkg/geo"
)

// OSRMProvider implements ports.RouteProvider against an OSRM instance
// (public router or self-hosted).
type OSRMProvider struct {
	baseURL string
	client  *http.Client
}

// NewOSRMProvider uses the given base URL, e.g. "https://router.project-osrm.org".
func NewOSRMProvider(baseURL string, timeout time.Duration) *OSRMProvider {
	return &OSRMProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *OSRMProvider) Name() string { return "osrm" }

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
	} `json:"routes"`
}

// GetRoute fetches the full driving polyline between two points.
func (o *OSRMProvider) GetRoute(ctx context.Context, origin, destination geo.Point) (*ports.RouteResult, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		o.baseURL, origin.Lon, origin.Lat, destination.Lon, destination.Lat)

	var parsed osrmResponse
	if err := o.get(ctx, url, &parsed); err != nil {
		return nil, err
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return nil, fmt.Errorf("osrm: no route (code %q)", parsed.Code)
	}

	r := parsed.Routes[0]
	points := make([]geo.Point, 0, len(r.Geometry.Coordinates))
	for _, pair := range r.Geometry.Coordinates {
		if len(pair) < 2 {
			continue
		}
		points = append(points, geo.Point{Lon: pair[0], Lat: pair[1]})
	}

	return &ports.RouteResult{
		Points:    points,
		DistanceM: r.Distance,
		Duration:  time.Duration(r.Duration * float64(time.Second)),
		Provider:  o.Name(),
	}, nil
}

// GetDistance fetches distance and duration without the geometry payload.
func (o *OSRMProvider) GetDistance(ctx context.Context, origin, destination geo.Point) (*ports.DistanceResult, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false",
		o.baseURL, origin.Lon, origin.Lat, destination.Lon, destination.Lat)

	var parsed osrmResponse
	if err := o.get(ctx, url, &parsed); err != nil {
		return nil, err
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return nil, fmt.Errorf("osrm: no route (code %q)", parsed.Code)
	}

	r := parsed.Routes[0]
	return &ports.DistanceResult{
		DistanceM: r.Distance,
		Duration:  time.Duration(r.Duration * float64(time.Second)),
		Provider:  o.Name(),
	}, nil
}

func (o *OSRMProvider) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("osrm: create request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("osrm: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("osrm: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("osrm: read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("osrm: decode: %w", err)
	}
	return nil
}
