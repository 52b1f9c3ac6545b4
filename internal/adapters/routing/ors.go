package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/heinnell/ordertrack/internal/core/ports"
	"github.com/heinnell/ordertrack/internal/pkg/geo"
)

// ORSProvider implements ports.RouteProvider against OpenRouteService.
// Transient failures (429/5xx, network errors) are retried with exponential
// backoff while respecting context cancellation.
type ORSProvider struct {
	apiKey  string
	baseURL string
	profile string
	client  *http.Client
}

// NewORSProvider requires an API key; the hosted ORS rejects anonymous calls.
func NewORSProvider(apiKey, baseURL string, timeout time.Duration) (*ORSProvider, error) {
	if apiKey == "" {
		return nil, errors.New("ors: api key is empty")
	}
	return &ORSProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		profile: "driving-car",
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (o *ORSProvider) Name() string { return "ors" }

type orsDirectionsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"` // meters
				Duration float64 `json:"duration"` // seconds
			} `json:"summary"`
			Segments []struct {
				Steps []struct {
					Instruction string `json:"instruction"`
				} `json:"steps"`
			} `json:"segments"`
		} `json:"properties"`
	} `json:"features"`
}

// GetRoute fetches the driving polyline with turn instructions.
func (o *ORSProvider) GetRoute(ctx context.Context, origin, destination geo.Point) (*ports.RouteResult, error) {
	url := fmt.Sprintf("%s/v2/directions/%s?start=%.6f,%.6f&end=%.6f,%.6f",
		o.baseURL, o.profile, origin.Lon, origin.Lat, destination.Lon, destination.Lat)

	var parsed orsDirectionsResponse
	if err := o.getWithRetry(ctx, url, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Features) == 0 {
		return nil, errors.New("ors: empty directions response")
	}

	f := parsed.Features[0]
	points := make([]geo.Point, 0, len(f.Geometry.Coordinates))
	for _, pair := range f.Geometry.Coordinates {
		if len(pair) < 2 {
			continue
		}
		points = append(points, geo.Point{Lon: pair[0], Lat: pair[1]})
	}

	var instructions []string
	for _, seg := range f.Properties.Segments {
		for _, step := range seg.Steps {
			if step.Instruction != "" {
				instructions = append(instructions, step.Instruction)
			}
		}
	}

	return &ports.RouteResult{
		Points:       points,
		DistanceM:    f.Properties.Summary.Distance,
		Duration:     time.Duration(f.Properties.Summary.Duration * float64(time.Second)),
		Instructions: instructions,
		Provider:     o.Name(),
	}, nil
}

// GetDistance reuses the directions endpoint; ORS has no lighter point-to-point
// call on the free tier.
func (o *ORSProvider) GetDistance(ctx context.Context, origin, destination geo.Point) (*ports.DistanceResult, error) {
	route, err := o.GetRoute(ctx, origin, destination)
	if err != nil {
		return nil, err
	}
	return &ports.DistanceResult{
		DistanceM: route.DistanceM,
		Duration:  route.Duration,
		Provider:  o.Name(),
	}, nil
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("ors: HTTP %d: %s", e.Code, e.Body)
}

func (o *ORSProvider) getWithRetry(ctx context.Context, url string, out any) error {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := o.get(ctx, url, out)
		if err == nil {
			return nil
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case http.StatusTooManyRequests, 500, 502, 503, 504:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}

		if !retry || attempt == maxAttempts {
			return lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return lastErr
}

func (o *ORSProvider) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("ors: create request: %w", err)
	}
	req.Header.Set("Authorization", o.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ors: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ors: read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("ors: decode: %w", err)
	}
	return nil
}
