package domain

import (
	"errors"
	"time"

	"github.com/heinnell/ordertrack/internal/pkg/geo"
)

var (
	// ErrInvalidCoordinate flags malformed or sentinel (0,0) coordinates.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrStaleSample flags a position older than the newest retained sample.
	ErrStaleSample = errors.New("stale position sample")
	// ErrSessionExists is returned when tracking is already active for an order.
	ErrSessionExists = errors.New("tracking session already exists")
	// ErrSessionNotFound is returned for operations on an unknown order.
	ErrSessionNotFound = errors.New("tracking session not found")
)

// Position is one GPS fix for a tracked vehicle. Immutable once created.
type Position struct {
	Time      time.Time `json:"time"`
	OrderID   string    `json:"order_id"`
	VehicleID string    `json:"vehicle_id,omitempty"`
	Location  geo.Point `json:"location"`
	AccuracyM float64   `json:"accuracy_m,omitempty"`
	SpeedKMH  float64   `json:"speed_kmh,omitempty"`
	Bearing   float64   `json:"bearing,omitempty"`
}

// Validate rejects fixes the engine must never feed into distance math.
func (p *Position) Validate() error {
	if !p.Location.Valid() {
		return ErrInvalidCoordinate
	}
	if p.Time.IsZero() {
		return errors.New("position has no timestamp")
	}
	return nil
}

// PlannedRoute is the intended polyline from origin to destination for one
// order/vehicle pair. Replaced wholesale on re-plan, never mutated in place.
type PlannedRoute struct {
	ID        string        `json:"id"`
	Points    []geo.Point   `json:"points"`
	DistanceM float64       `json:"distance_m"`
	Duration  time.Duration `json:"duration"`
	Source    string        `json:"source"` // provider name or "fallback"
}

// NewPlannedRoute computes the cumulative length once at construction.
func NewPlannedRoute(id string, points []geo.Point, duration time.Duration, source string) *PlannedRoute {
	return &PlannedRoute{
		ID:        id,
		Points:    points,
		DistanceM: geo.PathLength(points),
		Duration:  duration,
		Source:    source,
	}
}

// DistanceToIndex returns the path length in meters from the first vertex up
// to (and including) vertex i.
func (r *PlannedRoute) DistanceToIndex(i int) float64 {
	if r == nil || i <= 0 {
		return 0
	}
	if i >= len(r.Points) {
		i = len(r.Points) - 1
	}
	return geo.PathLength(r.Points[:i+1])
}

// SpeedSample is a derived speed reading from two consecutive positions.
type SpeedSample struct {
	SpeedKMH  float64   `json:"speed_kmh"`
	Time      time.Time `json:"time"`
	DistanceM float64   `json:"distance_m"`
}

// SpeedTrend classifies the short-window speed direction.
type SpeedTrend string

const (
	TrendIncreasing SpeedTrend = "increasing"
	TrendDecreasing SpeedTrend = "decreasing"
	TrendStable     SpeedTrend = "stable"
)

// ConfidenceTier is a coarse reliability label for a derived estimate.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

// RouteProgress is the map-matched position of a vehicle along its planned
// route. Recomputed per sample; always derivable from history + route.
type RouteProgress struct {
	MatchedIndex   int     `json:"matched_index"`
	DistanceAlongM float64 `json:"distance_along_m"`
	Confidence     float64 `json:"confidence"`
	OnRoute        bool    `json:"on_route"`
	DeviationM     float64 `json:"deviation_m"`
}

// ETAResult is the arrival estimate for one sample. Ephemeral.
type ETAResult struct {
	EstimatedArrival   time.Time      `json:"estimated_arrival"`
	RemainingDistanceM float64        `json:"remaining_distance_m"`
	RemainingDuration  time.Duration  `json:"remaining_duration"`
	CurrentSpeedKMH    float64        `json:"current_speed_kmh"`
	AverageSpeedKMH    float64        `json:"average_speed_kmh"`
	ProgressPercent    float64        `json:"progress_percent"`
	Confidence         ConfidenceTier `json:"confidence"`
	Trend              SpeedTrend     `json:"trend"`
	DelayMinutes       *int           `json:"delay_minutes,omitempty"`
	TrafficAdjusted    bool           `json:"traffic_adjusted,omitempty"`
}

// GeofenceTarget is a named circular region that fires at most once.
type GeofenceTarget struct {
	Name    string    `json:"name"`
	Kind    string    `json:"kind"` // e.g. "pickup", "dropoff"
	Center  geo.Point `json:"center"`
	RadiusM float64   `json:"radius_m"`
}

// GeofenceEvent records a target firing. Emitted at most once per target
// per tracking session.
type GeofenceEvent struct {
	OrderID   string         `json:"order_id"`
	Target    GeofenceTarget `json:"target"`
	Time      time.Time      `json:"time"`
	DistanceM float64        `json:"distance_m"`
}

// DerivedState is the per-sample output handed to collaborators.
type DerivedState struct {
	OrderID  string          `json:"order_id"`
	Time     time.Time       `json:"time"`
	Position Position        `json:"position"`
	Progress RouteProgress   `json:"progress"`
	ETA      ETAResult       `json:"eta"`
	Events   []GeofenceEvent `json:"events,omitempty"`
}
