package usecases

import "time"

// EngineConfig holds the calibration constants of the inference engine. The
// defaults come from field tuning on urban delivery traffic; deployments on
// highway-heavy routes typically widen the corridor tolerances.
type EngineConfig struct {
	// History bounds.
	HistorySize   int
	SpeedRingSize int

	// Speed sample acceptance.
	MaxSpeedKMH    float64 // sanity ceiling; faster implied speeds are sensor noise
	NoiseFloorM    float64 // distance deltas below this are jitter, not movement
	AverageWindow  time.Duration
	TrendThreshold float64 // km/h delta between half-windows
	TrendMinCount  int

	// Effective-speed blending.
	BlendSamplesHigh int     // >= this many samples: 70/30 average/current
	BlendSamplesLow  int     // >= this many samples: 80/20 average/current
	DefaultSpeedKMH  float64 // conservative default below BlendSamplesLow

	// Route matching.
	CorridorToleranceM    float64 // progress matching
	StrictToleranceM      float64 // "are we on the planned path" check
	MinRouteConfidence    float64
	NearPerfectConfidence float64
	DistanceCacheSize     int

	// ETA.
	StoppedFloorKMH  float64
	AssumedCruiseKMH float64
	MinDuration      time.Duration
	MaxDuration      time.Duration
	MinSamplesForETA int
	AmpleSamples     int
	TrafficAware     bool
	ProviderTimeout  time.Duration
}

// DefaultEngineConfig returns the calibrated defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HistorySize:   200,
		SpeedRingSize: 100,

		MaxSpeedKMH:    220,
		NoiseFloorM:    1,
		AverageWindow:  10 * time.Minute,
		TrendThreshold: 8,
		TrendMinCount:  6,

		BlendSamplesHigh: 20,
		BlendSamplesLow:  10,
		DefaultSpeedKMH:  40,

		CorridorToleranceM:    500,
		StrictToleranceM:      150,
		MinRouteConfidence:    0.3,
		NearPerfectConfidence: 0.9,
		DistanceCacheSize:     512,

		StoppedFloorKMH:  2,
		AssumedCruiseKMH: 50,
		MinDuration:      time.Minute,
		MaxDuration:      8 * time.Hour,
		MinSamplesForETA: 2,
		AmpleSamples:     10,
		TrafficAware:     false,
		ProviderTimeout:  12 * time.Second,
	}
}
