package usecases

import (
	"time"

	"github.com/heinnell/ordertrack/internal/core/domain"
	"github.com/heinnell/ordertrack/internal/pkg/geo"
)

// SpeedEstimator converts consecutive position fixes into a filtered speed
// signal. Samples implying impossible speeds or sub-noise movement are
// discarded; the retained ring parallels the travel history.
//
// Not safe for concurrent use; a tracking session confines it to one order.
type SpeedEstimator struct {
	cfg     EngineConfig
	samples *domain.Ring[domain.SpeedSample]
	last    *domain.Position
}

// NewSpeedEstimator creates an estimator with an empty sample ring.
func NewSpeedEstimator(cfg EngineConfig) *SpeedEstimator {
	return &SpeedEstimator{
		cfg:     cfg,
		samples: domain.NewRing[domain.SpeedSample](cfg.SpeedRingSize),
	}
}

// Observe ingests one position fix. It returns true when a speed sample was
// recorded and false when the fix was retained only as the new reference
// point (first fix) or rejected as noise.
func (e *SpeedEstimator) Observe(p domain.Position) bool {
	if e.last == nil {
		cp := p
		e.last = &cp
		return false
	}

	dt := p.Time.Sub(e.last.Time)
	if dt <= 0 {
		return false
	}

	dist := geo.Distance(e.last.Location, p.Location)
	if dist < e.cfg.NoiseFloorM {
		// Stationary jitter. Move the reference so a later fix measures
		// against the freshest timestamp.
		cp := p
		e.last = &cp
		return false
	}

	speed := dist / 1000 / dt.Hours()
	if speed < 0 || speed > e.cfg.MaxSpeedKMH {
		return false
	}

	e.samples.Push(domain.SpeedSample{SpeedKMH: speed, Time: p.Time, DistanceM: dist})
	cp := p
	e.last = &cp
	return true
}

// CurrentSpeedKMH returns the most recent valid speed, or 0 without data.
func (e *SpeedEstimator) CurrentSpeedKMH() float64 {
	s, ok := e.samples.Newest()
	if !ok {
		return 0
	}
	return s.SpeedKMH
}

// AverageSpeedKMH returns the mean speed over samples newer than now-window,
// or 0 when none qualify.
func (e *SpeedEstimator) AverageSpeedKMH(now time.Time, window time.Duration) float64 {
	cutoff := now.Add(-window)
	var sum float64
	var n int
	for i := 0; i < e.samples.Len(); i++ {
		s := e.samples.At(i)
		if s.Time.After(cutoff) {
			sum += s.SpeedKMH
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Trend compares the mean of the most recent half of the retained window
// against the prior half. Requires TrendMinCount samples, else stable.
func (e *SpeedEstimator) Trend(now time.Time) domain.SpeedTrend {
	cutoff := now.Add(-e.cfg.AverageWindow)
	var windowed []domain.SpeedSample
	for i := 0; i < e.samples.Len(); i++ {
		s := e.samples.At(i)
		if s.Time.After(cutoff) {
			windowed = append(windowed, s)
		}
	}
	if len(windowed) < e.cfg.TrendMinCount {
		return domain.TrendStable
	}

	mid := len(windowed) / 2
	older := windowed[:mid]
	recent := windowed[mid:]

	delta := mean(recent) - mean(older)
	switch {
	case delta > e.cfg.TrendThreshold:
		return domain.TrendIncreasing
	case delta < -e.cfg.TrendThreshold:
		return domain.TrendDecreasing
	default:
		return domain.TrendStable
	}
}

// EffectiveSpeedKMH blends average and current speed, trusting the average
// more as the sample count grows. With few samples the estimator has no
// basis for trust and falls back to a conservative default.
func (e *SpeedEstimator) EffectiveSpeedKMH(now time.Time) float64 {
	n := e.samples.Len()
	if n < e.cfg.BlendSamplesLow {
		return e.cfg.DefaultSpeedKMH
	}

	avg := e.AverageSpeedKMH(now, e.cfg.AverageWindow)
	cur := e.CurrentSpeedKMH()
	if avg == 0 {
		return cur
	}

	if n >= e.cfg.BlendSamplesHigh {
		return 0.7*avg + 0.3*cur
	}
	return 0.8*avg + 0.2*cur
}

// SampleCount returns the number of retained speed samples.
func (e *SpeedEstimator) SampleCount() int { return e.samples.Len() }

func mean(samples []domain.SpeedSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.SpeedKMH
	}
	return sum / float64(len(samples))
}
