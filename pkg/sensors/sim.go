package sensors

import (
	"math"
	"time"
)

// Simulated produces slowly varying plausible readings for bench runs
// without hardware.
type Simulated struct {
	Start time.Time
	Now   func() time.Time
}

// NewSimulated creates a Simulated sensor set.
func NewSimulated() *Simulated {
	return &Simulated{Start: time.Now(), Now: time.Now}
}

func (s *Simulated) phase(period time.Duration) float64 {
	elapsed := s.Now().Sub(s.Start)
	return 2 * math.Pi * float64(elapsed%period) / float64(period)
}

// ReadClimate implements Climate.
func (s *Simulated) ReadClimate() (float64, float64, error) {
	p := s.phase(10 * time.Minute)
	return 22 + 4*math.Sin(p), 55 - 10*math.Sin(p), nil
}

// ReadLux implements Light.
func (s *Simulated) ReadLux() (float64, error) {
	return 800 + 600*math.Sin(s.phase(time.Hour)), nil
}
