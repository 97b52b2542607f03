// Package sensors reads the environmental sensors into the shared snapshot.
package sensors

import (
	"errors"
	"math"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/sensorgw/pkg/state"
)

// ErrAbsent is returned by sensors that aren't connected.
var ErrAbsent = errors.New("sensor absent")

// Accepted ranges.
const (
	MinTemperature = -40.0
	MaxTemperature = 85.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
	MaxLux         = 100000.0
)

// Climate reads temperature in °C and relative humidity in %.
type Climate interface {
	ReadClimate() (celsius, humidity float64, err error)
}

// Light reads illuminance in lux.
type Light interface {
	ReadLux() (float64, error)
}

// ValidTemperature reports whether t is a plausible reading.
func ValidTemperature(t float64) bool {
	return !math.IsNaN(t) && t >= MinTemperature && t <= MaxTemperature
}

// ValidHumidity reports whether h is a plausible reading.
func ValidHumidity(h float64) bool {
	return !math.IsNaN(h) && h >= MinHumidity && h <= MaxHumidity
}

// ValidLux reports whether l is a plausible reading. Zero is how the
// light sensor reports a failed conversion.
func ValidLux(l float64) bool {
	return !math.IsNaN(l) && l > 0 && l < MaxLux
}

// Updated tells which fields a pass changed.
type Updated struct {
	Temperature bool
	Humidity    bool
	Illuminance bool
}

// Sampler runs one sampling pass. Nil sensors are treated as absent.
type Sampler struct {
	Climate Climate
	Light   Light
	Now     func() time.Time
}

// Sample reads every sensor and writes the valid values into snap.
// Invalid or missing readings leave the previous value. The caller must
// hold the store lock.
func (s *Sampler) Sample(snap *state.Snapshot) (u Updated) {
	if s.Climate != nil {
		t, h, err := s.Climate.ReadClimate()
		if err != nil {
			glog.V(2).Infof("climate sensor: %v", err)
		} else {
			if u.Temperature = ValidTemperature(t); u.Temperature {
				snap.Temperature = int(t)
			}
			if u.Humidity = ValidHumidity(h); u.Humidity {
				snap.Humidity = h
			}
		}
	}
	if s.Light != nil {
		l, err := s.Light.ReadLux()
		if err != nil {
			glog.V(2).Infof("light sensor: %v", err)
		} else if u.Illuminance = ValidLux(l); u.Illuminance {
			snap.Illuminance = int(l)
		}
	}
	if s.Now != nil {
		snap.LastEnvUpdate = s.Now()
	} else {
		snap.LastEnvUpdate = time.Now()
	}
	return
}

// Log prints the snapshot in the telemetry line format.
func Log(snap state.Snapshot) {
	glog.V(1).Infof("SENSOR_DATA temp=%d humidity=%.1f lux=%d distance=%.2f",
		snap.Temperature, snap.Humidity, snap.Illuminance, snap.Distance)
}
