package main

import (
	"fmt"
	"math"
)

// VolumePercent is the public volume unit used by commands and read-back (0..100).
type VolumePercent int

// VolumeScalar is the platform-native linear volume level (0.0..1.0).
type VolumeScalar float64

// ClampPercent clamps any integer into [0,100]. Out-of-range requests behave
// like a slider pushed to its end stop.
func ClampPercent(v int) VolumePercent {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return VolumePercent(v)
}

// Scalar converts a percent into the platform scalar.
func (p VolumePercent) Scalar() VolumeScalar {
	return VolumeScalar(float64(ClampPercent(int(p))) / 100.0)
}

// Clamp bounds s to [0,1].
func (s VolumeScalar) Clamp() VolumeScalar {
	if s < 0 || math.IsNaN(float64(s)) {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Percent converts a scalar read back from the device into a percent,
// rounding half up.
func (s VolumeScalar) Percent() VolumePercent {
	return ClampPercent(int(math.Floor(float64(s.Clamp())*100 + 0.5)))
}

// VolumeRange is the device decibel range. It is queried once per session.
type VolumeRange struct {
	MinDB  float64 `json:"min_db"`
	MaxDB  float64 `json:"max_db"`
	StepDB float64 `json:"step_db"`
}

// TolerancePercent is how far a read-back percent may drift from the
// requested one given the device quantization step. Never less than 1.
func (r VolumeRange) TolerancePercent() int {
	span := r.MaxDB - r.MinDB
	if span <= 0 || r.StepDB <= 0 {
		return 1
	}
	t := int(math.Ceil(r.StepDB / span * 100))
	if t < 1 {
		return 1
	}
	return t
}

func (r VolumeRange) String() string {
	return fmt.Sprintf("%.2f dB .. %.2f dB (step %.4f dB)", r.MinDB, r.MaxDB, r.StepDB)
}

// scalarToDB maps a scalar linearly onto the dB range.
func (r VolumeRange) scalarToDB(s VolumeScalar) float64 {
	return r.MinDB + float64(s.Clamp())*(r.MaxDB-r.MinDB)
}

// dbToScalar is the inverse of scalarToDB.
func (r VolumeRange) dbToScalar(db float64) VolumeScalar {
	span := r.MaxDB - r.MinDB
	if span <= 0 {
		return 0
	}
	return VolumeScalar((db - r.MinDB) / span).Clamp()
}
