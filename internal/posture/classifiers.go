package posture

import (
	"math"

	"github.com/rewired-gh/posturewatch/internal/models"
)

// Values reported when a metric cannot be measured. The verdict is always
// passing in that case.
const (
	DefaultNeckAngle    = 0.0
	DefaultBackAngle    = 180.0
	DefaultShoulderDiff = 0.0
)

// Thresholds are the posture classification limits.
type Thresholds struct {
	NeckMaxAngle    float64 // neck passes when angle < NeckMaxAngle
	BackMinAngle    float64 // back passes when angle >= BackMinAngle
	ShoulderDiffMax float64 // shoulders pass when diff <= ShoulderDiffMax
	MinVisibility   float64 // keypoints below this visibility count as missing
}

// DefaultThresholds returns the standard ergonomic limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NeckMaxAngle:    15,
		BackMinAngle:    160,
		ShoulderDiffMax: 15,
	}
}

func notComputed(value float64) models.MetricResult {
	return models.MetricResult{Value: value, OK: true, Computed: false}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ClassifyNeck measures the nose's inclination from the shoulder midpoint.
func ClassifyNeck(kp models.KeypointSet, th Thresholds) models.MetricResult {
	nose, ok1 := kp.Lookup(models.Nose, th.MinVisibility)
	left, ok2 := kp.Lookup(models.LeftShoulder, th.MinVisibility)
	right, ok3 := kp.Lookup(models.RightShoulder, th.MinVisibility)
	if !ok1 || !ok2 || !ok3 {
		return notComputed(DefaultNeckAngle)
	}

	angle := VerticalAngle(nose, midpoint(left, right))
	if !finite(angle) {
		return notComputed(DefaultNeckAngle)
	}
	return models.MetricResult{Value: angle, OK: angle < th.NeckMaxAngle, Computed: true}
}

// ClassifyBack measures the shoulder-hip-knee angle on the left side.
func ClassifyBack(kp models.KeypointSet, th Thresholds) models.MetricResult {
	shoulder, ok1 := kp.Lookup(models.LeftShoulder, th.MinVisibility)
	hip, ok2 := kp.Lookup(models.LeftHip, th.MinVisibility)
	knee, ok3 := kp.Lookup(models.LeftKnee, th.MinVisibility)
	if !ok1 || !ok2 || !ok3 {
		return notComputed(DefaultBackAngle)
	}

	angle := AngleBetween(shoulder, hip, knee)
	if !finite(angle) {
		return notComputed(DefaultBackAngle)
	}
	return models.MetricResult{Value: angle, OK: angle >= th.BackMinAngle, Computed: true}
}

// ClassifyShoulders measures the vertical offset between shoulders as a
// percentage of frame height.
func ClassifyShoulders(kp models.KeypointSet, th Thresholds) models.MetricResult {
	left, ok1 := kp.Lookup(models.LeftShoulder, th.MinVisibility)
	right, ok2 := kp.Lookup(models.RightShoulder, th.MinVisibility)
	if !ok1 || !ok2 {
		return notComputed(DefaultShoulderDiff)
	}

	diff := math.Abs(left.Y-right.Y) * 100
	return models.MetricResult{Value: diff, OK: diff <= th.ShoulderDiffMax, Computed: true}
}

// Classify runs all three classifiers and aggregates their verdicts.
func Classify(kp models.KeypointSet, th Thresholds) models.Measurement {
	return models.NewMeasurement(
		ClassifyNeck(kp, th),
		ClassifyBack(kp, th),
		ClassifyShoulders(kp, th),
	)
}
