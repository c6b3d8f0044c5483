// Package posture turns a camera frame into a posture verdict: it asks the
// pose detector for keypoints, runs the neck, back and shoulder classifiers
// and aggregates their results.
package posture

import (
	"context"
	"errors"
	"fmt"

	"github.com/rewired-gh/posturewatch/internal/models"
)

// ErrInvalidFrame is reported for nil or empty frame input.
var ErrInvalidFrame = errors.New("invalid frame")

// Detector maps an encoded image to pose keypoints. It returns a nil
// Detection and a nil error when no body is found. Implementations are
// long-lived and are called at most once per frame.
type Detector interface {
	Detect(ctx context.Context, frame []byte) (*models.Detection, error)
}

// Status distinguishes the three per-frame outcomes.
type Status int

const (
	StatusFailed Status = iota
	StatusNotDetected
	StatusAnalyzed
)

func (s Status) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusNotDetected:
		return "not_detected"
	case StatusAnalyzed:
		return "analyzed"
	default:
		return "unknown"
	}
}

// FrameResult is the outcome of evaluating one frame. Measurement is only
// meaningful when Status is StatusAnalyzed; Err only when StatusFailed.
type FrameResult struct {
	Status      Status
	Measurement models.Measurement
	Overlay     []byte
	Err         error
}

// Evaluator runs the per-frame classification pipeline.
type Evaluator struct {
	detector   Detector
	thresholds Thresholds
}

// NewEvaluator creates an evaluator using the given detector and thresholds.
func NewEvaluator(detector Detector, thresholds Thresholds) *Evaluator {
	return &Evaluator{
		detector:   detector,
		thresholds: thresholds,
	}
}

// Thresholds returns the evaluator's classification limits.
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate classifies a single frame.
func (e *Evaluator) Evaluate(ctx context.Context, frame []byte) FrameResult {
	if len(frame) == 0 {
		return FrameResult{Status: StatusFailed, Err: ErrInvalidFrame}
	}

	det, err := e.detector.Detect(ctx, frame)
	if err != nil {
		return FrameResult{Status: StatusFailed, Err: fmt.Errorf("pose detection failed: %w", err)}
	}
	if det == nil || len(det.Keypoints) == 0 {
		return FrameResult{Status: StatusNotDetected}
	}

	return FrameResult{
		Status:      StatusAnalyzed,
		Measurement: Classify(det.Keypoints, e.thresholds),
		Overlay:     det.Overlay,
	}
}
