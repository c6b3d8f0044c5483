package posture

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/posturewatch/internal/models"
)

type fakeDetector struct {
	detection *models.Detection
	err       error
	calls     int
}

func (f *fakeDetector) Detect(ctx context.Context, frame []byte) (*models.Detection, error) {
	f.calls++
	return f.detection, f.err
}

func TestEvaluate_InvalidFrame(t *testing.T) {
	det := &fakeDetector{}
	e := NewEvaluator(det, DefaultThresholds())

	for _, frame := range [][]byte{nil, {}} {
		res := e.Evaluate(context.Background(), frame)
		assert.Equal(t, StatusFailed, res.Status)
		assert.ErrorIs(t, res.Err, ErrInvalidFrame)
	}
	assert.Zero(t, det.calls, "detector must not be called for invalid input")
}

func TestEvaluate_DetectorError(t *testing.T) {
	boom := errors.New("inference backend down")
	e := NewEvaluator(&fakeDetector{err: boom}, DefaultThresholds())

	res := e.Evaluate(context.Background(), []byte("jpeg"))
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, boom)
}

func TestEvaluate_NotDetected(t *testing.T) {
	det := &fakeDetector{}
	e := NewEvaluator(det, DefaultThresholds())

	res := e.Evaluate(context.Background(), []byte("jpeg"))
	assert.Equal(t, StatusNotDetected, res.Status)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, det.calls)
}

func TestEvaluate_Analyzed(t *testing.T) {
	det := &fakeDetector{detection: &models.Detection{
		Keypoints: uprightKeypoints(),
		Overlay:   []byte("overlay"),
	}}
	e := NewEvaluator(det, DefaultThresholds())

	res := e.Evaluate(context.Background(), []byte("jpeg"))
	require.Equal(t, StatusAnalyzed, res.Status)
	assert.True(t, res.Measurement.IsGoodPosture)
	assert.True(t, res.Measurement.Neck.OK)
	assert.Equal(t, []byte("overlay"), res.Overlay)
	assert.Equal(t, 1, det.calls)
}

func TestEvaluate_OverlayDoesNotAffectVerdict(t *testing.T) {
	kps := uprightKeypoints()
	kps[models.RightShoulder] = kp(0.6, 0.5)

	with := NewEvaluator(&fakeDetector{detection: &models.Detection{Keypoints: kps, Overlay: []byte("x")}}, DefaultThresholds())
	without := NewEvaluator(&fakeDetector{detection: &models.Detection{Keypoints: kps}}, DefaultThresholds())

	a := with.Evaluate(context.Background(), []byte("jpeg"))
	b := without.Evaluate(context.Background(), []byte("jpeg"))
	assert.Equal(t, a.Measurement, b.Measurement)
}
