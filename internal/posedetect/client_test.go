package posedetect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/posturewatch/internal/models"
	"github.com/rewired-gh/posturewatch/internal/posture"
)

var _ posture.Detector = (*Client)(nil)

func testConfig() ClientConfig {
	return ClientConfig{Timeout: 2 * time.Second, MaxRetries: 2, RetryDelayBase: 5 * time.Millisecond}
}

func TestDetect_Landmarks(t *testing.T) {
	frame := []byte{0xff, 0xd8, 0xff, 0xe0}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/pose", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req poseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, base64.StdEncoding.EncodeToString(frame), req.Image)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"detected": true,
			"landmarks": map[string]any{
				"nose":           map[string]float64{"x": 0.5, "y": 0.1, "z": -0.2, "visibility": 0.99, "presence": 0.98},
				"left_shoulder":  map[string]float64{"x": 0.4, "y": 0.3, "visibility": 0.9},
				"right_shoulder": map[string]float64{"x": 0.6, "y": 0.3, "visibility": 0.4},
			},
			"overlay": base64.StdEncoding.EncodeToString([]byte("png")),
		})
	}))
	defer srv.Close()

	det, err := NewClient(srv.URL, testConfig()).Detect(context.Background(), frame)
	require.NoError(t, err)
	require.NotNil(t, det)

	assert.Len(t, det.Keypoints, 3)
	assert.Equal(t, models.Keypoint{X: 0.5, Y: 0.1, Visibility: 0.99}, det.Keypoints[models.Nose])
	assert.Equal(t, 0.4, det.Keypoints[models.RightShoulder].Visibility)
	assert.Equal(t, []byte("png"), det.Overlay)
}

func TestDetect_NoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"detected": false, "landmarks": {}}`))
	}))
	defer srv.Close()

	det, err := NewClient(srv.URL, testConfig()).Detect(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Nil(t, det)
}

func TestDetect_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"detected": true, "landmarks": {"nose": {"x": 0.5, "y": 0.2, "visibility": 1}}}`))
	}))
	defer srv.Close()

	det, err := NewClient(srv.URL, testConfig()).Detect(context.Background(), []byte("img"))
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDetect_ClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "image could not be decoded"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, testConfig()).Detect(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image could not be decoded")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "client errors are not retried")
}

func TestDetect_EvaluatorIntegration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"detected": true, "landmarks": {
			"nose": {"x": 0.5, "y": 0.0, "visibility": 1},
			"left_shoulder": {"x": 0.4, "y": 0.3, "visibility": 1},
			"right_shoulder": {"x": 0.6, "y": 0.3, "visibility": 1},
			"left_hip": {"x": 0.4, "y": 0.6, "visibility": 1},
			"left_knee": {"x": 0.4, "y": 0.9, "visibility": 1}
		}}`))
	}))
	defer srv.Close()

	ev := posture.NewEvaluator(NewClient(srv.URL, testConfig()), posture.DefaultThresholds())
	res := ev.Evaluate(context.Background(), []byte("img"))
	require.Equal(t, posture.StatusAnalyzed, res.Status)
	assert.True(t, res.Measurement.IsGoodPosture)
	assert.Empty(t, res.Measurement.Problems)
}

func TestHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, ClientConfig{Timeout: time.Second})
	assert.NoError(t, c.Health(context.Background()))
	healthy.Store(false)
	assert.Error(t, c.Health(context.Background()))
}
