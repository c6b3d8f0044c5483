// Package models defines the core domain entities: keypoints, posture
// measurements, session state, and the persisted session/alert records.
package models

import "math"

// Landmark names a pose keypoint. Values follow the lower-case MediaPipe
// pose landmark naming used in detector payloads.
type Landmark string

const (
	Nose          Landmark = "nose"
	LeftShoulder  Landmark = "left_shoulder"
	RightShoulder Landmark = "right_shoulder"
	LeftHip       Landmark = "left_hip"
	LeftKnee      Landmark = "left_knee"
)

// Keypoint is a detected landmark in normalized image coordinates.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

// Valid reports whether the coordinates are finite.
func (k Keypoint) Valid() bool {
	return !math.IsNaN(k.X) && !math.IsNaN(k.Y) && !math.IsInf(k.X, 0) && !math.IsInf(k.Y, 0)
}

// KeypointSet is one frame's detected landmarks.
type KeypointSet map[Landmark]Keypoint

// Lookup returns the named keypoint if it was detected with at least
// minVisibility and has finite coordinates.
func (s KeypointSet) Lookup(name Landmark, minVisibility float64) (Keypoint, bool) {
	k, ok := s[name]
	if !ok || !k.Valid() {
		return Keypoint{}, false
	}
	if minVisibility > 0 && k.Visibility < minVisibility {
		return Keypoint{}, false
	}
	return k, true
}

// Detection is the pose detector's output for a frame in which a body was found.
// Overlay optionally carries an annotated copy of the image for display.
type Detection struct {
	Keypoints KeypointSet
	Overlay   []byte
}
