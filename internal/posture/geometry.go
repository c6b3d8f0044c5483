package posture

import (
	"math"

	"github.com/rewired-gh/posturewatch/internal/models"
)

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// AngleBetween returns the angle at vertex b formed by the rays b→a and b→c,
// in degrees within [0, 180].
func AngleBetween(a, b, c models.Keypoint) float64 {
	rad := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	angle := math.Abs(degrees(rad))
	if angle > 180 {
		angle = 360 - angle
	}
	return angle
}

// VerticalAngle returns the angle between segment a→b and the vertical axis,
// in degrees within [0, 180]. Image y grows downward, so a point b directly
// below a yields 0.
func VerticalAngle(a, b models.Keypoint) float64 {
	return math.Min(180, math.Abs(degrees(math.Atan2(b.X-a.X, b.Y-a.Y))))
}

func midpoint(a, b models.Keypoint) models.Keypoint {
	return models.Keypoint{
		X:          (a.X + b.X) / 2,
		Y:          (a.Y + b.Y) / 2,
		Visibility: math.Min(a.Visibility, b.Visibility),
	}
}
