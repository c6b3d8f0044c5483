package monitor

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/posturewatch/internal/models"
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// Summarize computes the session statistics from the accumulated state and
// the session's total elapsed wall-clock time.
func Summarize(state *models.SessionState, total time.Duration) models.SessionSummary {
	bad := state.CumulativeBadPosture.Seconds()

	var pct float64
	if total > 0 {
		pct = math.Min(100, 100*bad/total.Seconds())
	}

	return models.SessionSummary{
		BadPostureSeconds:    bad,
		BadPosturePercentage: pct,
		AlertCount:           state.AlertCount,
		AvgNeckAngle:         mean(state.NeckSamples),
		AvgBackAngle:         mean(state.BackSamples),
		AvgShoulderDiff:      mean(state.ShoulderSamples),
	}
}
