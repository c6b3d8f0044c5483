package monitor

import (
	"github.com/rewired-gh/posturewatch/internal/models"
)

// pushHistory appends a good/bad flag to the session's ring buffer,
// overwriting the oldest entry once size flags are stored.
func pushHistory(state *models.SessionState, good bool, size int) {
	if len(state.History) < size {
		state.History = append(state.History, good)
	} else {
		state.History[state.HistoryIndex] = good
	}
	state.HistoryIndex = (state.HistoryIndex + 1) % size
}

// RecentHistory returns the buffered flags, oldest first.
func RecentHistory(state *models.SessionState) []bool {
	out := make([]bool, 0, len(state.History))
	if len(state.History) == 0 {
		return out
	}
	if state.HistoryIndex >= len(state.History) {
		return append(out, state.History...)
	}
	out = append(out, state.History[state.HistoryIndex:]...)
	return append(out, state.History[:state.HistoryIndex]...)
}

// GoodRatio returns the fraction of good frames in the recent history,
// or 1 when nothing has been recorded yet.
func GoodRatio(state *models.SessionState) float64 {
	if len(state.History) == 0 {
		return 1
	}
	good := 0
	for _, g := range state.History {
		if g {
			good++
		}
	}
	return float64(good) / float64(len(state.History))
}
