package models

// Problem labels, in the order they are reported.
const (
	ProblemNeck      = "head tilted forward"
	ProblemBack      = "back hunched"
	ProblemShoulders = "shoulders misaligned"
)

// Alert types used when persisting alerts.
const (
	AlertTypeNeck      = "neck"
	AlertTypeBack      = "back"
	AlertTypeShoulders = "shoulders"
	AlertTypeMultiple  = "multiple"
)

// MetricResult is one classifier's output. Computed is false when the
// metric could not be measured; OK is then true (fail-open) and Value holds
// the classifier's default.
type MetricResult struct {
	Value    float64 `json:"value"`
	OK       bool    `json:"ok"`
	Computed bool    `json:"computed"`
}

// Measurement is the per-frame posture verdict.
type Measurement struct {
	Neck          MetricResult `json:"neck"`
	Back          MetricResult `json:"back"`
	Shoulders     MetricResult `json:"shoulders"`
	IsGoodPosture bool         `json:"is_good_posture"`
	Problems      []string     `json:"problems"`
}

// NewMeasurement aggregates the three classifier results.
func NewMeasurement(neck, back, shoulders MetricResult) Measurement {
	m := Measurement{
		Neck:          neck,
		Back:          back,
		Shoulders:     shoulders,
		IsGoodPosture: neck.OK && back.OK && shoulders.OK,
		Problems:      []string{},
	}
	if !neck.OK {
		m.Problems = append(m.Problems, ProblemNeck)
	}
	if !back.OK {
		m.Problems = append(m.Problems, ProblemBack)
	}
	if !shoulders.OK {
		m.Problems = append(m.Problems, ProblemShoulders)
	}
	return m
}

// AlertType classifies the failing checks: "multiple" when more than one
// fails, otherwise the single failing check. A passing measurement has no
// alert type.
func (m Measurement) AlertType() string {
	var failing []string
	if !m.Neck.OK {
		failing = append(failing, AlertTypeNeck)
	}
	if !m.Back.OK {
		failing = append(failing, AlertTypeBack)
	}
	if !m.Shoulders.OK {
		failing = append(failing, AlertTypeShoulders)
	}
	switch len(failing) {
	case 0:
		return ""
	case 1:
		return failing[0]
	default:
		return AlertTypeMultiple
	}
}
