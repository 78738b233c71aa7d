package labanalysis

// Deviation is the outcome of comparing one value against its reference bounds.
type Deviation struct {
	IsAnomaly bool
	Direction Direction
	Severity  Level
	Ratio     float64
}

// Classify compares value against optional low/high bounds. The ratio is the
// distance past the violated bound relative to that bound, with bounds below
// 1.0 treated as 1.0.
func Classify(value float64, low, high *float64) Deviation {
	switch {
	case low != nil && value < *low:
		ratio := (*low - value) / denominator(*low)
		return Deviation{IsAnomaly: true, Direction: DirectionLower, Severity: severityForRatio(ratio), Ratio: ratio}
	case high != nil && value > *high:
		ratio := (value - *high) / denominator(*high)
		return Deviation{IsAnomaly: true, Direction: DirectionHigher, Severity: severityForRatio(ratio), Ratio: ratio}
	default:
		return Deviation{}
	}
}

func denominator(bound float64) float64 {
	if bound < 1.0 {
		return 1.0
	}
	return bound
}

func severityForRatio(ratio float64) Level {
	switch {
	case ratio >= 1.0:
		return LevelCritical
	case ratio >= 0.5:
		return LevelHigh
	case ratio >= 0.2:
		return LevelMedium
	default:
		return LevelLow
	}
}
