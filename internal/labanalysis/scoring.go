package labanalysis

// ScoringConfig groups the clinical heuristics behind danger scoring. The
// defaults are unvalidated rules of thumb and should be tuned against
// clinical reference data.
type ScoringConfig struct {
	BaseScore int
	// Increments per anomaly severity.
	CriticalIncrement int
	HighIncrement     int
	MediumIncrement   int
	LowIncrement      int

	// Score floors for each level; LevelForScore is derived from them.
	MediumFloor   int
	HighFloor     int
	CriticalFloor int

	// HepaticEscalationCount anomalous hepatic markers force at least
	// HIGH / HepaticEscalationScore.
	HepaticEscalationCount int
	HepaticEscalationScore int

	// Guardrail thresholds on values read from the source text.
	GuardrailASAT      float64
	GuardrailALAT      float64
	GuardrailGGT       float64
	GuardrailBilirubin float64
	GuardrailTPMax     float64

	// One guardrail hit forces at least HIGH/GuardrailHighScore; more than
	// GuardrailCriticalHits-1 force CRITICAL/GuardrailCriticalScore.
	GuardrailHighScore     int
	GuardrailCriticalHits  int
	GuardrailCriticalScore int
}

// DefaultScoring holds the constants used by the analyzers.
var DefaultScoring = ScoringConfig{
	BaseScore:         10,
	CriticalIncrement: 35,
	HighIncrement:     25,
	MediumIncrement:   15,
	LowIncrement:      8,

	MediumFloor:   35,
	HighFloor:     65,
	CriticalFloor: 85,

	HepaticEscalationCount: 3,
	HepaticEscalationScore: 75,

	GuardrailASAT:      200,
	GuardrailALAT:      300,
	GuardrailGGT:       200,
	GuardrailBilirubin: 30,
	GuardrailTPMax:     60,

	GuardrailHighScore:     75,
	GuardrailCriticalHits:  3,
	GuardrailCriticalScore: 85,
}

// LevelForScore maps a 0-100 score to its danger level.
func (c ScoringConfig) LevelForScore(score int) Level {
	switch {
	case score >= c.CriticalFloor:
		return LevelCritical
	case score >= c.HighFloor:
		return LevelHigh
	case score >= c.MediumFloor:
		return LevelMedium
	default:
		return LevelLow
	}
}

// FloorForLevel is the smallest score that maps to level.
func (c ScoringConfig) FloorForLevel(level Level) int {
	switch level {
	case LevelCritical:
		return c.CriticalFloor
	case LevelHigh:
		return c.HighFloor
	case LevelMedium:
		return c.MediumFloor
	default:
		return 0
	}
}

func (c ScoringConfig) increment(severity Level) int {
	switch severity {
	case LevelCritical:
		return c.CriticalIncrement
	case LevelHigh:
		return c.HighIncrement
	case LevelMedium:
		return c.MediumIncrement
	default:
		return c.LowIncrement
	}
}

// LevelForScore maps a score with DefaultScoring.
func LevelForScore(score int) Level {
	return DefaultScoring.LevelForScore(score)
}

// escalate raises r to at least level and score. It never lowers anything.
func escalate(r *AnalysisResult, level Level, score int) {
	r.DangerLevel = MaxLevel(r.DangerLevel, level)
	if r.DangerScore < score {
		r.DangerScore = score
	}
}

// normalize clamps the score and makes level and score agree by raising
// whichever one lags behind.
func (c ScoringConfig) normalize(r *AnalysisResult) {
	r.DangerScore = clampScore(r.DangerScore)
	if r.DangerLevel < LevelLow || r.DangerLevel > LevelCritical {
		r.DangerLevel = LevelLow
	}
	r.DangerLevel = MaxLevel(r.DangerLevel, c.LevelForScore(r.DangerScore))
	if floor := c.FloorForLevel(r.DangerLevel); r.DangerScore < floor {
		r.DangerScore = floor
	}
}

func clampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
