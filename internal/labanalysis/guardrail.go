package labanalysis

import (
	"fmt"
	"strings"
)

// guardrailAnalytes is the subset of the table the guardrail reads values from.
var guardrailAnalytes = func() []compiledAnalyte {
	var subset []compiledAnalyte
	for _, ca := range defaultCompiled {
		switch ca.def.Key {
		case KeyASAT, KeyALAT, KeyGGT, KeyBilirubin, KeyTP:
			subset = append(subset, ca)
		}
	}
	return subset
}()

// guardrailHits lists the critical hepatic patterns present in the source text.
// Every line carrying a value counts, so a header or a repeated measurement
// cannot hide a critical reading.
func (c ScoringConfig) guardrailHits(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := splitLines(text)
	values := make(map[string][]float64, len(guardrailAnalytes))
	for _, ca := range guardrailAnalytes {
		for _, r := range locateAll(lines, ca) {
			values[ca.def.Key] = append(values[ca.def.Key], r.Value)
		}
	}

	var hits []string
	check := func(key string, crossed func(v float64) bool, op string, threshold float64) {
		for _, v := range values[key] {
			if crossed(v) {
				hits = append(hits, fmt.Sprintf("%s %s %s %s", key, formatNumber(v), op, formatNumber(threshold)))
				return
			}
		}
	}
	atLeast := func(t float64) func(float64) bool { return func(v float64) bool { return v >= t } }

	check(KeyASAT, atLeast(c.GuardrailASAT), ">=", c.GuardrailASAT)
	check(KeyALAT, atLeast(c.GuardrailALAT), ">=", c.GuardrailALAT)
	check(KeyGGT, atLeast(c.GuardrailGGT), ">=", c.GuardrailGGT)
	check(KeyBilirubin, atLeast(c.GuardrailBilirubin), ">=", c.GuardrailBilirubin)
	check(KeyTP, func(v float64) bool { return v <= c.GuardrailTPMax }, "<=", c.GuardrailTPMax)
	return hits
}

// applyGuardrail escalates result when the source text shows critical hepatic
// values, whatever the result claimed. Hits are recorded in raw.guardrail.
func (c ScoringConfig) applyGuardrail(text string, result *AnalysisResult) {
	hits := c.guardrailHits(text)
	if len(hits) == 0 {
		return
	}

	if len(hits) >= c.GuardrailCriticalHits {
		escalate(result, LevelCritical, c.GuardrailCriticalScore)
	} else {
		escalate(result, LevelHigh, c.GuardrailHighScore)
	}

	if result.Raw == nil {
		result.Raw = make(map[string]any)
	}
	result.Raw["guardrail"] = hits
}

// ApplyClinicalGuardrail returns result escalated per the default guardrail
// thresholds. Level and score are only ever raised.
func ApplyClinicalGuardrail(text string, result AnalysisResult) AnalysisResult {
	result.Raw = cloneRaw(result.Raw)
	DefaultScoring.applyGuardrail(text, &result)
	return result
}

// SanitizeAnomalies drops anomalies whose name does not appear in text,
// ignoring case. Empty text disables the check.
func SanitizeAnomalies(text string, anomalies []Anomaly) []Anomaly {
	if strings.TrimSpace(text) == "" {
		return anomalies
	}
	kept := make([]Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		if containsFold(text, a.Name) {
			kept = append(kept, a)
		}
	}
	return kept
}

func cloneRaw(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}
