package labanalysis

import "unicode/utf8"

// minModelNarrativeChars is the shortest model narrative worth keeping.
const minModelNarrativeChars = 20

// Reconcile merges a model result with the rule-based result for the same
// document. It is a pure function: neither argument is modified.
//
// Score and level are the maxima of both. Rule anomalies win when there are
// any. The model narrative is kept only when it is substantial and, if the
// rules found anomalies, names at least one of them.
func Reconcile(model AnalysisResult, rule *AnalysisResult) AnalysisResult {
	if rule == nil {
		return model
	}

	merged := AnalysisResult{
		DangerScore:  max(model.DangerScore, rule.DangerScore),
		DangerLevel:  MaxLevel(model.DangerLevel, rule.DangerLevel),
		ModelVersion: model.ModelVersion + hybridSuffix,
		Raw:          cloneRaw(model.Raw),
	}

	if len(rule.Anomalies) > 0 {
		merged.Anomalies = append([]Anomaly(nil), rule.Anomalies...)
	} else {
		merged.Anomalies = append([]Anomaly{}, model.Anomalies...)
	}

	merged.Resume = rule.Resume
	if modelNarrativeGrounded(model.Resume, rule) {
		merged.Resume = model.Resume
	}
	return merged
}

func modelNarrativeGrounded(resume string, rule *AnalysisResult) bool {
	text := narrative(resume)
	if utf8.RuneCountInString(text) < minModelNarrativeChars {
		return false
	}
	if len(rule.Anomalies) == 0 {
		return true
	}
	for _, name := range rule.AnomalyNames() {
		if containsFolded(text, name) {
			return true
		}
	}
	return false
}
