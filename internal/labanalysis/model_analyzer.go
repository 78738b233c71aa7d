package labanalysis

import (
	"context"
	"errors"
	"log"
	"strings"
	"unicode/utf8"
)

// minEvidenceChars is the shortest text worth sending to a model.
const minEvidenceChars = 80

// ModelAnalyzer asks an external model for a structured analysis and holds
// the answer to the same guardrails as the rule-based path.
type ModelAnalyzer struct {
	gen     TextGenerator
	scoring ScoringConfig
}

// NewModelAnalyzer wraps gen. A nil gen yields an analyzer that always
// reports ErrModelNotConfigured.
func NewModelAnalyzer(gen TextGenerator, scoring ScoringConfig) *ModelAnalyzer {
	return &ModelAnalyzer{gen: gen, scoring: scoring}
}

// Provider returns the configured provider name, or ProviderRuleOnly.
func (m *ModelAnalyzer) Provider() string {
	if m == nil || m.gen == nil {
		return ProviderRuleOnly
	}
	return m.gen.Provider()
}

// HasEvidence reports whether text is long enough and mentions at least one
// lab marker.
func HasEvidence(text string) bool {
	trimmed := strings.TrimSpace(text)
	return utf8.RuneCountInString(trimmed) >= minEvidenceChars && mentionsAnyMarker(trimmed)
}

// Analyze calls the model once. When text lacks evidence it returns
// OCRRequiredResult together with an ErrInsufficientText error and the
// model is not called. Any other error comes with a zero result.
func (m *ModelAnalyzer) Analyze(ctx context.Context, text string, rc RequestContext) (AnalysisResult, error) {
	if m == nil || m.gen == nil {
		return AnalysisResult{}, &AnalysisError{
			Code:    ErrModelNotConfigured,
			Message: "no model provider configured",
		}
	}

	if !HasEvidence(text) {
		return OCRRequiredResult(), &AnalysisError{
			Code:     ErrInsufficientText,
			Message:  "extracted text is too short or has no lab marker",
			Provider: m.gen.Provider(),
		}
	}

	system, user := BuildPrompt(text, rc)
	gen, err := m.gen.Generate(ctx, system, user)
	if err != nil {
		var ae *AnalysisError
		if !errors.As(err, &ae) {
			ae = classifyModelError(m.gen.Provider(), err)
		}
		log.Printf("[model] %s call failed for demande %q: %v", m.gen.Provider(), rc.ID, ae)
		return AnalysisResult{}, ae
	}

	result, ok := parseModelResponse(gen.Text)
	if !ok {
		log.Printf("[model] %s returned unstructured output for demande %q", m.gen.Provider(), rc.ID)
		result = unstructuredResult(gen.Text, gen.ModelVersion)
	}
	if result.ModelVersion == "" {
		result.ModelVersion = versionOrProvider(gen.ModelVersion, m.gen.Provider())
	}

	dropped := len(result.Anomalies)
	result.Anomalies = SanitizeAnomalies(text, result.Anomalies)
	if dropped -= len(result.Anomalies); dropped > 0 {
		log.Printf("[model] dropped %d anomalies not found in source text (demande %q)", dropped, rc.ID)
		result.Raw["dropped_anomalies"] = dropped
	}

	m.scoring.applyGuardrail(text, &result)
	m.scoring.normalize(&result)

	if strings.TrimSpace(result.Resume) == "" {
		result.Resume = ValidationCaveat
	} else {
		result.Resume = withCaveat(result.Resume)
	}
	return result, nil
}

// withCaveat makes s end with the validation caveat exactly once.
func withCaveat(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ValidationCaveat) {
		return s
	}
	if s != "" && !strings.HasSuffix(s, ".") {
		s += "."
	}
	return strings.TrimSpace(s + " " + ValidationCaveat)
}

// narrative is s without the trailing caveat.
func narrative(s string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ValidationCaveat))
}
