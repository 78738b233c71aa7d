package labanalysis

import (
	"fmt"
	"regexp"
	"strings"
)

const maxSummaryNames = 6

// RuleBasedAnalyzer scores a document deterministically from the analyte table.
// It holds only read-only data and is safe for concurrent use.
type RuleBasedAnalyzer struct {
	analytes   []compiledAnalyte
	keyMarkers []keyMarker
	scoring    ScoringConfig
}

type keyMarker struct {
	key      string
	aliases  []string // folded
	acronyms []*regexp.Regexp
}

// NewRuleBasedAnalyzer builds an analyzer over defs. A nil defs uses
// DefaultAnalytes.
func NewRuleBasedAnalyzer(scoring ScoringConfig, defs []AnalyteDefinition) *RuleBasedAnalyzer {
	compiled := defaultCompiled
	if defs != nil {
		compiled = compileAnalytes(defs)
	}

	a := &RuleBasedAnalyzer{analytes: compiled, scoring: scoring}
	for _, ca := range compiled {
		if !isKeyMarker(ca.def.Key) {
			continue
		}
		km := keyMarker{key: ca.def.Key}
		for _, alias := range ca.def.Aliases {
			if isAcronym(alias) {
				km.acronyms = append(km.acronyms, aliasPattern(alias))
				continue
			}
			km.aliases = append(km.aliases, foldText(alias))
		}
		a.keyMarkers = append(a.keyMarkers, km)
	}
	return a
}

func isKeyMarker(key string) bool {
	for _, k := range keyMarkerKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Analyze returns nil when text holds nothing the table recognizes.
func (a *RuleBasedAnalyzer) Analyze(text string, rc RequestContext) *AnalysisResult {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	readings := locateCompiled(text, a.analytes)
	unreadMarker := a.keyMarkerUnread(text, readings)
	if len(readings) == 0 && !unreadMarker {
		return nil
	}

	result := &AnalysisResult{
		Anomalies:    []Anomaly{},
		DangerScore:  a.scoring.BaseScore,
		ModelVersion: VersionRule,
	}

	hepatic := 0
	for _, ca := range a.analytes {
		r, ok := readings[ca.def.Key]
		if !ok {
			continue
		}
		dev := Classify(r.Value, r.Low, r.High)
		if !dev.IsAnomaly {
			continue
		}
		result.Anomalies = append(result.Anomalies, Anomaly{
			Name:      r.Alias,
			Value:     formatValue(r),
			Reference: r.Reference,
			Severity:  dev.Severity,
			Direction: dev.Direction,
		})
		result.DangerScore += a.scoring.increment(dev.Severity)
		if isHepatic(ca.def.Key) {
			hepatic++
		}
	}

	result.DangerScore = clampScore(result.DangerScore)
	result.DangerLevel = a.scoring.LevelForScore(result.DangerScore)

	if hepatic >= a.scoring.HepaticEscalationCount {
		escalate(result, LevelHigh, a.scoring.HepaticEscalationScore)
	}

	insufficient := len(result.Anomalies) == 0 && unreadMarker
	if insufficient {
		escalate(result, LevelMedium, a.scoring.MediumFloor)
	}

	a.scoring.applyGuardrail(text, result)
	a.scoring.normalize(result)

	switch {
	case insufficient:
		result.Resume = insufficientSummary(rc, result.DangerLevel)
	case len(result.Anomalies) == 0:
		result.Resume = normalSummary(rc, result.DangerLevel)
	default:
		result.Resume = anomalySummary(rc, result)
	}
	return result
}

// keyMarkerUnread reports whether a key marker is named in text without a
// reading having been located for it.
func (a *RuleBasedAnalyzer) keyMarkerUnread(text string, readings map[string]Reading) bool {
	folded := foldText(text)
	for _, km := range a.keyMarkers {
		if _, ok := readings[km.key]; ok {
			continue
		}
		for _, alias := range km.aliases {
			if containsWord(folded, alias) {
				return true
			}
		}
		for _, re := range km.acronyms {
			if re.MatchString(text) {
				return true
			}
		}
	}
	return false
}

func isHepatic(key string) bool {
	for _, k := range hepaticKeys {
		if k == key {
			return true
		}
	}
	return false
}

func formatValue(r Reading) string {
	v := formatNumber(r.Value)
	if r.Unit != "" {
		v += " " + r.Unit
	}
	return v
}

func contextPrefix(rc RequestContext) string {
	var parts []string
	if rc.TypeBilan != "" {
		parts = append(parts, "Bilan "+rc.TypeBilan)
	}
	if rc.ID != "" {
		parts = append(parts, "demande #"+rc.ID)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ") + ": "
}

func anomalySummary(rc RequestContext, r *AnalysisResult) string {
	names := r.AnomalyNames()
	shown := names
	if len(shown) > maxSummaryNames {
		shown = shown[:maxSummaryNames]
	}
	list := strings.Join(shown, ", ")
	if extra := len(names) - len(shown); extra > 0 {
		list += fmt.Sprintf(" and %d more", extra)
	}

	noun := "anomalies"
	if len(r.Anomalies) == 1 {
		noun = "anomaly"
	}
	return fmt.Sprintf("%s%d %s detected: %s. Danger level: %s. %s",
		contextPrefix(rc), len(r.Anomalies), noun, list, r.DangerLevel, ValidationCaveat)
}

func normalSummary(rc RequestContext, level Level) string {
	return fmt.Sprintf("%sNo anomaly detected among the recognized analytes. Danger level: %s. %s",
		contextPrefix(rc), level, ValidationCaveat)
}

func insufficientSummary(rc RequestContext, level Level) string {
	return fmt.Sprintf("%sInsufficient reference data: key markers are mentioned but their values could not be read reliably. Danger level: %s. %s",
		contextPrefix(rc), level, ValidationCaveat)
}
