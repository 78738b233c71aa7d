// Package labanalysis detects anomalies in lab-result documents and scores how
// dangerous the overall result is.
package labanalysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Level is the ordinal scale shared by anomaly severities and danger levels.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

var levelNames = [...]string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

func (l Level) String() string {
	if l < LevelLow || l > LevelCritical {
		return levelNames[LevelLow]
	}
	return levelNames[l]
}

// ParseLevel converts a level name to a Level. Matching is case-insensitive.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW", "FAIBLE":
		return LevelLow, true
	case "MEDIUM", "MODERATE", "MOYEN":
		return LevelMedium, true
	case "HIGH", "ELEVE", "ÉLEVÉ":
		return LevelHigh, true
	case "CRITICAL", "CRITIQUE":
		return LevelCritical, true
	default:
		return LevelLow, false
	}
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseLevel(s)
	if !ok {
		return fmt.Errorf("unknown level %q", s)
	}
	*l = parsed
	return nil
}

// MaxLevel returns the higher of two levels.
func MaxLevel(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}

// Direction tells on which side of the reference range a value fell.
type Direction string

const (
	DirectionHigher Direction = "HIGHER_THAN_REFERENCE"
	DirectionLower  Direction = "LOWER_THAN_REFERENCE"
)

// Anomaly is one out-of-range analyte in an analysis result.
type Anomaly struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Reference string    `json:"reference"`
	Severity  Level     `json:"severity"`
	Direction Direction `json:"direction"`
}

// AnalysisResult is the structured outcome of analyzing one document.
type AnalysisResult struct {
	Anomalies    []Anomaly      `json:"anomalies"`
	DangerScore  int            `json:"danger_score"`
	DangerLevel  Level          `json:"danger_level"`
	Resume       string         `json:"resume"`
	ModelVersion string         `json:"model_version"`
	Raw          map[string]any `json:"raw,omitempty"`
}

// AnomalyNames returns the distinct anomaly names in order of first appearance.
func (r *AnalysisResult) AnomalyNames() []string {
	seen := make(map[string]bool, len(r.Anomalies))
	var names []string
	for _, a := range r.Anomalies {
		key := strings.ToLower(a.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, a.Name)
	}
	return names
}

// RequestContext describes the demande a document belongs to. It is display
// data for prompts and summaries and never influences scoring.
type RequestContext struct {
	ID              string `json:"id"`
	TypeBilan       string `json:"type_bilan"`
	PatientName     string `json:"patient_name"`
	PatientAge      string `json:"patient_age"`
	PatientSex      string `json:"patient_sex"`
	DoctorName      string `json:"doctor_name"`
	DoctorSpecialty string `json:"doctor_specialty"`
}
