package labanalysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// modelPayload is the loosely typed shape models answer with. Numbers
// sometimes arrive as strings and levels in lower case.
type modelPayload struct {
	Anomalies    []modelAnomaly `json:"anomalies"`
	DangerScore  any            `json:"danger_score"`
	DangerLevel  string         `json:"danger_level"`
	Resume       string         `json:"resume"`
	Summary      string         `json:"summary"`
	ModelVersion string         `json:"model_version"`
}

type modelAnomaly struct {
	Name      string `json:"name"`
	Value     any    `json:"value"`
	Reference any    `json:"reference"`
	Severity  string `json:"severity"`
	Direction string `json:"direction"`
}

// extractJSON decodes the first JSON object in text into v: the whole text,
// then a fenced block, then the first balanced {...} span.
func extractJSON(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("empty response")
	}

	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	if fenced := stripCodeFence(trimmed); fenced != trimmed {
		if err := json.Unmarshal([]byte(fenced), v); err == nil {
			return nil
		}
	}

	start := -1
	end := -1
	braceCount := 0
	inString := false
	escaped := false

	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if start == -1 {
				start = i
			}
			braceCount++
		case '}':
			if start == -1 {
				continue
			}
			braceCount--
			if braceCount == 0 {
				end = i + 1
			}
		}
		if end != -1 {
			break
		}
	}

	if start == -1 || end == -1 {
		return fmt.Errorf("no JSON object found in response")
	}

	return json.Unmarshal([]byte(trimmed[start:end]), v)
}

func stripCodeFence(text string) string {
	open := strings.Index(text, "```")
	if open == -1 {
		return text
	}
	rest := text[open+3:]
	rest = strings.TrimPrefix(rest, "json")
	rest = strings.TrimPrefix(rest, "JSON")
	if close := strings.Index(rest, "```"); close != -1 {
		rest = rest[:close]
	}
	return strings.TrimSpace(rest)
}

// parseModelResponse turns raw model output into a result. ok is false when
// no JSON object could be decoded.
func parseModelResponse(raw string) (AnalysisResult, bool) {
	var p modelPayload
	if err := extractJSON(raw, &p); err != nil {
		return AnalysisResult{}, false
	}

	result := AnalysisResult{
		Anomalies:    make([]Anomaly, 0, len(p.Anomalies)),
		ModelVersion: strings.TrimSpace(p.ModelVersion),
		Resume:       strings.TrimSpace(p.Resume),
	}
	if result.Resume == "" {
		result.Resume = strings.TrimSpace(p.Summary)
	}

	for _, a := range p.Anomalies {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		severity, _ := ParseLevel(a.Severity)
		result.Anomalies = append(result.Anomalies, Anomaly{
			Name:      name,
			Value:     looseString(a.Value),
			Reference: looseString(a.Reference),
			Severity:  severity,
			Direction: parseDirection(a.Direction),
		})
	}

	score, hasScore := looseInt(p.DangerScore)
	level, hasLevel := ParseLevel(p.DangerLevel)
	switch {
	case hasScore:
		result.DangerScore = clampScore(score)
		result.DangerLevel = LevelForScore(result.DangerScore)
		if hasLevel {
			result.DangerLevel = MaxLevel(result.DangerLevel, level)
		}
	case hasLevel:
		result.DangerLevel = level
		result.DangerScore = DefaultScoring.FloorForLevel(level)
	default:
		result.DangerLevel = LevelLow
		result.DangerScore = 20
	}

	result.Raw = map[string]any{"text": raw}
	return result, true
}

func parseDirection(s string) Direction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(DirectionLower), "LOW", "LOWER", "BELOW", "BAS":
		return DirectionLower
	default:
		return DirectionHigher
	}
}

func looseString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return formatNumber(t)
	default:
		return fmt.Sprint(t)
	}
}

func looseInt(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	// Keep the conversion to int well defined; callers clamp to [0,100].
	return int(math.Round(math.Max(-1000, math.Min(1000, f)))), true
}
