package labanalysis

import "testing"

func TestApplyClinicalGuardrail(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		in        AnalysisResult
		wantLevel Level
		wantScore int
	}{
		{"ASAT over threshold", "ASAT 250 UI/L", AnalysisResult{DangerLevel: LevelLow, DangerScore: 10}, LevelHigh, 75},
		{"TP under threshold", "TP 55 %", AnalysisResult{DangerLevel: LevelLow, DangerScore: 10}, LevelHigh, 75},
		{"bilirubin at threshold", "Bilirubine totale 30 mg/L", AnalysisResult{DangerLevel: LevelMedium, DangerScore: 40}, LevelHigh, 75},
		{"three hits", "ASAT 250\nALAT 400\nGGT 300", AnalysisResult{DangerLevel: LevelLow, DangerScore: 20}, LevelCritical, 85},
		{"below every threshold", "ASAT 150\nALAT 250\nTP 80 %", AnalysisResult{DangerLevel: LevelLow, DangerScore: 20}, LevelLow, 20},
		{"never lowers", "ASAT 250", AnalysisResult{DangerLevel: LevelCritical, DangerScore: 95}, LevelCritical, 95},
		{"header before value", "Transaminases ASAT / ALAT\nASAT : 250 UI/L (10 - 35)", AnalysisResult{DangerLevel: LevelLow, DangerScore: 10}, LevelHigh, 75},
		{"later measurement crosses", "ASAT 30 UI/L\nContrôle J+2\nASAT 260 UI/L", AnalysisResult{DangerLevel: LevelLow, DangerScore: 10}, LevelHigh, 75},
		{"lowercase tp is not prothrombin", "voir tp 12", AnalysisResult{DangerLevel: LevelLow, DangerScore: 10}, LevelLow, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplyClinicalGuardrail(tc.text, tc.in)
			if got.DangerLevel != tc.wantLevel || got.DangerScore != tc.wantScore {
				t.Fatalf("got %s/%d, want %s/%d", got.DangerLevel, got.DangerScore, tc.wantLevel, tc.wantScore)
			}
		})
	}
}

func TestApplyClinicalGuardrail_DoesNotMutateInput(t *testing.T) {
	in := AnalysisResult{DangerLevel: LevelLow, DangerScore: 10, Raw: map[string]any{"text": "x"}}

	out := ApplyClinicalGuardrail("ASAT 300", in)

	if _, ok := in.Raw["guardrail"]; ok {
		t.Error("input raw map was modified")
	}
	if _, ok := out.Raw["guardrail"]; !ok {
		t.Error("output raw map lacks guardrail hits")
	}
	if in.DangerLevel != LevelLow {
		t.Error("input level was modified")
	}
}

func TestSanitizeAnomalies(t *testing.T) {
	text := "ASAT 250 UI/L\nGlycémie 1,6 g/L"
	anomalies := []Anomaly{
		{Name: "ASAT"},
		{Name: "asat"},
		{Name: "Troponine"},
		{Name: "Glycémie"},
		{Name: "  "},
	}

	got := SanitizeAnomalies(text, anomalies)

	var names []string
	for _, a := range got {
		names = append(names, a.Name)
	}
	want := []string{"ASAT", "asat", "Glycémie"}
	if len(names) != len(want) {
		t.Fatalf("kept %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("kept %v, want %v", names, want)
		}
	}
}

func TestSanitizeAnomalies_EmptyTextKeepsAll(t *testing.T) {
	in := []Anomaly{{Name: "ASAT"}, {Name: "Troponine"}}
	if got := SanitizeAnomalies("", in); len(got) != 2 {
		t.Fatalf("kept %d, want 2", len(got))
	}
}
