package labanalysis

import (
	"reflect"
	"strings"
	"testing"
)

func newRules() *RuleBasedAnalyzer {
	return NewRuleBasedAnalyzer(DefaultScoring, nil)
}

func TestRuleBased_SingleCriticalASAT(t *testing.T) {
	r := newRules().Analyze("ASAT: 250 (10-35)", RequestContext{})
	if r == nil {
		t.Fatal("expected a result")
	}

	if len(r.Anomalies) != 1 {
		t.Fatalf("anomalies = %d, want 1", len(r.Anomalies))
	}
	a := r.Anomalies[0]
	if a.Name != "ASAT" || a.Value != "250" || a.Reference != "10-35" {
		t.Errorf("anomaly = %+v", a)
	}
	if a.Severity != LevelCritical || a.Direction != DirectionHigher {
		t.Errorf("severity/direction = %s/%s, want CRITICAL/HIGHER_THAN_REFERENCE", a.Severity, a.Direction)
	}

	// 10 base + 35 critical, then the ASAT >= 200 guardrail.
	if r.DangerScore != 75 || r.DangerLevel != LevelHigh {
		t.Errorf("score/level = %d/%s, want 75/HIGH", r.DangerScore, r.DangerLevel)
	}
	if r.ModelVersion != VersionRule {
		t.Errorf("ModelVersion = %q, want %q", r.ModelVersion, VersionRule)
	}
	hits, _ := r.Raw["guardrail"].([]string)
	if len(hits) != 1 {
		t.Errorf("guardrail hits = %v, want one", r.Raw["guardrail"])
	}
}

func TestRuleBased_AllNormal(t *testing.T) {
	text := strings.Join([]string{
		"ASAT 25 UI/L",
		"ALAT 30 UI/L",
		"Glycémie 0,95 g/L",
		"Hémoglobine 14 g/dL",
		"Créatinine 9 mg/L",
	}, "\n")

	r := newRules().Analyze(text, RequestContext{})
	if r == nil {
		t.Fatal("expected a result")
	}
	if len(r.Anomalies) != 0 {
		t.Fatalf("anomalies = %+v, want none", r.Anomalies)
	}
	if r.DangerScore != 10 || r.DangerLevel != LevelLow {
		t.Errorf("score/level = %d/%s, want 10/LOW", r.DangerScore, r.DangerLevel)
	}
	if !strings.Contains(r.Resume, "No anomaly detected") {
		t.Errorf("resume = %q", r.Resume)
	}
}

func TestRuleBased_HepaticEscalation(t *testing.T) {
	text := "ASAT 40 UI/L\nALAT 50 UI/L\nGGT 60 UI/L"

	r := newRules().Analyze(text, RequestContext{})
	if r == nil {
		t.Fatal("expected a result")
	}
	if len(r.Anomalies) != 3 {
		t.Fatalf("anomalies = %d, want 3", len(r.Anomalies))
	}
	// Three LOW anomalies score 34 on their own.
	if r.DangerLevel != LevelHigh || r.DangerScore != 75 {
		t.Errorf("score/level = %d/%s, want 75/HIGH", r.DangerScore, r.DangerLevel)
	}
}

func TestRuleBased_InsufficientReferenceData(t *testing.T) {
	text := "Bilan hépatique\nASAT : en attente\nALAT : en attente"

	r := newRules().Analyze(text, RequestContext{})
	if r == nil {
		t.Fatal("expected a conservative result")
	}
	if r.DangerLevel != LevelMedium || r.DangerScore != 35 {
		t.Errorf("score/level = %d/%s, want 35/MEDIUM", r.DangerScore, r.DangerLevel)
	}
	if !strings.Contains(r.Resume, "Insufficient reference data") {
		t.Errorf("resume = %q", r.Resume)
	}
}

func TestRuleBased_HeaderBeforeValues(t *testing.T) {
	text := "Bilan hepatique\nTransaminases ASAT / ALAT\nASAT : 250 UI/L (10 - 35)\nALAT : 320 UI/L (10 - 45)\nGlycemie : 0.95 g/L (0.70 - 1.10)"

	r := newRules().Analyze(text, RequestContext{})
	if r == nil {
		t.Fatal("expected a result")
	}
	if names := r.AnomalyNames(); !reflect.DeepEqual(names, []string{"ASAT", "ALAT"}) {
		t.Fatalf("anomaly names = %v, want [ASAT ALAT]", names)
	}
	for _, a := range r.Anomalies {
		if a.Severity != LevelCritical {
			t.Errorf("%s severity = %s, want CRITICAL", a.Name, a.Severity)
		}
	}
	if r.DangerLevel < LevelHigh || r.DangerScore < 75 {
		t.Errorf("score/level = %d/%s, want at least 75/HIGH", r.DangerScore, r.DangerLevel)
	}
	if strings.Contains(r.Resume, "Insufficient reference data") {
		t.Errorf("resume = %q, values were readable", r.Resume)
	}
	hits, _ := r.Raw["guardrail"].([]string)
	if len(hits) != 2 {
		t.Errorf("guardrail hits = %v, want ASAT and ALAT", r.Raw["guardrail"])
	}
}

func TestRuleBased_LowercaseAcronymsIgnored(t *testing.T) {
	if r := newRules().Analyze("Facture mensuelle\nMatch A vs B 45 points\nTotal 30 euros", RequestContext{}); r != nil {
		t.Fatalf("got %+v, want nil", r)
	}
}

func TestRuleBased_NothingRecognized(t *testing.T) {
	a := newRules()
	if r := a.Analyze("", RequestContext{}); r != nil {
		t.Errorf("empty text: got %+v, want nil", r)
	}
	if r := a.Analyze("Compte rendu de consultation sans valeur chiffrée", RequestContext{}); r != nil {
		t.Errorf("unrelated text: got %+v, want nil", r)
	}
}

func TestRuleBased_SummaryListsAtMostSixNames(t *testing.T) {
	text := strings.Join([]string{
		"ASAT 100 UI/L",
		"ALAT 100 UI/L",
		"GGT 100 UI/L",
		"Glycémie 2,5 g/L",
		"Plaquettes 50 G/L",
		"CRP 50 mg/L",
		"Sodium 120 mmol/L",
		"Potassium 7 mmol/L",
	}, "\n")

	r := newRules().Analyze(text, RequestContext{ID: "42", TypeBilan: "complet"})
	if r == nil {
		t.Fatal("expected a result")
	}
	if len(r.Anomalies) != 8 {
		t.Fatalf("anomalies = %d, want 8", len(r.Anomalies))
	}
	if r.DangerScore != 100 || r.DangerLevel != LevelCritical {
		t.Errorf("score/level = %d/%s, want 100/CRITICAL", r.DangerScore, r.DangerLevel)
	}
	for _, want := range []string{"Bilan complet, demande #42: ", "8 anomalies detected", "and 2 more", "Danger level: CRITICAL"} {
		if !strings.Contains(r.Resume, want) {
			t.Errorf("resume %q does not contain %q", r.Resume, want)
		}
	}
	if strings.Contains(r.Resume, "Potassium") {
		t.Errorf("resume lists more than six names: %q", r.Resume)
	}
	if !strings.HasSuffix(r.Resume, ValidationCaveat) {
		t.Errorf("resume does not end with the caveat: %q", r.Resume)
	}
}

func TestRuleBased_Idempotent(t *testing.T) {
	text := "ASAT 120 UI/L\nALAT 80 UI/L\nGlycémie 1,60 g/L\nTP 55 %"
	a := newRules()

	first := a.Analyze(text, RequestContext{ID: "7"})
	second := a.Analyze(text, RequestContext{ID: "7"})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestRuleBased_CustomTable(t *testing.T) {
	defs := []AnalyteDefinition{
		{Key: "LACTATE", Aliases: []string{"lactate"}, High: bound(2), Unit: "mmol/L"},
	}
	r := NewRuleBasedAnalyzer(DefaultScoring, defs).Analyze("Lactate 5 mmol/L", RequestContext{})
	if r == nil || len(r.Anomalies) != 1 {
		t.Fatalf("got %+v, want one anomaly", r)
	}
	if r.Anomalies[0].Name != "Lactate" || r.Anomalies[0].Value != "5 mmol/L" {
		t.Errorf("anomaly = %+v", r.Anomalies[0])
	}
}
