package labanalysis

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const hepaticReport = `LABORATOIRE CENTRAL - Bilan hépatique
ASAT : 250 UI/L (< 35)
ALAT : 180 UI/L (< 45)
Glycémie : 0,92 g/L (0,70 - 1,10)`

type recordingObserver struct {
	mu       sync.Mutex
	analyses []string
	calls    []string
}

func (o *recordingObserver) AnalysisCompleted(level Level, mode string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.analyses = append(o.analyses, mode+":"+level.String())
}

func (o *recordingObserver) ModelCallCompleted(provider, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, provider+":"+outcome)
}

func customService(url string) *Service {
	return NewServiceWithGenerator(NewChatCompletionsClient(url, "test-key", "", time.Second), DefaultScoring)
}

func ruleOnlyService() *Service {
	return NewServiceWithGenerator(nil, DefaultScoring)
}

func TestService_EmptyInputIsOCRRequired(t *testing.T) {
	var calls int32
	server := statusServer(http.StatusInternalServerError, &calls)
	defer server.Close()

	for _, svc := range []*Service{ruleOnlyService(), customService(server.URL)} {
		got := svc.AnalyzePDF(context.Background(), nil, RequestContext{})
		if !reflect.DeepEqual(got, OCRRequiredResult()) {
			t.Fatalf("got %+v, want the OCR-required result", got)
		}
		if got.ModelVersion != "ocr-required-v1" || got.DangerScore != 20 || got.DangerLevel != LevelLow {
			t.Fatalf("unexpected OCR result %+v", got)
		}
	}
	if calls != 0 {
		t.Fatalf("model endpoint called %d times", calls)
	}
}

func TestService_ShortTextWithoutMarkerIsOCRRequired(t *testing.T) {
	var calls int32
	server := chatServer(t, `{"danger_score":99,"danger_level":"CRITICAL"}`, &calls)
	defer server.Close()

	got := customService(server.URL).AnalyzeText(context.Background(), "scan page 1 of 1", RequestContext{})
	if !reflect.DeepEqual(got, OCRRequiredResult()) {
		t.Fatalf("got %+v, want the OCR-required result", got)
	}
	if calls != 0 {
		t.Fatalf("model endpoint called %d times", calls)
	}
}

func TestService_NonLabTextWithLowercaseAcronyms(t *testing.T) {
	var calls int32
	server := chatServer(t, `{"danger_score":99,"danger_level":"CRITICAL"}`, &calls)
	defer server.Close()

	text := "Facture mensuelle\nMatch A vs B 45 points\nTotal 30 euros\nVoir le tp de la semaine, touche alt pour continuer."
	for _, svc := range []*Service{ruleOnlyService(), customService(server.URL)} {
		got := svc.AnalyzeText(context.Background(), text, RequestContext{})
		if !reflect.DeepEqual(got, OCRRequiredResult()) {
			t.Fatalf("got %+v, want the OCR-required result", got)
		}
	}
	if calls != 0 {
		t.Fatalf("model endpoint called %d times", calls)
	}
}

func TestService_ShortTextWithMarkerUsesRules(t *testing.T) {
	got := ruleOnlyService().AnalyzeText(context.Background(), "ASAT: 250 (10-35)", RequestContext{})

	if len(got.Anomalies) != 1 || got.Anomalies[0].Name != "ASAT" || got.Anomalies[0].Value != "250" {
		t.Fatalf("anomalies = %+v", got.Anomalies)
	}
	if got.Anomalies[0].Severity != LevelCritical {
		t.Errorf("severity = %s, want CRITICAL", got.Anomalies[0].Severity)
	}
	if got.DangerScore < 45 || got.DangerLevel < LevelMedium {
		t.Errorf("score/level = %d/%s", got.DangerScore, got.DangerLevel)
	}
}

func TestService_NoModelNothingExtractable(t *testing.T) {
	text := "Compte rendu: un dosage de CRP a été demandé, résultat transmis ultérieurement par le laboratoire partenaire."
	got := ruleOnlyService().AnalyzeText(context.Background(), text, RequestContext{})
	if !reflect.DeepEqual(got, InitializedResult()) {
		t.Fatalf("got %+v, want the initialized result", got)
	}
}

func TestService_ModelFailureFallsBackToRules(t *testing.T) {
	server := statusServer(http.StatusInternalServerError, nil)
	defer server.Close()

	obs := &recordingObserver{}
	rc := RequestContext{ID: "17", TypeBilan: "hépatique"}

	got := customService(server.URL).WithObserver(obs).AnalyzeText(context.Background(), hepaticReport, rc)
	want := ruleOnlyService().AnalyzeText(context.Background(), hepaticReport, rc)

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
	if got.ModelVersion != VersionRule {
		t.Errorf("ModelVersion = %q, want %q", got.ModelVersion, VersionRule)
	}
	if len(obs.calls) != 1 || obs.calls[0] != "custom:model_unavailable" {
		t.Errorf("model calls = %v", obs.calls)
	}
	if len(obs.analyses) != 1 || obs.analyses[0] != "rule:HIGH" {
		t.Errorf("analyses = %v", obs.analyses)
	}
}

func TestService_HybridResult(t *testing.T) {
	content := `{"anomalies":[
		{"name":"ASAT","value":"250 UI/L","reference":"< 35","severity":"CRITICAL","direction":"HIGHER_THAN_REFERENCE"},
		{"name":"Troponine","value":"2","reference":"< 0.04","severity":"CRITICAL","direction":"HIGHER_THAN_REFERENCE"}],
		"danger_score":60,"danger_level":"MEDIUM",
		"resume":"Cytolyse hépatique marquée avec ASAT très élevée.","model_version":"med-llm-1"}`
	server := chatServer(t, content, nil)
	defer server.Close()

	got := customService(server.URL).AnalyzeText(context.Background(), hepaticReport, RequestContext{ID: "17"})

	// Rules: ASAT and ALAT critical, 10+35+35 = 80.
	if got.DangerScore != 80 || got.DangerLevel != LevelHigh {
		t.Errorf("score/level = %d/%s, want 80/HIGH", got.DangerScore, got.DangerLevel)
	}
	if names := got.AnomalyNames(); !reflect.DeepEqual(names, []string{"ASAT", "ALAT"}) {
		t.Errorf("anomaly names = %v, want the rule list", names)
	}
	if got.ModelVersion != "med-llm-1+rule-v1" {
		t.Errorf("ModelVersion = %q", got.ModelVersion)
	}
	if !strings.HasPrefix(got.Resume, "Cytolyse hépatique") || !strings.HasSuffix(got.Resume, ValidationCaveat) {
		t.Errorf("resume = %q", got.Resume)
	}
	if got.Raw["dropped_anomalies"] != 1 {
		t.Errorf("dropped_anomalies = %v, want 1", got.Raw["dropped_anomalies"])
	}
}

func TestService_GuardrailOverridesReassuringModel(t *testing.T) {
	content := `{"anomalies":[],"danger_score":5,"danger_level":"LOW","resume":"Tout est parfaitement normal dans ce bilan."}`
	server := chatServer(t, content, nil)
	defer server.Close()

	text := "Bilan hépatique de contrôle demandé par le médecin traitant.\nASAT 260 UI/L\nCommentaire: prélèvement hémolysé."
	got := customService(server.URL).AnalyzeText(context.Background(), text, RequestContext{})

	if got.DangerLevel < LevelHigh || got.DangerScore < 75 {
		t.Fatalf("score/level = %d/%s, want at least 75/HIGH", got.DangerScore, got.DangerLevel)
	}
}

func TestService_UnparseableModelOutputWithoutRules(t *testing.T) {
	server := chatServer(t, "Je ne suis pas en mesure de produire du JSON.", nil)
	defer server.Close()

	text := "Compte rendu: un dosage de CRP a été demandé, résultat transmis ultérieurement par le laboratoire partenaire."
	got := customService(server.URL).AnalyzeText(context.Background(), text, RequestContext{})

	if got.DangerLevel != LevelLow || got.DangerScore != 20 {
		t.Errorf("score/level = %d/%s, want 20/LOW", got.DangerScore, got.DangerLevel)
	}
	if got.Raw["text"] != "Je ne suis pas en mesure de produire du JSON." {
		t.Errorf("raw.text = %v", got.Raw["text"])
	}
	if got.ModelVersion != "med-llm-1" {
		t.Errorf("ModelVersion = %q", got.ModelVersion)
	}
}

func TestService_UnparseableModelOutputKeepsRuleNarrative(t *testing.T) {
	server := chatServer(t, "not json", nil)
	defer server.Close()

	got := customService(server.URL).AnalyzeText(context.Background(), hepaticReport, RequestContext{})
	rule := ruleOnlyService().AnalyzeText(context.Background(), hepaticReport, RequestContext{})

	if got.Resume != rule.Resume {
		t.Errorf("resume = %q, want the rule narrative", got.Resume)
	}
	if got.DangerScore != rule.DangerScore || got.DangerLevel != rule.DangerLevel {
		t.Errorf("score/level = %d/%s, want %d/%s", got.DangerScore, got.DangerLevel, rule.DangerScore, rule.DangerLevel)
	}
}

func TestService_ResultInvariants(t *testing.T) {
	texts := []string{
		"",
		"hello",
		"ASAT: 250 (10-35)",
		hepaticReport,
		"ASAT 250\nALAT 400\nGGT 300\nBilirubine totale 45 mg/L\nTP 40 %",
		"Glycémie 0,30 g/L\nSodium 150 mmol/L\nPotassium 2,9 mmol/L",
		"Hémoglobine glyquée 9,5 %\nHémoglobine 8 g/dL",
	}
	svc := ruleOnlyService()

	for _, text := range texts {
		got := svc.AnalyzeText(context.Background(), text, RequestContext{})
		if got.DangerScore < 0 || got.DangerScore > 100 {
			t.Errorf("%q: score %d out of range", text, got.DangerScore)
		}
		if got.DangerLevel != LevelForScore(got.DangerScore) {
			t.Errorf("%q: level %s inconsistent with score %d", text, got.DangerLevel, got.DangerScore)
		}
		for _, a := range got.Anomalies {
			if !strings.Contains(strings.ToLower(text), strings.ToLower(a.Name)) {
				t.Errorf("%q: anomaly %q not present in text", text, a.Name)
			}
		}
		if !strings.HasSuffix(got.Resume, ValidationCaveat) {
			t.Errorf("%q: resume lacks caveat: %q", text, got.Resume)
		}
	}
}

func TestService_ConcurrentUse(t *testing.T) {
	svc := ruleOnlyService()
	want := svc.AnalyzeText(context.Background(), hepaticReport, RequestContext{})

	var wg sync.WaitGroup
	var mismatches int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := svc.AnalyzeText(context.Background(), hepaticReport, RequestContext{})
			if !reflect.DeepEqual(got, want) {
				atomic.AddInt32(&mismatches, 1)
			}
		}()
	}
	wg.Wait()
	if mismatches != 0 {
		t.Fatalf("%d concurrent results differed", mismatches)
	}
}

func TestNewService_ProviderSelection(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"empty", Config{}, ProviderRuleOnly},
		{"explicit rule-only", Config{Provider: "rule-only", APIKey: "k"}, ProviderRuleOnly},
		{"custom without key", Config{Provider: "custom", Endpoint: "http://localhost:1"}, ProviderRuleOnly},
		{"custom without endpoint", Config{Provider: "custom", APIKey: "k"}, ProviderRuleOnly},
		{"custom complete", Config{Provider: "custom", Endpoint: "http://localhost:1", APIKey: "k"}, ProviderCustom},
		{"huggingface with model", Config{Provider: "HuggingFace", APIKey: "k", Model: "org/m"}, ProviderHuggingFace},
		{"huggingface without model or endpoint", Config{Provider: "huggingface", APIKey: "k"}, ProviderRuleOnly},
		{"unknown provider", Config{Provider: "openai", APIKey: "k"}, ProviderRuleOnly},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NewService(context.Background(), tc.cfg).Provider(); got != tc.want {
				t.Fatalf("Provider() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestModelAnalyzer_InsufficientEvidence(t *testing.T) {
	var calls int32
	server := chatServer(t, `{}`, &calls)
	defer server.Close()

	m := NewModelAnalyzer(NewChatCompletionsClient(server.URL, "test-key", "", time.Second), DefaultScoring)
	got, err := m.Analyze(context.Background(), "ASAT 250", RequestContext{})

	if ErrorCode(err) != ErrInsufficientText {
		t.Fatalf("ErrorCode = %q, want %q", ErrorCode(err), ErrInsufficientText)
	}
	if !reflect.DeepEqual(got, OCRRequiredResult()) {
		t.Errorf("got %+v, want the OCR-required result", got)
	}
	if calls != 0 {
		t.Errorf("endpoint called %d times", calls)
	}
}

func TestModelAnalyzer_NotConfigured(t *testing.T) {
	_, err := NewModelAnalyzer(nil, DefaultScoring).Analyze(context.Background(), hepaticReport, RequestContext{})
	if ErrorCode(err) != ErrModelNotConfigured {
		t.Fatalf("ErrorCode = %q, want %q", ErrorCode(err), ErrModelNotConfigured)
	}
}

func TestBuildPrompt(t *testing.T) {
	rc := RequestContext{ID: "9", TypeBilan: "lipidique", PatientAge: "54"}

	system, user := BuildPrompt(hepaticReport, rc)
	system2, user2 := BuildPrompt(hepaticReport, rc)

	if system != system2 || user != user2 {
		t.Fatal("prompt is not deterministic")
	}
	if !strings.Contains(system, "JSON") || !strings.Contains(system, "literal content of the document always wins") {
		t.Errorf("system prompt lacks its core instructions")
	}
	for _, want := range []string{"Declared bilan type: lipidique", "Patient age: 54", "Patient: not provided", "ASAT : 250 UI/L (< 35)"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt lacks %q", want)
		}
	}
}
