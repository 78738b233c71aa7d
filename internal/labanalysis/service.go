package labanalysis

import (
	"context"
	"log"
	"strings"
	"time"
)

// Analysis modes reported to observers.
const (
	ModeOCRRequired = "ocr_required"
	ModeRule        = "rule"
	ModeHybrid      = "hybrid"
	ModeModel       = "model"
	ModeFallback    = "fallback"
)

// Config selects the model provider. Missing credentials select rule-only mode.
type Config struct {
	Provider string // rule-only, custom, huggingface or gemini
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Observer receives analysis outcomes, typically for metrics.
type Observer interface {
	AnalysisCompleted(level Level, mode string)
	ModelCallCompleted(provider, outcome string, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) AnalysisCompleted(Level, string) {}
func (noopObserver) ModelCallCompleted(string, string, time.Duration) {}

// Service runs the full pipeline for one document per call. It never
// returns an error; every failure degrades to a well-formed result.
type Service struct {
	rules    *RuleBasedAnalyzer
	model    *ModelAnalyzer
	scoring  ScoringConfig
	observer Observer
}

// NewService builds a service from cfg, creating the provider client when
// the configuration is complete.
func NewService(ctx context.Context, cfg Config) *Service {
	return NewServiceWithGenerator(newGenerator(ctx, cfg), DefaultScoring)
}

// NewServiceWithGenerator builds a service around gen. A nil gen means
// rule-only mode.
func NewServiceWithGenerator(gen TextGenerator, scoring ScoringConfig) *Service {
	s := &Service{
		rules:    NewRuleBasedAnalyzer(scoring, nil),
		scoring:  scoring,
		observer: noopObserver{},
	}
	if gen != nil {
		s.model = NewModelAnalyzer(gen, scoring)
	}
	return s
}

// WithObserver sets the observer and returns s.
func (s *Service) WithObserver(o Observer) *Service {
	if o == nil {
		o = noopObserver{}
	}
	s.observer = o
	return s
}

// Provider is the active provider name, ProviderRuleOnly when no model is used.
func (s *Service) Provider() string {
	return s.model.Provider()
}

func newGenerator(ctx context.Context, cfg Config) TextGenerator {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.APIKey == "" {
		if provider != "" && provider != ProviderRuleOnly {
			log.Printf("[lab-analysis] provider %q has no API key, using rule-only mode", provider)
		}
		return nil
	}

	switch provider {
	case ProviderCustom:
		if cfg.Endpoint == "" {
			log.Printf("[lab-analysis] custom provider has no endpoint, using rule-only mode")
			return nil
		}
		return NewChatCompletionsClient(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Timeout)
	case ProviderHuggingFace:
		if cfg.Endpoint == "" && cfg.Model == "" {
			log.Printf("[lab-analysis] huggingface provider has neither endpoint nor model, using rule-only mode")
			return nil
		}
		return NewHuggingFaceClient(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Timeout)
	case ProviderGemini:
		client, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.Timeout)
		if err != nil {
			log.Printf("[lab-analysis] %v, using rule-only mode", err)
			return nil
		}
		return client
	case "", ProviderRuleOnly:
		return nil
	default:
		log.Printf("[lab-analysis] unknown provider %q, using rule-only mode", cfg.Provider)
		return nil
	}
}

// AnalyzePDF extracts the text of a PDF and analyzes it.
func (s *Service) AnalyzePDF(ctx context.Context, pdf []byte, rc RequestContext) AnalysisResult {
	return s.AnalyzeText(ctx, ExtractText(pdf), rc)
}

// AnalyzeText runs the pipeline on already extracted text.
func (s *Service) AnalyzeText(ctx context.Context, text string, rc RequestContext) AnalysisResult {
	result, mode := s.analyze(ctx, text, rc)
	s.scoring.normalize(&result)
	s.observer.AnalysisCompleted(result.DangerLevel, mode)
	log.Printf("[lab-analysis] demande %q analyzed: mode=%s level=%s score=%d anomalies=%d",
		rc.ID, mode, result.DangerLevel, result.DangerScore, len(result.Anomalies))
	return result
}

func (s *Service) analyze(ctx context.Context, text string, rc RequestContext) (AnalysisResult, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return OCRRequiredResult(), ModeOCRRequired
	}
	// Without a single lab marker there is nothing to score, whatever the length.
	if !mentionsAnyMarker(trimmed) {
		return OCRRequiredResult(), ModeOCRRequired
	}

	rule := s.rules.Analyze(trimmed, rc)

	if s.model == nil {
		if rule == nil {
			return InitializedResult(), ModeFallback
		}
		return *rule, ModeRule
	}

	start := time.Now()
	modelResult, err := s.model.Analyze(ctx, trimmed, rc)
	elapsed := time.Since(start)

	if err != nil {
		code := ErrorCode(err)
		if code != ErrInsufficientText {
			s.observer.ModelCallCompleted(s.model.Provider(), strings.ToLower(string(code)), elapsed)
		}
		switch {
		case rule != nil:
			return *rule, ModeRule
		case code == ErrInsufficientText:
			return modelResult, ModeOCRRequired
		default:
			return InitializedResult(), ModeFallback
		}
	}
	s.observer.ModelCallCompleted(s.model.Provider(), "ok", elapsed)

	if rule == nil {
		return modelResult, ModeModel
	}
	return Reconcile(modelResult, rule), ModeHybrid
}
