package labanalysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Provider names accepted in Config.
const (
	ProviderRuleOnly    = "rule-only"
	ProviderCustom      = "custom"
	ProviderHuggingFace = "huggingface"
	ProviderGemini      = "gemini"
)

const (
	defaultModelTimeout    = 45 * time.Second
	defaultHuggingFaceURL  = "https://api-inference.huggingface.co/models/"
	defaultGeminiModel     = "gemini-2.5-flash-lite"
	maxModelResponseBytes  = 1 << 20
	maxErrorBodyInMessage  = 300
	generationTemperature  = 0.1
	generationMaxNewTokens = 1024
)

// Generation is the raw text a model produced.
type Generation struct {
	Text         string
	ModelVersion string
}

// TextGenerator calls one external text-generation provider.
type TextGenerator interface {
	Generate(ctx context.Context, system, user string) (Generation, error)
	Provider() string
}

// ChatCompletionsClient talks to an OpenAI-compatible chat-completions endpoint.
type ChatCompletionsClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewChatCompletionsClient creates a client for the custom provider.
func NewChatCompletionsClient(endpoint, apiKey, model string, timeout time.Duration) *ChatCompletionsClient {
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}
	return &ChatCompletionsClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *ChatCompletionsClient) Provider() string { return ProviderCustom }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model,omitempty"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *ChatCompletionsClient) Generate(ctx context.Context, system, user string) (Generation, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    generationTemperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Generation{}, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := postJSON(ctx, c.httpClient, ProviderCustom, c.endpoint, c.apiKey, body)
	if err != nil {
		return Generation{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Generation{}, badResponse(ProviderCustom, "decode chat completion", err)
	}
	if len(parsed.Choices) == 0 {
		return Generation{}, badResponse(ProviderCustom, "chat completion has no choices", nil)
	}

	version := parsed.Model
	if version == "" {
		version = c.model
	}
	return Generation{Text: parsed.Choices[0].Message.Content, ModelVersion: versionOrProvider(version, ProviderCustom)}, nil
}

// HuggingFaceClient talks to the Hugging Face Inference API text-generation task.
type HuggingFaceClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHuggingFaceClient creates a client for the huggingface provider. An empty
// endpoint is derived from the model id.
func NewHuggingFaceClient(endpoint, apiKey, model string, timeout time.Duration) *HuggingFaceClient {
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}
	if endpoint == "" && model != "" {
		endpoint = defaultHuggingFaceURL + model
	}
	return &HuggingFaceClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HuggingFaceClient) Provider() string { return ProviderHuggingFace }

type hfRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

func (c *HuggingFaceClient) Generate(ctx context.Context, system, user string) (Generation, error) {
	body, err := json.Marshal(hfRequest{
		Inputs: system + "\n\n" + user,
		Parameters: map[string]any{
			"max_new_tokens":   generationMaxNewTokens,
			"temperature":      generationTemperature,
			"return_full_text": false,
		},
	})
	if err != nil {
		return Generation{}, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := postJSON(ctx, c.httpClient, ProviderHuggingFace, c.endpoint, c.apiKey, body)
	if err != nil {
		return Generation{}, err
	}

	// The API answers with a list for most models and a single object for some.
	var list []hfGeneration
	if err := json.Unmarshal(respBody, &list); err == nil {
		if len(list) == 0 {
			return Generation{}, badResponse(ProviderHuggingFace, "empty generation list", nil)
		}
		return Generation{Text: list[0].GeneratedText, ModelVersion: versionOrProvider(c.model, ProviderHuggingFace)}, nil
	}

	var single struct {
		GeneratedText string `json:"generated_text"`
		Error         string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &single); err != nil {
		return Generation{}, badResponse(ProviderHuggingFace, "decode generation", err)
	}
	if single.Error != "" {
		return Generation{}, &AnalysisError{
			Code:      ErrModelUnavailable,
			Message:   "inference API error: " + single.Error,
			Provider:  ProviderHuggingFace,
			Retryable: true,
		}
	}
	return Generation{Text: single.GeneratedText, ModelVersion: versionOrProvider(c.model, ProviderHuggingFace)}, nil
}

// GeminiClient generates through the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a client for the gemini provider.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}
	return &GeminiClient{client: client, model: model, timeout: timeout}, nil
}

func (c *GeminiClient) Provider() string { return ProviderGemini }

func (c *GeminiClient) Generate(ctx context.Context, system, user string) (Generation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := float32(generationTemperature)
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: user}},
		},
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		Temperature:       &temperature,
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return Generation{}, classifyModelHTTPError(ProviderGemini, apiErr.Code, apiErr.Message)
		}
		return Generation{}, classifyModelError(ProviderGemini, err)
	}

	text := result.Text()
	if text == "" {
		return Generation{}, badResponse(ProviderGemini, "empty response", nil)
	}

	version := result.ModelVersion
	if version == "" {
		version = c.model
	}
	return Generation{Text: text, ModelVersion: version}, nil
}

func postJSON(ctx context.Context, client *http.Client, provider, endpoint, apiKey string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &AnalysisError{
			Code:     ErrModelNotConfigured,
			Message:  "invalid endpoint",
			Provider: provider,
			Cause:    err,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyModelError(provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxModelResponseBytes))
	if err != nil {
		return nil, classifyModelError(provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyModelHTTPError(provider, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// classifyModelError converts transport errors to AnalysisErrors.
func classifyModelError(provider string, err error) *AnalysisError {
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &AnalysisError{
			Code:      ErrModelTimeout,
			Message:   "model request timed out",
			Provider:  provider,
			Retryable: true,
			Cause:     err,
		}
	}
	return &AnalysisError{
		Code:      ErrModelUnavailable,
		Message:   "model request failed",
		Provider:  provider,
		Retryable: true,
		Cause:     err,
	}
}

// classifyModelHTTPError converts non-2xx answers to AnalysisErrors.
func classifyModelHTTPError(provider string, statusCode int, body string) *AnalysisError {
	if len(body) > maxErrorBodyInMessage {
		body = body[:maxErrorBodyInMessage]
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &AnalysisError{
			Code:      ErrModelRateLimited,
			Message:   "model API rate limited",
			Provider:  provider,
			Retryable: true,
		}
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return &AnalysisError{
			Code:      ErrModelTimeout,
			Message:   fmt.Sprintf("model API timeout (HTTP %d)", statusCode),
			Provider:  provider,
			Retryable: true,
		}
	default:
		return &AnalysisError{
			Code:      ErrModelUnavailable,
			Message:   fmt.Sprintf("model API error (HTTP %d): %s", statusCode, strings.TrimSpace(body)),
			Provider:  provider,
			Retryable: statusCode >= 500,
		}
	}
}

func badResponse(provider, msg string, cause error) *AnalysisError {
	return &AnalysisError{
		Code:     ErrModelBadResponse,
		Message:  msg,
		Provider: provider,
		Cause:    cause,
	}
}

func versionOrProvider(version, provider string) string {
	if v := strings.TrimSpace(version); v != "" {
		return v
	}
	return provider
}
