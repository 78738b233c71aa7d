package labanalysis

import (
	"errors"
	"fmt"
)

// AnalysisErrorCode represents specific model-assisted analysis failures.
type AnalysisErrorCode string

const (
	ErrModelNotConfigured AnalysisErrorCode = "MODEL_NOT_CONFIGURED"
	ErrInsufficientText   AnalysisErrorCode = "INSUFFICIENT_TEXT"
	ErrModelUnavailable   AnalysisErrorCode = "MODEL_UNAVAILABLE"
	ErrModelTimeout       AnalysisErrorCode = "MODEL_TIMEOUT"
	ErrModelRateLimited   AnalysisErrorCode = "MODEL_RATE_LIMITED"
	ErrModelBadResponse   AnalysisErrorCode = "MODEL_BAD_RESPONSE"
)

// AnalysisError is a structured error for model-assisted analysis failures.
type AnalysisError struct {
	Code      AnalysisErrorCode
	Message   string
	Provider  string // e.g. "custom", "huggingface" or "gemini"
	Retryable bool
	Cause     error
}

func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether a caller could reasonably try again later.
// Nothing in this package retries.
func (e *AnalysisError) IsRetryable() bool {
	return e.Retryable
}

// ErrorCode extracts the AnalysisErrorCode from err, or "" if err is not an AnalysisError.
func ErrorCode(err error) AnalysisErrorCode {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
