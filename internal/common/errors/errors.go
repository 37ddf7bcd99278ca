// Package errors provides the advisor error taxonomy and its mapping onto Zeebe job failures.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode is a stable, machine readable error identifier.
type ErrorCode string

// Degradation codes. These are recorded in run traces; they never reach the caller as failures.
const (
	ErrCodeIntentAnalysisDegraded ErrorCode = "intent-analysis-degraded"
	ErrCodeModuleFailed           ErrorCode = "module-failed"
	ErrCodeRetrievalDegraded      ErrorCode = "retrieval-degraded"
	ErrCodeSynthesisEmpty         ErrorCode = "synthesis-empty"
	ErrCodeValidatorBypassed      ErrorCode = "validator-bypassed"
)

// Request and infrastructure codes.
const (
	ErrCodeEmptyQuery        ErrorCode = "EMPTY_QUERY"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeWorkflowFault     ErrorCode = "WORKFLOW_FAULT"
	ErrCodeLLMTimeout        ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMFailed         ErrorCode = "LLM_FAILED"
	ErrCodeVectorUnavailable ErrorCode = "VECTOR_UNAVAILABLE"
	ErrCodeDatabaseFailed    ErrorCode = "DATABASE_FAILED"
	ErrCodeSessionStore      ErrorCode = "SESSION_STORE_FAILED"
	ErrCodeEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
	ErrCodeEngineRejected    ErrorCode = "ENGINE_REJECTED"
)

// Degradations lists every trace annotation of the taxonomy, in pipeline order.
var Degradations = []ErrorCode{
	ErrCodeIntentAnalysisDegraded,
	ErrCodeModuleFailed,
	ErrCodeRetrievalDegraded,
	ErrCodeSynthesisEmpty,
	ErrCodeValidatorBypassed,
}

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is lets errors.Is match on the code alone.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// BPMNError is what a job worker throws back to the process engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func NewEmptyQueryError() *StandardError {
	return newError(ErrCodeEmptyQuery, "query text is empty", "", false)
}

func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "malformed request", details, false)
}

func NewWorkflowFaultError(details string) *StandardError {
	return newError(ErrCodeWorkflowFault, "orchestration fault", details, false)
}

func NewLLMTimeoutError(err error) *StandardError {
	return newError(ErrCodeLLMTimeout, "LLM call timed out", errDetails(err), true)
}

func NewLLMFailedError(err error) *StandardError {
	return newError(ErrCodeLLMFailed, "LLM call failed", errDetails(err), true)
}

func NewVectorUnavailableError(backend string, err error) *StandardError {
	se := newError(ErrCodeVectorUnavailable, "vector backend unavailable", errDetails(err), true)
	se.Metadata = map[string]interface{}{"backend": backend}
	return se
}

func NewDatabaseFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseFailed, "database error", errDetails(err), true)
}

func NewSessionStoreError(err error) *StandardError {
	return newError(ErrCodeSessionStore, "session store error", errDetails(err), true)
}

func NewEngineUnavailableError(err error) *StandardError {
	return newError(ErrCodeEngineUnavailable, "workflow engine unavailable", errDetails(err), true)
}

func NewEngineRejectedError(err error) *StandardError {
	return newError(ErrCodeEngineRejected, "workflow engine rejected command", errDetails(err), false)
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// GetRetryCount returns how many engine retries a failed job with this code deserves.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseFailed, ErrCodeSessionStore, ErrCodeVectorUnavailable, ErrCodeEngineUnavailable:
		return 3
	case ErrCodeLLMFailed:
		return 2
	case ErrCodeLLMTimeout:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError into the engine-facing representation.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}
	return &BPMNError{
		Code:      strings.ToUpper(strings.ReplaceAll(string(stdErr.Code), "-", "_")),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// GetErrorCategory groups codes for logging.
func GetErrorCategory(code ErrorCode) string {
	s := string(code)
	switch {
	case IsDegradation(code):
		return "DEGRADATION"
	case strings.Contains(s, "LLM"):
		return "AI"
	case strings.Contains(s, "VECTOR") || strings.Contains(s, "DATABASE") || strings.Contains(s, "SESSION"):
		return "STORAGE"
	case strings.Contains(s, "ENGINE"):
		return "ENGINE"
	case strings.Contains(s, "QUERY") || strings.Contains(s, "INPUT"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

func IsDegradation(code ErrorCode) bool {
	for _, d := range Degradations {
		if d == code {
			return true
		}
	}
	return false
}
