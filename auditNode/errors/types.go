package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeValidation indicates input validation errors
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeNetwork indicates network-related errors
	ErrCodeNetwork ErrorCode = "NETWORK"

	// ErrCodeDatabase indicates event store errors
	ErrCodeDatabase ErrorCode = "DATABASE"

	// ErrCodeTransaction indicates ledger transaction errors
	ErrCodeTransaction ErrorCode = "TRANSACTION"

	// ErrCodeConfig indicates configuration errors
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeRPC indicates ledger RPC errors
	ErrCodeRPC ErrorCode = "RPC"

	// ErrCodeTimeout indicates timeout errors
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeAnalyzer indicates an analyzer invocation failed
	ErrCodeAnalyzer ErrorCode = "ANALYZER"

	// ErrCodeFormat indicates a value does not fit the compressed report layout
	ErrCodeFormat ErrorCode = "FORMAT"

	// ErrCodeInternal indicates internal system errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Severity represents the severity level of an error
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// NodeError is an error raised by one of the audit node components.
type NodeError struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Severity  Severity       `json:"severity"`
	Cause     error          `json:"-"`
	Context   map[string]any `json:"context,omitempty"`
}

// NewNodeError creates a new NodeError
func NewNodeError(code ErrorCode, component, message string, cause error) *NodeError {
	return &NodeError{
		Code:      code,
		Message:   message,
		Component: component,
		Severity:  determineSeverity(code),
		Cause:     cause,
		Context:   make(map[string]any),
	}
}

// Error implements the error interface
func (e *NodeError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Component != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Component, e.Code, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying cause
func (e *NodeError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *NodeError) WithContext(key string, value any) *NodeError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the default severity
func (e *NodeError) WithSeverity(severity Severity) *NodeError {
	e.Severity = severity
	return e
}

// IsRetryable returns true if the error is retryable
func (e *NodeError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeNetwork, ErrCodeRPC, ErrCodeTimeout:
		return true
	case ErrCodeDatabase:
		return e.Severity != SeverityCritical
	default:
		return false
	}
}

func determineSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeInternal:
		return SeverityCritical
	case ErrCodeDatabase:
		return SeverityHigh
	case ErrCodeTransaction, ErrCodeAnalyzer:
		return SeverityMedium
	case ErrCodeNetwork, ErrCodeRPC, ErrCodeTimeout:
		return SeverityMedium
	case ErrCodeValidation, ErrCodeConfig, ErrCodeFormat:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// NewValidationError creates a validation error
func NewValidationError(component, message string) *NodeError {
	return NewNodeError(ErrCodeValidation, component, message, nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string) *NodeError {
	return NewNodeError(ErrCodeConfig, "config", message, nil)
}

// NewRPCError creates a ledger RPC error
func NewRPCError(component, message string, cause error) *NodeError {
	return NewNodeError(ErrCodeRPC, component, message, cause)
}

// NewTransactionError creates a transaction error
func NewTransactionError(component, message string, cause error) *NodeError {
	return NewNodeError(ErrCodeTransaction, component, message, cause)
}

// NewDatabaseError creates an event store error
func NewDatabaseError(message string, cause error) *NodeError {
	return NewNodeError(ErrCodeDatabase, "event_store", message, cause)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(component, message string) *NodeError {
	return NewNodeError(ErrCodeTimeout, component, message, nil)
}

// NewAnalyzerError creates an analyzer error
func NewAnalyzerError(analyzer, message string, cause error) *NodeError {
	return NewNodeError(ErrCodeAnalyzer, analyzer, message, cause)
}

// NewInternalError creates an internal error
func NewInternalError(component, message string, cause error) *NodeError {
	return NewNodeError(ErrCodeInternal, component, message, cause)
}
