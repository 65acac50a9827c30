package errors

import (
	"errors"
	"strings"
)

// Is checks if an error is of a specific type
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// As checks if an error can be assigned to a target type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// HasCode reports whether err is a NodeError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.Code == code
	}
	return false
}

// WrapNodeError wraps err as a NodeError if it isn't already one.
func WrapNodeError(err error, code ErrorCode, component, message string) *NodeError {
	if err == nil {
		return nil
	}

	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		nodeErr.WithContext("wrapped_message", message)
		if component != "" && nodeErr.Component == "" {
			nodeErr.Component = component
		}
		return nodeErr
	}

	return NewNodeError(code, component, message, err)
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"timed out",
	"temporary failure",
	"too many requests",
	"rate limit",
	"eof",
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// GetSeverity returns the severity of an error
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityInfo
	}

	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.Severity
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "panic"), strings.Contains(errStr, "fatal"):
		return SeverityCritical
	case strings.Contains(errStr, "failed"), strings.Contains(errStr, "error"):
		return SeverityHigh
	case strings.Contains(errStr, "warning"):
		return SeverityMedium
	}
	return SeverityLow
}
