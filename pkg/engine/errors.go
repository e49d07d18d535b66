package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for propagation decisions.
type ErrorClass string

const (
	// ErrorClassConfig indicates bad or missing declared parameters.
	// Detected before any remote call and never retried.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassAuth indicates a credential or token failure.
	// Nothing else can proceed, so the run is aborted.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassNotFound indicates a remote object could not be found.
	// Benign for existence checks, fatal when resolving a required reference.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassExecution indicates any other failure of the external client.
	// Fatal to the one resource only.
	ErrorClassExecution ErrorClass = "execution"

	// ErrorClassDuplicate indicates two declarations collide on identity.
	ErrorClassDuplicate ErrorClass = "duplicate"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message. For execution errors this
	// is the verbatim error text of the external process.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource ID that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Resource != "" && e.Operation != "":
		msg = fmt.Sprintf("%s (resource=%s, operation=%s)", msg, e.Resource, e.Operation)
	case e.Resource != "":
		msg = fmt.Sprintf("%s (resource=%s)", msg, e.Resource)
	case e.Operation != "":
		msg = fmt.Sprintf("%s (operation=%s)", msg, e.Operation)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && (t.Code == "" || e.Code == t.Code)
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConfig,
		Message: message,
		Err:     err,
	}
}

// NewAuthError creates a new authentication error.
func NewAuthError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassAuth,
		Message: message,
		Code:    ErrCodeAuthFailed,
		Err:     err,
	}
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassNotFound,
		Message: message,
		Code:    ErrCodeObjectNotFound,
		Err:     err,
	}
}

// NewExecutionError creates a new execution error.
func NewExecutionError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassExecution,
		Message: message,
		Code:    ErrCodeCommandFailed,
		Err:     err,
	}
}

// NewDuplicateResourceError creates a new duplicate resource error.
func NewDuplicateResourceError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassDuplicate,
		Message: message,
		Code:    ErrCodeDuplicateResource,
		Err:     err,
	}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resourceID string) *EngineError {
	e.Resource = resourceID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns a string detail, or "" when unset.
func (e *EngineError) Detail(key string) string {
	if e.Details == nil {
		return ""
	}
	if v, ok := e.Details[key].(string); ok {
		return v
	}
	return ""
}

// ClassOf returns the class of the outermost EngineError in the chain.
func ClassOf(err error) (ErrorClass, bool) {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

func isClass(err error, class ErrorClass) bool {
	c, ok := ClassOf(err)
	return ok && c == class
}

// IsConfigError returns true if the error is classified as a configuration error.
func IsConfigError(err error) bool {
	return isClass(err, ErrorClassConfig)
}

// IsAuthError returns true if the error is classified as an authentication error.
func IsAuthError(err error) bool {
	return isClass(err, ErrorClassAuth)
}

// IsNotFound returns true if the error is classified as not found.
func IsNotFound(err error) bool {
	return isClass(err, ErrorClassNotFound)
}

// IsExecutionError returns true if the error is classified as an execution error.
func IsExecutionError(err error) bool {
	return isClass(err, ErrorClassExecution)
}

// IsDuplicateResource returns true if the error is classified as a duplicate resource.
func IsDuplicateResource(err error) bool {
	return isClass(err, ErrorClassDuplicate)
}

// IsDanglingReference returns true if the error reports a missing object
// that another object refers to.
func IsDanglingReference(err error) bool {
	var engErr *EngineError
	return errors.As(err, &engErr) && engErr.Code == ErrCodeDanglingReference
}

// IsFatal returns true if the error must abort the whole run.
func IsFatal(err error) bool {
	return IsAuthError(err)
}

// Common error codes.
const (
	ErrCodeInvalidEnsure      = "INVALID_ENSURE"
	ErrCodeMissingParameter   = "MISSING_PARAMETER"
	ErrCodeInvalidParameter   = "INVALID_PARAMETER"
	ErrCodeMissingCredentials = "MISSING_CREDENTIALS"
	ErrCodeAmbiguousScope     = "AMBIGUOUS_SCOPE"
	ErrCodeAuthFailed         = "AUTH_FAILED"
	ErrCodeObjectNotFound     = "OBJECT_NOT_FOUND"
	ErrCodeDanglingReference  = "DANGLING_REFERENCE"
	ErrCodeCommandFailed      = "COMMAND_FAILED"
	ErrCodeUnparseableOutput  = "UNPARSEABLE_OUTPUT"
	ErrCodeDuplicateResource  = "DUPLICATE_RESOURCE"
	ErrCodeDependencyFailed   = "DEPENDENCY_FAILED"
	ErrCodeDependencyCycle    = "DEPENDENCY_CYCLE"
	ErrCodeRunAborted         = "RUN_ABORTED"
	ErrCodePolicyViolation    = "POLICY_VIOLATION"
)
