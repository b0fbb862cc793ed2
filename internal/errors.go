package internal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different types of errors
type ErrorType int

const (
	ErrUnknownCourse ErrorType = iota
	ErrInvalidCredentials
	ErrNetworkFailure
	ErrSessionExpired
	ErrPageStructureChanged
	ErrUnreachable
	ErrTransportFailure
	ErrWriteFailure
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// FetchError is the typed error returned by every pipeline stage
type FetchError struct {
	Type       ErrorType
	Severity   ErrorSeverity
	Message    string
	URL        string
	Suggestion string
	Context    map[string]interface{}
	Err        error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	parts := []string{fmt.Sprintf("%s (%s)", e.Category(), e.Type.String())}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *FetchError) Unwrap() error {
	return e.Err
}

// DetailedError returns a detailed error message with all available information
func (e *FetchError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s %s", e.Severity.String(), e.Category(), e.Type.String()))

	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}
	if e.Err != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Err))
	}
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("URL: %s", redactSensitiveURL(e.URL)))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// Category names the pipeline stage the error belongs to
func (e *FetchError) Category() string {
	switch e.Type {
	case ErrUnknownCourse:
		return "ConfigError"
	case ErrInvalidCredentials, ErrNetworkFailure:
		return "AuthError"
	case ErrSessionExpired, ErrPageStructureChanged, ErrUnreachable:
		return "ScrapeError"
	case ErrTransportFailure, ErrWriteFailure:
		return "DownloadError"
	default:
		return "Error"
	}
}

// IsRetryable returns true if the error is worth another attempt
func (e *FetchError) IsRetryable() bool {
	return e.Type == ErrNetworkFailure
}

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrUnknownCourse:
		return "UnknownCourse"
	case ErrInvalidCredentials:
		return "InvalidCredentials"
	case ErrNetworkFailure:
		return "NetworkFailure"
	case ErrSessionExpired:
		return "SessionExpired"
	case ErrPageStructureChanged:
		return "PageStructureChanged"
	case ErrUnreachable:
		return "Unreachable"
	case ErrTransportFailure:
		return "TransportFailure"
	case ErrWriteFailure:
		return "WriteFailure"
	default:
		return "Unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (es ErrorSeverity) String() string {
	switch es {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// NewFetchError creates a FetchError with default severity and suggestion
func NewFetchError(errorType ErrorType, message string, cause error) *FetchError {
	return &FetchError{
		Type:       errorType,
		Severity:   getDefaultSeverity(errorType),
		Message:    message,
		Suggestion: getDefaultSuggestion(errorType),
		Context:    make(map[string]interface{}),
		Err:        cause,
	}
}

// WithSuggestion adds a custom suggestion to the error
func (e *FetchError) WithSuggestion(suggestion string) *FetchError {
	e.Suggestion = suggestion
	return e
}

// WithURL adds URL context to the error (will be redacted in logs)
func (e *FetchError) WithURL(url string) *FetchError {
	e.URL = url
	return e
}

// WithContext adds context information to the error
func (e *FetchError) WithContext(key string, value interface{}) *FetchError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsErrorType reports whether err wraps a FetchError of the given type
func IsErrorType(err error, errorType ErrorType) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Type == errorType
	}
	return false
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field      string                 `json:"field"`
	Message    string                 `json:"message"`
	Value      interface{}            `json:"value,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := []string{fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// DetailedError returns a detailed validation error message
func (e *ValidationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Validation Error for field '%s'", e.Field))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("Provided value: %v", e.Value))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewValidationErrorWithValue creates a ValidationError with the invalid value
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Context: make(map[string]interface{}),
	}
}

// WithSuggestion adds a suggestion to the validation error
func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context to the validation error
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func getDefaultSuggestion(errorType ErrorType) string {
	switch errorType {
	case ErrUnknownCourse:
		return "Run 'joncalhoun-dl courses' to list the available course keys"
	case ErrInvalidCredentials:
		return "Check the email and password you use to sign in on the course site"
	case ErrNetworkFailure:
		return "Check your internet connection and try again. Consider using --proxy if needed"
	case ErrSessionExpired:
		return "The site signed you out. Run the command again to start a fresh session"
	case ErrPageStructureChanged:
		return "The course page layout changed and could not be parsed. Please report this"
	case ErrUnreachable:
		return "The course page could not be reached. Try again later"
	case ErrTransportFailure:
		return "Run the command again; finished videos are skipped"
	case ErrWriteFailure:
		return "Check available disk space and permissions of the destination folder"
	default:
		return "Please check the error details and try again"
	}
}

func getDefaultSeverity(errorType ErrorType) ErrorSeverity {
	switch errorType {
	case ErrTransportFailure:
		return SeverityWarning
	case ErrWriteFailure:
		return SeverityError
	case ErrUnknownCourse, ErrInvalidCredentials, ErrSessionExpired, ErrPageStructureChanged:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// redactSensitiveURL redacts the query string, which may carry signed tokens
func redactSensitiveURL(url string) string {
	if strings.Contains(url, "?") {
		parts := strings.Split(url, "?")
		return parts[0] + "?[REDACTED]"
	}
	return url
}

// NewUnknownCourseError creates the pre-flight error for an unregistered course key
func NewUnknownCourseError(key string, known []string) *FetchError {
	return NewFetchError(ErrUnknownCourse, fmt.Sprintf("unknown course %q", key), nil).
		WithContext("known_courses", strings.Join(known, ", "))
}

// NewInvalidCredentialsError creates an error for a rejected sign-in
func NewInvalidCredentialsError(loginURL, reason string) *FetchError {
	return NewFetchError(ErrInvalidCredentials, reason, nil).WithURL(loginURL)
}

// NewNetworkFailureError creates an error for a login transport failure
func NewNetworkFailureError(loginURL string, cause error) *FetchError {
	return NewFetchError(ErrNetworkFailure, "login request failed", cause).WithURL(loginURL)
}

// NewSessionExpiredError creates an error for a page that demanded a new sign-in
func NewSessionExpiredError(pageURL string) *FetchError {
	return NewFetchError(ErrSessionExpired, "the site returned the sign-in page instead of course content", nil).
		WithURL(pageURL)
}

// NewPageStructureChangedError creates an error for an unparsable course page
func NewPageStructureChangedError(pageURL, reason string) *FetchError {
	return NewFetchError(ErrPageStructureChanged, reason, nil).WithURL(pageURL)
}

// NewUnreachableError creates an error for a course page that could not be fetched
func NewUnreachableError(pageURL string, cause error) *FetchError {
	return NewFetchError(ErrUnreachable, "course page could not be fetched", cause).WithURL(pageURL)
}

// NewTransportFailureError creates a per-video network error
func NewTransportFailureError(videoURL string, cause error) *FetchError {
	return NewFetchError(ErrTransportFailure, "video transfer failed", cause).WithURL(videoURL)
}

// NewWriteFailureError creates a per-video filesystem error
func NewWriteFailureError(path string, cause error) *FetchError {
	return NewFetchError(ErrWriteFailure, "could not write video file", cause).
		WithContext("path", path)
}
