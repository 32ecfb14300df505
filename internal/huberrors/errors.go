// Package huberrors defines the error kinds shared by repositories, services and handlers.
// Each kind has a sentinel for errors.Is; the typed value carries the detail shown to clients.
// Handlers map kinds to statuses: NotFound 404, Validation 400, LimitExceeded 403, Conflict 409,
// Upstream 502 or 503.
package huberrors

// Sentinels. errors.Is(err, ErrNotFound) matches any *NotFoundError in the chain.
var (
	ErrNotFound      = &NotFoundError{}
	ErrValidation    = &ValidationError{}
	ErrLimitExceeded = &LimitExceededError{}
	ErrConflict      = &ConflictError{}
	ErrUpstream      = &UpstreamError{}
)

func messageOr(message, fallback string) string {
	if message != "" {
		return message
	}

	return fallback
}

// NotFoundError reports a missing contact, group, template, run, scheduled message or webhook.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a NotFoundError for resource.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{Resource: resource, Message: message}
}

func (e *NotFoundError) Error() string {
	if e.Message == "" && e.Resource != "" {
		return e.Resource + " not found"
	}

	return messageOr(e.Message, "resource not found")
}

// Is matches any *NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ValidationError reports client input or a command that failed validation. Field is the
// JSON name of the offending field when there is one.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Message == "" && e.Field != "" {
		return "invalid " + e.Field
	}

	return messageOr(e.Message, "validation error")
}

// Is matches any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// LimitExceededError reports a request rejected by a configured limit (webhook count,
// recipients per run).
type LimitExceededError struct {
	Message string
}

// NewLimitExceededError creates a LimitExceededError.
func NewLimitExceededError(message string) *LimitExceededError {
	return &LimitExceededError{Message: message}
}

func (e *LimitExceededError) Error() string { return messageOr(e.Message, "limit exceeded") }

// Is matches any *LimitExceededError.
func (e *LimitExceededError) Is(target error) bool {
	_, ok := target.(*LimitExceededError)

	return ok
}

// ConflictError reports a duplicate (phone number, group name) or a state transition that
// is no longer allowed, such as cancelling a message that was already sent.
type ConflictError struct {
	Message string
}

// NewConflictError creates a ConflictError.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

func (e *ConflictError) Error() string { return messageOr(e.Message, "conflict") }

// Is matches any *ConflictError.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)

	return ok
}

// UpstreamError wraps a failure reported by the WhatsApp Cloud API or the SMS gateway.
// Retryable is set for transient conditions (rate limits, 5xx, timeouts).
type UpstreamError struct {
	Provider  string
	Message   string
	Retryable bool
}

// NewUpstreamError creates an UpstreamError for provider.
func NewUpstreamError(provider, message string, retryable bool) *UpstreamError {
	return &UpstreamError{Provider: provider, Message: message, Retryable: retryable}
}

func (e *UpstreamError) Error() string {
	msg := messageOr(e.Message, "upstream error")
	if e.Provider == "" {
		return msg
	}

	return e.Provider + ": " + msg
}

// Is matches any *UpstreamError.
func (e *UpstreamError) Is(target error) bool {
	_, ok := target.(*UpstreamError)

	return ok
}
