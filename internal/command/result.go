// Package command holds user-initiated operations with their validation and execution
// logic, and the immutable results they produce.
package command

import (
	"encoding/json"
	"maps"
	"slices"
)

// CommandResult is the outcome of a command.
type CommandResult struct {
	success bool
	message string
	data    map[string]any
	errors  []string
}

// NewSuccessResult creates a successful result. data is copied.
func NewSuccessResult(message string, data map[string]any) CommandResult {
	return CommandResult{success: true, message: message, data: maps.Clone(data)}
}

// NewFailureResult creates a failed result.
func NewFailureResult(message string, errs ...string) CommandResult {
	return CommandResult{message: message, errors: slices.Clone(errs)}
}

// Success reports whether the command succeeded.
func (r CommandResult) Success() bool { return r.success }

// Message returns the human-readable summary.
func (r CommandResult) Message() string { return r.message }

// Data returns a copy of the result payload.
func (r CommandResult) Data() map[string]any { return maps.Clone(r.data) }

// Errors returns a copy of the error messages.
func (r CommandResult) Errors() []string { return slices.Clone(r.errors) }

// MarshalJSON renders the result for API responses.
func (r CommandResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data,omitempty"`
		Errors  []string       `json:"errors,omitempty"`
	}{r.success, r.message, r.data, r.errors})
}
