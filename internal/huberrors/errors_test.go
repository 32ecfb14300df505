package huberrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found with message", NewNotFoundError("contact", "contact not found"), "contact not found"},
		{"not found from resource", NewNotFoundError("group", ""), "group not found"},
		{"not found bare", &NotFoundError{}, "resource not found"},
		{"validation with message", NewValidationError("phone", "phone must be E.164"), "phone must be E.164"},
		{"validation from field", NewValidationError("batch_size", ""), "invalid batch_size"},
		{"limit exceeded", &LimitExceededError{}, "limit exceeded"},
		{"conflict", NewConflictError("bulk send is not pending"), "bulk send is not pending"},
		{"upstream", NewUpstreamError("whatsapp", "template paused", false), "whatsapp: template paused"},
		{"upstream without provider", &UpstreamError{}, "upstream error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestSentinelsMatchWrappedErrors(t *testing.T) {
	err := fmt.Errorf("send: %w", NewUpstreamError("sms", "gateway unavailable", true))

	assert.ErrorIs(t, err, ErrUpstream)
	assert.NotErrorIs(t, err, ErrNotFound)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.True(t, upstream.Retryable)

	assert.ErrorIs(t, fmt.Errorf("get: %w", NewNotFoundError("template", "")), ErrNotFound)
	assert.ErrorIs(t, NewValidationError("name", "required"), ErrValidation)
	assert.ErrorIs(t, NewLimitExceededError("too many webhooks"), ErrLimitExceeded)
	assert.ErrorIs(t, NewConflictError("duplicate phone"), ErrConflict)
	assert.False(t, errors.Is(ErrConflict, ErrValidation))
}
