package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_RoundTrip(t *testing.T) {
	for _, s := range GetAllEventTypes() {
		et, ok := ParseEventType(s)
		require.True(t, ok, s)
		assert.Equal(t, s, et.String())
	}
}

func TestEventType_StringInvalid(t *testing.T) {
	assert.Empty(t, EventType(9999).String())
}

func TestParseEventTypes(t *testing.T) {
	t.Run("empty input returns nil", func(t *testing.T) {
		out, err := ParseEventTypes(nil)
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("valid list preserves order", func(t *testing.T) {
		out, err := ParseEventTypes([]string{"bulk_send.completed", "contact.created"})
		require.NoError(t, err)
		assert.Equal(t, []EventType{BulkSendCompleted, ContactCreated}, out)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := ParseEventTypes([]string{"bulk_send.exploded"})
		require.ErrorIs(t, err, ErrInvalidEventType)
	})

	t.Run("duplicate type", func(t *testing.T) {
		_, err := ParseEventTypes([]string{"contact.created", "contact.created"})
		require.ErrorIs(t, err, ErrDuplicateEventType)
	})

	t.Run("too long", func(t *testing.T) {
		_, err := ParseEventTypes([]string{strings.Repeat("a", maxEventTypeLen+1)})
		require.ErrorIs(t, err, ErrEventTypeTooLong)
	})
}

func TestEventTypeStrings(t *testing.T) {
	assert.Nil(t, EventTypeStrings(nil))
	assert.Equal(t,
		[]string{"template_message.sent", "webhook.deleted"},
		EventTypeStrings([]EventType{TemplateMessageSent, WebhookDeleted}),
	)
}
