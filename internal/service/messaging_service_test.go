package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msgdesk/hub/internal/command"
	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/pkg/sms"
	"github.com/msgdesk/hub/pkg/whatsapp"
)

type messagingFixture struct {
	svc       *MessagingService
	messages  *fakeMessagesRepo
	sms       *fakeSMS
	whatsapp  *fakeWhatsApp
	publisher *capturingPublisher
	metrics   *countingMessagingMetrics
}

func newMessagingFixture(contacts ...models.Contact) *messagingFixture {
	f := &messagingFixture{
		messages:  &fakeMessagesRepo{},
		sms:       &fakeSMS{},
		whatsapp:  &fakeWhatsApp{},
		publisher: &capturingPublisher{},
		metrics:   newCountingMessagingMetrics(),
	}

	templates := newFakeTemplates(approvedTemplate("order_update", 2))
	f.svc = NewMessagingService(f.messages, newFakeContactsRepo(contacts...), templates,
		f.sms, f.whatsapp, f.publisher, f.metrics, "GB")

	return f
}

func TestMessagingService_SendSMS(t *testing.T) {
	ctx := context.Background()

	t.Run("sends, records history and publishes sms_message.sent", func(t *testing.T) {
		f := newMessagingFixture()

		msg, err := f.svc.SendSMS(ctx, &models.SendSMSRequest{Phone: "07400 123123", Body: "hello"})
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusSent, msg.Status)
		require.NotNil(t, msg.ProviderMessageID)
		assert.Equal(t, "sms-1", *msg.ProviderMessageID)

		require.Len(t, f.sms.sent, 1)
		assert.Equal(t, "+447400123123", f.sms.sent[0].To)
		assert.Equal(t, []datatypes.EventType{datatypes.SMSMessageSent}, f.publisher.types())
		assert.Equal(t, 1, f.metrics.messages["sms/sent"])
	})

	t.Run("resolves the phone of a contact", func(t *testing.T) {
		contact := models.Contact{ID: uuid.Must(uuid.NewV7()), Phone: "+447400123555"}
		f := newMessagingFixture(contact)

		msg, err := f.svc.SendSMS(ctx, &models.SendSMSRequest{ContactID: &contact.ID, Body: "hi"})
		require.NoError(t, err)
		assert.Equal(t, contact.Phone, msg.Phone)
		require.NotNil(t, msg.ContactID)
		assert.Equal(t, contact.ID, *msg.ContactID)
	})

	t.Run("refuses opted-out contacts", func(t *testing.T) {
		contact := models.Contact{ID: uuid.Must(uuid.NewV7()), Phone: "+447400123555", OptedOut: true}
		f := newMessagingFixture(contact)

		_, err := f.svc.SendSMS(ctx, &models.SendSMSRequest{ContactID: &contact.ID, Body: "hi"})
		require.ErrorIs(t, err, huberrors.ErrValidation)
		assert.Empty(t, f.sms.sent)
	})

	t.Run("requires a phone or contact", func(t *testing.T) {
		f := newMessagingFixture()

		_, err := f.svc.SendSMS(ctx, &models.SendSMSRequest{Body: "hi"})
		require.ErrorIs(t, err, huberrors.ErrValidation)
	})

	t.Run("gateway errors become retryable upstream errors and a failed row", func(t *testing.T) {
		f := newMessagingFixture()
		f.sms.err = &sms.Error{StatusCode: 503, Body: "maintenance"}

		_, err := f.svc.SendSMS(ctx, &models.SendSMSRequest{Phone: "+447400123123", Body: "hi"})
		require.ErrorIs(t, err, huberrors.ErrUpstream)

		var upstream *huberrors.UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.True(t, upstream.Retryable)
		assert.Equal(t, ProviderSMS, upstream.Provider)

		rows := f.messages.rows()
		require.Len(t, rows, 1)
		assert.Equal(t, models.MessageStatusFailed, rows[0].Status)
		assert.Equal(t, []datatypes.EventType{datatypes.SMSMessageFailed}, f.publisher.types())
		assert.Equal(t, 1, f.metrics.providerErrors[ProviderSMS])
	})

	t.Run("unconfigured gateway", func(t *testing.T) {
		svc := NewMessagingService(&fakeMessagesRepo{}, newFakeContactsRepo(), newFakeTemplates(),
			nil, nil, &capturingPublisher{}, nil, "")

		_, err := svc.SendSMS(ctx, &models.SendSMSRequest{Phone: "+447400123123", Body: "hi"})
		require.ErrorIs(t, err, huberrors.ErrUpstream)
	})

	t.Run("sent but not recorded is an error", func(t *testing.T) {
		f := newMessagingFixture()
		f.messages.err = errors.New("db down")

		_, err := f.svc.SendSMS(ctx, &models.SendSMSRequest{Phone: "+447400123123", Body: "hi"})
		require.ErrorIs(t, err, ErrSentNotRecorded)
		assert.Len(t, f.sms.sent, 1)
		assert.Empty(t, f.publisher.types())
	})
}

func TestMessagingService_SendTemplate(t *testing.T) {
	ctx := context.Background()

	t.Run("sends an approved template", func(t *testing.T) {
		f := newMessagingFixture()

		msg, err := f.svc.SendTemplate(ctx, &models.SendTemplateRequest{
			Phone:        "+447400123123",
			TemplateName: "order_update",
			LanguageCode: "en_US",
			Variables:    []string{"Ada", "#42"},
		})
		require.NoError(t, err)
		assert.Equal(t, models.ChannelWhatsApp, msg.Channel)
		require.NotNil(t, msg.ProviderMessageID)
		assert.Equal(t, "wamid.+447400123123", *msg.ProviderMessageID)
		assert.Equal(t, []string{"Ada", "#42"}, f.whatsapp.sent[0].BodyParameters)
		assert.Equal(t, []datatypes.EventType{datatypes.TemplateMessageSent}, f.publisher.types())
	})

	t.Run("variable count must match the template", func(t *testing.T) {
		f := newMessagingFixture()

		_, err := f.svc.SendTemplate(ctx, &models.SendTemplateRequest{
			Phone:        "+447400123123",
			TemplateName: "order_update",
			LanguageCode: "en_US",
			Variables:    []string{"Ada"},
		})
		require.ErrorIs(t, err, huberrors.ErrValidation)
		assert.Empty(t, f.whatsapp.sent)
	})

	t.Run("unknown template", func(t *testing.T) {
		f := newMessagingFixture()

		_, err := f.svc.SendTemplate(ctx, &models.SendTemplateRequest{
			Phone:        "+447400123123",
			TemplateName: "missing",
			LanguageCode: "en_US",
		})
		require.ErrorIs(t, err, huberrors.ErrNotFound)
	})

	t.Run("non retryable api error", func(t *testing.T) {
		f := newMessagingFixture()
		f.whatsapp.failFor = map[string]error{
			"+447400123123": &whatsapp.APIError{StatusCode: 400, Code: 131026, Message: "message undeliverable"},
		}

		_, err := f.svc.SendTemplate(ctx, &models.SendTemplateRequest{
			Phone:        "+447400123123",
			TemplateName: "order_update",
			LanguageCode: "en_US",
			Variables:    []string{"a", "b"},
		})

		var upstream *huberrors.UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.False(t, upstream.Retryable)
		assert.Equal(t, "message undeliverable", upstream.Message)
	})
}

func TestWhatsAppTemplateSender(t *testing.T) {
	ctx := context.Background()
	client := &fakeWhatsApp{failFor: map[string]error{
		"+447400123002": &whatsapp.APIError{StatusCode: 429, Code: 130429, Message: "throughput reached"},
	}}
	sender := NewWhatsAppTemplateSender(client)

	id, err := sender.SendTemplate(ctx, command.TemplateMessage{
		Phone:        "+447400123001",
		TemplateName: "order_update",
		LanguageCode: "en_US",
		Variables:    []string{"x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.+447400123001", id)

	_, err = sender.SendTemplate(ctx, command.TemplateMessage{Phone: "+447400123002", TemplateName: "order_update"})
	require.ErrorIs(t, err, huberrors.ErrUpstream)
}
