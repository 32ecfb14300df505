package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/command"
	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/internal/observability"
	"github.com/msgdesk/hub/pkg/phone"
	"github.com/msgdesk/hub/pkg/sms"
	"github.com/msgdesk/hub/pkg/whatsapp"
)

// Provider names used in errors and metrics.
const (
	ProviderSMS      = "sms"
	ProviderWhatsApp = "whatsapp"
)

// ErrSentNotRecorded is returned when the provider accepted a message but the history row could not
// be written. The message must not be sent again.
var ErrSentNotRecorded = errors.New("message sent but not recorded")

// MessagesRepository defines the interface for message history data access.
type MessagesRepository interface {
	Insert(ctx context.Context, msg *models.NewMessage) (*models.Message, error)
	List(ctx context.Context, filters *models.ListMessagesFilters) ([]models.Message, error)
	Count(ctx context.Context, filters *models.ListMessagesFilters) (int64, error)
}

// ContactGetter resolves a contact_id to a contact.
type ContactGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contact, error)
}

// SMSSender sends one SMS (e.g. *sms.Client).
type SMSSender interface {
	Send(ctx context.Context, msg sms.Message) (*sms.SendResponse, error)
}

// WhatsAppSender sends one template message (e.g. *whatsapp.Client).
type WhatsAppSender interface {
	SendTemplate(ctx context.Context, msg whatsapp.TemplateMessage) (*whatsapp.SendResponse, error)
}

// SendableTemplates resolves a template that may be sent.
type SendableTemplates interface {
	RequireSendable(ctx context.Context, name, language string) (*models.Template, error)
}

// MessagingService sends single SMS and template messages and records them in the history.
type MessagingService struct {
	messages    MessagesRepository
	contacts    ContactGetter
	templates   SendableTemplates
	sms         SMSSender
	whatsapp    WhatsAppSender
	publisher   MessagePublisher
	metrics     observability.MessagingMetrics
	region      string
}

// NewMessagingService creates a messaging service. smsSender or waSender is nil when the provider
// is not configured; metrics may be nil.
func NewMessagingService(
	messages MessagesRepository,
	contacts ContactGetter,
	templates SendableTemplates,
	smsSender SMSSender,
	waSender WhatsAppSender,
	publisher MessagePublisher,
	metrics observability.MessagingMetrics,
	defaultRegion string,
) *MessagingService {
	return &MessagingService{
		messages:    messages,
		contacts:    contacts,
		templates:   templates,
		sms:         smsSender,
		whatsapp:    waSender,
		publisher:   publisher,
		metrics:     metrics,
		region:      defaultRegion,
	}
}

// resolveRecipient returns the E.164 phone to send to. A contact_id wins over a raw phone;
// opted-out contacts are refused.
func (s *MessagingService) resolveRecipient(ctx context.Context, raw string, contactID *uuid.UUID) (string, *uuid.UUID, error) {
	if contactID != nil {
		contact, err := s.contacts.GetByID(ctx, *contactID)
		if err != nil {
			return "", nil, err
		}

		if contact.OptedOut {
			return "", nil, huberrors.NewValidationError("contact_id", "contact has opted out of messages")
		}

		return contact.Phone, &contact.ID, nil
	}

	if raw == "" {
		return "", nil, huberrors.NewValidationError("phone", "phone or contact_id is required")
	}

	normalized, err := phone.NormalizeForRegion(raw, s.region)
	if err != nil {
		return "", nil, huberrors.NewValidationError("phone", "phone must be an E.164 number or a national number")
	}

	return normalized, nil, nil
}

// SendSMS sends one SMS and stores it in the history.
func (s *MessagingService) SendSMS(ctx context.Context, req *models.SendSMSRequest) (*models.Message, error) {
	if s.sms == nil {
		return nil, huberrors.NewUpstreamError(ProviderSMS, "sms gateway is not configured", false)
	}

	to, contactID, err := s.resolveRecipient(ctx, req.Phone, req.ContactID)
	if err != nil {
		return nil, err
	}

	body := req.Body
	row := &models.NewMessage{
		ContactID: contactID,
		Channel:   models.ChannelSMS,
		Phone:     to,
		Body:      &body,
	}

	resp, sendErr := s.sms.Send(ctx, sms.Message{To: to, Body: body})
	if sendErr == nil {
		row.ProviderMessageID = &resp.ID
	}

	return s.record(ctx, row, sendErr, ProviderSMS, datatypes.SMSMessageSent, datatypes.SMSMessageFailed)
}

// SendTemplate sends one approved WhatsApp template and stores it in the history.
func (s *MessagingService) SendTemplate(ctx context.Context, req *models.SendTemplateRequest) (*models.Message, error) {
	if s.whatsapp == nil {
		return nil, huberrors.NewUpstreamError(ProviderWhatsApp, "whatsapp is not configured", false)
	}

	tmpl, err := s.templates.RequireSendable(ctx, req.TemplateName, req.LanguageCode)
	if err != nil {
		return nil, err
	}

	if len(req.Variables) != tmpl.ParameterCount {
		return nil, huberrors.NewValidationError("variables",
			fmt.Sprintf("template %s expects %d variables, got %d", tmpl.Name, tmpl.ParameterCount, len(req.Variables)))
	}

	to, contactID, err := s.resolveRecipient(ctx, req.Phone, req.ContactID)
	if err != nil {
		return nil, err
	}

	name := req.TemplateName
	row := &models.NewMessage{
		ContactID:    contactID,
		Channel:      models.ChannelWhatsApp,
		Phone:        to,
		TemplateName: &name,
	}

	resp, sendErr := s.whatsapp.SendTemplate(ctx, whatsapp.TemplateMessage{
		To:             to,
		TemplateName:   req.TemplateName,
		LanguageCode:   req.LanguageCode,
		BodyParameters: req.Variables,
	})
	if sendErr == nil {
		id := resp.MessageID()
		row.ProviderMessageID = &id
	}

	return s.record(ctx, row, sendErr, ProviderWhatsApp, datatypes.TemplateMessageSent, datatypes.TemplateMessageFailed)
}

// record stores the outcome of a send, publishes the matching event and returns the provider
// error as an UpstreamError when the send failed.
func (s *MessagingService) record(
	ctx context.Context, row *models.NewMessage, sendErr error, provider string, sentEvent, failedEvent datatypes.EventType,
) (*models.Message, error) {
	row.Status = models.MessageStatusSent
	if sendErr != nil {
		row.Status = models.MessageStatusFailed
		msg := sendErr.Error()
		row.Error = &msg
	}

	if s.metrics != nil {
		s.metrics.RecordMessage(ctx, string(row.Channel), string(row.Status))
	}

	// The history row is written with a context that survives client disconnects.
	msg, insertErr := s.messages.Insert(context.WithoutCancel(ctx), row)
	if insertErr != nil {
		slog.ErrorContext(ctx, "failed to record message history",
			"channel", row.Channel,
			"status", row.Status,
			"error", insertErr,
		)
	}

	if sendErr != nil {
		upstream := toUpstreamError(provider, sendErr)

		if s.metrics != nil {
			s.metrics.RecordProviderError(ctx, provider, upstream.Retryable)
		}

		if msg != nil {
			s.publisher.PublishEvent(ctx, failedEvent, msg)
		}

		return nil, upstream
	}

	if insertErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrSentNotRecorded, insertErr)
	}

	s.publisher.PublishEvent(ctx, sentEvent, msg)

	return msg, nil
}

// toUpstreamError classifies a provider client error.
func toUpstreamError(provider string, err error) *huberrors.UpstreamError {
	var (
		apiErr *whatsapp.APIError
		smsErr *sms.Error
	)

	switch {
	case errors.As(err, &apiErr):
		return huberrors.NewUpstreamError(provider, apiErr.Message, apiErr.Retryable())
	case errors.As(err, &smsErr):
		return huberrors.NewUpstreamError(provider, smsErr.Error(), smsErr.Retryable())
	case errors.Is(err, whatsapp.ErrNotConfigured):
		return huberrors.NewUpstreamError(provider, err.Error(), false)
	default:
		return huberrors.NewUpstreamError(provider, err.Error(), true)
	}
}

// ListMessages retrieves a page of the message history
func (s *MessagingService) ListMessages(ctx context.Context, filters *models.ListMessagesFilters) (*models.ListMessagesResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	messages, err := s.messages.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.messages.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListMessagesResponse{
		Data:   messages,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// WhatsAppTemplateSender adapts a WhatsApp client to the bulk send command.
type WhatsAppTemplateSender struct {
	client WhatsAppSender
}

// NewWhatsAppTemplateSender wraps client as a command.TemplateSender.
func NewWhatsAppTemplateSender(client WhatsAppSender) *WhatsAppTemplateSender {
	return &WhatsAppTemplateSender{client: client}
}

// SendTemplate implements command.TemplateSender.
func (w *WhatsAppTemplateSender) SendTemplate(ctx context.Context, msg command.TemplateMessage) (string, error) {
	resp, err := w.client.SendTemplate(ctx, whatsapp.TemplateMessage{
		To:             msg.Phone,
		TemplateName:   msg.TemplateName,
		LanguageCode:   msg.LanguageCode,
		BodyParameters: msg.Variables,
	})
	if err != nil {
		return "", toUpstreamError(ProviderWhatsApp, err)
	}

	return resp.MessageID(), nil
}

var _ command.TemplateSender = (*WhatsAppTemplateSender)(nil)
