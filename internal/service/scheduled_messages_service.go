package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/models"
)

// ErrScheduledNotEnqueued is returned by DeliverScheduled for messages the poller has not handed over
// (cancelled, already sent or failed).
var ErrScheduledNotEnqueued = errors.New("scheduled message is not enqueued")

// ScheduledMessagesRepository defines the interface for scheduled messages data access.
type ScheduledMessagesRepository interface {
	Create(ctx context.Context, kind models.ScheduledKind, payload json.RawMessage, sendAt time.Time) (*models.ScheduledMessage, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledMessage, error)
	List(ctx context.Context, filters *models.ListScheduledMessagesFilters) ([]models.ScheduledMessage, error)
	Count(ctx context.Context, filters *models.ListScheduledMessagesFilters) (int64, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.ScheduledMessage, error)
	MarkSent(ctx context.Context, id uuid.UUID, bulkSendID *uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// SMSSending sends a single SMS.
type SMSSending interface {
	SendSMS(ctx context.Context, req *models.SendSMSRequest) (*models.Message, error)
}

// BulkSendCreating starts a bulk template send.
type BulkSendCreating interface {
	CreateBulkSend(ctx context.Context, req *models.CreateBulkSendRequest) (*models.BulkSend, error)
}

// ScheduledMessagesService stores deferred sends and delivers them once the poller enqueues them.
type ScheduledMessagesService struct {
	repo      ScheduledMessagesRepository
	sms       SMSSending
	bulk      BulkSendCreating
	publisher MessagePublisher
	now       func() time.Time
}

// NewScheduledMessagesService creates a scheduled messages service
func NewScheduledMessagesService(
	repo ScheduledMessagesRepository, sms SMSSending, bulk BulkSendCreating, publisher MessagePublisher,
) *ScheduledMessagesService {
	return &ScheduledMessagesService{repo: repo, sms: sms, bulk: bulk, publisher: publisher, now: time.Now}
}

// CreateScheduledMessage validates the payload for its kind and stores a pending message
func (s *ScheduledMessagesService) CreateScheduledMessage(
	ctx context.Context, req *models.CreateScheduledMessageRequest,
) (*models.ScheduledMessage, error) {
	if !req.SendAt.After(s.now()) {
		return nil, huberrors.NewValidationError("send_at", "send_at must be in the future")
	}

	var payload any

	switch req.Kind {
	case models.ScheduledKindSMS:
		if req.SMS == nil || req.BulkSend != nil {
			return nil, huberrors.NewValidationError("sms", "kind sms requires sms and no bulk_send")
		}

		if req.SMS.Phone == "" && req.SMS.ContactID == nil {
			return nil, huberrors.NewValidationError("sms.phone", "phone or contact_id is required")
		}

		payload = req.SMS
	case models.ScheduledKindBulkTemplate:
		if req.BulkSend == nil || req.SMS != nil {
			return nil, huberrors.NewValidationError("bulk_send", "kind bulk_template requires bulk_send and no sms")
		}

		if req.BulkSend.GroupID == nil && len(req.BulkSend.Recipients) == 0 {
			return nil, huberrors.NewValidationError("bulk_send.recipients", "either recipients or group_id is required")
		}

		payload = req.BulkSend
	default:
		return nil, huberrors.NewValidationError("kind", fmt.Sprintf("unknown kind %q", req.Kind))
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode scheduled payload: %w", err)
	}

	msg, err := s.repo.Create(ctx, req.Kind, raw, req.SendAt.UTC())
	if err != nil {
		return nil, err
	}

	s.publisher.PublishEvent(ctx, datatypes.ScheduledMessageCreated, msg)

	return msg, nil
}

// GetScheduledMessage retrieves a single scheduled message by ID
func (s *ScheduledMessagesService) GetScheduledMessage(ctx context.Context, id uuid.UUID) (*models.ScheduledMessage, error) {
	return s.repo.GetByID(ctx, id)
}

// ListScheduledMessages retrieves a page of scheduled messages
func (s *ScheduledMessagesService) ListScheduledMessages(
	ctx context.Context, filters *models.ListScheduledMessagesFilters,
) (*models.ListScheduledMessagesResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	msgs, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListScheduledMessagesResponse{
		Data:   msgs,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// CancelScheduledMessage cancels a message that is still pending
func (s *ScheduledMessagesService) CancelScheduledMessage(ctx context.Context, id uuid.UUID) (*models.ScheduledMessage, error) {
	msg, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishEvent(ctx, datatypes.ScheduledMessageCancelled, msg)

	return msg, nil
}

// DeliverScheduled performs an enqueued message: it sends the SMS or creates the bulk send.
// The returned id is the created bulk send, nil for SMS.
func (s *ScheduledMessagesService) DeliverScheduled(ctx context.Context, id uuid.UUID) (*uuid.UUID, error) {
	msg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if msg.Status != models.ScheduledStatusEnqueued {
		return nil, fmt.Errorf("%w: status is %s", ErrScheduledNotEnqueued, msg.Status)
	}

	switch msg.Kind {
	case models.ScheduledKindSMS:
		var req models.SendSMSRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return nil, huberrors.NewValidationError("payload", "stored sms payload is invalid: "+err.Error())
		}

		if _, err := s.sms.SendSMS(ctx, &req); err != nil {
			return nil, err
		}

		return nil, nil
	case models.ScheduledKindBulkTemplate:
		var req models.CreateBulkSendRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return nil, huberrors.NewValidationError("payload", "stored bulk_send payload is invalid: "+err.Error())
		}

		run, err := s.bulk.CreateBulkSend(ctx, &req)
		if err != nil {
			return nil, err
		}

		return &run.ID, nil
	default:
		return nil, huberrors.NewValidationError("kind", fmt.Sprintf("unknown kind %q", msg.Kind))
	}
}

// MarkDelivered records a successful delivery
func (s *ScheduledMessagesService) MarkDelivered(ctx context.Context, id uuid.UUID, bulkSendID *uuid.UUID) error {
	return s.repo.MarkSent(ctx, id, bulkSendID)
}

// MarkFailed records a delivery that will not be retried
func (s *ScheduledMessagesService) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.repo.MarkFailed(ctx, id, reason)
}
