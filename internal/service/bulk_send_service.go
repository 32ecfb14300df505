package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/msgdesk/hub/internal/command"
	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/events"
	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/jobs"
	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/internal/observability"
)

// BulkSendsRepository defines the interface for bulk send run data access.
type BulkSendsRepository interface {
	Create(ctx context.Context, run *models.NewBulkSend) (*models.BulkSend, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.BulkSend, error)
	GetWithRecipients(ctx context.Context, id uuid.UUID) (*models.BulkSend, error)
	List(ctx context.Context, filters *models.ListBulkSendsFilters) ([]models.BulkSend, error)
	Count(ctx context.Context, filters *models.ListBulkSendsFilters) (int64, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, p models.BulkSendProgress) error
	Complete(ctx context.Context, id uuid.UUID, status models.BulkSendStatus, p models.BulkSendProgress, lastError *string) error
	Cancel(ctx context.Context, id uuid.UUID) error
}

// AudienceRepository resolves bulk send recipients from contacts.
type AudienceRepository interface {
	ListGroupAudience(ctx context.Context, groupID uuid.UUID, limit int) ([]models.Contact, error)
	GetByPhones(ctx context.Context, phones []string) (map[string]models.Contact, error)
}

// BulkSendConfig holds the limits applied to every bulk send.
type BulkSendConfig struct {
	Limits        command.Limits
	DefaultDelay  time.Duration
	RateLimit     float64
	DefaultRegion string
}

// BulkSendService creates bulk template send runs, enqueues them and executes them from the worker.
type BulkSendService struct {
	repo      BulkSendsRepository
	audience  AudienceRepository
	templates SendableTemplates
	messages  MessagesRepository
	sender    command.TemplateSender
	inserter  jobs.JobInserter
	publisher MessagePublisher
	metrics   observability.MessagingMetrics
	cfg       BulkSendConfig
	limiter   *rate.Limiter
}

// NewBulkSendService creates a bulk send service. sender is nil when WhatsApp is not configured;
// metrics may be nil. The job inserter is set with SetJobInserter once the River client exists.
func NewBulkSendService(
	repo BulkSendsRepository,
	audience AudienceRepository,
	templates SendableTemplates,
	messages MessagesRepository,
	sender command.TemplateSender,
	publisher MessagePublisher,
	metrics observability.MessagingMetrics,
	cfg BulkSendConfig,
) *BulkSendService {
	s := &BulkSendService{
		repo:      repo,
		audience:  audience,
		templates: templates,
		messages:  messages,
		sender:    sender,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
	}

	// One limiter for the process: concurrent runs share the provider throughput.
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	return s
}

// SetJobInserter sets the inserter used to enqueue bulk send jobs.
func (s *BulkSendService) SetJobInserter(inserter jobs.JobInserter) {
	s.inserter = inserter
}

// CreateBulkSend validates the request, stores a pending run and enqueues its job.
func (s *BulkSendService) CreateBulkSend(ctx context.Context, req *models.CreateBulkSendRequest) (*models.BulkSend, error) {
	if s.sender == nil {
		return nil, huberrors.NewUpstreamError(ProviderWhatsApp, "whatsapp is not configured", false)
	}

	if s.inserter == nil {
		return nil, errors.New("bulk send job inserter is not set")
	}

	switch {
	case req.GroupID == nil && len(req.Recipients) == 0:
		return nil, huberrors.NewValidationError("recipients", "either recipients or group_id is required")
	case req.GroupID != nil && len(req.Recipients) > 0:
		return nil, huberrors.NewValidationError("recipients", "recipients and group_id are mutually exclusive")
	}

	tmpl, err := s.templates.RequireSendable(ctx, req.TemplateName, req.LanguageCode)
	if err != nil {
		return nil, err
	}

	recipients, err := s.resolveRecipients(ctx, req)
	if err != nil {
		return nil, err
	}

	cmd := s.newCommand(uuid.Nil, req.TemplateName, req.LanguageCode, recipients)
	if req.BatchSize != nil {
		cmd.BatchSize = *req.BatchSize
	}

	if req.DelayMS != nil {
		cmd.DelayBetweenBatches = time.Duration(*req.DelayMS) * time.Millisecond
	}

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	stored, err := s.planRecipients(ctx, cmd, tmpl)
	if err != nil {
		return nil, err
	}

	run, err := s.repo.Create(ctx, &models.NewBulkSend{
		TemplateName: cmd.TemplateName,
		LanguageCode: cmd.LanguageCode,
		GroupID:      req.GroupID,
		Recipients:   stored,
		BatchSize:    cmd.BatchSize,
		BatchDelayMS: cmd.DelayBetweenBatches.Milliseconds(),
		StopOnError:  req.StopOnError,
	})
	if err != nil {
		return nil, err
	}

	if err := s.inserter.InsertBulkSend(ctx, jobs.BulkSendArgs{BulkSendID: run.ID}); err != nil {
		reason := "enqueue failed: " + err.Error()
		if cerr := s.repo.Complete(context.WithoutCancel(ctx), run.ID, models.BulkSendStatusFailed, models.BulkSendProgress{}, &reason); cerr != nil {
			slog.ErrorContext(ctx, "failed to mark unqueued bulk send failed", "bulk_send_id", run.ID, "error", cerr)
		}

		return nil, fmt.Errorf("enqueue bulk send: %w", err)
	}

	slog.InfoContext(ctx, "bulk send created",
		"bulk_send_id", run.ID,
		"template", run.TemplateName,
		"recipients", run.TotalRecipients,
	)

	return run, nil
}

// resolveRecipients expands a group into recipients or applies the request-wide variables
// to explicit recipients.
func (s *BulkSendService) resolveRecipients(ctx context.Context, req *models.CreateBulkSendRequest) ([]command.Recipient, error) {
	if req.GroupID != nil {
		limit := s.cfg.Limits.MaxRecipients
		if limit <= 0 {
			limit = command.DefaultLimits().MaxRecipients
		}

		// One over the limit so an oversized group fails validation instead of being truncated.
		contacts, err := s.audience.ListGroupAudience(ctx, *req.GroupID, limit+1)
		if err != nil {
			return nil, err
		}

		if len(contacts) == 0 {
			return nil, huberrors.NewValidationError("group_id", "group has no contacts that accept messages")
		}

		out := make([]command.Recipient, len(contacts))
		for i := range contacts {
			id := contacts[i].ID
			out[i] = command.Recipient{Phone: contacts[i].Phone, ContactID: &id, Variables: req.Variables}
		}

		return out, nil
	}

	out := make([]command.Recipient, len(req.Recipients))
	for i, r := range req.Recipients {
		vars := r.Variables
		if len(vars) == 0 {
			vars = req.Variables
		}

		out[i] = command.Recipient{Phone: r.Phone, ContactID: r.ContactID, Variables: vars}
	}

	return out, nil
}

// planRecipients normalizes and deduplicates the recipients, drops opted-out contacts, links
// known contacts and checks every recipient fills the template placeholders.
func (s *BulkSendService) planRecipients(
	ctx context.Context, cmd *command.BulkSendTemplateCommand, tmpl *models.Template,
) ([]models.BulkSendRecipient, error) {
	recipients, invalid := cmd.Normalized()

	phones := make([]string, 0, len(recipients))
	for i, r := range recipients {
		if !invalid[i] {
			phones = append(phones, r.Phone)
		}
	}

	known, err := s.audience.GetByPhones(ctx, phones)
	if err != nil {
		return nil, err
	}

	out := make([]models.BulkSendRecipient, 0, len(recipients))
	accepted, optedOut := 0, 0

	for i, r := range recipients {
		// Invalid numbers stay in place so the run reports them as failed.
		if invalid[i] {
			out = append(out, models.BulkSendRecipient{Phone: r.Phone, ContactID: r.ContactID, Variables: r.Variables})

			continue
		}

		if c, ok := known[r.Phone]; ok {
			if c.OptedOut {
				optedOut++

				continue
			}

			if r.ContactID == nil {
				id := c.ID
				r.ContactID = &id
			}
		}

		if len(r.Variables) != tmpl.ParameterCount {
			return nil, huberrors.NewValidationError("variables",
				fmt.Sprintf("template %s expects %d variables, recipient %s has %d", tmpl.Name, tmpl.ParameterCount, r.Phone, len(r.Variables)))
		}

		accepted++
		out = append(out, models.BulkSendRecipient{Phone: r.Phone, ContactID: r.ContactID, Variables: r.Variables})
	}

	if accepted == 0 {
		return nil, huberrors.NewValidationError("recipients", "no recipient accepts messages")
	}

	if optedOut > 0 {
		slog.InfoContext(ctx, "opted-out recipients removed from bulk send", "count", optedOut)
	}

	return out, nil
}

func (s *BulkSendService) newCommand(
	runID uuid.UUID, templateName, languageCode string, recipients []command.Recipient,
) *command.BulkSendTemplateCommand {
	return &command.BulkSendTemplateCommand{
		RunID:               runID,
		TemplateName:        templateName,
		LanguageCode:        languageCode,
		Recipients:          recipients,
		DelayBetweenBatches: s.cfg.DefaultDelay,
		Limits:              s.cfg.Limits,
		DefaultRegion:       s.cfg.DefaultRegion,
		Limiter:             s.limiter,
	}
}

// ExecuteBulkSend runs a pending bulk send to completion. It is called by the bulk send worker.
// A run that is no longer pending yields a ConflictError and nothing is sent.
func (s *BulkSendService) ExecuteBulkSend(ctx context.Context, id uuid.UUID) (*command.BulkSendResult, error) {
	if s.sender == nil {
		return nil, huberrors.NewUpstreamError(ProviderWhatsApp, "whatsapp is not configured", false)
	}

	run, err := s.repo.GetWithRecipients(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.MarkRunning(ctx, id); err != nil {
		return nil, err
	}

	recipients := make([]command.Recipient, len(run.Recipients))
	for i, r := range run.Recipients {
		recipients[i] = command.Recipient{Phone: r.Phone, ContactID: r.ContactID, Variables: r.Variables}
	}

	cmd := s.newCommand(run.ID, run.TemplateName, run.LanguageCode, recipients)
	cmd.BatchSize = run.BatchSize
	cmd.DelayBetweenBatches = time.Duration(run.BatchDelayMS) * time.Millisecond
	cmd.StopOnError = run.StopOnError

	dispatcher := events.NewDispatcher()
	dispatcher.SubscribeAll(NewRunRecorder(s.repo, s.messages))
	dispatcher.SubscribeAll(NewPublisherBridge(s.publisher))

	if s.metrics != nil {
		dispatcher.SubscribeAll(NewMetricsListener(s.metrics))
	}

	result, runErr := cmd.Execute(ctx, s.sender, dispatcher)
	// The final state is stored even when the worker context was cancelled.
	storeCtx := context.WithoutCancel(ctx)

	if result == nil {
		reason := runErr.Error()
		if err := s.repo.Complete(storeCtx, id, models.BulkSendStatusFailed, models.BulkSendProgress{}, &reason); err != nil {
			slog.ErrorContext(ctx, "failed to store bulk send failure", "bulk_send_id", id, "error", err)
		}

		return nil, runErr
	}

	if err := s.repo.Complete(storeCtx, id, models.BulkSendStatus(result.Status()), progressOf(result), lastError(result)); err != nil {
		return result, fmt.Errorf("complete bulk send: %w", err)
	}

	slog.InfoContext(ctx, "bulk send finished",
		"bulk_send_id", id,
		"status", result.Status(),
		"sent", result.Sent(),
		"failed", result.Failed(),
		"skipped", result.Skipped(),
		"duration", result.Duration(),
	)

	return result, runErr
}

func progressOf(r *command.BulkSendResult) models.BulkSendProgress {
	return models.BulkSendProgress{
		Processed: r.Sent() + r.Failed() + r.Skipped(),
		Sent:      r.Sent(),
		Failed:    r.Failed(),
		Skipped:   r.Skipped(),
	}
}

// lastError returns the error of the last failed recipient, if any.
func lastError(r *command.BulkSendResult) *string {
	failed := r.FailedRecipients()
	if len(failed) == 0 {
		return nil
	}

	msg := failed[len(failed)-1].Error

	return &msg
}

// GetBulkSend retrieves a single run by ID
func (s *BulkSendService) GetBulkSend(ctx context.Context, id uuid.UUID) (*models.BulkSend, error) {
	return s.repo.GetByID(ctx, id)
}

// ListBulkSends retrieves a page of runs, newest first
func (s *BulkSendService) ListBulkSends(ctx context.Context, filters *models.ListBulkSendsFilters) (*models.ListBulkSendsResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	runs, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListBulkSendsResponse{
		Data:   runs,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// ListResults returns the message history rows written by a run
func (s *BulkSendService) ListResults(
	ctx context.Context, id uuid.UUID, filters *models.ListMessagesFilters,
) (*models.ListMessagesResponse, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	filters.BulkSendID = &id
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

// CancelBulkSend cancels a run that no worker has picked up yet. Running and finished runs yield a ConflictError.
func (s *BulkSendService) CancelBulkSend(ctx context.Context, id uuid.UUID) (*models.BulkSend, error) {
	if err := s.repo.Cancel(ctx, id); err != nil {
		return nil, err
	}

	run, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishEvent(ctx, datatypes.BulkSendCompleted, events.BulkSendCompleted{
		Base:         events.NewBase(run.ID),
		TemplateName: run.TemplateName,
		Result: events.RunSummary{
			Status:    string(run.Status),
			Total:     run.TotalRecipients,
			Skipped:   run.Skipped,
			Cancelled: true,
		},
	})

	return run, nil
}
