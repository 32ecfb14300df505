package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/jobs"
	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/pkg/sms"
	"github.com/msgdesk/hub/pkg/whatsapp"
)

// fakeContactsRepo keeps contacts in memory.
type fakeContactsRepo struct {
	mu       sync.Mutex
	contacts map[uuid.UUID]models.Contact
	order    []uuid.UUID
}

func newFakeContactsRepo(contacts ...models.Contact) *fakeContactsRepo {
	r := &fakeContactsRepo{contacts: map[uuid.UUID]models.Contact{}}
	for _, c := range contacts {
		r.contacts[c.ID] = c
		r.order = append(r.order, c.ID)
	}

	return r
}

func (r *fakeContactsRepo) Create(_ context.Context, req *models.CreateContactRequest) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.contacts {
		if c.Phone == req.Phone {
			return nil, huberrors.NewConflictError("a contact with this phone number already exists")
		}
	}

	c := models.Contact{ID: uuid.Must(uuid.NewV7()), Phone: req.Phone, Name: req.Name, Email: req.Email}
	if req.OptedOut != nil {
		c.OptedOut = *req.OptedOut
	}

	r.contacts[c.ID] = c
	r.order = append(r.order, c.ID)

	return &c, nil
}

func (r *fakeContactsRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contacts[id]
	if !ok {
		return nil, huberrors.NewNotFoundError("contact", "contact not found")
	}

	return &c, nil
}

func (r *fakeContactsRepo) List(_ context.Context, _ *models.ListContactsFilters) ([]models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Contact, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.contacts[id])
	}

	return out, nil
}

func (r *fakeContactsRepo) Count(_ context.Context, _ *models.ListContactsFilters) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return int64(len(r.contacts)), nil
}

func (r *fakeContactsRepo) Update(_ context.Context, id uuid.UUID, req *models.UpdateContactRequest) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contacts[id]
	if !ok {
		return nil, huberrors.NewNotFoundError("contact", "contact not found")
	}

	if req.Phone != nil {
		c.Phone = *req.Phone
	}

	if req.Name != nil {
		c.Name = *req.Name
	}

	if req.OptedOut != nil {
		c.OptedOut = *req.OptedOut
	}

	r.contacts[id] = c

	return &c, nil
}

func (r *fakeContactsRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.contacts[id]; !ok {
		return huberrors.NewNotFoundError("contact", "contact not found")
	}

	delete(r.contacts, id)

	return nil
}

// ListGroupAudience returns every contact that has not opted out; the fake has no memberships.
func (r *fakeContactsRepo) ListGroupAudience(_ context.Context, _ uuid.UUID, limit int) ([]models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Contact

	for _, id := range r.order {
		c, ok := r.contacts[id]
		if !ok || c.OptedOut {
			continue
		}

		if len(out) == limit {
			break
		}

		out = append(out, c)
	}

	return out, nil
}

func (r *fakeContactsRepo) GetByPhones(_ context.Context, phones []string) (map[string]models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := map[string]models.Contact{}

	for _, p := range phones {
		for _, c := range r.contacts {
			if c.Phone == p {
				out[p] = c
			}
		}
	}

	return out, nil
}

// fakeMessagesRepo records inserted history rows.
type fakeMessagesRepo struct {
	mu       sync.Mutex
	inserted []models.NewMessage
	err      error
	filters  []*models.ListMessagesFilters
}

func (r *fakeMessagesRepo) Insert(_ context.Context, msg *models.NewMessage) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	r.inserted = append(r.inserted, *msg)

	return &models.Message{
		ID:                uuid.Must(uuid.NewV7()),
		ContactID:         msg.ContactID,
		BulkSendID:        msg.BulkSendID,
		Channel:           msg.Channel,
		Phone:             msg.Phone,
		Body:              msg.Body,
		TemplateName:      msg.TemplateName,
		Status:            msg.Status,
		ProviderMessageID: msg.ProviderMessageID,
		Error:             msg.Error,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

func (r *fakeMessagesRepo) List(_ context.Context, filters *models.ListMessagesFilters) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.filters = append(r.filters, filters)

	return []models.Message{}, nil
}

func (r *fakeMessagesRepo) Count(_ context.Context, _ *models.ListMessagesFilters) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return int64(len(r.inserted)), nil
}

func (r *fakeMessagesRepo) rows() []models.NewMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]models.NewMessage(nil), r.inserted...)
}

// fakeTemplates serves RequireSendable from a fixed set.
type fakeTemplates struct {
	templates map[TemplateKey]*models.Template
}

func newFakeTemplates(ts ...*models.Template) *fakeTemplates {
	f := &fakeTemplates{templates: map[TemplateKey]*models.Template{}}
	for _, t := range ts {
		f.templates[TemplateKey{Name: t.Name, Language: t.Language}] = t
	}

	return f
}

func (f *fakeTemplates) RequireSendable(_ context.Context, name, language string) (*models.Template, error) {
	t, ok := f.templates[TemplateKey{Name: name, Language: language}]
	if !ok {
		return nil, huberrors.NewNotFoundError("template", "template not found")
	}

	if !t.Sendable() {
		return nil, huberrors.NewValidationError("template_name", "template is not approved")
	}

	return t, nil
}

func approvedTemplate(name string, params int) *models.Template {
	return &models.Template{
		ID:             uuid.Must(uuid.NewV7()),
		Name:           name,
		Language:       "en_US",
		Status:         models.TemplateStatusApproved,
		ParameterCount: params,
	}
}

// fakeSMS records SMS sends.
type fakeSMS struct {
	mu   sync.Mutex
	sent []sms.Message
	err  error
}

func (f *fakeSMS) Send(_ context.Context, msg sms.Message) (*sms.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	f.sent = append(f.sent, msg)

	return &sms.SendResponse{ID: "sms-1", Status: "queued"}, nil
}

// fakeWhatsApp records template sends; failFor lists recipients that are rejected.
type fakeWhatsApp struct {
	mu      sync.Mutex
	sent    []whatsapp.TemplateMessage
	failFor map[string]error
}

func (f *fakeWhatsApp) SendTemplate(_ context.Context, msg whatsapp.TemplateMessage) (*whatsapp.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failFor[msg.To]; ok {
		return nil, err
	}

	f.sent = append(f.sent, msg)

	var resp whatsapp.SendResponse
	if err := json.Unmarshal([]byte(`{"messages":[{"id":"wamid.`+msg.To+`"}]}`), &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (f *fakeWhatsApp) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.To
	}

	return out
}

// fakeBulkSendsRepo keeps runs in memory with the same state rules as the database.
type fakeBulkSendsRepo struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*models.BulkSend
	progress  []models.BulkSendProgress
	completed map[uuid.UUID]*string
}

func newFakeBulkSendsRepo() *fakeBulkSendsRepo {
	return &fakeBulkSendsRepo{runs: map[uuid.UUID]*models.BulkSend{}, completed: map[uuid.UUID]*string{}}
}

func (r *fakeBulkSendsRepo) Create(_ context.Context, run *models.NewBulkSend) (*models.BulkSend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := &models.BulkSend{
		ID:              uuid.Must(uuid.NewV7()),
		TemplateName:    run.TemplateName,
		LanguageCode:    run.LanguageCode,
		GroupID:         run.GroupID,
		Status:          models.BulkSendStatusPending,
		TotalRecipients: len(run.Recipients),
		BatchSize:       run.BatchSize,
		BatchDelayMS:    run.BatchDelayMS,
		StopOnError:     run.StopOnError,
		Recipients:      run.Recipients,
	}
	r.runs[b.ID] = b

	out := *b

	return &out, nil
}

func (r *fakeBulkSendsRepo) get(id uuid.UUID) (*models.BulkSend, error) {
	b, ok := r.runs[id]
	if !ok {
		return nil, huberrors.NewNotFoundError("bulk send", "bulk send not found")
	}

	return b, nil
}

func (r *fakeBulkSendsRepo) GetByID(_ context.Context, id uuid.UUID) (*models.BulkSend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.get(id)
	if err != nil {
		return nil, err
	}

	out := *b
	out.Recipients = nil

	return &out, nil
}

func (r *fakeBulkSendsRepo) GetWithRecipients(_ context.Context, id uuid.UUID) (*models.BulkSend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.get(id)
	if err != nil {
		return nil, err
	}

	out := *b

	return &out, nil
}

func (r *fakeBulkSendsRepo) List(_ context.Context, _ *models.ListBulkSendsFilters) ([]models.BulkSend, error) {
	return []models.BulkSend{}, nil
}

func (r *fakeBulkSendsRepo) Count(_ context.Context, _ *models.ListBulkSendsFilters) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return int64(len(r.runs)), nil
}

func (r *fakeBulkSendsRepo) MarkRunning(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.get(id)
	if err != nil {
		return err
	}

	if b.Status != models.BulkSendStatusPending {
		return huberrors.NewConflictError("bulk send is not pending")
	}

	b.Status = models.BulkSendStatusRunning

	return nil
}

func (r *fakeBulkSendsRepo) UpdateProgress(_ context.Context, _ uuid.UUID, p models.BulkSendProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress = append(r.progress, p)

	return nil
}

func (r *fakeBulkSendsRepo) Complete(
	_ context.Context, id uuid.UUID, status models.BulkSendStatus, p models.BulkSendProgress, lastError *string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.get(id)
	if err != nil {
		return err
	}

	b.Status = status
	b.Processed, b.Sent, b.Failed, b.Skipped = p.Processed, p.Sent, p.Failed, p.Skipped
	b.LastError = lastError
	r.completed[id] = lastError

	return nil
}

func (r *fakeBulkSendsRepo) Cancel(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := r.get(id)
	if err != nil {
		return err
	}

	if b.Status != models.BulkSendStatusPending {
		return huberrors.NewConflictError("only pending bulk sends can be cancelled")
	}

	b.Status = models.BulkSendStatusCancelled
	b.Skipped = b.TotalRecipients

	return nil
}

func (r *fakeBulkSendsRepo) status(id uuid.UUID) models.BulkSendStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.runs[id].Status
}

// fakeJobInserter records enqueued jobs.
type fakeJobInserter struct {
	mu        sync.Mutex
	bulk      []jobs.BulkSendArgs
	scheduled []jobs.ScheduledSendArgs
	err       error
}

func (f *fakeJobInserter) InsertBulkSend(_ context.Context, args jobs.BulkSendArgs) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.bulk = append(f.bulk, args)

	return nil
}

func (f *fakeJobInserter) InsertScheduledSendsTx(_ context.Context, _ pgx.Tx, args []jobs.ScheduledSendArgs) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return 0, f.err
	}

	f.scheduled = append(f.scheduled, args...)

	return len(args), nil
}

// countingMessagingMetrics counts MessagingMetrics calls.
type countingMessagingMetrics struct {
	mu             sync.Mutex
	messages       map[string]int
	providerErrors map[string]int
	runs           map[string]int
	batches        int
	synced         int
}

func newCountingMessagingMetrics() *countingMessagingMetrics {
	return &countingMessagingMetrics{
		messages:       map[string]int{},
		providerErrors: map[string]int{},
		runs:           map[string]int{},
	}
}

func (m *countingMessagingMetrics) RecordMessage(_ context.Context, channel, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages[channel+"/"+status]++
}

func (m *countingMessagingMetrics) RecordProviderError(_ context.Context, provider string, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providerErrors[provider]++
}

func (m *countingMessagingMetrics) RecordBulkRun(_ context.Context, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[status]++
}

func (m *countingMessagingMetrics) RecordBatchDuration(_ context.Context, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches++
}

func (m *countingMessagingMetrics) RecordScheduledEnqueued(_ context.Context, _ int) {}

func (m *countingMessagingMetrics) RecordTemplatesSynced(_ context.Context, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.synced += count
}
