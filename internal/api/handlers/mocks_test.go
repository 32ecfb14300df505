package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/models"
)

// newRequest builds a request with the given path values set, as the router would.
func newRequest(method, target, body string, pathValues map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}

	return req
}

type mockContactsService struct {
	createFn func(ctx context.Context, req *models.CreateContactRequest) (*models.Contact, error)
	getFn    func(ctx context.Context, id uuid.UUID, include string) (*models.ContactView, error)
	listFn   func(ctx context.Context, filters *models.ListContactsFilters) (*models.ListContactsResponse, error)
	deleteFn func(ctx context.Context, id uuid.UUID) error
}

func (m *mockContactsService) CreateContact(ctx context.Context, req *models.CreateContactRequest) (*models.Contact, error) {
	return m.createFn(ctx, req)
}

func (m *mockContactsService) GetContact(ctx context.Context, id uuid.UUID, include string) (*models.ContactView, error) {
	return m.getFn(ctx, id, include)
}

func (m *mockContactsService) ListContacts(ctx context.Context, filters *models.ListContactsFilters) (*models.ListContactsResponse, error) {
	return m.listFn(ctx, filters)
}

func (m *mockContactsService) UpdateContact(context.Context, uuid.UUID, *models.UpdateContactRequest) (*models.Contact, error) {
	return nil, nil
}

func (m *mockContactsService) DeleteContact(ctx context.Context, id uuid.UUID) error {
	return m.deleteFn(ctx, id)
}

type mockGroupsService struct {
	getFn          func(ctx context.Context, id uuid.UUID) (*models.ContactGroup, error)
	addMembersFn   func(ctx context.Context, groupID uuid.UUID, req *models.GroupMembersRequest) (*models.GroupMembersResponse, error)
	removeMemberFn func(ctx context.Context, groupID, contactID uuid.UUID) error
}

func (m *mockGroupsService) CreateGroup(context.Context, *models.CreateContactGroupRequest) (*models.ContactGroup, error) {
	return nil, nil
}

func (m *mockGroupsService) GetGroup(ctx context.Context, id uuid.UUID) (*models.ContactGroup, error) {
	return m.getFn(ctx, id)
}

func (m *mockGroupsService) ListGroups(context.Context, *models.ListContactGroupsFilters) (*models.ListContactGroupsResponse, error) {
	return nil, nil
}

func (m *mockGroupsService) UpdateGroup(context.Context, uuid.UUID, *models.UpdateContactGroupRequest) (*models.ContactGroup, error) {
	return nil, nil
}

func (m *mockGroupsService) DeleteGroup(context.Context, uuid.UUID) error {
	return nil
}

func (m *mockGroupsService) AddMembers(ctx context.Context, groupID uuid.UUID, req *models.GroupMembersRequest) (*models.GroupMembersResponse, error) {
	return m.addMembersFn(ctx, groupID, req)
}

func (m *mockGroupsService) RemoveMember(ctx context.Context, groupID, contactID uuid.UUID) error {
	return m.removeMemberFn(ctx, groupID, contactID)
}

type mockMessagingService struct {
	sendSMSFn      func(ctx context.Context, req *models.SendSMSRequest) (*models.Message, error)
	sendTemplateFn func(ctx context.Context, req *models.SendTemplateRequest) (*models.Message, error)
	listFn         func(ctx context.Context, filters *models.ListMessagesFilters) (*models.ListMessagesResponse, error)
}

func (m *mockMessagingService) SendSMS(ctx context.Context, req *models.SendSMSRequest) (*models.Message, error) {
	return m.sendSMSFn(ctx, req)
}

func (m *mockMessagingService) SendTemplate(ctx context.Context, req *models.SendTemplateRequest) (*models.Message, error) {
	return m.sendTemplateFn(ctx, req)
}

func (m *mockMessagingService) ListMessages(ctx context.Context, filters *models.ListMessagesFilters) (*models.ListMessagesResponse, error) {
	return m.listFn(ctx, filters)
}

type mockBulkSendsService struct {
	createFn  func(ctx context.Context, req *models.CreateBulkSendRequest) (*models.BulkSend, error)
	resultsFn func(ctx context.Context, id uuid.UUID, filters *models.ListMessagesFilters) (*models.ListMessagesResponse, error)
	cancelFn  func(ctx context.Context, id uuid.UUID) (*models.BulkSend, error)
}

func (m *mockBulkSendsService) CreateBulkSend(ctx context.Context, req *models.CreateBulkSendRequest) (*models.BulkSend, error) {
	return m.createFn(ctx, req)
}

func (m *mockBulkSendsService) GetBulkSend(context.Context, uuid.UUID) (*models.BulkSend, error) {
	return nil, nil
}

func (m *mockBulkSendsService) ListBulkSends(context.Context, *models.ListBulkSendsFilters) (*models.ListBulkSendsResponse, error) {
	return nil, nil
}

func (m *mockBulkSendsService) ListResults(
	ctx context.Context, id uuid.UUID, filters *models.ListMessagesFilters,
) (*models.ListMessagesResponse, error) {
	return m.resultsFn(ctx, id, filters)
}

func (m *mockBulkSendsService) CancelBulkSend(ctx context.Context, id uuid.UUID) (*models.BulkSend, error) {
	return m.cancelFn(ctx, id)
}

type mockScheduledService struct {
	createFn func(ctx context.Context, req *models.CreateScheduledMessageRequest) (*models.ScheduledMessage, error)
	cancelFn func(ctx context.Context, id uuid.UUID) (*models.ScheduledMessage, error)
}

func (m *mockScheduledService) CreateScheduledMessage(
	ctx context.Context, req *models.CreateScheduledMessageRequest,
) (*models.ScheduledMessage, error) {
	return m.createFn(ctx, req)
}

func (m *mockScheduledService) GetScheduledMessage(context.Context, uuid.UUID) (*models.ScheduledMessage, error) {
	return nil, nil
}

func (m *mockScheduledService) ListScheduledMessages(
	context.Context, *models.ListScheduledMessagesFilters,
) (*models.ListScheduledMessagesResponse, error) {
	return nil, nil
}

func (m *mockScheduledService) CancelScheduledMessage(ctx context.Context, id uuid.UUID) (*models.ScheduledMessage, error) {
	return m.cancelFn(ctx, id)
}

type mockTemplatesService struct {
	syncFn func(ctx context.Context) (*models.TemplateSyncResponse, error)
}

func (m *mockTemplatesService) SyncTemplates(ctx context.Context) (*models.TemplateSyncResponse, error) {
	return m.syncFn(ctx)
}

func (m *mockTemplatesService) GetTemplate(context.Context, uuid.UUID) (*models.Template, error) {
	return nil, nil
}

func (m *mockTemplatesService) ListTemplates(context.Context, *models.ListTemplatesFilters) (*models.ListTemplatesResponse, error) {
	return nil, nil
}

type mockWebhooksService struct {
	createFn func(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error)
}

func (m *mockWebhooksService) CreateWebhook(ctx context.Context, req *models.CreateWebhookRequest) (*models.Webhook, error) {
	return m.createFn(ctx, req)
}

func (m *mockWebhooksService) GetWebhook(context.Context, uuid.UUID) (*models.Webhook, error) {
	return nil, nil
}

func (m *mockWebhooksService) ListWebhooks(context.Context, *models.ListWebhooksFilters) (*models.ListWebhooksResponse, error) {
	return nil, nil
}

func (m *mockWebhooksService) UpdateWebhook(context.Context, uuid.UUID, *models.UpdateWebhookRequest) (*models.Webhook, error) {
	return nil, nil
}

func (m *mockWebhooksService) DeleteWebhook(context.Context, uuid.UUID) error {
	return nil
}

type dashboardFunc func(ctx context.Context) (*models.DashboardStats, error)

func (f dashboardFunc) GetStats(ctx context.Context) (*models.DashboardStats, error) { return f(ctx) }

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
