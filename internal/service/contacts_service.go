package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/huberrors"
	"github.com/msgdesk/hub/internal/loaders"
	"github.com/msgdesk/hub/internal/models"
	"github.com/msgdesk/hub/pkg/phone"
)

// ContactsRepository defines the interface for contacts data access.
type ContactsRepository interface {
	Create(ctx context.Context, req *models.CreateContactRequest) (*models.Contact, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contact, error)
	List(ctx context.Context, filters *models.ListContactsFilters) ([]models.Contact, error)
	Count(ctx context.Context, filters *models.ListContactsFilters) (int64, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateContactRequest) (*models.Contact, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ContactsService handles business logic for contacts
type ContactsService struct {
	repo      ContactsRepository
	publisher MessagePublisher
	loaders   *loaders.Factory
	region    string
}

// NewContactsService creates a new contacts service. factory builds loaders for calls made outside
// an HTTP request (which carries its own); it may be nil, in which case includes are ignored there.
func NewContactsService(
	repo ContactsRepository, publisher MessagePublisher, factory *loaders.Factory, defaultRegion string,
) *ContactsService {
	return &ContactsService{repo: repo, publisher: publisher, loaders: factory, region: defaultRegion}
}

func (s *ContactsService) normalizePhone(raw string) (string, error) {
	normalized, err := phone.NormalizeForRegion(raw, s.region)
	if err != nil {
		if errors.Is(err, phone.ErrInvalid) {
			return "", huberrors.NewValidationError("phone", "phone must be an E.164 number or a national number")
		}

		return "", err
	}

	return normalized, nil
}

// CreateContact normalizes the phone number and creates a contact
func (s *ContactsService) CreateContact(ctx context.Context, req *models.CreateContactRequest) (*models.Contact, error) {
	normalized, err := s.normalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	req.Phone = normalized

	contact, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishEvent(ctx, datatypes.ContactCreated, contact)

	return contact, nil
}

// GetContact retrieves a single contact with the requested relations
func (s *ContactsService) GetContact(ctx context.Context, id uuid.UUID, include string) (*models.ContactView, error) {
	inc, err := parseIncludes(include)
	if err != nil {
		return nil, err
	}

	contact, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	views, err := s.expand(ctx, []models.Contact{*contact}, inc)
	if err != nil {
		return nil, err
	}

	return &views[0], nil
}

// ListContacts retrieves a page of contacts with optional filters and relations
func (s *ContactsService) ListContacts(ctx context.Context, filters *models.ListContactsFilters) (*models.ListContactsResponse, error) {
	inc, err := parseIncludes(filters.Include)
	if err != nil {
		return nil, err
	}

	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	contacts, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	views, err := s.expand(ctx, contacts, inc)
	if err != nil {
		return nil, err
	}

	return &models.ListContactsResponse{
		Data:   views,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// expand batches relation loads for the whole page through the request's loaders.
func (s *ContactsService) expand(ctx context.Context, contacts []models.Contact, inc models.Includes) ([]models.ContactView, error) {
	l := loaders.FromContext(ctx)
	if l == nil && inc.Any() && s.loaders != nil {
		l = s.loaders.New()
	}

	if l == nil || !inc.Any() {
		views := make([]models.ContactView, len(contacts))
		for i := range contacts {
			views[i] = models.ContactView{Contact: contacts[i]}
		}

		return views, nil
	}

	return l.ExpandContacts(ctx, contacts, inc)
}

func parseIncludes(raw string) (models.Includes, error) {
	inc, err := models.ParseIncludes(raw)
	if err != nil {
		return models.Includes{}, huberrors.NewValidationError("include", err.Error())
	}

	return inc, nil
}

// UpdateContact updates an existing contact and publishes contact.updated with the changed fields
func (s *ContactsService) UpdateContact(ctx context.Context, id uuid.UUID, req *models.UpdateContactRequest) (*models.Contact, error) {
	if req.Phone != nil {
		normalized, err := s.normalizePhone(*req.Phone)
		if err != nil {
			return nil, err
		}

		req.Phone = &normalized
	}

	contact, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishEventWithChangedFields(ctx, datatypes.ContactUpdated, contact, contactChangedFields(req))

	return contact, nil
}

func contactChangedFields(req *models.UpdateContactRequest) []string {
	var fields []string

	if req.Phone != nil {
		fields = append(fields, "phone")
	}

	if req.Name != nil {
		fields = append(fields, "name")
	}

	if req.Email != nil {
		fields = append(fields, "email")
	}

	if req.Attributes != nil {
		fields = append(fields, "attributes")
	}

	if req.OptedOut != nil {
		fields = append(fields, "opted_out")
	}

	return fields
}

// DeleteContact deletes a contact by ID
func (s *ContactsService) DeleteContact(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publisher.PublishEvent(ctx, datatypes.ContactDeleted, map[string]uuid.UUID{"id": id})

	return nil
}
