package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/msgdesk/hub/internal/datatypes"
	"github.com/msgdesk/hub/internal/models"
)

// GroupsRepository defines the interface for contact groups data access.
type GroupsRepository interface {
	Create(ctx context.Context, req *models.CreateContactGroupRequest) (*models.ContactGroup, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ContactGroup, error)
	List(ctx context.Context, filters *models.ListContactGroupsFilters) ([]models.ContactGroup, error)
	Count(ctx context.Context, filters *models.ListContactGroupsFilters) (int64, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateContactGroupRequest) (*models.ContactGroup, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddMembers(ctx context.Context, groupID uuid.UUID, contactIDs []uuid.UUID) (int64, error)
	RemoveMember(ctx context.Context, groupID, contactID uuid.UUID) error
}

// GroupsService handles business logic for contact groups
type GroupsService struct {
	repo      GroupsRepository
	publisher MessagePublisher
}

// NewGroupsService creates a new groups service
func NewGroupsService(repo GroupsRepository, publisher MessagePublisher) *GroupsService {
	return &GroupsService{repo: repo, publisher: publisher}
}

// CreateGroup creates a new contact group
func (s *GroupsService) CreateGroup(ctx context.Context, req *models.CreateContactGroupRequest) (*models.ContactGroup, error) {
	group, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishEvent(ctx, datatypes.ContactGroupCreated, group)

	return group, nil
}

// GetGroup retrieves a single group by ID
func (s *GroupsService) GetGroup(ctx context.Context, id uuid.UUID) (*models.ContactGroup, error) {
	return s.repo.GetByID(ctx, id)
}

// ListGroups retrieves a page of groups
func (s *GroupsService) ListGroups(ctx context.Context, filters *models.ListContactGroupsFilters) (*models.ListContactGroupsResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	groups, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListContactGroupsResponse{
		Data:   groups,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// UpdateGroup updates a group and publishes contact_group.updated
func (s *GroupsService) UpdateGroup(ctx context.Context, id uuid.UUID, req *models.UpdateContactGroupRequest) (*models.ContactGroup, error) {
	group, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	var fields []string
	if req.Name != nil {
		fields = append(fields, "name")
	}

	if req.Description != nil {
		fields = append(fields, "description")
	}

	s.publisher.PublishEventWithChangedFields(ctx, datatypes.ContactGroupUpdated, group, fields)

	return group, nil
}

// DeleteGroup deletes a group; its contacts are kept
func (s *GroupsService) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publisher.PublishEvent(ctx, datatypes.ContactGroupDeleted, map[string]uuid.UUID{"id": id})

	return nil
}

// AddMembers adds contacts to a group. Existing memberships are ignored.
func (s *GroupsService) AddMembers(ctx context.Context, groupID uuid.UUID, req *models.GroupMembersRequest) (*models.GroupMembersResponse, error) {
	added, err := s.repo.AddMembers(ctx, groupID, req.ContactIDs)
	if err != nil {
		return nil, err
	}

	if added > 0 {
		s.publishMembersChanged(ctx, groupID)
	}

	return &models.GroupMembersResponse{Added: added}, nil
}

// RemoveMember removes one contact from a group
func (s *GroupsService) RemoveMember(ctx context.Context, groupID, contactID uuid.UUID) error {
	if err := s.repo.RemoveMember(ctx, groupID, contactID); err != nil {
		return err
	}

	s.publishMembersChanged(ctx, groupID)

	return nil
}

func (s *GroupsService) publishMembersChanged(ctx context.Context, groupID uuid.UUID) {
	group, err := s.repo.GetByID(ctx, groupID)
	if err != nil {
		slog.WarnContext(ctx, "skipping contact_group.updated event", "group_id", groupID, "error", err)

		return
	}

	s.publisher.PublishEventWithChangedFields(ctx, datatypes.ContactGroupUpdated, group, []string{"members"})
}
