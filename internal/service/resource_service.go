package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Baaaki/resource-hub/internal/audit"
	"github.com/Baaaki/resource-hub/internal/events"
	"github.com/Baaaki/resource-hub/internal/metrics"
	"github.com/Baaaki/resource-hub/internal/models"
	"github.com/Baaaki/resource-hub/internal/permission"
	"github.com/Baaaki/resource-hub/internal/repository"
	"github.com/Baaaki/resource-hub/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrResourceNotFound = errors.New("resource not found")
)

// Caller is the authenticated identity a request runs as
type Caller struct {
	UserID uuid.UUID
	Role   models.Role
}

// ResourceInput holds the client-controlled fields of a resource.
// A nil field was absent from the request.
type ResourceInput struct {
	Name        *string `json:"name"`
	URL         *string `json:"url"`
	Description *string `json:"description"`
}

// resourceFields is ResourceInput after trimming and validation
type resourceFields struct {
	Name        string `json:"name" validate:"required,max=200"`
	URL         string `json:"url" validate:"required,max=200,weburl"`
	Description string `json:"description" validate:"required"`
}

type ResourceService struct {
	resourceRepo *repository.ResourceRepository
	journal      *audit.Journal
	publisher    events.Publisher
	validate     *validator.Validate
}

// NewResourceService wires the store and the change side channels.
// journal may be nil; a nil publisher drops events.
func NewResourceService(
	resourceRepo *repository.ResourceRepository,
	journal *audit.Journal,
	publisher events.Publisher,
) *ResourceService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ResourceService{
		resourceRepo: resourceRepo,
		journal:      journal,
		publisher:    publisher,
		validate:     newValidator(),
	}
}

// List returns resources newest first, optionally filtered by a
// case-insensitive substring of the name. The term is used as given.
func (s *ResourceService) List(ctx context.Context, caller Caller, search string) ([]models.Resource, error) {
	if err := s.authorize(caller, permission.ActionRead); err != nil {
		return nil, err
	}

	resources, err := s.resourceRepo.ListResources(ctx, search)
	if err != nil {
		logger.Log.Error("Failed to list resources",
			zap.String("search", search),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Log.Debug("Listed resources",
		zap.String("search", search),
		zap.Int("count", len(resources)),
	)

	return resources, nil
}

func (s *ResourceService) Get(ctx context.Context, caller Caller, id uint64) (*models.Resource, error) {
	if err := s.authorize(caller, permission.ActionRead); err != nil {
		return nil, err
	}

	resource, err := s.resourceRepo.GetResourceByID(ctx, id)
	if err != nil {
		logger.Log.Error("Failed to get resource",
			zap.Uint64("resource_id", id),
			zap.Error(err),
		)
		return nil, err
	}
	if resource == nil {
		return nil, ErrResourceNotFound
	}

	return resource, nil
}

// Create validates the client fields first, then stamps owner and timestamps
// from the caller and the clock. Client-sent owner or timestamps never reach here.
func (s *ResourceService) Create(ctx context.Context, caller Caller, in ResourceInput) (*models.Resource, error) {
	if err := s.authorize(caller, permission.ActionCreate); err != nil {
		return nil, err
	}

	fields, err := s.prepare(in, nil)
	if err != nil {
		logger.Log.Warn("Resource validation failed",
			zap.String("user_id", caller.UserID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	resource := &models.Resource{
		Name:        fields.Name,
		URL:         fields.URL,
		Description: fields.Description,
		CreatedByID: caller.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.resourceRepo.CreateResource(ctx, resource); err != nil {
		logger.Log.Error("Failed to create resource",
			zap.String("user_id", caller.UserID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Log.Info("Resource created",
		zap.Uint64("resource_id", resource.ID),
		zap.String("name", resource.Name),
		zap.String("user_id", caller.UserID.String()),
	)

	s.recordChange(ctx, events.ResourceCreated, resource, caller)

	return resource, nil
}

// Update replaces name, url and description of a resource. With partial set,
// absent fields keep their current value; otherwise every field is required.
// Owner and created_at never change, updated_at always moves forward.
func (s *ResourceService) Update(
	ctx context.Context,
	caller Caller,
	id uint64,
	in ResourceInput,
	partial bool,
) (*models.Resource, error) {
	if err := s.authorize(caller, permission.ActionUpdate); err != nil {
		return nil, err
	}

	resource, err := s.resourceRepo.UpdateResource(ctx, id, func(current *models.Resource) (map[string]interface{}, error) {
		var base *models.Resource
		if partial {
			base = current
		}

		fields, err := s.prepare(in, base)
		if err != nil {
			return nil, err
		}

		return map[string]interface{}{
			"name":        fields.Name,
			"url":         fields.URL,
			"description": fields.Description,
			"updated_at":  nextUpdatedAt(current.UpdatedAt),
		}, nil
	})
	if err != nil {
		var ve *ValidationError
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrResourceNotFound
		case errors.As(err, &ve):
			logger.Log.Warn("Resource validation failed",
				zap.Uint64("resource_id", id),
				zap.Error(err),
			)
			return nil, ve
		}
		logger.Log.Error("Failed to update resource",
			zap.Uint64("resource_id", id),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Log.Info("Resource updated",
		zap.Uint64("resource_id", resource.ID),
		zap.String("user_id", caller.UserID.String()),
		zap.Bool("partial", partial),
	)

	s.recordChange(ctx, events.ResourceUpdated, resource, caller)

	return resource, nil
}

func (s *ResourceService) Delete(ctx context.Context, caller Caller, id uint64) error {
	if err := s.authorize(caller, permission.ActionDelete); err != nil {
		return err
	}

	resource, err := s.resourceRepo.DeleteResource(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResourceNotFound
		}
		logger.Log.Error("Failed to delete resource",
			zap.Uint64("resource_id", id),
			zap.Error(err),
		)
		return err
	}

	logger.Log.Info("Resource deleted",
		zap.Uint64("resource_id", id),
		zap.String("user_id", caller.UserID.String()),
	)

	s.recordChange(ctx, events.ResourceDeleted, resource, caller)

	return nil
}

// Authorize runs the permission gate alone. Handlers call it before reading a
// request body so a refused caller never sees validation feedback.
func (s *ResourceService) Authorize(caller Caller, action permission.Action) error {
	return s.authorize(caller, action)
}

func (s *ResourceService) authorize(caller Caller, action permission.Action) error {
	if permission.Check(caller.Role, action) {
		return nil
	}

	metrics.PermissionDeniedTotal.WithLabelValues(string(action), string(caller.Role)).Inc()
	logger.Log.Warn("Permission denied",
		zap.String("user_id", caller.UserID.String()),
		zap.String("role", string(caller.Role)),
		zap.String("action", string(action)),
	)
	return ErrPermissionDenied
}

// prepare turns untrusted input into validated fields. current supplies the
// value of absent fields; when nil, absent fields are reported as required.
func (s *ResourceService) prepare(in ResourceInput, current *models.Resource) (resourceFields, error) {
	missing := map[string]string{}

	pick := func(name string, val *string, fallback func() string) string {
		if val != nil {
			return strings.TrimSpace(*val)
		}
		if current != nil {
			return fallback()
		}
		missing[name] = msgRequired
		return ""
	}

	fields := resourceFields{
		Name:        pick("name", in.Name, func() string { return current.Name }),
		URL:         pick("url", in.URL, func() string { return current.URL }),
		Description: pick("description", in.Description, func() string { return current.Description }),
	}

	problems := map[string]string{}
	if err := s.validate.Struct(fields); err != nil {
		problems = fieldMessages(err)
	}
	for name, msg := range missing {
		problems[name] = msg
	}

	if len(problems) > 0 {
		return resourceFields{}, &ValidationError{Fields: problems}
	}
	return fields, nil
}

// recordChange writes the audit entry and publishes the change event.
// Failures are logged and never returned.
func (s *ResourceService) recordChange(ctx context.Context, typ events.EventType, resource *models.Resource, caller Caller) {
	now := time.Now().UTC()
	action := strings.TrimPrefix(string(typ), "resource.")

	metrics.ResourceMutationsTotal.WithLabelValues(action).Inc()

	if s.journal != nil {
		entry := audit.Entry{
			Action:     action,
			ResourceID: resource.ID,
			Name:       resource.Name,
			ActorID:    caller.UserID.String(),
			ActorRole:  string(caller.Role),
			Timestamp:  now,
		}
		if err := s.journal.Append(entry); err != nil {
			logger.Log.Error("Failed to append audit entry",
				zap.Uint64("resource_id", resource.ID),
				zap.Error(err),
			)
		}
	}

	evt := events.Event{
		Type:       typ,
		ResourceID: resource.ID,
		Name:       resource.Name,
		URL:        resource.URL,
		ActorID:    caller.UserID.String(),
		Timestamp:  now,
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		logger.Log.Warn("Failed to publish resource event",
			zap.String("type", string(typ)),
			zap.Uint64("resource_id", resource.ID),
			zap.Error(err),
		)
	}
}

// nextUpdatedAt returns the current time, or one microsecond past prev when
// the clock has not moved beyond it. Microseconds match PostgreSQL precision.
func nextUpdatedAt(prev time.Time) time.Time {
	now := time.Now().UTC().Truncate(time.Microsecond)
	floor := prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	if now.Before(floor) {
		return floor
	}
	return now
}
