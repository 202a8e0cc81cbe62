package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/Baaaki/resource-hub/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// likeEscaper escapes LIKE wildcards so a search term only matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type ResourceRepository struct {
	db *gorm.DB
}

func NewResourceRepository(db *gorm.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) CreateResource(ctx context.Context, resource *models.Resource) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(resource).Error; err != nil {
			return err
		}
		return tx.Preload("CreatedBy").First(resource, resource.ID).Error
	})
}

// GetResourceByID returns (nil, nil) when the resource does not exist
func (r *ResourceRepository) GetResourceByID(ctx context.Context, id uint64) (*models.Resource, error) {
	var resource models.Resource
	err := r.db.WithContext(ctx).Preload("CreatedBy").First(&resource, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &resource, nil
}

// ListResources returns resources newest first. A non-empty search keeps only
// resources whose name contains it, ignoring case. PostgreSQL folds case with
// ILIKE; SQLite's LOWER and LIKE only fold ASCII, so on SQLite the match runs in Go.
func (r *ResourceRepository) ListResources(ctx context.Context, search string) ([]models.Resource, error) {
	query := r.db.WithContext(ctx).Preload("CreatedBy")

	inDatabase := r.db.Dialector.Name() == "postgres"
	if search != "" && inDatabase {
		pattern := "%" + likeEscaper.Replace(search) + "%"
		query = query.Where(`name ILIKE ? ESCAPE '\'`, pattern)
	}

	resources := []models.Resource{}
	if err := query.Order("created_at DESC").Order("id DESC").Find(&resources).Error; err != nil {
		return nil, err
	}

	if search == "" || inDatabase {
		return resources, nil
	}

	term := strings.ToLower(search)
	matched := resources[:0]
	for _, res := range resources {
		if strings.Contains(strings.ToLower(res.Name), term) {
			matched = append(matched, res)
		}
	}
	return matched, nil
}

// UpdateResource runs a locked read-modify-write. mutate receives the current
// row and returns the columns to write; an error from mutate aborts the
// transaction and is returned unchanged.
func (r *ResourceRepository) UpdateResource(
	ctx context.Context,
	id uint64,
	mutate func(current *models.Resource) (map[string]interface{}, error),
) (*models.Resource, error) {
	var resource models.Resource

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&resource, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		changes, err := mutate(&resource)
		if err != nil {
			return err
		}

		if err := tx.Model(&resource).Updates(changes).Error; err != nil {
			return err
		}

		return tx.Preload("CreatedBy").First(&resource, id).Error
	})
	if err != nil {
		return nil, err
	}

	return &resource, nil
}

// DeleteResource permanently removes a resource and returns the removed row
func (r *ResourceRepository) DeleteResource(ctx context.Context, id uint64) (*models.Resource, error) {
	var resource models.Resource

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&resource, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		result := tx.Delete(&models.Resource{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &resource, nil
}

// GetResourceByName returns (nil, nil) when no resource has exactly this name
func (r *ResourceRepository) GetResourceByName(ctx context.Context, name string) (*models.Resource, error) {
	var resource models.Resource
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&resource).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &resource, nil
}

func (r *ResourceRepository) CountResources(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Resource{}).Count(&count).Error
	return count, err
}
