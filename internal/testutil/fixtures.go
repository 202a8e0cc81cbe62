package testutil

import (
	"testing"
	"time"

	"github.com/Baaaki/resource-hub/internal/models"
	"github.com/Baaaki/resource-hub/internal/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateTestUser inserts a user with a hashed password and returns it
func CreateTestUser(t *testing.T, db *gorm.DB, username, email, password string, role models.Role) *models.User {
	t.Helper()

	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user %s: %v", email, err)
	}
	return user
}

// CreateRoleUsers inserts one admin, one staff and one regular user,
// all with the password "Test123456"
func CreateRoleUsers(t *testing.T, db *gorm.DB) (admin, staff, user *models.User) {
	t.Helper()

	admin = CreateTestUser(t, db, "admin", "admin@example.com", "Test123456", models.RoleAdmin)
	staff = CreateTestUser(t, db, "staff", "staff@example.com", "Test123456", models.RoleStaff)
	user = CreateTestUser(t, db, "user", "user@example.com", "Test123456", models.RoleUser)
	return admin, staff, user
}

// CreateTestResource inserts a resource owned by owner. createdAt is used for
// both timestamps so ordering tests can control it.
func CreateTestResource(t *testing.T, db *gorm.DB, owner *models.User, name, url string, createdAt time.Time) *models.Resource {
	t.Helper()

	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	resource := &models.Resource{
		Name:        name,
		URL:         url,
		Description: "Description of " + name,
		CreatedByID: owner.ID,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if err := db.Create(resource).Error; err != nil {
		t.Fatalf("Failed to create test resource %s: %v", name, err)
	}
	resource.CreatedBy = *owner
	return resource
}
