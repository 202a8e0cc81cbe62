// Package seed loads the demo accounts and sample resources used for manual
// testing. Running it again only fills in what is missing.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/Baaaki/resource-hub/internal/models"
	"github.com/Baaaki/resource-hub/internal/repository"
	"github.com/Baaaki/resource-hub/internal/utils"
	"github.com/Baaaki/resource-hub/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type userSeed struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      models.Role
}

type resourceSeed struct {
	Name        string
	URL         string
	Description string
	OwnerEmail  string
}

var users = []userSeed{
	{"admin", "admin@example.com", "admin123", "Admin", "User", models.RoleAdmin},
	{"staff", "staff@example.com", "staff123", "Staff", "Member", models.RoleStaff},
	{"user", "user@example.com", "user123", "Regular", "User", models.RoleUser},
}

var resources = []resourceSeed{
	{"Django Documentation", "https://docs.djangoproject.com/",
		"Official Django documentation with comprehensive guides, tutorials, and API reference.", "admin@example.com"},
	{"Django REST Framework", "https://www.django-rest-framework.org/",
		"Powerful and flexible toolkit for building Web APIs in Django applications.", "staff@example.com"},
	{"Python Official Website", "https://www.python.org/",
		"The official Python programming language website with downloads, documentation, and community resources.", "admin@example.com"},
	{"MDN Web Docs", "https://developer.mozilla.org/",
		"Comprehensive web development documentation covering HTML, CSS, JavaScript, and web APIs.", "staff@example.com"},
	{"GitHub", "https://github.com/",
		"Web-based version control and collaboration platform for software development projects.", "admin@example.com"},
	{"Stack Overflow", "https://stackoverflow.com/",
		"Question and answer site for professional and enthusiast programmers.", "staff@example.com"},
	{"VS Code", "https://code.visualstudio.com/",
		"Free, open-source code editor with built-in support for debugging, Git control, and extensions.", "admin@example.com"},
	{"Bootstrap", "https://getbootstrap.com/",
		"Popular CSS framework for developing responsive and mobile-first websites.", "staff@example.com"},
}

// Report lists what a run created
type Report struct {
	UsersCreated     []string
	ResourcesCreated []string
}

// Run gets or creates every seed user by email and every seed resource by
// name. Existing rows are left untouched.
func Run(ctx context.Context, userRepo *repository.UserRepository, resourceRepo *repository.ResourceRepository) (*Report, error) {
	report := &Report{}
	owners := make(map[string]*models.User, len(users))

	for _, u := range users {
		user, created, err := getOrCreateUser(ctx, userRepo, u)
		if err != nil {
			return report, err
		}
		owners[u.Email] = user
		if created {
			report.UsersCreated = append(report.UsersCreated, user.Email)
			logger.Log.Info("Seed user created",
				zap.String("email", user.Email),
				zap.String("role", string(user.Role)),
			)
		}
	}

	for _, r := range resources {
		existing, err := resourceRepo.GetResourceByName(ctx, r.Name)
		if err != nil {
			return report, fmt.Errorf("look up resource %q: %w", r.Name, err)
		}
		if existing != nil {
			continue
		}

		now := time.Now().UTC().Truncate(time.Microsecond)
		resource := &models.Resource{
			Name:        r.Name,
			URL:         r.URL,
			Description: r.Description,
			CreatedByID: owners[r.OwnerEmail].ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := resourceRepo.CreateResource(ctx, resource); err != nil {
			return report, fmt.Errorf("create resource %q: %w", r.Name, err)
		}
		report.ResourcesCreated = append(report.ResourcesCreated, resource.Name)
		logger.Log.Info("Seed resource created", zap.String("name", resource.Name))
	}

	return report, nil
}

func getOrCreateUser(ctx context.Context, userRepo *repository.UserRepository, u userSeed) (*models.User, bool, error) {
	existing, err := userRepo.GetUserByEmail(ctx, u.Email)
	if err != nil {
		return nil, false, fmt.Errorf("look up user %s: %w", u.Email, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	hash, err := utils.HashPassword(u.Password)
	if err != nil {
		return nil, false, fmt.Errorf("hash password for %s: %w", u.Email, err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: hash,
		Role:         u.Role,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
	}
	if err := userRepo.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create user %s: %w", u.Email, err)
	}
	return user, true, nil
}

// Credentials returns the demo logins as "email / password" lines
func Credentials() []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, fmt.Sprintf("%s: %s / %s", u.Role, u.Email, u.Password))
	}
	return out
}
