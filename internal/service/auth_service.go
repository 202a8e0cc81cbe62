package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/Baaaki/resource-hub/internal/models"
	"github.com/Baaaki/resource-hub/internal/repository"
	"github.com/Baaaki/resource-hub/internal/utils"
	"github.com/Baaaki/resource-hub/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmailAlreadyExists    = errors.New("email already exists")
	ErrUsernameAlreadyExists = errors.New("username already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUserNotFound          = errors.New("user not found")
	ErrInvalidRole           = errors.New("invalid role")
	ErrSelfModification      = errors.New("admins cannot change or delete their own account")

	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type AuthService struct {
	userRepo      *repository.UserRepository
	jwtSecret     string
	jwtExpiration time.Duration
	environment   string
}

func NewAuthService(userRepo *repository.UserRepository, jwtSecret string, jwtExpiration time.Duration, environment string) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		environment:   environment,
	}
}

// IsProduction returns true if running in production environment
func (s *AuthService) IsProduction() bool {
	return s.environment == "production"
}

// TokenTTL is how long issued tokens stay valid
func (s *AuthService) TokenTTL() time.Duration {
	return s.jwtExpiration
}

// Register creates a user with the user role. Elevated roles are only
// granted through ChangeRole.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	start := time.Now()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	logger.Log.Debug("Processing user registration",
		zap.String("username", in.Username),
		zap.String("email", in.Email),
	)

	if err := s.validateRegisterInput(in); err != nil {
		logger.Log.Warn("Registration validation failed",
			zap.String("username", in.Username),
			zap.String("email", in.Email),
			zap.Error(err),
		)
		return nil, "", err
	}

	existingUser, err := s.userRepo.GetUserByEmail(ctx, in.Email)
	if err != nil {
		logger.Log.Error("Failed to check email existence",
			zap.String("email", in.Email),
			zap.Error(err),
		)
		return nil, "", err
	}
	if existingUser != nil {
		logger.Log.Warn("Email already exists", zap.String("email", in.Email))
		return nil, "", ErrEmailAlreadyExists
	}

	existingUser, err = s.userRepo.GetUserByUsername(ctx, in.Username)
	if err != nil {
		logger.Log.Error("Failed to check username existence",
			zap.String("username", in.Username),
			zap.Error(err),
		)
		return nil, "", err
	}
	if existingUser != nil {
		logger.Log.Warn("Username already exists", zap.String("username", in.Username))
		return nil, "", ErrUsernameAlreadyExists
	}

	hashStart := time.Now()
	hashedPassword, err := utils.HashPassword(in.Password)
	if err != nil {
		logger.Log.Error("Failed to hash password", zap.Error(err))
		return nil, "", err
	}
	hashDuration := time.Since(hashStart)

	user := &models.User{
		ID:           uuid.New(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hashedPassword,
		Role:         models.RoleUser,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}

	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		logger.Log.Error("Failed to create user in database",
			zap.String("username", in.Username),
			zap.String("email", in.Email),
			zap.Error(err),
		)
		return nil, "", err
	}

	token, err := utils.GenerateToken(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		logger.Log.Error("Failed to generate JWT token",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return nil, "", err
	}

	logger.Log.Info("User registered successfully",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.Duration("hash_duration", hashDuration),
		zap.Duration("total_duration", time.Since(start)),
	)

	return user, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	start := time.Now()
	email = strings.ToLower(strings.TrimSpace(email))

	logger.Log.Debug("Processing user login", zap.String("email", email))

	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		logger.Log.Error("Failed to get user by email",
			zap.String("email", email),
			zap.Error(err),
		)
		return nil, "", err
	}
	if user == nil {
		logger.Log.Warn("Login failed: user not found", zap.String("email", email))
		return nil, "", ErrInvalidCredentials
	}

	verifyStart := time.Now()
	valid, err := utils.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		logger.Log.Error("Failed to verify password",
			zap.String("email", email),
			zap.Error(err),
		)
		return nil, "", err
	}
	verifyDuration := time.Since(verifyStart)

	if !valid {
		logger.Log.Warn("Login failed: invalid password",
			zap.String("email", email),
			zap.String("user_id", user.ID.String()),
		)
		return nil, "", ErrInvalidCredentials
	}

	token, err := utils.GenerateToken(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		logger.Log.Error("Failed to generate JWT token",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return nil, "", err
	}

	logger.Log.Info("User logged in successfully",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
		zap.Duration("password_verify_duration", verifyDuration),
		zap.Duration("total_duration", time.Since(start)),
	)

	return user, token, nil
}

// GetUserByID loads the current state of a user. The auth middleware uses it
// so role changes and deletions take effect on the next request.
func (s *AuthService) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		logger.Log.Error("Failed to get user by id",
			zap.String("user_id", id.String()),
			zap.Error(err),
		)
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// RegistrationError reports registration input the client must correct
type RegistrationError struct {
	Reason string
}

func (e *RegistrationError) Error() string { return e.Reason }

func (s *AuthService) validateRegisterInput(in RegisterInput) error {
	if len(in.Username) < 3 {
		return &RegistrationError{Reason: "username must be at least 3 characters"}
	}
	if len(in.Username) > 50 {
		return &RegistrationError{Reason: "username must be at most 50 characters"}
	}

	if !emailRegex.MatchString(in.Email) {
		return &RegistrationError{Reason: "invalid email format"}
	}
	if len(in.Email) > 100 {
		return &RegistrationError{Reason: "email too long"}
	}

	if len(in.Password) < 8 {
		return &RegistrationError{Reason: "password must be at least 8 characters"}
	}
	if len(in.Password) > 128 {
		return &RegistrationError{Reason: "password too long"}
	}

	if len(in.FirstName) > 150 || len(in.LastName) > 150 {
		return &RegistrationError{Reason: "name too long"}
	}

	return nil
}

// GetAllUsers returns all users, newest first
func (s *AuthService) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.userRepo.GetAllUsers(ctx)
	if err != nil {
		logger.Log.Error("Failed to fetch all users", zap.Error(err))
		return nil, err
	}

	logger.Log.Debug("Fetched all users", zap.Int("count", len(users)))

	return users, nil
}

// ChangeRole assigns a new role to a user. The role must be one of the
// closed set; admins cannot change their own role.
func (s *AuthService) ChangeRole(ctx context.Context, adminID uuid.UUID, userID, role string) (*models.User, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		logger.Log.Warn("Invalid user ID format",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, ErrUserNotFound
	}

	newRole, err := models.ParseRole(role)
	if err != nil {
		logger.Log.Warn("Rejected role change",
			zap.String("user_id", userID),
			zap.String("role", role),
		)
		return nil, ErrInvalidRole
	}

	if uid == adminID {
		return nil, ErrSelfModification
	}

	if err := s.userRepo.UpdateRole(ctx, uid, newRole); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		logger.Log.Error("Failed to update role",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Log.Info("User role changed",
		zap.String("user_id", userID),
		zap.String("role", string(newRole)),
		zap.String("admin_id", adminID.String()),
	)

	return s.GetUserByID(ctx, uid)
}

// DeleteUser removes a user and every resource they created.
// It returns the number of resources removed with them.
func (s *AuthService) DeleteUser(ctx context.Context, adminID uuid.UUID, userID string) (int64, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		logger.Log.Warn("Invalid user ID format",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return 0, ErrUserNotFound
	}

	if uid == adminID {
		return 0, ErrSelfModification
	}

	removed, err := s.userRepo.DeleteUser(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		logger.Log.Error("Failed to delete user",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return 0, err
	}

	logger.Log.Info("User deleted",
		zap.String("user_id", userID),
		zap.String("admin_id", adminID.String()),
		zap.Int64("resources_removed", removed),
	)

	return removed, nil
}
