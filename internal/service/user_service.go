package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-board-api/internal/models"
	appErrors "github.com/noah-isme/campus-board-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.UserRole) error
	Delete(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ChangeRoleRequest payload for promoting or demoting a user.
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,role"`
}

// UserService handles the admin user management workflows.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return models.ValidRole(strings.ToUpper(fl.Field().String()))
	})
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}

	return users, pagination, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// ChangeRole updates a user's role. Admins cannot demote themselves; the
// panel would otherwise lock its last administrator out.
func (s *UserService) ChangeRole(ctx context.Context, actorID, userID string, req ChangeRoleRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	if actorID == userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot change your own role")
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	newRole := models.UserRole(strings.ToUpper(req.Role))
	if user.Role == newRole {
		return user, nil
	}

	if err := s.repo.UpdateRole(ctx, userID, newRole); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}

	// Sessions issued under the old role keep their claims until expiry;
	// revoking refresh tokens bounds how long that window lasts.
	if err := s.repo.RevokeUserRefreshTokens(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after role change", zap.Error(err))
	}

	values, _ := json.Marshal(map[string]string{"from": string(user.Role), "to": string(newRole)})
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionRoleChange,
		Resource:   "users",
		ResourceID: &userID,
		OldValues:  []byte(`{"role":"` + string(user.Role) + `"}`),
		NewValues:  values,
	}); err != nil {
		s.logger.Warn("failed to record role change audit log", zap.Error(err))
	}

	user.Role = newRole
	return user, nil
}

// Delete deactivates a user account and revokes its sessions.
func (s *UserService) Delete(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot delete your own account")
	}

	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	if err := s.repo.RevokeUserRefreshTokens(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after delete", zap.Error(err))
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionUserDelete,
		Resource:   "users",
		ResourceID: &userID,
	}); err != nil {
		s.logger.Warn("failed to record user delete audit log", zap.Error(err))
	}

	return nil
}
