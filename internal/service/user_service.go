package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/models"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	SoftDelete(ctx context.Context, id string, ts time.Time) error
	Restore(ctx context.Context, id string, ts time.Time) error
}

type tokenRevoker interface {
	BlacklistAll(ctx context.Context, userID string) (int64, error)
}

type sessionRevoker interface {
	RevokeAll(ctx context.Context, userID string) (int64, error)
}

// UpdateUserRequest payload for updating users. IsActive and IsStaff are
// account-management fields and need the update_all grant.
type UpdateUserRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
	IsActive  *bool   `json:"is_active"`
	IsStaff   *bool   `json:"is_staff"`
}

func (r UpdateUserRequest) managesAccount() bool {
	return r.IsActive != nil || r.IsStaff != nil
}

// UserDetail is a user with its role names.
type UserDetail struct {
	models.User
	Roles []string `json:"roles"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	roles     userRoleLister
	tokens    tokenRevoker
	sessions  sessionRevoker
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, roles userRoleLister, tokens tokenRevoker, sessions sessionRevoker, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, roles: roles, tokens: tokens, sessions: sessions, audit: audit, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata. Soft-deleted users
// are never included.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}
	return users, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a user with its roles.
func (s *UserService) Get(ctx context.Context, id string) (*UserDetail, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "user not found", "failed to load user")
	}
	detail := &UserDetail{User: *user, Roles: []string{}}
	if s.roles != nil {
		roles, err := s.roles.ListRolesForUser(ctx, id)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load user roles")
		}
		for _, r := range roles {
			detail.Roles = append(detail.Roles, r.Name)
		}
	}
	return detail, nil
}

// Load returns the raw user record for object-level authorization.
func (s *UserService) Load(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "user not found", "failed to load user")
	}
	return user, nil
}

// Update applies req to the user. canManage reports whether the caller holds
// the update_all grant; without it only profile fields may change.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actor models.Actor, canManage bool) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if req.managesAccount() && !canManage {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions to change account status")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "user not found", "failed to load user")
	}
	if user.DeletedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	deactivated := false
	if req.IsActive != nil {
		deactivated = user.IsActive && !*req.IsActive
		user.IsActive = *req.IsActive
	}
	if req.IsStaff != nil {
		user.IsStaff = *req.IsStaff
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, notFoundOr(err, "user not found", "failed to update user")
	}
	if deactivated {
		s.revoke(ctx, user.ID)
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionUserUpdate, "users", user.ID, req)
	return user, nil
}

// SoftDelete deactivates the account, stamps deleted_at and revokes every
// token and session of the user.
func (s *UserService) SoftDelete(ctx context.Context, id string, actor models.Actor) error {
	if err := s.repo.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return notFoundOr(err, "user not found", "failed to delete user")
	}
	s.revoke(ctx, id)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionUserDelete, "users", id, nil)
	return nil
}

// Restore reactivates a soft-deleted account.
func (s *UserService) Restore(ctx context.Context, id string, actor models.Actor) (*models.User, error) {
	if err := s.repo.Restore(ctx, id, time.Now().UTC()); err != nil {
		return nil, notFoundOr(err, "deleted user not found", "failed to restore user")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionUserRestore, "users", id, nil)
	return s.Load(ctx, id)
}

func (s *UserService) revoke(ctx context.Context, userID string) {
	if s.tokens != nil {
		if _, err := s.tokens.BlacklistAll(ctx, userID); err != nil {
			s.logger.Warn("failed to revoke tokens", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if s.sessions != nil {
		if _, err := s.sessions.RevokeAll(ctx, userID); err != nil {
			s.logger.Warn("failed to revoke sessions", zap.String("user_id", userID), zap.Error(err))
		}
	}
}
