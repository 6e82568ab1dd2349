package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/internal/repository"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
)

type policyStore interface {
	ListRoles(ctx context.Context) ([]models.Role, error)
	FindRoleByID(ctx context.Context, id string) (*models.Role, error)
	FindRoleByName(ctx context.Context, name string) (*models.Role, error)
	CreateRole(ctx context.Context, role *models.Role) error
	UpdateRole(ctx context.Context, role *models.Role) error
	DeleteRole(ctx context.Context, id string) error
	ListElements(ctx context.Context) ([]models.BusinessElement, error)
	FindElementByID(ctx context.Context, id string) (*models.BusinessElement, error)
	FindElementByName(ctx context.Context, name string) (*models.BusinessElement, error)
	CreateElement(ctx context.Context, element *models.BusinessElement) error
	UpdateElement(ctx context.Context, element *models.BusinessElement) error
	DeleteElement(ctx context.Context, id string) error
	ListRules(ctx context.Context, filter repository.RuleFilter) ([]models.AccessRule, error)
	FindRuleByID(ctx context.Context, id string) (*models.AccessRule, error)
	UpsertRule(ctx context.Context, rule *models.AccessRule) (bool, error)
	DeleteRule(ctx context.Context, id string) error
	ListRolesForUser(ctx context.Context, userID string) ([]models.Role, error)
	AssignRole(ctx context.Context, userID, roleID string) (bool, error)
	RevokeRole(ctx context.Context, userID, roleID string) error
}

type policyInvalidator interface {
	Invalidate(ctx context.Context) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// PolicyService manages roles, business elements, access rules and role
// assignments. Every write invalidates the policy cache.
type PolicyService struct {
	store     policyStore
	users     tokenUserReader
	cache     policyInvalidator
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
	guestRole string
}

// NewPolicyService constructs a PolicyService.
func NewPolicyService(store policyStore, users tokenUserReader, cache policyInvalidator, audit auditWriter, validate *validator.Validate, logger *zap.Logger, guestRole string) *PolicyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if guestRole == "" {
		guestRole = models.RoleGuest
	}
	return &PolicyService{store: store, users: users, cache: cache, audit: audit, validator: validate, logger: logger, guestRole: guestRole}
}

// ListRoles returns every role.
func (s *PolicyService) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list roles")
	}
	return roles, nil
}

// CreateRole adds a role.
func (s *PolicyService) CreateRole(ctx context.Context, input models.RoleInput, actor models.Actor) (*models.Role, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	name := strings.TrimSpace(input.Name)
	if err := s.ensureRoleNameFree(ctx, name, ""); err != nil {
		return nil, err
	}
	role := &models.Role{Name: name, Description: input.Description}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, appErrors.Internal(err, "failed to create role")
	}
	s.afterWrite(ctx, actor, models.AuditActionPolicyWrite, "roles", role.ID, role)
	return role, nil
}

// UpdateRole renames a role.
func (s *PolicyService) UpdateRole(ctx context.Context, id string, input models.RoleInput, actor models.Actor) (*models.Role, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	role, err := s.store.FindRoleByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "role not found", "failed to load role")
	}
	name := strings.TrimSpace(input.Name)
	if role.Name == s.guestRole && name != s.guestRole {
		return nil, appErrors.Clone(appErrors.ErrConflict, "the guest role cannot be renamed")
	}
	if err := s.ensureRoleNameFree(ctx, name, role.ID); err != nil {
		return nil, err
	}
	role.Name, role.Description = name, input.Description
	if err := s.store.UpdateRole(ctx, role); err != nil {
		return nil, notFoundOr(err, "role not found", "failed to update role")
	}
	s.afterWrite(ctx, actor, models.AuditActionPolicyWrite, "roles", role.ID, role)
	return role, nil
}

// DeleteRole removes a role, its rules and its assignments. The guest role is
// required at runtime and cannot be deleted.
func (s *PolicyService) DeleteRole(ctx context.Context, id string, actor models.Actor) error {
	role, err := s.store.FindRoleByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "role not found", "failed to load role")
	}
	if role.Name == s.guestRole {
		return appErrors.Clone(appErrors.ErrConflict, "the guest role cannot be deleted")
	}
	if err := s.store.DeleteRole(ctx, id); err != nil {
		return notFoundOr(err, "role not found", "failed to delete role")
	}
	s.afterWrite(ctx, actor, models.AuditActionPolicyDelete, "roles", id, role)
	return nil
}

// ListElements returns every business element.
func (s *PolicyService) ListElements(ctx context.Context) ([]models.BusinessElement, error) {
	elements, err := s.store.ListElements(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list elements")
	}
	return elements, nil
}

// CreateElement adds a business element.
func (s *PolicyService) CreateElement(ctx context.Context, input models.ElementInput, actor models.Actor) (*models.BusinessElement, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid element payload")
	}
	name := strings.TrimSpace(input.Name)
	if _, err := s.store.FindElementByName(ctx, name); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "element already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check element")
	}
	element := &models.BusinessElement{Name: name, Description: input.Description}
	if err := s.store.CreateElement(ctx, element); err != nil {
		return nil, appErrors.Internal(err, "failed to create element")
	}
	s.afterWrite(ctx, actor, models.AuditActionPolicyWrite, "business_elements", element.ID, element)
	return element, nil
}

// UpdateElement changes an element's description. Built-in elements keep
// their names because routes reference them.
func (s *PolicyService) UpdateElement(ctx context.Context, id string, input models.ElementInput, actor models.Actor) (*models.BusinessElement, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid element payload")
	}
	element, err := s.store.FindElementByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "element not found", "failed to load element")
	}
	name := strings.TrimSpace(input.Name)
	if isBuiltinElement(element.Name) && name != element.Name {
		return nil, appErrors.Clone(appErrors.ErrConflict, "built-in elements cannot be renamed")
	}
	element.Name, element.Description = name, input.Description
	if err := s.store.UpdateElement(ctx, element); err != nil {
		return nil, notFoundOr(err, "element not found", "failed to update element")
	}
	s.afterWrite(ctx, actor, models.AuditActionPolicyWrite, "business_elements", element.ID, element)
	return element, nil
}

// DeleteElement removes an element and its rules.
func (s *PolicyService) DeleteElement(ctx context.Context, id string, actor models.Actor) error {
	element, err := s.store.FindElementByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "element not found", "failed to load element")
	}
	if isBuiltinElement(element.Name) {
		return appErrors.Clone(appErrors.ErrConflict, "built-in elements cannot be deleted")
	}
	if err := s.store.DeleteElement(ctx, id); err != nil {
		return notFoundOr(err, "element not found", "failed to delete element")
	}
	s.afterWrite(ctx, actor, models.AuditActionPolicyDelete, "business_elements", id, element)
	return nil
}

// ListRules returns rules, optionally filtered by role or element.
func (s *PolicyService) ListRules(ctx context.Context, filter repository.RuleFilter) ([]models.AccessRule, error) {
	rules, err := s.store.ListRules(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list access rules")
	}
	return rules, nil
}

// PutRule creates or replaces the flags of one (role, element) pair.
func (s *PolicyService) PutRule(ctx context.Context, input models.RuleInput, actor models.Actor) (*models.AccessRule, bool, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rule payload")
	}
	if _, err := s.store.FindRoleByID(ctx, input.RoleID); err != nil {
		return nil, false, notFoundOr(err, "role not found", "failed to load role")
	}
	if _, err := s.store.FindElementByID(ctx, input.ElementID); err != nil {
		return nil, false, notFoundOr(err, "element not found", "failed to load element")
	}
	rule := &models.AccessRule{RoleID: input.RoleID, ElementID: input.ElementID}
	input.RuleFlags.Apply(rule)
	created, err := s.store.UpsertRule(ctx, rule)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to save access rule")
	}
	s.afterWrite(ctx, actor, models.AuditActionPolicyWrite, "access_rules", rule.ID, rule)
	return rule, created, nil
}

// DeleteRule removes a rule; the pair then grants nothing.
func (s *PolicyService) DeleteRule(ctx context.Context, id string, actor models.Actor) error {
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return notFoundOr(err, "access rule not found", "failed to delete access rule")
	}
	s.afterWrite(ctx, actor, models.AuditActionPolicyDelete, "access_rules", id, nil)
	return nil
}

// Summary returns the full role by element matrix.
func (s *PolicyService) Summary(ctx context.Context) (*models.PolicySummary, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list roles")
	}
	elements, err := s.store.ListElements(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list elements")
	}
	rules, err := s.store.ListRules(ctx, repository.RuleFilter{})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list access rules")
	}

	matrix := make(map[string]map[string]models.RuleFlags, len(roles))
	for _, role := range roles {
		matrix[role.Name] = map[string]models.RuleFlags{}
	}
	for i := range rules {
		row, ok := matrix[rules[i].RoleName]
		if !ok {
			row = map[string]models.RuleFlags{}
			matrix[rules[i].RoleName] = row
		}
		row[rules[i].ElementName] = rules[i].Flags()
	}
	return &models.PolicySummary{Roles: roles, Elements: elements, Matrix: matrix}, nil
}

// UserRoles returns the roles assigned to a user.
func (s *PolicyService) UserRoles(ctx context.Context, userID string) ([]models.Role, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, notFoundOr(err, "user not found", "failed to load user")
	}
	roles, err := s.store.ListRolesForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list user roles")
	}
	return roles, nil
}

// AssignRole grants a role to a user. Re-assigning a held role succeeds.
func (s *PolicyService) AssignRole(ctx context.Context, userID string, input models.AssignRoleInput, actor models.Actor) error {
	if err := s.validator.Struct(input); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role assignment")
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return notFoundOr(err, "user not found", "failed to load user")
	}
	role, err := s.store.FindRoleByID(ctx, input.RoleID)
	if err != nil {
		return notFoundOr(err, "role not found", "failed to load role")
	}
	assigned, err := s.store.AssignRole(ctx, userID, role.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to assign role")
	}
	if assigned {
		s.recordAudit(ctx, actor, models.AuditActionRoleAssign, "user_roles", userID, map[string]string{"role": role.Name})
	}
	return nil
}

// RevokeRole removes a role from a user.
func (s *PolicyService) RevokeRole(ctx context.Context, userID, roleID string, actor models.Actor) error {
	if err := s.store.RevokeRole(ctx, userID, roleID); err != nil {
		return notFoundOr(err, "role assignment not found", "failed to revoke role")
	}
	s.recordAudit(ctx, actor, models.AuditActionRoleRevoke, "user_roles", userID, map[string]string{"role_id": roleID})
	return nil
}

// ValidateBootstrap verifies the policy rows the evaluator depends on. The
// server refuses to start when it fails.
func (s *PolicyService) ValidateBootstrap(ctx context.Context) error {
	var missing []string
	if _, err := s.store.FindRoleByName(ctx, s.guestRole); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check guest role: %w", err)
		}
		missing = append(missing, "role "+s.guestRole)
	}
	for _, name := range models.BuiltinElements {
		if _, err := s.store.FindElementByName(ctx, name); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("check element %s: %w", name, err)
			}
			missing = append(missing, "element "+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("rbac policy incomplete, missing %s; run the policy seed", strings.Join(missing, ", "))
	}
	return nil
}

func (s *PolicyService) ensureRoleNameFree(ctx context.Context, name, selfID string) error {
	existing, err := s.store.FindRoleByName(ctx, name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return appErrors.Internal(err, "failed to check role")
	case existing.ID != selfID:
		return appErrors.Clone(appErrors.ErrConflict, "role already exists")
	default:
		return nil
	}
}

func (s *PolicyService) afterWrite(ctx context.Context, actor models.Actor, action, resource, resourceID string, value interface{}) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("failed to invalidate policy cache", zap.Error(err))
		}
	}
	s.recordAudit(ctx, actor, action, resource, resourceID, value)
}

func (s *PolicyService) recordAudit(ctx context.Context, actor models.Actor, action, resource, resourceID string, value interface{}) {
	recordAudit(ctx, s.audit, s.logger, actor, action, resource, resourceID, value)
}

func recordAudit(ctx context.Context, audit auditWriter, logger *zap.Logger, actor models.Actor, action, resource, resourceID string, value interface{}) {
	if audit == nil {
		return
	}
	var payload []byte
	if value != nil {
		payload, _ = json.Marshal(value)
	}
	var rid *string
	if resourceID != "" {
		rid = &resourceID
	}
	if err := audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     actor.UserIDPtr(),
		Action:     action,
		Resource:   resource,
		ResourceID: rid,
		NewValues:  payload,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Internal(err, internal)
}

func isBuiltinElement(name string) bool {
	for _, builtin := range models.BuiltinElements {
		if builtin == name {
			return true
		}
	}
	return false
}
