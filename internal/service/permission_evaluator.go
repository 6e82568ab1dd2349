package service

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/models"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
)

type userRoleLister interface {
	ListRolesForUser(ctx context.Context, userID string) ([]models.Role, error)
}

type policyLookup interface {
	Rule(ctx context.Context, roleID, elementID string) (*models.AccessRule, error)
	Element(ctx context.Context, name string) (*models.BusinessElement, error)
	Role(ctx context.Context, name string) (*models.Role, error)
}

// PermissionEvaluator decides whether a principal may act on a business
// element. It holds no mutable state and is safe for concurrent use.
type PermissionEvaluator struct {
	roles     userRoleLister
	policy    policyLookup
	metrics   *MetricsService
	logger    *zap.Logger
	guestRole string
}

// NewPermissionEvaluator constructs an evaluator. guestRole names the role
// used for principals without any assignment.
func NewPermissionEvaluator(roles userRoleLister, policy policyLookup, metrics *MetricsService, logger *zap.Logger, guestRole string) *PermissionEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guestRole == "" {
		guestRole = models.RoleGuest
	}
	return &PermissionEvaluator{roles: roles, policy: policy, metrics: metrics, logger: logger, guestRole: guestRole}
}

// PermissionForMethod maps an HTTP method onto a permission type.
func PermissionForMethod(method string) (models.PermissionType, bool) {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return models.PermissionRead, true
	case http.MethodPost:
		return models.PermissionCreate, true
	case http.MethodPut, http.MethodPatch:
		return models.PermissionUpdate, true
	case http.MethodDelete:
		return models.PermissionDelete, true
	default:
		return "", false
	}
}

// Decide evaluates req. Denials are returned as a Decision; the error is
// non-nil only when the policy store cannot be read.
func (e *PermissionEvaluator) Decide(ctx context.Context, req models.AccessRequest) (models.Decision, error) {
	decision, err := e.decide(ctx, req)
	if err != nil {
		return decision, err
	}
	e.metrics.RecordDecision(req.Element, string(decision.Permission), decision.Allowed, decision.Reason)
	return decision, nil
}

func (e *PermissionEvaluator) decide(ctx context.Context, req models.AccessRequest) (models.Decision, error) {
	perm, ok := PermissionForMethod(req.Method)
	if !ok {
		return models.Decision{Reason: models.ReasonUnknownMethod}, nil
	}
	decision := models.Decision{Permission: perm}

	if req.PublicRead && perm == models.PermissionRead {
		decision.Allowed = true
		decision.Reason = models.ReasonPublicRead
		return decision, nil
	}

	if req.Principal == nil {
		decision.Reason = models.ReasonUnauthenticated
		return decision, nil
	}

	if req.Principal.Elevated() {
		decision.Allowed = true
		decision.Reason = models.ReasonElevated
		return decision, nil
	}

	element, err := e.policy.Element(ctx, req.Element)
	if err != nil {
		return decision, err
	}
	if element == nil {
		return e.misconfigured(decision, models.ReasonUnknownElement, req), nil
	}

	roles, err := e.roles.ListRolesForUser(ctx, req.Principal.UserID)
	if err != nil {
		return decision, err
	}
	if len(roles) == 0 {
		guest, err := e.policy.Role(ctx, e.guestRole)
		if err != nil {
			return decision, err
		}
		if guest == nil {
			return e.misconfigured(decision, models.ReasonMissingGuest, req), nil
		}
		roles = []models.Role{*guest}
	}

	decision.UsedAll = perm != models.PermissionCreate && (req.RequireAll || req.ListAction || !ownedBy(req.Target, req.Principal.UserID))

	for _, role := range roles {
		rule, err := e.policy.Rule(ctx, role.ID, element.ID)
		if err != nil {
			return decision, err
		}
		if rule.Allows(perm, decision.UsedAll) {
			decision.Allowed = true
			decision.Reason = models.ReasonRoleGrant
			decision.MatchedRole = role.Name
			return decision, nil
		}
	}

	decision.Reason = models.ReasonNoGrant
	e.logger.Debug("rbac_denied",
		zap.String("user_id", req.Principal.UserID),
		zap.String("element", req.Element),
		zap.String("permission", string(perm)),
		zap.Bool("all", decision.UsedAll),
	)
	return decision, nil
}

// Authorize runs Decide and converts a denial into the error the HTTP layer
// renders: 401 without a principal, 403 otherwise.
func (e *PermissionEvaluator) Authorize(ctx context.Context, req models.AccessRequest) error {
	decision, err := e.Decide(ctx, req)
	if err != nil {
		return appErrors.Internal(err, "failed to evaluate permissions")
	}
	switch {
	case decision.Allowed:
		return nil
	case decision.Reason == models.ReasonUnauthenticated:
		return appErrors.Clone(appErrors.ErrUnauthenticated, "")
	case decision.ConfigurationError:
		return appErrors.Clone(appErrors.ErrConfiguration, "")
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "")
	}
}

func (e *PermissionEvaluator) misconfigured(decision models.Decision, reason string, req models.AccessRequest) models.Decision {
	decision.Allowed = false
	decision.Reason = reason
	decision.ConfigurationError = true
	e.logger.Error("rbac_configuration_error",
		zap.String("reason", reason),
		zap.String("element", req.Element),
		zap.String("guest_role", e.guestRole),
	)
	return decision
}

// ownedBy reports whether target provably belongs to userID. A nil target is
// a collection-level check and counts as owned.
func ownedBy(target interface{}, userID string) bool {
	if target == nil {
		return true
	}
	ownable, ok := target.(models.Ownable)
	if !ok {
		return false
	}
	owner, ok := ownable.OwnerID()
	return ok && owner == userID
}
