package models

import "time"

// Built-in role names.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleCustomer = "customer"
	RoleGuest    = "guest"
)

// Built-in business element names.
const (
	ElementUser       = "user"
	ElementProduct    = "product"
	ElementCategory   = "category"
	ElementOrder      = "order"
	ElementCart       = "cart"
	ElementReview     = "review"
	ElementPermission = "permission"
)

// BuiltinElements lists the elements every deployment must define.
var BuiltinElements = []string{
	ElementUser, ElementProduct, ElementCategory, ElementOrder, ElementCart, ElementReview, ElementPermission,
}

// PermissionType is the action family derived from the HTTP method.
type PermissionType string

const (
	PermissionRead   PermissionType = "read"
	PermissionCreate PermissionType = "create"
	PermissionUpdate PermissionType = "update"
	PermissionDelete PermissionType = "delete"
)

// Role is a named grant bundle.
type Role struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// BusinessElement is a resource type subject to access control.
type BusinessElement struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AccessRule holds the seven flags for one (role, element) pair.
type AccessRule struct {
	ID          string    `db:"id" json:"id"`
	RoleID      string    `db:"role_id" json:"role_id"`
	ElementID   string    `db:"element_id" json:"element_id"`
	Read        bool      `db:"read_permission" json:"read_permission"`
	ReadAll     bool      `db:"read_all_permission" json:"read_all_permission"`
	Create      bool      `db:"create_permission" json:"create_permission"`
	Update      bool      `db:"update_permission" json:"update_permission"`
	UpdateAll   bool      `db:"update_all_permission" json:"update_all_permission"`
	Delete      bool      `db:"delete_permission" json:"delete_permission"`
	DeleteAll   bool      `db:"delete_all_permission" json:"delete_all_permission"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
	RoleName    string    `db:"role_name" json:"role_name,omitempty"`
	ElementName string    `db:"element_name" json:"element_name,omitempty"`
}

// Allows reports the flag for perm; all selects the "_all" variant. Create has no variant.
func (r *AccessRule) Allows(perm PermissionType, all bool) bool {
	if r == nil {
		return false
	}
	switch perm {
	case PermissionCreate:
		return r.Create
	case PermissionRead:
		if all {
			return r.ReadAll
		}
		return r.Read
	case PermissionUpdate:
		if all {
			return r.UpdateAll
		}
		return r.Update
	case PermissionDelete:
		if all {
			return r.DeleteAll
		}
		return r.Delete
	default:
		return false
	}
}

// UserRole assigns a role to a user.
type UserRole struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	RoleID     string    `db:"role_id" json:"role_id"`
	AssignedAt time.Time `db:"assigned_at" json:"assigned_at"`
}

// AccessRequest is everything the evaluator needs for one decision. RequireAll,
// ListAction and the ownership of Target are independent inputs; any one of them
// selects the "_all" flag for read, update and delete. A nil Target is a
// collection-level check; a Target that is not Ownable has no provable owner.
type AccessRequest struct {
	Principal  *Principal
	Method     string
	Element    string
	PublicRead bool
	RequireAll bool
	ListAction bool
	Target     interface{}
}

// Decision is the evaluator verdict. Deny is a value, not an error.
type Decision struct {
	Allowed            bool           `json:"allowed"`
	Permission         PermissionType `json:"permission,omitempty"`
	UsedAll            bool           `json:"used_all"`
	Reason             string         `json:"reason"`
	MatchedRole        string         `json:"matched_role,omitempty"`
	ConfigurationError bool           `json:"-"`
}

// Decision reasons.
const (
	ReasonPublicRead      = "public_read"
	ReasonUnauthenticated = "unauthenticated"
	ReasonElevated        = "elevated"
	ReasonRoleGrant       = "role_grant"
	ReasonNoGrant         = "no_grant"
	ReasonUnknownElement  = "unknown_element"
	ReasonMissingGuest    = "missing_guest_role"
	ReasonUnknownMethod   = "unknown_method"
)

// RoleInput creates or updates a role.
type RoleInput struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

// ElementInput creates or updates a business element.
type ElementInput struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

// RuleInput writes the flags of one (role, element) pair.
type RuleInput struct {
	RoleID    string `json:"role_id" validate:"required"`
	ElementID string `json:"element_id" validate:"required"`
	RuleFlags
}

// RuleFlags are the seven permission flags of an access rule.
type RuleFlags struct {
	Read      bool `json:"read_permission"`
	ReadAll   bool `json:"read_all_permission"`
	Create    bool `json:"create_permission"`
	Update    bool `json:"update_permission"`
	UpdateAll bool `json:"update_all_permission"`
	Delete    bool `json:"delete_permission"`
	DeleteAll bool `json:"delete_all_permission"`
}

// Flags extracts the permission flags of r.
func (r *AccessRule) Flags() RuleFlags {
	if r == nil {
		return RuleFlags{}
	}
	return RuleFlags{
		Read: r.Read, ReadAll: r.ReadAll, Create: r.Create,
		Update: r.Update, UpdateAll: r.UpdateAll, Delete: r.Delete, DeleteAll: r.DeleteAll,
	}
}

// Apply copies f onto r.
func (f RuleFlags) Apply(r *AccessRule) {
	r.Read, r.ReadAll, r.Create = f.Read, f.ReadAll, f.Create
	r.Update, r.UpdateAll, r.Delete, r.DeleteAll = f.Update, f.UpdateAll, f.Delete, f.DeleteAll
}

// AssignRoleInput grants a role to a user.
type AssignRoleInput struct {
	RoleID string `json:"role_id" validate:"required"`
}

// PolicySummary is the role by element matrix. Pairs without a rule are absent
// from Matrix and grant nothing.
type PolicySummary struct {
	Roles    []Role                          `json:"roles"`
	Elements []BusinessElement               `json:"elements"`
	Matrix   map[string]map[string]RuleFlags `json:"matrix"`
}
