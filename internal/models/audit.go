package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionRegister       = "REGISTER"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionUserRestore    = "USER_RESTORE"
	AuditActionRoleAssign     = "ROLE_ASSIGN"
	AuditActionRoleRevoke     = "ROLE_REVOKE"
	AuditActionPolicyWrite    = "POLICY_WRITE"
	AuditActionPolicyDelete   = "POLICY_DELETE"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionPasswordReset  = "PASSWORD_RESET"
	AuditActionLogout         = "LOGOUT"
	AuditActionExport         = "EXPORT"
	AuditActionCatalogWrite   = "CATALOG_WRITE"
	AuditActionCatalogDelete  = "CATALOG_DELETE"
	AuditActionOrderUpdate    = "ORDER_UPDATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Actor identifies who performed an audited mutation.
type Actor struct {
	UserID    string
	IP        string
	UserAgent string
}

// UserIDPtr returns nil for anonymous actors.
func (a Actor) UserIDPtr() *string {
	if a.UserID == "" {
		return nil
	}
	id := a.UserID
	return &id
}
