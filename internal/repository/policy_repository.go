package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bookhub-api/internal/models"
)

const accessRuleColumns = `ar.id, ar.role_id, ar.element_id, ar.read_permission, ar.read_all_permission, ar.create_permission, ar.update_permission, ar.update_all_permission, ar.delete_permission, ar.delete_all_permission, ar.created_at, ar.updated_at, r.name AS role_name, e.name AS element_name`

const accessRuleFrom = ` FROM access_rules ar JOIN roles r ON r.id = ar.role_id JOIN business_elements e ON e.id = ar.element_id`

// RuleFilter narrows ListRules.
type RuleFilter struct {
	RoleID    string
	ElementID string
}

// PolicyRepository is the data access layer for roles, business elements,
// access rules and user-role assignments. It carries no authorization logic.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// ListRoles returns all roles ordered by name.
func (r *PolicyRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, `SELECT id, name, description, created_at FROM roles ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// FindRoleByID returns a role or sql.ErrNoRows.
func (r *PolicyRepository) FindRoleByID(ctx context.Context, id string) (*models.Role, error) {
	var role models.Role
	if err := r.db.GetContext(ctx, &role, r.db.Rebind(`SELECT id, name, description, created_at FROM roles WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return &role, nil
}

// FindRoleByName returns a role or sql.ErrNoRows.
func (r *PolicyRepository) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	if err := r.db.GetContext(ctx, &role, r.db.Rebind(`SELECT id, name, description, created_at FROM roles WHERE name = ?`), name); err != nil {
		return nil, err
	}
	return &role, nil
}

// CreateRole inserts a role.
func (r *PolicyRepository) CreateRole(ctx context.Context, role *models.Role) error {
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, `INSERT INTO roles (id, name, description, created_at) VALUES (:id, :name, :description, :created_at)`, role); err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// UpdateRole renames or re-describes a role.
func (r *PolicyRepository) UpdateRole(ctx context.Context, role *models.Role) error {
	res, err := r.db.NamedExecContext(ctx, `UPDATE roles SET name = :name, description = :description WHERE id = :id`, role)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return expectOne(res, "update role")
}

// DeleteRole removes a role together with its access rules and assignments.
func (r *PolicyRepository) DeleteRole(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete role: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM access_rules WHERE role_id = ?`), id); err != nil {
		return fmt.Errorf("delete role rules: %w", err)
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM user_roles WHERE role_id = ?`), id); err != nil {
		return fmt.Errorf("delete role assignments: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM roles WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if err = expectOne(res, "delete role"); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete role: %w", err)
	}
	return nil
}

// ListElements returns all business elements ordered by name.
func (r *PolicyRepository) ListElements(ctx context.Context) ([]models.BusinessElement, error) {
	var elements []models.BusinessElement
	if err := r.db.SelectContext(ctx, &elements, `SELECT id, name, description, created_at FROM business_elements ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list elements: %w", err)
	}
	return elements, nil
}

// FindElementByID returns an element or sql.ErrNoRows.
func (r *PolicyRepository) FindElementByID(ctx context.Context, id string) (*models.BusinessElement, error) {
	var element models.BusinessElement
	if err := r.db.GetContext(ctx, &element, r.db.Rebind(`SELECT id, name, description, created_at FROM business_elements WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return &element, nil
}

// FindElementByName returns an element or sql.ErrNoRows.
func (r *PolicyRepository) FindElementByName(ctx context.Context, name string) (*models.BusinessElement, error) {
	var element models.BusinessElement
	if err := r.db.GetContext(ctx, &element, r.db.Rebind(`SELECT id, name, description, created_at FROM business_elements WHERE name = ?`), name); err != nil {
		return nil, err
	}
	return &element, nil
}

// CreateElement inserts a business element.
func (r *PolicyRepository) CreateElement(ctx context.Context, element *models.BusinessElement) error {
	if element.ID == "" {
		element.ID = uuid.NewString()
	}
	if element.CreatedAt.IsZero() {
		element.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, `INSERT INTO business_elements (id, name, description, created_at) VALUES (:id, :name, :description, :created_at)`, element); err != nil {
		return fmt.Errorf("create element: %w", err)
	}
	return nil
}

// UpdateElement renames or re-describes an element.
func (r *PolicyRepository) UpdateElement(ctx context.Context, element *models.BusinessElement) error {
	res, err := r.db.NamedExecContext(ctx, `UPDATE business_elements SET name = :name, description = :description WHERE id = :id`, element)
	if err != nil {
		return fmt.Errorf("update element: %w", err)
	}
	return expectOne(res, "update element")
}

// DeleteElement removes an element and the rules that reference it.
func (r *PolicyRepository) DeleteElement(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete element: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM access_rules WHERE element_id = ?`), id); err != nil {
		return fmt.Errorf("delete element rules: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM business_elements WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete element: %w", err)
	}
	if err = expectOne(res, "delete element"); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete element: %w", err)
	}
	return nil
}

// ListRules returns access rules with role and element names resolved.
func (r *PolicyRepository) ListRules(ctx context.Context, filter RuleFilter) ([]models.AccessRule, error) {
	var conditions []string
	var args []interface{}
	if filter.RoleID != "" {
		conditions = append(conditions, "ar.role_id = ?")
		args = append(args, filter.RoleID)
	}
	if filter.ElementID != "" {
		conditions = append(conditions, "ar.element_id = ?")
		args = append(args, filter.ElementID)
	}
	query := `SELECT ` + accessRuleColumns + accessRuleFrom
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY r.name, e.name"

	var rules []models.AccessRule
	if err := r.db.SelectContext(ctx, &rules, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list access rules: %w", err)
	}
	return rules, nil
}

// FindRule returns the rule for one (role, element) pair or sql.ErrNoRows.
func (r *PolicyRepository) FindRule(ctx context.Context, roleID, elementID string) (*models.AccessRule, error) {
	query := r.db.Rebind(`SELECT ` + accessRuleColumns + accessRuleFrom + ` WHERE ar.role_id = ? AND ar.element_id = ?`)
	var rule models.AccessRule
	if err := r.db.GetContext(ctx, &rule, query, roleID, elementID); err != nil {
		return nil, err
	}
	return &rule, nil
}

// FindRuleByID returns a rule or sql.ErrNoRows.
func (r *PolicyRepository) FindRuleByID(ctx context.Context, id string) (*models.AccessRule, error) {
	query := r.db.Rebind(`SELECT ` + accessRuleColumns + accessRuleFrom + ` WHERE ar.id = ?`)
	var rule models.AccessRule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		return nil, err
	}
	return &rule, nil
}

// UpsertRule writes the flags for rule.RoleID and rule.ElementID, creating the
// row when the pair has none. It reports whether a row was created.
func (r *PolicyRepository) UpsertRule(ctx context.Context, rule *models.AccessRule) (created bool, err error) {
	now := time.Now().UTC()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert rule: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existing struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	err = tx.GetContext(ctx, &existing, tx.Rebind(`SELECT id, created_at FROM access_rules WHERE role_id = ? AND element_id = ?`), rule.RoleID, rule.ElementID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		rule.CreatedAt, rule.UpdatedAt = now, now
		const insert = `INSERT INTO access_rules (id, role_id, element_id, read_permission, read_all_permission, create_permission, update_permission, update_all_permission, delete_permission, delete_all_permission, created_at, updated_at) VALUES (:id, :role_id, :element_id, :read_permission, :read_all_permission, :create_permission, :update_permission, :update_all_permission, :delete_permission, :delete_all_permission, :created_at, :updated_at)`
		if _, err = sqlx.NamedExecContext(ctx, tx, insert, rule); err != nil {
			return false, fmt.Errorf("create access rule: %w", err)
		}
	case err != nil:
		return false, fmt.Errorf("find access rule: %w", err)
	default:
		rule.ID = existing.ID
		rule.CreatedAt = existing.CreatedAt
		rule.UpdatedAt = now
		const update = `UPDATE access_rules SET read_permission = :read_permission, read_all_permission = :read_all_permission, create_permission = :create_permission, update_permission = :update_permission, update_all_permission = :update_all_permission, delete_permission = :delete_permission, delete_all_permission = :delete_all_permission, updated_at = :updated_at WHERE id = :id`
		if _, err = sqlx.NamedExecContext(ctx, tx, update, rule); err != nil {
			return false, fmt.Errorf("update access rule: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert rule: %w", err)
	}
	return created, nil
}

// DeleteRule removes a rule. It returns sql.ErrNoRows when absent.
func (r *PolicyRepository) DeleteRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM access_rules WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete access rule: %w", err)
	}
	return expectOne(res, "delete access rule")
}

// ListRolesForUser returns the roles assigned to userID.
func (r *PolicyRepository) ListRolesForUser(ctx context.Context, userID string) ([]models.Role, error) {
	query := r.db.Rebind(`SELECT r.id, r.name, r.description, r.created_at FROM roles r JOIN user_roles ur ON ur.role_id = r.id WHERE ur.user_id = ? ORDER BY r.name`)
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, query, userID); err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	return roles, nil
}

// AssignRole grants roleID to userID. Assigning an already held role is a
// no-op and reports false.
func (r *PolicyRepository) AssignRole(ctx context.Context, userID, roleID string) (assigned bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin assign role: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var count int
	if err = tx.GetContext(ctx, &count, tx.Rebind(`SELECT COUNT(*) FROM user_roles WHERE user_id = ? AND role_id = ?`), userID, roleID); err != nil {
		return false, fmt.Errorf("check user role: %w", err)
	}
	if count == 0 {
		if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO user_roles (id, user_id, role_id, assigned_at) VALUES (?, ?, ?, ?)`), uuid.NewString(), userID, roleID, time.Now().UTC()); err != nil {
			return false, fmt.Errorf("assign role: %w", err)
		}
		assigned = true
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit assign role: %w", err)
	}
	return assigned, nil
}

// RevokeRole removes an assignment. It returns sql.ErrNoRows when the user
// does not hold the role.
func (r *PolicyRepository) RevokeRole(ctx context.Context, userID, roleID string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM user_roles WHERE user_id = ? AND role_id = ?`), userID, roleID)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	return expectOne(res, "revoke role")
}
