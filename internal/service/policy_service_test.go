package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/internal/repository"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
)

type policyFixture struct {
	svc   *PolicyService
	store *fakePolicy
	users *fakeUsers
	cache *fakeInvalidator
	audit *fakeAudit
}

func newPolicyFixture() policyFixture {
	store := newFakePolicy()
	store.addRole(models.RoleGuest)
	store.addRole(models.RoleCustomer)
	for _, name := range models.BuiltinElements {
		store.addElement(name)
	}
	users := newFakeUsers(testUser("u1"))
	cache := &fakeInvalidator{}
	audit := &fakeAudit{}
	return policyFixture{
		svc:   NewPolicyService(store, users, cache, audit, nil, nil, models.RoleGuest),
		store: store,
		users: users,
		cache: cache,
		audit: audit,
	}
}

var admin = models.Actor{UserID: "admin-1", IP: "127.0.0.1"}

func TestPolicyServiceRoleLifecycle(t *testing.T) {
	f := newPolicyFixture()
	ctx := context.Background()

	role, err := f.svc.CreateRole(ctx, models.RoleInput{Name: " editor ", Description: "edits reviews"}, admin)
	require.NoError(t, err)
	assert.Equal(t, "editor", role.Name)
	assert.Equal(t, 1, f.cache.calls)

	_, err = f.svc.CreateRole(ctx, models.RoleInput{Name: "editor"}, admin)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	updated, err := f.svc.UpdateRole(ctx, role.ID, models.RoleInput{Name: "reviewer"}, admin)
	require.NoError(t, err)
	assert.Equal(t, "reviewer", updated.Name)

	require.NoError(t, f.svc.DeleteRole(ctx, role.ID, admin))
	assert.Equal(t, 3, f.cache.calls)
	assert.Equal(t, []string{models.AuditActionPolicyWrite, models.AuditActionPolicyWrite, models.AuditActionPolicyDelete}, f.audit.actions())
	require.NotNil(t, f.audit.logs[0].UserID)
	assert.Equal(t, "admin-1", *f.audit.logs[0].UserID)

	err = f.svc.DeleteRole(ctx, role.ID, admin)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestPolicyServiceProtectsGuestRole(t *testing.T) {
	f := newPolicyFixture()
	ctx := context.Background()
	guestID := "role-" + models.RoleGuest

	err := f.svc.DeleteRole(ctx, guestID, admin)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = f.svc.UpdateRole(ctx, guestID, models.RoleInput{Name: "visitor"}, admin)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	role, err := f.svc.UpdateRole(ctx, guestID, models.RoleInput{Name: models.RoleGuest, Description: "anonymous"}, admin)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", role.Description)
}

func TestPolicyServiceProtectsBuiltinElements(t *testing.T) {
	f := newPolicyFixture()
	ctx := context.Background()
	productID := "el-" + models.ElementProduct

	err := f.svc.DeleteElement(ctx, productID, admin)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	_, err = f.svc.UpdateElement(ctx, productID, models.ElementInput{Name: "book"}, admin)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	custom, err := f.svc.CreateElement(ctx, models.ElementInput{Name: "wishlist"}, admin)
	require.NoError(t, err)
	_, err = f.svc.CreateElement(ctx, models.ElementInput{Name: "wishlist"}, admin)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	renamed, err := f.svc.UpdateElement(ctx, custom.ID, models.ElementInput{Name: "favourites"}, admin)
	require.NoError(t, err)
	assert.Equal(t, "favourites", renamed.Name)
	require.NoError(t, f.svc.DeleteElement(ctx, custom.ID, admin))
}

func TestPolicyServicePutRule(t *testing.T) {
	f := newPolicyFixture()
	ctx := context.Background()
	input := models.RuleInput{RoleID: "role-customer", ElementID: "el-review", RuleFlags: models.RuleFlags{Read: true, Create: true}}

	rule, created, err := f.svc.PutRule(ctx, input, admin)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, rule.Create)

	input.RuleFlags = models.RuleFlags{Read: true}
	rule, created, err = f.svc.PutRule(ctx, input, admin)
	require.NoError(t, err)
	assert.False(t, created)
	assert.False(t, rule.Create)

	rules, err := f.svc.ListRules(ctx, repository.RuleFilter{RoleID: "role-customer"})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, models.RuleFlags{Read: true}, rules[0].Flags())

	_, _, err = f.svc.PutRule(ctx, models.RuleInput{RoleID: "missing", ElementID: "el-review"}, admin)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, _, err = f.svc.PutRule(ctx, models.RuleInput{}, admin)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	require.NoError(t, f.svc.DeleteRule(ctx, rule.ID, admin))
	assert.ErrorIs(t, f.svc.DeleteRule(ctx, rule.ID, admin), appErrors.ErrNotFound)
	assert.Equal(t, 3, f.cache.calls)
}

func TestPolicyServiceSummary(t *testing.T) {
	f := newPolicyFixture()
	f.store.grant(models.RoleCustomer, models.ElementOrder, ownFlags)

	summary, err := f.svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.Roles, 2)
	assert.Len(t, summary.Elements, len(models.BuiltinElements))
	assert.Equal(t, ownFlags, summary.Matrix[models.RoleCustomer][models.ElementOrder])
	assert.Empty(t, summary.Matrix[models.RoleGuest])
}

func TestPolicyServiceRoleAssignment(t *testing.T) {
	f := newPolicyFixture()
	ctx := context.Background()
	input := models.AssignRoleInput{RoleID: "role-customer"}

	require.NoError(t, f.svc.AssignRole(ctx, "u1", input, admin))
	require.NoError(t, f.svc.AssignRole(ctx, "u1", input, admin))
	assert.Equal(t, []string{models.AuditActionRoleAssign}, f.audit.actions())

	roles, err := f.svc.UserRoles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, models.RoleCustomer, roles[0].Name)

	assert.ErrorIs(t, f.svc.AssignRole(ctx, "ghost", input, admin), appErrors.ErrNotFound)
	assert.ErrorIs(t, f.svc.AssignRole(ctx, "u1", models.AssignRoleInput{RoleID: "nope"}, admin), appErrors.ErrNotFound)

	require.NoError(t, f.svc.RevokeRole(ctx, "u1", "role-customer", admin))
	assert.ErrorIs(t, f.svc.RevokeRole(ctx, "u1", "role-customer", admin), appErrors.ErrNotFound)
	_, err = f.svc.UserRoles(ctx, "ghost")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestPolicyServiceAuditFailureDoesNotFailWrite(t *testing.T) {
	f := newPolicyFixture()
	f.audit.err = errors.New("audit table locked")

	_, err := f.svc.CreateRole(context.Background(), models.RoleInput{Name: "editor"}, admin)
	assert.NoError(t, err)
}

func TestPolicyServiceValidateBootstrap(t *testing.T) {
	f := newPolicyFixture()
	require.NoError(t, f.svc.ValidateBootstrap(context.Background()))

	delete(f.store.roles, "role-"+models.RoleGuest)
	delete(f.store.elements, "el-"+models.ElementCart)
	err := f.svc.ValidateBootstrap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role guest")
	assert.Contains(t, err.Error(), "element cart")

	f.store.failWith = errors.New("connection refused")
	err = f.svc.ValidateBootstrap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
