package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookhub-api/internal/models"
)

func seededPolicy() *fakePolicy {
	store := newFakePolicy()
	store.addRole(models.RoleGuest)
	store.addRole(models.RoleCustomer)
	store.addElement(models.ElementProduct)
	store.grant(models.RoleCustomer, models.ElementProduct, models.RuleFlags{Read: true})
	return store
}

func TestPolicyCacheReadThrough(t *testing.T) {
	store := seededPolicy()
	cache := newFakeCache()
	pc := NewPolicyCache(store, cache, nil, time.Minute, nil)
	ctx := context.Background()

	rule, err := pc.Rule(ctx, "role-customer", "el-product")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.True(t, rule.Read)
	assert.Equal(t, 1, store.ruleReads)

	rule, err = pc.Rule(ctx, "role-customer", "el-product")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.True(t, rule.Read)
	assert.Equal(t, 1, store.ruleReads, "second read must be served from cache")
}

func TestPolicyCacheRemembersAbsence(t *testing.T) {
	store := seededPolicy()
	pc := NewPolicyCache(store, newFakeCache(), nil, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rule, err := pc.Rule(ctx, "role-guest", "el-product")
		require.NoError(t, err)
		assert.Nil(t, rule)
	}
	assert.Equal(t, 1, store.ruleReads)

	element, err := pc.Element(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, element)
}

func TestPolicyCacheInvalidateSeesWrites(t *testing.T) {
	store := seededPolicy()
	cache := newFakeCache()
	pc := NewPolicyCache(store, cache, nil, time.Minute, nil)
	ctx := context.Background()

	rule, err := pc.Rule(ctx, "role-guest", "el-product")
	require.NoError(t, err)
	assert.Nil(t, rule)

	store.grant(models.RoleGuest, models.ElementProduct, models.RuleFlags{Read: true})
	rule, err = pc.Rule(ctx, "role-guest", "el-product")
	require.NoError(t, err)
	assert.Nil(t, rule, "stale until invalidated")

	require.NoError(t, pc.Invalidate(ctx))
	assert.Equal(t, 1, cache.invalidated)
	rule, err = pc.Rule(ctx, "role-guest", "el-product")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.True(t, rule.Read)
}

func TestPolicyCacheFallsBackWhenCacheFails(t *testing.T) {
	store := seededPolicy()
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	pc := NewPolicyCache(store, cache, nil, time.Minute, nil)

	role, err := pc.Role(context.Background(), models.RoleGuest)
	require.NoError(t, err)
	require.NotNil(t, role)
	assert.Equal(t, "role-guest", role.ID)
}

func TestPolicyCachePassThroughWithoutRepo(t *testing.T) {
	store := seededPolicy()
	pc := NewPolicyCache(store, nil, nil, 0, nil)
	ctx := context.Background()

	assert.False(t, pc.Enabled())
	require.NoError(t, pc.Invalidate(ctx))
	for i := 0; i < 2; i++ {
		_, err := pc.Rule(ctx, "role-customer", "el-product")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, store.ruleReads)
}

func TestPolicyCachePropagatesStoreErrors(t *testing.T) {
	store := seededPolicy()
	store.failWith = errors.New("connection refused")
	pc := NewPolicyCache(store, newFakeCache(), nil, time.Minute, nil)

	_, err := pc.Rule(context.Background(), "role-customer", "el-product")
	assert.Error(t, err)
}
