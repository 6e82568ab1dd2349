package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/internal/repository"
	"github.com/noah-isme/bookhub-api/pkg/broker"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
)

// fakeUsers backs authUserRepository, userRepository and tokenUserReader.
type fakeUsers struct {
	mu          sync.Mutex
	byID        map[string]*models.User
	findErr     error
	lastLogin   map[string]time.Time
	passwordSet int
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byID: map[string]*models.User{}, lastLogin: map[string]time.Time{}}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUsers) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUsers) CreateWithRole(ctx context.Context, user *models.User, roleName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()
	f.byID[user.ID] = user
	return roleName != "", nil
}

func (f *fakeUsers) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLogin[id] = ts
	return nil
}

func (f *fakeUsers) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	f.passwordSet++
	return nil
}

func (f *fakeUsers) MarkVerified(ctx context.Context, id string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.IsVerified = true
	return nil
}

func (f *fakeUsers) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.byID {
		if u.DeletedAt != nil {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (f *fakeUsers) Update(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[user.ID]; !ok {
		return sql.ErrNoRows
	}
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUsers) SoftDelete(ctx context.Context, id string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok || u.DeletedAt != nil {
		return sql.ErrNoRows
	}
	u.DeletedAt = &ts
	u.IsActive = false
	return nil
}

func (f *fakeUsers) Restore(ctx context.Context, id string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok || u.DeletedAt == nil {
		return sql.ErrNoRows
	}
	u.DeletedAt = nil
	u.IsActive = true
	return nil
}

// fakeTokens emulates the refresh token table.
type fakeTokens struct {
	mu     sync.Mutex
	tokens map[string]*models.AuthToken
	// rotateErr forces RotateRefresh to fail, emulating a concurrent redeem.
	rotateErr error
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{tokens: map[string]*models.AuthToken{}}
}

func (f *fakeTokens) Create(ctx context.Context, token *models.AuthToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	copied := *token
	f.tokens[token.ID] = &copied
	return nil
}

func (f *fakeTokens) candidates(prefix string, now time.Time, blacklisted bool) []models.AuthToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuthToken
	for _, t := range f.tokens {
		if t.Type == models.AuthTokenRefresh && t.TokenPrefix == prefix && t.IsBlacklisted == blacklisted && now.Before(t.ExpiresAt) {
			out = append(out, *t)
		}
	}
	return out
}

func (f *fakeTokens) ListRefreshCandidates(ctx context.Context, prefix string, now time.Time) ([]models.AuthToken, error) {
	return f.candidates(prefix, now, false), nil
}

func (f *fakeTokens) ListRevokedRefreshCandidates(ctx context.Context, prefix string, now time.Time) ([]models.AuthToken, error) {
	return f.candidates(prefix, now, true), nil
}

func (f *fakeTokens) RotateRefresh(ctx context.Context, oldID string, replacement *models.AuthToken, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rotateErr != nil {
		return f.rotateErr
	}
	old, ok := f.tokens[oldID]
	if !ok || old.IsBlacklisted {
		return repository.ErrTokenAlreadyRevoked
	}
	old.IsBlacklisted = true
	old.BlacklistedAt = &now
	if replacement.ID == "" {
		replacement.ID = uuid.NewString()
	}
	copied := *replacement
	f.tokens[replacement.ID] = &copied
	return nil
}

func (f *fakeTokens) BlacklistAllForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.tokens {
		if t.UserID == userID && !t.IsBlacklisted {
			t.IsBlacklisted = true
			t.BlacklistedAt = &now
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, t := range f.tokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(f.tokens, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) live(userID string, typ models.AuthTokenType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tokens {
		if t.UserID == userID && t.Type == typ && !t.IsBlacklisted {
			n++
		}
	}
	return n
}

// fakeOneTime stores one-time tokens keyed by digest.
type fakeOneTime struct {
	mu     sync.Mutex
	tokens map[string]*models.OneTimeToken
}

func newFakeOneTime() *fakeOneTime {
	return &fakeOneTime{tokens: map[string]*models.OneTimeToken{}}
}

func (f *fakeOneTime) Create(ctx context.Context, token *models.OneTimeToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	copied := *token
	f.tokens[token.TokenHash] = &copied
	return nil
}

func (f *fakeOneTime) Lookup(ctx context.Context, kind models.OneTimeTokenKind, hash string, now time.Time) (models.OneTimeLookup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[hash]
	if !ok || t.Kind != kind {
		return models.OneTimeLookup{State: models.TokenNotFound}, nil
	}
	copied := *t
	return models.OneTimeLookup{State: copied.Classify(now), Token: &copied}, nil
}

func (f *fakeOneTime) Consume(ctx context.Context, kind models.OneTimeTokenKind, id string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		if t.ID == id && t.Kind == kind && !t.IsUsed && now.Before(t.ExpiresAt) {
			t.IsUsed = true
			t.UsedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOneTime) InvalidateForUser(ctx context.Context, kind models.OneTimeTokenKind, userID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		if t.UserID == userID && t.Kind == kind && !t.IsUsed {
			t.IsUsed = true
			t.UsedAt = &now
		}
	}
	return nil
}

func (f *fakeOneTime) usable(kind models.OneTimeTokenKind, userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tokens {
		if t.UserID == userID && t.Kind == kind && !t.IsUsed {
			n++
		}
	}
	return n
}

// fakeAttempts keeps login attempts in memory.
type fakeAttempts struct {
	mu       sync.Mutex
	attempts []models.LoginAttempt
}

func (f *fakeAttempts) Create(ctx context.Context, attempt *models.LoginAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	f.attempts = append(f.attempts, *attempt)
	return nil
}

func (f *fakeAttempts) failures(ip string, since time.Time) []models.LoginAttempt {
	var out []models.LoginAttempt
	for _, a := range f.attempts {
		if a.IPAddress == ip && !a.Success && !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeAttempts) CountFailuresSince(ctx context.Context, ip string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.failures(ip, since)), nil
}

func (f *fakeAttempts) OldestFailureSince(ctx context.Context, ip string, since time.Time) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.failures(ip, since)
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	oldest := rows[0].CreatedAt
	for _, r := range rows[1:] {
		if r.CreatedAt.Before(oldest) {
			oldest = r.CreatedAt
		}
	}
	return oldest, true, nil
}

func (f *fakeAttempts) List(ctx context.Context, filter models.LoginAttemptFilter) ([]models.LoginAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LoginAttempt
	for _, a := range f.attempts {
		if filter.IPAddress != "" && a.IPAddress != filter.IPAddress {
			continue
		}
		if filter.Email != "" && a.Email != filter.Email {
			continue
		}
		if filter.Success != nil && a.Success != *filter.Success {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAttempts) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.attempts[:0]
	var n int64
	for _, a := range f.attempts {
		if a.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	f.attempts = kept
	return n, nil
}

func (f *fakeAttempts) reasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.attempts))
	for _, a := range f.attempts {
		if a.Success {
			out = append(out, "success")
			continue
		}
		out = append(out, a.FailureReason)
	}
	return out
}

// fakeSessions keeps sessions in memory.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	touchErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*models.Session{}}
}

func (f *fakeSessions) Create(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeSessions) FindByKeyHash(ctx context.Context, hash string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.KeyHash == hash {
			copied := *s
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeSessions) FindByID(ctx context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessions) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.sessions {
		if s.UserID == userID && now.Before(s.ExpiresAt) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessions) Touch(ctx context.Context, id string, lastActive, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.LastActiveAt, s.ExpiresAt = lastActive, expiresAt
	return nil
}

func (f *fakeSessions) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessions) DeleteByUser(ctx context.Context, userID, keepID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.UserID == userID && id != keepID {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

// fakePolicy is an in-memory policy store.
type fakePolicy struct {
	mu        sync.Mutex
	roles     map[string]*models.Role
	elements  map[string]*models.BusinessElement
	rules     map[string]*models.AccessRule
	userRoles map[string][]string
	ruleReads int
	failWith  error
}

func newFakePolicy() *fakePolicy {
	return &fakePolicy{
		roles:     map[string]*models.Role{},
		elements:  map[string]*models.BusinessElement{},
		rules:     map[string]*models.AccessRule{},
		userRoles: map[string][]string{},
	}
}

func (f *fakePolicy) addRole(name string) *models.Role {
	role := &models.Role{ID: "role-" + name, Name: name}
	f.roles[role.ID] = role
	return role
}

func (f *fakePolicy) addElement(name string) *models.BusinessElement {
	element := &models.BusinessElement{ID: "el-" + name, Name: name}
	f.elements[element.ID] = element
	return element
}

func (f *fakePolicy) grant(role, element string, flags models.RuleFlags) {
	rule := &models.AccessRule{ID: "rule-" + role + "-" + element, RoleID: "role-" + role, ElementID: "el-" + element, RoleName: role, ElementName: element}
	flags.Apply(rule)
	f.rules[rule.ID] = rule
}

func (f *fakePolicy) assign(userID string, roles ...string) {
	for _, r := range roles {
		f.userRoles[userID] = append(f.userRoles[userID], "role-"+r)
	}
}

func (f *fakePolicy) ListRoles(ctx context.Context) ([]models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Role
	for _, r := range f.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakePolicy) FindRoleByID(ctx context.Context, id string) (*models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *r
	return &copied, nil
}

func (f *fakePolicy) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, r := range f.roles {
		if r.Name == name {
			copied := *r
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakePolicy) CreateRole(ctx context.Context, role *models.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if role.ID == "" {
		role.ID = "role-" + role.Name
	}
	copied := *role
	f.roles[role.ID] = &copied
	return nil
}

func (f *fakePolicy) UpdateRole(ctx context.Context, role *models.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[role.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *role
	f.roles[role.ID] = &copied
	return nil
}

func (f *fakePolicy) DeleteRole(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.roles, id)
	for rid, rule := range f.rules {
		if rule.RoleID == id {
			delete(f.rules, rid)
		}
	}
	return nil
}

func (f *fakePolicy) ListElements(ctx context.Context) ([]models.BusinessElement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.BusinessElement
	for _, e := range f.elements {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakePolicy) FindElementByID(ctx context.Context, id string) (*models.BusinessElement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.elements[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *e
	return &copied, nil
}

func (f *fakePolicy) FindElementByName(ctx context.Context, name string) (*models.BusinessElement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, e := range f.elements {
		if e.Name == name {
			copied := *e
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakePolicy) CreateElement(ctx context.Context, element *models.BusinessElement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if element.ID == "" {
		element.ID = "el-" + element.Name
	}
	copied := *element
	f.elements[element.ID] = &copied
	return nil
}

func (f *fakePolicy) UpdateElement(ctx context.Context, element *models.BusinessElement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.elements[element.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *element
	f.elements[element.ID] = &copied
	return nil
}

func (f *fakePolicy) DeleteElement(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.elements[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.elements, id)
	return nil
}

func (f *fakePolicy) ListRules(ctx context.Context, filter repository.RuleFilter) ([]models.AccessRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AccessRule
	for _, r := range f.rules {
		if filter.RoleID != "" && r.RoleID != filter.RoleID {
			continue
		}
		if filter.ElementID != "" && r.ElementID != filter.ElementID {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePolicy) FindRuleByID(ctx context.Context, id string) (*models.AccessRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *r
	return &copied, nil
}

func (f *fakePolicy) FindRule(ctx context.Context, roleID, elementID string) (*models.AccessRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ruleReads++
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, r := range f.rules {
		if r.RoleID == roleID && r.ElementID == elementID {
			copied := *r
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakePolicy) UpsertRule(ctx context.Context, rule *models.AccessRule) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules {
		if r.RoleID == rule.RoleID && r.ElementID == rule.ElementID {
			rule.ID = r.ID
			rule.Flags().Apply(r)
			return false, nil
		}
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	copied := *rule
	f.rules[rule.ID] = &copied
	return true, nil
}

func (f *fakePolicy) DeleteRule(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.rules, id)
	return nil
}

func (f *fakePolicy) ListRolesForUser(ctx context.Context, userID string) ([]models.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Role
	for _, id := range f.userRoles[userID] {
		if r, ok := f.roles[id]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakePolicy) AssignRole(ctx context.Context, userID, roleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.userRoles[userID] {
		if id == roleID {
			return false, nil
		}
	}
	f.userRoles[userID] = append(f.userRoles[userID], roleID)
	return true, nil
}

func (f *fakePolicy) RevokeRole(ctx context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	held := f.userRoles[userID]
	for i, id := range held {
		if id == roleID {
			f.userRoles[userID] = append(held[:i], held[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

// fakeCache is a CacheRepository storing JSON like the Redis implementation.
type fakeCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	gets        int
	sets        int
	invalidated int
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (c *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return c.getErr
	}
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.sets++
	c.entries[key] = raw
	return nil
}

func (c *fakeCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

// fakeInvalidator counts Invalidate calls.
type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) Invalidate(ctx context.Context) error {
	f.calls++
	return nil
}

// fakeAudit records audit rows.
type fakeAudit struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (f *fakeAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.logs))
	for _, l := range f.logs {
		out = append(out, l.Action)
	}
	return out
}

// fakeNotifier captures auth events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []AuthEvent
}

func (f *fakeNotifier) Notify(ctx context.Context, event AuthEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeNotifier) last(eventType string) (AuthEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Type == eventType {
			return f.events[i], true
		}
	}
	return AuthEvent{}, false
}

// fakePublisher records broker messages and can fail a number of times.
type fakePublisher struct {
	mu       sync.Mutex
	messages []broker.Message
	failures int
	done     chan struct{}
}

func (f *fakePublisher) Publish(ctx context.Context, msg broker.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.messages = append(f.messages, msg)
	if f.done != nil {
		select {
		case f.done <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func testUser(id string) *models.User {
	return &models.User{
		ID:       id,
		Email:    fmt.Sprintf("%s@example.com", id),
		Username: id,
		IsActive: true,
	}
}
