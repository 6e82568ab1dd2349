package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/bookhub-api/internal/models"
)

// wildcardElement in a seed rule expands to every seeded element.
const wildcardElement = "*"

// PolicySeedFile is the YAML document read by the policy seeder.
type PolicySeedFile struct {
	Roles    []SeedEntry `yaml:"roles"`
	Elements []SeedEntry `yaml:"elements"`
	Rules    []SeedRule  `yaml:"rules"`
}

// SeedEntry names a role or element.
type SeedEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// SeedRule grants flags on one element (or "*") to a role. Grants use the
// flag names read, read_all, create, update, update_all, delete, delete_all,
// or "all" for every flag.
type SeedRule struct {
	Role    string   `yaml:"role"`
	Element string   `yaml:"element"`
	Grants  []string `yaml:"grants"`
}

// SeedReport counts the rows a seed run changed.
type SeedReport struct {
	RolesCreated    int `json:"roles_created"`
	ElementsCreated int `json:"elements_created"`
	RulesCreated    int `json:"rules_created"`
	RulesUpdated    int `json:"rules_updated"`
}

type seedStore interface {
	FindRoleByName(ctx context.Context, name string) (*models.Role, error)
	CreateRole(ctx context.Context, role *models.Role) error
	FindElementByName(ctx context.Context, name string) (*models.BusinessElement, error)
	CreateElement(ctx context.Context, element *models.BusinessElement) error
	UpsertRule(ctx context.Context, rule *models.AccessRule) (bool, error)
}

// LoadPolicySeed reads a seed file from path.
func LoadPolicySeed(path string) (*PolicySeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open policy seed: %w", err)
	}
	defer f.Close()
	return DecodePolicySeed(f)
}

// DecodePolicySeed parses and validates a seed document.
func DecodePolicySeed(r io.Reader) (*PolicySeedFile, error) {
	var seed PolicySeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode policy seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks that every rule references a declared role and element and
// uses known grant names.
func (f *PolicySeedFile) Validate() error {
	roles := make(map[string]struct{}, len(f.Roles))
	for _, r := range f.Roles {
		if strings.TrimSpace(r.Name) == "" {
			return errors.New("policy seed: role without name")
		}
		roles[r.Name] = struct{}{}
	}
	elements := make(map[string]struct{}, len(f.Elements))
	for _, e := range f.Elements {
		if strings.TrimSpace(e.Name) == "" {
			return errors.New("policy seed: element without name")
		}
		elements[e.Name] = struct{}{}
	}
	for i, rule := range f.Rules {
		if _, ok := roles[rule.Role]; !ok {
			return fmt.Errorf("policy seed: rule %d references unknown role %q", i, rule.Role)
		}
		if _, ok := elements[rule.Element]; !ok && rule.Element != wildcardElement {
			return fmt.Errorf("policy seed: rule %d references unknown element %q", i, rule.Element)
		}
		if _, err := parseGrants(rule.Grants); err != nil {
			return fmt.Errorf("policy seed: rule %d: %w", i, err)
		}
	}
	return nil
}

// DefaultPolicySeed is the built-in bookstore policy, used when no seed file
// is configured.
func DefaultPolicySeed() *PolicySeedFile {
	elements := make([]SeedEntry, 0, len(models.BuiltinElements))
	for _, name := range models.BuiltinElements {
		elements = append(elements, SeedEntry{Name: name})
	}
	own := []string{"read", "create", "update", "delete"}
	catalog := []string{"read", "read_all"}
	return &PolicySeedFile{
		Roles: []SeedEntry{
			{Name: models.RoleAdmin, Description: "Full access to every element"},
			{Name: models.RoleManager, Description: "Manages the catalog and orders"},
			{Name: models.RoleCustomer, Description: "Default role for registered users"},
			{Name: models.RoleGuest, Description: "Fallback for users without roles"},
		},
		Elements: elements,
		Rules: []SeedRule{
			{Role: models.RoleAdmin, Element: wildcardElement, Grants: []string{"all"}},
			{Role: models.RoleManager, Element: models.ElementProduct, Grants: []string{"all"}},
			{Role: models.RoleManager, Element: models.ElementCategory, Grants: []string{"all"}},
			{Role: models.RoleManager, Element: models.ElementOrder, Grants: []string{"all"}},
			{Role: models.RoleManager, Element: models.ElementReview, Grants: []string{"all"}},
			{Role: models.RoleCustomer, Element: models.ElementUser, Grants: []string{"read", "update"}},
			{Role: models.RoleCustomer, Element: models.ElementOrder, Grants: own},
			{Role: models.RoleCustomer, Element: models.ElementCart, Grants: own},
			{Role: models.RoleCustomer, Element: models.ElementReview, Grants: own},
			{Role: models.RoleCustomer, Element: models.ElementProduct, Grants: catalog},
			{Role: models.RoleCustomer, Element: models.ElementCategory, Grants: catalog},
			{Role: models.RoleGuest, Element: models.ElementProduct, Grants: catalog},
			{Role: models.RoleGuest, Element: models.ElementCategory, Grants: catalog},
		},
	}
}

// PolicySeeder writes a seed document into the policy store. Running it twice
// leaves the store unchanged.
type PolicySeeder struct {
	store  seedStore
	cache  policyInvalidator
	logger *zap.Logger
}

// NewPolicySeeder constructs a seeder. cache may be nil.
func NewPolicySeeder(store seedStore, cache policyInvalidator, logger *zap.Logger) *PolicySeeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicySeeder{store: store, cache: cache, logger: logger}
}

// Apply creates missing roles and elements and upserts every rule. Existing
// roles and elements are left untouched.
func (s *PolicySeeder) Apply(ctx context.Context, seed *PolicySeedFile) (SeedReport, error) {
	var report SeedReport
	if err := seed.Validate(); err != nil {
		return report, err
	}

	roleIDs := make(map[string]string, len(seed.Roles))
	for _, entry := range seed.Roles {
		role, err := s.store.FindRoleByName(ctx, entry.Name)
		if errors.Is(err, sql.ErrNoRows) {
			role = &models.Role{Name: entry.Name, Description: entry.Description}
			if err = s.store.CreateRole(ctx, role); err == nil {
				report.RolesCreated++
			}
		}
		if err != nil {
			return report, fmt.Errorf("seed role %s: %w", entry.Name, err)
		}
		roleIDs[entry.Name] = role.ID
	}

	elementIDs := make(map[string]string, len(seed.Elements))
	elementOrder := make([]string, 0, len(seed.Elements))
	for _, entry := range seed.Elements {
		element, err := s.store.FindElementByName(ctx, entry.Name)
		if errors.Is(err, sql.ErrNoRows) {
			element = &models.BusinessElement{Name: entry.Name, Description: entry.Description}
			if err = s.store.CreateElement(ctx, element); err == nil {
				report.ElementsCreated++
			}
		}
		if err != nil {
			return report, fmt.Errorf("seed element %s: %w", entry.Name, err)
		}
		elementIDs[entry.Name] = element.ID
		elementOrder = append(elementOrder, entry.Name)
	}

	for _, rule := range seed.Rules {
		flags, _ := parseGrants(rule.Grants)
		targets := []string{rule.Element}
		if rule.Element == wildcardElement {
			targets = elementOrder
		}
		for _, element := range targets {
			record := &models.AccessRule{RoleID: roleIDs[rule.Role], ElementID: elementIDs[element]}
			flags.Apply(record)
			created, err := s.store.UpsertRule(ctx, record)
			if err != nil {
				return report, fmt.Errorf("seed rule %s/%s: %w", rule.Role, element, err)
			}
			if created {
				report.RulesCreated++
			} else {
				report.RulesUpdated++
			}
		}
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("failed to invalidate policy cache after seed", zap.Error(err))
		}
	}
	s.logger.Info("policy seed applied",
		zap.Int("roles_created", report.RolesCreated),
		zap.Int("elements_created", report.ElementsCreated),
		zap.Int("rules_created", report.RulesCreated),
		zap.Int("rules_updated", report.RulesUpdated),
	)
	return report, nil
}

func parseGrants(grants []string) (models.RuleFlags, error) {
	var f models.RuleFlags
	for _, g := range grants {
		switch strings.ToLower(strings.TrimSpace(g)) {
		case "all":
			f = models.RuleFlags{Read: true, ReadAll: true, Create: true, Update: true, UpdateAll: true, Delete: true, DeleteAll: true}
		case "read":
			f.Read = true
		case "read_all":
			f.ReadAll = true
		case "create":
			f.Create = true
		case "update":
			f.Update = true
		case "update_all":
			f.UpdateAll = true
		case "delete":
			f.Delete = true
		case "delete_all":
			f.DeleteAll = true
		default:
			return f, fmt.Errorf("unknown grant %q", g)
		}
	}
	return f, nil
}
