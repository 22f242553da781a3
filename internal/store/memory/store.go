// Package memory is an in-process auth.Directory used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"duka.app/internal/auth"
	"duka.app/internal/ids"
)

var _ auth.Directory = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	accounts      map[string]auth.Account // by id
	subjects      map[string]string       // external subject -> account id
	organisations map[string]auth.Organisation
	roles         map[string]auth.Role // by name
	policies      map[string]auth.PolicyEntry
	policyPaths   map[string]string // url path -> policy id
	now           func() time.Time
}

func New() *Store {
	return &Store{
		accounts:      make(map[string]auth.Account),
		subjects:      make(map[string]string),
		organisations: make(map[string]auth.Organisation),
		roles:         make(map[string]auth.Role),
		policies:      make(map[string]auth.PolicyEntry),
		policyPaths:   make(map[string]string),
		now:           time.Now,
	}
}

func (s *Store) FindAccountBySubject(_ context.Context, subject string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.subjects[subject]
	if !ok {
		return auth.Account{}, auth.ErrNotFound
	}
	return cloneAccount(s.accounts[id]), nil
}

func (s *Store) FindPolicy(_ context.Context, path string) (auth.PolicyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.policyPaths[path]
	if !ok {
		return auth.PolicyEntry{}, auth.ErrNotFound
	}
	return clonePolicy(s.policies[id]), nil
}

func (s *Store) CreateAccount(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subjects[account.ExternalSubject]; ok {
		return fmt.Errorf("%w: account for subject %s", auth.ErrConflict, account.ExternalSubject)
	}
	for name := range account.Roles {
		if _, ok := s.roles[name]; !ok {
			return fmt.Errorf("%w: role %s", auth.ErrNotFound, name)
		}
	}
	if account.ID == "" {
		account.ID = ids.NewPrefixed("acc")
	}
	account.CreatedAt = s.now().UTC()
	s.accounts[account.ID] = cloneAccount(*account)
	s.subjects[account.ExternalSubject] = account.ID
	return nil
}

func (s *Store) SetMembership(_ context.Context, accountID, organisationID string, roles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: account %s", auth.ErrNotFound, accountID)
	}
	if organisationID != "" {
		if _, ok := s.organisations[organisationID]; !ok {
			return fmt.Errorf("%w: organisation %s", auth.ErrNotFound, organisationID)
		}
	}
	set := auth.NewRoleSet(roles...)
	for name := range set {
		if _, ok := s.roles[name]; !ok {
			return fmt.Errorf("%w: role %s", auth.ErrNotFound, name)
		}
	}
	acc.OrganisationID = organisationID
	acc.Roles = set
	s.accounts[accountID] = acc
	return nil
}

func (s *Store) CreateOrganisation(_ context.Context, org *auth.Organisation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.organisations {
		if strings.EqualFold(existing.Name, org.Name) || existing.PrimaryPhoneNumber == org.PrimaryPhoneNumber {
			return fmt.Errorf("%w: organisation %s", auth.ErrConflict, org.Name)
		}
	}
	if org.ID == "" {
		org.ID = ids.NewPrefixed("org")
	}
	org.CreatedAt = s.now().UTC()
	s.organisations[org.ID] = *org
	return nil
}

func (s *Store) GetOrganisation(_ context.Context, id string) (auth.Organisation, error) {
	if !ids.Valid(id) {
		return auth.Organisation{}, auth.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.organisations[id]
	if !ok {
		return auth.Organisation{}, auth.ErrNotFound
	}
	return org, nil
}

func (s *Store) CreateRole(_ context.Context, role *auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.Name]; ok {
		return fmt.Errorf("%w: role %s", auth.ErrConflict, role.Name)
	}
	if role.ID == "" {
		role.ID = ids.NewPrefixed("role")
	}
	role.CreatedAt = s.now().UTC()
	s.roles[role.Name] = *role
	return nil
}

func (s *Store) EnsureRoles(_ context.Context, names []string) ([]auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := auth.NewRoleSet(names...)
	out := make([]auth.Role, 0, len(set))
	for _, name := range set.Names() {
		role, ok := s.roles[name]
		if !ok {
			role = auth.Role{ID: ids.NewPrefixed("role"), Name: name, CreatedAt: s.now().UTC()}
			s.roles[name] = role
		}
		out = append(out, role)
	}
	return out, nil
}

// ListRoles returns the roles in scope.
func (s *Store) ListRoles(_ context.Context, scope auth.Scope) ([]auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.Role
	for _, role := range s.roles {
		if scope.Includes(role.OrganisationID) {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreatePolicy(_ context.Context, entry *auth.PolicyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policyPaths[entry.URLPath]; ok {
		return fmt.Errorf("%w: rbac task for path %s", auth.ErrConflict, entry.URLPath)
	}
	for _, p := range s.policies {
		if p.Task == entry.Task {
			return fmt.Errorf("%w: rbac task %s", auth.ErrConflict, entry.Task)
		}
	}
	for name := range entry.Roles {
		if _, ok := s.roles[name]; !ok {
			return fmt.Errorf("%w: role %s", auth.ErrNotFound, name)
		}
	}
	if entry.ID == "" {
		entry.ID = ids.NewPrefixed("task")
	}
	entry.CreatedAt = s.now().UTC()
	s.policies[entry.ID] = clonePolicy(*entry)
	s.policyPaths[entry.URLPath] = entry.ID
	return nil
}

// ListPolicies returns the tasks in scope.
func (s *Store) ListPolicies(_ context.Context, scope auth.Scope) ([]auth.PolicyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.PolicyEntry
	for _, p := range s.policies {
		if scope.Includes(p.OrganisationID) {
			out = append(out, clonePolicy(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URLPath < out[j].URLPath })
	return out, nil
}

func cloneAccount(a auth.Account) auth.Account {
	a.Roles = auth.NewRoleSet(a.Roles.Names()...)
	return a
}

func clonePolicy(p auth.PolicyEntry) auth.PolicyEntry {
	p.Roles = auth.NewRoleSet(p.Roles.Names()...)
	return p
}
