package auth

import "context"

// AccountStore looks accounts up by their external subject identifier.
// Implementations return ErrNotFound when no account carries the subject.
type AccountStore interface {
	FindAccountBySubject(ctx context.Context, subject string) (Account, error)
}

// PolicyStore looks RBAC tasks up by exact URL path. Implementations return
// ErrNotFound when no task is registered and ErrAmbiguousPolicy when more
// than one is.
type PolicyStore interface {
	FindPolicy(ctx context.Context, path string) (PolicyEntry, error)
}

// Directory is the read-write store behind registration and RBAC administration.
type Directory interface {
	AccountStore
	PolicyStore

	CreateAccount(ctx context.Context, account *Account) error
	SetMembership(ctx context.Context, accountID, organisationID string, roles []string) error

	CreateOrganisation(ctx context.Context, org *Organisation) error
	GetOrganisation(ctx context.Context, id string) (Organisation, error)

	CreateRole(ctx context.Context, role *Role) error
	EnsureRoles(ctx context.Context, names []string) ([]Role, error)
	ListRoles(ctx context.Context, scope Scope) ([]Role, error)

	CreatePolicy(ctx context.Context, entry *PolicyEntry) error
	ListPolicies(ctx context.Context, scope Scope) ([]PolicyEntry, error)
}

// Scope selects which organisation-owned rows a listing returns. Rows with
// no organisation are always included.
type Scope struct {
	OrganisationID string
	// All drops the organisation filter.
	All bool
}

// ScopeFor lists acc's own organisation, or everything for a superadmin.
func ScopeFor(acc Account) Scope {
	return Scope{OrganisationID: acc.OrganisationID, All: acc.IsSuperadmin()}
}

// Includes reports whether a row owned by organisationID is in scope.
func (s Scope) Includes(organisationID string) bool {
	return s.All || organisationID == "" || (s.OrganisationID != "" && organisationID == s.OrganisationID)
}
