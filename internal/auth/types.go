package auth

import "time"

// Organisation groups accounts and owns organisation-scoped roles and tasks.
type Organisation struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	PrimaryPhoneNumber string    `json:"primaryPhoneNumber"`
	AdminAccountID     string    `json:"adminAccountId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Account is the local record a verified subject resolves to.
type Account struct {
	ID              string    `json:"id"`
	ExternalSubject string    `json:"firebaseUid"`
	Username        string    `json:"username"`
	FirstName       string    `json:"firstName,omitempty"`
	LastName        string    `json:"lastName,omitempty"`
	Email           string    `json:"email,omitempty"`
	PhoneNumber     string    `json:"phoneNumber,omitempty"`
	OrganisationID  string    `json:"organisationId,omitempty"`
	Roles           RoleSet   `json:"roles"`
	Superuser       bool      `json:"isSuperuser"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Role names that grant the superadmin override when assigned to an account.
const (
	RoleSuperadmin      = "superadmin"
	RoleSuperadminAlias = "super_admin"
)

// IsSuperadmin reports the explicit flag or a superadmin-named role.
func (a Account) IsSuperadmin() bool {
	return a.Superuser || a.Roles.Has(RoleSuperadmin) || a.Roles.Has(RoleSuperadminAlias)
}

// BelongsToOrganisation reports whether the account is a member of any organisation.
func (a Account) BelongsToOrganisation() bool {
	return a.OrganisationID != ""
}

// Role is a named permission tag. An empty OrganisationID marks a global role.
type Role struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	OrganisationID string    `json:"organisationId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PolicyEntry (an RBAC task) binds one URL path to the roles allowed to reach it.
type PolicyEntry struct {
	ID             string    `json:"id"`
	Task           string    `json:"task"`
	URLPath        string    `json:"urlPath"`
	OrganisationID string    `json:"organisationId,omitempty"`
	Roles          RoleSet   `json:"roles"`
	CreatedAt      time.Time `json:"createdAt"`
}
