package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"duka.app/internal/audit"
	"duka.app/internal/auth"
	"duka.app/internal/obs"
)

const (
	roleClient = "client"
	roleAdmin  = "admin"
)

type createUserRequest struct {
	Username    string `json:"username"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
}

// adminCreateUserRequest registers an account for an existing external
// subject inside the caller's organisation.
type adminCreateUserRequest struct {
	createUserRequest
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

type createOrganisationRequest struct {
	Name               string `json:"name"`
	PrimaryPhoneNumber string `json:"primaryPhoneNumber"`
}

func (a *API) handleTestView(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	writeEnvelope(w, http.StatusOK, "Success", map[string]any{})
}

func (a *API) handleMyView(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	writeEnvelope(w, http.StatusOK, "Success", map[string]any{
		"message": "Hello " + p.Account.Username,
	})
}

// handleCreateNewUser registers the caller. It is exempt from the gate
// because the account does not exist yet, so it verifies the token itself.
func (a *API) handleCreateNewUser(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeEnvelope(w, http.StatusUnauthorized, auth.MessageUnauthorised, "Missing or invalid auth token")
		return
	}
	if a.verifier == nil {
		writeEnvelope(w, http.StatusInternalServerError, auth.MessageInternal, "token verifier unavailable")
		return
	}
	verified, err := a.verifier.Verify(r.Context(), token)
	if err != nil {
		writeEnvelope(w, http.StatusUnauthorized, auth.MessageInvalid, err.Error())
		return
	}

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "bad request", err.Error())
		return
	}
	if missing := missingFields(map[string]string{
		"username":    req.Username,
		"firstName":   req.FirstName,
		"lastName":    req.LastName,
		"phoneNumber": req.PhoneNumber,
		"email":       req.Email,
	}, "username", "firstName", "lastName", "phoneNumber", "email"); len(missing) > 0 {
		writeEnvelope(w, http.StatusBadRequest, "bad request", "Missing field(s): "+strings.Join(missing, ", "))
		return
	}

	ctx := r.Context()
	if _, err := a.directory.EnsureRoles(ctx, []string{roleClient}); err != nil {
		a.storeError(w, r, err)
		return
	}
	account := &auth.Account{
		ExternalSubject: verified.Subject,
		Username:        strings.TrimSpace(req.Username),
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
		PhoneNumber:     strings.TrimSpace(req.PhoneNumber),
		Email:           strings.TrimSpace(req.Email),
		Roles:           auth.NewRoleSet(roleClient),
	}
	if err := a.directory.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, auth.ErrConflict) {
			writeEnvelope(w, http.StatusConflict, "Conflict", "User already exists")
			return
		}
		a.storeError(w, r, err)
		return
	}
	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{SubjectID: verified.Subject, Account: *account})
	_ = audit.LogEvent(ctx, "account.create", map[string]any{"username": account.Username})
	writeEnvelope(w, http.StatusCreated, "User created successfully", account)
}

// handleAdminCreateNewUser lets an organisation member enrol another
// subject into the same organisation with a single named role. Who may call
// it is decided by the RBAC task bound to its path.
func (a *API) handleAdminCreateNewUser(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	if !p.Account.BelongsToOrganisation() {
		writeEnvelope(w, http.StatusForbidden, auth.MessageForbidden, "User does not belong to an organisation")
		return
	}

	var req adminCreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "bad request", err.Error())
		return
	}
	if missing := missingFields(map[string]string{
		"username":    req.Username,
		"firstName":   req.FirstName,
		"lastName":    req.LastName,
		"phoneNumber": req.PhoneNumber,
		"email":       req.Email,
		"subject":     req.Subject,
		"role":        req.Role,
	}, "username", "firstName", "lastName", "phoneNumber", "email", "subject", "role"); len(missing) > 0 {
		writeEnvelope(w, http.StatusBadRequest, "bad request", "Missing field(s): "+strings.Join(missing, ", "))
		return
	}
	role := strings.TrimSpace(req.Role)
	if msg, bad := roleNameTooLong(role); bad {
		writeEnvelope(w, http.StatusBadRequest, "bad request", msg)
		return
	}

	ctx := r.Context()
	account := &auth.Account{
		ExternalSubject: strings.TrimSpace(req.Subject),
		Username:        strings.TrimSpace(req.Username),
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
		PhoneNumber:     strings.TrimSpace(req.PhoneNumber),
		Email:           strings.TrimSpace(req.Email),
		Roles:           auth.NewRoleSet(role),
	}
	if err := a.directory.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, auth.ErrConflict) {
			writeEnvelope(w, http.StatusConflict, "Conflict", "User already exists")
			return
		}
		a.storeError(w, r, err)
		return
	}
	if err := a.directory.SetMembership(ctx, account.ID, p.Account.OrganisationID, []string{role}); err != nil {
		a.storeError(w, r, err)
		return
	}
	account.OrganisationID = p.Account.OrganisationID
	_ = audit.LogEvent(ctx, "account.admin_create", map[string]any{
		"created_account_id": account.ID,
		"username":           account.Username,
		"role":               role,
	})
	writeEnvelope(w, http.StatusCreated, "User created successfully", account)
}

func (a *API) handleGetUserDetails(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	writeEnvelope(w, http.StatusOK, "success", p.Account)
}

func (a *API) handleGetOrganisationDetails(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	if !p.Account.BelongsToOrganisation() {
		writeEnvelope(w, http.StatusNotFound, "not found", "User does not belong to an organisation")
		return
	}
	org, err := a.directory.GetOrganisation(r.Context(), p.Account.OrganisationID)
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "success", org)
}

// handleCreateOrganisation creates an organisation administered by the
// caller, whose roles are replaced by admin.
func (a *API) handleCreateOrganisation(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createOrganisationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "invalid JSON", err.Error())
		return
	}
	if missing := missingFields(map[string]string{
		"name":               req.Name,
		"primaryPhoneNumber": req.PrimaryPhoneNumber,
	}, "name", "primaryPhoneNumber"); len(missing) > 0 {
		writeEnvelope(w, http.StatusBadRequest, "bad request", "Expected fields "+strings.Join(missing, ", "))
		return
	}

	ctx := r.Context()
	if _, err := a.directory.EnsureRoles(ctx, []string{roleAdmin}); err != nil {
		a.storeError(w, r, err)
		return
	}
	org := &auth.Organisation{
		Name:               strings.TrimSpace(req.Name),
		PrimaryPhoneNumber: strings.TrimSpace(req.PrimaryPhoneNumber),
		AdminAccountID:     p.Account.ID,
	}
	if err := a.directory.CreateOrganisation(ctx, org); err != nil {
		a.storeError(w, r, err)
		return
	}
	if err := a.directory.SetMembership(ctx, p.Account.ID, org.ID, []string{roleAdmin}); err != nil {
		a.storeError(w, r, err)
		return
	}
	_ = audit.LogEvent(ctx, "organisation.create", map[string]any{
		"organisation_id": org.ID,
		"name":            org.Name,
	})
	writeEnvelope(w, http.StatusOK, "success", org)
}

// principal returns the account the gate attached. Its absence means the
// route was reached without authorization, which is a wiring fault.
func (a *API) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok || p.Account.ID == "" {
		writeEnvelope(w, http.StatusUnauthorized, auth.MessageUnauthorised, "Bad Request")
		return auth.Principal{}, false
	}
	return p, true
}

func (a *API) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeEnvelope(w, http.StatusBadRequest, "bad request", err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeEnvelope(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeEnvelope(w, http.StatusNotFound, "not found", err.Error())
	default:
		obs.Error("store_operation_failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
			"error":      err,
		})
		writeEnvelope(w, http.StatusInternalServerError, "internal server error", fmt.Sprintf("request %s failed", RequestIDFromContext(r.Context())))
	}
}
