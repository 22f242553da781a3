package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"duka.app/internal/audit"
	"duka.app/internal/auth"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// createTaskRequest accepts roles as ["admin"] or [{"admin": true}].
type createTaskRequest struct {
	URLPath string       `json:"urlPath"`
	Task    string       `json:"task"`
	Roles   auth.RoleSet `json:"roles"`
}

func (a *API) handleCreateRoles(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "bad request", err.Error())
		return
	}
	if missing := missingFields(map[string]string{
		"name":        req.Name,
		"description": req.Description,
	}, "name", "description"); len(missing) > 0 {
		writeEnvelope(w, http.StatusBadRequest, "bad request", "Expected fields "+strings.Join(missing, ", "))
		return
	}
	if msg, bad := roleNameTooLong(req.Name); bad {
		writeEnvelope(w, http.StatusBadRequest, "bad request", msg)
		return
	}
	role := &auth.Role{
		Name:           strings.TrimSpace(req.Name),
		Description:    strings.TrimSpace(req.Description),
		OrganisationID: p.Account.OrganisationID,
	}
	if err := a.directory.CreateRole(r.Context(), role); err != nil {
		a.storeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.create", map[string]any{"role_id": role.ID, "name": role.Name})
	writeEnvelope(w, http.StatusOK, "success", role)
}

func (a *API) handleGetRoles(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	roles, err := a.directory.ListRoles(r.Context(), auth.ScopeFor(p.Account))
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "success", roles)
}

// handleAddRbacTask binds a path to roles, creating roles that do not exist yet.
func (a *API) handleAddRbacTask(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, "bad request", err.Error())
		return
	}
	missing := missingFields(map[string]string{
		"urlPath": req.URLPath,
		"task":    req.Task,
	}, "urlPath", "task")
	if len(req.Roles) == 0 {
		missing = append(missing, "roles")
	}
	if len(missing) > 0 {
		writeEnvelope(w, http.StatusBadRequest, "bad request", "Missing field(s): "+strings.Join(missing, ", "))
		return
	}
	path := strings.TrimSpace(req.URLPath)
	if !strings.HasPrefix(path, "/") {
		writeEnvelope(w, http.StatusBadRequest, "bad request", "urlPath must start with /")
		return
	}

	if msg, bad := roleNameTooLong(req.Roles.Names()...); bad {
		writeEnvelope(w, http.StatusBadRequest, "bad request", msg)
		return
	}

	ctx := r.Context()
	if _, err := a.directory.EnsureRoles(ctx, req.Roles.Names()); err != nil {
		a.storeError(w, r, err)
		return
	}
	entry := &auth.PolicyEntry{
		Task:           strings.TrimSpace(req.Task),
		URLPath:        path,
		OrganisationID: p.Account.OrganisationID,
		Roles:          req.Roles,
	}
	if err := a.directory.CreatePolicy(ctx, entry); err != nil {
		a.storeError(w, r, err)
		return
	}
	_ = audit.LogEvent(ctx, "rbac.task.create", map[string]any{
		"task_id":  entry.ID,
		"task":     entry.Task,
		"url_path": entry.URLPath,
		"roles":    entry.Roles.Names(),
	})
	writeEnvelope(w, http.StatusOK, "success", entry)
}

func (a *API) handleListRbacTasks(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	tasks, err := a.directory.ListPolicies(r.Context(), auth.ScopeFor(p.Account))
	if err != nil {
		a.storeError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "success", tasks)
}

func roleNameTooLong(names ...string) (string, bool) {
	for _, name := range names {
		if utf8.RuneCountInString(strings.TrimSpace(name)) > auth.MaxRoleNameLength {
			return fmt.Sprintf("Role name %q exceeds %d characters", name, auth.MaxRoleNameLength), true
		}
	}
	return "", false
}
