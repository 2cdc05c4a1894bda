package rbac

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/audit"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/auth"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/authz"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/catalog"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/httputil"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/observability"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

// Handlers provides HTTP handlers for role management
type Handlers struct {
	store    *Store
	enforcer *authz.Enforcer
	resolver *authz.Resolver
	recorder audit.Recorder
}

// NewHandlers creates role handlers. The resolver is told about every change
// to a role's grants so cached permission sets are dropped.
func NewHandlers(store *Store, enforcer *authz.Enforcer, resolver *authz.Resolver, recorder audit.Recorder) *Handlers {
	if recorder == nil {
		recorder = audit.Discard{}
	}
	return &Handlers{
		store:    store,
		enforcer: enforcer,
		resolver: resolver,
		recorder: recorder,
	}
}

// RegisterRoutes registers the tenant-scoped role routes. The router must
// sit behind authentication and the tenancy guard.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	require := func(module string, op catalog.Operation, fn http.HandlerFunc) http.Handler {
		return h.enforcer.RequireFunc(module, op, fn)
	}

	router.Handle("/roles", require(catalog.ModuleRoles, catalog.OpView, h.ListRoles)).Methods(http.MethodGet)
	router.Handle("/roles", require(catalog.ModuleRoles, catalog.OpCreate, h.CreateRole)).Methods(http.MethodPost)
	router.Handle("/roles", require(catalog.ModuleRoles, catalog.OpDelete, h.BulkDeleteRoles)).Methods(http.MethodDelete)
	router.Handle("/roles/{id:[0-9]+}", require(catalog.ModuleRoles, catalog.OpView, h.GetRole)).Methods(http.MethodGet)
	router.Handle("/roles/{id:[0-9]+}", require(catalog.ModuleRoles, catalog.OpEdit, h.UpdateRole)).Methods(http.MethodPut)
	router.Handle("/roles/{id:[0-9]+}", require(catalog.ModuleRoles, catalog.OpDelete, h.DeleteRole)).Methods(http.MethodDelete)
	router.Handle("/roles/{id:[0-9]+}/permissions", require(catalog.ModuleRoles, catalog.OpEdit, h.SyncPermissions)).Methods(http.MethodPut)
	router.Handle("/roles/{id:[0-9]+}/permissions/{module}/{operation}",
		require(catalog.ModuleRoles, catalog.OpEdit, h.AddPermissionType)).Methods(http.MethodPost)
	router.Handle("/roles/{id:[0-9]+}/permissions/{module}/{operation}",
		require(catalog.ModuleRoles, catalog.OpEdit, h.RemovePermissionType)).Methods(http.MethodDelete)

	router.Handle("/users", require(catalog.ModuleUsers, catalog.OpView, h.ListUsers)).Methods(http.MethodGet)
	router.Handle("/users/{id:[0-9]+}", require(catalog.ModuleUsers, catalog.OpView, h.GetUser)).Methods(http.MethodGet)
	router.Handle("/users/{id:[0-9]+}/status", require(catalog.ModuleUsers, catalog.OpEdit, h.UpdateUserStatus)).Methods(http.MethodPut)
	router.Handle("/users/{id:[0-9]+}/role", require(catalog.ModuleUsers, catalog.OpEdit, h.AssignUserRole)).Methods(http.MethodPut)
}

// RegisterSelfRoutes registers routes about the caller. They need an
// identity but no tenant, so they may sit outside the tenancy guard.
func (h *Handlers) RegisterSelfRoutes(router *mux.Router) {
	router.HandleFunc("/user/permissions", h.UserPermissions).Methods(http.MethodGet)
}

// writeError maps store errors onto responses
func writeError(w http.ResponseWriter, r *http.Request, err error, message string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.WriteValidationErrors(w, verr.Fields)
	case errors.Is(err, ErrRoleNotFound):
		httputil.WriteNotFound(w, "role not found")
	case errors.Is(err, ErrUserNotFound):
		httputil.WriteNotFound(w, "user not found")
	case errors.Is(err, ErrBuiltInRole):
		httputil.WriteBadRequest(w, "built-in roles cannot be deleted")
	case errors.Is(err, ErrRoleInUse):
		httputil.WriteConflict(w, "role has assigned users; pass reassign_to to move them first")
	case errors.Is(err, tenancy.ErrTenantRequired):
		httputil.WriteTenantRequired(w)
	default:
		observability.FromContext(r.Context()).WithError(err).Error(message)
		httputil.WriteInternalError(w, message)
	}
}

func (h *Handlers) invalidate(ctx context.Context, scope tenancy.Scope, roleID int64) {
	if h.resolver == nil {
		return
	}
	if err := h.resolver.Invalidate(ctx, scope, roleID); err != nil {
		observability.FromContext(ctx).WithError(err).WithField("role_id", roleID).
			Warn("failed to invalidate cached permissions")
	}
}

func (h *Handlers) record(ctx context.Context, action audit.Action, entityType string, id int64, details map[string]interface{}) {
	h.recorder.Record(ctx, audit.Event{
		Action:     action,
		EntityType: entityType,
		EntityID:   &id,
		Details:    details,
	})
}

// ListRoles handles GET /roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	roles, err := h.store.ListRoles(r.Context(), scope)
	if err != nil {
		writeError(w, r, err, "failed to list roles")
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}

// GetRole handles GET /roles/{id}
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	role, err := h.store.GetRole(r.Context(), scope, id)
	if err != nil {
		writeError(w, r, err, "failed to get role")
		return
	}
	httputil.WriteSuccess(w, role)
}

// CreateRole handles POST /roles
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	var in RoleInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	role, err := h.store.CreateRole(r.Context(), scope, in)
	if err != nil {
		writeError(w, r, err, "failed to create role")
		return
	}
	h.record(r.Context(), audit.ActionRoleCreated, "role", role.ID, map[string]interface{}{
		"role_name":   role.Name,
		"permissions": role.Permissions.Len(),
	})
	httputil.WriteCreated(w, role)
}

// UpdateRole handles PUT /roles/{id}
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var in RoleInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	role, err := h.store.UpdateRole(r.Context(), scope, id, in)
	if err != nil {
		writeError(w, r, err, "failed to update role")
		return
	}
	if in.Permissions != nil {
		h.invalidate(r.Context(), scope, id)
	}
	h.record(r.Context(), audit.ActionRoleUpdated, "role", id, map[string]interface{}{
		"role_name":           role.Name,
		"permissions_updated": in.Permissions != nil,
	})
	httputil.WriteSuccess(w, role)
}

// DeleteRole handles DELETE /roles/{id}?reassign_to=N
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	reassignTo, err := httputil.ParseQueryInt64Ptr(r, "reassign_to")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	deleted, err := h.store.DeleteRole(r.Context(), scope, id, reassignTo)
	if err != nil {
		writeError(w, r, err, "failed to delete role")
		return
	}
	h.afterDelete(r.Context(), scope, *deleted)
	httputil.WriteSuccess(w, deleted)
}

func (h *Handlers) afterDelete(ctx context.Context, scope tenancy.Scope, d DeletedRole) {
	h.invalidate(ctx, scope, d.ID)
	details := map[string]interface{}{"role_name": d.Name}
	if d.ReassignedTo != nil {
		details["reassigned_to"] = *d.ReassignedTo
		details["reassigned_users"] = d.ReassignedUsers
	}
	h.record(ctx, audit.ActionRoleDeleted, "role", d.ID, details)

	if d.ReassignedTo != nil && d.ReassignedUsers > 0 {
		h.record(ctx, audit.ActionUserRoleChanged, "role", *d.ReassignedTo, map[string]interface{}{
			"from_role_id": d.ID,
			"to_role_id":   *d.ReassignedTo,
			"user_count":   d.ReassignedUsers,
		})
	}
}

// BulkDeleteRequest is the body of DELETE /roles
type BulkDeleteRequest struct {
	RoleIDs    []int64 `json:"role_ids"`
	ReassignTo *int64  `json:"reassign_to"`
}

// BulkDeleteRoles handles DELETE /roles
func (h *Handlers) BulkDeleteRoles(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	var req BulkDeleteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.RoleIDs) == 0 {
		httputil.WriteValidationErrors(w, map[string]string{"role_ids": "role_ids is required"})
		return
	}

	result, deleted, err := h.store.BulkDeleteRoles(r.Context(), scope, req.RoleIDs, req.ReassignTo)
	if err != nil {
		writeError(w, r, err, "failed to delete roles")
		return
	}
	for _, d := range deleted {
		h.afterDelete(r.Context(), scope, d)
	}
	httputil.WriteSuccess(w, result)
}

// SyncPermissionsRequest is the body of PUT /roles/{id}/permissions
type SyncPermissionsRequest struct {
	Permissions map[string][]string `json:"permissions"`
}

// SyncPermissions handles PUT /roles/{id}/permissions
func (h *Handlers) SyncPermissions(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req SyncPermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	grants, err := h.store.ParseGrants(req.Permissions)
	if err != nil {
		writeError(w, r, err, "failed to update permissions")
		return
	}

	perms, err := h.store.SyncPermissions(r.Context(), scope, id, grants)
	if err != nil {
		writeError(w, r, err, "failed to update permissions")
		return
	}
	h.invalidate(r.Context(), scope, id)
	h.record(r.Context(), audit.ActionRolePermissionsUpdated, "role", id, map[string]interface{}{
		"change":  "sync",
		"modules": perms.Modules(),
	})
	httputil.WriteSuccess(w, map[string]interface{}{"role_id": id, "permissions": perms})
}

// AddPermissionType handles POST /roles/{id}/permissions/{module}/{operation}
func (h *Handlers) AddPermissionType(w http.ResponseWriter, r *http.Request) {
	h.changePermissionType(w, r, "added", h.store.AddPermissionType)
}

// RemovePermissionType handles DELETE /roles/{id}/permissions/{module}/{operation}
func (h *Handlers) RemovePermissionType(w http.ResponseWriter, r *http.Request) {
	h.changePermissionType(w, r, "removed", h.store.RemovePermissionType)
}

type permissionChange func(ctx context.Context, scope tenancy.Scope, roleID int64, module string, op catalog.Operation) (catalog.OperationSet, error)

func (h *Handlers) changePermissionType(w http.ResponseWriter, r *http.Request, change string, apply permissionChange) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	vars := mux.Vars(r)
	module := vars["module"]
	op, err := catalog.ParseOperation(vars["operation"])
	if err != nil {
		httputil.WriteValidationErrors(w, map[string]string{"operation": err.Error()})
		return
	}

	ops, err := apply(r.Context(), scope, id, module, op)
	if err != nil {
		writeError(w, r, err, "failed to update permission")
		return
	}
	h.invalidate(r.Context(), scope, id)
	h.record(r.Context(), audit.ActionRolePermissionsUpdated, "role", id, map[string]interface{}{
		"change":    change,
		"module":    module,
		"operation": string(op),
	})
	httputil.WriteSuccess(w, map[string]interface{}{
		"role_id":    id,
		"module":     module,
		"operations": ops,
	})
}

// AssignRoleRequest is the body of PUT /users/{id}/role
type AssignRoleRequest struct {
	RoleID int64 `json:"role_id"`
}

// AssignUserRole handles PUT /users/{id}/role
func (h *Handlers) AssignUserRole(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req AssignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RoleID <= 0 {
		httputil.WriteValidationErrors(w, map[string]string{"role_id": "role_id is required"})
		return
	}

	previous, err := h.store.AssignUserRole(r.Context(), scope, userID, req.RoleID)
	if err != nil {
		writeError(w, r, err, "failed to assign role")
		return
	}
	details := map[string]interface{}{"role_id": req.RoleID}
	if previous != nil {
		details["previous_role_id"] = *previous
	}
	h.record(r.Context(), audit.ActionUserRoleChanged, "user", userID, details)
	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":          userID,
		"role_id":          req.RoleID,
		"previous_role_id": previous,
	})
}

// ListUsers handles GET /users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	users, err := h.store.ListUsers(r.Context(), scope)
	if err != nil {
		writeError(w, r, err, "failed to list users")
		return
	}
	httputil.WriteSuccess(w, users)
}

// GetUser handles GET /users/{id}
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	user, err := h.store.GetUser(r.Context(), scope, userID)
	if err != nil {
		writeError(w, r, err, "failed to get user")
		return
	}
	httputil.WriteSuccess(w, user)
}

// UserStatusRequest is the body of PUT /users/{id}/status
type UserStatusRequest struct {
	Status string `json:"status"`
}

// UpdateUserStatus handles PUT /users/{id}/status. Callers cannot
// deactivate themselves.
func (h *Handlers) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	scope, err := tenancy.Require(r.Context())
	if err != nil {
		httputil.WriteTenantRequired(w)
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req UserStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UserID == userID && req.Status == auth.UserInactive {
		httputil.WriteBadRequest(w, "cannot deactivate your own account")
		return
	}

	previous, err := h.store.SetUserStatus(r.Context(), scope, userID, req.Status)
	if err != nil {
		writeError(w, r, err, "failed to update user status")
		return
	}
	if previous != req.Status {
		action := audit.ActionUserUpdated
		if req.Status == auth.UserInactive {
			action = audit.ActionUserDeactivated
		}
		h.record(r.Context(), action, "user", userID, map[string]interface{}{
			"status":          req.Status,
			"previous_status": previous,
		})
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":         userID,
		"status":          req.Status,
		"previous_status": previous,
	})
}

// UserPermissionsResponse is the caller's grant payload. Clients use it to
// build their advisory permission context; the server never trusts it back.
type UserPermissionsResponse struct {
	UserID            int64               `json:"user_id"`
	TenantID          *int64              `json:"sme_id"`
	RoleID            *int64              `json:"role_id"`
	Permissions       authz.PermissionSet `json:"permissions"`
	AccessibleModules []string            `json:"accessible_modules"`
	PermissionTypes   []catalog.Operation `json:"permission_types"`
}

// UserPermissions handles GET /user/permissions
func (h *Handlers) UserPermissions(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthenticated(w, "authentication required")
		return
	}
	subject, err := h.enforcer.CurrentSubject(r)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to resolve permissions")
		httputil.WriteServiceUnavailable(w, "permissions unavailable")
		return
	}

	pc := authz.NewPermissionContext(h.enforcer.Evaluator(), subject)
	resp := UserPermissionsResponse{
		UserID:            identity.UserID,
		Permissions:       subject.Permissions,
		AccessibleModules: []string{},
		PermissionTypes:   catalog.Operations,
	}
	if identity.HasTenant() {
		resp.TenantID = &identity.TenantID
	}
	if identity.HasRole() {
		resp.RoleID = &identity.RoleID
	}
	for _, m := range pc.AccessibleModules() {
		resp.AccessibleModules = append(resp.AccessibleModules, m.ID)
	}
	httputil.WriteSuccess(w, resp)
}
