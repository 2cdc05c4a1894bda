package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lib/pq"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/authz"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/catalog"
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/tenancy"
)

const uniqueViolation = "23505"

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store persists roles and their module grants. Every method takes the
// caller's tenant scope; a role of another tenant is reported as not found.
type Store struct {
	db      *sql.DB
	catalog *catalog.Catalog
}

// NewStore creates a role store validating module ids against c
func NewStore(db *sql.DB, c *catalog.Catalog) *Store {
	return &Store{db: db, catalog: c}
}

const roleColumns = `r.id, r.tenant_id, r.name, COALESCE(r.description, ''), r.color, r.is_custom,
		r.created_at, r.updated_at,
		(SELECT COUNT(*) FROM users u WHERE u.role_id = r.id) AS user_count`

// ListRoles returns the tenant's roles, built-in first, then by name
func (s *Store) ListRoles(ctx context.Context, scope tenancy.Scope) ([]Role, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	clause, tenantID := scope.Filter("r.tenant_id", 1)
	query := `SELECT ` + roleColumns + ` FROM roles r WHERE ` + clause + ` ORDER BY r.is_custom ASC, r.name ASC`

	roles, err := s.queryRoles(ctx, s.db, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	if err := s.attachPermissions(ctx, s.db, roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole returns one role with its grants
func (s *Store) GetRole(ctx context.Context, scope tenancy.Scope, roleID int64) (*Role, error) {
	return s.getRole(ctx, s.db, scope, roleID)
}

func (s *Store) getRole(ctx context.Context, q queryer, scope tenancy.Scope, roleID int64) (*Role, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	clause, tenantID := scope.Filter("r.tenant_id", 2)
	query := `SELECT ` + roleColumns + ` FROM roles r WHERE r.id = $1 AND ` + clause

	roles, err := s.queryRoles(ctx, q, query, roleID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	if len(roles) == 0 {
		return nil, ErrRoleNotFound
	}
	if err := s.attachPermissions(ctx, q, roles); err != nil {
		return nil, err
	}
	return &roles[0], nil
}

func (s *Store) queryRoles(ctx context.Context, q queryer, query string, args ...interface{}) ([]Role, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		var tenantID sql.NullInt64
		if err := rows.Scan(
			&role.ID,
			&tenantID,
			&role.Name,
			&role.Description,
			&role.Color,
			&role.IsCustom,
			&role.CreatedAt,
			&role.UpdatedAt,
			&role.UserCount,
		); err != nil {
			return nil, err
		}
		if tenantID.Valid {
			id := tenantID.Int64
			role.TenantID = &id
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *Store) attachPermissions(ctx context.Context, q queryer, roles []Role) error {
	if len(roles) == 0 {
		return nil
	}
	ids := make([]int64, len(roles))
	for i, r := range roles {
		ids[i] = r.ID
	}

	rows, err := q.QueryContext(ctx,
		`SELECT role_id, module_id, operations FROM role_permissions WHERE role_id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	grants := make(map[int64]map[string]catalog.OperationSet)
	for rows.Next() {
		var roleID int64
		var module string
		var ops []string
		if err := rows.Scan(&roleID, &module, pq.Array(&ops)); err != nil {
			return fmt.Errorf("failed to scan role permission: %w", err)
		}
		if grants[roleID] == nil {
			grants[roleID] = make(map[string]catalog.OperationSet)
		}
		grants[roleID][module] = s.storedOperations(module, ops)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load role permissions: %w", err)
	}

	for i := range roles {
		roles[i].Permissions = authz.NewPermissionSet(grants[roles[i].ID])
	}
	return nil
}

// storedOperations converts a persisted row. Unknown modules and operations
// grant nothing rather than failing the read.
func (s *Store) storedOperations(module string, ops []string) catalog.OperationSet {
	if s.catalog != nil && !s.catalog.Has(module) {
		return 0
	}
	var set catalog.OperationSet
	for _, name := range ops {
		set = set.With(catalog.Operation(name))
	}
	return set
}

// LoadPermissions returns the grants of a role visible to scope: the
// tenant's own roles and global roles. A missing role has no grants.
func (s *Store) LoadPermissions(ctx context.Context, scope tenancy.Scope, roleID int64) (authz.PermissionSet, error) {
	if err := scope.Check(); err != nil {
		return authz.PermissionSet{}, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT rp.module_id, rp.operations
		FROM role_permissions rp
		JOIN roles r ON r.id = rp.role_id
		WHERE rp.role_id = $1 AND (r.tenant_id = $2 OR r.tenant_id IS NULL)`,
		roleID, scope.TenantID())
	if err != nil {
		return authz.PermissionSet{}, fmt.Errorf("failed to load permissions: %w", err)
	}
	defer rows.Close()

	grants := make(map[string]catalog.OperationSet)
	for rows.Next() {
		var module string
		var ops []string
		if err := rows.Scan(&module, pq.Array(&ops)); err != nil {
			return authz.PermissionSet{}, fmt.Errorf("failed to scan permission: %w", err)
		}
		grants[module] = s.storedOperations(module, ops)
	}
	if err := rows.Err(); err != nil {
		return authz.PermissionSet{}, fmt.Errorf("failed to load permissions: %w", err)
	}
	return authz.NewPermissionSet(grants), nil
}

// ParseGrants validates a client permission map. Every problem is reported
// under "permissions.<module>".
func (s *Store) ParseGrants(raw map[string][]string) (map[string]catalog.OperationSet, error) {
	verr := &ValidationError{}
	grants := s.parseGrants(raw, verr)
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return grants, nil
}

func (s *Store) parseGrants(raw map[string][]string, verr *ValidationError) map[string]catalog.OperationSet {
	grants := make(map[string]catalog.OperationSet, len(raw))
	for module, names := range raw {
		field := "permissions." + module
		if s.catalog != nil && !s.catalog.Has(module) {
			verr.add(field, "unknown module")
			continue
		}
		var set catalog.OperationSet
		for _, name := range names {
			op := catalog.Operation(name)
			if !op.Valid() {
				verr.add(field, fmt.Sprintf("unknown operation %q", name))
				continue
			}
			set = set.With(op)
		}
		grants[module] = set
	}
	return grants
}

func (s *Store) validate(ctx context.Context, scope tenancy.Scope, in *RoleInput, excludeID int64) (map[string]catalog.OperationSet, error) {
	verr := &ValidationError{}

	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		verr.add("name", "name is required")
	case utf8.RuneCountInString(in.Name) > maxNameLength:
		verr.add("name", fmt.Sprintf("name may not be longer than %d characters", maxNameLength))
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLength {
		verr.add("description", fmt.Sprintf("description may not be longer than %d characters", maxDescriptionLength))
	}
	if !validColor(in.Color) {
		verr.add("color", "color must be one of "+strings.Join(Colors, ", "))
	}
	grants := s.parseGrants(in.Permissions, verr)

	if _, bad := verr.Fields["name"]; !bad {
		taken, err := s.nameTaken(ctx, scope, in.Name, excludeID)
		if err != nil {
			return nil, err
		}
		if taken {
			verr.add("name", "a role with this name already exists")
		}
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return grants, nil
}

// nameTaken compares names case-insensitively, matching the unique index
func (s *Store) nameTaken(ctx context.Context, scope tenancy.Scope, name string, excludeID int64) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM roles WHERE tenant_id = $1 AND lower(name) = lower($2) AND id <> $3)`,
		scope.TenantID(), name, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check role name: %w", err)
	}
	return taken, nil
}

// CreateRole creates a custom role. Permissions in the input are applied in
// the same transaction; none means an empty permission map.
func (s *Store) CreateRole(ctx context.Context, scope tenancy.Scope, in RoleInput) (*Role, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	grants, err := s.validate(ctx, scope, &in, 0)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tenantID := scope.TenantID()
	role := &Role{TenantID: &tenantID, Name: in.Name, Description: in.Description, Color: in.Color, IsCustom: true}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO roles (tenant_id, name, description, color, is_custom, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		tenantID, in.Name, in.Description, in.Color,
	).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, nameConflict(err, "failed to create role")
	}

	if err := replacePermissions(ctx, tx, role.ID, grants); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role: %w", err)
	}
	role.Permissions = authz.NewPermissionSet(grants)
	return role, nil
}

// UpdateRole changes a role's attributes. A nil Permissions map leaves the
// grants untouched; otherwise they are replaced.
func (s *Store) UpdateRole(ctx context.Context, scope tenancy.Scope, roleID int64, in RoleInput) (*Role, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	grants, err := s.validate(ctx, scope, &in, roleID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE roles SET name = $1, description = $2, color = $3, updated_at = NOW()
		WHERE id = $4 AND tenant_id = $5`,
		in.Name, in.Description, in.Color, roleID, scope.TenantID())
	if err != nil {
		return nil, nameConflict(err, "failed to update role")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrRoleNotFound
	}

	if in.Permissions != nil {
		if err := replacePermissions(ctx, tx, roleID, grants); err != nil {
			return nil, err
		}
	}

	role, err := s.getRole(ctx, tx, scope, roleID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role: %w", err)
	}
	return role, nil
}

// SyncPermissions replaces the role's entire permission map atomically.
// Syncing the same map twice leaves the same grants as syncing it once.
func (s *Store) SyncPermissions(ctx context.Context, scope tenancy.Scope, roleID int64, grants map[string]catalog.OperationSet) (authz.PermissionSet, error) {
	if err := scope.Check(); err != nil {
		return authz.PermissionSet{}, err
	}
	verr := &ValidationError{}
	for module := range grants {
		if s.catalog != nil && !s.catalog.Has(module) {
			verr.add("permissions."+module, "unknown module")
		}
	}
	if err := verr.orNil(); err != nil {
		return authz.PermissionSet{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.PermissionSet{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockRole(ctx, tx, scope, roleID); err != nil {
		return authz.PermissionSet{}, err
	}
	if err := replacePermissions(ctx, tx, roleID, grants); err != nil {
		return authz.PermissionSet{}, err
	}
	if err := touchRole(ctx, tx, roleID); err != nil {
		return authz.PermissionSet{}, err
	}
	if err := tx.Commit(); err != nil {
		return authz.PermissionSet{}, fmt.Errorf("failed to commit permissions: %w", err)
	}
	return authz.NewPermissionSet(grants), nil
}

// AddPermissionType grants one operation on one module. Granting an
// operation the role already has is a no-op.
func (s *Store) AddPermissionType(ctx context.Context, scope tenancy.Scope, roleID int64, module string, op catalog.Operation) (catalog.OperationSet, error) {
	return s.updateModule(ctx, scope, roleID, module, op, catalog.OperationSet.With)
}

// RemovePermissionType revokes one operation on one module. Other operations
// and modules are untouched; the row goes away once its set is empty.
func (s *Store) RemovePermissionType(ctx context.Context, scope tenancy.Scope, roleID int64, module string, op catalog.Operation) (catalog.OperationSet, error) {
	return s.updateModule(ctx, scope, roleID, module, op, catalog.OperationSet.Without)
}

func (s *Store) updateModule(ctx context.Context, scope tenancy.Scope, roleID int64, module string, op catalog.Operation,
	apply func(catalog.OperationSet, catalog.Operation) catalog.OperationSet) (catalog.OperationSet, error) {
	if err := scope.Check(); err != nil {
		return 0, err
	}
	verr := &ValidationError{}
	if s.catalog != nil && !s.catalog.Has(module) {
		verr.add("module", "unknown module")
	}
	if !op.Valid() {
		verr.add("operation", fmt.Sprintf("unknown operation %q", op))
	}
	if err := verr.orNil(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The role lock serializes concurrent edits of the same role
	if err := lockRole(ctx, tx, scope, roleID); err != nil {
		return 0, err
	}

	var ops []string
	err = tx.QueryRowContext(ctx,
		`SELECT operations FROM role_permissions WHERE role_id = $1 AND module_id = $2`,
		roleID, module).Scan(pq.Array(&ops))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to read permission: %w", err)
	}
	current := s.storedOperations(module, ops)
	next := apply(current, op)

	if next != current {
		if next.Empty() {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM role_permissions WHERE role_id = $1 AND module_id = $2`, roleID, module)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO role_permissions (role_id, module_id, operations) VALUES ($1, $2, $3)
				ON CONFLICT (role_id, module_id) DO UPDATE SET operations = EXCLUDED.operations`,
				roleID, module, pq.Array(next.Strings()))
		}
		if err != nil {
			return 0, fmt.Errorf("failed to write permission: %w", err)
		}
		if err := touchRole(ctx, tx, roleID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit permission: %w", err)
	}
	return next, nil
}

// DeletedRole describes a role that was removed
type DeletedRole struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	ReassignedTo    *int64 `json:"reassigned_to,omitempty"`
	ReassignedUsers int64  `json:"reassigned_users"`
}

// DeleteRole deletes a custom role. A role with users needs reassignTo, a
// role of the same tenant that receives them in the same transaction.
func (s *Store) DeleteRole(ctx context.Context, scope tenancy.Scope, roleID int64, reassignTo *int64) (*DeletedRole, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	if reassignTo != nil && *reassignTo == roleID {
		return nil, &ValidationError{Fields: map[string]string{"reassign_to": "cannot reassign users to the role being deleted"}}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deleted := &DeletedRole{ID: roleID}
	var isCustom bool
	err = tx.QueryRowContext(ctx,
		`SELECT name, is_custom FROM roles WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		roleID, scope.TenantID()).Scan(&deleted.Name, &isCustom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load role: %w", err)
	}
	if !isCustom {
		return deleted, ErrBuiltInRole
	}

	var users int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, roleID).Scan(&users); err != nil {
		return nil, fmt.Errorf("failed to count role users: %w", err)
	}

	if users > 0 {
		if reassignTo == nil {
			return deleted, fmt.Errorf("%w: %d user(s)", ErrRoleInUse, users)
		}
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM roles WHERE id = $1 AND tenant_id = $2)`,
			*reassignTo, scope.TenantID()).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to load reassignment role: %w", err)
		}
		if !exists {
			return deleted, &ValidationError{Fields: map[string]string{"reassign_to": "role not found"}}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET role_id = $1 WHERE role_id = $2 AND tenant_id = $3`,
			*reassignTo, roleID, scope.TenantID())
		if err != nil {
			return nil, fmt.Errorf("failed to reassign users: %w", err)
		}
		deleted.ReassignedUsers, _ = res.RowsAffected()
		deleted.ReassignedTo = reassignTo
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1 AND tenant_id = $2`, roleID, scope.TenantID()); err != nil {
		return nil, fmt.Errorf("failed to delete role: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role deletion: %w", err)
	}
	return deleted, nil
}

// BulkDeleteRoles deletes each role on its own. A failure is reported against
// its role id and does not stop the others.
func (s *Store) BulkDeleteRoles(ctx context.Context, scope tenancy.Scope, roleIDs []int64, reassignTo *int64) (*BulkDeleteResult, []DeletedRole, error) {
	if err := scope.Check(); err != nil {
		return nil, nil, err
	}
	result := &BulkDeleteResult{Deleted: []int64{}, Errors: []BulkDeleteError{}}
	var deleted []DeletedRole
	seen := make(map[int64]bool, len(roleIDs))

	for _, id := range roleIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		role, err := s.DeleteRole(ctx, scope, id, reassignTo)
		if err != nil {
			be := BulkDeleteError{RoleID: id, Reason: deleteReason(err)}
			if role != nil {
				be.Name = role.Name
			}
			result.Errors = append(result.Errors, be)
			continue
		}
		deleted = append(deleted, *role)
		result.Deleted = append(result.Deleted, id)
	}
	result.DeletedCount = len(result.Deleted)
	return result, deleted, nil
}

func deleteReason(err error) string {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrRoleNotFound):
		return "role not found"
	case errors.Is(err, ErrBuiltInRole):
		return "built-in roles cannot be deleted"
	case errors.Is(err, ErrRoleInUse):
		return "role has assigned users and cannot be deleted"
	case errors.As(err, &verr):
		return verr.Error()
	}
	return "failed to delete role"
}

// InstantiateBuiltInRoles clones the built-in roles into the tenant. Roles
// that already exist by name are left as they are. It returns the names created.
func (s *Store) InstantiateBuiltInRoles(ctx context.Context, scope tenancy.Scope) ([]string, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	created := []string{}
	for _, def := range BuiltInRoles(s.catalog) {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO roles (tenant_id, name, description, color, is_custom, created_at, updated_at)
			VALUES ($1, $2, $3, $4, FALSE, NOW(), NOW())
			ON CONFLICT (tenant_id, (lower(name))) DO NOTHING
			RETURNING id`,
			scope.TenantID(), def.Name, def.Description, def.Color).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create built-in role %q: %w", def.Name, err)
		}
		if err := replacePermissions(ctx, tx, id, def.Grants); err != nil {
			return nil, err
		}
		created = append(created, def.Name)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit built-in roles: %w", err)
	}
	return created, nil
}

// AssignUserRole moves a user of the tenant to roleID and returns the previous role
func (s *Store) AssignUserRole(ctx context.Context, scope tenancy.Scope, userID, roleID int64) (*int64, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockRole(ctx, tx, scope, roleID); err != nil {
		return nil, err
	}

	var previous sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT role_id FROM users WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		userID, scope.TenantID()).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET role_id = $1 WHERE id = $2 AND tenant_id = $3`,
		roleID, userID, scope.TenantID()); err != nil {
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role assignment: %w", err)
	}
	if !previous.Valid {
		return nil, nil
	}
	prev := previous.Int64
	return &prev, nil
}

func lockRole(ctx context.Context, tx *sql.Tx, scope tenancy.Scope, roleID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM roles WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		roleID, scope.TenantID()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRoleNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock role: %w", err)
	}
	return nil
}

func touchRole(ctx context.Context, tx *sql.Tx, roleID int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE roles SET updated_at = NOW() WHERE id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to touch role: %w", err)
	}
	return nil
}

// replacePermissions deletes every row of the role, then inserts the
// non-empty grants in module order
func replacePermissions(ctx context.Context, tx *sql.Tx, roleID int64, grants map[string]catalog.OperationSet) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear permissions: %w", err)
	}

	modules := make([]string, 0, len(grants))
	for module, ops := range grants {
		if !ops.Empty() {
			modules = append(modules, module)
		}
	}
	sort.Strings(modules)

	for _, module := range modules {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, module_id, operations) VALUES ($1, $2, $3)`,
			roleID, module, pq.Array(grants[module].Strings())); err != nil {
			return fmt.Errorf("failed to insert permission for %s: %w", module, err)
		}
	}
	return nil
}

func nameConflict(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return &ValidationError{Fields: map[string]string{"name": "a role with this name already exists"}}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
