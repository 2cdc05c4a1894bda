package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/authz"
)

var (
	// ErrRoleNotFound is returned for missing roles and for roles owned by another tenant
	ErrRoleNotFound = errors.New("role not found")

	// ErrBuiltInRole is returned when deleting a role that is not custom
	ErrBuiltInRole = errors.New("built-in roles cannot be deleted")

	// ErrRoleInUse is returned when deleting a role that still has users and no reassignment target
	ErrRoleInUse = errors.New("role has assigned users")

	// ErrUserNotFound is returned for missing users and for users of another tenant
	ErrUserNotFound = errors.New("user not found")
)

// Colors a role may be displayed with
var Colors = []string{"blue", "purple", "green", "orange", "red", "gray"}

const (
	maxNameLength        = 255
	maxDescriptionLength = 1000
)

// Role is a tenant's named bundle of module grants
type Role struct {
	ID          int64               `json:"id"`
	TenantID    *int64              `json:"sme_id,omitempty"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Color       string              `json:"color"`
	IsCustom    bool                `json:"is_custom"`
	UserCount   int                 `json:"user_count"`
	Permissions authz.PermissionSet `json:"permissions"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// RoleInput is the mutable part of a role as submitted by a client.
// Permissions maps module ids to operation names.
type RoleInput struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Color       string              `json:"color"`
	Permissions map[string][]string `json:"permissions"`
}

// BulkDeleteError explains why one role of a bulk delete was kept
type BulkDeleteError struct {
	RoleID int64  `json:"role_id"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// BulkDeleteResult reports a bulk delete per role
type BulkDeleteResult struct {
	DeletedCount int               `json:"deleted_count"`
	Deleted      []int64           `json:"deleted"`
	Errors       []BulkDeleteError `json:"errors"`
}

// ValidationError carries field-level failures
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func validColor(c string) bool {
	for _, color := range Colors {
		if c == color {
			return true
		}
	}
	return false
}
