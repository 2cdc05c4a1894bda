package rbac

import (
	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/catalog"
)

// Built-in role names
const (
	RoleSuperAdmin = "Super Admin"
	RoleManager    = "Manager"
	RoleEmployee   = "Employee"
	RoleViewer     = "Viewer"
)

// BuiltInRole is a seed definition cloned into every tenant
type BuiltInRole struct {
	Name        string
	Description string
	Color       string
	Grants      map[string]catalog.OperationSet
}

var (
	view       = catalog.NewOperationSet(catalog.OpView)
	viewEdit   = catalog.NewOperationSet(catalog.OpView, catalog.OpEdit)
	viewCreate = catalog.NewOperationSet(catalog.OpView, catalog.OpCreate)
	noDelete   = catalog.NewOperationSet(catalog.OpView, catalog.OpCreate, catalog.OpEdit)
)

// BuiltInRoles returns the seed roles. Super Admin is granted every
// operation on every module of c.
func BuiltInRoles(c *catalog.Catalog) []BuiltInRole {
	all := make(map[string]catalog.OperationSet)
	for _, id := range c.IDs() {
		all[id] = catalog.AllOperations()
	}

	return []BuiltInRole{
		{
			Name:        RoleSuperAdmin,
			Description: "Full system access with all permissions",
			Color:       "purple",
			Grants:      all,
		},
		{
			Name:        RoleManager,
			Description: "Management level access with most permissions",
			Color:       "blue",
			Grants: map[string]catalog.OperationSet{
				"dashboard":           view,
				"analytics":           view,
				"reviews":             viewEdit,
				"complaints":          noDelete,
				"ai-analysis":         view,
				"response-management": noDelete,
				"products":            noDelete,
				"stock":               viewEdit,
				"categories":          noDelete,
				"warehouses":          view,
				"users":               view,
				"company-profile":     viewEdit,
				"activity-logs":       view,
			},
		},
		{
			Name:        RoleEmployee,
			Description: "Standard employee access with basic permissions",
			Color:       "green",
			Grants: map[string]catalog.OperationSet{
				"dashboard":           view,
				"reviews":             view,
				"complaints":          viewCreate,
				"response-management": viewCreate,
				"products":            view,
				"stock":               view,
				"categories":          view,
			},
		},
		{
			Name:        RoleViewer,
			Description: "Read-only access to basic modules",
			Color:       "gray",
			Grants: map[string]catalog.OperationSet{
				"dashboard": view,
				"reviews":   view,
				"products":  view,
			},
		},
	}
}
