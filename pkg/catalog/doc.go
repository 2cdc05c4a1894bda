// Package catalog is the static registry of permissionable modules and the
// four operations (view, create, edit, delete) a role can be granted on them.
//
// The module list is compiled in from modules.yaml and never changes at
// runtime:
//
//	c := catalog.Default()
//	if m, ok := c.Lookup("activity-logs"); ok {
//		fmt.Println(m.Name, m.Category)
//	}
//
// OperationSet is a small value type, so a role's grant on one module can be
// passed around and compared without aliasing:
//
//	set := catalog.NewOperationSet(catalog.OpView).With(catalog.OpEdit)
//	set.Has(catalog.OpDelete) // false
package catalog
