package authz

import (
	"encoding/json"
	"sort"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/catalog"
)

// PermissionSet is an immutable module → operations map for one role. A
// module that is absent grants nothing.
type PermissionSet struct {
	grants map[string]catalog.OperationSet
}

// NewPermissionSet copies grants, dropping empty entries
func NewPermissionSet(grants map[string]catalog.OperationSet) PermissionSet {
	out := make(map[string]catalog.OperationSet, len(grants))
	for module, ops := range grants {
		if !ops.Empty() {
			out[module] = ops
		}
	}
	return PermissionSet{grants: out}
}

// Grant returns the operations granted on module
func (p PermissionSet) Grant(module string) catalog.OperationSet {
	return p.grants[module]
}

// Modules returns the modules with at least one grant, sorted
func (p PermissionSet) Modules() []string {
	modules := make([]string, 0, len(p.grants))
	for module := range p.grants {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	return modules
}

// Grants returns a copy of the underlying map
func (p PermissionSet) Grants() map[string]catalog.OperationSet {
	out := make(map[string]catalog.OperationSet, len(p.grants))
	for module, ops := range p.grants {
		out[module] = ops
	}
	return out
}

// Len returns the number of modules with grants
func (p PermissionSet) Len() int {
	return len(p.grants)
}

// Equal reports whether both sets grant exactly the same operations
func (p PermissionSet) Equal(other PermissionSet) bool {
	if len(p.grants) != len(other.grants) {
		return false
	}
	for module, ops := range p.grants {
		if other.grants[module] != ops {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as {"module": ["view", ...]}
func (p PermissionSet) MarshalJSON() ([]byte, error) {
	out := make(map[string][]string, len(p.grants))
	for module, ops := range p.grants {
		out[module] = ops.Strings()
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the MarshalJSON form
func (p *PermissionSet) UnmarshalJSON(data []byte) error {
	var raw map[string]catalog.OperationSet
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = NewPermissionSet(raw)
	return nil
}

// HasPermission reports whether p grants op on module
func HasPermission(p PermissionSet, module string, op catalog.Operation) bool {
	return p.Grant(module).Has(op)
}

// HasAny reports whether p grants at least one of ops on module. No ops is false.
func HasAny(p PermissionSet, module string, ops ...catalog.Operation) bool {
	for _, op := range ops {
		if HasPermission(p, module, op) {
			return true
		}
	}
	return false
}

// HasAll reports whether p grants every one of ops on module. No ops is false.
func HasAll(p PermissionSet, module string, ops ...catalog.Operation) bool {
	if len(ops) == 0 {
		return false
	}
	for _, op := range ops {
		if !HasPermission(p, module, op) {
			return false
		}
	}
	return true
}

// CanAccessModule reports whether p grants view on module
func CanAccessModule(p PermissionSet, module string) bool {
	return HasPermission(p, module, catalog.OpView)
}
