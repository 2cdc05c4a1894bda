package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Module ids referenced by the core itself
const (
	ModuleRoles        = "roles"
	ModuleUsers        = "users"
	ModuleActivityLogs = "activity-logs"
	ModuleSettings     = "settings"
)

//go:embed modules.yaml
var defaultModules []byte

// Module is an immutable catalog entry
type Module struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category" yaml:"-"`
}

type document struct {
	Categories []struct {
		Name    string   `yaml:"name"`
		Modules []Module `yaml:"modules"`
	} `yaml:"categories"`
}

// Catalog is the read-only registry of permissionable modules
type Catalog struct {
	modules    []Module
	index      map[string]int
	categories []string
}

// Default returns the catalog compiled into the binary
func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultModules))
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded modules.yaml is invalid: %v", err))
	}
	return c
}

// Load parses a catalog document. Module ids must be unique and non-empty.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	c := &Catalog{index: make(map[string]int)}
	for _, cat := range doc.Categories {
		if cat.Name == "" {
			return nil, fmt.Errorf("category without a name")
		}
		c.categories = append(c.categories, cat.Name)
		for _, m := range cat.Modules {
			if m.ID == "" {
				return nil, fmt.Errorf("module without id in category %q", cat.Name)
			}
			if _, dup := c.index[m.ID]; dup {
				return nil, fmt.Errorf("duplicate module id %q", m.ID)
			}
			m.Category = cat.Name
			c.index[m.ID] = len(c.modules)
			c.modules = append(c.modules, m)
		}
	}
	if len(c.modules) == 0 {
		return nil, fmt.Errorf("catalog has no modules")
	}
	return c, nil
}

// Modules returns every module in catalog order
func (c *Catalog) Modules() []Module {
	out := make([]Module, len(c.modules))
	copy(out, c.modules)
	return out
}

// IDs returns every module id in catalog order
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.modules))
	for i, m := range c.modules {
		ids[i] = m.ID
	}
	return ids
}

// Lookup finds a module by id
func (c *Catalog) Lookup(id string) (Module, bool) {
	i, ok := c.index[id]
	if !ok {
		return Module{}, false
	}
	return c.modules[i], true
}

// Has reports whether id names a catalog module
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Categories returns the category names in catalog order
func (c *Catalog) Categories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// ByCategory groups modules by category
func (c *Catalog) ByCategory() map[string][]Module {
	grouped := make(map[string][]Module, len(c.categories))
	for _, m := range c.modules {
		grouped[m.Category] = append(grouped[m.Category], m)
	}
	return grouped
}
