package permission

import (
	"errors"
	"strings"
)

// Built-in role names.
const (
	RoleAddSubtract    = "ASrole"
	RoleDivideMultiply = "DMrole"
	RoleAdmin          = "AdminRole"
)

// RoleDefinition maps a role name to the operations it grants. Admin marks the
// role as carrying the admin capability bit; only built-in definitions set it.
type RoleDefinition struct {
	Name        string
	Permissions []Operation
	Builtin     bool
	Admin       bool
}

// BuiltinRoles returns the fixed role definitions shipped with the client.
func BuiltinRoles() []RoleDefinition {
	return []RoleDefinition{
		{Name: RoleAddSubtract, Permissions: []Operation{OpAdd, OpSubtract}, Builtin: true},
		{Name: RoleDivideMultiply, Permissions: []Operation{OpDivide, OpMultiply}, Builtin: true},
		{Name: RoleAdmin, Permissions: Operations(), Builtin: true, Admin: true},
	}
}

// IsBuiltinRole reports whether name is one of the fixed role names.
func IsBuiltinRole(name string) bool {
	switch name {
	case RoleAddSubtract, RoleDivideMultiply, RoleAdmin:
		return true
	}
	return false
}

type catalogEntry struct {
	def  RoleDefinition
	mask Mask64
}

// Catalog is an immutable role-name to permission-mask mapping.
//
// Catalog values are never edited in place; [Catalog.Merge] returns a new catalog so
// readers holding the old one keep a consistent view.
type Catalog struct {
	registry *Registry
	entries  map[string]catalogEntry
	order    []string
}

// NewCatalog builds a catalog from defs. On duplicate names the later
// definition wins.
func NewCatalog(registry *Registry, defs ...RoleDefinition) (*Catalog, error) {
	if registry == nil {
		return nil, errors.New("registry required")
	}
	c := &Catalog{
		registry: registry,
		entries:  make(map[string]catalogEntry, len(defs)),
	}
	for _, def := range defs {
		if err := c.put(def); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// BuiltinCatalog returns a catalog holding only [BuiltinRoles].
func BuiltinCatalog(registry *Registry) *Catalog {
	c, err := NewCatalog(registry, BuiltinRoles()...)
	if err != nil {
		panic("permission: builtin catalog: " + err.Error())
	}
	return c
}

func (c *Catalog) put(def RoleDefinition) error {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return errors.New("role name empty")
	}

	mask, _ := c.registry.MaskFor(def.Permissions)
	if def.Admin {
		if bit, ok := c.registry.RootBit(); ok {
			mask.Set(bit)
		}
	}

	def.Permissions = append([]Operation(nil), def.Permissions...)
	if _, exists := c.entries[def.Name]; !exists {
		c.order = append(c.order, def.Name)
	}
	c.entries[def.Name] = catalogEntry{def: def, mask: mask}
	return nil
}

// Merge returns a new catalog containing c's roles overlaid with defs. Server
// supplied definitions never carry the admin capability; a definition with an
// empty name is skipped.
func (c *Catalog) Merge(defs []RoleDefinition) *Catalog {
	out := &Catalog{
		registry: c.registry,
		entries:  make(map[string]catalogEntry, len(c.entries)+len(defs)),
		order:    append([]string(nil), c.order...),
	}
	for name, entry := range c.entries {
		out.entries[name] = entry
	}
	for _, def := range defs {
		def.Admin = false
		_ = out.put(def)
	}
	return out
}

// Lookup returns the definition for name.
func (c *Catalog) Lookup(name string) (RoleDefinition, bool) {
	if c == nil {
		return RoleDefinition{}, false
	}
	entry, ok := c.entries[name]
	if !ok {
		return RoleDefinition{}, false
	}
	def := entry.def
	def.Permissions = append([]Operation(nil), def.Permissions...)
	return def, true
}

// Mask returns the permission mask for name.
func (c *Catalog) Mask(name string) (Mask64, bool) {
	if c == nil {
		return 0, false
	}
	entry, ok := c.entries[name]
	return entry.mask, ok
}

// Roles returns every definition in first-registration order.
func (c *Catalog) Roles() []RoleDefinition {
	if c == nil {
		return nil
	}
	out := make([]RoleDefinition, 0, len(c.order))
	for _, name := range c.order {
		def, _ := c.Lookup(name)
		out = append(out, def)
	}
	return out
}

// Len returns the number of roles in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Registry returns the registry the catalog resolves operations against.
func (c *Catalog) Registry() *Registry {
	if c == nil {
		return nil
	}
	return c.registry
}
