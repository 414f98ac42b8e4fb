package permission

import "sort"

// Policy is the effective permission set of one principal against one catalog.
// The zero Policy permits nothing.
type Policy struct {
	registry *Registry
	mask     Mask64
	roles    []string
	admin    bool
}

// Evaluate unions the masks of every role in roles that exists in c. Unknown
// role names contribute nothing.
func Evaluate(c *Catalog, roles []string) Policy {
	p := Policy{
		roles: normalizeRoles(roles),
	}
	if c == nil {
		return p
	}
	p.registry = c.registry

	for _, role := range p.roles {
		if role == RoleAdmin {
			p.admin = true
		}
		if mask, ok := c.Mask(role); ok {
			p.mask = p.mask.Union(mask)
		}
	}
	return p
}

// EffectivePermissions returns the operations granted to roles by c.
func EffectivePermissions(roles []string, c *Catalog) []Operation {
	return Evaluate(c, roles).Permissions()
}

// CanPerform reports whether op is in the effective permission set.
func (p Policy) CanPerform(op Operation) bool {
	if p.registry == nil {
		return false
	}
	bit, ok := p.registry.Bit(string(op))
	if !ok {
		return false
	}
	return p.mask.Has(bit, p.registry.RootReserved())
}

// Permissions lists the permitted operations in registry order.
func (p Policy) Permissions() []Operation {
	out := make([]Operation, 0, 4)
	for _, op := range Operations() {
		if p.CanPerform(op) {
			out = append(out, op)
		}
	}
	return out
}

// IsAdmin reports whether the principal holds [RoleAdmin].
func (p Policy) IsAdmin() bool {
	return p.admin
}

// Mask returns the raw effective mask.
func (p Policy) Mask() Mask64 {
	return p.mask
}

// Roles returns the normalized role names the policy was evaluated for.
func (p Policy) Roles() []string {
	return append([]string(nil), p.roles...)
}

func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
