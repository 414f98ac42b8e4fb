// Package permission provides the operation registry, a fixed 64-bit permission mask,
// the role catalog, and the policy snapshot used to gate calculator operations.
//
// # Model
//
// Every arithmetic [Operation] owns one bit in a frozen [Registry]. The highest bit is
// reserved for the admin capability: a mask carrying it satisfies every check. A
// [Catalog] maps role names to masks; built-in roles are fixed and server-defined roles
// are merged on top with later definitions winning. A [Policy] is the union of the masks
// of a principal's roles and answers "may this principal perform op".
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. Catalogs and policies
// are immutable values: refreshing the catalog produces a new [Catalog], never an
// in-place edit.
//
// # What this package must NOT do
//
//   - Access the network, the session store, or the identity provider.
//   - Import rolecalc, idp, api, or session.
//   - Treat an unknown role name as an error (it contributes nothing).
package permission
