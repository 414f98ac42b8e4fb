package sandbox

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/rolecalc/permission"
)

// MFAMode selects the second factor required at password sign-in.
type MFAMode string

const (
	MFANone MFAMode = ""
	MFASMS  MFAMode = "SMS_MFA"
	MFATOTP MFAMode = "SOFTWARE_TOKEN_MFA"
)

// User statuses reported by the admin listing.
const (
	StatusUnconfirmed = "UNCONFIRMED"
	StatusConfirmed   = "CONFIRMED"
)

// User is one account in the pool.
type User struct {
	Username     string
	Sub          string
	Email        string
	Phone        string
	CustomRole   string
	Groups       []string
	Enabled      bool
	Confirmed    bool
	PasswordHash string
	MFA          MFAMode
	TOTPSecret   []byte
	Created      time.Time

	confirmCode    string
	confirmExpires time.Time
}

// Status is the account status shown to admins.
func (u User) Status() string {
	if u.Confirmed {
		return StatusConfirmed
	}
	return StatusUnconfirmed
}

func (u User) clone() User {
	u.Groups = slices.Clone(u.Groups)
	u.TOTPSecret = slices.Clone(u.TOTPSecret)
	return u
}

// Role is a custom role stored by the service.
type Role struct {
	Name        string
	Permissions []permission.Operation
}

// HistoryEntry is one stored calculation.
type HistoryEntry struct {
	UserID    string
	Operand1  float64
	Operand2  float64
	Operation permission.Operation
	Result    float64
	Timestamp string
}

// Directory is the shared state of the sandbox: users and their groups, custom
// roles and calculation history. It is safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	users   map[string]*User
	roles   map[string]Role
	history []HistoryEntry
	last    time.Time
	now     func() time.Time
}

// TimestampLayout is the fixed-width layout of history timestamps, so that
// string order is time order.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		users: make(map[string]*User),
		roles: make(map[string]Role),
		now:   time.Now,
	}
}

// User returns a copy of the named user.
func (d *Directory) User(username string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[username]
	if !ok {
		return User{}, false
	}
	return u.clone(), true
}

// UserBySub returns a copy of the user with the given subject.
func (d *Directory) UserBySub(sub string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.Sub == sub {
			return u.clone(), true
		}
	}
	return User{}, false
}

// Users returns every user sorted by username.
func (d *Directory) Users() []User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Put stores u, replacing any user with the same name. Sub and Created are
// filled when empty.
func (d *Directory) Put(u User) User {
	if u.Sub == "" {
		u.Sub = uuid.NewString()
	}
	if u.Created.IsZero() {
		u.Created = d.now().UTC()
	}
	u = u.clone()
	d.mu.Lock()
	d.users[u.Username] = &u
	d.mu.Unlock()
	return u.clone()
}

// Update applies fn to the named user under the lock. It reports false when
// the user does not exist.
func (d *Directory) Update(username string, fn func(*User)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[username]
	if !ok {
		return false
	}
	fn(u)
	return true
}

// Delete removes the named user and reports whether it existed.
func (d *Directory) Delete(username string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[username]; !ok {
		return false
	}
	delete(d.users, username)
	return true
}

// SetGroups replaces the user's groups.
func (d *Directory) SetGroups(username string, groups ...string) bool {
	return d.Update(username, func(u *User) {
		u.Groups = normalizeGroups(groups)
	})
}

// AssignRole removes every group except AdminRole, then adds role and records
// it as the custom:role attribute.
func (d *Directory) AssignRole(username, role string) bool {
	return d.Update(username, func(u *User) {
		kept := make([]string, 0, 2)
		for _, g := range u.Groups {
			if g == permission.RoleAdmin {
				kept = append(kept, g)
			}
		}
		u.Groups = normalizeGroups(append(kept, role))
		u.CustomRole = role
	})
}

// GroupExists reports whether name is a built-in or custom role.
func (d *Directory) GroupExists(name string) bool {
	if permission.IsBuiltinRole(name) {
		return true
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.roles[name]
	return ok
}

// Roles returns the custom roles sorted by name.
func (d *Directory) Roles() []Role {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Role, 0, len(d.roles))
	for _, r := range d.roles {
		r.Permissions = slices.Clone(r.Permissions)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PutRole stores a custom role.
func (d *Directory) PutRole(r Role) {
	r.Permissions = slices.Clone(r.Permissions)
	d.mu.Lock()
	d.roles[r.Name] = r
	d.mu.Unlock()
}

// DeleteRole removes a custom role and takes it out of every user's groups.
func (d *Directory) DeleteRole(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.roles, name)
	for _, u := range d.users {
		u.Groups = slices.DeleteFunc(u.Groups, func(g string) bool { return g == name })
	}
}

// Catalog returns the built-in roles merged with the custom roles.
func (d *Directory) Catalog(registry *permission.Registry) *permission.Catalog {
	roles := d.Roles()
	defs := make([]permission.RoleDefinition, 0, len(roles))
	for _, r := range roles {
		defs = append(defs, permission.RoleDefinition{Name: r.Name, Permissions: r.Permissions})
	}
	return permission.BuiltinCatalog(registry).Merge(defs)
}

// AppendHistory stamps e with a timestamp later than any before it, stores
// it and returns the stored entry.
func (d *Directory) AppendHistory(e HistoryEntry) HistoryEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	ts := d.now().UTC().Truncate(time.Microsecond)
	if !ts.After(d.last) {
		ts = d.last.Add(time.Microsecond)
	}
	d.last = ts
	e.Timestamp = ts.Format(TimestampLayout)
	d.history = append(d.history, e)
	return e
}

// History returns the entries of userID, or of every user when userID is
// empty, newest first. A positive limit caps the result.
func (d *Directory) History(userID string, limit int) []HistoryEntry {
	d.mu.RLock()
	out := make([]HistoryEntry, 0, len(d.history))
	for _, e := range d.history {
		if userID == "" || e.UserID == userID {
			out = append(out, e)
		}
	}
	d.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DeleteHistory removes the entry keyed by userID and timestamp.
func (d *Directory) DeleteHistory(userID, timestamp string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.history)
	d.history = slices.DeleteFunc(d.history, func(e HistoryEntry) bool {
		return e.UserID == userID && e.Timestamp == timestamp
	})
	return len(d.history) != n
}

func normalizeGroups(groups []string) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g != "" && !slices.Contains(out, g) {
			out = append(out, g)
		}
	}
	return out
}
