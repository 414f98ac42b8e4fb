package permission

import (
	"errors"
	"sync"
)

const maskBits = 64

// Registry maps permission names to bit positions within a [Mask64].
type Registry struct {
	rootReserved bool
	rootBit      int

	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry creates an empty permission [Registry]. rootReserved reserves the
// highest bit as the admin capability that satisfies every check.
func NewRegistry(rootReserved bool) *Registry {
	r := &Registry{
		rootReserved: rootReserved,
		nameToBit:    make(map[string]int),
		bitToName:    make(map[int]string),
	}

	if rootReserved {
		r.rootBit = maskBits - 1
	}

	return r
}

// DefaultRegistry returns a frozen registry holding the four calculator
// operations with the admin capability reserved.
func DefaultRegistry() *Registry {
	r := NewRegistry(true)
	for _, op := range Operations() {
		// Registration into a fresh registry cannot fail.
		_, _ = r.Register(string(op))
	}
	r.Freeze()
	return r
}

// Register assigns the next available bit to the named permission.
// Returns the assigned bit index. Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("registry frozen")
	}

	if name == "" {
		return -1, errors.New("permission name cannot be empty")
	}

	if _, exists := r.nameToBit[name]; exists {
		return -1, errors.New("permission already registered")
	}

	nextBit := len(r.nameToBit)

	if r.rootReserved && nextBit >= r.rootBit {
		return -1, errors.New("permission limit exceeded (root bit reserved)")
	}

	if !r.rootReserved && nextBit >= maskBits {
		return -1, errors.New("permission limit exceeded")
	}

	r.nameToBit[name] = nextBit
	r.bitToName[nextBit] = name

	return nextBit, nil
}

// Bit returns the bit index for the named permission, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// RootBit returns the reserved admin capability bit, or false if root-bit
// reservation is disabled.
func (r *Registry) RootBit() (int, bool) {
	if !r.rootReserved {
		return -1, false
	}
	return r.rootBit, true
}

// RootReserved reports whether the highest bit acts as the admin capability.
func (r *Registry) RootReserved() bool {
	return r.rootReserved
}

// MaskFor builds a mask from operations. Operations unknown to the registry
// are returned in skipped and contribute no bit.
func (r *Registry) MaskFor(ops []Operation) (mask Mask64, skipped []Operation) {
	for _, op := range ops {
		bit, ok := r.Bit(string(op))
		if !ok {
			skipped = append(skipped, op)
			continue
		}
		mask.Set(bit)
	}
	return mask, skipped
}
