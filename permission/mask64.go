package permission

// Mask64 is a 64-bit permission set. Bit 63 is the admin capability when the
// registry reserves it.
type Mask64 uint64

func (m *Mask64) Has(bit int, rootReserved bool) bool {
	if bit < 0 || bit >= 64 {
		return false
	}

	if rootReserved {
		// root bit = highest bit
		if (*m & (1 << 63)) != 0 {
			return true
		}
	}

	return (*m & (1 << bit)) != 0
}

func (m *Mask64) Set(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m |= (1 << bit)
}

func (m *Mask64) Clear(bit int) {
	if bit < 0 || bit >= 64 {
		return
	}
	*m &^= (1 << bit)
}

// Union returns the bitwise OR of m and other without modifying either.
func (m Mask64) Union(other Mask64) Mask64 {
	return m | other
}

// Covers reports whether every bit of other is also set in m.
func (m Mask64) Covers(other Mask64) bool {
	return m&other == other
}

func (m *Mask64) Raw() uint64 {
	return uint64(*m)
}
