package gf

// AddScaled performs dst += c*src over the shorter of the two symbols.
func (f *Field) AddScaled(dst, src []byte, c byte) {
	if c == 0 {
		return
	}
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	if c == 1 {
		for i := 0; i < n; i++ {
			dst[i] ^= src[i]
		}
		return
	}
	// Multiplication by a fixed c is a lookup into a shifted exp table.
	lc := int(f.log_table[c])
	for i := 0; i < n; i++ {
		if s := src[i]; s != 0 {
			dst[i] ^= f.exp_table[lc+int(f.log_table[s])]
		}
	}
}

// Scale multiplies every element of dst by c.
func (f *Field) Scale(dst []byte, c byte) {
	switch c {
	case 0:
		for i := range dst {
			dst[i] = 0
		}
	case 1:
	default:
		lc := int(f.log_table[c])
		for i, s := range dst {
			if s != 0 {
				dst[i] = f.exp_table[lc+int(f.log_table[s])]
			}
		}
	}
}

// IsZero reports whether every element of v is zero.
func IsZero(v []byte) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
