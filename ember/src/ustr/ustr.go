package ustr

/// Ustr represents an immutable path or string used by the kernel.
type Ustr []uint8

/// Isdot reports whether the string equals '.'.
func (us Ustr) Isdot() bool {
	return len(us) == 1 && us[0] == '.'
}

/// Isdotdot reports whether the string equals '..'.
func (us Ustr) Isdotdot() bool {
	return len(us) == 2 && us[0] == '.' && us[1] == '.'
}

/// Eq compares two Ustr values for equality.
/// 
/// \param s other Ustr to compare
/// \return true when both strings contain identical bytes.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

/// MkUstr creates an empty Ustr value.
/// \return newly created Ustr.
func MkUstr() Ustr {
	us := Ustr{}
	return us
}

/// MkUstrDot returns a Ustr representing '.'.
/// \return new Ustr for the current directory.
func MkUstrDot() Ustr {
	us := Ustr(".")
	return us
}

/// MkUstrRoot returns a Ustr for the root directory '/'.
/// \return root Ustr value.
func MkUstrRoot() Ustr {
	us := Ustr("/")
	return us
}

/// DotDot is a reusable Ustr containing "..".
var DotDot = Ustr{'.', '.'}

/// MkUstrSlice converts a NUL-terminated byte slice to a Ustr.
/// 
/// \param buf source byte slice
/// \return slice truncated at the first NUL byte.
func MkUstrSlice(buf []uint8) Ustr {
	for i := 0; i < len(buf); i++ {
		if buf[i] == uint8(0) {
			return buf[:i]
		}
	}
	return buf
}

/// Extend appends '/' and p to the current Ustr and returns the result.
/// 
/// \param p path component to add
/// \return new Ustr with p appended.
func (us Ustr) Extend(p Ustr) Ustr {
	tmp := make(Ustr, len(us))
	copy(tmp, us)
	r := append(tmp, '/')
	return append(r, p...)
}

/// ExtendStr appends '/' and the string p to the current Ustr.
/// \param p component as string
/// \return new Ustr with p appended.
func (us Ustr) ExtendStr(p string) Ustr {
	return us.Extend(Ustr(p))
}

/// IsAbsolute reports whether the path begins with '/'.
func (us Ustr) IsAbsolute() bool {
	if len(us) == 0 {
		return false
	}
	return us[0] == '/'
}

/// IndexByte returns the index of b in the string or -1 if not present.
/// \param b byte to search for
/// \return index of b or -1.
func (us Ustr) IndexByte(b uint8) int {
	for i, v := range us {
		if v == b {
			return i
		}
	}
	return -1
}

/// String converts the Ustr to a Go string.
/// \return string representation of the Ustr.
func (us Ustr) String() string {
	return string(us)
}

/// HasPrefix reports whether us begins with p.
/// \param p candidate prefix
/// \return true when every byte of p matches the start of us.
func (us Ustr) HasPrefix(p Ustr) bool {
	if len(p) > len(us) {
		return false
	}
	return us[:len(p)].Eq(p)
}

/// TrimPrefix removes p from the start of us, if present.
/// \param p prefix to remove
/// \return us with p stripped, or us unchanged if it lacks the prefix.
func (us Ustr) TrimPrefix(p Ustr) Ustr {
	if !us.HasPrefix(p) {
		return us
	}
	return us[len(p):]
}

/// Fields splits us on runs of ASCII whitespace, dropping empty
/// fields. Used to tokenize the kernel command line handed to us by
/// the bootloader.
/// \return the whitespace-separated tokens of us.
func (us Ustr) Fields() []Ustr {
	var ret []Ustr
	start := -1
	isspace := func(c uint8) bool {
		return c == ' ' || c == '\t' || c == '\n' || c == '\r'
	}
	for i, c := range us {
		if isspace(c) {
			if start >= 0 {
				ret = append(ret, us[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		ret = append(ret, us[start:])
	}
	return ret
}

/// SplitN splits us on the first occurrence of sep into two pieces.
/// The second return value is false if sep does not occur in us.
/// \param sep single separator byte, e.g. '=' for "key=value" tokens.
func (us Ustr) SplitN(sep uint8) (Ustr, Ustr, bool) {
	i := us.IndexByte(sep)
	if i < 0 {
		return us, nil, false
	}
	return us[:i], us[i+1:], true
}
