package result

import (
	"fmt"
	"strings"
)

// Path addresses a value in a response tree. Elements are either string
// (object key) or int (list index).
type Path []PathElement

type PathElement any

// Append returns a copy of p with elem appended.
func (p Path) Append(elem ...PathElement) Path {
	out := make(Path, len(p), len(p)+len(elem))
	copy(out, p)
	return append(out, elem...)
}

// HasPrefix reports whether prefix is an ancestor of (or equal to) p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	var b strings.Builder
	for i, elem := range p {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				b.WriteString(".")
			}
			b.WriteString(v)
		case int:
			fmt.Fprintf(&b, "[%d]", v)
		}
	}
	return b.String()
}
