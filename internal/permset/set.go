// Package permset models unordered sets of permission names.
package permset

import (
	"encoding/json"
	"sort"
	"strings"
)

// Set is an unordered collection of permission names. The zero value is an
// empty set ready for reads; use New or Clone before writing.
type Set map[string]struct{}

// New builds a set from the given names, trimming blanks and duplicates.
func New(names ...string) Set {
	s := make(Set, len(names))
	for _, name := range names {
		name = Normalize(name)
		if name == "" {
			continue
		}
		s[name] = struct{}{}
	}
	return s
}

// Normalize lowercases and trims a permission name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Has reports membership.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s)
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Union returns s ∪ other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// Intersect returns s ∩ other.
func (s Set) Intersect(other Set) Set {
	out := make(Set)
	for k := range s {
		if other.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Minus returns s \ other.
func (s Set) Minus(other Set) Set {
	out := make(Set, len(s))
	for k := range s {
		if !other.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// ContainsAll reports whether every member of other is in s.
func (s Set) ContainsAll(other Set) bool {
	for k := range other {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// Equal compares membership, ignoring order.
func (s Set) Equal(other Set) bool {
	return len(s) == len(other) && s.ContainsAll(other)
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of names.
func (s *Set) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = New(names...)
	return nil
}
