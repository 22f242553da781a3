package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// MaxRoleNameLength is the longest role name the roles table holds.
const MaxRoleNameLength = 20

// RoleSet is a set of role names. Membership is by exact name after
// surrounding whitespace is trimmed.
type RoleSet map[string]struct{}

// NewRoleSet builds a set from names, skipping blanks.
func NewRoleSet(names ...string) RoleSet {
	set := make(RoleSet, len(names))
	for _, n := range names {
		set.Add(n)
	}
	return set
}

// RoleSetFromFlags converts the legacy list-of-flag-maps shape
// ([{"admin": true}, {"editor": false}]) into a set. Only true flags count.
func RoleSetFromFlags(flags []map[string]bool) RoleSet {
	set := make(RoleSet)
	for _, m := range flags {
		for name, on := range m {
			if on {
				set.Add(name)
			}
		}
	}
	return set
}

func (s RoleSet) Add(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	s[name] = struct{}{}
}

func (s RoleSet) Has(name string) bool {
	_, ok := s[strings.TrimSpace(name)]
	return ok
}

// Intersects reports whether at least one name is present in both sets.
// An empty set never intersects.
func (s RoleSet) Intersects(other RoleSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for name := range small {
		if _, ok := large[name]; ok {
			return true
		}
	}
	return false
}

// Names returns the members in sorted order.
func (s RoleSet) Names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RolesMatch is the policy matching rule: true iff the account roles and the
// required roles share at least one name.
func RolesMatch(accountRoles, required RoleSet) bool {
	return accountRoles.Intersects(required)
}

func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON accepts either ["admin", "client"] or the legacy
// [{"admin": true}, {"client": true}] encoding. Elements may be mixed.
func (s *RoleSet) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("roles must be an array: %w", err)
	}
	set := make(RoleSet, len(raw))
	for i, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 {
			continue
		}
		switch item[0] {
		case '"':
			var name string
			if err := json.Unmarshal(item, &name); err != nil {
				return fmt.Errorf("roles[%d]: %w", i, err)
			}
			set.Add(name)
		case '{':
			var flags map[string]bool
			if err := json.Unmarshal(item, &flags); err != nil {
				return fmt.Errorf("roles[%d]: %w", i, err)
			}
			for name := range RoleSetFromFlags([]map[string]bool{flags}) {
				set[name] = struct{}{}
			}
		default:
			return fmt.Errorf("roles[%d]: expected string or object", i)
		}
	}
	*s = set
	return nil
}
