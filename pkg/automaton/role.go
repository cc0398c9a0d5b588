/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: role.go
Description: Execution roles of a session. The client role waits for inbound data and
reacts to it; the master role drives the conversation by choosing what to send next.
*/

package automaton

import (
	"fmt"
	"strings"
)

// Role is the side of the conversation a session plays
type Role int

const (
	RoleClient Role = iota // Reacts to inbound symbols
	RoleMaster             // Picks transitions and speaks first
)

// String returns the role name
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleMaster:
		return "master"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleMaster
}

// ParseRole converts a role name into a Role
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client":
		return RoleClient, nil
	case "master", "server":
		return RoleMaster, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// MarshalText encodes the role by name
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
