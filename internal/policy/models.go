// Package policy loads and validates the per-community verification policies.
//
// Policies come from a sectioned INI file, one section per community:
//
//	[Example]
//	serverid = 1234567890
//	grantroles = Verified,Student
//	deleteroles = Unverified
//	is_academic = true
//	setrealname = false
//
// The file is read once at startup. Any invalid section aborts the load and
// the process exits non-zero; there is no partial configuration.
package policy

import (
	"slices"
	"sort"
)

// Roles is an ordered set of non-empty role names.
type Roles []string

// Contains reports whether name is in the set.
func (r Roles) Contains(name string) bool {
	return slices.Contains(r, name)
}

// Policy is the verification policy of one community.
type Policy struct {
	Section     string
	ServerID    int64
	GrantRoles  Roles
	DeleteRoles Roles
	SetRealName bool
	Academic    bool
}

// Set is an immutable lookup of policies by community ID.
type Set struct {
	byServer map[int64]Policy
}

// NewSet builds a Set from already-validated policies.
func NewSet(policies ...Policy) *Set {
	s := &Set{byServer: make(map[int64]Policy, len(policies))}
	for _, p := range policies {
		s.byServer[p.ServerID] = p
	}
	return s
}

// Lookup returns the policy registered for serverID.
func (s *Set) Lookup(serverID int64) (Policy, bool) {
	if s == nil {
		return Policy{}, false
	}
	p, ok := s.byServer[serverID]
	return p, ok
}

// Len returns the number of configured communities.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byServer)
}

// Policies returns all policies ordered by server ID.
func (s *Set) Policies() []Policy {
	if s == nil {
		return nil
	}
	out := make([]Policy, 0, len(s.byServer))
	for _, p := range s.byServer {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out
}
