// Package chattest provides in-memory chat fakes for tests.
package chattest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"casbot/internal/chat"
)

// Recorder is a Responder that keeps every reply.
type Recorder struct {
	mu       sync.Mutex
	messages []chat.Message
	Err      error
}

func (r *Recorder) Reply(_ context.Context, msg chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of the recorded replies.
func (r *Recorder) Messages() []chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chat.Message(nil), r.messages...)
}

// Contents returns the text of every recorded reply.
func (r *Recorder) Contents() []string {
	msgs := r.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

// Community is a fake community that records role and nickname changes.
type Community struct {
	mu sync.Mutex

	CommunityID int64
	Roles       []chat.Role
	Members     map[string]map[string]bool // user -> role id -> held
	Nicknames   map[string]string
	Left        bool

	RenameErr error
	GrantErr  error
	CreateErr error

	nextRole int
	grants   int
	revokes  int
}

// NewCommunity returns a community holding roles with the given names.
func NewCommunity(id int64, roleNames ...string) *Community {
	c := &Community{
		CommunityID: id,
		Members:     make(map[string]map[string]bool),
		Nicknames:   make(map[string]string),
	}
	for _, name := range roleNames {
		c.addRole(name)
	}
	return c
}

func (c *Community) ID() int64 { return c.CommunityID }

func (c *Community) ListRoles(context.Context) ([]chat.Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Role(nil), c.Roles...), nil
}

func (c *Community) CreateRole(_ context.Context, name string) (chat.Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CreateErr != nil {
		return chat.Role{}, c.CreateErr
	}
	return c.addRole(name), nil
}

func (c *Community) GrantRole(_ context.Context, userID, roleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grants++
	if c.GrantErr != nil {
		return c.GrantErr
	}
	if !c.hasRole(roleID) {
		return fmt.Errorf("unknown role %s", roleID)
	}
	if c.Members[userID] == nil {
		c.Members[userID] = make(map[string]bool)
	}
	c.Members[userID][roleID] = true
	return nil
}

func (c *Community) RevokeRole(_ context.Context, userID, roleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revokes++
	delete(c.Members[userID], roleID)
	return nil
}

// GrantCalls counts GrantRole calls, failed ones included.
func (c *Community) GrantCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grants
}

// RevokeCalls counts RevokeRole calls.
func (c *Community) RevokeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revokes
}

func (c *Community) RenameMember(_ context.Context, userID, nickname string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RenameErr != nil {
		return c.RenameErr
	}
	c.Nicknames[userID] = nickname
	return nil
}

func (c *Community) Leave(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Left = true
	return nil
}

// Give marks userID as holding the role named name.
func (c *Community) Give(userID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.Roles {
		if r.Name == name {
			if c.Members[userID] == nil {
				c.Members[userID] = make(map[string]bool)
			}
			c.Members[userID][r.ID] = true
		}
	}
}

// HeldRoleNames returns the names of the roles userID holds, in community order.
func (c *Community) HeldRoleNames(userID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for _, r := range c.Roles {
		if c.Members[userID][r.ID] {
			names = append(names, r.Name)
		}
	}
	return names
}

// HasLeft reports whether Leave was called.
func (c *Community) HasLeft() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Left
}

func (c *Community) addRole(name string) chat.Role {
	c.nextRole++
	r := chat.Role{ID: strconv.Itoa(c.nextRole), Name: name}
	c.Roles = append(c.Roles, r)
	return r
}

func (c *Community) hasRole(roleID string) bool {
	for _, r := range c.Roles {
		if r.ID == roleID {
			return true
		}
	}
	return false
}
