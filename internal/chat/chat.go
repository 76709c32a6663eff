// Package chat defines the narrow view of the chat platform that the
// verification flow and bot commands depend on. The Discord adapter
// implements it; tests use in-memory fakes.
package chat

import (
	"context"
	"errors"
	"fmt"
)

// ErrForbidden is returned by a Community when the platform rejects an
// action for lack of privilege (role hierarchy, missing permission).
var ErrForbidden = errors.New("forbidden by platform")

// Role is a named role inside a community.
type Role struct {
	ID   string
	Name string
}

// Community is a chat server the bot is a member of.
type Community interface {
	ID() int64
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, name string) (Role, error)
	GrantRole(ctx context.Context, userID, roleID string) error
	// RevokeRole succeeds when the member never held the role.
	RevokeRole(ctx context.Context, userID, roleID string) error
	RenameMember(ctx context.Context, userID, nickname string) error
	Leave(ctx context.Context) error
}

// Message is a reply to the member who triggered a command. Private replies
// are only visible to that member.
type Message struct {
	Content string
	Private bool
}

// Public builds a reply visible to the whole channel.
func Public(format string, args ...any) Message {
	return Message{Content: fmt.Sprintf(format, args...)}
}

// Private builds a reply only the invoker can see.
func Private(format string, args ...any) Message {
	return Message{Content: fmt.Sprintf(format, args...), Private: true}
}

// Responder delivers replies to the triggering request.
type Responder interface {
	Reply(ctx context.Context, msg Message) error
}

// Invocation describes who ran a command and where.
type Invocation struct {
	UserID   string
	Username string
	Mention  string
	// Community is nil for direct messages.
	Community Community
	// Moderator is true when the member may moderate other members in Community.
	Moderator bool
}

// InCommunity reports whether the command was run inside a community.
func (i Invocation) InCommunity() bool {
	return i.Community != nil
}

// CommunityID returns the community id, or 0 for direct messages.
func (i Invocation) CommunityID() int64 {
	if i.Community == nil {
		return 0
	}
	return i.Community.ID()
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, msg Message) error

func (f ResponderFunc) Reply(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
