// Package effector applies a community's policy to a member once their CAS
// sign-in is on record: roles are created and granted, stale roles revoked,
// and the nickname optionally set to the member's real name.
package effector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"casbot/internal/chat"
	"casbot/internal/policy"
	"casbot/internal/roster/models"
)

// ErrNotAuthorized is returned when the community has no policy. The bot has
// already left the community by the time the caller sees it.
var ErrNotAuthorized = errors.New("community is not authorized")

const (
	MsgVerifiedDM = "%s has been CAS-verified! Now, run the same command on the discord " +
		"servers where you want to be verified!"
	MsgVerified     = "%s has been CAS-verified on this server!"
	MsgUnauthorized = "This server is not authorized to work with CAS-bot. " +
		"Read the instructions to invite the bot in the project README"
	MsgNicknameDenied = "Bot should have a role higher than you to change your nickname"
)

// IdentityFinder reads the verified record used for the real-name nickname.
type IdentityFinder interface {
	FindByPlatformID(ctx context.Context, platformID string) (*models.Identity, error)
}

// PolicySource resolves a community's policy.
type PolicySource interface {
	Lookup(serverID int64) (policy.Policy, bool)
}

// Effector runs the post-verification steps.
type Effector struct {
	policies PolicySource
	roster   IdentityFinder
	logger   *slog.Logger
}

type Option func(*Effector)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Effector) {
		e.logger = logger
	}
}

// New constructs an Effector.
func New(policies PolicySource, roster IdentityFinder, opts ...Option) *Effector {
	e := &Effector{policies: policies, roster: roster, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply performs the post-verification actions for the invoker of inv and
// reports progress through resp.
func (e *Effector) Apply(ctx context.Context, inv chat.Invocation, resp chat.Responder) error {
	if !inv.InCommunity() {
		return resp.Reply(ctx, chat.Public(MsgVerifiedDM, inv.Mention))
	}

	community := inv.Community
	p, ok := e.policies.Lookup(community.ID())
	if !ok {
		return e.rejectCommunity(ctx, community, resp)
	}

	if err := e.grantRoles(ctx, community, inv.UserID, p.GrantRoles); err != nil {
		return err
	}
	if err := e.revokeRoles(ctx, community, inv.UserID, p.DeleteRoles); err != nil {
		return err
	}

	if p.SetRealName {
		err := e.setNickname(ctx, community, inv.UserID)
		if err != nil && !errors.Is(err, chat.ErrForbidden) {
			return err
		}
		if err != nil {
			e.logger.WarnContext(ctx, "nickname not changed",
				"community_id", community.ID(),
				"requester_id", inv.UserID,
				"error", err,
			)
			if err := resp.Reply(ctx, chat.Private(MsgNicknameDenied)); err != nil {
				return err
			}
		}
	}

	return resp.Reply(ctx, chat.Public(MsgVerified, inv.Mention))
}

// rejectCommunity notifies the community that it has no policy and leaves it.
func (e *Effector) rejectCommunity(ctx context.Context, community chat.Community, resp chat.Responder) error {
	e.logger.WarnContext(ctx, "leaving unauthorized community", "community_id", community.ID())
	replyErr := resp.Reply(ctx, chat.Private(MsgUnauthorized))
	if err := community.Leave(ctx); err != nil {
		return fmt.Errorf("leave community %d: %w", community.ID(), err)
	}
	if replyErr != nil {
		e.logger.WarnContext(ctx, "unauthorized notice not delivered", "community_id", community.ID(), "error", replyErr)
	}
	return ErrNotAuthorized
}

func (e *Effector) grantRoles(ctx context.Context, community chat.Community, userID string, names policy.Roles) error {
	if len(names) == 0 {
		return nil
	}
	existing, err := community.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	byName := indexByName(existing)

	for _, name := range names {
		if _, ok := byName[name]; ok {
			continue
		}
		role, err := community.CreateRole(ctx, name)
		if err != nil {
			return fmt.Errorf("create role %q: %w", name, err)
		}
		byName[name] = []chat.Role{role}
	}

	for _, name := range names {
		for _, role := range byName[name] {
			if err := community.GrantRole(ctx, userID, role.ID); err != nil {
				return fmt.Errorf("grant role %q: %w", name, err)
			}
		}
	}
	return nil
}

// revokeRoles removes every community role named in names. Roles the member
// does not hold are left to the platform, which treats removal as a no-op.
func (e *Effector) revokeRoles(ctx context.Context, community chat.Community, userID string, names policy.Roles) error {
	if len(names) == 0 {
		return nil
	}
	existing, err := community.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	for _, role := range existing {
		if !names.Contains(role.Name) {
			continue
		}
		if err := community.RevokeRole(ctx, userID, role.ID); err != nil {
			return fmt.Errorf("revoke role %q: %w", role.Name, err)
		}
	}
	return nil
}

func (e *Effector) setNickname(ctx context.Context, community chat.Community, userID string) error {
	identity, err := e.roster.FindByPlatformID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load real name: %w", err)
	}
	if err := community.RenameMember(ctx, userID, identity.Nickname()); err != nil {
		return fmt.Errorf("set nickname: %w", err)
	}
	return nil
}

// indexByName groups roles by name; platforms allow duplicate role names and
// every match is granted.
func indexByName(roles []chat.Role) map[string][]chat.Role {
	out := make(map[string][]chat.Role, len(roles))
	for _, r := range roles {
		out[r.Name] = append(out[r.Name], r)
	}
	return out
}
