// Package bot implements the chat commands: verify, query, roll and
// backend_info, plus the checks run when the bot joins a community.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"casbot/internal/chat"
	"casbot/internal/platform/hostinfo"
	"casbot/internal/policy"
	"casbot/internal/roster/models"
	"casbot/internal/verification/effector"
	"casbot/internal/verification/service"
	"casbot/pkg/platform/sentinel"
)

const (
	MsgInitializing = "The bot is currently initializing and the command cannot be processed.\n" +
		"Please wait for some time and then try again."
	MsgNotAcademic   = "This server is not for academic purposes and %s is not a bot admin."
	MsgNotAdmin      = "%s is not a bot admin."
	MsgNotRegistered = "%s is not registered with IIIT-CAS."
	MsgIdentity      = "Name: %s\nEmail: %s\nRoll Number: %s"
	MsgBackendInfo   = "Here are the server details:\nsystem: %s\nnode: %s\nrelease: %s\nversion: %s\nmachine: %s"
	MsgFailed        = "Something went wrong while processing this command. Please try again later."
	MsgWelcome       = "CAS-bot has joined this server"
	MsgJoinRejected  = "This server is not authorized to work with CAS-bot. " +
		"Read the instructions to invite the bot in the project README."
)

// Verifier runs the /verify flow.
type Verifier interface {
	Verify(ctx context.Context, inv chat.Invocation, resp chat.Responder) (service.State, error)
}

// Roster is the read side of the roster store.
type Roster interface {
	FindByPlatformID(ctx context.Context, platformID string) (*models.Identity, error)
	FindBySecondaryKey(ctx context.Context, rollNo string) (*models.Identity, error)
}

// PolicySource resolves a community's policy.
type PolicySource interface {
	Lookup(serverID int64) (policy.Policy, bool)
}

// UserRef names the member a query is about.
type UserRef struct {
	ID string
	// Display is shown when the member is not registered.
	Display string
}

// Bot dispatches chat commands.
type Bot struct {
	verifier Verifier
	roster   Roster
	policies PolicySource
	admins   map[string]struct{}
	hostInfo func() (hostinfo.Info, error)
	logger   *slog.Logger
}

type Option func(*Bot)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bot) {
		b.logger = logger
	}
}

// WithAdmins sets the platform user ids allowed to run admin commands.
func WithAdmins(ids ...string) Option {
	return func(b *Bot) {
		for _, id := range ids {
			b.admins[id] = struct{}{}
		}
	}
}

// WithHostInfo replaces hostinfo.Read.
func WithHostInfo(read func() (hostinfo.Info, error)) Option {
	return func(b *Bot) {
		if read != nil {
			b.hostInfo = read
		}
	}
}

// New constructs a Bot.
func New(verifier Verifier, roster Roster, policies PolicySource, opts ...Option) (*Bot, error) {
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if roster == nil {
		return nil, errors.New("roster is required")
	}
	if policies == nil {
		return nil, errors.New("policies are required")
	}
	b := &Bot{
		verifier: verifier,
		roster:   roster,
		policies: policies,
		admins:   make(map[string]struct{}),
		hostInfo: hostinfo.Read,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// IsAdmin reports whether userID is a bot admin.
func (b *Bot) IsAdmin(userID string) bool {
	_, ok := b.admins[userID]
	return ok
}

// Verify handles /verify.
func (b *Bot) Verify(ctx context.Context, inv chat.Invocation, resp chat.Responder) error {
	state, err := b.verifier.Verify(ctx, inv, resp)
	switch {
	case err == nil:
		b.logger.DebugContext(ctx, "verify finished", "requester_id", inv.UserID, "state", state.String())
		return nil
	case errors.Is(err, effector.ErrNotAuthorized):
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, sentinel.ErrUnavailable):
		return resp.Reply(ctx, chat.Private(MsgInitializing))
	default:
		b.logger.ErrorContext(ctx, "verify failed",
			"requester_id", inv.UserID,
			"community_id", inv.CommunityID(),
			"state", state.String(),
			"error", err,
		)
		return resp.Reply(ctx, chat.Private(MsgFailed))
	}
}

// Query handles /query <user>.
func (b *Bot) Query(ctx context.Context, inv chat.Invocation, resp chat.Responder, target UserRef) error {
	if !b.mayLookUp(inv) {
		return resp.Reply(ctx, chat.Private(MsgNotAcademic, inv.Mention))
	}
	identity, err := b.roster.FindByPlatformID(ctx, target.ID)
	return b.replyIdentity(ctx, resp, identity, err, target.Display)
}

// Roll handles /roll <rollno>.
func (b *Bot) Roll(ctx context.Context, inv chat.Invocation, resp chat.Responder, rollNo string) error {
	if !b.mayLookUp(inv) {
		return resp.Reply(ctx, chat.Private(MsgNotAcademic, inv.Mention))
	}
	rollNo = strings.TrimSpace(rollNo)
	identity, err := b.roster.FindBySecondaryKey(ctx, rollNo)
	return b.replyIdentity(ctx, resp, identity, err, rollNo)
}

// BackendInfo handles /backend_info.
func (b *Bot) BackendInfo(ctx context.Context, inv chat.Invocation, resp chat.Responder) error {
	if !b.IsAdmin(inv.UserID) {
		return resp.Reply(ctx, chat.Private(MsgNotAdmin, inv.Mention))
	}
	info, err := b.hostInfo()
	if err != nil {
		b.logger.ErrorContext(ctx, "host info unavailable", "error", err)
		return resp.Reply(ctx, chat.Private(MsgFailed))
	}
	return resp.Reply(ctx, chat.Private(MsgBackendInfo, info.System, info.Node, info.Release, info.Version, info.Machine))
}

// CommunityJoined greets a community the bot was just added to, or leaves it
// when no policy exists. announce is nil when no channel accepts messages.
func (b *Bot) CommunityJoined(ctx context.Context, community chat.Community, announce chat.Responder) error {
	_, authorized := b.policies.Lookup(community.ID())
	msg := MsgWelcome
	if !authorized {
		msg = MsgJoinRejected
	}

	if announce != nil {
		if err := announce.Reply(ctx, chat.Public("%s", msg)); err != nil {
			b.logger.WarnContext(ctx, "join announcement failed", "community_id", community.ID(), "error", err)
		}
	}
	if authorized {
		b.logger.InfoContext(ctx, "joined community", "community_id", community.ID())
		return nil
	}

	b.logger.WarnContext(ctx, "leaving unauthorized community", "community_id", community.ID())
	if err := community.Leave(ctx); err != nil {
		return fmt.Errorf("leave community %d: %w", community.ID(), err)
	}
	return nil
}

// mayLookUp allows roster lookups for moderators of academic communities
// and for bot admins anywhere.
func (b *Bot) mayLookUp(inv chat.Invocation) bool {
	if b.IsAdmin(inv.UserID) {
		return true
	}
	if !inv.InCommunity() || !inv.Moderator {
		return false
	}
	p, ok := b.policies.Lookup(inv.CommunityID())
	return ok && p.Academic
}

func (b *Bot) replyIdentity(ctx context.Context, resp chat.Responder, identity *models.Identity, err error, ref string) error {
	switch {
	case err == nil:
		return resp.Reply(ctx, chat.Private(MsgIdentity, identity.Name, identity.Email, identity.RollNo))
	case errors.Is(err, sentinel.ErrNotFound):
		return resp.Reply(ctx, chat.Private(MsgNotRegistered, ref))
	case errors.Is(err, sentinel.ErrUnavailable):
		return resp.Reply(ctx, chat.Private(MsgInitializing))
	default:
		b.logger.ErrorContext(ctx, "roster lookup failed", "error", err)
		return resp.Reply(ctx, chat.Private(MsgFailed))
	}
}
