// Package discord connects the bot commands to Discord through a gateway
// session and slash-command interactions.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"

	"casbot/internal/bot"
	"casbot/internal/chat"
	"casbot/pkg/requestcontext"
)

// Dispatcher handles the commands received from Discord.
type Dispatcher interface {
	Verify(ctx context.Context, inv chat.Invocation, resp chat.Responder) error
	Query(ctx context.Context, inv chat.Invocation, resp chat.Responder, target bot.UserRef) error
	Roll(ctx context.Context, inv chat.Invocation, resp chat.Responder, rollNo string) error
	BackendInfo(ctx context.Context, inv chat.Invocation, resp chat.Responder) error
	CommunityJoined(ctx context.Context, community chat.Community, announce chat.Responder) error
}

// Adapter owns the Discord session.
type Adapter struct {
	session    *discordgo.Session
	dispatcher Dispatcher
	logger     *slog.Logger

	mu    sync.Mutex
	ctx   context.Context
	known map[string]struct{} // guilds present at Ready
	ready chan struct{}
	once  sync.Once
}

// New creates an adapter for the bot token. The session is not opened until Run.
func New(token string, dispatcher Dispatcher, logger *slog.Logger) (*Adapter, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	a := &Adapter{
		session:    session,
		dispatcher: dispatcher,
		logger:     logger,
		ctx:        context.Background(),
		known:      make(map[string]struct{}),
		ready:      make(chan struct{}),
	}
	session.AddHandler(a.onReady)
	session.AddHandler(a.onGuildCreate)
	session.AddHandler(a.onInteraction)
	return a, nil
}

// Run opens the gateway connection and blocks until ctx is done. Commands
// still running when ctx ends see it cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	<-ctx.Done()
	if err := a.session.Close(); err != nil {
		a.logger.Warn("discord session close failed", "error", err)
	}
	return nil
}

// Ready is closed once the gateway handshake and command sync are done.
func (a *Adapter) Ready() <-chan struct{} {
	return a.ready
}

func (a *Adapter) baseContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}

func (a *Adapter) onReady(s *discordgo.Session, r *discordgo.Ready) {
	a.mu.Lock()
	for _, g := range r.Guilds {
		a.known[g.ID] = struct{}{}
	}
	a.mu.Unlock()

	a.logger.Info("connected to discord", "user", r.User.Username, "guilds", len(r.Guilds))

	appID := r.User.ID
	if r.Application != nil && r.Application.ID != "" {
		appID = r.Application.ID
	}
	synced, err := s.ApplicationCommandBulkOverwrite(appID, "", Commands(), discordgo.WithContext(a.baseContext()))
	if err != nil {
		a.logger.Error("slash command sync failed", "error", err)
	} else {
		a.logger.Info("slash commands synced", "count", len(synced))
	}
	a.once.Do(func() { close(a.ready) })
}

// onGuildCreate fires for every guild at startup and for new joins; only
// guilds missing from Ready are new.
func (a *Adapter) onGuildCreate(s *discordgo.Session, e *discordgo.GuildCreate) {
	if e.Guild == nil || e.Unavailable {
		return
	}
	a.mu.Lock()
	_, seen := a.known[e.ID]
	a.known[e.ID] = struct{}{}
	a.mu.Unlock()
	if seen {
		return
	}

	community, err := newGuild(s, e.ID)
	if err != nil {
		a.logger.Error("unexpected guild id", "guild_id", e.ID, "error", err)
		return
	}

	var announce chat.Responder
	if channelID := firstWritableChannel(e.Guild.Channels, func(channelID string) (int64, error) {
		return s.State.UserChannelPermissions(s.State.User.ID, channelID)
	}); channelID != "" {
		announce = &channelResponder{session: s, channelID: channelID}
	}

	if err := a.dispatcher.CommunityJoined(a.baseContext(), community, announce); err != nil {
		a.logger.Error("guild join handling failed", "guild_id", e.ID, "error", err)
	}
}

func (a *Adapter) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx := a.baseContext()
	data := i.ApplicationCommandData()

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
	if err != nil {
		a.logger.Error("failed to acknowledge interaction", "command", data.Name, "error", err)
		return
	}

	inv, err := invocationFrom(s, i.Interaction)
	if err != nil {
		a.logger.Error("unreadable interaction", "command", data.Name, "error", err)
		return
	}
	ctx = requestcontext.WithRequesterID(requestcontext.WithRequestID(ctx, i.ID), inv.UserID)
	resp := &interactionResponder{session: s, interaction: i.Interaction}

	switch data.Name {
	case CommandVerify:
		err = a.dispatcher.Verify(ctx, inv, resp)
	case CommandQuery:
		err = a.dispatcher.Query(ctx, inv, resp, userOption(data))
	case CommandRoll:
		err = a.dispatcher.Roll(ctx, inv, resp, intOption(data.Options))
	case CommandBackendInfo:
		err = a.dispatcher.BackendInfo(ctx, inv, resp)
	default:
		a.logger.Warn("unknown command", "command", data.Name)
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.ErrorContext(ctx, "command failed",
			"command", data.Name,
			"request_id", i.ID,
			"requester_id", inv.UserID,
			"error", err,
		)
	}
}

// invocationFrom describes who ran an interaction and where.
func invocationFrom(s *discordgo.Session, i *discordgo.Interaction) (chat.Invocation, error) {
	if i.Member != nil && i.Member.User != nil && i.GuildID != "" {
		community, err := newGuild(s, i.GuildID)
		if err != nil {
			return chat.Invocation{}, err
		}
		return chat.Invocation{
			UserID:    i.Member.User.ID,
			Username:  i.Member.User.String(),
			Mention:   i.Member.User.Mention(),
			Community: community,
			Moderator: i.Member.Permissions&discordgo.PermissionModerateMembers != 0,
		}, nil
	}
	if i.User != nil {
		return chat.Invocation{
			UserID:   i.User.ID,
			Username: i.User.String(),
			Mention:  i.User.Mention(),
		}, nil
	}
	return chat.Invocation{}, errors.New("interaction has no user")
}

// userOption reads the user argument, preferring the resolved user the
// interaction carries for display.
func userOption(data discordgo.ApplicationCommandInteractionData) bot.UserRef {
	for _, o := range data.Options {
		if o.Name != optionIdentifier || o.Type != discordgo.ApplicationCommandOptionUser {
			continue
		}
		id, _ := o.Value.(string)
		ref := bot.UserRef{ID: id, Display: id}
		if data.Resolved != nil {
			if u, ok := data.Resolved.Users[id]; ok && u != nil {
				ref.Display = u.String()
			}
		}
		return ref
	}
	return bot.UserRef{}
}

func intOption(opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	for _, o := range opts {
		if o.Name == optionIdentifier && o.Type == discordgo.ApplicationCommandOptionInteger {
			return strconv.FormatInt(o.IntValue(), 10)
		}
	}
	return ""
}

// firstWritableChannel returns the top-most text channel the bot may post in.
func firstWritableChannel(channels []*discordgo.Channel, perms func(channelID string) (int64, error)) string {
	text := make([]*discordgo.Channel, 0, len(channels))
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildText {
			text = append(text, c)
		}
	}
	sort.SliceStable(text, func(i, j int) bool { return text[i].Position < text[j].Position })

	for _, c := range text {
		p, err := perms(c.ID)
		if err == nil && p&discordgo.PermissionSendMessages != 0 {
			return c.ID
		}
	}
	return ""
}
