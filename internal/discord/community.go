package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"casbot/internal/chat"
)

// guild adapts a Discord guild to chat.Community.
type guild struct {
	session *discordgo.Session
	guildID string
	id      int64
}

func newGuild(s *discordgo.Session, guildID string) (*guild, error) {
	id, err := strconv.ParseInt(guildID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse guild id %q: %w", guildID, err)
	}
	return &guild{session: s, guildID: guildID, id: id}, nil
}

func (g *guild) ID() int64 { return g.id }

func (g *guild) ListRoles(ctx context.Context) ([]chat.Role, error) {
	roles, err := g.session.GuildRoles(g.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]chat.Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, chat.Role{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

func (g *guild) CreateRole(ctx context.Context, name string) (chat.Role, error) {
	r, err := g.session.GuildRoleCreate(g.guildID, &discordgo.RoleParams{Name: name}, discordgo.WithContext(ctx))
	if err != nil {
		return chat.Role{}, mapError(err)
	}
	return chat.Role{ID: r.ID, Name: r.Name}, nil
}

func (g *guild) GrantRole(ctx context.Context, userID, roleID string) error {
	return mapError(g.session.GuildMemberRoleAdd(g.guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (g *guild) RevokeRole(ctx context.Context, userID, roleID string) error {
	return mapError(g.session.GuildMemberRoleRemove(g.guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (g *guild) RenameMember(ctx context.Context, userID, nickname string) error {
	return mapError(g.session.GuildMemberNickname(g.guildID, userID, nickname, discordgo.WithContext(ctx)))
}

func (g *guild) Leave(ctx context.Context) error {
	return mapError(g.session.GuildLeave(g.guildID, discordgo.WithContext(ctx)))
}

// mapError marks permission failures with chat.ErrForbidden.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		forbidden := rest.Response != nil && rest.Response.StatusCode == http.StatusForbidden
		if rest.Message != nil && rest.Message.Code == discordgo.ErrCodeMissingPermissions {
			forbidden = true
		}
		if forbidden {
			return fmt.Errorf("%w: %v", chat.ErrForbidden, err)
		}
	}
	return err
}
