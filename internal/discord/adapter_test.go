package discord

import (
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casbot/internal/bot"
	"casbot/internal/chat"
)

var _ Dispatcher = (*bot.Bot)(nil)

func TestInvocationFrom(t *testing.T) {
	t.Run("guild member", func(t *testing.T) {
		inv, err := invocationFrom(nil, &discordgo.Interaction{
			GuildID: "123456789012345678",
			Member: &discordgo.Member{
				User:        &discordgo.User{ID: "42", Username: "asha"},
				Permissions: discordgo.PermissionModerateMembers | discordgo.PermissionSendMessages,
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "42", inv.UserID)
		assert.Equal(t, "<@42>", inv.Mention)
		assert.True(t, inv.Moderator)
		assert.Equal(t, int64(123456789012345678), inv.CommunityID())
	})

	t.Run("member without moderation", func(t *testing.T) {
		inv, err := invocationFrom(nil, &discordgo.Interaction{
			GuildID: "1",
			Member:  &discordgo.Member{User: &discordgo.User{ID: "42"}, Permissions: discordgo.PermissionSendMessages},
		})
		require.NoError(t, err)
		assert.False(t, inv.Moderator)
	})

	t.Run("direct message", func(t *testing.T) {
		inv, err := invocationFrom(nil, &discordgo.Interaction{User: &discordgo.User{ID: "42", Username: "asha"}})
		require.NoError(t, err)
		assert.False(t, inv.InCommunity())
		assert.Equal(t, "42", inv.UserID)
	})

	t.Run("no user", func(t *testing.T) {
		_, err := invocationFrom(nil, &discordgo.Interaction{})
		assert.Error(t, err)
	})
}

func TestOptions(t *testing.T) {
	t.Run("user resolved for display", func(t *testing.T) {
		data := discordgo.ApplicationCommandInteractionData{
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name: optionIdentifier, Type: discordgo.ApplicationCommandOptionUser, Value: "77",
			}},
			Resolved: &discordgo.ApplicationCommandInteractionDataResolved{
				Users: map[string]*discordgo.User{"77": {ID: "77", Username: "ravi", Discriminator: "0"}},
			},
		}
		assert.Equal(t, bot.UserRef{ID: "77", Display: "ravi"}, userOption(data))
	})

	t.Run("user without resolution falls back to id", func(t *testing.T) {
		data := discordgo.ApplicationCommandInteractionData{
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name: optionIdentifier, Type: discordgo.ApplicationCommandOptionUser, Value: "77",
			}},
		}
		assert.Equal(t, bot.UserRef{ID: "77", Display: "77"}, userOption(data))
	})

	t.Run("integer roll number", func(t *testing.T) {
		opts := []*discordgo.ApplicationCommandInteractionDataOption{{
			Name: optionIdentifier, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(2021101),
		}}
		assert.Equal(t, "2021101", intOption(opts))
		assert.Equal(t, "", intOption(nil))
	})
}

func TestFirstWritableChannel(t *testing.T) {
	channels := []*discordgo.Channel{
		{ID: "voice", Type: discordgo.ChannelTypeGuildVoice, Position: 0},
		{ID: "rules", Type: discordgo.ChannelTypeGuildText, Position: 1},
		{ID: "general", Type: discordgo.ChannelTypeGuildText, Position: 2},
		{ID: "announcements", Type: discordgo.ChannelTypeGuildText, Position: 0},
	}
	perms := map[string]int64{
		"voice":         discordgo.PermissionSendMessages,
		"rules":         discordgo.PermissionViewChannel,
		"general":       discordgo.PermissionSendMessages,
		"announcements": 0,
	}
	lookup := func(id string) (int64, error) { return perms[id], nil }

	assert.Equal(t, "general", firstWritableChannel(channels, lookup))

	perms["rules"] |= discordgo.PermissionSendMessages
	assert.Equal(t, "rules", firstWritableChannel(channels, lookup))

	none := func(string) (int64, error) { return 0, errors.New("not cached") }
	assert.Equal(t, "", firstWritableChannel(channels, none))
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))

	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	assert.ErrorIs(t, mapError(forbidden), chat.ErrForbidden)

	missingPerms := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusBadRequest},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingPermissions},
	}
	assert.ErrorIs(t, mapError(missingPerms), chat.ErrForbidden)

	other := errors.New("gateway closed")
	assert.Equal(t, other, mapError(other))
}

func TestCommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range Commands() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{CommandVerify, CommandQuery, CommandRoll, CommandBackendInfo}, names)
}
