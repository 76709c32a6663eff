package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"casbot/internal/chat"
)

// interactionResponder sends followups to a deferred interaction.
type interactionResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

func (r *interactionResponder) Reply(ctx context.Context, msg chat.Message) error {
	params := &discordgo.WebhookParams{
		Content:         msg.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers}},
	}
	if msg.Private {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	_, err := r.session.FollowupMessageCreate(r.interaction, true, params, discordgo.WithContext(ctx))
	return mapError(err)
}

// channelResponder posts plain messages to a channel.
type channelResponder struct {
	session   *discordgo.Session
	channelID string
}

func (r *channelResponder) Reply(ctx context.Context, msg chat.Message) error {
	_, err := r.session.ChannelMessageSend(r.channelID, msg.Content, discordgo.WithContext(ctx))
	return mapError(err)
}
