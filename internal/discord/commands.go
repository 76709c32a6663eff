package discord

import "github.com/bwmarrin/discordgo"

// Slash command names.
const (
	CommandVerify      = "verify"
	CommandQuery       = "query"
	CommandRoll        = "roll"
	CommandBackendInfo = "backend_info"

	optionIdentifier = "identifier"
)

// Commands is the slash command set registered at startup.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        CommandVerify,
			Description: "Verify yourself with a CAS login.",
		},
		{
			Name:        CommandQuery,
			Description: "Look up the CAS details of a member.",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        optionIdentifier,
				Description: "Member to look up",
				Required:    true,
			}},
		},
		{
			Name:        CommandRoll,
			Description: "Look up the CAS details of a member by roll number.",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        optionIdentifier,
				Description: "Roll number",
				Required:    true,
			}},
		},
		{
			Name:        CommandBackendInfo,
			Description: "Show details of the machine running the bot.",
		},
	}
}
