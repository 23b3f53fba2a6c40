package handler

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const (
	// MinSpeechSpeed and MaxSpeechSpeed bound /say speed in words per minute.
	MinSpeechSpeed = 80
	MaxSpeechSpeed = 450

	defaultHistoryCount = 10
	maxHistoryCount     = 25
)

func floatPtr(f float64) *float64 {
	return &f
}

var soundCronSourceOptions = []*discordgo.ApplicationCommandOption{
	{
		Name:        "audio",
		Type:        discordgo.ApplicationCommandOptionAttachment,
		Description: "The file to play when the soundcron runs.",
	},
	{
		Name:        "url",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "A link to the file to play when the soundcron runs.",
	},
	{
		Name:         "channel",
		Type:         discordgo.ApplicationCommandOptionChannel,
		Description:  "The voice channel to play in. Defaults to the busiest one.",
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice},
	},
}

var soundCronAddOptions = append([]*discordgo.ApplicationCommandOption{
	{
		Name:        "name",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "The name of the soundcron.",
		Required:    true,
	},
	{
		Name:        "cron",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "The cron expression for the soundcron, in UTC.",
		Required:    true,
	},
}, soundCronSourceOptions...)

// Commands is a list of all the commands the bot can handle.
// This is used to register the commands with Discord.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "ping",
		Description: "Check that the bot is alive",
	},
	{
		Name:        "say",
		Description: "Joins the voice channel you are in and says what you passed to it",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "text",
				Type:        discordgo.ApplicationCommandOptionString,
				Description: "What to say.",
				Required:    true,
			},
			{
				Name:        "voice",
				Type:        discordgo.ApplicationCommandOptionString,
				Description: "The voice to speak with.",
			},
			{
				Name:        "speed",
				Type:        discordgo.ApplicationCommandOptionInteger,
				Description: "Words per minute.",
				MinValue:    floatPtr(MinSpeechSpeed),
				MaxValue:    MaxSpeechSpeed,
			},
		},
	},
	{
		Name:        "play",
		Description: "Joins the voice channel you are in and plays a file",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "file",
				Type:        discordgo.ApplicationCommandOptionAttachment,
				Description: "An audio file to play.",
			},
			{
				Name:        "url",
				Type:        discordgo.ApplicationCommandOptionString,
				Description: "A link to an audio file to play.",
			},
		},
	},
	{
		Name:        "yt",
		Description: "Joins the voice channel you are in and plays a video's audio",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "url",
				Type:        discordgo.ApplicationCommandOptionString,
				Description: "The video to play.",
				Required:    true,
			},
		},
	},
	{
		Name:        "ytsearch",
		Description: "Joins the voice channel you are in and plays the first search result",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "query",
				Type:        discordgo.ApplicationCommandOptionString,
				Description: "What to search for.",
				Required:    true,
			},
		},
	},
	{
		Name:        "skip",
		Description: "Stop the current item and play the next one",
	},
	{
		Name:        "move",
		Description: "Move a queue item to another position",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "from",
				Type:        discordgo.ApplicationCommandOptionInteger,
				Description: "The position of the item, as shown by /queue. Negative counts from the end.",
				Required:    true,
			},
			{
				Name:        "to",
				Type:        discordgo.ApplicationCommandOptionInteger,
				Description: "The new position. Negative counts from the end.",
				Required:    true,
			},
		},
	},
	{
		Name:        "remove",
		Description: "Remove an item from the queue",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "index",
				Type:        discordgo.ApplicationCommandOptionInteger,
				Description: "The position of the item, as shown by /queue. Negative counts from the end.",
				Required:    true,
			},
		},
	},
	{
		Name:        "loop",
		Description: "Replay finished items. Toggles when no value is given",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "enabled",
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Description: "Whether to loop.",
			},
		},
	},
	{
		Name:        "queue",
		Description: "Show what is playing and what is next",
	},
	{
		Name:        "leave",
		Description: "Leave the voice channel and clear the queue",
	},
	{
		Name:        "log",
		Description: "Show the most recent playback error",
	},
	{
		Name:        "history",
		Description: "Show what was played recently",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "count",
				Type:        discordgo.ApplicationCommandOptionInteger,
				Description: "How many entries to show.",
				MinValue:    floatPtr(1),
				MaxValue:    maxHistoryCount,
			},
		},
	},
	{
		Name:        "soundcron",
		Description: "Manage and work with soundcrons",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "list",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "List all soundcrons",
			},
			{
				Name:        "add",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Add a soundcron to this server from a file or a link",
				Options:     soundCronAddOptions,
			},
			{
				Name:        "delete",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Delete a soundcron",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "name",
						Type:        discordgo.ApplicationCommandOptionString,
						Description: "The name of the soundcron.",
						Required:    true,
					},
				},
			},
		},
	},
}

// EstablishCommands registers Commands in guildID, or globally when
// guildID is empty.
func EstablishCommands(s *discordgo.Session, guildID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Commands)
	if err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}
	return nil
}
