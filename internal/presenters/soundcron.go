package presenters

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/needsmorejpeg/internal/repository"
)

const (
	ComponentIDSoundCronSelect = "soundcron_select_menu"
	ComponentIDSoundCronDelete = "soundcron_delete"
	ComponentIDSoundCronCancel = "soundcron_cancel"
)

const noSoundCronFoundContent = "No soundcrons found"

// CustomID ties a component to the flow instance that rendered it.
func CustomID(component, instanceID string) string {
	return component + ":" + instanceID
}

func soundCronToSelectMenuOption(sc repository.SoundCron) discordgo.SelectMenuOption {
	return discordgo.SelectMenuOption{
		Label:       sc.Name,
		Value:       sc.Name,
		Description: sc.Cron,
	}
}

var soundCronSelectMinValues = 1

// Discord allows at most 25 options in a select menu.
const maxSelectOptions = 25

func buildSoundCronSelectMenu(soundCrons []repository.SoundCron, instanceID string) *discordgo.InteractionResponse {
	if len(soundCrons) > maxSelectOptions {
		soundCrons = soundCrons[:maxSelectOptions]
	}
	options := make([]discordgo.SelectMenuOption, 0, len(soundCrons))
	for _, sc := range soundCrons {
		options = append(options, soundCronToSelectMenuOption(sc))
	}

	menu := discordgo.SelectMenu{
		CustomID:    CustomID(ComponentIDSoundCronSelect, instanceID),
		Placeholder: "Select a soundcron",
		MinValues:   &soundCronSelectMinValues,
		MaxValues:   1,
		Options:     options,
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "**Current Soundcrons** _(select for more details)_",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{menu},
				},
			},
		},
	}
}

// BuildListSoundCronsResponse renders the guild's soundcrons as a select
// menu owned by the flow instanceID.
func BuildListSoundCronsResponse(soundCrons []repository.SoundCron, instanceID string) *discordgo.InteractionResponse {
	if len(soundCrons) == 0 {
		return Message(noSoundCronFoundContent)
	}
	return buildSoundCronSelectMenu(soundCrons, instanceID)
}

func soundCronDetails(sc repository.SoundCron, next []time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\nCron: `%s`\n", sc.Name, sc.Cron)
	if sc.ChannelID != "" {
		fmt.Fprintf(&b, "Channel: <#%s>\n", sc.ChannelID)
	} else {
		b.WriteString("Channel: busiest voice channel\n")
	}
	if len(next) > 0 {
		b.WriteString("Next runs:")
		for _, t := range next {
			fmt.Fprintf(&b, " <t:%d:f>", t.Unix())
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// SoundCronListActionsMenu replaces the select menu with the chosen
// soundcron's details and what can be done with it.
func SoundCronListActionsMenu(instanceID string, sc repository.SoundCron, next []time.Time) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content: soundCronDetails(sc, next),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label:    "Delete",
							Style:    discordgo.DangerButton,
							CustomID: CustomID(ComponentIDSoundCronDelete, instanceID),
						},
						discordgo.Button{
							Label:    "Cancel",
							Style:    discordgo.SecondaryButton,
							CustomID: CustomID(ComponentIDSoundCronCancel, instanceID),
						},
					},
				},
			},
		},
	}
}

// Finished replaces a flow's message with content and drops its components.
func Finished(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: []discordgo.MessageComponent{},
		},
	}
}

func SoundCronAddedContent(sc repository.SoundCron, next []time.Time) string {
	return "Added soundcron\n" + soundCronDetails(sc, next)
}

func SoundCronDeletedContent(name string) string {
	return fmt.Sprintf("Deleted soundcron **%s**.", name)
}
