// Package presenters renders command results as Discord interaction
// responses.
package presenters

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// MaxContentLength is the longest message body Discord accepts.
const MaxContentLength = 2000

// Message is a plain reply in the channel the command was used in.
func Message(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	}
}

// Deferred acknowledges a command whose reply is edited in later.
var Deferred = &discordgo.InteractionResponse{
	Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
}

// Edit fills in a deferred reply.
func Edit(content string) *discordgo.WebhookEdit {
	return &discordgo.WebhookEdit{Content: &content}
}

// joinLines joins lines until the next one would overflow a message, then
// notes how many were left out.
func joinLines(lines []string) string {
	var b strings.Builder
	for i, line := range lines {
		more := fmt.Sprintf("...and %d more", len(lines)-i)
		if b.Len()+len(line)+1 > MaxContentLength-len(more)-1 {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(more)
			break
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}
