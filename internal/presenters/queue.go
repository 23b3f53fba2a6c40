package presenters

import (
	"fmt"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/needsmorejpeg/internal/repository"
)

const (
	EmptyQueueContent   = "No items in queue."
	NoErrorContent      = "No recent error."
	NotConnectedContent = "No current voice connection found."
	NoHistoryContent    = "Nothing has been played yet."
)

// QueueContent numbers the now-playing item 0 and the pending ones after it.
func QueueContent(descriptions []string) string {
	if len(descriptions) == 0 {
		return EmptyQueueContent
	}
	lines := make([]string, len(descriptions))
	for i, d := range descriptions {
		lines[i] = fmt.Sprintf("%d: %s", i, d)
	}
	return joinLines(lines)
}

func BuildQueueResponse(descriptions []string) *discordgo.InteractionResponse {
	return Message(QueueContent(descriptions))
}

// BuildLogResponse shows the most recent playback error, if one was recorded.
func BuildLogResponse(msg string, ok bool) *discordgo.InteractionResponse {
	if !ok {
		return Message(NoErrorContent)
	}
	const header, fence = "Most Recent Error:\n```", "```"
	if limit := MaxContentLength - len(header) - len(fence); len(msg) > limit {
		start := len(msg) - limit
		for start < len(msg) && !utf8.RuneStart(msg[start]) {
			start++
		}
		msg = msg[start:]
	}
	return Message(header + msg + fence)
}

// BuildHistoryResponse lists recently started items, newest first.
func BuildHistoryResponse(records []repository.PlayRecord) *discordgo.InteractionResponse {
	if len(records) == 0 {
		return Message(NoHistoryContent)
	}
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = fmt.Sprintf("<t:%d:R> [%s] %s", r.StartedAt.Unix(), r.Kind, r.Description)
	}
	return Message(joinLines(lines))
}
