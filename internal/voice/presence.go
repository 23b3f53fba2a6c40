package voice

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// Presence answers who is in which voice channel from the session state cache.
type Presence struct {
	state *discordgo.State
}

func NewPresence(state *discordgo.State) *Presence {
	return &Presence{state: state}
}

// VoiceStates returns a copy of the guild's cached voice states.
func (p *Presence) VoiceStates(guildID string) ([]*discordgo.VoiceState, error) {
	guild, err := p.state.Guild(guildID)
	if err != nil {
		return nil, err
	}
	p.state.RLock()
	defer p.state.RUnlock()
	return slices.Clone(guild.VoiceStates), nil
}

// IsBot reports whether userID belongs to a bot account. Unknown members are
// treated as people.
func (p *Presence) IsBot(guildID, userID string) bool {
	member, err := p.state.Member(guildID, userID)
	if err != nil || member.User == nil {
		return false
	}
	return member.User.Bot
}

// UserChannel returns the voice channel userID is in, or "".
func UserChannel(states []*discordgo.VoiceState, userID string) string {
	for _, vs := range states {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

// MaxAttendedChannel returns the voice channel with the most people in it,
// ignoring bots, or "" if nobody is in voice. Ties go to the lowest channel ID.
func MaxAttendedChannel(states []*discordgo.VoiceState, isBot func(userID string) bool) string {
	counts := make(map[string]int)
	for _, vs := range states {
		if vs.ChannelID == "" || isBot(vs.UserID) {
			continue
		}
		counts[vs.ChannelID]++
	}

	best, bestCount := "", 0
	for channelID, count := range counts {
		if count > bestCount || (count == bestCount && channelID < best) {
			best, bestCount = channelID, count
		}
	}
	return best
}

// OnlyBots reports whether every user left in channelID is a bot. An empty
// channel counts as only bots.
func OnlyBots(states []*discordgo.VoiceState, channelID string, isBot func(userID string) bool) bool {
	for _, vs := range states {
		if vs.ChannelID == channelID && !isBot(vs.UserID) {
			return false
		}
	}
	return true
}
