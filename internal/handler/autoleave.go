package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/needsmorejpeg/internal/playback"
	"github.com/glizzus/needsmorejpeg/internal/voice"
)

const autoLeaveTimeout = 10 * time.Second

// Channels is what auto-leave needs from the playback registry.
type Channels interface {
	ChannelID(ctx context.Context, guildID string) (string, error)
	Leave(ctx context.Context, guildID string) error
}

// AutoLeave disconnects from a voice channel once only bots are left in it.
// A user who drops out and rejoins within the grace period keeps the bot.
type AutoLeave struct {
	channels Channels
	voice    VoiceStates
	grace    time.Duration
	log      *slog.Logger

	// afterFunc is time.AfterFunc outside of tests.
	afterFunc func(time.Duration, func())
}

func NewAutoLeave(channels Channels, states VoiceStates, grace time.Duration, logger *slog.Logger) *AutoLeave {
	return &AutoLeave{
		channels: channels,
		voice:    states,
		grace:    grace,
		log:      logger,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Handle is registered as the session's voice state update handler.
func (a *AutoLeave) Handle(_ *discordgo.Session, u *discordgo.VoiceStateUpdate) {
	a.Check(u)
}

// Check schedules a leave check when someone left the channel the bot is in.
func (a *AutoLeave) Check(u *discordgo.VoiceStateUpdate) {
	before := u.BeforeUpdate
	if before == nil || before.ChannelID == "" || before.ChannelID == u.ChannelID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), autoLeaveTimeout)
	defer cancel()
	channelID, err := a.channels.ChannelID(ctx, u.GuildID)
	if err != nil {
		a.log.Warn("failed to look up voice channel", "guildID", u.GuildID, "error", err)
		return
	}
	if channelID != before.ChannelID {
		return
	}

	a.afterFunc(a.grace, func() {
		a.leaveIfAlone(u.GuildID, channelID)
	})
}

func (a *AutoLeave) leaveIfAlone(guildID, channelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), autoLeaveTimeout)
	defer cancel()
	logger := a.log.With("guildID", guildID, "channelID", channelID)

	current, err := a.channels.ChannelID(ctx, guildID)
	if err != nil || current != channelID {
		return
	}
	states, err := a.voice.VoiceStates(guildID)
	if err != nil {
		logger.Warn("failed to read voice states", "error", err)
		return
	}
	isBot := func(userID string) bool {
		return a.voice.IsBot(guildID, userID)
	}
	if !voice.OnlyBots(states, channelID, isBot) {
		return
	}

	err = a.channels.Leave(ctx, guildID)
	if err != nil && !errors.Is(err, playback.ErrNotConnected) {
		logger.Warn("failed to leave empty voice channel", "error", err)
		return
	}
	logger.Info("left voice channel with only bots in it")
}
