package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

type stubChannels struct {
	mu      sync.Mutex
	channel string
	leaves  int
}

func (s *stubChannels) ChannelID(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel, nil
}

func (s *stubChannels) Leave(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves++
	s.channel = ""
	return nil
}

type stubStates struct {
	states []*discordgo.VoiceState
	bots   map[string]bool
}

func (s *stubStates) VoiceStates(string) ([]*discordgo.VoiceState, error) {
	return s.states, nil
}

func (s *stubStates) IsBot(_, userID string) bool {
	return s.bots[userID]
}

func leftChannel(userID, from, to string) *discordgo.VoiceStateUpdate {
	return &discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{GuildID: "guild", UserID: userID, ChannelID: to},
		BeforeUpdate: &discordgo.VoiceState{GuildID: "guild", UserID: userID, ChannelID: from},
	}
}

func TestAutoLeave(t *testing.T) {
	tests := []struct {
		name       string
		botIn      string
		update     *discordgo.VoiceStateUpdate
		remaining  []*discordgo.VoiceState
		wantCheck  bool
		wantLeaves int
	}{
		{
			name:   "last person leaves",
			botIn:  "voice",
			update: leftChannel("ann", "voice", ""),
			remaining: []*discordgo.VoiceState{
				{UserID: "bot", ChannelID: "voice"},
				{UserID: "music-bot", ChannelID: "voice"},
			},
			wantCheck:  true,
			wantLeaves: 1,
		},
		{
			name:   "someone stays",
			botIn:  "voice",
			update: leftChannel("ann", "voice", "afk"),
			remaining: []*discordgo.VoiceState{
				{UserID: "bot", ChannelID: "voice"},
				{UserID: "bob", ChannelID: "voice"},
			},
			wantCheck: true,
		},
		{
			name:      "user rejoins within the grace period",
			botIn:     "voice",
			update:    leftChannel("ann", "voice", ""),
			remaining: []*discordgo.VoiceState{{UserID: "ann", ChannelID: "voice"}},
			wantCheck: true,
		},
		{
			name:   "another channel",
			botIn:  "voice",
			update: leftChannel("ann", "other", ""),
		},
		{
			name:   "joining is not leaving",
			botIn:  "voice",
			update: leftChannel("ann", "", "voice"),
		},
		{
			name:   "mute toggles keep the channel",
			botIn:  "voice",
			update: leftChannel("ann", "voice", "voice"),
		},
		{
			name:   "bot not connected",
			update: leftChannel("ann", "voice", ""),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channels := &stubChannels{channel: tt.botIn}
			states := &stubStates{
				states: tt.remaining,
				bots:   map[string]bool{"bot": true, "music-bot": true},
			}
			a := NewAutoLeave(channels, states, 3*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

			var scheduled []func()
			a.afterFunc = func(d time.Duration, f func()) {
				if d != 3*time.Second {
					t.Errorf("expected a 3s grace period, got %v", d)
				}
				scheduled = append(scheduled, f)
			}

			a.Check(tt.update)
			if got := len(scheduled) == 1; got != tt.wantCheck {
				t.Fatalf("expected check scheduled=%v, got %d checks", tt.wantCheck, len(scheduled))
			}
			for _, f := range scheduled {
				f()
			}
			if channels.leaves != tt.wantLeaves {
				t.Errorf("expected %d leaves, got %d", tt.wantLeaves, channels.leaves)
			}
		})
	}
}

func TestAutoLeaveSkipsWhenBotMoved(t *testing.T) {
	channels := &stubChannels{channel: "voice"}
	a := NewAutoLeave(channels, &stubStates{}, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var scheduled func()
	a.afterFunc = func(_ time.Duration, f func()) { scheduled = f }

	a.Check(leftChannel("ann", "voice", ""))
	channels.channel = "elsewhere"
	scheduled()

	if channels.leaves != 0 {
		t.Error("the bot should not leave a channel it already moved out of")
	}
}
