package handler_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/needsmorejpeg/internal/media"
	"github.com/glizzus/needsmorejpeg/internal/playback"
	"github.com/glizzus/needsmorejpeg/internal/process"
	"github.com/glizzus/needsmorejpeg/internal/repository"
	"github.com/glizzus/needsmorejpeg/internal/speech"
	"github.com/google/go-cmp/cmp"
)

func TestSay(t *testing.T) {
	tb := newTestBot(t)
	s := tb.run(command("say", stringOpt("text", "hello there"), intOpt("speed", speech.SpeedSlow), stringOpt("voice", "en-us")))

	if len(s.Responses) != 1 || s.Responses[0].Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Fatalf("expected a deferred reply, got %+v", s.Responses)
	}
	if got := s.reply(t); got != "💾 Queued: Say message from ann" {
		t.Errorf("unexpected reply %q", got)
	}

	wantReq := []speech.Request{{Text: "hello there", Voice: "en-us", Speed: speech.SpeedSlow}}
	if diff := cmp.Diff(wantReq, tb.speech.got); diff != "" {
		t.Errorf("speech request mismatch (-want +got):\n%s", diff)
	}
	want := []enqueued{{playback.KindSay, testGuild, testVoice, "Say message from ann"}}
	if diff := cmp.Diff(want, tb.queues.enqueued); diff != "" {
		t.Errorf("enqueued mismatch (-want +got):\n%s", diff)
	}
}

func TestSayEspeakFailure(t *testing.T) {
	tb := newTestBot(t)
	tb.speech.err = &process.ExitError{Name: "espeak", Code: 1, Stderr: "Failed to read voice 'xx'"}

	s := tb.run(command("say", stringOpt("text", "hi"), stringOpt("voice", "xx")))

	if got := s.reply(t); got != "Espeak exited unsuccessfully (1)" {
		t.Errorf("unexpected reply %q", got)
	}
	if diff := cmp.Diff([]string{"Failed to read voice 'xx'"}, tb.queues.logged); diff != "" {
		t.Errorf("logged errors mismatch (-want +got):\n%s", diff)
	}
	if len(tb.queues.enqueued) != 0 {
		t.Errorf("nothing should be enqueued, got %v", tb.queues.enqueued)
	}
}

func TestSaySpeedOutOfRange(t *testing.T) {
	tb := newTestBot(t)
	s := tb.run(command("say", stringOpt("text", "hi"), intOpt("speed", 9000)))

	if got := s.reply(t); got != "Speed must be between 80 and 450." {
		t.Errorf("unexpected reply %q", got)
	}
	if len(tb.speech.got) != 0 {
		t.Error("speech should not be synthesized")
	}
}

func TestTargetChannel(t *testing.T) {
	tests := []struct {
		name        string
		states      []*discordgo.VoiceState
		connectedTo string
		wantChannel string
		wantReply   string
	}{
		{
			name:        "user in voice",
			states:      []*discordgo.VoiceState{{UserID: testUser, ChannelID: "voice-2"}},
			connectedTo: testVoice,
			wantChannel: "voice-2",
			wantReply:   "💾 Queued: Say message from ann",
		},
		{
			name:        "user not in voice but bot connected",
			connectedTo: testVoice,
			wantChannel: testVoice,
			wantReply:   "💾 Queued: Say message from ann",
		},
		{
			name:      "nobody in voice",
			wantReply: "Join a voice channel first.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot(t)
			tb.voice.states = tt.states
			if tt.connectedTo != "" {
				tb.queues.channels[testGuild] = tt.connectedTo
			}

			s := tb.run(command("say", stringOpt("text", "hi")))
			if got := s.reply(t); got != tt.wantReply {
				t.Errorf("unexpected reply %q", got)
			}
			if tt.wantChannel == "" {
				if len(tb.queues.enqueued) != 0 {
					t.Errorf("nothing should be enqueued, got %v", tb.queues.enqueued)
				}
				return
			}
			if len(tb.queues.enqueued) != 1 || tb.queues.enqueued[0].ChannelID != tt.wantChannel {
				t.Errorf("expected one item for %s, got %v", tt.wantChannel, tb.queues.enqueued)
			}
		})
	}
}

func TestPlay(t *testing.T) {
	const link = "https://example.com/horn.mp3"
	attachments := map[string]*discordgo.MessageAttachment{
		"900": {ID: "900", Filename: "horn.mp3", URL: "https://cdn.discordapp.com/attachments/1/900/horn.mp3"},
	}

	tests := []struct {
		name        string
		interaction func() *discordgo.InteractionCreate
		blocked     string
		fetchErr    error
		wantReply   string
		wantFetch   []string
		wantQueued  []enqueued
	}{
		{
			name: "link",
			interaction: func() *discordgo.InteractionCreate {
				return command("play", stringOpt("url", link))
			},
			wantReply:  "💾 Queued: A file chosen by ann (https://example.com/horn.mp3)",
			wantFetch:  []string{link},
			wantQueued: []enqueued{{playback.KindPlay, testGuild, testVoice, "A file chosen by ann (https://example.com/horn.mp3)"}},
		},
		{
			name: "attachment",
			interaction: func() *discordgo.InteractionCreate {
				return withResolved(command("play", attachmentOpt("file", "900")), attachments)
			},
			wantReply:  "💾 Queued: A file uploaded by ann (horn.mp3)",
			wantFetch:  []string{"https://cdn.discordapp.com/attachments/1/900/horn.mp3"},
			wantQueued: []enqueued{{playback.KindPlay, testGuild, testVoice, "A file uploaded by ann (horn.mp3)"}},
		},
		{
			name: "blocked link",
			interaction: func() *discordgo.InteractionCreate {
				return command("play", stringOpt("url", "http://www.example.com/horn.mp3/"))
			},
			blocked:   link,
			wantReply: "That source is blocked on this bot.",
		},
		{
			name: "failed download",
			interaction: func() *discordgo.InteractionCreate {
				return command("play", stringOpt("url", link))
			},
			fetchErr:  &media.DownloadError{URL: link, Status: 404, Err: errors.New("unexpected status 404 Not Found")},
			wantReply: "Could not download file. (code 404)",
			wantFetch: []string{link},
		},
		{
			name: "no source",
			interaction: func() *discordgo.InteractionCreate {
				return command("play")
			},
			wantReply: "Attach a file or give a url.",
		},
		{
			name: "both sources",
			interaction: func() *discordgo.InteractionCreate {
				return withResolved(command("play", attachmentOpt("file", "900"), stringOpt("url", link)), attachments)
			},
			wantReply: "Give either a file or a url, not both.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot(t)
			if tt.blocked != "" {
				if err := tb.blocklist.Add(t.Context(), tt.blocked); err != nil {
					t.Fatalf("failed to block: %v", err)
				}
			}
			tb.fetcher.err = tt.fetchErr

			s := tb.run(tt.interaction())
			if got := s.reply(t); got != tt.wantReply {
				t.Errorf("unexpected reply %q", got)
			}
			if diff := cmp.Diff(tt.wantFetch, tb.fetcher.urls); diff != "" {
				t.Errorf("fetched urls mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantQueued, tb.queues.enqueued); diff != "" {
				t.Errorf("enqueued mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestYoutube(t *testing.T) {
	tests := []struct {
		name        string
		interaction *discordgo.InteractionCreate
		downloadErr error
		wantReply   string
		wantTargets []string
		wantLogged  []string
	}{
		{
			name:        "video link",
			interaction: command("yt", stringOpt("url", "https://youtu.be/dQw4w9WgXcQ")),
			wantReply:   "💾 Queued: A youtube video chosen by ann (https://youtu.be/dQw4w9WgXcQ)",
			wantTargets: []string{"https://youtu.be/dQw4w9WgXcQ"},
		},
		{
			name:        "search",
			interaction: command("ytsearch", stringOpt("query", "lofi beats")),
			wantReply:   "💾 Queued: A youtube video chosen by ann (ytsearch: lofi beats)",
			wantTargets: []string{"ytsearch: lofi beats"},
		},
		{
			name:        "flag instead of url",
			interaction: command("yt", stringOpt("url", "--exec=rm")),
			wantReply:   "Invalid URL",
		},
		{
			name:        "not a link",
			interaction: command("yt", stringOpt("url", "youtu.be/x")),
			wantReply:   "Invalid URL",
		},
		{
			name:        "youtube-dl fails",
			interaction: command("yt", stringOpt("url", "https://youtu.be/gone")),
			downloadErr: &process.ExitError{Name: "youtube-dl", Code: 1, Stderr: "ERROR: Video unavailable"},
			wantReply:   "Youtube-dl exited unsuccessfully (1)",
			wantTargets: []string{"https://youtu.be/gone"},
			wantLogged:  []string{"ERROR: Video unavailable"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot(t)
			tb.youtube.err = tt.downloadErr

			s := tb.run(tt.interaction)
			if got := s.reply(t); got != tt.wantReply {
				t.Errorf("unexpected reply %q", got)
			}
			if diff := cmp.Diff(tt.wantTargets, tb.youtube.targets); diff != "" {
				t.Errorf("targets mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantLogged, tb.queues.logged); diff != "" {
				t.Errorf("logged errors mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQueueControl(t *testing.T) {
	tests := []struct {
		name        string
		interaction *discordgo.InteractionCreate
		queueErr    error
		wantReply   string
		check       func(t *testing.T, q *fakeQueues)
	}{
		{
			name:        "skip",
			interaction: command("skip"),
			wantReply:   "✅",
			check: func(t *testing.T, q *fakeQueues) {
				if q.skips != 1 {
					t.Errorf("expected one skip, got %d", q.skips)
				}
			},
		},
		{
			name:        "skip while idle",
			interaction: command("skip"),
			queueErr:    playback.ErrNotPlaying,
			wantReply:   "Nothing is playing.",
		},
		{
			name:        "move",
			interaction: command("move", intOpt("from", 3), intOpt("to", -1)),
			wantReply:   "✅",
			check: func(t *testing.T, q *fakeQueues) {
				if diff := cmp.Diff([][2]int{{3, -1}}, q.moves); diff != "" {
					t.Errorf("moves mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name:        "move out of range",
			interaction: command("move", intOpt("from", 7), intOpt("to", 0)),
			queueErr:    fmt.Errorf("wrapped: %w", &playback.IndexError{Index: 7, Len: 2}),
			wantReply:   "There is no item 7 in the queue.",
		},
		{
			name:        "remove",
			interaction: command("remove", intOpt("index", 0)),
			wantReply:   "✅",
			check: func(t *testing.T, q *fakeQueues) {
				if diff := cmp.Diff([]int{0}, q.removed); diff != "" {
					t.Errorf("removed mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name:        "loop toggles on",
			interaction: command("loop"),
			wantReply:   "🔄",
		},
		{
			name:        "loop set off",
			interaction: command("loop", boolOpt("enabled", false)),
			wantReply:   "✅",
		},
		{
			name:        "leave",
			interaction: command("leave"),
			wantReply:   "✅",
		},
		{
			name:        "leave while idle",
			interaction: command("leave"),
			queueErr:    playback.ErrNotConnected,
			wantReply:   "No current voice connection found.",
		},
		{
			name:        "empty queue",
			interaction: command("queue"),
			wantReply:   "No items in queue.",
		},
		{
			name:        "no recent error",
			interaction: command("log"),
			wantReply:   "No recent error.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot(t)
			tb.queues.err = tt.queueErr

			s := tb.run(tt.interaction)
			if got := s.reply(t); got != tt.wantReply {
				t.Errorf("unexpected reply %q", got)
			}
			if tt.check != nil {
				tt.check(t, tb.queues)
			}
		})
	}
}

func TestQueueAndLogContent(t *testing.T) {
	tb := newTestBot(t)
	tb.queues.list = []string{"Say message from ann", "A file uploaded by bob (horn.mp3)"}
	tb.queues.lastErr = "ERROR: Unsupported URL"

	if got := tb.run(command("queue")).reply(t); got != "0: Say message from ann\n1: A file uploaded by bob (horn.mp3)" {
		t.Errorf("unexpected queue reply %q", got)
	}
	if got := tb.run(command("log")).reply(t); got != "Most Recent Error:\n```ERROR: Unsupported URL```" {
		t.Errorf("unexpected log reply %q", got)
	}
	if got := tb.run(command("log")).reply(t); got != "No recent error." {
		t.Errorf("the error should be gone after reading it, got %q", got)
	}
}

func TestHistory(t *testing.T) {
	tb := newTestBot(t)
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tb.history.records = []repository.PlayRecord{
		{Kind: "say", Description: "Say message from ann", StartedAt: started},
		{Kind: "play", Description: "A file uploaded by bob (horn.mp3)", StartedAt: started.Add(-time.Minute)},
	}

	got := tb.run(command("history", intOpt("count", 1))).reply(t)
	if got != "<t:1740830400:R> [say] Say message from ann" {
		t.Errorf("unexpected history reply %q", got)
	}
}

func TestEnqueueFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantReply string
	}{
		{
			name:      "cannot join",
			err:       &playback.ConnectionError{GuildID: testGuild, ChannelID: testVoice, Err: context.DeadlineExceeded},
			wantReply: "Could not join your voice channel.",
		},
		{
			name:      "shutting down",
			err:       playback.ErrClosed,
			wantReply: "The bot is shutting down.",
		},
		{
			name:      "unexpected",
			err:       errors.New("boom"),
			wantReply: "Something went wrong.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot(t)
			tb.queues.err = tt.err

			s := tb.run(command("say", stringOpt("text", "hi")))
			if got := s.reply(t); got != tt.wantReply {
				t.Errorf("unexpected reply %q", got)
			}
		})
	}
}
