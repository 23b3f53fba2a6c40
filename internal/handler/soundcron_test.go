package handler_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/needsmorejpeg/internal/handler"
	"github.com/glizzus/needsmorejpeg/internal/repository"
	"github.com/glizzus/needsmorejpeg/internal/soundcron"
	"github.com/google/go-cmp/cmp"
)

func TestCommandToAddRequest(t *testing.T) {
	attachments := map[string]*discordgo.MessageAttachment{
		"900": {ID: "900", Filename: "horn.mp3", URL: "https://cdn.example.com/horn.mp3"},
	}
	resolved := &discordgo.ApplicationCommandInteractionDataResolved{Attachments: attachments}

	tc := []struct {
		name     string
		resolved *discordgo.ApplicationCommandInteractionDataResolved
		options  []*discordgo.ApplicationCommandInteractionDataOption
		expected *handler.SoundCronAddRequest
		err      string
	}{
		{
			name:     "attachment and channel",
			resolved: resolved,
			options: []*discordgo.ApplicationCommandInteractionDataOption{
				stringOpt("name", "airhorn"),
				stringOpt("cron", "0 12 * * *"),
				attachmentOpt("audio", "900"),
				channelOpt("channel", "voice-9"),
			},
			expected: &handler.SoundCronAddRequest{
				Name:      "airhorn",
				Cron:      "0 12 * * *",
				ChannelID: "voice-9",
				SourceURL: "https://cdn.example.com/horn.mp3",
			},
		},
		{
			name: "link",
			options: []*discordgo.ApplicationCommandInteractionDataOption{
				stringOpt("name", "bell"),
				stringOpt("cron", "*/30 * * * *"),
				stringOpt("url", "https://example.com/bell.ogg"),
			},
			expected: &handler.SoundCronAddRequest{
				Name:      "bell",
				Cron:      "*/30 * * * *",
				SourceURL: "https://example.com/bell.ogg",
			},
		},
		{
			name: "invalid cron",
			options: []*discordgo.ApplicationCommandInteractionDataOption{
				stringOpt("name", "bell"),
				stringOpt("cron", "every day"),
				stringOpt("url", "https://example.com/bell.ogg"),
			},
			err: "`every day` is not a valid cron expression.",
		},
		{
			name: "no source",
			options: []*discordgo.ApplicationCommandInteractionDataOption{
				stringOpt("name", "bell"),
				stringOpt("cron", "* * * * *"),
			},
			err: "Attach a file or give a url.",
		},
		{
			name: "attachment missing from resolved data",
			resolved: &discordgo.ApplicationCommandInteractionDataResolved{
				Attachments: map[string]*discordgo.MessageAttachment{},
			},
			options: []*discordgo.ApplicationCommandInteractionDataOption{
				stringOpt("name", "bell"),
				stringOpt("cron", "* * * * *"),
				attachmentOpt("audio", "900"),
			},
			err: "Attach exactly one file.",
		},
	}

	for _, testCase := range tc {
		t.Run(testCase.name, func(t *testing.T) {
			result, err := handler.CommandToAddRequest(testCase.resolved, testCase.options)
			if testCase.err != "" {
				var userErr *handler.UserError
				if !errors.As(err, &userErr) {
					t.Fatalf("expected a user error, got %v", err)
				}
				if userErr.Message != testCase.err {
					t.Errorf("expected message %q, got %q", testCase.err, userErr.Message)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(testCase.expected, result); diff != "" {
				t.Errorf("request mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSoundCronAdd(t *testing.T) {
	tb := newTestBot(t)
	s := tb.run(subCommand("soundcron", "add",
		stringOpt("name", "airhorn"),
		stringOpt("cron", "0 12 * * *"),
		stringOpt("url", "https://example.com/horn.mp3"),
	))

	want := []soundcron.AddRequest{{
		GuildID:   testGuild,
		Name:      "airhorn",
		Cron:      "0 12 * * *",
		SourceURL: "https://example.com/horn.mp3",
	}}
	if diff := cmp.Diff(want, tb.soundCrons.added); diff != "" {
		t.Errorf("added mismatch (-want +got):\n%s", diff)
	}
	if got := s.reply(t); !strings.HasPrefix(got, "Added soundcron\n**airhorn**\nCron: `0 12 * * *`") {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestSoundCronAddErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantReply string
	}{
		{
			name:      "duplicate",
			err:       repository.ErrAlreadyExists,
			wantReply: "A soundcron with that name already exists.",
		},
		{
			name:      "bad name",
			err:       soundcron.ErrInvalidName,
			wantReply: "Soundcron names are 1 to 32 letters, digits, dashes or underscores.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot(t)
			tb.soundCrons.err = tt.err

			s := tb.run(subCommand("soundcron", "add",
				stringOpt("name", "air horn"),
				stringOpt("cron", "0 12 * * *"),
				stringOpt("url", "https://example.com/horn.mp3"),
			))
			if got := s.reply(t); got != tt.wantReply {
				t.Errorf("unexpected reply %q", got)
			}
		})
	}
}

func TestSoundCronDelete(t *testing.T) {
	tb := newTestBot(t)
	tb.soundCrons.soundCron["airhorn"] = repository.SoundCron{Name: "airhorn", GuildID: testGuild}

	s := tb.run(subCommand("soundcron", "delete", stringOpt("name", "airhorn")))
	if got := s.reply(t); got != "Deleted soundcron **airhorn**." {
		t.Errorf("unexpected reply %q", got)
	}

	s = tb.run(subCommand("soundcron", "delete", stringOpt("name", "airhorn")))
	if got := s.reply(t); got != "That soundcron does not exist." {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestSoundCronListFlow(t *testing.T) {
	tb := newTestBot(t)
	tb.soundCrons.soundCron["airhorn"] = repository.SoundCron{Name: "airhorn", GuildID: testGuild, Cron: "0 12 * * *"}
	tb.soundCrons.soundCron["bell"] = repository.SoundCron{Name: "bell", GuildID: testGuild, Cron: "*/30 * * * *"}

	s := tb.run(subCommand("soundcron", "list"))
	list := s.Responses[0]
	row := list.Data.Components[0].(discordgo.ActionsRow)
	menu := row.Components[0].(discordgo.SelectMenu)
	if menu.CustomID != "soundcron_select_menu:flow-1" {
		t.Fatalf("unexpected menu id %q", menu.CustomID)
	}
	if len(menu.Options) != 2 {
		t.Fatalf("expected two options, got %d", len(menu.Options))
	}

	s = tb.run(component(menu.CustomID, "bell"))
	details := s.Responses[0]
	if details.Type != discordgo.InteractionResponseUpdateMessage {
		t.Errorf("expected the menu to be replaced, got response type %v", details.Type)
	}
	buttons := details.Data.Components[0].(discordgo.ActionsRow).Components
	deleteButton := buttons[0].(discordgo.Button)

	s = tb.run(component(deleteButton.CustomID))
	if got := s.reply(t); got != "Deleted soundcron **bell**." {
		t.Errorf("unexpected reply %q", got)
	}
	if diff := cmp.Diff([]string{"bell"}, tb.soundCrons.deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}

	s = tb.run(component(deleteButton.CustomID))
	if got := s.reply(t); got != "This menu has expired. Run the command again." {
		t.Errorf("a finished flow should not run again, got %q", got)
	}
}

func TestSoundCronListFlowCancel(t *testing.T) {
	tb := newTestBot(t)
	tb.soundCrons.soundCron["airhorn"] = repository.SoundCron{Name: "airhorn", GuildID: testGuild, Cron: "0 12 * * *"}

	tb.run(subCommand("soundcron", "list"))
	tb.run(component("soundcron_select_menu:flow-1", "airhorn"))
	s := tb.run(component("soundcron_cancel:flow-1"))

	if got := s.reply(t); got != "Nothing changed." {
		t.Errorf("unexpected reply %q", got)
	}
	if len(tb.soundCrons.deleted) != 0 {
		t.Errorf("nothing should be deleted, got %v", tb.soundCrons.deleted)
	}
}

func TestSoundCronListEmpty(t *testing.T) {
	tb := newTestBot(t)
	s := tb.run(subCommand("soundcron", "list"))

	if got := s.reply(t); got != "No soundcrons found" {
		t.Errorf("unexpected reply %q", got)
	}
}
