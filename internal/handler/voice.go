package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/needsmorejpeg/internal/media"
	"github.com/glizzus/needsmorejpeg/internal/playback"
	"github.com/glizzus/needsmorejpeg/internal/presenters"
	"github.com/glizzus/needsmorejpeg/internal/process"
	"github.com/glizzus/needsmorejpeg/internal/speech"
	"github.com/glizzus/needsmorejpeg/internal/voice"
)

const (
	doneContent    = "✅"
	loopingContent = "🔄"
)

func queuedContent(description string) string {
	return "💾 Queued: " + description
}

// queueError turns playback errors into something the user can act on.
func queueError(err error) error {
	var indexErr *playback.IndexError
	var connErr *playback.ConnectionError
	switch {
	case errors.As(err, &indexErr):
		return &UserError{Message: fmt.Sprintf("There is no item %d in the queue.", indexErr.Index), Err: err}
	case errors.Is(err, playback.ErrNotConnected):
		return &UserError{Message: presenters.NotConnectedContent, Err: err}
	case errors.Is(err, playback.ErrNotPlaying):
		return &UserError{Message: "Nothing is playing.", Err: err}
	case errors.As(err, &connErr):
		return &UserError{Message: "Could not join your voice channel.", Err: err}
	case errors.Is(err, playback.ErrClosed):
		return &UserError{Message: "The bot is shutting down.", Err: err}
	default:
		return err
	}
}

// toolError reports a failed external tool the way the user sees it and
// keeps its stderr for /log.
func (b *Bot) toolError(ctx context.Context, guildID, tool string, err error) error {
	var exitErr *process.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	if lerr := b.Queues.LogError(ctx, guildID, exitErr.Stderr); lerr != nil {
		b.Logger.Warn("failed to record tool error", "guildID", guildID, "error", lerr)
	}
	return &UserError{Message: fmt.Sprintf("%s exited unsuccessfully (%d)", tool, exitErr.Code), Err: err}
}

// targetChannel is the voice channel new items go to: the user's channel,
// or the one the bot is already in.
func (b *Bot) targetChannel(ctx context.Context, i *discordgo.InteractionCreate) (string, error) {
	if err := requireGuild(i); err != nil {
		return "", err
	}
	if user := interactionUser(i); user != nil && b.Voice != nil {
		states, err := b.Voice.VoiceStates(i.GuildID)
		if err != nil {
			return "", fmt.Errorf("failed to read voice states: %w", err)
		}
		if channelID := voice.UserChannel(states, user.ID); channelID != "" {
			return channelID, nil
		}
	}
	channelID, err := b.Queues.ChannelID(ctx, i.GuildID)
	if err != nil {
		return "", queueError(err)
	}
	if channelID == "" {
		return "", userErrorf("Join a voice channel first.")
	}
	return channelID, nil
}

func (b *Bot) checkBlocked(ctx context.Context, source string) error {
	if b.Blocklist == nil {
		return nil
	}
	blocked, err := b.Blocklist.Contains(ctx, source)
	if err != nil {
		return err
	}
	if blocked {
		return userErrorf("That source is blocked on this bot.")
	}
	return nil
}

func (b *Bot) say(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	if b.Speech == nil || b.Items == nil {
		return unavailable("Speech")
	}
	opts := commandOptions(i.ApplicationCommandData())
	req := speech.Request{}
	req.Text, _ = opts.String("text")
	req.Voice, _ = opts.String("voice")
	if speed, ok := opts.Int("speed"); ok {
		if speed < MinSpeechSpeed || speed > MaxSpeechSpeed {
			return userErrorf("Speed must be between %d and %d.", MinSpeechSpeed, MaxSpeechSpeed)
		}
		req.Speed = speed
	}

	channelID, err := b.targetChannel(ctx, i)
	if err != nil {
		return err
	}
	if err := deferReply(s, i); err != nil {
		return err
	}

	audio, err := b.Speech.Synthesize(ctx, req)
	if errors.Is(err, speech.ErrEmptyText) {
		return &UserError{Message: "There is nothing to say.", Err: err}
	}
	if err != nil {
		return b.toolError(ctx, i.GuildID, "Espeak", err)
	}

	item := b.Items.Speech(displayName(i), audio)
	if err := b.Queues.EnqueueSay(ctx, i.GuildID, channelID, item); err != nil {
		return queueError(err)
	}
	return editReply(s, i, queuedContent(item.Description))
}

func (b *Bot) play(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	if b.Downloader == nil || b.Items == nil {
		return unavailable("Playing files")
	}
	data := i.ApplicationCommandData()
	opts := commandOptions(data)
	attachment, hasFile, err := opts.Attachment("file", data.Resolved)
	if err != nil {
		return err
	}
	rawURL, hasURL := opts.String("url")
	switch {
	case hasFile && hasURL:
		return userErrorf("Give either a file or a url, not both.")
	case !hasFile && !hasURL:
		return userErrorf("Attach a file or give a url.")
	}

	var source, description string
	if hasFile {
		source = attachment.URL
		description = media.UploadDescription(displayName(i), attachment.Filename)
	} else {
		if err := b.checkBlocked(ctx, rawURL); err != nil {
			return err
		}
		source = rawURL
		description = media.URLDescription(displayName(i), rawURL)
	}

	channelID, err := b.targetChannel(ctx, i)
	if err != nil {
		return err
	}
	if err := deferReply(s, i); err != nil {
		return err
	}

	key, err := b.Downloader.Fetch(ctx, source)
	var downloadErr *media.DownloadError
	if errors.As(err, &downloadErr) {
		return &UserError{Message: downloadErr.Message(), Err: err}
	}
	if err != nil {
		return err
	}

	item := b.Items.Stored(playback.KindPlay, description, key, true)
	if err := b.Queues.EnqueuePlay(ctx, i.GuildID, channelID, item); err != nil {
		return queueError(err)
	}
	return editReply(s, i, queuedContent(description))
}

func (b *Bot) yt(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	target, _ := commandOptions(i.ApplicationCommandData()).String("url")
	if err := media.ValidateTarget(target); err != nil {
		return &UserError{Message: "Invalid URL", Err: err}
	}
	if err := b.checkBlocked(ctx, target); err != nil {
		return err
	}
	return b.stream(ctx, s, i, target)
}

func (b *Bot) ytsearch(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	query, _ := commandOptions(i.ApplicationCommandData()).String("query")
	return b.stream(ctx, s, i, media.SearchTarget(query))
}

func (b *Bot) stream(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, target string) error {
	if b.Youtube == nil || b.Items == nil {
		return unavailable("Youtube playback")
	}
	channelID, err := b.targetChannel(ctx, i)
	if err != nil {
		return err
	}
	if err := deferReply(s, i); err != nil {
		return err
	}

	file, dir, err := b.Youtube.Download(ctx, target)
	if errors.Is(err, media.ErrInvalidTarget) {
		return &UserError{Message: "Invalid URL", Err: err}
	}
	if err != nil {
		return b.toolError(ctx, i.GuildID, "Youtube-dl", err)
	}

	description := media.YoutubeDescription(displayName(i), target)
	item := b.Items.File(playback.KindStream, description, file, dir)
	if err := b.Queues.EnqueueStream(ctx, i.GuildID, channelID, item); err != nil {
		return queueError(err)
	}
	return editReply(s, i, queuedContent(description))
}

func (b *Bot) skip(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	if err := requireGuild(i); err != nil {
		return err
	}
	if err := b.Queues.Skip(ctx, i.GuildID); err != nil {
		return queueError(err)
	}
	return respond(s, i, doneContent)
}

func (b *Bot) move(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	if err := requireGuild(i); err != nil {
		return err
	}
	opts := commandOptions(i.ApplicationCommandData())
	from, okFrom := opts.Int("from")
	to, okTo := opts.Int("to")
	if !okFrom || !okTo {
		return userErrorf("Give the positions to move from and to.")
	}
	if err := b.Queues.Move(ctx, i.GuildID, from, to); err != nil {
		return queueError(err)
	}
	return respond(s, i, doneContent)
}

func (b *Bot) remove(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	if err := requireGuild(i); err != nil {
		return err
	}
	index, ok := commandOptions(i.ApplicationCommandData()).Int("index")
	if !ok {
		return userErrorf("Give the position to remove.")
	}
	if err := b.Queues.Remove(ctx, i.GuildID, index); err != nil {
		return queueError(err)
	}
	return respond(s, i, doneContent)
}

func (b *Bot) loop(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	if err := requireGuild(i); err != nil {
		return err
	}
	var value *bool
	if enabled, ok := commandOptions(i.ApplicationCommandData()).Bool("enabled"); ok {
		value = &enabled
	}
	looping, err := b.Queues.SetLoop(ctx, i.GuildID, value)
	if err != nil {
		return queueError(err)
	}
	if looping {
		return respond(s, i, loopingContent)
	}
	return respond(s, i, doneContent)
}

func (b *Bot) queue(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	if err := requireGuild(i); err != nil {
		return err
	}
	descriptions, err := b.Queues.ListQueue(ctx, i.GuildID)
	if err != nil {
		return queueError(err)
	}
	return s.InteractionRespond(i.Interaction, presenters.BuildQueueResponse(descriptions))
}

func (b *Bot) leave(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	if err := requireGuild(i); err != nil {
		return err
	}
	if err := b.Queues.Leave(ctx, i.GuildID); err != nil {
		return queueError(err)
	}
	return respond(s, i, doneContent)
}

func (b *Bot) log(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	if err := requireGuild(i); err != nil {
		return err
	}
	msg, ok, err := b.Queues.LastError(ctx, i.GuildID)
	if err != nil {
		return queueError(err)
	}
	return s.InteractionRespond(i.Interaction, presenters.BuildLogResponse(msg, ok))
}

func (b *Bot) history(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	if err := requireGuild(i); err != nil {
		return err
	}
	if b.History == nil {
		return unavailable("Play history")
	}
	count, ok := commandOptions(i.ApplicationCommandData()).Int("count")
	if !ok || count < 1 || count > maxHistoryCount {
		count = defaultHistoryCount
	}
	records, err := b.History.Recent(ctx, i.GuildID, count)
	if err != nil {
		return fmt.Errorf("failed to read play history: %w", err)
	}
	return s.InteractionRespond(i.Interaction, presenters.BuildHistoryResponse(records))
}
