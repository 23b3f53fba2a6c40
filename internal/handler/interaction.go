package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/needsmorejpeg/internal/blocklist"
	"github.com/glizzus/needsmorejpeg/internal/generator"
	"github.com/glizzus/needsmorejpeg/internal/media"
	"github.com/glizzus/needsmorejpeg/internal/playback"
	"github.com/glizzus/needsmorejpeg/internal/presenters"
	"github.com/glizzus/needsmorejpeg/internal/repository"
	"github.com/glizzus/needsmorejpeg/internal/soundcron"
	"github.com/glizzus/needsmorejpeg/internal/speech"
)

// commandTimeout bounds the work done for one interaction, downloads
// included.
const commandTimeout = 5 * time.Minute

// Queues is the part of the playback registry commands drive.
type Queues interface {
	EnqueueSay(ctx context.Context, guildID, channelID string, item *playback.Item) error
	EnqueuePlay(ctx context.Context, guildID, channelID string, item *playback.Item) error
	EnqueueStream(ctx context.Context, guildID, channelID string, item *playback.Item) error
	Skip(ctx context.Context, guildID string) error
	Move(ctx context.Context, guildID string, from, to int) error
	Remove(ctx context.Context, guildID string, index int) error
	SetLoop(ctx context.Context, guildID string, value *bool) (bool, error)
	ListQueue(ctx context.Context, guildID string) ([]string, error)
	ChannelID(ctx context.Context, guildID string) (string, error)
	Leave(ctx context.Context, guildID string) error
	LastError(ctx context.Context, guildID string) (string, bool, error)
	LogError(ctx context.Context, guildID, msg string) error
}

var _ Queues = (*playback.Registry)(nil)

// VoiceStates tells who is in which voice channel. *voice.Presence
// implements it.
type VoiceStates interface {
	VoiceStates(guildID string) ([]*discordgo.VoiceState, error)
	IsBot(guildID, userID string) bool
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

type YoutubeDownloader interface {
	Download(ctx context.Context, target string) (file, dir string, err error)
}

type SoundCrons interface {
	Add(ctx context.Context, req soundcron.AddRequest) (repository.SoundCron, error)
	List(ctx context.Context, guildID string) ([]repository.SoundCron, error)
	Delete(ctx context.Context, guildID, name string) error
}

type History interface {
	Recent(ctx context.Context, guildID string, limit int) ([]repository.PlayRecord, error)
}

// CommandObserver counts handled commands. *metrics.Metrics implements it.
type CommandObserver interface {
	CommandHandled(command, outcome string)
}

type nopCommandObserver struct{}

func (nopCommandObserver) CommandHandled(string, string) {}

// Deps are the services commands use. Commands whose service is nil answer
// that the feature is unavailable.
type Deps struct {
	Queues     Queues
	Voice      VoiceStates
	Speech     speech.Engine
	Items      *media.Items
	Downloader Fetcher
	Youtube    YoutubeDownloader
	Blocklist  blocklist.Blocklist
	SoundCrons SoundCrons
	History    History
	Metrics    CommandObserver
	// IDs names flow instances.
	IDs    generator.Generator[string]
	Logger *slog.Logger
}

// Bot answers interactions.
type Bot struct {
	Deps
	flows *FlowManager
}

func NewBot(deps Deps) *Bot {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopCommandObserver{}
	}
	b := &Bot{Deps: deps, flows: NewFlowManager(deps.IDs)}

	b.flows.RegisterFlow(CommandFlow("ping", b.ping))
	b.flows.RegisterFlow(CommandFlow("say", b.say))
	b.flows.RegisterFlow(CommandFlow("play", b.play))
	b.flows.RegisterFlow(CommandFlow("yt", b.yt))
	b.flows.RegisterFlow(CommandFlow("ytsearch", b.ytsearch))
	b.flows.RegisterFlow(CommandFlow("skip", b.skip))
	b.flows.RegisterFlow(CommandFlow("move", b.move))
	b.flows.RegisterFlow(CommandFlow("remove", b.remove))
	b.flows.RegisterFlow(CommandFlow("loop", b.loop))
	b.flows.RegisterFlow(CommandFlow("queue", b.queue))
	b.flows.RegisterFlow(CommandFlow("leave", b.leave))
	b.flows.RegisterFlow(CommandFlow("log", b.log))
	b.flows.RegisterFlow(CommandFlow("history", b.history))
	b.flows.RegisterFlow(b.soundCronListFlow())
	b.flows.RegisterFlow(b.soundCronAddFlow())
	b.flows.RegisterFlow(b.soundCronDeleteFlow())
	return b
}

// NewInteractionHandler returns the function to register with the session.
func NewInteractionHandler(deps Deps) func(DiscordSession, *discordgo.InteractionCreate) {
	return NewBot(deps).Handle
}

// replySession remembers whether the interaction was answered, so errors
// can be reported either way.
type replySession struct {
	DiscordSession
	responded bool
}

func (r *replySession) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, opts ...discordgo.RequestOption) error {
	err := r.DiscordSession.InteractionRespond(i, resp, opts...)
	if err == nil {
		r.responded = true
	}
	return err
}

func commandName(i *discordgo.InteractionCreate) string {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		return i.ApplicationCommandData().Name
	case discordgo.InteractionMessageComponent:
		return "component"
	default:
		return "other"
	}
}

// Handle routes one interaction and reports failures to the user.
func (b *Bot) Handle(s DiscordSession, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	name := commandName(i)
	logger := b.Logger.With("command", name, "guildID", i.GuildID)

	rs := &replySession{DiscordSession: s}
	err := b.flows.Router(ctx, rs, i)

	var userErr *UserError
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNoFlow):
		logger.Debug("ignoring interaction", "type", i.Type)
		b.Metrics.CommandHandled(name, "ignored")
		return
	case errors.Is(err, ErrFlowExpired):
		outcome = "expired"
		err = &UserError{Message: "This menu has expired. Run the command again.", Err: err}
	case errors.As(err, &userErr):
		outcome = "user_error"
		logger.Debug("command rejected", "error", err)
	default:
		outcome = "error"
		logger.Error("command failed", "error", err)
	}
	b.Metrics.CommandHandled(name, outcome)
	if err == nil {
		return
	}

	msg := "Something went wrong."
	if errors.As(err, &userErr) {
		msg = userErr.Message
	}
	if rs.responded {
		_, err = s.InteractionResponseEdit(i.Interaction, presenters.Edit(msg))
	} else {
		err = s.InteractionRespond(i.Interaction, presenters.Message(msg))
	}
	if err != nil {
		logger.Warn("failed to report command error", "error", err)
	}
}

func respond(s DiscordSession, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, presenters.Message(content))
}

// deferReply acknowledges a command that takes longer than Discord waits
// for a first response.
func deferReply(s DiscordSession, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, presenters.Deferred)
}

func editReply(s DiscordSession, i *discordgo.InteractionCreate, content string) error {
	_, err := s.InteractionResponseEdit(i.Interaction, presenters.Edit(content))
	return err
}

func requireGuild(i *discordgo.InteractionCreate) error {
	if i.GuildID == "" {
		return userErrorf("This command only works in a server.")
	}
	return nil
}

func unavailable(feature string) error {
	return userErrorf("%s is not available on this bot.", feature)
}

func (b *Bot) ping(_ context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	return respond(s, i, "Pong!")
}
