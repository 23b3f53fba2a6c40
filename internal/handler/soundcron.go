package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/needsmorejpeg/internal/media"
	"github.com/glizzus/needsmorejpeg/internal/presenters"
	"github.com/glizzus/needsmorejpeg/internal/repository"
	"github.com/glizzus/needsmorejpeg/internal/schedule"
	"github.com/glizzus/needsmorejpeg/internal/soundcron"
	"github.com/glizzus/needsmorejpeg/internal/util"
)

const (
	stateSoundCrons = "soundcrons"
	stateSelected   = "selected"

	// shownRuns is how many upcoming runs soundcron details list.
	shownRuns = 3
)

// SoundCronAddRequest is a parsed /soundcron add.
type SoundCronAddRequest struct {
	Name      string
	Cron      string
	ChannelID string
	// SourceURL is the attachment's or the given link.
	SourceURL string
}

// CommandToAddRequest reads /soundcron add options. Exactly one of an
// audio attachment or a url must be given.
func CommandToAddRequest(
	resolved *discordgo.ApplicationCommandInteractionDataResolved,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) (*SoundCronAddRequest, error) {
	opts := optionList(options)

	name, _ := opts.String("name")
	cron, _ := opts.String("cron")
	if name == "" || cron == "" {
		return nil, userErrorf("A soundcron needs a name and a cron expression.")
	}
	if err := schedule.ValidateCron(cron); err != nil {
		return nil, &UserError{Message: fmt.Sprintf("`%s` is not a valid cron expression.", cron), Err: err}
	}

	attachment, hasFile, err := opts.Attachment("audio", resolved)
	if err != nil {
		return nil, err
	}
	rawURL, hasURL := opts.String("url")

	req := &SoundCronAddRequest{Name: name, Cron: cron}
	req.ChannelID, _ = opts.Channel("channel")
	switch {
	case hasFile && hasURL:
		return nil, userErrorf("Give either a file or a url, not both.")
	case hasFile:
		req.SourceURL = attachment.URL
	case hasURL:
		req.SourceURL = rawURL
	default:
		return nil, userErrorf("Attach a file or give a url.")
	}
	return req, nil
}

func soundCronError(err error) error {
	var downloadErr *media.DownloadError
	switch {
	case errors.As(err, &downloadErr):
		return &UserError{Message: downloadErr.Message(), Err: err}
	case errors.Is(err, soundcron.ErrInvalidName):
		return &UserError{Message: "Soundcron names are 1 to 32 letters, digits, dashes or underscores.", Err: err}
	case errors.Is(err, repository.ErrAlreadyExists):
		return &UserError{Message: "A soundcron with that name already exists.", Err: err}
	case errors.Is(err, repository.ErrNotFound):
		return &UserError{Message: "That soundcron does not exist.", Err: err}
	default:
		return err
	}
}

func (b *Bot) soundCronAddFlow() *Flow {
	return &Flow{
		ID: "soundcron_add",
		Root: &Node{
			ID:      "soundcron_add",
			Matcher: IsSubCommand("soundcron", "add"),
			Handler: b.soundCronAdd,
		},
	}
}

func (b *Bot) soundCronAdd(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	if err := requireGuild(i); err != nil {
		return err
	}
	if b.SoundCrons == nil {
		return unavailable("Soundcrons")
	}
	data := i.ApplicationCommandData()
	req, err := CommandToAddRequest(data.Resolved, commandOptions(data))
	if err != nil {
		return err
	}
	if req.SourceURL != "" {
		if err := b.checkBlocked(ctx, req.SourceURL); err != nil {
			return err
		}
	}
	if err := deferReply(s, i); err != nil {
		return err
	}

	sc, err := b.SoundCrons.Add(ctx, soundcron.AddRequest{
		GuildID:   i.GuildID,
		ChannelID: req.ChannelID,
		Name:      req.Name,
		Cron:      req.Cron,
		SourceURL: req.SourceURL,
	})
	if err != nil {
		return soundCronError(err)
	}
	next, _ := schedule.NextRunTimes(sc.Cron, shownRuns)
	return editReply(s, i, presenters.SoundCronAddedContent(sc, next))
}

func (b *Bot) soundCronDeleteFlow() *Flow {
	return &Flow{
		ID: "soundcron_delete",
		Root: &Node{
			ID:      "soundcron_delete",
			Matcher: IsSubCommand("soundcron", "delete"),
			Handler: func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
				if err := requireGuild(i); err != nil {
					return err
				}
				if b.SoundCrons == nil {
					return unavailable("Soundcrons")
				}
				name, _ := commandOptions(i.ApplicationCommandData()).String("name")
				if err := b.SoundCrons.Delete(ctx, i.GuildID, name); err != nil {
					return soundCronError(err)
				}
				return respond(s, i, presenters.SoundCronDeletedContent(name))
			},
		},
	}
}

// soundCronListFlow shows the guild's soundcrons in a select menu, then the
// chosen one's details with a delete button.
func (b *Bot) soundCronListFlow() *Flow {
	deleteNode := &Node{
		ID:      "soundcron_list_delete",
		Matcher: IsComponent(presenters.ComponentIDSoundCronDelete),
		Handler: func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
			sc, ok := fc.State[stateSelected].(repository.SoundCron)
			if !ok {
				return ErrFlowExpired
			}
			err := b.SoundCrons.Delete(ctx, sc.GuildID, sc.Name)
			if errors.Is(err, repository.ErrNotFound) {
				return s.InteractionRespond(i.Interaction, presenters.Finished("That soundcron was already deleted."))
			}
			if err != nil {
				return soundCronError(err)
			}
			return s.InteractionRespond(i.Interaction, presenters.Finished(presenters.SoundCronDeletedContent(sc.Name)))
		},
	}
	cancelNode := &Node{
		ID:      "soundcron_list_cancel",
		Matcher: IsComponent(presenters.ComponentIDSoundCronCancel),
		Handler: func(_ context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
			return s.InteractionRespond(i.Interaction, presenters.Finished("Nothing changed."))
		},
	}
	selectNode := &Node{
		ID:      "soundcron_list_select",
		Matcher: IsComponent(presenters.ComponentIDSoundCronSelect),
		Handler: func(_ context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
			soundCrons, _ := fc.State[stateSoundCrons].([]repository.SoundCron)
			values := i.MessageComponentData().Values
			if len(values) != 1 {
				return userErrorf("Select one soundcron.")
			}
			sc, ok := util.FindFirst(soundCrons, func(sc repository.SoundCron) bool {
				return sc.Name == values[0]
			})
			if !ok {
				return ErrFlowExpired
			}
			fc.State[stateSelected] = sc
			next, _ := schedule.NextRunTimes(sc.Cron, shownRuns)
			return s.InteractionRespond(i.Interaction, presenters.SoundCronListActionsMenu(fc.InstanceID, sc, next))
		},
		Next: []*Node{deleteNode, cancelNode},
	}

	return &Flow{
		ID: "soundcron_list",
		Root: &Node{
			ID:      "soundcron_list",
			Matcher: IsSubCommand("soundcron", "list"),
			Handler: func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
				if err := requireGuild(i); err != nil {
					return err
				}
				if b.SoundCrons == nil {
					return unavailable("Soundcrons")
				}
				soundCrons, err := b.SoundCrons.List(ctx, i.GuildID)
				if err != nil {
					return fmt.Errorf("failed to list soundcrons: %w", err)
				}
				fc.State[stateSoundCrons] = soundCrons
				return s.InteractionRespond(i.Interaction, presenters.BuildListSoundCronsResponse(soundCrons, fc.InstanceID))
			},
			Next: []*Node{selectNode},
		},
	}
}
