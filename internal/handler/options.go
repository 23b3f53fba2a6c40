package handler

import (
	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/needsmorejpeg/internal/util"
)

type optionList []*discordgo.ApplicationCommandInteractionDataOption

func (o optionList) find(name string, typ discordgo.ApplicationCommandOptionType) (*discordgo.ApplicationCommandInteractionDataOption, bool) {
	return util.FindFirst(o, func(opt *discordgo.ApplicationCommandInteractionDataOption) bool {
		return opt.Name == name && opt.Type == typ
	})
}

func (o optionList) String(name string) (string, bool) {
	opt, ok := o.find(name, discordgo.ApplicationCommandOptionString)
	if !ok {
		return "", false
	}
	return opt.StringValue(), true
}

func (o optionList) Int(name string) (int, bool) {
	opt, ok := o.find(name, discordgo.ApplicationCommandOptionInteger)
	if !ok {
		return 0, false
	}
	return int(opt.IntValue()), true
}

func (o optionList) Bool(name string) (bool, bool) {
	opt, ok := o.find(name, discordgo.ApplicationCommandOptionBoolean)
	if !ok {
		return false, false
	}
	return opt.BoolValue(), true
}

// Channel returns the ID of a channel option.
func (o optionList) Channel(name string) (string, bool) {
	opt, ok := o.find(name, discordgo.ApplicationCommandOptionChannel)
	if !ok {
		return "", false
	}
	id, ok := opt.Value.(string)
	return id, ok
}

// Attachment resolves an attachment option. An option whose ID is missing
// from the resolved data falls back to the only resolved attachment.
func (o optionList) Attachment(name string, resolved *discordgo.ApplicationCommandInteractionDataResolved) (*discordgo.MessageAttachment, bool, error) {
	opt, ok := o.find(name, discordgo.ApplicationCommandOptionAttachment)
	if !ok {
		return nil, false, nil
	}
	if resolved == nil {
		return nil, true, userErrorf("The attachment could not be read.")
	}
	if id, isString := opt.Value.(string); isString {
		if attachment, found := resolved.Attachments[id]; found {
			return attachment, true, nil
		}
	}
	attachment, err := util.GetOne(resolved.Attachments)
	if err != nil {
		return nil, true, &UserError{Message: "Attach exactly one file.", Err: err}
	}
	return attachment, true, nil
}

// commandOptions returns the options of the command, or of its subcommand
// when one was used.
func commandOptions(data discordgo.ApplicationCommandInteractionData) optionList {
	if len(data.Options) == 1 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return data.Options[0].Options
	}
	return data.Options
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// displayName is what descriptions call the user: their server nickname,
// else their display name, else their username.
func displayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.Nick != "" {
		return i.Member.Nick
	}
	user := interactionUser(i)
	switch {
	case user == nil:
		return "someone"
	case user.GlobalName != "":
		return user.GlobalName
	default:
		return user.Username
	}
}
